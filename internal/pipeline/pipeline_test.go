package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ppiankov/claimstream/internal/model"
	"github.com/ppiankov/claimstream/internal/queue"
	"github.com/ppiankov/claimstream/internal/store"
	"github.com/ppiankov/claimstream/internal/transcription"
)

const recordingID = "3f1c2a9e-8b7d-4c6e-9a1b-2d3e4f5a6b7c"

type timedWord struct {
	text  string
	start int
}

func words(ws ...timedWord) []model.WordToken {
	out := make([]model.WordToken, len(ws))
	for i, w := range ws {
		out[i] = model.WordToken{Text: w.text, StartMs: w.start, EndMs: w.start + 200, Confidence: 0.9}
	}
	return out
}

var segments = map[int][]model.WordToken{
	1: words(
		timedWord{"Hello", 0}, timedWord{"everyone.", 500}, timedWord{"Today", 1000},
		timedWord{"we", 9200}, timedWord{"talk", 9600},
	),
	2: words(
		timedWord{"we", 100}, timedWord{"talk", 400}, timedWord{"about", 800},
		timedWord{"taxes.", 1200}, timedWord{"They", 5000}, timedWord{"rise", 5500},
	),
	3: words(
		timedWord{"sharply.", 200}, timedWord{"Prices", 2500}, timedWord{"fall", 3000},
	),
}

func rawSegment(index int) model.RawSegment {
	return model.RawSegment{RecordingID: recordingID, SegmentIndex: index, Words: segments[index]}
}

type taxExtractor struct{}

func (taxExtractor) ExtractClaims(_ context.Context, sentence, _ string) ([]string, error) {
	if strings.Contains(strings.ToLower(sentence), "taxes") {
		return []string{sentence}, nil
	}
	return nil, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) count(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, ev := range n.events {
		if ev.Type == eventType {
			c += len(ev.Sentences)
		}
	}
	return c
}

type sent struct {
	topic string
	body  []byte
	delay time.Duration
}

type fakeQueue struct {
	mu   sync.Mutex
	sent []sent
}

func (q *fakeQueue) Send(_ context.Context, topic string, body []byte, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, sent{topic: topic, body: body, delay: delay})
	return nil
}

func (q *fakeQueue) take(topic string) []sent {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out, rest []sent
	for _, s := range q.sent {
		if s.topic == topic {
			out = append(out, s)
		} else {
			rest = append(rest, s)
		}
	}
	q.sent = rest
	return out
}

func testConfig() model.Config {
	cfg := model.DefaultConfig()
	cfg.Queue = model.QueueConfig{
		Workers:      2,
		MaxAttempts:  5,
		RetryDelay:   10 * time.Millisecond,
		DeferDelay:   10 * time.Millisecond,
		MaxDeferrals: 50,
	}
	return cfg
}

func openStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newUnitPipeline(t *testing.T, deps Deps) (*Pipeline, *store.SQLite, *fakeQueue) {
	t.Helper()
	st := openStore(t)
	q := &fakeQueue{}
	deps.Store = st
	deps.Queue = q
	if deps.Extractor == nil {
		deps.Extractor = taxExtractor{}
	}
	return New(testConfig(), deps), st, q
}

func TestPipeline_OutOfOrderSegments(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st := openStore(t)
	q := queue.NewMemoryQueue(testConfig().Queue, zap.NewNop())
	notifier := &recordingNotifier{}
	p := New(testConfig(), Deps{Store: st, Queue: q, Extractor: taxExtractor{}, Notifier: notifier})
	p.Register(q)
	q.Start(ctx)
	defer q.Close()

	for _, i := range []int{3, 1, 2} {
		res, err := p.IngestSegment(ctx, rawSegment(i))
		require.NoError(t, err)
		assert.Equal(t, i == 3, res.Created)
	}
	require.NoError(t, q.WaitIdle(ctx))

	sentences, err := p.Sentences(ctx, recordingID)
	require.NoError(t, err)
	require.Len(t, sentences, 3)

	assert.Equal(t, "Hello everyone.", sentences[0].Text)
	assert.Equal(t, "Today we talk about taxes.", sentences[1].Text)
	assert.Equal(t, "They rise sharply.", sentences[2].Text)
	for i, s := range sentences {
		assert.Equal(t, i+1, s.Number)
		assert.Equal(t, model.StatusOK, s.Status)
	}
	assert.Nil(t, sentences[0].Claims)
	assert.Equal(t, []string{"Today we talk about taxes"}, sentences[1].Claims)

	rec, err := p.Recording(ctx, recordingID)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.NextSegment)
	assert.Equal(t, model.DefaultRecordingName, rec.Name)

	assert.Equal(t, 3, notifier.count(EventSentences))
	assert.GreaterOrEqual(t, notifier.count(EventUpdated), 3)

	// A consumed segment arriving again is ignored
	dup, err := p.IngestSegment(ctx, rawSegment(2))
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
	raw, err := st.GetRawSegment(ctx, recordingID, 2)
	require.NoError(t, err)
	assert.Nil(t, raw)

	final, err := p.FinalizeRecording(ctx, recordingID)
	require.NoError(t, err)
	require.NotNil(t, final)
	assert.Equal(t, 4, final.Number)
	assert.Equal(t, "Prices fall", final.Text)
	assert.Equal(t, 22, final.StartSeconds)

	again, err := p.FinalizeRecording(ctx, recordingID)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestPipeline_IngestValidation(t *testing.T) {
	p, st, q := newUnitPipeline(t, Deps{})
	ctx := context.Background()

	tests := []struct {
		name string
		seg  model.RawSegment
	}{
		{"missing recording", model.RawSegment{SegmentIndex: 1}},
		{"zero index", model.RawSegment{RecordingID: recordingID}},
		{"negative start", model.RawSegment{RecordingID: recordingID, SegmentIndex: 1,
			Words: []model.WordToken{{Text: "a", StartMs: -1, Confidence: 0.5}}}},
		{"bad confidence", model.RawSegment{RecordingID: recordingID, SegmentIndex: 1,
			Words: []model.WordToken{{Text: "a", Confidence: 1.5}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.IngestSegment(ctx, tt.seg)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	recs, err := st.ListRecordings(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs, "rejected input has no side effects")
	assert.Empty(t, q.take(queue.TopicSegments))
}

func TestPipeline_DeferralLimit(t *testing.T) {
	p, _, q := newUnitPipeline(t, Deps{})
	ctx := context.Background()

	_, err := p.IngestSegment(ctx, rawSegment(3))
	require.NoError(t, err)
	q.take(queue.TopicSegments)

	require.NoError(t, p.HandleSegment(ctx, SegmentMessage{RecordingID: recordingID, SegmentIndex: 3}))
	requeued := q.take(queue.TopicSegments)
	require.Len(t, requeued, 1)
	assert.Equal(t, testConfig().Queue.DeferDelay, requeued[0].delay)

	var m SegmentMessage
	require.NoError(t, json.Unmarshal(requeued[0].body, &m))
	assert.Equal(t, 1, m.Deferrals)

	m.Deferrals = testConfig().Queue.MaxDeferrals
	require.NoError(t, p.HandleSegment(ctx, m))
	assert.Empty(t, q.take(queue.TopicSegments))
}

func TestPipeline_AdvanceKicksWaitingSegment(t *testing.T) {
	p, _, q := newUnitPipeline(t, Deps{})
	ctx := context.Background()

	for _, i := range []int{2, 1} {
		_, err := p.IngestSegment(ctx, rawSegment(i))
		require.NoError(t, err)
	}
	q.take(queue.TopicSegments)

	require.NoError(t, p.HandleSegment(ctx, SegmentMessage{RecordingID: recordingID, SegmentIndex: 1}))
	kicked := q.take(queue.TopicSegments)
	require.Len(t, kicked, 1)

	var m SegmentMessage
	require.NoError(t, json.Unmarshal(kicked[0].body, &m))
	assert.Equal(t, 2, m.SegmentIndex)

	require.NoError(t, p.HandleSegment(ctx, m))
	claims := q.take(queue.TopicClaims)
	assert.Len(t, claims, 2, "one claim detection per new sentence")
	assert.Empty(t, q.take(queue.TopicSegments), "segment 3 has not arrived")
}

func TestPipeline_DeletedRecordingDropsWork(t *testing.T) {
	p, _, _ := newUnitPipeline(t, Deps{})
	ctx := context.Background()

	assert.NoError(t, p.HandleSegment(ctx, SegmentMessage{RecordingID: "gone", SegmentIndex: 2}))
	assert.NoError(t, p.HandleClaim(ctx, ClaimMessage{RecordingID: "gone", SentenceNumber: 1}))
}

func TestPipeline_ImportText(t *testing.T) {
	p, _, q := newUnitPipeline(t, Deps{})
	ctx := context.Background()

	sum, err := p.ImportText(ctx, recordingID, "Hello there. and more. New one.")
	require.NoError(t, err)
	assert.Nil(t, sum.Updated)
	require.Len(t, sum.Created, 2)
	assert.Equal(t, "Hello there and more.", sum.Created[0].Text)
	assert.Equal(t, "New one.", sum.Created[1].Text)
	assert.Len(t, q.take(queue.TopicClaims), 2)

	sum, err = p.ImportText(ctx, recordingID, "it continues. Next.")
	require.NoError(t, err)
	require.NotNil(t, sum.Updated)
	assert.Equal(t, 2, sum.Updated.Number)
	assert.Equal(t, "New one it continues.", sum.Updated.Text)
	require.Len(t, sum.Created, 1)
	assert.Equal(t, 3, sum.Created[0].Number)
	assert.Len(t, q.take(queue.TopicClaims), 2)

	_, err = p.ImportText(ctx, recordingID, "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPipeline_SentenceNotReady(t *testing.T) {
	p, _, _ := newUnitPipeline(t, Deps{})
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return base }

	_, err := p.ImportText(ctx, recordingID, "Taxes went up last year.")
	require.NoError(t, err)

	_, err = p.Sentence(ctx, recordingID, 1)
	assert.ErrorIs(t, err, ErrNotReady)

	p.now = func() time.Time { return base.Add(11 * time.Second) }
	s, err := p.Sentence(ctx, recordingID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, s.Status)

	p.now = func() time.Time { return base }
	require.NoError(t, p.HandleClaim(ctx, ClaimMessage{RecordingID: recordingID, SentenceNumber: 1}))
	s, err = p.Sentence(ctx, recordingID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOK, s.Status)
	assert.Equal(t, []string{"Taxes went up last year"}, s.Claims)

	_, err = p.Sentence(ctx, recordingID, 9)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = p.Sentence(ctx, recordingID, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPipeline_CorrectSentence(t *testing.T) {
	p, _, q := newUnitPipeline(t, Deps{})
	ctx := context.Background()

	_, err := p.ImportText(ctx, recordingID, "Taxes went up last year.")
	require.NoError(t, err)
	require.NoError(t, p.HandleClaim(ctx, ClaimMessage{RecordingID: recordingID, SentenceNumber: 1}))
	q.take(queue.TopicClaims)

	speaker := "Ann"
	s, err := p.CorrectSentence(ctx, recordingID, 1, SentenceUpdate{Speaker: &speaker})
	require.NoError(t, err)
	assert.Equal(t, "Ann", s.Speaker)
	assert.Equal(t, model.StatusOK, s.Status)
	assert.Equal(t, []string{"Taxes went up last year"}, s.Claims, "untouched fields are kept")
	assert.Empty(t, q.take(queue.TopicClaims))

	text := "Taxes went down last year."
	s, err = p.CorrectSentence(ctx, recordingID, 1, SentenceUpdate{Text: &text})
	require.NoError(t, err)
	assert.Equal(t, text, s.Text)
	assert.Equal(t, model.StatusPending, s.Status)
	assert.Equal(t, "Ann", s.Speaker)
	assert.Len(t, q.take(queue.TopicClaims), 1)

	same := text
	_, err = p.CorrectSentence(ctx, recordingID, 1, SentenceUpdate{Text: &same})
	require.NoError(t, err)
	assert.Empty(t, q.take(queue.TopicClaims), "unchanged text is not re-detected")

	empty := " "
	_, err = p.CorrectSentence(ctx, recordingID, 1, SentenceUpdate{Text: &empty})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.CorrectSentence(ctx, recordingID, 7, SentenceUpdate{Speaker: &speaker})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPipeline_CorrectSentence_TextAndClaims(t *testing.T) {
	p, _, q := newUnitPipeline(t, Deps{})
	ctx := context.Background()

	_, err := p.ImportText(ctx, recordingID, "Taxes went up last year.")
	require.NoError(t, err)
	require.NoError(t, p.HandleClaim(ctx, ClaimMessage{RecordingID: recordingID, SentenceNumber: 1}))
	q.take(queue.TopicClaims)

	text := "Taxes went up by ten percent last year."
	reviewed := []string{" ten percent "}
	s, err := p.CorrectSentence(ctx, recordingID, 1, SentenceUpdate{Text: &text, Claims: &reviewed})
	require.NoError(t, err)
	assert.Equal(t, []string{"ten percent"}, s.Claims, "reviewed claims replace the stale ones")
	assert.Equal(t, model.StatusPending, s.Status)
	require.Len(t, q.take(queue.TopicClaims), 1)

	require.NoError(t, p.HandleClaim(ctx, ClaimMessage{RecordingID: recordingID, SentenceNumber: 1}))
	s, err = p.Sentence(ctx, recordingID, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"ten percent", "Taxes went up by ten percent last year"}, s.Claims)
	assert.NotContains(t, s.Claims, "Taxes went up last year")
}

func TestPipeline_Recordings(t *testing.T) {
	p, _, _ := newUnitPipeline(t, Deps{})
	ctx := context.Background()

	recs, err := p.Recordings(ctx)
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)

	rec, err := p.CreateRecording(ctx, "  ")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultRecordingName, rec.Name)
	assert.Equal(t, 1, rec.NextSegment)

	require.NoError(t, p.RenameRecording(ctx, rec.ID, "Budget debate"))
	assert.ErrorIs(t, p.RenameRecording(ctx, rec.ID, ""), ErrInvalidInput)

	got, err := p.Recording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Budget debate", got.Name)

	require.NoError(t, p.DeleteRecording(ctx, rec.ID))
	_, err = p.Recording(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, p.DeleteRecording(ctx, rec.ID), ErrNotFound)
}

type fakeChecker struct {
	source string
}

func (c *fakeChecker) FactCheck(_ context.Context, claim, _, source string) (*model.FactCheckResult, error) {
	c.source = source
	return &model.FactCheckResult{OriginalClaim: claim, Results: []model.ProviderResult{}}, nil
}

func TestPipeline_FactCheck(t *testing.T) {
	ctx := context.Background()

	p, _, _ := newUnitPipeline(t, Deps{})
	_, err := p.FactCheck(ctx, "Taxes rose", "", "")
	assert.ErrorIs(t, err, ErrUnavailable)

	checker := &fakeChecker{}
	p, _, _ = newUnitPipeline(t, Deps{Checker: checker})
	_, err = p.FactCheck(ctx, " ", "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	res, err := p.FactCheck(ctx, "Taxes rose", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Taxes rose", res.OriginalClaim)
	assert.Equal(t, "all", checker.source, "configured default service")
}

type fakeTranscriber struct {
	transcript *transcription.Transcript
	webhook    string
}

func (f *fakeTranscriber) Submit(_ context.Context, audioURL, webhookURL string) (*transcription.Transcript, error) {
	f.webhook = webhookURL
	return &transcription.Transcript{ID: "tr-1", Status: transcription.StatusQueued, AudioURL: audioURL}, nil
}

func (f *fakeTranscriber) Get(context.Context, string) (*transcription.Transcript, error) {
	return f.transcript, nil
}

func TestPipeline_Transcription(t *testing.T) {
	ctx := context.Background()
	audio := "https://cdn.example/" + recordingID + "-10-20.mp3"
	tr := &fakeTranscriber{}
	p, st, q := newUnitPipeline(t, Deps{Transcriber: tr})
	p.config.Server.PublicURL = "https://claims.example/"

	_, err := p.SubmitAudio(ctx, "https://cdn.example/not-a-segment.mp3")
	assert.ErrorIs(t, err, ErrInvalidInput)

	sub, err := p.SubmitAudio(ctx, audio)
	require.NoError(t, err)
	assert.Equal(t, "tr-1", sub.ID)
	assert.Equal(t, "https://claims.example/callbacks/transcription", tr.webhook)

	tr.transcript = &transcription.Transcript{ID: "tr-1", Status: transcription.StatusProcessing, AudioURL: audio}
	_, err = p.HandleTranscriptionCallback(ctx, transcription.Callback{TranscriptID: "tr-1"})
	assert.ErrorIs(t, err, ErrNotReady)

	tr.transcript = &transcription.Transcript{
		ID:       "tr-1",
		Status:   transcription.StatusCompleted,
		AudioURL: audio,
		Words:    []transcription.Word{{Text: "Hello.", Start: 0, End: 300, Confidence: 0.9}},
	}
	_, err = p.HandleTranscriptionCallback(ctx, transcription.Callback{TranscriptID: "tr-1", Status: "completed"})
	require.NoError(t, err)

	raw, err := st.GetRawSegment(ctx, recordingID, 2)
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, "Hello.", raw.Words[0].Text)
	assert.Len(t, q.take(queue.TopicSegments), 1)

	tr.transcript = &transcription.Transcript{ID: "tr-2", Status: transcription.StatusError, AudioURL: "https://cdn.example/" + recordingID + "-20-30.mp3"}
	_, err = p.HandleTranscriptionCallback(ctx, transcription.Callback{TranscriptID: "tr-2"})
	require.NoError(t, err)
	raw, err = st.GetRawSegment(ctx, recordingID, 3)
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Empty(t, raw.Words)
}

func TestPipeline_Recover(t *testing.T) {
	p, st, q := newUnitPipeline(t, Deps{})
	ctx := context.Background()

	for _, i := range []int{1, 2, 3} {
		_, err := p.IngestSegment(ctx, rawSegment(i))
		require.NoError(t, err)
	}
	_, err := st.CreateRecording(ctx, "broken", "Broken")
	require.NoError(t, err)
	require.NoError(t, st.PutRawSegment(ctx, model.RawSegment{RecordingID: "broken", SegmentIndex: 1}))
	require.NoError(t, st.SetFault(ctx, "broken", "orphaned remainder"))
	q.take(queue.TopicSegments)

	n, err := p.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, q.take(queue.TopicSegments), 3)
}

func TestRenderMarkdown(t *testing.T) {
	e := &Export{
		Recording: model.RecordingState{ID: "rec-1", Name: "Budget debate"},
		Sentences: []model.Sentence{
			{Number: 1, StartSeconds: 5, Text: "Hello everyone."},
			{Number: 2, StartSeconds: 3725, Speaker: "Ann", Text: "Taxes rose by 4%.", Claims: []string{"Taxes rose by 4%"}},
		},
		ExportedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	require.NoError(t, RenderMarkdown(&buf, e))
	out := buf.String()

	assert.Contains(t, out, "# Budget debate")
	assert.Contains(t, out, "**[00:05]** Hello everyone.")
	assert.Contains(t, out, "**[1:02:05]** *Ann:* Taxes rose by 4%.")
	assert.Contains(t, out, "> Claim: Taxes rose by 4%")
	assert.Contains(t, out, "1 claims detected.")

	buf.Reset()
	require.NoError(t, RenderJSON(&buf, e))
	var decoded Export
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded.Sentences, 2)
}
