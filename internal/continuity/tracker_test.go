package continuity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimstream/internal/model"
	"github.com/ppiankov/claimstream/internal/segment"
	"github.com/ppiankov/claimstream/internal/stitch"
	"github.com/ppiankov/claimstream/internal/store"
)

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

func newTracker(st Store) *Tracker {
	cfg := model.DefaultConfig().Pipeline
	return NewTracker(st, stitch.New(stitch.OptionsFromConfig(cfg)), segment.NewSegmenter(cfg), nil)
}

func setup(t *testing.T, indexes ...int) (*store.SQLite, *Tracker) {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.CreateRecording(ctx, "rec", "Debate")
	require.NoError(t, err)
	for _, i := range indexes {
		require.NoError(t, s.PutRawSegment(ctx, model.RawSegment{
			RecordingID:  "rec",
			SegmentIndex: i,
			Text:         model.JoinWords(segments[i]),
			Words:        segments[i],
		}))
	}
	return s, newTracker(s)
}

func texts(sentences []model.Sentence) []string {
	out := make([]string, len(sentences))
	for i, s := range sentences {
		out[i] = s.Text
	}
	return out
}

func TestTracker_ProcessSegment_InOrder(t *testing.T) {
	ctx := context.Background()
	s, tr := setup(t, 1, 2, 3)

	res, err := tr.ProcessSegment(ctx, "rec", 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBootstrapped, res.Outcome)

	raw, err := s.GetRawSegment(ctx, "rec", 1)
	require.NoError(t, err)
	assert.NotNil(t, raw, "first segment stays as a predecessor")

	res, err = tr.ProcessSegment(ctx, "rec", 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConsumed, res.Outcome)
	assert.True(t, res.Advanced)
	assert.Equal(t, 1, res.Changes)
	assert.Equal(t, []string{"Hello everyone.", "Today we talk about taxes."}, texts(res.Sentences))
	assert.Equal(t, 1, res.Sentences[0].Number)
	assert.Equal(t, 2, res.Sentences[1].Number)
	assert.Equal(t, 1, res.Sentences[1].StartSeconds)

	rem, err := s.GetRemainder(ctx, "rec", 2)
	require.NoError(t, err)
	require.NotNil(t, rem)
	assert.Equal(t, "They rise", rem.Text)

	res, err = tr.ProcessSegment(ctx, "rec", 3)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConsumed, res.Outcome)
	require.Len(t, res.Sentences, 1)
	assert.Equal(t, "They rise sharply.", res.Sentences[0].Text)
	assert.Equal(t, 3, res.Sentences[0].Number)
	assert.Equal(t, 2, res.Sentences[0].SourceSegment)
	assert.Equal(t, 15, res.Sentences[0].StartSeconds)

	rec, err := s.GetRecording(ctx, "rec")
	require.NoError(t, err)
	assert.Equal(t, 4, rec.NextSegment)

	prev, err := s.GetRemainder(ctx, "rec", 2)
	require.NoError(t, err)
	assert.Nil(t, prev, "consumed remainder is deleted")
}

func TestTracker_ProcessSegment_OutOfOrder(t *testing.T) {
	ctx := context.Background()
	s, tr := setup(t, 1, 2, 3)

	for _, step := range []struct {
		index int
		want  Outcome
	}{
		{3, OutcomeDeferred},
		{2, OutcomeDeferred},
		{1, OutcomeBootstrapped},
		{3, OutcomeDeferred},
		{2, OutcomeConsumed},
		{2, OutcomeStale},
		{3, OutcomeConsumed},
		{1, OutcomeStale},
	} {
		res, err := tr.ProcessSegment(ctx, "rec", step.index)
		require.NoError(t, err, "segment %d", step.index)
		assert.Equal(t, step.want, res.Outcome, "segment %d", step.index)
	}

	all, err := s.ListSentences(ctx, "rec")
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, sent := range all {
		assert.Equal(t, i+1, sent.Number)
	}
}

func TestTracker_ProcessSegment_ConcurrentRedelivery(t *testing.T) {
	ctx := context.Background()
	s, tr := setup(t, 1, 2)

	_, err := tr.ProcessSegment(ctx, "rec", 1)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		consumed int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := tr.ProcessSegment(ctx, "rec", 2)
			if err != nil {
				assert.True(t, errors.Is(err, store.ErrConflict), "unexpected error: %v", err)
				return
			}
			if res.Outcome == OutcomeConsumed {
				mu.Lock()
				consumed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, consumed)
	all, err := s.ListSentences(ctx, "rec")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTracker_ProcessSegment_EdgeCases(t *testing.T) {
	ctx := context.Background()

	t.Run("should fail for unknown recording", func(t *testing.T) {
		_, tr := setup(t)
		_, err := tr.ProcessSegment(ctx, "missing", 1)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("should reject non-positive index", func(t *testing.T) {
		_, tr := setup(t)
		_, err := tr.ProcessSegment(ctx, "rec", 0)
		assert.Error(t, err)
	})

	t.Run("should report missing segment as stale", func(t *testing.T) {
		_, tr := setup(t)
		res, err := tr.ProcessSegment(ctx, "rec", 1)
		require.NoError(t, err)
		assert.Equal(t, OutcomeStale, res.Outcome)
	})

	t.Run("should abort without predecessor", func(t *testing.T) {
		s, tr := setup(t, 2)
		require.NoError(t, s.AdvanceSegment(ctx, "rec", 1, 0))

		res, err := tr.ProcessSegment(ctx, "rec", 2)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoPredecessor, res.Outcome)

		raw, err := s.GetRawSegment(ctx, "rec", 2)
		require.NoError(t, err)
		assert.NotNil(t, raw)
	})
}

// fakeStore serves hand-built states the SQL store cannot reach
type fakeStore struct {
	rec    model.RecordingState
	raws   map[int]*model.RawSegment
	rems   map[int]*model.RemainderSentence
	faults []string
}

func (f *fakeStore) GetRecording(_ context.Context, id string) (*model.RecordingState, error) {
	if id != f.rec.ID {
		return nil, store.ErrNotFound
	}
	rec := f.rec
	return &rec, nil
}

func (f *fakeStore) AdvanceSegment(context.Context, string, int, int64) error {
	f.rec.NextSegment++
	return nil
}

func (f *fakeStore) SetFault(_ context.Context, _ string, fault string) error {
	f.rec.Fault = fault
	f.faults = append(f.faults, fault)
	return nil
}

func (f *fakeStore) GetRawSegment(_ context.Context, _ string, index int) (*model.RawSegment, error) {
	return f.raws[index], nil
}

func (f *fakeStore) GetRemainder(_ context.Context, _ string, index int) (*model.RemainderSentence, error) {
	return f.rems[index], nil
}

func (f *fakeStore) LatestRemainder(context.Context, string) (*model.RemainderSentence, error) {
	var latest *model.RemainderSentence
	for _, r := range f.rems {
		if latest == nil || r.SegmentIndex > latest.SegmentIndex {
			latest = r
		}
	}
	return latest, nil
}

func (f *fakeStore) CommitStitch(context.Context, store.StitchCommit) ([]model.Sentence, error) {
	return nil, errors.New("not expected")
}

func TestTracker_ProcessSegment_OrphanedRemainder(t *testing.T) {
	ctx := context.Background()
	fs := &fakeStore{
		rec: model.RecordingState{ID: "rec", NextSegment: 5},
		raws: map[int]*model.RawSegment{
			5: {RecordingID: "rec", SegmentIndex: 5, Words: segments[3]},
		},
		rems: map[int]*model.RemainderSentence{
			2: {RecordingID: "rec", SegmentIndex: 2, Text: "They rise"},
		},
	}
	tr := newTracker(fs)

	_, err := tr.ProcessSegment(ctx, "rec", 5)
	require.ErrorIs(t, err, ErrInconsistent)
	require.Len(t, fs.faults, 1)
	assert.Contains(t, fs.faults[0], "segment 2")

	res, err := tr.ProcessSegment(ctx, "rec", 5)
	require.NoError(t, err)
	assert.Equal(t, OutcomeHalted, res.Outcome)
}
