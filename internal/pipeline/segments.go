package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/claimstream/internal/continuity"
	"github.com/ppiankov/claimstream/internal/model"
	"github.com/ppiankov/claimstream/internal/store"
	"github.com/ppiankov/claimstream/internal/transcription"
)

// IngestResult reports what happened to an ingested segment
type IngestResult struct {
	Recording *model.RecordingState `json:"recording"`
	Created   bool                  `json:"created"`   // The recording was created by this segment
	Duplicate bool                  `json:"duplicate"` // The segment was consumed before and was ignored
}

// IngestSegment stores a raw segment and queues it for continuity
// processing. The recording is created on its first segment.
func (p *Pipeline) IngestSegment(ctx context.Context, seg model.RawSegment) (*IngestResult, error) {
	if err := validateSegment(seg); err != nil {
		return nil, err
	}

	rec, created, err := p.store.EnsureRecording(ctx, seg.RecordingID, model.DefaultRecordingName)
	if err != nil {
		return nil, fmt.Errorf("ensure recording: %w", err)
	}
	log := p.logger.With(zap.String("recording", seg.RecordingID), zap.Int("segment", seg.SegmentIndex))
	if created {
		log.Info("recording created")
	}

	// Everything below the counter was consumed already
	if seg.SegmentIndex < rec.NextSegment {
		log.Debug("duplicate segment ignored", zap.Int("next_segment", rec.NextSegment))
		return &IngestResult{Recording: rec, Duplicate: true}, nil
	}

	if seg.Words == nil {
		seg.Words = []model.WordToken{}
	}
	if err := p.store.PutRawSegment(ctx, seg); err != nil {
		return nil, err
	}
	if err := p.enqueueSegment(ctx, SegmentMessage{RecordingID: seg.RecordingID, SegmentIndex: seg.SegmentIndex}, 0); err != nil {
		return nil, fmt.Errorf("enqueue segment: %w", err)
	}
	log.Debug("segment ingested", zap.Int("words", len(seg.Words)))
	return &IngestResult{Recording: rec, Created: created}, nil
}

func validateSegment(seg model.RawSegment) error {
	if strings.TrimSpace(seg.RecordingID) == "" {
		return fmt.Errorf("%w: recording id is required", ErrInvalidInput)
	}
	if seg.SegmentIndex < 1 {
		return fmt.Errorf("%w: segment index %d must be positive", ErrInvalidInput, seg.SegmentIndex)
	}
	for i, w := range seg.Words {
		if w.StartMs < 0 {
			return fmt.Errorf("%w: word %d has negative start", ErrInvalidInput, i)
		}
		if w.Confidence < 0 || w.Confidence > 1 {
			return fmt.Errorf("%w: word %d confidence %.2f outside [0,1]", ErrInvalidInput, i, w.Confidence)
		}
	}
	return nil
}

// HandleSegment runs continuity for one delivered segment. A returned
// error asks the queue to redeliver the message.
func (p *Pipeline) HandleSegment(ctx context.Context, m SegmentMessage) error {
	log := p.logger.With(zap.String("recording", m.RecordingID), zap.Int("segment", m.SegmentIndex))

	res, err := p.tracker.ProcessSegment(ctx, m.RecordingID, m.SegmentIndex)
	switch {
	case errors.Is(err, continuity.ErrInconsistent):
		log.Error("recording halted", zap.Error(err))
		return nil
	case errors.Is(err, store.ErrNotFound):
		log.Debug("segment for deleted recording dropped")
		return nil
	case err != nil:
		return err
	}

	switch res.Outcome {
	case continuity.OutcomeDeferred:
		return p.deferSegment(ctx, log, m)
	case continuity.OutcomeConsumed:
		for _, s := range res.Sentences {
			if err := p.enqueueClaim(ctx, m.RecordingID, s.Number); err != nil {
				log.Warn("enqueue claim detection", zap.Int("sentence", s.Number), zap.Error(err))
			}
		}
		p.notify(EventSentences, m.RecordingID, res.Sentences...)
	default:
		log.Debug("segment not consumed", zap.String("outcome", string(res.Outcome)))
	}

	if res.Advanced {
		p.kickNext(ctx, log, m.RecordingID, m.SegmentIndex+1)
	}
	return nil
}

// deferSegment redelivers a premature segment later, giving up after MaxDeferrals
func (p *Pipeline) deferSegment(ctx context.Context, log *zap.Logger, m SegmentMessage) error {
	maxDeferrals := p.config.Queue.MaxDeferrals
	if maxDeferrals > 0 && m.Deferrals >= maxDeferrals {
		log.Warn("segment still premature, giving up", zap.Int("deferrals", m.Deferrals))
		return nil
	}
	m.Deferrals++
	return p.enqueueSegment(ctx, m, p.config.Queue.DeferDelay)
}

// kickNext queues the following segment if it already arrived, so a
// segment waiting on its predecessor does not sit out its deferral.
func (p *Pipeline) kickNext(ctx context.Context, log *zap.Logger, recordingID string, index int) {
	next, err := p.store.GetRawSegment(ctx, recordingID, index)
	if err != nil {
		log.Warn("look up next segment", zap.Error(err))
		return
	}
	if next == nil {
		return
	}
	if err := p.enqueueSegment(ctx, SegmentMessage{RecordingID: recordingID, SegmentIndex: index}, 0); err != nil {
		log.Warn("enqueue next segment", zap.Error(err))
	}
}

// HandleClaim runs claim detection for one sentence
func (p *Pipeline) HandleClaim(ctx context.Context, m ClaimMessage) error {
	if !p.claims.Detect(ctx, m.RecordingID, m.SentenceNumber) {
		if _, err := p.store.GetRecording(ctx, m.RecordingID); errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("claim detection for %s/%d failed", m.RecordingID, m.SentenceNumber)
	}
	if p.notifier != nil {
		if sent, err := p.store.GetSentence(ctx, m.RecordingID, m.SentenceNumber); err == nil {
			p.notify(EventUpdated, m.RecordingID, *sent)
		}
	}
	return nil
}

// FinalizeRecording flushes the carried remainder of a finished recording
// into a final sentence. It returns nil when nothing was carried.
func (p *Pipeline) FinalizeRecording(ctx context.Context, id string) (*model.Sentence, error) {
	if _, err := p.store.GetRecording(ctx, id); err != nil {
		return nil, err
	}

	now := p.now()
	segmentSeconds := p.config.Pipeline.SegmentSeconds
	sent, err := p.store.FlushRemainder(ctx, id, func(rem model.RemainderSentence) model.Sentence {
		first := rem.Words[0]
		source := first.SourceSegment
		if source == 0 {
			source = rem.SegmentIndex
		}
		return model.Sentence{
			RecordingID:   id,
			SourceSegment: source,
			StartOffsetMs: first.StartMs,
			StartSeconds:  model.StartSecondsFor(source, first.StartMs, segmentSeconds),
			Text:          model.JoinWords(rem.Words),
			Words:         rem.Words,
			Status:        model.StatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	})
	if err != nil || sent == nil {
		return nil, err
	}

	if err := p.enqueueClaim(ctx, id, sent.Number); err != nil {
		p.logger.Warn("enqueue claim detection", zap.Error(err))
	}
	p.notify(EventSentences, id, *sent)
	return sent, nil
}

// SubmitAudio sends a segment's audio for transcription. The audio URL
// must follow the segment naming scheme; the transcript arrives through
// HandleTranscriptionCallback.
func (p *Pipeline) SubmitAudio(ctx context.Context, audioURL string) (*transcription.Transcript, error) {
	if p.transcriber == nil {
		return nil, fmt.Errorf("transcription: %w", ErrUnavailable)
	}
	ref, err := transcription.ParseSegmentRef(audioURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, _, err := p.store.EnsureRecording(ctx, ref.RecordingID, model.DefaultRecordingName); err != nil {
		return nil, fmt.Errorf("ensure recording: %w", err)
	}

	webhook := ""
	if base := strings.TrimRight(p.config.Server.PublicURL, "/"); base != "" {
		webhook = base + "/callbacks/transcription"
	}
	return p.transcriber.Submit(ctx, audioURL, webhook)
}

// HandleTranscriptionCallback fetches a finished transcript and ingests it
// as the raw segment named by its audio URL. Failed transcripts are stored
// with no words so later segments are not blocked.
func (p *Pipeline) HandleTranscriptionCallback(ctx context.Context, cb transcription.Callback) (*IngestResult, error) {
	if p.transcriber == nil {
		return nil, fmt.Errorf("transcription: %w", ErrUnavailable)
	}
	if cb.TranscriptID == "" {
		return nil, fmt.Errorf("%w: transcript id is required", ErrInvalidInput)
	}

	t, err := p.transcriber.Get(ctx, cb.TranscriptID)
	if err != nil {
		return nil, err
	}
	ref, err := transcription.ParseSegmentRef(t.AudioURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	switch t.Status {
	case transcription.StatusCompleted:
	case transcription.StatusError:
		p.logger.Warn("transcription failed",
			zap.String("transcript", t.ID),
			zap.String("recording", ref.RecordingID),
			zap.Int("segment", ref.SegmentIndex),
			zap.String("error", t.Error))
	default:
		return nil, fmt.Errorf("transcript %s is %s: %w", t.ID, t.Status, ErrNotReady)
	}
	return p.IngestSegment(ctx, transcription.ToRawSegment(ref, t))
}
