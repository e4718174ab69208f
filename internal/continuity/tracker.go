// Package continuity orders segment consumption per recording and turns
// each consumed segment into densely numbered sentences.
package continuity

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/claimstream/internal/model"
	"github.com/ppiankov/claimstream/internal/segment"
	"github.com/ppiankov/claimstream/internal/stitch"
	"github.com/ppiankov/claimstream/internal/store"
)

// ErrInconsistent marks a recording whose stored state cannot be continued
var ErrInconsistent = errors.New("inconsistent recording state")

// Store is the persistence the tracker needs
type Store interface {
	GetRecording(ctx context.Context, id string) (*model.RecordingState, error)
	AdvanceSegment(ctx context.Context, id string, expectSegment int, expectVersion int64) error
	SetFault(ctx context.Context, id, fault string) error
	GetRawSegment(ctx context.Context, recordingID string, index int) (*model.RawSegment, error)
	GetRemainder(ctx context.Context, recordingID string, index int) (*model.RemainderSentence, error)
	LatestRemainder(ctx context.Context, recordingID string) (*model.RemainderSentence, error)
	CommitStitch(ctx context.Context, c store.StitchCommit) ([]model.Sentence, error)
}

// Outcome describes what happened to a delivered segment
type Outcome string

const (
	OutcomeConsumed      Outcome = "consumed"       // Stitched, segmented and committed
	OutcomeBootstrapped  Outcome = "bootstrapped"   // First segment accepted as a predecessor
	OutcomeDeferred      Outcome = "deferred"       // Predecessor not consumed yet; redeliver later
	OutcomeNoPredecessor Outcome = "no_predecessor" // Nothing to stitch against
	OutcomeStale         Outcome = "stale"          // Segment already consumed
	OutcomeHalted        Outcome = "halted"         // Recording carries a fault
)

// Result is the outcome of processing one segment
type Result struct {
	Outcome   Outcome
	Sentences []model.Sentence // Newly numbered sentences
	Changes   int              // Stitch edits applied at the boundary
	Advanced  bool             // The segment counter moved forward
}

// Tracker is the per-recording segment state machine
type Tracker struct {
	store     Store
	stitcher  *stitch.Stitcher
	segmenter *segment.Segmenter
	logger    *zap.Logger
}

// NewTracker creates a tracker
func NewTracker(st Store, stitcher *stitch.Stitcher, segmenter *segment.Segmenter, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: st, stitcher: stitcher, segmenter: segmenter, logger: logger}
}

// ProcessSegment consumes segment index of a recording if its predecessor
// is available. Ordering violations are outcomes, not errors. Errors leave
// the stored segment in place so a redelivery can retry it.
func (t *Tracker) ProcessSegment(ctx context.Context, recordingID string, index int) (Result, error) {
	if index < 1 {
		return Result{}, fmt.Errorf("segment index %d: must be positive", index)
	}
	log := t.logger.With(zap.String("recording", recordingID), zap.Int("segment", index))

	rec, err := t.store.GetRecording(ctx, recordingID)
	if err != nil {
		return Result{}, err
	}
	if rec.Fault != "" {
		log.Warn("recording halted", zap.String("fault", rec.Fault))
		return Result{Outcome: OutcomeHalted}, nil
	}
	if index > rec.NextSegment {
		log.Debug("segment premature", zap.Int("next_segment", rec.NextSegment))
		return Result{Outcome: OutcomeDeferred}, nil
	}

	cur, err := t.store.GetRawSegment(ctx, recordingID, index)
	if err != nil {
		return Result{}, err
	}
	if cur == nil {
		log.Debug("segment already consumed")
		return Result{Outcome: OutcomeStale}, nil
	}

	if index == 1 {
		if rec.NextSegment != 1 {
			return Result{Outcome: OutcomeNoPredecessor}, nil
		}
		if err := t.store.AdvanceSegment(ctx, recordingID, 1, rec.Version); err != nil {
			return Result{}, err
		}
		log.Debug("first segment accepted")
		return Result{Outcome: OutcomeBootstrapped, Advanced: true}, nil
	}

	prevWords, fromRemainder, found, err := t.predecessor(ctx, recordingID, index-1)
	if err != nil {
		return Result{}, err
	}
	if !found {
		if index == rec.NextSegment {
			if err := t.checkOrphan(ctx, rec, index); err != nil {
				return Result{}, err
			}
		}
		log.Debug("no predecessor to stitch against")
		return Result{Outcome: OutcomeNoPredecessor}, nil
	}

	stitched := t.stitcher.Stitch(
		stitch.Segment{Index: index - 1, Words: prevWords},
		stitch.Segment{Index: index, Words: cur.Words},
	)
	out := t.segmenter.Segment(index-1, stitched.Previous, index, stitched.Current)

	advance := index == rec.NextSegment
	sentences, err := t.store.CommitStitch(ctx, store.StitchCommit{
		RecordingID:       recordingID,
		PrevIndex:         index - 1,
		PrevFromRemainder: fromRemainder,
		CurIndex:          index,
		Remainder: model.RemainderSentence{
			RecordingID:  recordingID,
			SegmentIndex: index,
			Text:         model.JoinWords(out.Remainder),
			Words:        out.Remainder,
		},
		Sentences:     out.Sentences,
		Advance:       advance,
		ExpectVersion: rec.Version,
	})
	if err != nil {
		return Result{}, fmt.Errorf("commit segment %d: %w", index, err)
	}

	log.Info("segment consumed",
		zap.Int("sentences", len(sentences)),
		zap.Int("stitch_changes", stitched.Changes),
		zap.Bool("advanced", advance))

	return Result{
		Outcome:   OutcomeConsumed,
		Sentences: sentences,
		Changes:   stitched.Changes,
		Advanced:  advance,
	}, nil
}

// predecessor prefers the carried remainder over the raw segment
func (t *Tracker) predecessor(ctx context.Context, recordingID string, index int) ([]model.WordToken, bool, bool, error) {
	rem, err := t.store.GetRemainder(ctx, recordingID, index)
	if err != nil {
		return nil, false, false, err
	}
	if rem != nil {
		return rem.Words, true, true, nil
	}

	raw, err := t.store.GetRawSegment(ctx, recordingID, index)
	if err != nil {
		return nil, false, false, err
	}
	if raw != nil {
		return raw.Words, false, true, nil
	}
	return nil, false, false, nil
}

// checkOrphan detects a carried remainder that no later segment can reach.
// The recording is faulted so operators see it.
func (t *Tracker) checkOrphan(ctx context.Context, rec *model.RecordingState, index int) error {
	latest, err := t.store.LatestRemainder(ctx, rec.ID)
	if err != nil {
		return err
	}
	if latest == nil || latest.SegmentIndex >= index-1 {
		return nil
	}

	fault := fmt.Sprintf("remainder of segment %d is orphaned: segment %d expected but its predecessor %d is missing",
		latest.SegmentIndex, index, index-1)
	t.logger.Error("recording state inconsistent",
		zap.String("recording", rec.ID),
		zap.Int("segment", index),
		zap.Int("remainder_segment", latest.SegmentIndex))
	if err := t.store.SetFault(ctx, rec.ID, fault); err != nil {
		return fmt.Errorf("record fault: %w", err)
	}
	return fmt.Errorf("%s: %w", fault, ErrInconsistent)
}
