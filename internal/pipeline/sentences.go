package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/claimstream/internal/model"
	"github.com/ppiankov/claimstream/internal/store"
)

// importAttempts bounds retries when sentences are appended concurrently
const importAttempts = 3

// Sentences returns every sentence of a recording in number order
func (p *Pipeline) Sentences(ctx context.Context, recordingID string) ([]model.Sentence, error) {
	if _, err := p.store.GetRecording(ctx, recordingID); err != nil {
		return nil, err
	}
	sentences, err := p.store.ListSentences(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if sentences == nil {
		sentences = []model.Sentence{}
	}
	return sentences, nil
}

// RecentSentences returns the last n sentences, oldest first. A
// non-positive n uses the configured default.
func (p *Pipeline) RecentSentences(ctx context.Context, recordingID string, n int) ([]model.Sentence, error) {
	if n <= 0 {
		n = p.config.Pipeline.RecentSentences
	}
	rec, err := p.store.GetRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	latest, err := p.store.PrecedingSentences(ctx, rec.ID, math.MaxInt, n)
	if err != nil {
		return nil, err
	}
	out := make([]model.Sentence, 0, len(latest))
	for i := len(latest) - 1; i >= 0; i-- {
		out = append(out, latest[i])
	}
	return out, nil
}

// Sentence returns one sentence. A sentence still waiting for claim
// detection reports ErrNotReady until the not-ready window has passed.
func (p *Pipeline) Sentence(ctx context.Context, recordingID string, number int) (*model.Sentence, error) {
	if number < 1 {
		return nil, fmt.Errorf("%w: sentence number %d must be positive", ErrInvalidInput, number)
	}
	sent, err := p.store.GetSentence(ctx, recordingID, number)
	if err != nil {
		return nil, err
	}
	if sent.Status == model.StatusPending && p.now().Sub(sent.UpdatedAt) < p.config.Pipeline.NotReadyWindow {
		return nil, fmt.Errorf("sentence %s/%d: %w", recordingID, number, ErrNotReady)
	}
	return sent, nil
}

// SentenceUpdate is a partial sentence correction. Nil fields are left as they are.
type SentenceUpdate struct {
	Text       *string   `json:"text,omitempty"`
	Speaker    *string   `json:"speaker,omitempty"`
	Annotation *string   `json:"annotation,omitempty"`
	Claims     *[]string `json:"claims,omitempty"`
}

// CorrectSentence applies a correction. Changing the text drops the word
// timings and queues claim detection again once the change is stored.
func (p *Pipeline) CorrectSentence(ctx context.Context, recordingID string, number int, upd SentenceUpdate) (*model.Sentence, error) {
	if upd.Text != nil && strings.TrimSpace(*upd.Text) == "" {
		return nil, fmt.Errorf("%w: text must not be empty", ErrInvalidInput)
	}
	sent, err := p.store.GetSentence(ctx, recordingID, number)
	if err != nil {
		return nil, err
	}

	redetect := false
	if upd.Text != nil {
		text := strings.TrimSpace(*upd.Text)
		if text != sent.Text {
			sent.Text = text
			sent.Words = nil
			sent.Status = model.StatusPending
			redetect = true
		}
	}
	if upd.Speaker != nil {
		sent.Speaker = strings.TrimSpace(*upd.Speaker)
	}
	if upd.Annotation != nil {
		sent.Annotation = *upd.Annotation
	}
	// Reviewed claims are stored first so re-detection reconciles against them
	if upd.Claims != nil {
		sent.Claims = normalizeClaims(*upd.Claims)
	}
	sent.UpdatedAt = p.now()

	if err := p.store.PutSentence(ctx, *sent); err != nil {
		return nil, err
	}
	if redetect {
		if err := p.enqueueClaim(ctx, recordingID, number); err != nil {
			p.logger.Warn("enqueue claim detection", zap.Error(err))
		}
	}
	p.notify(EventUpdated, recordingID, *sent)
	return sent, nil
}

func normalizeClaims(in []string) []string {
	var out []string
	for _, c := range in {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// ImportSummary reports the sentences touched by a text import
type ImportSummary struct {
	Updated *model.Sentence  `json:"updated,omitempty"`
	Created []model.Sentence `json:"created"`
}

// ImportText appends free-form text to a recording's sentences, extending
// the last sentence when the text continues it. The recording is created
// if needed.
func (p *Pipeline) ImportText(ctx context.Context, recordingID, text string) (*ImportSummary, error) {
	if strings.TrimSpace(recordingID) == "" {
		return nil, fmt.Errorf("%w: recording id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text must not be empty", ErrInvalidInput)
	}
	rec, _, err := p.store.EnsureRecording(ctx, recordingID, model.DefaultRecordingName)
	if err != nil {
		return nil, fmt.Errorf("ensure recording: %w", err)
	}

	var summary *ImportSummary
	for attempt := 1; ; attempt++ {
		summary, err = p.importOnce(ctx, rec, text)
		if err == nil || !errors.Is(err, store.ErrConflict) || attempt == importAttempts {
			break
		}
		p.logger.Debug("import raced with new sentences, retrying", zap.Int("attempt", attempt))
	}
	if err != nil {
		return nil, fmt.Errorf("import text: %w", err)
	}

	touched := summary.Created
	if summary.Updated != nil {
		touched = append([]model.Sentence{*summary.Updated}, touched...)
	}
	for _, s := range touched {
		if err := p.enqueueClaim(ctx, recordingID, s.Number); err != nil {
			p.logger.Warn("enqueue claim detection", zap.Error(err))
		}
	}
	if summary.Updated != nil {
		p.notify(EventUpdated, recordingID, *summary.Updated)
	}
	p.notify(EventSentences, recordingID, summary.Created...)
	return summary, nil
}

func (p *Pipeline) importOnce(ctx context.Context, rec *model.RecordingState, text string) (*ImportSummary, error) {
	last, err := p.store.LatestSentence(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	expectMax, source := 0, 1
	if last != nil {
		expectMax, source = last.Number, last.SourceSegment
	}

	res := p.importer.Import(last, source, text)
	now := p.now()
	for i := range res.Created {
		res.Created[i].RecordingID = rec.ID
		res.Created[i].CreatedAt = now
		res.Created[i].UpdatedAt = now
	}
	if res.Updated != nil {
		res.Updated.UpdatedAt = now
	}

	if err := p.store.CommitImport(ctx, store.ImportCommit{
		RecordingID: rec.ID,
		ExpectMax:   expectMax,
		Updated:     res.Updated,
		Created:     res.Created,
	}); err != nil {
		return nil, err
	}

	created := res.Created
	if created == nil {
		created = []model.Sentence{}
	}
	return &ImportSummary{Updated: res.Updated, Created: created}, nil
}
