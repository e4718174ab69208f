// Package claims decides when a finalized sentence is sent for claim
// extraction and reconciles the detected claims with what is stored.
package claims

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/claimstream/internal/model"
)

// Extractor returns verbatim claim substrings of sentence
type Extractor interface {
	ExtractClaims(ctx context.Context, sentence, contextText string) ([]string, error)
}

// Store is the sentence persistence the orchestrator needs
type Store interface {
	GetSentence(ctx context.Context, recordingID string, number int) (*model.Sentence, error)
	PrecedingSentences(ctx context.Context, recordingID string, before, limit int) ([]model.Sentence, error)
	PutSentence(ctx context.Context, sent model.Sentence) error
}

// Orchestrator runs claim detection for single sentences
type Orchestrator struct {
	store            Store
	extractor        Extractor
	contextSentences int
	minWords         int
	logger           *zap.Logger
	now              func() time.Time
}

// NewOrchestrator creates an orchestrator from pipeline configuration
func NewOrchestrator(st Store, ex Extractor, cfg model.PipelineConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctxSize := cfg.ContextSentences
	if ctxSize <= 0 {
		ctxSize = 4
	}
	minWords := cfg.MinClaimWords
	if minWords <= 0 {
		minWords = 3
	}
	return &Orchestrator{
		store:            st,
		extractor:        ex,
		contextSentences: ctxSize,
		minWords:         minWords,
		logger:           logger,
		now:              time.Now,
	}
}

// Detect extracts claims for one sentence and persists the outcome. It
// reports whether the sentence was updated. Extraction failures count as
// "no claims"; only store failures return false.
func (o *Orchestrator) Detect(ctx context.Context, recordingID string, number int) bool {
	log := o.logger.With(zap.String("recording", recordingID), zap.Int("sentence", number))

	sent, err := o.store.GetSentence(ctx, recordingID, number)
	if err != nil {
		log.Error("load sentence", zap.Error(err))
		return false
	}

	if CountWords(sent.Text) > o.minWords {
		detected := o.extract(ctx, log, sent)
		sent.Claims = Reconcile(sent.Claims, detected)
	} else {
		sent.Claims = nil
	}
	sent.Status = model.StatusOK
	sent.UpdatedAt = o.now()

	if err := o.store.PutSentence(ctx, *sent); err != nil {
		log.Error("store claims", zap.Error(err))
		return false
	}
	log.Debug("claims detected", zap.Int("claims", len(sent.Claims)))
	return true
}

func (o *Orchestrator) extract(ctx context.Context, log *zap.Logger, sent *model.Sentence) []string {
	contextText, err := o.contextFor(ctx, sent)
	if err != nil {
		// Context is best effort
		log.Warn("load context sentences", zap.Error(err))
	}

	raw, err := o.extractor.ExtractClaims(ctx, sent.Text, contextText)
	if err != nil {
		log.Warn("claim extraction failed", zap.Error(err))
		return nil
	}

	var out []string
	for _, c := range raw {
		if c = NormalizeClaim(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// contextFor joins the preceding sentences oldest first
func (o *Orchestrator) contextFor(ctx context.Context, sent *model.Sentence) (string, error) {
	prev, err := o.store.PrecedingSentences(ctx, sent.RecordingID, sent.Number, o.contextSentences)
	if err != nil {
		return "", err
	}
	texts := make([]string, 0, len(prev))
	for i := len(prev) - 1; i >= 0; i-- {
		texts = append(texts, prev[i].Text)
	}
	return strings.Join(texts, " "), nil
}

// NormalizeClaim trims surrounding space and one trailing '.', ',' or '!'
func NormalizeClaim(claim string) string {
	claim = strings.TrimSpace(claim)
	if n := len(claim); n > 0 {
		switch claim[n-1] {
		case '.', ',', '!':
			claim = claim[:n-1]
		}
	}
	return claim
}

// Reconcile merges previously held claims into a fresh detection result.
// Held claims missing from detected are prepended in their original order.
// An empty detection clears the claims even when some were held.
func Reconcile(existing, detected []string) []string {
	if len(detected) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(detected))
	for _, c := range detected {
		seen[c] = struct{}{}
	}

	var out []string
	for _, c := range existing {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return append(out, detected...)
}

// CountWords counts whitespace-delimited words
func CountWords(text string) int {
	return len(strings.Fields(text))
}
