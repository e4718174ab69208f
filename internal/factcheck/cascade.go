package factcheck

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/claimstream/internal/model"
	"github.com/ppiankov/claimstream/internal/score"
)

// Cascade runs the database, aggregator and search-and-review stages in
// order and stops at the first stage that returns anything.
type Cascade struct {
	database Source
	google   Source
	search   Source
	scorer   *score.Scorer
	logger   *zap.Logger
}

// NewCascade creates a cascade. Nil stages are skipped.
func NewCascade(database, google, search Source, logger *zap.Logger) *Cascade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cascade{database: database, google: google, search: search, scorer: score.NewScorer(), logger: logger}
}

// FactCheck verifies claim. The speaker, when given, replaces first-person
// markers before any stage runs; the envelope keeps the original text.
// Stage failures are logged and count as empty results. Only an unknown
// selector is an error.
func (c *Cascade) FactCheck(ctx context.Context, claim, speaker, source string) (*model.FactCheckResult, error) {
	sel, err := ParseSource(source)
	if err != nil {
		return nil, err
	}

	checked := NormalizeSpeaker(claim, speaker)
	log := c.logger.With(zap.String("claim", claim), zap.String("source", string(sel)))
	if checked != claim {
		log.Debug("claim rewritten with speaker", zap.String("checked_claim", checked))
	}

	result := &model.FactCheckResult{
		OriginalClaim: claim,
		CheckedClaim:  checked,
		Results:       []model.ProviderResult{},
	}

	for _, stage := range c.stages(sel) {
		if stage == nil {
			continue
		}
		found := c.run(ctx, log, stage, checked)
		if len(found) > 0 {
			result.Source = stage.Name()
			result.Results = found
			result.Support = c.scorer.Assess(found)
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return result, nil
}

func (c *Cascade) stages(sel Selector) []Source {
	switch sel {
	case SelectDatabase:
		return []Source{c.database}
	case SelectGoogle:
		return []Source{c.google}
	case SelectSearch:
		return []Source{c.search}
	default:
		return []Source{c.database, c.google, c.search}
	}
}

func (c *Cascade) run(ctx context.Context, log *zap.Logger, stage Source, claim string) []model.ProviderResult {
	start := time.Now()
	found, err := stage.Check(ctx, claim)
	log = log.With(zap.String("stage", stage.Name()), zap.Duration("elapsed", time.Since(start)))

	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Debug("fact-check stage cancelled")
		} else {
			log.Warn("fact-check stage failed", zap.Error(err))
		}
		return nil
	}
	log.Debug("fact-check stage finished", zap.Int("results", len(found)))
	return found
}
