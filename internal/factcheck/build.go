package factcheck

import (
	"go.uber.org/zap"

	"github.com/ppiankov/claimstream/internal/cache"
	"github.com/ppiankov/claimstream/internal/fetch"
	"github.com/ppiankov/claimstream/internal/llm"
	"github.com/ppiankov/claimstream/internal/model"
	"github.com/ppiankov/claimstream/internal/validate"
	"github.com/ppiankov/claimstream/internal/worker"
)

// Deps are the collaborators of a configured cascade. Provider and Cache
// may be nil.
type Deps struct {
	Database FactCheckSearcher
	Provider llm.Provider
	Cache    cache.Cache
	Limiter  *worker.Limiter
	Logger   *zap.Logger
}

// NewFromConfig assembles the full cascade from configuration
func NewFromConfig(cfg model.Config, deps Deps) *Cascade {
	fc := cfg.FactCheck
	limiter := deps.Limiter
	if limiter == nil {
		limiter = worker.NewLimiterFromConfig(fc)
	}

	fetcher := fetch.NewFetcherFromConfig(fc, limiter)
	client := fetcher.HTTPClient()
	authority := validate.NewAuthorityClassifier(&cfg.Authority)
	gatherer := validate.NewValidator(fetcher, fc.ReviewPages, authority)

	var reviewer ClaimReviewer
	if deps.Provider != nil {
		reviewer = llm.NewReviewer(deps.Provider, cfg.LLM.Model, cfg.LLM.StrictEvidence)
	}

	var database Source
	if deps.Database != nil {
		database = NewDatabaseSource(deps.Database, fc.MinSimilarity, fc.MaxResults)
	}
	google := NewCachedSource(NewGoogleSource(fc, client, limiter), deps.Cache, cfg.Cache.DiskTTL, deps.Logger)
	search := NewCachedSource(
		NewSearchReviewSource(fc, client, limiter, authority, gatherer, reviewer),
		deps.Cache, cfg.Cache.DiskTTL, deps.Logger,
	)

	return NewCascade(database, google, search, deps.Logger)
}
