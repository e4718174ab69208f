package factcheck

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/claimstream/internal/cache"
	"github.com/ppiankov/claimstream/internal/model"
)

// CachedSource memoizes non-empty results of an external source
type CachedSource struct {
	source Source
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedSource wraps source. With a nil cache the source is returned as is.
func NewCachedSource(source Source, c cache.Cache, ttl time.Duration, logger *zap.Logger) Source {
	if c == nil || source == nil {
		return source
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSource{source: source, cache: c, ttl: ttl, logger: logger}
}

func (c *CachedSource) Name() string { return c.source.Name() }

func (c *CachedSource) Check(ctx context.Context, claim string) ([]model.ProviderResult, error) {
	key := cache.CacheKey("factcheck", c.source.Name(), claim)

	var results []model.ProviderResult
	if cache.GetJSON(c.cache, key, &results) && len(results) > 0 {
		c.logger.Debug("fact-check cache hit", zap.String("stage", c.source.Name()))
		return results, nil
	}

	results, err := c.source.Check(ctx, claim)
	if err != nil || len(results) == 0 {
		return results, err
	}
	if err := cache.SetJSON(c.cache, key, results, c.ttl); err != nil {
		c.logger.Warn("fact-check cache write failed", zap.Error(err))
	}
	return results, nil
}
