package factcheck

import (
	"context"
	"fmt"
	"sort"

	"github.com/ppiankov/claimstream/internal/extract"
	"github.com/ppiankov/claimstream/internal/model"
)

// FactCheckSearcher looks up curated verdicts by keyword
type FactCheckSearcher interface {
	SearchFactChecks(ctx context.Context, keywords []string, limit int) ([]model.FactCheckEntry, error)
}

// candidatePool bounds the number of keyword matches scored per claim
const candidatePool = 50

// DatabaseSource checks claims against the internal fact-check database
type DatabaseSource struct {
	store         FactCheckSearcher
	minSimilarity float64
	maxResults    int
}

// NewDatabaseSource creates a database stage
func NewDatabaseSource(store FactCheckSearcher, minSimilarity float64, maxResults int) *DatabaseSource {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &DatabaseSource{store: store, minSimilarity: minSimilarity, maxResults: maxResults}
}

func (d *DatabaseSource) Name() string { return string(SelectDatabase) }

// Check returns stored verdicts whose claim is similar enough to claim,
// most similar first.
func (d *DatabaseSource) Check(ctx context.Context, claim string) ([]model.ProviderResult, error) {
	keywords := extract.Keywords(claim)
	if len(keywords) == 0 {
		return nil, nil
	}

	entries, err := d.store.SearchFactChecks(ctx, keywords, candidatePool)
	if err != nil {
		return nil, fmt.Errorf("search fact-check database: %w", err)
	}

	var results []model.ProviderResult
	for _, e := range entries {
		score := extract.Jaccard(claim, e.Claim)
		if score < d.minSimilarity {
			continue
		}
		created := e.CreatedAt
		results = append(results, model.ProviderResult{
			Source:     d.Name(),
			Claim:      e.Claim,
			Claimant:   e.Claimant,
			Rating:     e.Rating,
			URL:        e.URL,
			Publisher:  e.Publisher,
			Summary:    e.Summary,
			ReviewedAt: &created,
			Score:      score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > d.maxResults {
		results = results[:d.maxResults]
	}
	return results, nil
}
