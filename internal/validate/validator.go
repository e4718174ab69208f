package validate

import (
	"context"
	"sync"

	"github.com/ppiankov/claimstream/internal/extract"
	"github.com/ppiankov/claimstream/internal/fetch"
)

// PageFetcher retrieves a page for review
type PageFetcher interface {
	FetchWithRetry(ctx context.Context, rawURL string) (*fetch.FetchResult, error)
}

// Checked is a ranked hit after its page was fetched and parsed
type Checked struct {
	RankedHit
	Page *extract.Page
	Err  error
}

// Accessible reports whether the page was fetched and parsed
func (c Checked) Accessible() bool {
	return c.Err == nil && c.Page != nil
}

// Validator fetches evidence pages concurrently
type Validator struct {
	fetcher    PageFetcher
	maxWorkers int
	authority  *AuthorityClassifier
}

// NewValidator creates a new validator
func NewValidator(fetcher PageFetcher, maxWorkers int, authority *AuthorityClassifier) *Validator {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	if authority == nil {
		authority = NewAuthorityClassifier(nil)
	}
	return &Validator{
		fetcher:    fetcher,
		maxWorkers: maxWorkers,
		authority:  authority,
	}
}

// Authority returns the classifier used for ranking
func (v *Validator) Authority() *AuthorityClassifier {
	return v.authority
}

// Validate fetches and parses every ranked hit, preserving order.
// Failures are recorded per hit; the call itself never fails.
func (v *Validator) Validate(ctx context.Context, hits []RankedHit) []Checked {
	results := make([]Checked, len(hits))
	if len(hits) == 0 {
		return results
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, v.maxWorkers)

	for i, h := range hits {
		wg.Add(1)
		go func(idx int, hit RankedHit) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				results[idx] = Checked{RankedHit: hit, Err: ctx.Err()}
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			results[idx] = v.validateSingle(ctx, hit)
		}(i, h)
	}

	wg.Wait()
	return results
}

func (v *Validator) validateSingle(ctx context.Context, hit RankedHit) Checked {
	res, err := v.fetcher.FetchWithRetry(ctx, hit.Hit.URL)
	if err != nil {
		return Checked{RankedHit: hit, Err: err}
	}
	page, err := extract.ParsePage(res.HTML)
	if err != nil {
		return Checked{RankedHit: hit, Err: err}
	}
	return Checked{RankedHit: hit, Page: page}
}
