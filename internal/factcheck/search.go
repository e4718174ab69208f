package factcheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ppiankov/claimstream/internal/extract"
	"github.com/ppiankov/claimstream/internal/llm"
	"github.com/ppiankov/claimstream/internal/model"
	"github.com/ppiankov/claimstream/internal/validate"
)

// EvidenceGatherer fetches and parses ranked evidence pages
type EvidenceGatherer interface {
	Validate(ctx context.Context, hits []validate.RankedHit) []validate.Checked
}

// ClaimReviewer judges a claim against gathered evidence
type ClaimReviewer interface {
	Review(ctx context.Context, claim string, evidence []llm.Evidence) (*llm.Verdict, error)
}

// passagesPerPage bounds the relevant sentences kept from each evidence page
const passagesPerPage = 6

// SearchReviewSource searches the web and news, fetches the most
// authoritative pages and asks a model to judge the claim against them.
// Pages carrying ClaimReview markup for the same claim are returned
// directly without review.
type SearchReviewSource struct {
	cfg       model.FactCheckConfig
	client    *http.Client
	limiter   RateLimiter
	authority *validate.AuthorityClassifier
	gatherer  EvidenceGatherer
	reviewer  ClaimReviewer
}

type customSearchResponse struct {
	Items []struct {
		Title       string `json:"title"`
		Link        string `json:"link"`
		Snippet     string `json:"snippet"`
		DisplayLink string `json:"displayLink"`
	} `json:"items"`
}

type newscatcherResponse struct {
	Articles []struct {
		Title         string `json:"title"`
		Link          string `json:"link"`
		Excerpt       string `json:"excerpt"`
		NameSource    string `json:"name_source"`
		DomainURL     string `json:"domain_url"`
		PublishedDate string `json:"published_date"`
	} `json:"articles"`
}

// NewSearchReviewSource creates a search-and-review stage. A nil reviewer
// returns the ranked evidence unjudged.
func NewSearchReviewSource(cfg model.FactCheckConfig, client *http.Client, limiter RateLimiter,
	authority *validate.AuthorityClassifier, gatherer EvidenceGatherer, reviewer ClaimReviewer) *SearchReviewSource {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if authority == nil {
		authority = validate.NewAuthorityClassifier(nil)
	}
	if cfg.ReviewPages <= 0 {
		cfg.ReviewPages = 3
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	return &SearchReviewSource{
		cfg:       cfg,
		client:    client,
		limiter:   limiter,
		authority: authority,
		gatherer:  gatherer,
		reviewer:  reviewer,
	}
}

func (s *SearchReviewSource) Name() string { return string(SelectSearch) }

// Check runs the search, gather and review steps for claim
func (s *SearchReviewSource) Check(ctx context.Context, claim string) ([]model.ProviderResult, error) {
	hits, err := s.search(ctx, claim)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ranked := s.authority.Rank(hits)
	if len(ranked) > s.cfg.ReviewPages {
		ranked = ranked[:s.cfg.ReviewPages]
	}

	var checked []validate.Checked
	if s.gatherer != nil {
		checked = s.gatherer.Validate(ctx, ranked)
	} else {
		checked = make([]validate.Checked, len(ranked))
		for i, r := range ranked {
			checked[i] = validate.Checked{RankedHit: r}
		}
	}

	if published := s.publishedReviews(claim, checked); len(published) > 0 {
		return published, nil
	}

	if s.reviewer == nil {
		return s.unjudged(claim, checked), nil
	}
	return s.review(ctx, claim, checked)
}

// search queries every configured engine. It fails only when no engine
// is configured or every configured engine failed.
func (s *SearchReviewSource) search(ctx context.Context, claim string) ([]model.SearchHit, error) {
	var (
		hits     []model.SearchHit
		errs     []error
		searched bool
	)

	if s.cfg.GoogleAPIKey != "" && s.cfg.SearchEngineID != "" {
		searched = true
		found, err := s.customSearch(ctx, claim)
		if err != nil {
			errs = append(errs, err)
		}
		hits = append(hits, found...)
	}
	if s.cfg.NewscatcherAPIKey != "" {
		searched = true
		found, err := s.newsSearch(ctx, claim)
		if err != nil {
			errs = append(errs, err)
		}
		hits = append(hits, found...)
	}

	if !searched {
		return nil, errors.New("search: no search engine configured")
	}
	if len(hits) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return dedupeHits(hits), nil
}

func (s *SearchReviewSource) customSearch(ctx context.Context, claim string) ([]model.SearchHit, error) {
	params := url.Values{}
	params.Set("key", s.cfg.GoogleAPIKey)
	params.Set("cx", s.cfg.SearchEngineID)
	params.Set("q", claim)
	params.Set("num", strconv.Itoa(min(s.cfg.MaxResults*2, 10)))

	var resp customSearchResponse
	if err := getJSON(ctx, s.client, s.limiter, s.cfg.CustomSearchURL+"?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("custom search: %w", err)
	}

	hits := make([]model.SearchHit, 0, len(resp.Items))
	for _, it := range resp.Items {
		hits = append(hits, model.SearchHit{
			URL:       it.Link,
			Title:     it.Title,
			Snippet:   it.Snippet,
			Publisher: it.DisplayLink,
			Engine:    "customsearch",
		})
	}
	return hits, nil
}

func (s *SearchReviewSource) newsSearch(ctx context.Context, claim string) ([]model.SearchHit, error) {
	params := url.Values{}
	params.Set("q", claim)
	params.Set("lang", "en")
	params.Set("page_size", strconv.Itoa(s.cfg.MaxResults*2))

	header := http.Header{}
	header.Set("x-api-token", s.cfg.NewscatcherAPIKey)

	var resp newscatcherResponse
	if err := getJSON(ctx, s.client, s.limiter, s.cfg.NewscatcherURL+"?"+params.Encode(), header, &resp); err != nil {
		return nil, fmt.Errorf("news search: %w", err)
	}

	hits := make([]model.SearchHit, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		publisher := a.NameSource
		if publisher == "" {
			publisher = a.DomainURL
		}
		hits = append(hits, model.SearchHit{
			URL:         a.Link,
			Title:       a.Title,
			Snippet:     a.Excerpt,
			Publisher:   publisher,
			PublishedAt: parseTime(a.PublishedDate),
			Engine:      "newscatcher",
		})
	}
	return hits, nil
}

// dedupeHits drops repeated URLs, ignoring scheme, "www." and trailing slash
func dedupeHits(hits []model.SearchHit) []model.SearchHit {
	seen := make(map[string]struct{}, len(hits))
	out := hits[:0]
	for _, h := range hits {
		if h.URL == "" {
			continue
		}
		key := strings.ToLower(h.URL)
		key = strings.TrimPrefix(strings.TrimPrefix(key, "https://"), "http://")
		key = strings.TrimSuffix(strings.TrimPrefix(key, "www."), "/")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, h)
	}
	return out
}

func (s *SearchReviewSource) publishedReviews(claim string, checked []validate.Checked) []model.ProviderResult {
	var results []model.ProviderResult
	for _, c := range checked {
		if !c.Accessible() {
			continue
		}
		for _, cr := range c.Page.ClaimReviews {
			score := extract.Jaccard(claim, cr.ClaimReviewed)
			if cr.Rating == "" || score < s.cfg.MinSimilarity {
				continue
			}
			link := cr.URL
			if link == "" {
				link = c.Hit.URL
			}
			publisher := cr.Author
			if publisher == "" {
				publisher = c.Hit.Publisher
			}
			results = append(results, model.ProviderResult{
				Source:     s.Name(),
				Claim:      cr.ClaimReviewed,
				Rating:     cr.Rating,
				Title:      firstNonEmpty(c.Page.Title, c.Hit.Title),
				URL:        link,
				Publisher:  publisher,
				ReviewedAt: parseTime(cr.DatePublished),
				Score:      score,
				Authority:  c.Tier,
			})
		}
	}
	if len(results) > s.cfg.MaxResults {
		results = results[:s.cfg.MaxResults]
	}
	return results
}

func (s *SearchReviewSource) unjudged(claim string, checked []validate.Checked) []model.ProviderResult {
	results := make([]model.ProviderResult, 0, len(checked))
	for _, c := range checked {
		results = append(results, evidenceResult(s.Name(), claim, c))
	}
	return results
}

func (s *SearchReviewSource) review(ctx context.Context, claim string, checked []validate.Checked) ([]model.ProviderResult, error) {
	evidence := make([]llm.Evidence, 0, len(checked))
	byURL := make(map[string]validate.Checked, len(checked))
	for _, c := range checked {
		e := llm.Evidence{
			URL:       c.Hit.URL,
			Title:     c.Hit.Title,
			Publisher: c.Hit.Publisher,
			Snippet:   c.Hit.Snippet,
		}
		if c.Accessible() {
			e.Text = strings.Join(extract.RelevantPassages(c.Page.Text, claim, passagesPerPage), " ")
		}
		if e.Text == "" && e.Snippet == "" {
			continue
		}
		evidence = append(evidence, e)
		byURL[c.Hit.URL] = c
	}
	if len(evidence) == 0 {
		return nil, nil
	}

	verdict, err := s.reviewer.Review(ctx, claim, evidence)
	if err != nil {
		return nil, fmt.Errorf("review: %w", err)
	}
	if verdict.Unverifiable() {
		return nil, nil
	}

	cited := verdict.CitedURLs
	if len(cited) == 0 {
		cited = []string{evidence[0].URL}
	}

	var results []model.ProviderResult
	for _, u := range cited {
		c, ok := byURL[u]
		if !ok {
			continue
		}
		r := evidenceResult(s.Name(), claim, c)
		r.Rating = verdict.Rating
		r.Summary = verdict.Summary
		results = append(results, r)
	}
	if len(results) == 0 {
		results = append(results, model.ProviderResult{
			Source:  s.Name(),
			Claim:   claim,
			Rating:  verdict.Rating,
			Summary: verdict.Summary,
		})
	}
	return results, nil
}

func evidenceResult(source, claim string, c validate.Checked) model.ProviderResult {
	r := model.ProviderResult{
		Source:    source,
		Title:     c.Hit.Title,
		URL:       c.Hit.URL,
		Publisher: c.Hit.Publisher,
		Summary:   c.Hit.Snippet,
		Authority: c.Tier,
		Score:     extract.Jaccard(claim, c.Hit.Title+" "+c.Hit.Snippet),
	}
	if c.Accessible() && c.Page.Title != "" {
		r.Title = c.Page.Title
	}
	return r
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
