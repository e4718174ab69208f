package factcheck

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimstream/internal/cache"
	"github.com/ppiankov/claimstream/internal/extract"
	"github.com/ppiankov/claimstream/internal/llm"
	"github.com/ppiankov/claimstream/internal/model"
	"github.com/ppiankov/claimstream/internal/validate"
)

type fakeSearcher struct {
	entries  []model.FactCheckEntry
	err      error
	keywords []string
}

func (f *fakeSearcher) SearchFactChecks(_ context.Context, keywords []string, _ int) ([]model.FactCheckEntry, error) {
	f.keywords = keywords
	return f.entries, f.err
}

func TestDatabaseSource_Check(t *testing.T) {
	searcher := &fakeSearcher{entries: []model.FactCheckEntry{
		{Claim: "Unemployment is at its lowest level since 1975", Rating: "True"},
		{Claim: "Unemployment doubled under the last government", Rating: "False"},
		{Claim: "The lowest unemployment level since 1975 was reported", Rating: "Mostly true"},
	}}
	src := NewDatabaseSource(searcher, 0.3, 5)

	results, err := src.Check(context.Background(), "Unemployment is at its lowest level since 1975")
	require.NoError(t, err)

	assert.Contains(t, searcher.keywords, "unemployment")
	require.NotEmpty(t, results)
	assert.Equal(t, "True", results[0].Rating)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
		assert.GreaterOrEqual(t, results[i].Score, 0.3)
	}
	for _, r := range results {
		assert.Equal(t, "database", r.Source)
	}
}

func TestDatabaseSource_CapsResults(t *testing.T) {
	searcher := &fakeSearcher{}
	for i := 0; i < 10; i++ {
		searcher.entries = append(searcher.entries, model.FactCheckEntry{Claim: "Taxes rose sharply", Rating: "False"})
	}
	src := NewDatabaseSource(searcher, 0.3, 3)

	results, err := src.Check(context.Background(), "Taxes rose sharply")
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestDatabaseSource_NoKeywords(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("must not be called")}
	src := NewDatabaseSource(searcher, 0.3, 3)

	results, err := src.Check(context.Background(), "it is so")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDatabaseSource_StoreError(t *testing.T) {
	src := NewDatabaseSource(&fakeSearcher{err: errors.New("locked")}, 0.3, 3)
	_, err := src.Check(context.Background(), "Taxes rose sharply")
	assert.Error(t, err)
}

func TestGoogleSource_Check(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Taxes rose sharply", r.URL.Query().Get("query"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "en-US", r.URL.Query().Get("languageCode"))
		assert.Equal(t, "2", r.URL.Query().Get("pageSize"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"claims":[
			{"text":"Taxes rose sharply","claimant":"Ann","claimReview":[
				{"publisher":{"name":"Full Fact","site":"fullfact.org"},"url":"https://fullfact.org/a","title":"Taxes","reviewDate":"2024-03-01T00:00:00Z","textualRating":"Misleading"},
				{"publisher":{"site":"politifact.com"},"url":"https://politifact.com/b","textualRating":"False"},
				{"publisher":{"name":"Other"},"url":"https://other.example/c","textualRating":"True"}
			]}
		]}`))
	}))
	defer server.Close()

	cfg := model.FactCheckConfig{GoogleFactCheckURL: server.URL, GoogleAPIKey: "test-key", MaxResults: 2}
	src := NewGoogleSource(cfg, server.Client(), nil)

	results, err := src.Check(context.Background(), "Taxes rose sharply")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "google", results[0].Source)
	assert.Equal(t, "Misleading", results[0].Rating)
	assert.Equal(t, "Full Fact", results[0].Publisher)
	assert.Equal(t, "Ann", results[0].Claimant)
	require.NotNil(t, results[0].ReviewedAt)
	assert.Equal(t, 2024, results[0].ReviewedAt.Year())
	assert.Equal(t, "politifact.com", results[1].Publisher)
	assert.Nil(t, results[1].ReviewedAt)
}

func TestGoogleSource_Errors(t *testing.T) {
	t.Run("no key", func(t *testing.T) {
		src := NewGoogleSource(model.FactCheckConfig{GoogleFactCheckURL: "http://unused"}, nil, nil)
		_, err := src.Check(context.Background(), "Taxes rose")
		assert.Error(t, err)
	})

	t.Run("bad status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota", http.StatusTooManyRequests)
		}))
		defer server.Close()

		src := NewGoogleSource(model.FactCheckConfig{GoogleFactCheckURL: server.URL, GoogleAPIKey: "k"}, server.Client(), nil)
		_, err := src.Check(context.Background(), "Taxes rose")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})
}

type countingLimiter struct{ n atomic.Int32 }

func (l *countingLimiter) Wait(context.Context, string) error {
	l.n.Add(1)
	return nil
}

type stubGatherer struct {
	pages map[string]*extract.Page
	seen  []string
}

func (g *stubGatherer) Validate(_ context.Context, hits []validate.RankedHit) []validate.Checked {
	out := make([]validate.Checked, len(hits))
	for i, h := range hits {
		g.seen = append(g.seen, h.Hit.URL)
		if p, ok := g.pages[h.Hit.URL]; ok {
			out[i] = validate.Checked{RankedHit: h, Page: p}
		} else {
			out[i] = validate.Checked{RankedHit: h, Err: errors.New("unreachable")}
		}
	}
	return out
}

type stubReviewer struct {
	verdict  *llm.Verdict
	err      error
	evidence []llm.Evidence
}

func (r *stubReviewer) Review(_ context.Context, _ string, evidence []llm.Evidence) (*llm.Verdict, error) {
	r.evidence = evidence
	return r.verdict, r.err
}

func newSearchServers(t *testing.T) (custom, news *httptest.Server) {
	t.Helper()
	custom = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cx-1", r.URL.Query().Get("cx"))
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []map[string]string{
			{"title": "Blog post", "link": "https://blog.example/post", "snippet": "taxes"},
			{"title": "Tax statistics", "link": "https://www.ons.gov.uk/taxes", "snippet": "official tax data"},
		}})
	}))
	news = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "news-key", r.Header.Get("x-api-token"))
		_ = json.NewEncoder(w).Encode(map[string]any{"articles": []map[string]string{
			{"title": "Duplicate", "link": "http://ons.gov.uk/taxes/", "excerpt": "dup"},
			{"title": "Fact check: taxes", "link": "https://fullfact.org/taxes", "excerpt": "rating", "name_source": "Full Fact"},
		}})
	}))
	t.Cleanup(custom.Close)
	t.Cleanup(news.Close)
	return custom, news
}

func searchConfig(custom, news string) model.FactCheckConfig {
	return model.FactCheckConfig{
		GoogleAPIKey:      "g-key",
		SearchEngineID:    "cx-1",
		NewscatcherAPIKey: "news-key",
		CustomSearchURL:   custom,
		NewscatcherURL:    news,
		MaxResults:        5,
		MinSimilarity:     0.3,
		ReviewPages:       2,
	}
}

func TestSearchReviewSource_ReviewsTopAuthorities(t *testing.T) {
	custom, news := newSearchServers(t)
	gatherer := &stubGatherer{pages: map[string]*extract.Page{
		"https://www.ons.gov.uk/taxes": {Title: "Taxes bulletin", Text: "Income taxes rose by 4% in 2023 according to official figures. Unrelated filler sentence about the weather today."},
	}}
	reviewer := &stubReviewer{verdict: &llm.Verdict{
		Rating:    "Mostly true",
		Summary:   "Official figures show a rise.",
		CitedURLs: []string{"https://www.ons.gov.uk/taxes"},
	}}
	limiter := &countingLimiter{}
	src := NewSearchReviewSource(searchConfig(custom.URL, news.URL), nil, limiter, nil, gatherer, reviewer)

	results, err := src.Check(context.Background(), "Income taxes rose by 4% in 2023")
	require.NoError(t, err)

	// primary and secondary sources outrank the blog, duplicates removed
	assert.Equal(t, []string{"https://www.ons.gov.uk/taxes", "https://fullfact.org/taxes"}, gatherer.seen)
	assert.EqualValues(t, 2, limiter.n.Load())

	require.Len(t, reviewer.evidence, 2)
	assert.Contains(t, reviewer.evidence[0].Text, "Income taxes rose by 4%")
	assert.NotContains(t, reviewer.evidence[0].Text, "weather")

	require.Len(t, results, 1)
	assert.Equal(t, "search", results[0].Source)
	assert.Equal(t, "Mostly true", results[0].Rating)
	assert.Equal(t, "Taxes bulletin", results[0].Title)
	assert.Equal(t, model.TierPrimary, results[0].Authority)
}

func TestSearchReviewSource_PublishedClaimReview(t *testing.T) {
	custom, news := newSearchServers(t)
	gatherer := &stubGatherer{pages: map[string]*extract.Page{
		"https://fullfact.org/taxes": {
			Title: "Did taxes rise?",
			ClaimReviews: []extract.ClaimReview{
				{ClaimReviewed: "Income taxes rose by 4% in 2023", Rating: "Correct", Author: "Full Fact"},
			},
		},
	}}
	reviewer := &stubReviewer{err: errors.New("must not be called")}
	src := NewSearchReviewSource(searchConfig(custom.URL, news.URL), nil, nil, nil, gatherer, reviewer)

	results, err := src.Check(context.Background(), "Income taxes rose by 4% in 2023")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Correct", results[0].Rating)
	assert.Equal(t, "https://fullfact.org/taxes", results[0].URL)
	assert.Nil(t, reviewer.evidence)
}

func TestSearchReviewSource_Unverifiable(t *testing.T) {
	custom, news := newSearchServers(t)
	reviewer := &stubReviewer{verdict: &llm.Verdict{Rating: "Unverifiable"}}
	src := NewSearchReviewSource(searchConfig(custom.URL, news.URL), nil, nil, nil, &stubGatherer{}, reviewer)

	results, err := src.Check(context.Background(), "Income taxes rose by 4% in 2023")
	require.NoError(t, err)
	assert.Empty(t, results)
	// snippets still reach the reviewer when pages are unreachable
	assert.Len(t, reviewer.evidence, 2)
}

func TestSearchReviewSource_NoEngines(t *testing.T) {
	src := NewSearchReviewSource(model.FactCheckConfig{}, nil, nil, nil, nil, nil)
	_, err := src.Check(context.Background(), "Taxes rose")
	assert.Error(t, err)
}

func TestSearchReviewSource_OneEngineFailing(t *testing.T) {
	custom, _ := newSearchServers(t)
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	src := NewSearchReviewSource(searchConfig(custom.URL, broken.URL), nil, nil, nil, nil, nil)
	results, err := src.Check(context.Background(), "Income taxes rose")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Empty(t, r.Rating)
	}
}

func TestDedupeHits(t *testing.T) {
	hits := []model.SearchHit{
		{URL: "https://www.example.com/a/"},
		{URL: "http://example.com/a"},
		{URL: ""},
		{URL: "https://example.com/b"},
	}
	got := dedupeHits(hits)
	require.Len(t, got, 2)
	assert.Equal(t, "https://www.example.com/a/", got[0].URL)
	assert.Equal(t, "https://example.com/b", got[1].URL)
}

func TestCachedSource(t *testing.T) {
	inner := &fakeSource{name: "google", results: hit("google")}
	src := NewCachedSource(inner, cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, nil)

	for i := 0; i < 3; i++ {
		results, err := src.Check(context.Background(), "Taxes rose sharply")
		require.NoError(t, err)
		require.Len(t, results, 1)
	}
	assert.Equal(t, 1, inner.calls())

	_, err := src.Check(context.Background(), "  TAXES ROSE SHARPLY ")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls(), "equivalent claims share an entry")
}

func TestCachedSource_EmptyNotCached(t *testing.T) {
	inner := &fakeSource{name: "google"}
	src := NewCachedSource(inner, cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, err := src.Check(context.Background(), "Taxes rose")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, inner.calls())
}

func TestCachedSource_NilCache(t *testing.T) {
	inner := &fakeSource{name: "google"}
	assert.Same(t, inner, NewCachedSource(inner, nil, time.Minute, nil))
	assert.True(t, strings.HasPrefix(cache.CacheKey("x"), "claimstream:v1:"))
}
