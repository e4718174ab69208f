package factcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ppiankov/claimstream/internal/extract"
	"github.com/ppiankov/claimstream/internal/model"
)

// RateLimiter gates outbound calls per target host
type RateLimiter interface {
	Wait(ctx context.Context, target string) error
}

// GoogleSource queries the Google Fact Check Tools claim search
type GoogleSource struct {
	endpoint   string
	apiKey     string
	language   string
	maxResults int
	client     *http.Client
	limiter    RateLimiter
}

type googleResponse struct {
	Claims []struct {
		Text        string `json:"text"`
		Claimant    string `json:"claimant"`
		ClaimReview []struct {
			Publisher struct {
				Name string `json:"name"`
				Site string `json:"site"`
			} `json:"publisher"`
			URL           string `json:"url"`
			Title         string `json:"title"`
			ReviewDate    string `json:"reviewDate"`
			TextualRating string `json:"textualRating"`
		} `json:"claimReview"`
	} `json:"claims"`
}

// NewGoogleSource creates a Google Fact Check stage. The limiter may be nil.
func NewGoogleSource(cfg model.FactCheckConfig, client *http.Client, limiter RateLimiter) *GoogleSource {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	return &GoogleSource{
		endpoint:   cfg.GoogleFactCheckURL,
		apiKey:     cfg.GoogleAPIKey,
		language:   "en-US",
		maxResults: maxResults,
		client:     client,
		limiter:    limiter,
	}
}

func (g *GoogleSource) Name() string { return string(SelectGoogle) }

// Check searches published claim reviews matching claim
func (g *GoogleSource) Check(ctx context.Context, claim string) ([]model.ProviderResult, error) {
	if g.apiKey == "" {
		return nil, errors.New("google fact check: no API key configured")
	}

	params := url.Values{}
	params.Set("query", claim)
	params.Set("key", g.apiKey)
	params.Set("languageCode", g.language)
	params.Set("pageSize", strconv.Itoa(g.maxResults))
	target := g.endpoint + "?" + params.Encode()

	var resp googleResponse
	if err := getJSON(ctx, g.client, g.limiter, target, nil, &resp); err != nil {
		return nil, fmt.Errorf("google fact check: %w", err)
	}

	var results []model.ProviderResult
	for _, c := range resp.Claims {
		for _, r := range c.ClaimReview {
			publisher := r.Publisher.Name
			if publisher == "" {
				publisher = r.Publisher.Site
			}
			results = append(results, model.ProviderResult{
				Source:     g.Name(),
				Claim:      c.Text,
				Claimant:   c.Claimant,
				Rating:     r.TextualRating,
				Title:      r.Title,
				URL:        r.URL,
				Publisher:  publisher,
				ReviewedAt: parseTime(r.ReviewDate),
				Score:      extract.Jaccard(claim, c.Text),
			})
			if len(results) == g.maxResults {
				return results, nil
			}
		}
	}
	return results, nil
}

// getJSON performs a rate-limited GET and decodes a JSON body into v
func getJSON(ctx context.Context, client *http.Client, limiter RateLimiter, target string, header http.Header, v any) error {
	if limiter != nil {
		if err := limiter.Wait(ctx, target); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vals := range header {
		for _, val := range vals {
			req.Header.Add(k, val)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
