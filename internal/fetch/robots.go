package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

const (
	// robotsTTL bounds how long a host's rules are trusted
	robotsTTL = 6 * time.Hour
	// robotsFailureTTL is how long an unreachable robots.txt counts as "allow all"
	robotsFailureTTL = 10 * time.Minute
)

// RobotsChecker answers robots.txt questions for evidence page fetches.
// Rules are cached per origin and concurrent lookups for one origin share a
// single request.
type RobotsChecker struct {
	rules      *gocache.Cache
	inflight   singleflight.Group
	httpClient *http.Client
	userAgent  string
	agent      string
}

// robotsEntry is a cached lookup; nil data means no usable robots.txt
type robotsEntry struct {
	data *robotstxt.RobotsData
}

// NewRobotsChecker creates a new robots.txt checker
func NewRobotsChecker(userAgent string, client *http.Client) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RobotsChecker{
		rules:      gocache.New(robotsTTL, robotsTTL),
		httpClient: client,
		userAgent:  userAgent,
		agent:      NormalizeUserAgent(userAgent),
	}
}

// CanFetch reports whether rawURL may be fetched and the crawl delay the
// host asks for
func (r *RobotsChecker) CanFetch(ctx context.Context, rawURL string) (bool, time.Duration, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, 0, fmt.Errorf("parse URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false, 0, fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}

	entry := r.lookup(ctx, parsed.Scheme+"://"+parsed.Host)
	if entry.data == nil {
		return true, 0, nil
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	allowed := entry.data.TestAgent(path, r.agent)

	var crawlDelay time.Duration
	if group := entry.data.FindGroup(r.agent); group != nil {
		crawlDelay = group.CrawlDelay
	}
	return allowed, crawlDelay, nil
}

func (r *RobotsChecker) lookup(ctx context.Context, origin string) robotsEntry {
	if cached, ok := r.rules.Get(origin); ok {
		return cached.(robotsEntry)
	}

	v, _, _ := r.inflight.Do(origin, func() (interface{}, error) {
		data, err := r.fetch(ctx, origin+"/robots.txt")
		if err != nil {
			entry := robotsEntry{}
			r.rules.Set(origin, entry, robotsFailureTTL)
			return entry, nil
		}
		entry := robotsEntry{data: data}
		r.rules.Set(origin, entry, gocache.DefaultExpiration)
		return entry, nil
	})
	return v.(robotsEntry)
}

func (r *RobotsChecker) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// FromResponse maps 4xx to allow-all and 5xx to disallow-all
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}

// NormalizeUserAgent reduces a User-Agent header to the product token
// robots.txt groups are matched against
func NormalizeUserAgent(ua string) string {
	parts := strings.Fields(ua)
	if len(parts) > 0 {
		return strings.Split(parts[0], "/")[0]
	}
	return ua
}
