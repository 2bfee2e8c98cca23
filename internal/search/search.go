// Package search looks up background text about a book on the web. Lookups
// never fail: any problem yields a degraded fallback text.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/chenjf2025/BookQuoteApp/internal/metrics"
	"github.com/chenjf2025/BookQuoteApp/internal/outcome"
)

// Fallback reasons.
const (
	ReasonRequest   = "http_request"
	ReasonStatus    = "http_status"
	ReasonParse     = "parse"
	ReasonNoResults = "no_results"
)

const (
	defaultMaxResults = 5
	defaultTimeout    = 30 * time.Second
	maxBodyBytes      = 1 << 20
	userAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// ErrNoResults is returned when the page parsed but held no results.
var ErrNoResults = errors.New("no search results")

// SharedCache is a cache shared between instances, normally Redis.
type SharedCache interface {
	GetSearch(ctx context.Context, key string) (string, error)
	SetSearch(ctx context.Context, key, text string, ttl time.Duration) error
}

// Config configures a Client.
type Config struct {
	Endpoint   string
	MaxResults int
	CacheTTL   time.Duration
	Timeout    time.Duration // bounds one upstream lookup
	HTTPClient *http.Client
	Shared     SharedCache // optional
	Metrics    metrics.Recorder
	Logger     *slog.Logger
}

// Client queries the DuckDuckGo HTML endpoint.
type Client struct {
	endpoint   string
	maxResults int
	ttl        time.Duration
	timeout    time.Duration
	httpClient *http.Client
	local      *gocache.Cache
	shared     SharedCache
	group      singleflight.Group
	metrics    metrics.Recorder
	logger     *slog.Logger
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		maxResults: cfg.MaxResults,
		ttl:        cfg.CacheTTL,
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
		local:      gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		shared:     cfg.Shared,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With("component", "search"),
	}
}

// Query builds the search phrase for a book.
func Query(title string) string {
	return fmt.Sprintf("《%s》书籍 内容简介 作者核心观点 金句", title)
}

// FallbackText is the text used when a lookup fails.
func FallbackText(title string, err error) string {
	return fmt.Sprintf("Could not perform web search for %s. Error: %v", title, err)
}

// Lookup returns background text for title. Concurrent lookups for the same
// title share one upstream request, which outlives any single caller's
// context. A caller whose ctx ends first gets a degraded result on its own.
// Degraded results are never cached.
func (c *Client) Lookup(ctx context.Context, title string) outcome.Outcome[string] {
	key := cacheKey(title)

	if text, ok := c.local.Get(key); ok {
		c.metrics.IncSearchCache(metrics.CacheHitLocal)
		return outcome.OK(text.(string))
	}

	ch := c.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		if c.shared != nil {
			text, err := c.shared.GetSearch(ctx, key)
			if err == nil {
				c.metrics.IncSearchCache(metrics.CacheHitShared)
				c.local.Set(key, text, gocache.DefaultExpiration)
				return outcome.OK(text), nil
			}
		}
		c.metrics.IncSearchCache(metrics.CacheMiss)

		res := c.fetch(ctx, title)
		if res.Degraded {
			c.metrics.IncCollaboratorFallback(metrics.CollaboratorSearch)
			c.logger.Warn("search degraded", "title", title, "reason", res.Reason, "error", res.Err)
			return res, nil
		}

		c.local.Set(key, res.Value, gocache.DefaultExpiration)
		if c.shared != nil {
			if err := c.shared.SetSearch(ctx, key, res.Value, c.ttl); err != nil {
				c.logger.Warn("shared search cache write failed", "error", err)
			}
		}
		return res, nil
	})

	select {
	case r := <-ch:
		return r.Val.(outcome.Outcome[string])
	case <-ctx.Done():
		c.metrics.IncCollaboratorFallback(metrics.CollaboratorSearch)
		return outcome.Fallback(FallbackText(title, ctx.Err()), ReasonRequest, ctx.Err())
	}
}

func (c *Client) fetch(ctx context.Context, title string) outcome.Outcome[string] {
	results, reason, err := c.search(ctx, Query(title))
	if err != nil {
		return outcome.Fallback(FallbackText(title, err), reason, err)
	}
	return outcome.OK(Format(results))
}

func (c *Client) search(ctx context.Context, query string) ([]Result, string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, ReasonRequest, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, ReasonRequest, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.5")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ReasonRequest, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ReasonStatus, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, ReasonRequest, fmt.Errorf("read response: %w", err)
	}

	results, err := ParseResults(string(body), c.maxResults)
	if err != nil {
		return nil, ReasonParse, err
	}
	if len(results) == 0 {
		return nil, ReasonNoResults, ErrNoResults
	}
	return results, "", nil
}

// Format renders results as the context block fed to the language model.
func Format(results []Result) string {
	var sb strings.Builder
	for _, r := range results {
		fmt.Fprintf(&sb, "Title: %s\nSummary: %s\n\n", r.Title, r.Snippet)
	}
	return sb.String()
}

func cacheKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
