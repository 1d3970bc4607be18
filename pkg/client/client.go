// Package client provides the fetch orchestrator: page lookups served from
// the page cache when possible, otherwise fetched through the transport
// with retry, backoff and duplicate-fetch suppression.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/newsfeed-client/pkg/article"
	"github.com/Sternrassler/newsfeed-client/pkg/cache"
	"github.com/Sternrassler/newsfeed-client/pkg/inflight"
	"github.com/Sternrassler/newsfeed-client/pkg/logging"
	"github.com/Sternrassler/newsfeed-client/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for page lookups.
var (
	newsPageRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "news_page_requests_total",
		Help: "Total GetPage calls by how they were served",
	}, []string{"source"}) // "cache", "network", "shared", "error"

	newsPageRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "news_page_request_duration_seconds",
		Help:    "GetPage duration in seconds, including retries",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10},
	})

	newsFetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "news_fetch_errors_total",
		Help: "Total failed transport attempts by error class",
	}, []string{"class"})
)

// Fetcher fetches a single page without retrying. *transport.Transport
// implements it.
type Fetcher interface {
	FetchPage(ctx context.Context, page int) (*transport.PageResponse, error)
}

// Config holds the orchestrator configuration.
type Config struct {
	// Fetcher performs the network call. Required.
	Fetcher Fetcher

	// Cache stores fetched pages. Defaults to an in-memory store.
	Cache cache.Store

	// MaxRetries is the default total number of attempts per page.
	MaxRetries int

	// InitialBackoff is the default first backoff floor.
	InitialBackoff time.Duration

	// MaxJitter bounds the random delay added to every backoff.
	MaxJitter time.Duration
}

// DefaultConfig returns the default retry policy around fetcher.
func DefaultConfig(fetcher Fetcher) Config {
	return Config{
		Fetcher:        fetcher,
		Cache:          cache.NewMemory(),
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxJitter:      200 * time.Millisecond,
	}
}

// Client is the fetch orchestrator. It is the only writer of its page cache
// and in-flight set; create one per session and Close it when the consumer
// goes away.
type Client struct {
	fetcher  Fetcher
	cache    cache.Store
	inflight *inflight.Tracker[*article.PageResult]
	config   Config
	logger   zerolog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration

	closed atomic.Bool
}

// New creates an orchestrator.
func New(cfg Config) (*Client, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.InitialBackoff < 0 {
		return nil, fmt.Errorf("initial_backoff must be >= 0 (got %s)", cfg.InitialBackoff)
	}
	if cfg.MaxJitter < 0 {
		return nil, fmt.Errorf("max_jitter must be >= 0 (got %s)", cfg.MaxJitter)
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemory()
	}

	return &Client{
		fetcher:  cfg.Fetcher,
		cache:    cfg.Cache,
		inflight: inflight.New[*article.PageResult](),
		config:   cfg,
		logger:   logging.NewLogger(logging.ComponentFetcher),
		sleep:    sleepContext,
		jitter:   randomJitter,
	}, nil
}

// GetPage returns the articles of a 1-based page.
//
// A cached page is returned with TotalPages set to article.UnknownTotalPages
// and causes no network activity. Otherwise the page is fetched with retries;
// concurrent calls for the same page share one fetch and its outcome.
// Terminal failures return the last transport error unchanged.
func (c *Client) GetPage(ctx context.Context, page int, opts ...Option) (*article.PageResult, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if page < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPage, page)
	}

	policy := retryPolicy{
		maxRetries:     c.config.MaxRetries,
		initialBackoff: c.config.InitialBackoff,
		maxJitter:      c.config.MaxJitter,
	}
	for _, opt := range opts {
		opt(&policy)
	}
	if policy.maxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", policy.maxRetries)
	}

	start := time.Now()
	defer func() {
		newsPageRequestDuration.Observe(time.Since(start).Seconds())
	}()

	for {
		// Step 1: Check Cache
		if articles, ok := c.lookup(ctx, page); ok {
			newsPageRequestsTotal.WithLabelValues("cache").Inc()
			return cachedResult(page, articles), nil
		}

		// Step 2: Fetch if nobody else is
		if c.inflight.TryAcquire(page) {
			// A fetch may have stored the page between the lookup and the
			// acquire.
			if articles, ok := c.lookup(ctx, page); ok {
				c.inflight.Release(page)
				newsPageRequestsTotal.WithLabelValues("cache").Inc()
				return cachedResult(page, articles), nil
			}

			result, err := c.fetch(ctx, page, policy)
			if err != nil {
				newsPageRequestsTotal.WithLabelValues("error").Inc()
				return nil, err
			}
			newsPageRequestsTotal.WithLabelValues("network").Inc()
			return result, nil
		}

		// Step 3: Share the outcome of the fetch already running
		c.logger.Debug().Int("page", page).Msg("Page already in flight, waiting")
		outcome, err := c.inflight.Wait(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
		if outcome.Settled {
			if outcome.Err != nil {
				newsPageRequestsTotal.WithLabelValues("error").Inc()
				return nil, outcome.Err
			}
			newsPageRequestsTotal.WithLabelValues("shared").Inc()
			return copyResult(outcome.Value), nil
		}
		// The fetch was abandoned or finished before we started waiting.
	}
}

// fetch runs the retry loop for a page this call has acquired. The page is
// released on every exit path; abandoned fetches release without an outcome
// so waiters look again instead of inheriting a cancellation.
func (c *Client) fetch(ctx context.Context, page int, policy retryPolicy) (result *article.PageResult, err error) {
	settled := false
	defer func() {
		if settled {
			c.inflight.Complete(page, result, err)
		} else {
			c.inflight.Release(page)
		}
	}()

	c.logger.Debug().Int("page", page).Msg("Cache miss, fetching page")

	resp, err := c.retryWithBackoff(ctx, page, policy)
	if err != nil {
		settled = !errors.Is(err, ErrContextCancelled)
		return nil, err
	}

	articles := article.Clone(resp.Data)
	if articles == nil {
		articles = []article.Article{}
	}

	// The fetch already succeeded; store it even if the caller has gone.
	if err := c.cache.Put(context.WithoutCancel(ctx), page, articles); err != nil {
		c.logger.Warn().Err(err).Int("page", page).Msg("Failed to cache page")
	}

	settled = true
	return &article.PageResult{
		Articles:   article.Clone(articles),
		Page:       page,
		TotalPages: resp.TotalPages,
	}, nil
}

// lookup reads the cache, treating backend errors as misses.
func (c *Client) lookup(ctx context.Context, page int) ([]article.Article, bool) {
	articles, err := c.cache.Get(ctx, page)
	if err == nil {
		c.logger.Debug().Int("page", page).Msg("Cache hit")
		return articles, true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn().Err(err).Int("page", page).Msg("Cache get error")
	}
	return nil, false
}

// Clear drops every cached page.
func (c *Client) Clear(ctx context.Context) error {
	if err := c.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear page cache: %w", err)
	}
	c.logger.Debug().Msg("Page cache cleared")
	return nil
}

// Close disposes the client. Later GetPage calls fail with ErrClosed;
// fetches already running finish normally.
func (c *Client) Close() error {
	c.closed.Store(true)
	return nil
}

func cachedResult(page int, articles []article.Article) *article.PageResult {
	return &article.PageResult{
		Articles:   articles,
		Page:       page,
		TotalPages: article.UnknownTotalPages,
		Cached:     true,
	}
}

func copyResult(r *article.PageResult) *article.PageResult {
	if r == nil {
		return nil
	}
	return &article.PageResult{
		Articles:   article.Clone(r.Articles),
		Page:       r.Page,
		TotalPages: r.TotalPages,
		Cached:     r.Cached,
	}
}
