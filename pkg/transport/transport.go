// Package transport issues single, unretried page requests against the
// posts endpoint and maps failures onto typed errors.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/newsfeed-client/pkg/article"
	"github.com/Sternrassler/newsfeed-client/pkg/logging"
	"github.com/Sternrassler/newsfeed-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for transport operations.
var (
	newsRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "news_transport_requests_total",
		Help: "Total page requests by outcome",
	}, []string{"status"})

	newsRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "news_transport_request_duration_seconds",
		Help:    "Page request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 8 << 20

// PageResponse is the decoded wire payload for one page.
type PageResponse struct {
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
	Data       []article.Article `json:"data"`
}

// Config holds the transport configuration.
type Config struct {
	// BaseURL of the posts service, e.g. "https://jsonplaceholder.typicode.com".
	BaseURL string

	// PageSize is the number of posts per page (the _limit parameter).
	PageSize int

	// TotalItems is the known corpus size used to derive the page count.
	// Zero means read it from the X-Total-Count response header instead.
	TotalItems int

	// Timeout bounds each request, including reading the body.
	Timeout time.Duration

	// UserAgent header sent with every request.
	UserAgent string

	// RateLimit configures client-side pacing. Retry-After cooldowns are
	// off unless RateLimit.HonorRetryAfter is set.
	RateLimit ratelimit.Config

	// HTTPClient overrides the default client (for testing).
	HTTPClient *http.Client
}

// DefaultConfig returns the configuration for the public demo dataset.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "https://jsonplaceholder.typicode.com",
		PageSize:   10,
		TotalItems: 100,
		Timeout:    10 * time.Second,
		UserAgent:  "newsfeed-client/0.1.0",
		RateLimit:  ratelimit.DefaultConfig(),
	}
}

// Transport fetches single pages. It performs no retries and no caching.
type Transport struct {
	httpClient *http.Client
	endpoint   *url.URL
	limiter    *ratelimit.Limiter
	config     Config
	logger     zerolog.Logger
}

// New creates a Transport.
func New(cfg Config) (*Transport, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.PageSize < 1 {
		return nil, fmt.Errorf("page_size must be >= 1 (got %d)", cfg.PageSize)
	}
	if cfg.TotalItems < 0 {
		return nil, fmt.Errorf("total_items must be >= 0 (got %d)", cfg.TotalItems)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}
	endpoint := base.JoinPath("posts")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := logging.NewLogger(logging.ComponentTransport)

	return &Transport{
		httpClient: httpClient,
		endpoint:   endpoint,
		limiter:    ratelimit.New(cfg.RateLimit, logger),
		config:     cfg,
		logger:     logger,
	}, nil
}

// FetchPage performs one GET for the given 1-based page.
func (t *Transport) FetchPage(ctx context.Context, page int) (*PageResponse, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be >= 1 (got %d)", page)
	}

	start := time.Now()
	defer func() {
		newsRequestDuration.Observe(time.Since(start).Seconds())
	}()

	if err := t.limiter.Wait(ctx); err != nil {
		newsRequestsTotal.WithLabelValues("rate_limited").Inc()
		return nil, &TransportError{Message: "rate limiter wait", Err: err}
	}

	reqCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, t.pageURL(page), nil)
	if err != nil {
		return nil, &TransportError{Message: "create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if t.config.UserAgent != "" {
		req.Header.Set("User-Agent", t.config.UserAgent)
	}

	t.logger.Debug().Int("page", page).Str("url", req.URL.String()).Msg("Fetching page")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		newsRequestsTotal.WithLabelValues("network_error").Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TransportError{Message: "request timed out", Err: err}
		}
		return nil, &TransportError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	newsRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		t.limiter.UpdateFromHeaders(resp.Header)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TransportError{Message: "request timed out", Err: err}
		}
		return nil, &TransportError{Message: "read response body", Err: err}
	}

	articles, err := article.DecodeList(body)
	if err != nil {
		return nil, &TransportError{Message: "malformed response body", Err: err}
	}

	return &PageResponse{
		Page:       page,
		TotalPages: t.TotalPages(resp.Header),
		Data:       articles,
	}, nil
}

// TotalPages derives the page count from the configured corpus size, or
// from X-Total-Count when no size is configured.
func (t *Transport) TotalPages(headers http.Header) int {
	total := t.config.TotalItems
	if total == 0 {
		n, err := strconv.Atoi(headers.Get("X-Total-Count"))
		if err != nil || n < 0 {
			return article.UnknownTotalPages
		}
		total = n
	}
	return (total + t.config.PageSize - 1) / t.config.PageSize
}

// pageURL builds GET {base}/posts?_start=..&_limit=..
func (t *Transport) pageURL(page int) string {
	u := *t.endpoint
	q := url.Values{}
	q.Set("_start", strconv.Itoa((page-1)*t.config.PageSize))
	q.Set("_limit", strconv.Itoa(t.config.PageSize))
	u.RawQuery = q.Encode()
	return u.String()
}
