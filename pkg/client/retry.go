package client

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/Sternrassler/newsfeed-client/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	newsRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "news_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	newsRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "news_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16},
	}, []string{"error_class"})

	newsRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "news_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// retryPolicy holds the per-call retry parameters.
type retryPolicy struct {
	// maxRetries is the total number of transport attempts allowed.
	maxRetries int

	// initialBackoff is the wait floor before the second attempt; it doubles
	// after every wait.
	initialBackoff time.Duration

	// maxJitter bounds the uniform random delay added to each wait.
	maxJitter time.Duration
}

// Option adjusts the retry policy of a single GetPage call.
type Option func(*retryPolicy)

// WithMaxRetries sets the total number of transport attempts.
func WithMaxRetries(n int) Option {
	return func(p *retryPolicy) {
		p.maxRetries = n
	}
}

// WithInitialBackoff sets the first backoff floor.
func WithInitialBackoff(d time.Duration) Option {
	return func(p *retryPolicy) {
		p.initialBackoff = d
	}
}

// retryWithBackoff drives the fetcher until it succeeds, fails with a
// non-retryable error, or runs out of attempts. The last error seen is
// returned unchanged so callers can inspect it with errors.As.
func (c *Client) retryWithBackoff(ctx context.Context, page int, policy retryPolicy) (*transport.PageResponse, error) {
	backoff := policy.initialBackoff

	for attempt := 0; attempt < policy.maxRetries; {
		resp, err := c.fetcher.FetchPage(ctx, page)
		if err == nil && resp == nil {
			err = &transport.TransportError{Message: "empty response"}
		}
		if err == nil {
			if attempt > 0 {
				c.logger.Info().
					Int("page", page).
					Int("attempt", attempt+1).
					Msg("Page fetch succeeded after retry")
			}
			return resp, nil
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}

		errClass := transport.Classify(err)
		newsFetchErrorsTotal.WithLabelValues(string(errClass)).Inc()

		if !transport.IsRetryable(err) {
			c.logger.Warn().
				Err(err).
				Int("page", page).
				Str("error_class", string(errClass)).
				Msg("Non-retryable page fetch error")
			return nil, err
		}

		attempt++
		if attempt >= policy.maxRetries {
			newsRetryExhaustedTotal.WithLabelValues(string(errClass)).Inc()
			c.logger.Error().
				Err(err).
				Int("page", page).
				Int("max_retries", policy.maxRetries).
				Str("error_class", string(errClass)).
				Msg("Retry attempts exhausted")
			return nil, err
		}

		wait := backoff + c.jitter(policy.maxJitter)
		newsRetriesTotal.WithLabelValues(string(errClass)).Inc()
		newsRetryBackoffSeconds.WithLabelValues(string(errClass)).Observe(wait.Seconds())

		c.logger.Warn().
			Err(err).
			Int("page", page).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Str("error_class", string(errClass)).
			Msg("Retrying page fetch after backoff")

		if err := c.sleep(ctx, wait); err != nil {
			c.logger.Warn().
				Int("page", page).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		backoff *= 2
	}

	return nil, fmt.Errorf("%w for page %d", ErrRetryExhausted, page)
}

// randomJitter draws uniformly from [0, max).
func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
