// Package ratelimit paces outgoing page requests. It combines a client-side
// token bucket with an optional cooldown window taken from Retry-After
// headers, which pauses every request, not just the one that was refused.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for request pacing.
var (
	newsRateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "news_rate_limit_wait_seconds",
		Help:    "Time requests spent waiting on the client-side rate limiter",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})

	newsRateLimitCooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "news_rate_limit_cooldowns_total",
		Help: "Total number of Retry-After cooldowns applied",
	})
)

// Config holds limiter configuration.
type Config struct {
	// RequestsPerSecond is the sustained request rate. Zero disables pacing.
	RequestsPerSecond float64

	// Burst is the number of requests allowed at once (minimum 1).
	Burst int

	// HonorRetryAfter makes Retry-After headers pause all requests. The
	// pause comes on top of the orchestrator's backoff.
	HonorRetryAfter bool

	// MaxCooldown caps how long a Retry-After header may pause requests.
	MaxCooldown time.Duration
}

// DefaultConfig returns a configuration with pacing and Retry-After
// cooldowns disabled, leaving retry timing to the orchestrator's backoff.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 0,
		Burst:             1,
		HonorRetryAfter:   false,
		MaxCooldown:       30 * time.Second,
	}
}

// Limiter gates requests. A nil *Limiter allows everything.
type Limiter struct {
	bucket      *rate.Limiter
	honorRetry  bool
	maxCooldown time.Duration
	logger      zerolog.Logger

	mu          sync.Mutex
	pausedUntil time.Time
	now         func() time.Time
}

// New creates a limiter from cfg.
func New(cfg Config, logger zerolog.Logger) *Limiter {
	l := &Limiter{
		honorRetry:  cfg.HonorRetryAfter,
		maxCooldown: cfg.MaxCooldown,
		logger:      logger,
		now:         time.Now,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		l.bucket = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return l
}

// Wait blocks until a request may be sent or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}

	start := time.Now()
	defer func() {
		newsRateLimitWaitSeconds.Observe(time.Since(start).Seconds())
	}()

	if pause := l.cooldownRemaining(); pause > 0 {
		l.logger.Debug().Dur("pause", pause).Msg("Waiting for server cooldown")
		timer := time.NewTimer(pause)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if l.bucket == nil {
		return nil
	}
	return l.bucket.Wait(ctx)
}

// UpdateFromHeaders applies a Retry-After header, given either as seconds or
// as an HTTP date. Responses without the header leave the state unchanged,
// as does every response unless HonorRetryAfter is set.
func (l *Limiter) UpdateFromHeaders(headers http.Header) {
	if l == nil || !l.honorRetry {
		return
	}

	value := headers.Get("Retry-After")
	if value == "" {
		return
	}

	now := l.now()
	var until time.Time
	if secs, err := strconv.Atoi(value); err == nil {
		until = now.Add(time.Duration(secs) * time.Second)
	} else if at, err := http.ParseTime(value); err == nil {
		until = at
	} else {
		l.logger.Warn().Str("retry_after", value).Msg("Ignoring unparseable Retry-After header")
		return
	}

	if l.maxCooldown > 0 && until.Sub(now) > l.maxCooldown {
		until = now.Add(l.maxCooldown)
	}
	if !until.After(now) {
		return
	}

	l.mu.Lock()
	if until.After(l.pausedUntil) {
		l.pausedUntil = until
	}
	l.mu.Unlock()

	newsRateLimitCooldownsTotal.Inc()
	l.logger.Warn().Time("until", until).Msg("Server requested cooldown")
}

// cooldownRemaining returns how long requests are still paused.
func (l *Limiter) cooldownRemaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	d := l.pausedUntil.Sub(l.now())
	if d < 0 {
		return 0
	}
	return d
}
