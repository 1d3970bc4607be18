package pagination

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of pages fetched in parallel
	MaxConcurrency int
	// Timeout per page, including the orchestrator's retries
	Timeout time.Duration
}

// DefaultConfig returns the default batch fetcher configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
	}
}

// PageError records a page that could not be warmed.
type PageError struct {
	Page int
	Err  error
}

func (e PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

// WarmReport summarizes a batch run.
type WarmReport struct {
	// Fetched counts pages that came from the network.
	Fetched int
	// Cached counts pages that were already cached.
	Cached int
	// Articles is the total number of articles across successful pages.
	Articles int
	// TotalPages is the last page count reported by a network fetch, or
	// article.UnknownTotalPages if none reported one.
	TotalPages int
	// Failed lists pages that failed, ordered by page number.
	Failed []PageError
	// Duration of the run.
	Duration time.Duration
}

// BatchFetcher warms ranges of pages through the orchestrator
type BatchFetcher struct {
	getter PageGetter
	config Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(getter PageGetter, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	return &BatchFetcher{
		getter: getter,
		config: config,
	}
}

// Warm fetches pages from..to inclusive. A failing page does not stop the
// others; failures are listed in the report. The returned error is non-nil
// only for an invalid range or a cancelled context.
func (bf *BatchFetcher) Warm(ctx context.Context, from, to int) (*WarmReport, error) {
	if from < 1 || to < from {
		return nil, fmt.Errorf("invalid page range %d..%d", from, to)
	}

	start := time.Now()
	report := &WarmReport{TotalPages: -1}
	var mu sync.Mutex

	log.Info().
		Int("from", from).
		Int("to", to).
		Int("concurrency", bf.config.MaxConcurrency).
		Msg("Starting page warm-up")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bf.config.MaxConcurrency)

	for page := from; page <= to; page++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			pageCtx, cancel := context.WithTimeout(gctx, bf.config.Timeout)
			defer cancel()

			result, err := bf.getter.GetPage(pageCtx, page)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				log.Warn().Err(err).Int("page", page).Msg("Page warm-up failed")
				report.Failed = append(report.Failed, PageError{Page: page, Err: err})
				return nil
			}
			report.Articles += len(result.Articles)
			if result.Cached {
				report.Cached++
			} else {
				report.Fetched++
			}
			if result.HasTotalPages() {
				report.TotalPages = result.TotalPages
			}
			return nil
		})
	}

	_ = g.Wait()

	sort.Slice(report.Failed, func(i, j int) bool {
		return report.Failed[i].Page < report.Failed[j].Page
	})
	report.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("warm-up cancelled: %w", err)
	}

	log.Info().
		Int("fetched", report.Fetched).
		Int("cached", report.Cached).
		Int("failed", len(report.Failed)).
		Dur("duration", report.Duration).
		Msg("Warm-up complete")

	return report, nil
}

// WarmAll fetches page 1 to learn the page count, then warms the rest.
// If page 1 reports no count, e.g. because it was already cached, only
// page 1 is reported.
func (bf *BatchFetcher) WarmAll(ctx context.Context) (*WarmReport, error) {
	first, err := bf.Warm(ctx, 1, 1)
	if err != nil {
		return nil, err
	}
	if len(first.Failed) > 0 {
		return first, fmt.Errorf("failed to fetch first page: %w", first.Failed[0].Err)
	}
	if first.TotalPages < 2 {
		if first.TotalPages < 0 {
			log.Warn().Msg("Page count unknown, not warming further")
		}
		return first, nil
	}

	rest, err := bf.Warm(ctx, 2, first.TotalPages)
	if rest == nil {
		return first, err
	}
	rest.Fetched += first.Fetched
	rest.Cached += first.Cached
	rest.Articles += first.Articles
	rest.Duration += first.Duration
	if rest.TotalPages < 0 {
		rest.TotalPages = first.TotalPages
	}
	return rest, err
}
