package cache

import (
	"context"
	"errors"

	"github.com/Sternrassler/newsfeed-client/pkg/article"
	"github.com/Sternrassler/newsfeed-client/pkg/logging"
	"github.com/rs/zerolog"
)

// Tiered serves reads from a fast Store and falls back to a shared one.
// Writes go to both; lower-tier hits are copied into the upper tier.
type Tiered struct {
	upper  Store
	lower  Store
	logger zerolog.Logger
}

// NewTiered layers upper (usually Memory) over lower (usually RedisStore).
func NewTiered(upper, lower Store) *Tiered {
	return &Tiered{
		upper:  upper,
		lower:  lower,
		logger: logging.NewLogger(logging.ComponentPageCache),
	}
}

// Get implements Store.
func (t *Tiered) Get(ctx context.Context, page int) ([]article.Article, error) {
	articles, err := t.upper.Get(ctx, page)
	if err == nil {
		return articles, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return nil, err
	}

	articles, err = t.lower.Get(ctx, page)
	if err != nil {
		return nil, err
	}

	if err := t.upper.Put(ctx, page, articles); err != nil {
		t.logger.Warn().Err(err).Int("page", page).Msg("Failed to promote page to upper tier")
	}
	return articles, nil
}

// Put implements Store. The upper tier is written even if the lower one fails.
func (t *Tiered) Put(ctx context.Context, page int, articles []article.Article) error {
	upperErr := t.upper.Put(ctx, page, articles)
	lowerErr := t.lower.Put(ctx, page, articles)
	return errors.Join(upperErr, lowerErr)
}

// Clear implements Store.
func (t *Tiered) Clear(ctx context.Context) error {
	return errors.Join(t.upper.Clear(ctx), t.lower.Clear(ctx))
}

// Len implements Store and reports the lower tier, which holds every page.
func (t *Tiered) Len(ctx context.Context) (int, error) {
	return t.lower.Len(ctx)
}
