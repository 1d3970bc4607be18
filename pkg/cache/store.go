package cache

import (
	"context"
	"errors"

	"github.com/Sternrassler/newsfeed-client/pkg/article"
)

var (
	// ErrCacheMiss indicates the requested page is not cached.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates a stored value could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is a page-number keyed article cache.
type Store interface {
	// Get returns the articles cached for page or ErrCacheMiss.
	Get(ctx context.Context, page int) ([]article.Article, error)

	// Put stores articles for page, replacing any previous value.
	Put(ctx context.Context, page int, articles []article.Article) error

	// Clear removes every cached page.
	Clear(ctx context.Context) error

	// Len returns the number of cached pages.
	Len(ctx context.Context) (int, error)
}
