package cache

import (
	"context"
	"sync"

	"github.com/Sternrassler/newsfeed-client/pkg/article"
)

const layerMemory = "memory"

// Memory is an unbounded in-process Store. Slices are copied on the way in
// and out so callers never share backing arrays with the cache.
type Memory struct {
	mu    sync.RWMutex
	pages map[int][]article.Article
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{pages: make(map[int][]article.Article)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, page int) ([]article.Article, error) {
	m.mu.RLock()
	articles, ok := m.pages[page]
	m.mu.RUnlock()

	if !ok {
		CacheMisses.WithLabelValues(layerMemory).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(layerMemory).Inc()
	return article.Clone(articles), nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, page int, articles []article.Article) error {
	stored := article.Clone(articles)
	if stored == nil {
		stored = []article.Article{}
	}

	m.mu.Lock()
	m.pages[page] = stored
	n := len(m.pages)
	m.mu.Unlock()

	CacheEntries.WithLabelValues(layerMemory).Set(float64(n))
	return nil
}

// Clear implements Store.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.pages = make(map[int][]article.Article)
	m.mu.Unlock()

	CacheEntries.WithLabelValues(layerMemory).Set(0)
	return nil
}

// Len implements Store.
func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pages), nil
}
