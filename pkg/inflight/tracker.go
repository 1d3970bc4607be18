// Package inflight tracks which pages are currently being fetched so that
// concurrent requests for the same page share a single fetch.
package inflight

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var newsInFlightPages = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "news_inflight_pages",
	Help: "Number of pages currently being fetched",
})

// Outcome is what a finished fetch hands to the callers that waited on it.
// Settled is false when the owner released the page without recording a
// result, e.g. because its context was cancelled.
type Outcome[T any] struct {
	Value   T
	Err     error
	Settled bool
}

type flight[T any] struct {
	done    chan struct{}
	outcome Outcome[T]
}

// Tracker is a set of in-flight page numbers. The zero value is not usable;
// create one with New.
type Tracker[T any] struct {
	mu      sync.Mutex
	flights map[int]*flight[T]
}

// New creates an empty tracker.
func New[T any]() *Tracker[T] {
	return &Tracker[T]{flights: make(map[int]*flight[T])}
}

// TryAcquire marks page as in flight. It returns false if it already was.
func (t *Tracker[T]) TryAcquire(page int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, busy := t.flights[page]; busy {
		return false
	}
	t.flights[page] = &flight[T]{done: make(chan struct{})}
	newsInFlightPages.Inc()
	return true
}

// Release removes page from the set without recording an outcome. Waiters
// wake with an unsettled Outcome. Releasing a page that is not in flight is
// a no-op.
func (t *Tracker[T]) Release(page int) {
	t.finish(page, Outcome[T]{})
}

// Complete records the fetch result for waiters and releases page.
func (t *Tracker[T]) Complete(page int, value T, err error) {
	t.finish(page, Outcome[T]{Value: value, Err: err, Settled: true})
}

func (t *Tracker[T]) finish(page int, outcome Outcome[T]) {
	t.mu.Lock()
	f, ok := t.flights[page]
	if ok {
		delete(t.flights, page)
	}
	t.mu.Unlock()

	if !ok {
		return
	}
	f.outcome = outcome
	close(f.done)
	newsInFlightPages.Dec()
}

// Wait blocks until the current fetch of page finishes and returns its
// outcome. If page is not in flight it returns an unsettled Outcome at once.
func (t *Tracker[T]) Wait(ctx context.Context, page int) (Outcome[T], error) {
	t.mu.Lock()
	f, ok := t.flights[page]
	t.mu.Unlock()

	if !ok {
		return Outcome[T]{}, nil
	}

	select {
	case <-f.done:
		return f.outcome, nil
	case <-ctx.Done():
		return Outcome[T]{}, ctx.Err()
	}
}

// InFlight reports whether page is currently being fetched.
func (t *Tracker[T]) InFlight(page int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.flights[page]
	return ok
}

// Len returns the number of pages in flight.
func (t *Tracker[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.flights)
}
