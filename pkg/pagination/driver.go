package pagination

import (
	"context"
	"errors"
	"sync"

	"github.com/Sternrassler/newsfeed-client/pkg/article"
	"github.com/Sternrassler/newsfeed-client/pkg/client"
	"github.com/Sternrassler/newsfeed-client/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var newsPaginationLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "news_pagination_loads_total",
	Help: "Total page loads started by the pagination driver by result",
}, []string{"result"}) // "success", "error", "discarded"

// ErrDisposed is returned by Driver methods after Dispose.
var ErrDisposed = errors.New("pagination driver disposed")

// PageGetter is the orchestrator surface the driver needs. *client.Client
// implements it.
type PageGetter interface {
	GetPage(ctx context.Context, page int, opts ...client.Option) (*article.PageResult, error)
}

// State is the driver's load state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// DriverConfig holds driver settings.
type DriverConfig struct {
	// ScrollThreshold is the distance from the end of the list, in pixels,
	// at which OnScroll starts loading the next page.
	ScrollThreshold float64
}

// DefaultDriverConfig returns the default driver settings.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{ScrollThreshold: 200}
}

// Snapshot is a copy of the driver state for rendering.
type Snapshot struct {
	State       State
	CurrentPage int
	TotalPages  int
	Articles    []article.Article
	Err         string
}

// HasMore reports whether pages remain to be loaded.
func (s Snapshot) HasMore() bool {
	return s.CurrentPage <= s.TotalPages
}

// Driver loads pages in order, one at a time.
type Driver struct {
	getter PageGetter
	config DriverConfig
	logger zerolog.Logger

	mu          sync.Mutex
	state       State
	currentPage int
	totalPages  int
	articles    []article.Article
	lastErr     error
	cancel      context.CancelFunc
	disposed    bool
}

// NewDriver creates a driver positioned before page 1.
func NewDriver(getter PageGetter, cfg DriverConfig) *Driver {
	if cfg.ScrollThreshold <= 0 {
		cfg.ScrollThreshold = DefaultDriverConfig().ScrollThreshold
	}
	return &Driver{
		getter:      getter,
		config:      cfg,
		logger:      logging.NewLogger(logging.ComponentPagination),
		state:       StateIdle,
		currentPage: 1,
		totalPages:  1,
	}
}

// LoadNext loads the current page if the driver is idle and pages remain.
// It reports whether a load was started. A failed load leaves the driver in
// StateError and returns the orchestrator's error unchanged.
func (d *Driver) LoadNext(ctx context.Context) (bool, error) {
	return d.load(ctx, StateIdle)
}

// Retry reloads the page that failed. It does nothing unless the driver is
// in StateError.
func (d *Driver) Retry(ctx context.Context) (bool, error) {
	return d.load(ctx, StateError)
}

// OnScroll loads the next page once the scroll offset is within the
// threshold of maxExtent.
func (d *Driver) OnScroll(ctx context.Context, offset, maxExtent float64) (bool, error) {
	if maxExtent-offset > d.config.ScrollThreshold {
		return false, nil
	}
	return d.LoadNext(ctx)
}

// Snapshot returns a copy of the current state.
func (d *Driver) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Snapshot{
		State:       d.state,
		CurrentPage: d.currentPage,
		TotalPages:  d.totalPages,
		Articles:    article.Clone(d.articles),
	}
	if d.lastErr != nil {
		s.Err = d.lastErr.Error()
	}
	return s
}

// Dispose cancels any load in progress. Results arriving afterwards are
// discarded and every later call returns ErrDisposed.
func (d *Driver) Dispose() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed {
		return
	}
	d.disposed = true
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.logger.Debug().Int("page", d.currentPage).Msg("Driver disposed")
}

func (d *Driver) load(ctx context.Context, from State) (bool, error) {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return false, ErrDisposed
	}
	if d.state != from || d.currentPage > d.totalPages {
		d.mu.Unlock()
		return false, nil
	}

	page := d.currentPage
	loadCtx, cancel := context.WithCancel(ctx)
	d.state = StateLoading
	d.cancel = cancel
	d.mu.Unlock()

	defer cancel()

	d.logger.Debug().Int("page", page).Msg("Loading page")
	result, err := d.getter.GetPage(loadCtx, page)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed {
		newsPaginationLoadsTotal.WithLabelValues("discarded").Inc()
		return true, ErrDisposed
	}
	d.cancel = nil

	if err != nil {
		newsPaginationLoadsTotal.WithLabelValues("error").Inc()
		d.state = StateError
		d.lastErr = err
		d.logger.Warn().Err(err).Int("page", page).Msg("Page load failed")
		return true, err
	}

	newsPaginationLoadsTotal.WithLabelValues("success").Inc()
	d.articles = append(d.articles, result.Articles...)
	if result.HasTotalPages() {
		d.totalPages = result.TotalPages
	}
	d.currentPage++
	d.state = StateIdle
	d.lastErr = nil

	d.logger.Debug().
		Int("page", page).
		Int("articles", len(result.Articles)).
		Int("total_pages", d.totalPages).
		Msg("Page loaded")
	return true, nil
}
