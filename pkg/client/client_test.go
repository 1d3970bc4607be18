package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/newsfeed-client/pkg/article"
	"github.com/Sternrassler/newsfeed-client/pkg/cache"
	"github.com/Sternrassler/newsfeed-client/pkg/transport"
)

// step is one scripted FetchPage outcome.
type step struct {
	resp *transport.PageResponse
	err  error
}

// fakeFetcher replays steps in order, repeating the last one.
type fakeFetcher struct {
	mu    sync.Mutex
	steps []step
	calls int

	// gate, when set, blocks every call until it is closed.
	gate chan struct{}
	// started receives one value per call.
	started chan struct{}
}

func (f *fakeFetcher) FetchPage(ctx context.Context, page int) (*transport.PageResponse, error) {
	f.mu.Lock()
	f.calls++
	idx := f.calls - 1
	if idx >= len(f.steps) {
		idx = len(f.steps) - 1
	}
	s := f.steps[idx]
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &transport.TransportError{Message: "request failed", Err: ctx.Err()}
		}
	}
	return s.resp, s.err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// sleepRecorder replaces real backoff waits.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.waits))
	copy(out, r.waits)
	return out
}

func pageOne() *transport.PageResponse {
	return &transport.PageResponse{
		Page:       1,
		TotalPages: 10,
		Data:       []article.Article{{ID: 1, Title: "T", Body: "B"}},
	}
}

func newTestClient(t *testing.T, f Fetcher) (*Client, *sleepRecorder) {
	t.Helper()

	c, err := New(DefaultConfig(f))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	return c, rec
}

func TestNew_Validation(t *testing.T) {
	f := &fakeFetcher{steps: []step{{resp: pageOne()}}}

	tests := []struct {
		name     string
		config   Config
		errorMsg string
	}{
		{name: "valid config", config: DefaultConfig(f)},
		{name: "nil cache defaults to memory", config: Config{Fetcher: f, MaxRetries: 3}},
		{name: "nil fetcher", config: Config{MaxRetries: 3}, errorMsg: "fetcher is required"},
		{name: "negative retries", config: Config{Fetcher: f, MaxRetries: -1}, errorMsg: "max_retries must be >= 0 (got -1)"},
		{name: "negative backoff", config: Config{Fetcher: f, InitialBackoff: -time.Second}, errorMsg: "initial_backoff must be >= 0 (got -1s)"},
		{name: "negative jitter", config: Config{Fetcher: f, MaxJitter: -time.Millisecond}, errorMsg: "max_jitter must be >= 0 (got -1ms)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if tt.errorMsg == "" {
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				if c.cache == nil {
					t.Error("cache should be set")
				}
				return
			}
			if err == nil || err.Error() != tt.errorMsg {
				t.Errorf("New() error = %v, want %q", err, tt.errorMsg)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(nil)

	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.InitialBackoff != 500*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 500ms", cfg.InitialBackoff)
	}
	if cfg.MaxJitter != 200*time.Millisecond {
		t.Errorf("MaxJitter = %v, want 200ms", cfg.MaxJitter)
	}
}

func TestGetPage_LiveThenCached(t *testing.T) {
	f := &fakeFetcher{steps: []step{{resp: pageOne()}}}
	c, _ := newTestClient(t, f)
	ctx := context.Background()

	first, err := c.GetPage(ctx, 1)
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	if first.Page != 1 || first.TotalPages != 10 {
		t.Errorf("first = %+v, want page 1 of 10", first)
	}
	if len(first.Articles) != 1 || first.Articles[0] != (article.Article{ID: 1, Title: "T", Body: "B"}) {
		t.Errorf("first.Articles = %+v", first.Articles)
	}

	second, err := c.GetPage(ctx, 1)
	if err != nil {
		t.Fatalf("second GetPage() error = %v", err)
	}
	if second.Page != 1 || second.TotalPages != article.UnknownTotalPages {
		t.Errorf("second = %+v, want page 1 with unknown total", second)
	}
	if first.Cached || !second.Cached {
		t.Errorf("Cached = %v/%v, want false/true", first.Cached, second.Cached)
	}
	if len(second.Articles) != 1 || second.Articles[0] != first.Articles[0] {
		t.Errorf("second.Articles = %+v", second.Articles)
	}

	if f.Calls() != 1 {
		t.Errorf("fetcher calls = %d, want 1", f.Calls())
	}
}

func TestGetPage_CacheIdempotence(t *testing.T) {
	f := &fakeFetcher{steps: []step{{resp: pageOne()}}}
	c, _ := newTestClient(t, f)
	ctx := context.Background()

	want, _ := c.GetPage(ctx, 1)
	for i := 0; i < 20; i++ {
		got, err := c.GetPage(ctx, 1)
		if err != nil {
			t.Fatalf("GetPage() error = %v", err)
		}
		if len(got.Articles) != len(want.Articles) || got.Articles[0] != want.Articles[0] {
			t.Fatalf("call %d returned %+v", i, got.Articles)
		}
		if got.HasTotalPages() {
			t.Fatalf("cache hit carried a total: %d", got.TotalPages)
		}
	}

	if f.Calls() != 1 {
		t.Errorf("fetcher calls = %d, want 1", f.Calls())
	}
}

func TestGetPage_ResultsDoNotAliasCache(t *testing.T) {
	f := &fakeFetcher{steps: []step{{resp: pageOne()}}}
	c, _ := newTestClient(t, f)
	ctx := context.Background()

	first, _ := c.GetPage(ctx, 1)
	first.Articles[0].Title = "edited by caller"

	second, _ := c.GetPage(ctx, 1)
	if second.Articles[0].Title != "T" {
		t.Errorf("cached title = %q, want T", second.Articles[0].Title)
	}
}

func TestGetPage_ClientErrorNotRetried(t *testing.T) {
	for _, maxRetries := range []int{1, 3, 10} {
		f := &fakeFetcher{steps: []step{{err: &transport.HTTPError{StatusCode: 404, Message: "Not Found"}}}}
		c, rec := newTestClient(t, f)

		_, err := c.GetPage(context.Background(), 1, WithMaxRetries(maxRetries))

		var httpErr *transport.HTTPError
		if !errors.As(err, &httpErr) || httpErr.StatusCode != 404 {
			t.Fatalf("maxRetries=%d: error = %v, want HTTP 404", maxRetries, err)
		}
		if f.Calls() != 1 {
			t.Errorf("maxRetries=%d: calls = %d, want 1", maxRetries, f.Calls())
		}
		if len(rec.Waits()) != 0 {
			t.Errorf("maxRetries=%d: waits = %v, want none", maxRetries, rec.Waits())
		}
	}
}

func TestGetPage_RetryThenSuccess(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "server error", status: 500},
		{name: "too many requests", status: 429},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failure := &transport.HTTPError{StatusCode: tt.status}
			f := &fakeFetcher{steps: []step{{err: failure}, {err: failure}, {resp: pageOne()}}}
			c, rec := newTestClient(t, f)

			result, err := c.GetPage(context.Background(), 1, WithMaxRetries(3))
			if err != nil {
				t.Fatalf("GetPage() error = %v", err)
			}
			if result.TotalPages != 10 {
				t.Errorf("TotalPages = %d, want 10", result.TotalPages)
			}
			if f.Calls() != 3 {
				t.Errorf("calls = %d, want 3", f.Calls())
			}

			waits := rec.Waits()
			floors := []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond}
			if len(waits) != len(floors) {
				t.Fatalf("waits = %v, want %d waits", waits, len(floors))
			}
			for i, floor := range floors {
				if waits[i] < floor || waits[i] >= floor+200*time.Millisecond {
					t.Errorf("wait[%d] = %v, want in [%v, %v)", i, waits[i], floor, floor+200*time.Millisecond)
				}
			}
		})
	}
}

func TestGetPage_RetryExhaustion(t *testing.T) {
	failure := &transport.HTTPError{StatusCode: 503, Message: "Service Unavailable"}
	f := &fakeFetcher{steps: []step{{err: failure}}}
	c, rec := newTestClient(t, f)

	_, err := c.GetPage(context.Background(), 1, WithMaxRetries(3))

	if err != failure {
		t.Errorf("error = %v, want the last HTTPError unchanged", err)
	}
	if f.Calls() != 3 {
		t.Errorf("calls = %d, want 3", f.Calls())
	}
	if len(rec.Waits()) != 2 {
		t.Errorf("waits = %v, want 2", rec.Waits())
	}
	if err.Error() != "HTTP 503: Service Unavailable" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestGetPage_TransportErrorRetried(t *testing.T) {
	f := &fakeFetcher{steps: []step{
		{err: &transport.TransportError{Message: "request timed out", Err: context.DeadlineExceeded}},
		{resp: pageOne()},
	}}
	c, rec := newTestClient(t, f)

	if _, err := c.GetPage(context.Background(), 1); err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	if f.Calls() != 2 {
		t.Errorf("calls = %d, want 2", f.Calls())
	}
	if len(rec.Waits()) != 1 {
		t.Errorf("waits = %v, want 1", rec.Waits())
	}
}

func TestGetPage_BackoffDoubles(t *testing.T) {
	f := &fakeFetcher{steps: []step{{err: &transport.HTTPError{StatusCode: 502}}}}
	c, rec := newTestClient(t, f)
	c.jitter = func(time.Duration) time.Duration { return 0 }

	_, _ = c.GetPage(context.Background(), 1, WithMaxRetries(5), WithInitialBackoff(100*time.Millisecond))

	want := []time.Duration{100, 200, 400, 800}
	waits := rec.Waits()
	if len(waits) != len(want) {
		t.Fatalf("waits = %v, want %d", waits, len(want))
	}
	for i := range want {
		if waits[i] != want[i]*time.Millisecond {
			t.Errorf("wait[%d] = %v, want %v", i, waits[i], want[i]*time.Millisecond)
		}
	}
}

func TestGetPage_ZeroRetriesFallsThrough(t *testing.T) {
	f := &fakeFetcher{steps: []step{{resp: pageOne()}}}
	c, _ := newTestClient(t, f)

	_, err := c.GetPage(context.Background(), 1, WithMaxRetries(0))
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("error = %v, want ErrRetryExhausted", err)
	}
	if f.Calls() != 0 {
		t.Errorf("calls = %d, want 0", f.Calls())
	}
	if c.inflight.Len() != 0 {
		t.Error("page left in flight")
	}
}

func TestGetPage_InFlightReleasedOnEveryPath(t *testing.T) {
	tests := []struct {
		name  string
		steps []step
	}{
		{name: "success", steps: []step{{resp: pageOne()}}},
		{name: "non-retryable", steps: []step{{err: &transport.HTTPError{StatusCode: 400}}}},
		{name: "exhausted", steps: []step{{err: &transport.HTTPError{StatusCode: 500}}}},
		{name: "nil response", steps: []step{{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, &fakeFetcher{steps: tt.steps})
			_, _ = c.GetPage(context.Background(), 4)

			if c.inflight.InFlight(4) {
				t.Error("page 4 still in flight")
			}
		})
	}
}

func TestGetPage_FailureNotCached(t *testing.T) {
	f := &fakeFetcher{steps: []step{{err: &transport.HTTPError{StatusCode: 404}}, {resp: pageOne()}}}
	c, _ := newTestClient(t, f)
	ctx := context.Background()

	if _, err := c.GetPage(ctx, 1); err == nil {
		t.Fatal("first GetPage should fail")
	}
	if n, _ := c.cache.Len(ctx); n != 0 {
		t.Errorf("cache holds %d pages after failure", n)
	}

	result, err := c.GetPage(ctx, 1)
	if err != nil {
		t.Fatalf("manual retry error = %v", err)
	}
	if result.TotalPages != 10 {
		t.Errorf("TotalPages = %d, want live value 10", result.TotalPages)
	}
}

func TestGetPage_ContextCancelledDuringBackoff(t *testing.T) {
	f := &fakeFetcher{steps: []step{{err: &transport.HTTPError{StatusCode: 500}}}}
	c, _ := newTestClient(t, f)
	c.sleep = sleepContext

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.GetPage(ctx, 1)
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("error = %v, want ErrContextCancelled", err)
	}
	if f.Calls() != 1 {
		t.Errorf("calls = %d, want 1", f.Calls())
	}
	if c.inflight.InFlight(1) {
		t.Error("page left in flight after cancellation")
	}
}

func TestGetPage_InvalidPage(t *testing.T) {
	c, _ := newTestClient(t, &fakeFetcher{steps: []step{{resp: pageOne()}}})

	for _, page := range []int{0, -3} {
		if _, err := c.GetPage(context.Background(), page); !errors.Is(err, ErrInvalidPage) {
			t.Errorf("GetPage(%d) error = %v, want ErrInvalidPage", page, err)
		}
	}
}

func TestGetPage_NegativeRetryOption(t *testing.T) {
	c, _ := newTestClient(t, &fakeFetcher{steps: []step{{resp: pageOne()}}})

	if _, err := c.GetPage(context.Background(), 1, WithMaxRetries(-1)); err == nil {
		t.Error("negative retry budget should be rejected")
	}
}

func TestGetPage_ConcurrentCallersShareOneFetch(t *testing.T) {
	f := &fakeFetcher{
		steps:   []step{{resp: pageOne()}},
		gate:    make(chan struct{}),
		started: make(chan struct{}, 10),
	}
	c, _ := newTestClient(t, f)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*article.PageResult, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetPage(context.Background(), 1)
		}(i)
	}

	<-f.started
	time.Sleep(50 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	if f.Calls() != 1 {
		t.Errorf("calls = %d, want 1", f.Calls())
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d error = %v", i, errs[i])
			continue
		}
		if len(results[i].Articles) != 1 || results[i].Articles[0].ID != 1 {
			t.Errorf("caller %d result = %+v", i, results[i])
		}
	}
}

// stallingStore holds the first cache miss until release is closed, so a
// second caller can complete a fetch in between.
type stallingStore struct {
	*cache.Memory
	once    sync.Once
	missed  chan struct{}
	release chan struct{}
}

func (s *stallingStore) Get(ctx context.Context, page int) ([]article.Article, error) {
	articles, err := s.Memory.Get(ctx, page)
	if errors.Is(err, cache.ErrCacheMiss) {
		stall := false
		s.once.Do(func() { stall = true })
		if stall {
			close(s.missed)
			<-s.release
		}
	}
	return articles, err
}

func TestGetPage_PageCachedAfterMissIsNotFetchedAgain(t *testing.T) {
	store := &stallingStore{
		Memory:  cache.NewMemory(),
		missed:  make(chan struct{}),
		release: make(chan struct{}),
	}
	f := &fakeFetcher{steps: []step{{resp: pageOne()}}}
	cfg := DefaultConfig(f)
	cfg.Cache = store
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	type outcome struct {
		result *article.PageResult
		err    error
	}
	late := make(chan outcome, 1)
	go func() {
		r, err := c.GetPage(ctx, 1)
		late <- outcome{r, err}
	}()
	<-store.missed

	first, err := c.GetPage(ctx, 1)
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	if first.TotalPages != 10 {
		t.Errorf("first TotalPages = %d, want 10", first.TotalPages)
	}
	close(store.release)

	got := <-late
	if got.err != nil {
		t.Fatalf("late GetPage() error = %v", got.err)
	}
	if f.Calls() != 1 {
		t.Errorf("fetcher calls = %d, want 1", f.Calls())
	}
	if !got.result.Cached || got.result.TotalPages != article.UnknownTotalPages {
		t.Errorf("late result = %+v, want cache hit with unknown total", got.result)
	}
	if len(got.result.Articles) != 1 || got.result.Articles[0].ID != 1 {
		t.Errorf("late articles = %+v", got.result.Articles)
	}
	if c.inflight.Len() != 0 {
		t.Errorf("in-flight = %d, want 0", c.inflight.Len())
	}
}

func TestGetPage_ConcurrentCallersShareFailure(t *testing.T) {
	f := &fakeFetcher{
		steps:   []step{{err: &transport.HTTPError{StatusCode: 403, Message: "Forbidden"}}},
		gate:    make(chan struct{}),
		started: make(chan struct{}, 10),
	}
	c, _ := newTestClient(t, f)

	const callers = 3
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.GetPage(context.Background(), 2)
		}(i)
	}

	<-f.started
	time.Sleep(50 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	if f.Calls() != 1 {
		t.Errorf("calls = %d, want 1", f.Calls())
	}
	for i, err := range errs {
		var httpErr *transport.HTTPError
		if !errors.As(err, &httpErr) || httpErr.StatusCode != 403 {
			t.Errorf("caller %d error = %v, want HTTP 403", i, err)
		}
	}
}

func TestGetPage_WaiterRefetchesAfterAbandonedFetch(t *testing.T) {
	f := &fakeFetcher{steps: []step{{resp: pageOne()}}}
	c, _ := newTestClient(t, f)

	// Another call site holds the page and then gives up on it.
	c.inflight.TryAcquire(1)

	done := make(chan error, 1)
	go func() {
		_, err := c.GetPage(context.Background(), 1)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	c.inflight.Release(1)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("GetPage() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter stranded after release")
	}
	if f.Calls() != 1 {
		t.Errorf("calls = %d, want 1", f.Calls())
	}
}

func TestGetPage_WaiterContextCancelled(t *testing.T) {
	c, _ := newTestClient(t, &fakeFetcher{steps: []step{{resp: pageOne()}}})
	c.inflight.TryAcquire(1)
	defer c.inflight.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := c.GetPage(ctx, 1); !errors.Is(err, ErrContextCancelled) {
		t.Errorf("error = %v, want ErrContextCancelled", err)
	}
}

// brokenStore fails every read and write.
type brokenStore struct{}

func (brokenStore) Get(context.Context, int) ([]article.Article, error) {
	return nil, errors.New("backend down")
}
func (brokenStore) Put(context.Context, int, []article.Article) error { return errors.New("backend down") }
func (brokenStore) Clear(context.Context) error                       { return errors.New("backend down") }
func (brokenStore) Len(context.Context) (int, error)                  { return 0, errors.New("backend down") }

func TestGetPage_CacheBackendErrorsTolerated(t *testing.T) {
	f := &fakeFetcher{steps: []step{{resp: pageOne()}}}
	cfg := DefaultConfig(f)
	cfg.Cache = brokenStore{}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := c.GetPage(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	if result.TotalPages != 10 {
		t.Errorf("TotalPages = %d, want 10", result.TotalPages)
	}

	if err := c.Clear(context.Background()); err == nil {
		t.Error("Clear() should surface backend error")
	}
}

func TestClear(t *testing.T) {
	f := &fakeFetcher{steps: []step{{resp: pageOne()}}}
	c, _ := newTestClient(t, f)
	ctx := context.Background()

	_, _ = c.GetPage(ctx, 1)
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	result, err := c.GetPage(ctx, 1)
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	if !result.HasTotalPages() {
		t.Error("page after Clear should come from the network")
	}
	if f.Calls() != 2 {
		t.Errorf("calls = %d, want 2", f.Calls())
	}
}

func TestClose(t *testing.T) {
	c, _ := newTestClient(t, &fakeFetcher{steps: []step{{resp: pageOne()}}})

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := c.GetPage(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Errorf("GetPage() after Close error = %v, want ErrClosed", err)
	}
}

func TestGetPage_UsesInjectedCache(t *testing.T) {
	store := cache.NewMemory()
	_ = store.Put(context.Background(), 3, []article.Article{{ID: 30}})

	f := &fakeFetcher{steps: []step{{resp: pageOne()}}}
	cfg := DefaultConfig(f)
	cfg.Cache = store
	c, _ := New(cfg)

	result, err := c.GetPage(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	if result.Articles[0].ID != 30 || result.HasTotalPages() {
		t.Errorf("result = %+v, want cached page 3", result)
	}
	if f.Calls() != 0 {
		t.Errorf("calls = %d, want 0", f.Calls())
	}
}
