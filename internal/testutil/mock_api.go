// Package testutil provides testing utilities for the newsfeed client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockPost is one record served by MockAPI.
type MockPost struct {
	UserID int    `json:"userId"`
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// MockResponse overrides the next response served by MockAPI.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock posts service for testing.
// Scripted responses are served first, in order; afterwards requests are
// answered from the post corpus the way json-server slices with _start/_limit.
type MockAPI struct {
	server *httptest.Server

	mu       sync.RWMutex
	posts    []MockPost
	script   []MockResponse
	requests []RequestRecord
}

// RequestRecord captures one received request.
type RequestRecord struct {
	Path      string
	Start     string
	Limit     string
	UserAgent string
}

// NewMockAPI creates a mock service holding total generated posts.
func NewMockAPI(total int) *MockAPI {
	mock := &MockAPI{posts: GeneratePosts(total)}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requests = append(mock.requests, RequestRecord{
			Path:      r.URL.Path,
			Start:     r.URL.Query().Get("_start"),
			Limit:     r.URL.Query().Get("_limit"),
			UserAgent: r.Header.Get("User-Agent"),
		})
		var scripted *MockResponse
		if len(mock.script) > 0 {
			next := mock.script[0]
			mock.script = mock.script[1:]
			scripted = &next
		}
		mock.mu.Unlock()

		if scripted != nil {
			writeScripted(w, r, *scripted)
			return
		}
		mock.postsHandler(w, r)
	}))

	return mock
}

// GeneratePosts builds n deterministic posts with ids 1..n.
func GeneratePosts(n int) []MockPost {
	posts := make([]MockPost, n)
	for i := range posts {
		posts[i] = MockPost{
			UserID: i/10 + 1,
			ID:     i + 1,
			Title:  fmt.Sprintf("post %d", i+1),
			Body:   fmt.Sprintf("body of post %d", i+1),
		}
	}
	return posts
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Enqueue schedules responses to be served before falling back to the corpus.
func (m *MockAPI) Enqueue(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, responses...)
}

// Reset clears scripted responses and recorded requests.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = nil
	m.requests = nil
}

// RequestCount returns the number of requests received.
func (m *MockAPI) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Requests returns a copy of the recorded requests.
func (m *MockAPI) Requests() []RequestRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RequestRecord, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockAPI) postsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/posts" {
		http.NotFound(w, r)
		return
	}

	m.mu.RLock()
	posts := m.posts
	m.mu.RUnlock()

	start, _ := strconv.Atoi(r.URL.Query().Get("_start"))
	limit, err := strconv.Atoi(r.URL.Query().Get("_limit"))
	if err != nil || limit <= 0 {
		limit = len(posts)
	}

	page := []MockPost{}
	if start >= 0 && start < len(posts) {
		end := start + limit
		if end > len(posts) {
			end = len(posts)
		}
		page = posts[start:end]
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Total-Count", strconv.Itoa(len(posts)))
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(page)
}

func writeScripted(w http.ResponseWriter, r *http.Request, resp MockResponse) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// NewStatusResponse creates a bodyless response with the given status.
func NewStatusResponse(status int) MockResponse {
	return MockResponse{StatusCode: status}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	resp := MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "rate limit exceeded"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
	if retryAfter != "" {
		resp.Headers["Retry-After"] = retryAfter
	}
	return resp
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewMalformedResponse creates a 200 response whose body is not a post list.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"unexpected": true`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewSlowResponse delays a successful single-post response by d.
func NewSlowResponse(d time.Duration) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `[{"id": 1, "title": "slow", "body": "slow"}]`,
		Delay:      d,
	}
}
