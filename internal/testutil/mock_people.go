// Package testutil provides testing utilities for people-pager.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/people-pager/internal/peopleapi"
	"github.com/Sternrassler/people-pager/pkg/pagination"
	"github.com/Sternrassler/people-pager/pkg/ratelimit"
	"github.com/Sternrassler/people-pager/pkg/source"
)

// MockResponse defines a canned response for the mock API.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockPeopleAPI is a people API server for tests. By default it serves the
// records it was created with; queued responses take precedence.
type MockPeopleAPI struct {
	server   *httptest.Server
	fallback http.Handler

	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	queue    []MockResponse

	// Tracking
	RequestCount      int
	Cursors           []string
	LastRequestHeader http.Header
}

// NewMockPeopleAPI starts a mock serving records in pages of pageSize.
func NewMockPeopleAPI(records []pagination.Record, pageSize int) *MockPeopleAPI {
	static := source.NewStatic(records, source.StaticConfig{PageSize: pageSize})
	mock := &MockPeopleAPI{
		fallback: peopleapi.NewRouter(peopleapi.NewHandler(static, peopleapi.DefaultConfig(), zerolog.Nop())),
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.Cursors = append(mock.Cursors, r.URL.Query().Get("next"))
		mock.LastRequestHeader = r.Header.Clone()

		var queued *MockResponse
		if len(mock.queue) > 0 {
			resp := mock.queue[0]
			mock.queue = mock.queue[1:]
			queued = &resp
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		switch {
		case queued != nil:
			writeMock(w, *queued)
		case exists:
			handler(w, r)
		default:
			mock.fallback.ServeHTTP(w, r)
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockPeopleAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockPeopleAPI) Close() {
	m.server.Close()
}

// Reset clears tracking and queued responses.
func (m *MockPeopleAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Cursors = nil
	m.LastRequestHeader = nil
	m.queue = nil
}

// SetHandler overrides the handler for path.
func (m *MockPeopleAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse makes every request to path return resp.
func (m *MockPeopleAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, _ *http.Request) {
		writeMock(w, resp)
	})
}

// Enqueue makes the next requests return resps in order, whatever the path.
func (m *MockPeopleAPI) Enqueue(resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, resps...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockPeopleAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetCursors returns the next parameter of every request, in order.
func (m *MockPeopleAPI) GetCursors() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Cursors...)
}

// GetLastRequestHeader returns the headers of the latest request.
func (m *MockPeopleAPI) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

func writeMock(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// NewPageResponse creates a 200 response with the given JSON body and a
// healthy rate limit budget.
func NewPageResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			ratelimit.HeaderRemaining: "100",
			ratelimit.HeaderReset:     "60",
			"Content-Type":            "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 response with a nearly spent budget.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "rate limit exceeded"}`,
		Headers: map[string]string{
			ratelimit.HeaderRemaining: "0",
			ratelimit.HeaderReset:     "30",
			"Content-Type":            "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewLowBudgetResponse creates a 200 response whose headers put the budget
// below the critical threshold.
func NewLowBudgetResponse(body string) MockResponse {
	resp := NewPageResponse(body)
	resp.Headers[ratelimit.HeaderRemaining] = "2"
	resp.Headers[ratelimit.HeaderReset] = "60"
	return resp
}
