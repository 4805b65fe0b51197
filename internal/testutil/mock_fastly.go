// Package testutil provides testing utilities for drinks.fyi.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockFastlyResponse defines one scripted response of the mock API.
type MockFastlyResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// PurgeCall records a purge request received by the mock.
type PurgeCall struct {
	Path          string
	Token         string
	Soft          bool
	SurrogateKeys []string
}

// MockFastly is a configurable mock of the Fastly purge API.
type MockFastly struct {
	server *httptest.Server
	mu     sync.Mutex

	// scripted responses, consumed in order; the default answers once empty
	script []MockFastlyResponse
	calls  []PurgeCall
}

// NewMockFastly creates a new mock Fastly API server.
func NewMockFastly() *MockFastly {
	mock := &MockFastly{}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockFastly) URL() string {
	return m.server.URL
}

// Client returns an HTTP client bound to the mock server.
func (m *MockFastly) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockFastly) Close() {
	m.server.Close()
}

// Enqueue appends scripted responses.
func (m *MockFastly) Enqueue(resps ...MockFastlyResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, resps...)
}

// Calls returns a copy of every request received so far.
func (m *MockFastly) Calls() []PurgeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PurgeCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// PurgedKeys returns every surrogate key received, in order.
func (m *MockFastly) PurgedKeys() []string {
	var keys []string
	for _, c := range m.Calls() {
		keys = append(keys, c.SurrogateKeys...)
	}
	return keys
}

func (m *MockFastly) handle(w http.ResponseWriter, r *http.Request) {
	call := PurgeCall{
		Path:  r.URL.Path,
		Token: r.Header.Get("Fastly-Key"),
		Soft:  r.Header.Get("Fastly-Soft-Purge") == "1",
	}
	if strings.HasSuffix(r.URL.Path, "/purge") {
		var body struct {
			SurrogateKeys []string `json:"surrogate_keys"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		call.SurrogateKeys = body.SurrogateKeys
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	var resp MockFastlyResponse
	if len(m.script) > 0 {
		resp = m.script[0]
		m.script = m.script[1:]
	} else {
		resp = NewOKResponse()
	}
	m.mu.Unlock()

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func rateLimitHeaders(remaining int) map[string]string {
	return map[string]string{
		"Fastly-RateLimit-Remaining": strconv.Itoa(remaining),
		"Fastly-RateLimit-Reset":     strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10),
		"Content-Type":               "application/json",
	}
}

// NewOKResponse creates a successful purge response with a healthy budget.
func NewOKResponse() MockFastlyResponse {
	return MockFastlyResponse{
		StatusCode: http.StatusOK,
		Body:       `{"status": "ok"}`,
		Headers:    rateLimitHeaders(900),
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockFastlyResponse {
	return MockFastlyResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"msg": "Too many requests"}`,
		Headers:    rateLimitHeaders(0),
	}
}

// NewServerErrorResponse creates a 503 Service Unavailable response.
func NewServerErrorResponse() MockFastlyResponse {
	return MockFastlyResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       `{"msg": "Service unavailable"}`,
		Headers:    rateLimitHeaders(800),
	}
}

// NewUnauthorizedResponse creates a 401 response for a bad token.
func NewUnauthorizedResponse() MockFastlyResponse {
	return MockFastlyResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"msg": "Provided credentials are missing or invalid"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}
