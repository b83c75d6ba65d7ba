// Package testutil provides a fake contest backend for tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// Envelope selects how a mock list endpoint wraps its items.
type Envelope int

const (
	// EnvelopePagination is {"data": [...], "pagination": {"page", "totalPages", ...}}.
	EnvelopePagination Envelope = iota

	// EnvelopeTotal is {"data": [...], "total": N}.
	EnvelopeTotal

	// EnvelopeArray is a bare JSON array holding every item.
	EnvelopeArray
)

// Item is one record served by a mock list.
type Item map[string]any

// RecordedRequest is a request seen by the mock backend.
type RecordedRequest struct {
	Method   string
	Path     string
	Query    string
	Header   http.Header
	Body     []byte
	Received time.Time
}

type mockList struct {
	items    []Item
	envelope Envelope
}

// MockBackend is a configurable fake of the contest REST backend. Custom
// routes take precedence; any other GET path with a configured list is
// served as a paginated list.
type MockBackend struct {
	server *httptest.Server
	custom *mux.Router

	mu        sync.Mutex
	lists     map[string]*mockList
	failures  map[string][]int
	delays    map[string]time.Duration
	requests  []RecordedRequest
	rateLimit [2]int
}

// NewMockBackend starts a mock backend.
func NewMockBackend() *MockBackend {
	m := &MockBackend{
		custom:   mux.NewRouter(),
		lists:    make(map[string]*mockList),
		failures: make(map[string][]int),
		delays:   make(map[string]time.Duration),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serveHTTP))
	return m
}

// URL returns the mock server URL.
func (m *MockBackend) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBackend) Close() {
	m.server.Close()
}

// Reset clears recorded requests and pending failures.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.failures = make(map[string][]int)
}

// SetList serves items at path, paginated with page and limit.
func (m *MockBackend) SetList(path string, items []Item, envelope Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[path] = &mockList{items: items, envelope: envelope}
}

// HandleFunc registers a custom route (gorilla/mux path template).
func (m *MockBackend) HandleFunc(method, path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.custom.HandleFunc(path, handler).Methods(method)
}

// FailNext makes the next len(statuses) requests to path answer with the
// given statuses, in order.
func (m *MockBackend) FailNext(path string, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = append(m.failures[path], statuses...)
}

// SetDelay delays every response for path.
func (m *MockBackend) SetDelay(path string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[path] = d
}

// SetRateLimit adds X-RateLimit-Remaining/Reset headers to every response.
func (m *MockBackend) SetRateLimit(remaining, resetSeconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimit = [2]int{remaining, resetSeconds}
}

// Requests returns every recorded request.
func (m *MockBackend) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// RequestCount returns how many requests were made to path.
func (m *MockBackend) RequestCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

// LastRequest returns the most recent request to path.
func (m *MockBackend) LastRequest(path string) (RecordedRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.requests) - 1; i >= 0; i-- {
		if m.requests[i].Path == path {
			return m.requests[i], true
		}
	}
	return RecordedRequest{}, false
}

func (m *MockBackend) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Method:   r.Method,
		Path:     r.URL.Path,
		Query:    r.URL.RawQuery,
		Header:   r.Header.Clone(),
		Body:     body,
		Received: time.Now(),
	})
	delay := m.delays[r.URL.Path]
	status := 0
	if queued := m.failures[r.URL.Path]; len(queued) > 0 {
		status = queued[0]
		m.failures[r.URL.Path] = queued[1:]
	}
	if m.rateLimit[1] > 0 {
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(m.rateLimit[0]))
		w.Header().Set("X-RateLimit-Reset", strconv.Itoa(m.rateLimit[1]))
	}
	list := m.lists[r.URL.Path]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if status != 0 {
		writeJSON(w, status, map[string]string{"message": http.StatusText(status)})
		return
	}

	if m.custom.Match(r, &mux.RouteMatch{}) {
		m.custom.ServeHTTP(w, r)
		return
	}

	if list != nil && r.Method == http.MethodGet {
		serveList(w, r, list)
		return
	}

	writeJSON(w, http.StatusNotFound, map[string]string{"message": "route not found"})
}

func serveList(w http.ResponseWriter, r *http.Request, list *mockList) {
	q := r.URL.Query()
	matched := make([]Item, 0, len(list.items))
	for _, item := range list.items {
		if matches(item, q) {
			matched = append(matched, item)
		}
	}

	if list.envelope == EnvelopeArray {
		writeJSON(w, http.StatusOK, matched)
		return
	}

	page := positive(q.Get("page"), 1)
	limit := positive(q.Get("limit"), 10)
	start := min((page-1)*limit, len(matched))
	end := min(start+limit, len(matched))
	data := matched[start:end]

	if list.envelope == EnvelopeTotal {
		writeJSON(w, http.StatusOK, map[string]any{"data": data, "total": len(matched)})
		return
	}

	totalPages := (len(matched) + limit - 1) / limit
	writeJSON(w, http.StatusOK, map[string]any{
		"data": data,
		"pagination": map[string]int{
			"page":       page,
			"limit":      limit,
			"totalItems": len(matched),
			"totalPages": totalPages,
		},
	})
}

// matches applies the list filters the backend understands: "search"
// matches the item name, "all" or empty matches anything, other keys
// compare case-insensitively with the item field of the same name.
func matches(item Item, q map[string][]string) bool {
	for key, values := range q {
		if key == "page" || key == "limit" || len(values) == 0 {
			continue
		}
		want := values[0]
		if want == "" || strings.EqualFold(want, "all") {
			continue
		}
		if key == "search" {
			name, _ := item["name"].(string)
			if !strings.Contains(strings.ToLower(name), strings.ToLower(want)) {
				return false
			}
			continue
		}
		got, ok := item[key]
		if !ok {
			continue
		}
		if !strings.EqualFold(toString(got), want) {
			return false
		}
	}
	return true
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func positive(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Items builds n items with sequential ids and names "<prefix> <i>".
func Items(prefix string, n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{
			"_id":  strconv.Itoa(i + 1),
			"name": prefix + " " + strconv.Itoa(i+1),
		}
	}
	return items
}
