package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// FakeSearXNG is an httptest server speaking the SearXNG JSON API, with
// canned results per query substring.
type FakeSearXNG struct {
	Server *httptest.Server

	mu      sync.Mutex
	results map[string][]map[string]string // query substring -> results
	fail    bool
	queries []string
}

// NewFakeSearXNG starts a fake SearXNG backend. Shutdown is registered on t.
func NewFakeSearXNG(t *testing.T) *FakeSearXNG {
	t.Helper()
	f := &FakeSearXNG{results: make(map[string][]map[string]string)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the backend base URL.
func (f *FakeSearXNG) URL() string { return f.Server.URL }

// AddResults registers results returned when the query contains substr.
func (f *FakeSearXNG) AddResults(substr string, results ...map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[substr] = results
}

// SetFailing makes every request return HTTP 502.
func (f *FakeSearXNG) SetFailing(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

// Queries returns the queries received so far.
func (f *FakeSearXNG) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]string, len(f.queries))
	copy(cp, f.queries)
	return cp
}

func (f *FakeSearXNG) handle(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	f.mu.Lock()
	f.queries = append(f.queries, query)
	fail := f.fail
	var matched []map[string]string
	for substr, results := range f.results {
		if substr == "" || strings.Contains(strings.ToLower(query), strings.ToLower(substr)) {
			matched = results
			break
		}
	}
	f.mu.Unlock()

	if fail {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	payload := map[string]any{"results": []map[string]string{}}
	if matched != nil {
		payload["results"] = matched
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
