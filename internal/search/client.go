// Package search provides a client for the SearXNG metasearch JSON API.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cormorant-ai/cormorant/internal/log"
)

// Sentinel errors returned by Search.
var (
	// ErrEmptyQuery indicates the query was empty or whitespace.
	ErrEmptyQuery = errors.New("empty query")

	// ErrSearchUnavailable indicates the SearXNG backend could not be
	// reached or returned a non-200 status.
	ErrSearchUnavailable = errors.New("search backend unavailable")
)

// maxResponseBytes bounds the decoded SearXNG response.
const maxResponseBytes = 4 << 20

// Result is one search hit.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}

// Client queries a SearXNG instance. Safe for concurrent use.
type Client struct {
	baseURL    string
	maxResults int
	httpClient *http.Client
	logger     log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a SearXNG client. maxResults caps the hits returned per
// query; zero or negative means no cap.
func NewClient(baseURL string, maxResults int, logger log.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// searxngResponse mirrors the subset of the SearXNG JSON payload we consume.
type searxngResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search runs a query against the SearXNG JSON API and returns the top hits.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")

	reqURL := c.baseURL + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrSearchUnavailable, resp.StatusCode)
	}

	var payload searxngResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrSearchUnavailable, err)
	}

	results := make([]Result, 0, len(payload.Results))
	for _, r := range payload.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, Result{URL: r.URL, Title: r.Title, Snippet: r.Content})
		if c.maxResults > 0 && len(results) >= c.maxResults {
			break
		}
	}

	c.logger.Debug("search completed", "query", query, "results", len(results))
	return results, nil
}
