package tools

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/genkit"

	"github.com/cormorant-ai/cormorant/internal/log"
	"github.com/cormorant-ai/cormorant/internal/search"
)

// SearchToolName is the wire name of the web search tool.
const SearchToolName = "web_search"

// SearchInput is the model-facing input of web_search.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query"`
}

// SearchResult is one hit returned to the model.
type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchOutput is the structured result of web_search. The results slice is
// what the stream translator mines for URLs.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// searcher is the query behavior web_search needs from the search client.
type searcher interface {
	Search(ctx context.Context, query string) ([]search.Result, error)
}

// NewSearchTool registers web_search backed by the given search client.
func NewSearchTool(g *genkit.Genkit, client searcher, logger log.Logger) (Invocable, error) {
	if client == nil {
		return nil, fmt.Errorf("search client is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	return define(g, SearchToolName,
		"Search the web for current information. Returns a list of results with url, title and snippet. Use for news, recent events and facts you are not sure about.",
		func(ctx context.Context, in SearchInput) (any, error) {
			logger.Info("web_search called", "query", in.Query)

			hits, err := client.Search(ctx, in.Query)
			if err != nil {
				logger.Warn("web_search failed", "query", in.Query, "error", err)
				return nil, fmt.Errorf("search failed: %w", err)
			}

			out := SearchOutput{Query: in.Query, Results: make([]SearchResult, 0, len(hits))}
			for _, h := range hits {
				out.Results = append(out.Results, SearchResult{
					URL:     h.URL,
					Title:   h.Title,
					Snippet: h.Snippet,
				})
			}
			logger.Debug("web_search succeeded", "query", in.Query, "results", len(out.Results))
			return out, nil
		})
}
