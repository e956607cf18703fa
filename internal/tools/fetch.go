package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/firebase/genkit/go/genkit"
	readability "github.com/go-shiori/go-readability"

	"github.com/cormorant-ai/cormorant/internal/log"
	"github.com/cormorant-ai/cormorant/internal/security"
)

// FetchToolName is the wire name of the page fetch tool.
const FetchToolName = "web_fetch"

// FetchInput is the model-facing input of web_fetch.
type FetchInput struct {
	URL string `json:"url" jsonschema:"the http or https URL of the page to read"`
}

// FetchOutput is the readable-text extraction of a fetched page.
type FetchOutput struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Excerpt string `json:"excerpt,omitempty"`
}

// maxContentRunes caps the extracted text handed back to the model.
const maxContentRunes = 20000

// FetchConfig bounds web_fetch requests.
type FetchConfig struct {
	MaxResponseBytes int64
	Timeout          time.Duration
}

// NewFetchTool registers web_fetch: it downloads a model-chosen page through
// the SSRF-validating client and returns its readable text.
func NewFetchTool(g *genkit.Genkit, cfg FetchConfig, logger log.Logger) (Invocable, error) {
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = 10 << 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.NewNop()
	}

	validator := security.NewURL()
	client := security.NewSafeClient(cfg.Timeout)

	return define(g, FetchToolName,
		"Fetch a web page and return its readable text content. Use after web_search to read a promising result in full.",
		func(ctx context.Context, in FetchInput) (any, error) {
			logger.Info("web_fetch called", "url", in.URL)

			if err := validator.Validate(in.URL); err != nil {
				logger.Warn("web_fetch blocked", "url", in.URL, "error", err)
				return nil, fmt.Errorf("url rejected: %w", err)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
			if err != nil {
				return nil, fmt.Errorf("building request: %w", err)
			}
			req.Header.Set("User-Agent", "cormorant/1.0 (+https://github.com/cormorant-ai/cormorant)")

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("fetch failed: %w", err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("fetch failed: status %d", resp.StatusCode)
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, cfg.MaxResponseBytes))
			if err != nil {
				return nil, fmt.Errorf("reading response: %w", err)
			}
			if int64(len(body)) == cfg.MaxResponseBytes {
				return nil, fmt.Errorf("page exceeds size limit (%d bytes)", cfg.MaxResponseBytes)
			}

			out, err := extractReadable(body, resp.Request.URL)
			if err != nil {
				return nil, err
			}
			out.URL = in.URL

			logger.Debug("web_fetch succeeded", "url", in.URL, "content_len", len(out.Content))
			return out, nil
		})
}

// extractReadable runs readability extraction with a goquery fallback for
// pages readability cannot parse into an article (index pages, bare HTML).
func extractReadable(body []byte, pageURL *url.URL) (*FetchOutput, error) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return &FetchOutput{
			Title:   article.Title,
			Content: truncateRunes(normalizeWhitespace(article.TextContent), maxContentRunes),
			Excerpt: article.Excerpt,
		}, nil
	}

	doc, qerr := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if qerr != nil {
		return nil, fmt.Errorf("page is not parseable HTML: %w", qerr)
	}
	doc.Find("script, style, noscript").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	text := normalizeWhitespace(doc.Find("body").Text())
	if text == "" {
		return nil, fmt.Errorf("no readable text content found")
	}

	return &FetchOutput{
		Title:   title,
		Content: truncateRunes(text, maxContentRunes),
	}, nil
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + " […truncated]"
}
