package tools

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/genkit"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>Go 1.23 Released</title></head>
<body>
<article>
<h1>Go 1.23 Released</h1>
<p>The latest Go release brings iterator functions to the language. Range
over function types enables lazy sequences without channels or callbacks.</p>
<p>The release also includes improvements to the runtime, tools and
standard library, continuing the compatibility promise of Go 1.</p>
</article>
</body>
</html>`

func TestExtractReadable_Article(t *testing.T) {
	u, _ := url.Parse("https://example.com/go-release")
	out, err := extractReadable([]byte(articleHTML), u)
	if err != nil {
		t.Fatalf("extractReadable() = %v", err)
	}
	if !strings.Contains(out.Title, "Go 1.23") {
		t.Errorf("Title = %q, want Go 1.23 mention", out.Title)
	}
	if !strings.Contains(out.Content, "iterator functions") {
		t.Errorf("Content missing article text: %q", out.Content)
	}
	if strings.Contains(out.Content, "<p>") {
		t.Errorf("Content contains markup: %q", out.Content)
	}
}

func TestExtractReadable_BareHTMLFallback(t *testing.T) {
	html := `<html><head><title>Index</title><script>var x = 1;</script></head>` +
		`<body><ul><li>one</li><li>two</li></ul></body></html>`
	u, _ := url.Parse("https://example.com/")

	out, err := extractReadable([]byte(html), u)
	if err != nil {
		t.Fatalf("extractReadable() = %v", err)
	}
	if out.Title != "Index" {
		t.Errorf("Title = %q, want Index", out.Title)
	}
	if strings.Contains(out.Content, "var x") {
		t.Errorf("Content includes script text: %q", out.Content)
	}
	if !strings.Contains(out.Content, "one") || !strings.Contains(out.Content, "two") {
		t.Errorf("Content missing body text: %q", out.Content)
	}
}

func TestExtractReadable_NoText(t *testing.T) {
	u, _ := url.Parse("https://example.com/")
	if _, err := extractReadable([]byte(`<html><body></body></html>`), u); err == nil {
		t.Error("extractReadable(empty body) = nil, want error")
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("short", 100); got != "short" {
		t.Errorf("truncateRunes(short) = %q", got)
	}
	long := strings.Repeat("語", 50)
	got := truncateRunes(long, 10)
	if !strings.HasPrefix(got, strings.Repeat("語", 10)) || !strings.Contains(got, "truncated") {
		t.Errorf("truncateRunes(long) = %q", got)
	}
}

func TestFetchTool_BlocksPrivateTargets(t *testing.T) {
	g := genkit.Init(context.Background())
	inv, err := NewFetchTool(g, FetchConfig{}, nil)
	if err != nil {
		t.Fatalf("NewFetchTool() = %v", err)
	}

	blocked := []string{
		"http://127.0.0.1:8080/admin",
		"http://169.254.169.254/latest/meta-data/",
		"http://localhost/secrets",
		"file:///etc/passwd",
	}
	for _, target := range blocked {
		if _, err := inv.Invoke(context.Background(), map[string]any{"url": target}); err == nil {
			t.Errorf("Invoke(%q) = nil, want rejection", target)
		}
	}
}
