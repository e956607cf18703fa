package security

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestURL_Validate(t *testing.T) {
	v := NewURL()

	tests := []struct {
		name    string
		url     string
		wantErr string // substring, empty = no error
	}{
		{"public https", "https://example.com/page", ""},
		{"public http", "http://example.com", ""},
		{"public ip", "http://93.184.216.34/", ""},
		{"file scheme", "file:///etc/passwd", "unsupported scheme"},
		{"ftp scheme", "ftp://example.com", "unsupported scheme"},
		{"gopher scheme", "gopher://example.com", "unsupported scheme"},
		{"localhost", "http://localhost:8080/admin", "blocked host"},
		{"localhost mixed case", "http://LocalHost/", "blocked host"},
		{"gcp metadata hostname", "http://metadata.google.internal/computeMetadata", "blocked host"},
		{"loopback", "http://127.0.0.1/", "loopback"},
		{"loopback variant", "http://127.8.9.10/", "loopback"},
		{"ipv6 loopback", "http://[::1]/", "loopback"},
		{"private 10", "http://10.0.0.5/", "private IP"},
		{"private 172", "http://172.16.1.1/", "private IP"},
		{"private 192", "http://192.168.1.1/", "private IP"},
		{"metadata ip", "http://169.254.169.254/latest/meta-data/", "link-local"},
		{"link local", "http://169.254.1.1/", "link-local"},
		{"unspecified", "http://0.0.0.0/", "unspecified"},
		{"mapped ipv4 loopback", "http://[::ffff:127.0.0.1]/", "loopback"},
		{"empty host", "http:///path", "empty hostname"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.url)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate(%q) = %v, want nil", tt.url, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate(%q) = %v, want error containing %q", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestURL_ValidateRedirect(t *testing.T) {
	v := NewURL()

	mkReq := func(raw string) *http.Request {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		return &http.Request{URL: u}
	}

	t.Run("redirect to internal blocked", func(t *testing.T) {
		err := v.ValidateRedirect(mkReq("http://169.254.169.254/"), nil)
		if err == nil {
			t.Error("redirect to metadata endpoint not blocked")
		}
	})

	t.Run("redirect to public allowed", func(t *testing.T) {
		if err := v.ValidateRedirect(mkReq("https://example.org/next"), nil); err != nil {
			t.Errorf("ValidateRedirect() = %v, want nil", err)
		}
	})

	t.Run("chain length bounded", func(t *testing.T) {
		via := make([]*http.Request, 10)
		for i := range via {
			via[i] = mkReq("https://example.org/")
		}
		if err := v.ValidateRedirect(mkReq("https://example.org/"), via); err == nil {
			t.Error("redirect chain of 10 not stopped")
		}
	})
}

func TestNewSafeClient(t *testing.T) {
	client := NewSafeClient(0)
	if client.Transport == nil {
		t.Error("client missing safe transport")
	}
	if client.CheckRedirect == nil {
		t.Error("client missing redirect validation")
	}
}
