package httpkit

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient_SetsUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	c := NewClient()
	resp, err := c.Get(server.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	DrainAndClose(resp.Body, 1024)

	if !strings.HasPrefix(gotUA, "refinery/") {
		t.Errorf("User-Agent = %q, want refinery/ prefix", gotUA)
	}
}

func TestNewClient_ExplicitUserAgentPreserved(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	c := NewClient()
	req, err := http.NewRequest("GET", server.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("User-Agent", "custom/1.0")

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	DrainAndClose(resp.Body, 1024)

	if gotUA != "custom/1.0" {
		t.Errorf("User-Agent = %q, want custom/1.0", gotUA)
	}
}

func TestNewClient_Options(t *testing.T) {
	c := NewClient(WithTimeout(42 * time.Second))
	if c.Timeout != 42*time.Second {
		t.Errorf("Timeout = %v, want 42s", c.Timeout)
	}

	c = NewClient(WithTimeout(0))
	if c.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0 (disabled)", c.Timeout)
	}

	c = NewClient(WithoutUserAgent())
	if _, ok := c.Transport.(*userAgentTransport); ok {
		t.Error("WithoutUserAgent still wrapped the transport")
	}
}

func TestReadErrorBody(t *testing.T) {
	body := io.NopCloser(strings.NewReader(`{"error": "model not found"}`))
	got := ReadErrorBody(body, 4096)
	if got != `{"error": "model not found"}` {
		t.Errorf("ReadErrorBody = %q", got)
	}

	// Truncates at the limit.
	body = io.NopCloser(strings.NewReader("0123456789"))
	if got := ReadErrorBody(body, 4); got != "0123" {
		t.Errorf("truncated body = %q, want 0123", got)
	}

	if got := ReadErrorBody(nil, 10); got != "" {
		t.Errorf("nil body = %q, want empty", got)
	}
}
