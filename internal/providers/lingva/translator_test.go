package lingva

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTranslateMapsLanguageTags(t *testing.T) {
	t.Parallel()

	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"translation":"Kumusta mundo"}`))
	}))
	defer server.Close()

	tr := New(Config{BaseURL: server.URL + "/"})
	out, err := tr.Translate(context.Background(), "en-US", "tl", "Hello world")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out != "Kumusta mundo" {
		t.Fatalf("unexpected translation: %q", out)
	}
	if gotPath != "/api/v1/en/tl/Hello%20world" {
		t.Fatalf("unexpected request path: %q", gotPath)
	}
}

func TestTranslateUnknownTagsUseFallbacks(t *testing.T) {
	t.Parallel()

	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"translation":"hi"}`))
	}))
	defer server.Close()

	if _, err := New(Config{BaseURL: server.URL}).Translate(context.Background(), "ja", "de", "x"); err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !strings.HasPrefix(gotPath, "/api/v1/auto/en/") {
		t.Fatalf("expected auto source and en target, got %q", gotPath)
	}
}

func TestTranslateErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Path, "/es/") {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"upstream down"}`))
	}))
	defer server.Close()

	tr := New(Config{BaseURL: server.URL})
	if _, err := tr.Translate(context.Background(), "en", "tl", "hello"); err == nil {
		t.Fatalf("expected error for 502")
	}
	if _, err := tr.Translate(context.Background(), "en", "es", "hello"); err == nil {
		t.Fatalf("expected error for empty translation")
	}
}

func TestTranslateBlankTextSkipsRequest(t *testing.T) {
	t.Parallel()

	tr := New(Config{BaseURL: "http://127.0.0.1:1"})
	out, err := tr.Translate(context.Background(), "en", "tl", "   ")
	if err != nil || out != "" {
		t.Fatalf("expected empty result without request, got %q %v", out, err)
	}
}
