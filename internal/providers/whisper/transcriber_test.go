package whisper

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewWithoutKeyIsNil(t *testing.T) {
	t.Parallel()

	if New(Config{}) != nil {
		t.Fatalf("expected nil transcriber without api key")
	}
}

func TestTranscribeFile(t *testing.T) {
	t.Parallel()

	var gotPath, gotLanguage, gotFile string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			gotLanguage = r.FormValue("language")
			if _, header, err := r.FormFile("file"); err == nil {
				gotFile = header.Filename
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" Magandang umaga "}`))
	}))
	defer server.Close()

	tr := New(Config{APIKey: "key", BaseURL: server.URL + "/v1"})
	text, err := tr.TranscribeFile(context.Background(), "hearme_1.flac", bytes.NewReader([]byte("fLaC")), "fil-PH")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "Magandang umaga" {
		t.Fatalf("unexpected text: %q", text)
	}
	if gotPath != "/v1/audio/transcriptions" || gotLanguage != "fil" || gotFile != "hearme_1.flac" {
		t.Fatalf("unexpected request: path=%q language=%q file=%q", gotPath, gotLanguage, gotFile)
	}
}

func TestBaseLanguage(t *testing.T) {
	t.Parallel()

	cases := map[string]string{"en-US": "en", "es": "es", "tl": "tl", "iw": "iw", "": "", "!!": ""}
	for in, want := range cases {
		if got := baseLanguage(in); got != want {
			t.Fatalf("baseLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}
