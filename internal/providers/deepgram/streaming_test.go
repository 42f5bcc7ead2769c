package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"hearme/internal/domain"
	"hearme/internal/ports"
)

func TestNewProviderDefaults(t *testing.T) {
	t.Parallel()

	p := NewProvider(Config{}, zerolog.Nop())
	if p.cfg.APIBaseURL != "https://api.deepgram.com/v1" {
		t.Fatalf("unexpected base url: %q", p.cfg.APIBaseURL)
	}
	if p.cfg.Model != "nova-2" || p.cfg.KeepAlive != defaultKeepAlive {
		t.Fatalf("unexpected defaults: %+v", p.cfg)
	}
}

func TestProviderStartStreamingRequiresAPIKey(t *testing.T) {
	t.Parallel()

	p := NewProvider(Config{APIKey: " "}, zerolog.Nop())
	_, err := p.StartStreaming(context.Background(), ports.StreamingConfig{})
	if !errors.Is(err, domain.ErrUnsupportedEnvironment) {
		t.Fatalf("expected unsupported environment, got %v", err)
	}
}

func TestBuildListenURLDefaults(t *testing.T) {
	t.Parallel()

	url, err := buildListenURL(Config{APIBaseURL: "https://api.deepgram.com/v1", Model: "nova-2"}, ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"wss://api.deepgram.com/v1/listen", "encoding=linear16", "sample_rate=16000", "channels=1"} {
		if !strings.Contains(url, want) {
			t.Fatalf("expected %q in url: %s", want, url)
		}
	}
	if strings.Contains(url, "language=") {
		t.Fatalf("expected no language without a session tag: %s", url)
	}
}

func TestBuildListenURLUsesSessionLanguage(t *testing.T) {
	t.Parallel()

	url, err := buildListenURL(
		Config{APIBaseURL: "http://localhost:8080/v1", Model: "m", SmartFormat: true},
		ports.StreamingConfig{Encoding: "linear16", SampleRate: 8000, Channels: 2, InterimResults: true, Language: "fil-PH"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"ws://localhost:8080/v1/listen", "language=fil-PH", "smart_format=true", "interim_results=true"} {
		if !strings.Contains(url, want) {
			t.Fatalf("expected %q in url: %s", want, url)
		}
	}
}

func TestBuildListenURLInvalidBase(t *testing.T) {
	t.Parallel()

	_, err := buildListenURL(Config{APIBaseURL: ":// bad"}, ports.StreamingConfig{})
	if err == nil {
		t.Fatalf("expected invalid base url error")
	}
}

func TestExtractTranscript(t *testing.T) {
	t.Parallel()

	r1 := deepgramResponse{}
	r1.Channel.Alternatives = []deepgramAlternative{{Transcript: " channel "}}
	if got := extractTranscript(r1); got != "channel" {
		t.Fatalf("unexpected transcript from channel: %q", got)
	}

	if got := extractTranscript(deepgramResponse{}); got != "" {
		t.Fatalf("expected empty transcript, got %q", got)
	}
}

func TestStreamingSessionSendAudioClosed(t *testing.T) {
	t.Parallel()

	s := &streamingSession{sendClosed: true}
	if err := s.SendAudio([]byte("x")); err == nil {
		t.Fatalf("expected closed error")
	}
}

func TestStreamingSessionCloseSendIsIdempotent(t *testing.T) {
	t.Parallel()

	s := &streamingSession{audio: make(chan []byte, 1)}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("unexpected second error: %v", err)
	}
}

func TestStreamingSessionSetErrIgnoresCloseErrors(t *testing.T) {
	t.Parallel()

	s := &streamingSession{}
	s.setErr(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "closed"})
	if s.waitErr() != nil {
		t.Fatalf("expected close error to be ignored")
	}

	s.setErr(errors.New("boom"))
	s.setErr(errors.New("second"))
	if s.waitErr() == nil || s.waitErr().Error() != "boom" {
		t.Fatalf("expected first non-close error to be captured")
	}
}

// fakeListenServer answers each audio frame with an interim and a final
// result, and closes the socket after CloseStream.
func fakeListenServer(t *testing.T, seen chan<- *http.Request) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			seen <- r
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel"}]}}`))
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"`+string(payload)+`"}]}}`))
				continue
			}
			if strings.Contains(string(payload), "CloseStream") {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}))
}

func TestStreamingSessionRoundTrip(t *testing.T) {
	t.Parallel()

	seen := make(chan *http.Request, 1)
	server := fakeListenServer(t, seen)
	defer server.Close()

	p := NewProvider(Config{APIKey: "key", APIBaseURL: server.URL}, zerolog.Nop())
	session, err := p.StartStreaming(context.Background(), ports.StreamingConfig{Language: "en-US", InterimResults: true})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	req := <-seen
	if req.Header.Get("Authorization") != "Token key" || req.URL.Query().Get("language") != "en-US" {
		t.Fatalf("unexpected request: %v %v", req.Header, req.URL)
	}

	if err := session.SendAudio([]byte("Hello")); err != nil {
		t.Fatalf("send: %v", err)
	}

	var finals []string
	timeout := time.After(2 * time.Second)
	for len(finals) == 0 {
		select {
		case ev := <-session.Events():
			if ev.Kind == domain.RecognitionFinal {
				finals = append(finals, ev.Text)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for final result")
		}
	}
	if finals[0] != "Hello" {
		t.Fatalf("unexpected final: %q", finals[0])
	}

	_ = session.CloseSend()
	for range session.Events() {
	}
	if err := session.Wait(); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}
}

func TestStreamingSessionContextCancelCloses(t *testing.T) {
	t.Parallel()

	server := fakeListenServer(t, nil)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p := NewProvider(Config{APIKey: "key", APIBaseURL: server.URL}, zerolog.Nop())
	session, err := p.StartStreaming(ctx, ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	cancel()
	done := make(chan error, 1)
	go func() { done <- session.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected no error after cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not close after cancel")
	}
}
