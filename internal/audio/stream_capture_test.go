package audio

import (
	"context"
	"errors"
	"io"
	"testing"

	"hearme/internal/ports"
)

func TestStreamCaptureDeliversFramesThenEOF(t *testing.T) {
	t.Parallel()

	capture := NewStreamCapture()
	session, err := capture.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !capture.Active() {
		t.Fatalf("expected active session")
	}

	for _, frame := range []string{"ab", "cd"} {
		if _, err := capture.Write([]byte(frame)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if capture.Active() {
		t.Fatalf("expected no active session after stop")
	}

	data, err := io.ReadAll(session)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "abcd" {
		t.Fatalf("unexpected data %q", data)
	}
}

func TestStreamCaptureDiscardsWithoutSession(t *testing.T) {
	t.Parallel()

	capture := NewStreamCapture()
	n, err := capture.Write([]byte("xyz"))
	if err != nil || n != 3 {
		t.Fatalf("expected silent discard, got n=%d err=%v", n, err)
	}
}

func TestStreamCaptureRestartStopsPrevious(t *testing.T) {
	t.Parallel()

	capture := NewStreamCapture()
	first, _ := capture.Start(context.Background(), ports.AudioConfig{})
	second, _ := capture.Start(context.Background(), ports.AudioConfig{})

	if _, err := first.Read(make([]byte, 4)); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF from replaced session, got %v", err)
	}
	if _, err := capture.Write([]byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 4)
	n, err := second.Read(buf)
	if err != nil || string(buf[:n]) != "hi" {
		t.Fatalf("unexpected read %q %v", buf[:n], err)
	}
}

func TestStreamCaptureBacklogFull(t *testing.T) {
	t.Parallel()

	capture := NewStreamCapture()
	if _, err := capture.Start(context.Background(), ports.AudioConfig{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < streamBacklog; i++ {
		if _, err := capture.Write([]byte{1}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if _, err := capture.Write([]byte{1}); !errors.Is(err, ErrBacklogFull) {
		t.Fatalf("expected backlog error, got %v", err)
	}
}

func TestStreamCaptureContextCancelStops(t *testing.T) {
	t.Parallel()

	capture := NewStreamCapture()
	ctx, cancel := context.WithCancel(context.Background())
	session, _ := capture.Start(ctx, ports.AudioConfig{})
	cancel()

	if _, err := session.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after cancel, got %v", err)
	}
}
