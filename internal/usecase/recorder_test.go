package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hearme/internal/domain"
	"hearme/internal/ports"
)

type fakeClipEncoder struct {
	pcm []byte
}

func (e *fakeClipEncoder) Encode(w io.Writer, pcm []byte, _, _ int) error {
	e.pcm = append([]byte(nil), pcm...)
	_, err := w.Write([]byte("fLaC"))
	return err
}

func (e *fakeClipEncoder) Extension() string { return "flac" }

type fakeFileStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (s *fakeFileStore) Save(_ context.Context, name string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = make(map[string][]byte)
	}
	s.files[name] = data
	return int64(len(data)), nil
}

func (s *fakeFileStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type fakeFileTranscriber struct {
	text string
	err  error
}

func (f *fakeFileTranscriber) TranscribeFile(_ context.Context, _ string, audio io.Reader, _ string) (string, error) {
	_, _ = io.Copy(io.Discard, audio)
	return f.text, f.err
}

func TestRecorderStopExportsClip(t *testing.T) {
	t.Parallel()

	capture := &fakeAudioCapture{}
	encoder := &fakeClipEncoder{}
	files := &fakeFileStore{}
	transcripts := &fakeTranscriptStore{}
	rec := NewRecorder(capture, encoder, files, &fakeFileTranscriber{text: "hello there"}, transcripts, zerolog.Nop(), RecorderConfig{Language: "en", OwnerID: "u1"})
	rec.now = func() time.Time { return time.UnixMilli(1700000000123) }

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := rec.Start(context.Background()); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("expected already recording, got %v", err)
	}

	pcm := make([]byte, 32000)
	if _, err := capture.sessions[0].w.Write(pcm); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	recording, err := rec.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if recording.Name != "hearme_1700000000123.flac" {
		t.Fatalf("unexpected name %q", recording.Name)
	}
	if recording.Duration != time.Second || recording.Size != 4 {
		t.Fatalf("unexpected metadata: %+v", recording)
	}
	if len(encoder.pcm) != len(pcm) {
		t.Fatalf("encoder saw %d bytes", len(encoder.pcm))
	}
	if recording.TranscriptID == "" || transcripts.saved[0].Origin != domain.TranscriptOriginRecording {
		t.Fatalf("expected recording transcript, got %+v", transcripts.saved)
	}
	if !strings.HasPrefix(string(files.files["u1/hearme_1700000000123.flac"]), "fLaC") {
		t.Fatalf("expected clip stored under the owner key, got %v", files.files)
	}
	if recording.Truncated {
		t.Fatalf("unexpected truncation")
	}
}

func TestRecorderStopsCaptureAtMaxDuration(t *testing.T) {
	t.Parallel()

	capture := &fakeAudioCapture{}
	encoder := &fakeClipEncoder{}
	rec := NewRecorder(capture, encoder, &fakeFileStore{}, nil, nil, zerolog.Nop(), RecorderConfig{
		Audio:       ports.AudioConfig{SampleRate: 16000, Channels: 1},
		OwnerID:     "u1",
		MaxDuration: 500 * time.Millisecond,
	})

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	written := make(chan error, 1)
	go func() {
		_, err := capture.sessions[0].w.Write(make([]byte, 64000))
		written <- err
	}()
	if err := <-written; !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected capture to be stopped at the limit, got %v", err)
	}

	recording, err := rec.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !recording.Truncated || recording.Duration != 500*time.Millisecond || len(encoder.pcm) != 16000 {
		t.Fatalf("unexpected capped recording: %+v (%d bytes)", recording, len(encoder.pcm))
	}
}

func TestRecordingKey(t *testing.T) {
	t.Parallel()

	if got := RecordingKey("u1", "hearme_1.flac"); got != "u1/hearme_1.flac" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := RecordingKey("", "hearme_1.flac"); got != "hearme_1.flac" {
		t.Fatalf("unexpected ownerless key %q", got)
	}
}

func TestRecorderTranscriptionFailureKeepsRecording(t *testing.T) {
	t.Parallel()

	capture := &fakeAudioCapture{}
	transcripts := &fakeTranscriptStore{}
	rec := NewRecorder(capture, &fakeClipEncoder{}, &fakeFileStore{}, &fakeFileTranscriber{err: errBoom}, transcripts, zerolog.Nop(), RecorderConfig{})

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := capture.sessions[0].w.Write(make([]byte, 640)); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	recording, err := rec.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if recording.TranscriptID != "" || len(transcripts.saved) != 0 {
		t.Fatalf("expected no transcript")
	}
}

func TestRecorderStopWithoutStart(t *testing.T) {
	t.Parallel()

	rec := NewRecorder(&fakeAudioCapture{}, &fakeClipEncoder{}, &fakeFileStore{}, nil, nil, zerolog.Nop(), RecorderConfig{})
	if _, err := rec.Stop(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}
}
