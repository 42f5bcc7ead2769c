package ports

import (
	"context"
	"io"

	"hearme/internal/domain"
)

// AudioConfig describes how microphone audio should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session producing signed 16-bit little-endian PCM.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic recognition settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	Language       string
	InterimResults bool
}

// StreamingSession is an open recognition stream.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.RecognitionEvent
	Wait() error
	Close() error
}

// SpeechRecognizer opens continuous recognition streams.
type SpeechRecognizer interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// Translator calls the external translation endpoint.
type Translator interface {
	Translate(ctx context.Context, source, target, text string) (string, error)
}

// FileTranscriber converts a finished audio clip into text.
type FileTranscriber interface {
	TranscribeFile(ctx context.Context, name string, audio io.Reader, language string) (string, error)
}

// RulesEngine transforms transcripts using deterministic rules.
type RulesEngine interface {
	Apply(text string) (string, error)
}

// CaptionSink emits caption session state to a connected client.
type CaptionSink interface {
	CaptionStateChanged(state domain.CaptionState, reason domain.CaptionStateReason)
	InterimCaption(text string)
	CaptionChanged(text string)
	TranslationChanged(text string)
	CaptionError(code domain.ErrorCode, detail string)
}

// FeedSink emits the feed view to a connected client.
type FeedSink interface {
	FeedChanged(posts []domain.Post)
	FeedError(code domain.ErrorCode, detail string)
}

// ClipEncoder compresses a finished PCM clip into an exportable container.
type ClipEncoder interface {
	Encode(w io.Writer, pcm []byte, sampleRate, channels int) error
	Extension() string
}
