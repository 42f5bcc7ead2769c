package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hearme/internal/domain"
	"hearme/internal/ports"
)

// DefaultMaxClip caps a recording when no limit is configured.
const DefaultMaxClip = 10 * time.Minute

var (
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("no active recording")
)

type RecorderConfig struct {
	Audio       ports.AudioConfig
	Language    string
	OwnerID     string
	MaxDuration time.Duration
}

// RecordingKey is the file store key of an owner's clip.
func RecordingKey(ownerID, name string) string {
	return path.Join(ownerID, name)
}

type captureEnd struct {
	err    error
	capped bool
}

// Recorder buffers one microphone clip at a time and exports it when stopped.
type Recorder struct {
	capture     ports.AudioCapture
	encoder     ports.ClipEncoder
	files       ports.FileStore
	transcriber ports.FileTranscriber
	transcripts ports.TranscriptStore
	log         zerolog.Logger
	cfg         RecorderConfig
	now         func() time.Time

	mu      sync.Mutex
	session ports.AudioSession
	pcm     *bytes.Buffer
	done    chan captureEnd
}

// NewRecorder builds a recorder. transcriber may be nil.
func NewRecorder(
	capture ports.AudioCapture,
	encoder ports.ClipEncoder,
	files ports.FileStore,
	transcriber ports.FileTranscriber,
	transcripts ports.TranscriptStore,
	logger zerolog.Logger,
	cfg RecorderConfig,
) *Recorder {
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxClip
	}
	return &Recorder{
		capture:     capture,
		encoder:     encoder,
		files:       files,
		transcriber: transcriber,
		transcripts: transcripts,
		log:         logger.With().Str("component", "recorder").Str("owner", cfg.OwnerID).Logger(),
		cfg:         cfg,
		now:         time.Now,
	}
}

func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		return ErrAlreadyRecording
	}

	session, err := r.capture.Start(ctx, r.cfg.Audio)
	if err != nil {
		return fmt.Errorf("start recording: %w", err)
	}

	limit := r.maxBytes()
	pcm := &bytes.Buffer{}
	done := make(chan captureEnd, 1)
	go func() {
		n, err := io.Copy(pcm, io.LimitReader(session, limit))
		if errors.Is(err, io.ErrClosedPipe) {
			err = nil
		}
		capped := err == nil && n >= limit
		if capped {
			r.log.Warn().Dur("max", r.cfg.MaxDuration).Msg("recording reached its maximum length; capture stopped")
			_ = session.Stop()
		}
		done <- captureEnd{err: err, capped: capped}
	}()

	r.session = session
	r.pcm = pcm
	r.done = done
	r.log.Info().Msg("recording started")
	return nil
}

// maxBytes is MaxDuration of 16-bit PCM, rounded down to whole frames.
func (r *Recorder) maxBytes() int64 {
	frameBytes := int64(2 * r.cfg.Audio.Channels)
	frames := int64(r.cfg.MaxDuration) * int64(r.cfg.Audio.SampleRate) / int64(time.Second)
	return max(frames, 1) * frameBytes
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// Stop ends capture, stores the encoded clip and returns its metadata.
func (r *Recorder) Stop(ctx context.Context) (domain.Recording, error) {
	r.mu.Lock()
	session, pcm, done := r.session, r.pcm, r.done
	r.session, r.pcm, r.done = nil, nil, nil
	r.mu.Unlock()

	if session == nil {
		return domain.Recording{}, ErrNotRecording
	}

	if err := session.Stop(); err != nil {
		r.log.Warn().Err(err).Msg("audio capture did not stop cleanly")
	}
	end := <-done
	if end.err != nil {
		r.log.Warn().Err(end.err).Msg("audio capture ended with error")
	}
	_ = session.Close()

	clip := pcm.Bytes()
	if len(clip) < 2 {
		return domain.Recording{}, domain.NewValidationError("recording", "No audio was captured")
	}
	clip = clip[:len(clip)-len(clip)%(2*r.cfg.Audio.Channels)]

	var encoded bytes.Buffer
	if err := r.encoder.Encode(&encoded, clip, r.cfg.Audio.SampleRate, r.cfg.Audio.Channels); err != nil {
		return domain.Recording{}, fmt.Errorf("encode recording: %w", err)
	}

	name := fmt.Sprintf("hearme_%d.%s", r.now().UnixMilli(), r.encoder.Extension())
	size, err := r.files.Save(ctx, RecordingKey(r.cfg.OwnerID, name), bytes.NewReader(encoded.Bytes()))
	if err != nil {
		return domain.Recording{}, domain.NewBackendError("save recording", err)
	}

	frames := len(clip) / (2 * r.cfg.Audio.Channels)
	recording := domain.Recording{
		Name:      name,
		Size:      size,
		Duration:  time.Duration(frames) * time.Second / time.Duration(r.cfg.Audio.SampleRate),
		Truncated: end.capped,
	}
	r.log.Info().Str("file", name).Int64("bytes", size).Dur("duration", recording.Duration).Msg("recording saved")

	recording.TranscriptID = r.transcribe(ctx, name, encoded.Bytes())
	return recording, nil
}

// transcribe never fails the recording; problems are logged.
func (r *Recorder) transcribe(ctx context.Context, name string, clip []byte) string {
	if r.transcriber == nil || r.transcripts == nil {
		return ""
	}

	text, err := r.transcriber.TranscribeFile(ctx, name, bytes.NewReader(clip), r.cfg.Language)
	if err != nil {
		r.log.Warn().Err(err).Str("file", name).Msg("recording transcription failed")
		return ""
	}
	if text == "" {
		return ""
	}

	saved, err := r.transcripts.SaveTranscript(ctx, domain.Transcript{
		OwnerID:        r.cfg.OwnerID,
		SourceLanguage: r.cfg.Language,
		Text:           text,
		Origin:         domain.TranscriptOriginRecording,
		CreatedAt:      r.now(),
	})
	if err != nil {
		r.log.Warn().Err(err).Str("file", name).Msg("recording transcript could not be saved")
		return ""
	}
	return saved.ID
}

// Abort drops an in-progress recording.
func (r *Recorder) Abort() {
	r.mu.Lock()
	session, done := r.session, r.done
	r.session, r.pcm, r.done = nil, nil, nil
	r.mu.Unlock()

	if session == nil {
		return
	}
	_ = session.Stop()
	<-done
	_ = session.Close()
}
