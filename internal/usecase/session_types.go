package usecase

import (
	"errors"
	"io"
	"sync/atomic"
	"time"

	"hearme/internal/domain"
	"hearme/internal/ports"
)

const (
	minChunkSize     = 256
	defaultChunkSize = 4096
)

// activeSession is one open caption stream: the audio capture feeding it and
// the goroutines draining both ends.
type activeSession struct {
	cancel func()
	audio  ports.AudioSession
	stream ports.StreamingSession

	eventsDone chan struct{}
	audioDone  chan struct{}

	forwarded atomic.Int64
}

func newActiveSession(cancel func(), audio ports.AudioSession, stream ports.StreamingSession) *activeSession {
	return &activeSession{
		cancel:     cancel,
		audio:      audio,
		stream:     stream,
		eventsDone: make(chan struct{}),
		audioDone:  make(chan struct{}),
	}
}

// forwardAudio copies captured PCM into the recognition stream until the
// capture ends or the provider rejects a chunk.
func (s *activeSession) forwardAudio(chunkSize int, sink ports.CaptionSink) {
	defer close(s.audioDone)

	if chunkSize < minChunkSize {
		chunkSize = defaultChunkSize
	}
	buf := make([]byte, chunkSize)
	for {
		n, err := s.audio.Read(buf)
		if n > 0 {
			if sendErr := s.stream.SendAudio(buf[:n]); sendErr != nil {
				sink.CaptionError(domain.ErrorCodeAudioStream, "recognition stream rejected audio: "+sendErr.Error())
				return
			}
			s.forwarded.Add(int64(n))
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
			sink.CaptionError(domain.ErrorCodeAudioStream, "audio capture failed: "+err.Error())
		}
		return
	}
}

// drain waits for the provider to flush its last results. A stream still
// open after timeout is closed.
func (s *activeSession) drain(timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- s.stream.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		_ = s.stream.Close()
		return <-done
	}
}

// heard is the duration of 16-bit PCM forwarded so far.
func (s *activeSession) heard(cfg ports.AudioConfig) time.Duration {
	if cfg.SampleRate <= 0 {
		return 0
	}
	channels := max(cfg.Channels, 1)
	frames := s.forwarded.Load() / int64(2*channels)
	return time.Duration(frames) * time.Second / time.Duration(cfg.SampleRate)
}

func (s *activeSession) release() {
	s.cancel()
	_ = s.audio.Stop()
	_ = s.stream.Close()
	<-s.eventsDone
	<-s.audioDone
}
