package audio

import (
	"context"
	"errors"
	"io"
	"sync"

	"hearme/internal/ports"
)

const streamBacklog = 256

// ErrBacklogFull is returned by Write when the session reader has fallen so far
// behind that the frame was dropped.
var ErrBacklogFull = errors.New("audio backlog full; frame dropped")

// StreamCapture is an AudioCapture fed by PCM frames the browser sends over a
// websocket. Frames written while no session is open are discarded.
type StreamCapture struct {
	mu      sync.Mutex
	current *streamSession
}

func NewStreamCapture() *StreamCapture {
	return &StreamCapture{}
}

// Start opens a new session and stops the previous one.
func (c *StreamCapture) Start(ctx context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	session := &streamSession{
		owner:  c,
		frames: make(chan []byte, streamBacklog),
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	previous := c.current
	c.current = session
	c.mu.Unlock()

	if previous != nil {
		_ = previous.Stop()
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Stop()
		case <-session.done:
		}
	}()

	return session, nil
}

// Write queues a PCM frame for the open session without blocking the caller.
func (c *StreamCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	session := c.current
	c.mu.Unlock()

	if session == nil || len(p) == 0 {
		return len(p), nil
	}
	frame := append([]byte(nil), p...)
	select {
	case <-session.done:
		return len(p), nil
	default:
	}
	select {
	case session.frames <- frame:
		return len(p), nil
	default:
		return 0, ErrBacklogFull
	}
}

// Active reports whether a session is currently open.
func (c *StreamCapture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Close stops the open session, if any.
func (c *StreamCapture) Close() error {
	c.mu.Lock()
	session := c.current
	c.mu.Unlock()

	if session == nil {
		return nil
	}
	return session.Stop()
}

func (c *StreamCapture) release(session *streamSession) {
	c.mu.Lock()
	if c.current == session {
		c.current = nil
	}
	c.mu.Unlock()
}

type streamSession struct {
	owner  *StreamCapture
	frames chan []byte
	done   chan struct{}
	once   sync.Once

	// pending is only touched by the single reader.
	pending []byte
}

// Read returns queued frames and io.EOF once the session is stopped and drained.
func (s *streamSession) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		select {
		case frame := <-s.frames:
			s.pending = frame
		case <-s.done:
			select {
			case frame := <-s.frames:
				s.pending = frame
			default:
				return 0, io.EOF
			}
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *streamSession) Stop() error {
	s.once.Do(func() {
		close(s.done)
		s.owner.release(s)
	})
	return nil
}

func (s *streamSession) Close() error {
	return s.Stop()
}
