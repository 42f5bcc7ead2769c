package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hearme/internal/domain"
	"hearme/internal/ports"
)

const (
	deviceStartupWait = 250 * time.Millisecond
	deviceStopGrace   = 1200 * time.Millisecond
)

// ErrDeviceBusy is returned when another connection already holds the input.
var ErrDeviceBusy = fmt.Errorf("audio input is in use by another session: %w", domain.ErrValidation)

// DeviceCapture captures a server-side input as s16le PCM by running an
// ffmpeg-compatible command. The input is either a local device (pulse, alsa)
// or a network source such as a classroom stream URL. Only one session may
// hold the input at a time.
type DeviceCapture struct {
	command     string
	startupWait time.Duration
	log         zerolog.Logger

	mu     sync.Mutex
	holder *deviceSession
}

func NewDeviceCapture(command string, logger zerolog.Logger) *DeviceCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &DeviceCapture{
		command:     command,
		startupWait: deviceStartupWait,
		log:         logger.With().Str("component", "device_capture").Logger(),
	}
}

func isNetworkInput(device string) bool {
	return strings.Contains(device, "://")
}

// captureArgs builds the command line. Network inputs let ffmpeg probe the
// container instead of forcing a device format.
func captureArgs(cfg ports.AudioConfig) []string {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	channels := max(cfg.Channels, 1)
	device := cfg.InputDevice
	if device == "" {
		device = "default"
	}

	args := []string{"-nostdin", "-hide_banner", "-loglevel", "warning"}
	if isNetworkInput(device) {
		args = append(args, "-reconnect", "1", "-reconnect_streamed", "1")
	} else {
		format := cfg.InputFormat
		if format == "" {
			format = "pulse"
		}
		args = append(args, "-f", format)
	}
	return append(args,
		"-i", device,
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(rate),
		"-f", "s16le",
		"-",
	)
}

func (c *DeviceCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.holder != nil {
		return nil, ErrDeviceBusy
	}

	session, err := c.spawn(ctx, cfg)
	if err != nil {
		return nil, err
	}
	session.onStop = func() {
		c.mu.Lock()
		if c.holder == session {
			c.holder = nil
		}
		c.mu.Unlock()
	}
	c.holder = session
	return session, nil
}

// Busy reports whether a session currently holds the input.
func (c *DeviceCapture) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holder != nil
}

func (c *DeviceCapture) spawn(ctx context.Context, cfg ports.AudioConfig) (*deviceSession, error) {
	cmd := exec.CommandContext(ctx, c.command, captureArgs(cfg)...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open capture output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.command, err)
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
		close(exited)
	}()

	// A missing device makes ffmpeg exit almost immediately.
	timer := time.NewTimer(c.startupWait)
	defer timer.Stop()
	select {
	case err := <-exited:
		detail := strings.TrimSpace(stderr.String())
		if err == nil {
			err = errors.New("no audio produced")
		}
		return nil, fmt.Errorf("audio input %q unavailable: %w: %s", cfg.InputDevice, err, detail)
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-exited
		return nil, ctx.Err()
	case <-timer.C:
	}

	c.log.Info().Int("pid", cmd.Process.Pid).Str("input", cfg.InputDevice).Msg("audio input opened")
	return &deviceSession{
		stdout:  stdout,
		stderr:  stderr,
		process: cmd.Process,
		exited:  exited,
		log:     c.log,
	}, nil
}

type deviceSession struct {
	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	process *os.Process
	exited  <-chan error
	log     zerolog.Logger
	onStop  func()

	once sync.Once
	err  error
}

func (s *deviceSession) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if errors.Is(err, os.ErrClosed) {
		err = io.EOF
	}
	return n, err
}

func (s *deviceSession) Close() error {
	return s.Stop()
}

// Stop interrupts the capture so it flushes, kills it after a grace period
// and releases the input.
func (s *deviceSession) Stop() error {
	s.once.Do(func() {
		defer func() {
			if s.onStop != nil {
				s.onStop()
			}
		}()

		_ = s.process.Signal(os.Interrupt)
		timer := time.NewTimer(deviceStopGrace)
		defer timer.Stop()

		var exitErr error
		select {
		case exitErr = <-s.exited:
		case <-timer.C:
			s.log.Warn().Int("pid", s.process.Pid).Msg("audio input ignored interrupt; killing")
			_ = s.process.Kill()
			exitErr = <-s.exited
		}
		s.err = interruptedExit(exitErr)

		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.err == nil {
			s.err = err
		}
		if s.err != nil && s.stderr.Len() > 0 {
			s.err = fmt.Errorf("%w: %s", s.err, strings.TrimSpace(s.stderr.String()))
		}
	})
	return s.err
}

// interruptedExit drops the non-zero status ffmpeg reports after SIGINT.
func interruptedExit(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
