// Package audio runs external ffmpeg processes for microphone capture and
// playback.
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
	"sync"
	"time"

	"github.com/rs/zerolog"

	"havoice/internal/ports"
)

const (
	startupGrace   = 250 * time.Millisecond
	interruptGrace = 1200 * time.Millisecond
)

// Capture streams raw s16le microphone PCM from an ffmpeg child process.
type Capture struct {
	command string
	log     zerolog.Logger
}

func NewCapture(command string, log zerolog.Logger) *Capture {
	if command == "" {
		command = "ffmpeg"
	}
	return &Capture{command: command, log: log.With().Str("component", "capture").Logger()}
}

func (c *Capture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cfg = withAudioDefaults(cfg)

	cmd := exec.CommandContext(ctx, c.command, captureArgs(cfg)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.command, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("capture exited before audio started: %w: %s", err, trimOutput(stderr.String()))
		}
		return nil, errors.New("capture exited before audio started")
	case <-time.After(startupGrace):
	}

	c.log.Debug().
		Str("device", cfg.InputDevice).
		Int("sample_rate", cfg.SampleRate).
		Msg("microphone capture started")

	return &captureSession{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

func withAudioDefaults(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return cfg
}

func captureArgs(cfg ports.AudioConfig) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

type captureSession struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *captureSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *captureSession) Close() error {
	return s.Stop()
}

// Stop interrupts the process, escalating to kill if it lingers.
func (s *captureSession) Stop() error {
	s.stopOnce.Do(func() {
		s.stopErr = terminate(s.process, s.waitErr)

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = closeErr
		}
		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, trimOutput(s.stderr.String()))
		}
	})
	return s.stopErr
}

func terminate(process *os.Process, waitErr <-chan error) error {
	if process != nil {
		_ = process.Signal(os.Interrupt)
	}

	select {
	case err, ok := <-waitErr:
		if ok {
			return ignoreExitStatus(err)
		}
		return nil
	case <-time.After(interruptGrace):
	}

	if process != nil {
		_ = process.Kill()
	}
	if err, ok := <-waitErr; ok {
		return ignoreExitStatus(err)
	}
	return nil
}

func ignoreExitStatus(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimOutput(input string) string {
	return string(bytes.TrimSpace([]byte(input)))
}
