// Package recognition runs streaming speech recognition sessions over a
// websocket, feeding microphone audio in and surfacing transcript events.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"havoice/internal/domain"
	"havoice/internal/ports"
)

// ErrSessionClosed is returned when audio is sent after the session ended.
var ErrSessionClosed = errors.New("recognition session closed")

// Codec adapts the wire protocol of one recognition engine.
type Codec interface {
	// Open sends any handshake frames before audio starts flowing.
	Open(conn *websocket.Conn) error
	// AudioFrame wraps one chunk of PCM audio.
	AudioFrame(chunk []byte) (messageType int, payload []byte)
	// EndFrame signals that no more audio will follow.
	EndFrame() (messageType int, payload []byte)
	// Decode turns one server frame into transcript events. done reports
	// that the engine has finished the session.
	Decode(messageType int, payload []byte) (events []domain.TranscriptEvent, done bool, err error)
}

// StreamOptions tunes a Stream.
type StreamOptions struct {
	ChunkSize int
	// Continuous keeps the session open after the first final result.
	Continuous bool
	// StopGrace bounds how long Stop waits for the engine to flush.
	StopGrace time.Duration
}

// Stream is a live websocket recognition session. It implements
// ports.RecognitionSession.
type Stream struct {
	conn  *websocket.Conn
	codec Codec
	mic   ports.AudioSession
	opts  StreamOptions
	log   zerolog.Logger

	events   chan domain.TranscriptEvent
	audio    chan []byte
	endSend  chan struct{}
	done     chan struct{}
	aborted  atomic.Bool
	stopping atomic.Bool
	wg       sync.WaitGroup
	errMu    sync.Mutex
	err      error
	endOnce  sync.Once
	stopOnce sync.Once
	killOnce sync.Once
}

// NewStream performs the codec handshake and starts pumping mic audio into
// conn. The stream owns both conn and mic from here on.
func NewStream(ctx context.Context, conn *websocket.Conn, codec Codec, mic ports.AudioSession, opts StreamOptions, log zerolog.Logger) (*Stream, error) {
	if opts.ChunkSize < 256 {
		opts.ChunkSize = 4096
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 4 * time.Second
	}

	if err := codec.Open(conn); err != nil {
		_ = conn.Close()
		_ = mic.Stop()
		return nil, fmt.Errorf("recognition handshake: %w", err)
	}

	s := &Stream{
		conn:    conn,
		codec:   codec,
		mic:     mic,
		opts:    opts,
		log:     log,
		events:  make(chan domain.TranscriptEvent, 64),
		audio:   make(chan []byte, 32),
		endSend: make(chan struct{}),
		done:    make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go s.pumpMic()
	go func() {
		s.wg.Wait()
		close(s.events)
		_ = conn.Close()
		_ = mic.Stop()
		close(s.done)
	}()

	go func() {
		select {
		case <-ctx.Done():
			s.abort()
		case <-s.done:
		}
	}()

	return s, nil
}

func (s *Stream) Events() <-chan domain.TranscriptEvent {
	return s.events
}

// Err returns the terminal error once the session has ended.
func (s *Stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Done is closed once the session is fully torn down.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Stop ends audio capture, lets the engine flush its last result and
// returns once the connection is closed.
func (s *Stream) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		if err := s.mic.Stop(); err != nil {
			s.log.Warn().Err(err).Msg("microphone did not stop cleanly")
		}
		s.endAudio()
	})

	grace := time.NewTimer(s.opts.StopGrace)
	defer grace.Stop()

	select {
	case <-s.done:
	case <-grace.C:
		s.log.Warn().Dur("grace", s.opts.StopGrace).Msg("engine did not finish in time, closing")
		s.abort()
		<-s.done
	case <-ctx.Done():
		s.abort()
		<-s.done
	}
	return s.Err()
}

// abort tears the connection down without waiting for the engine.
func (s *Stream) abort() {
	s.killOnce.Do(func() {
		s.aborted.Store(true)
		s.endAudio()
		_ = s.conn.Close()
	})
}

func (s *Stream) endAudio() {
	s.endOnce.Do(func() {
		close(s.endSend)
	})
}

func (s *Stream) setErr(err error) {
	if err == nil || s.aborted.Load() {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Stream) pumpMic() {
	err := Pump(s.mic, s.opts.ChunkSize, func(chunk []byte) error {
		select {
		case s.audio <- chunk:
			return nil
		case <-s.endSend:
			return ErrSessionClosed
		}
	})
	if err != nil && !errors.Is(err, ErrSessionClosed) && !s.stopping.Load() {
		s.setErr(fmt.Errorf("audio capture: %w", err))
	}
	s.endAudio()
}

func (s *Stream) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case chunk := <-s.audio:
			if !s.writeAudio(chunk) {
				return
			}
		case <-s.endSend:
		drain:
			for {
				select {
				case chunk := <-s.audio:
					if !s.writeAudio(chunk) {
						return
					}
				default:
					break drain
				}
			}
			if s.aborted.Load() {
				return
			}
			kind, payload := s.codec.EndFrame()
			if err := s.conn.WriteMessage(kind, payload); err != nil {
				s.setErr(fmt.Errorf("send end of audio: %w", err))
			}
			return
		}
	}
}

func (s *Stream) writeAudio(chunk []byte) bool {
	kind, payload := s.codec.AudioFrame(chunk)
	if err := s.conn.WriteMessage(kind, payload); err != nil {
		s.setErr(fmt.Errorf("send audio: %w", err))
		return false
	}
	return true
}

func (s *Stream) readLoop() {
	defer s.wg.Done()
	defer s.abort()

	for {
		kind, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("read recognition event: %w", err))
			return
		}

		events, done, err := s.codec.Decode(kind, payload)
		if err != nil {
			s.setErr(err)
			return
		}
		for _, event := range events {
			s.emit(event)
			if event.IsFinal() && !s.opts.Continuous {
				s.endAudio()
			}
		}
		if done {
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

func (s *Stream) emit(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	default:
		s.log.Warn().Str("kind", string(event.Kind)).Msg("transcript buffer full, dropping event")
	}
}
