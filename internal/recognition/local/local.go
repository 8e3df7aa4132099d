// Package local streams audio to a recognition server on the local network
// that speaks the Vosk websocket protocol.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"havoice/internal/domain"
	"havoice/internal/ports"
	"havoice/internal/recognition"
)

// Config controls the local recognizer.
type Config struct {
	URL        string
	SampleRate int
	ChunkSize  int
	StopGrace  time.Duration
	Audio      ports.AudioConfig
}

// Recognizer implements ports.Recognizer against a local server.
type Recognizer struct {
	cfg     Config
	capture ports.AudioCapture
	dialer  *websocket.Dialer
	log     zerolog.Logger
}

func NewRecognizer(cfg Config, capture ports.AudioCapture, log zerolog.Logger) *Recognizer {
	if cfg.URL == "" {
		cfg.URL = "ws://localhost:2700"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.StopGrace <= 0 {
		// the server answers eof almost immediately
		cfg.StopGrace = time.Second
	}
	cfg.Audio.SampleRate = cfg.SampleRate
	return &Recognizer{
		cfg:     cfg,
		capture: capture,
		dialer:  websocket.DefaultDialer,
		log:     log.With().Str("component", "recognizer").Str("backend", string(domain.BackendLocal)).Logger(),
	}
}

func (r *Recognizer) Start(ctx context.Context, opts ports.RecognitionOptions) (ports.RecognitionSession, error) {
	conn, _, err := r.dialer.DialContext(ctx, r.cfg.URL, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("connect to local recognizer %s: %w", r.cfg.URL, err)
	}

	mic, err := r.capture.Start(ctx, r.cfg.Audio)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("start microphone: %w", err)
	}

	stream, err := recognition.NewStream(ctx, conn, codec{sampleRate: r.cfg.SampleRate}, mic, recognition.StreamOptions{
		ChunkSize:  r.cfg.ChunkSize,
		Continuous: opts.Continuous,
		StopGrace:  r.cfg.StopGrace,
	}, r.log)
	if err != nil {
		return nil, err
	}

	r.log.Debug().Str("url", r.cfg.URL).Bool("continuous", opts.Continuous).Msg("local recognition started")
	return stream, nil
}

type codec struct {
	sampleRate int
}

type configMessage struct {
	Config struct {
		SampleRate int `json:"sample_rate"`
	} `json:"config"`
}

type resultMessage struct {
	Partial *string `json:"partial"`
	Text    *string `json:"text"`
}

func (c codec) Open(conn *websocket.Conn) error {
	var msg configMessage
	msg.Config.SampleRate = c.sampleRate
	return conn.WriteJSON(msg)
}

func (codec) AudioFrame(chunk []byte) (int, []byte) {
	return websocket.BinaryMessage, chunk
}

func (codec) EndFrame() (int, []byte) {
	return websocket.TextMessage, []byte(`{"eof" : 1}`)
}

func (codec) Decode(kind int, payload []byte) ([]domain.TranscriptEvent, bool, error) {
	if kind != websocket.TextMessage {
		return nil, false, nil
	}

	var msg resultMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, false, nil
	}

	switch {
	case msg.Text != nil:
		text := strings.TrimSpace(*msg.Text)
		if text == "" {
			return nil, false, nil
		}
		return []domain.TranscriptEvent{{Kind: domain.TranscriptKindFinal, Text: text}}, false, nil
	case msg.Partial != nil:
		text := strings.TrimSpace(*msg.Partial)
		if text == "" {
			return nil, false, nil
		}
		return []domain.TranscriptEvent{{Kind: domain.TranscriptKindPartial, Text: text}}, false, nil
	default:
		return nil, false, nil
	}
}
