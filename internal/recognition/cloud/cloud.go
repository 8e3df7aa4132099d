// Package cloud streams audio to the Azure Speech websocket recognition
// endpoint.
package cloud

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"havoice/internal/domain"
	"havoice/internal/ports"
	"havoice/internal/recognition"
)

const defaultEndpoint = "wss://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1"

// Config controls the cloud recognizer.
type Config struct {
	// Endpoint overrides the regional endpoint. A %s verb is replaced
	// with the speech region.
	Endpoint   string
	Language   string
	SampleRate int
	ChunkSize  int
	StopGrace  time.Duration
	Audio      ports.AudioConfig
}

// Recognizer implements ports.Recognizer for Azure Speech.
type Recognizer struct {
	cfg     Config
	capture ports.AudioCapture
	dialer  *websocket.Dialer
	log     zerolog.Logger
}

func NewRecognizer(cfg Config, capture ports.AudioCapture, log zerolog.Logger) *Recognizer {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 5 * time.Second
	}
	cfg.Audio.SampleRate = cfg.SampleRate
	return &Recognizer{
		cfg:     cfg,
		capture: capture,
		dialer:  websocket.DefaultDialer,
		log:     log.With().Str("component", "recognizer").Str("backend", string(domain.BackendCloud)).Logger(),
	}
}

func (r *Recognizer) Start(ctx context.Context, opts ports.RecognitionOptions) (ports.RecognitionSession, error) {
	if !opts.Credentials.Complete() {
		return nil, ports.ErrMissingCredentials
	}

	language := opts.Language
	if language == "" {
		language = r.cfg.Language
	}
	wsURL, err := buildRecognitionURL(r.cfg.Endpoint, opts.Credentials.Region, language)
	if err != nil {
		return nil, err
	}

	connectionID := newID()
	headers := http.Header{}
	headers.Set("Ocp-Apim-Subscription-Key", opts.Credentials.Key)
	headers.Set("X-ConnectionId", connectionID)

	conn, resp, err := r.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect to speech service: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("connect to speech service: %w", err)
	}

	mic, err := r.capture.Start(ctx, r.cfg.Audio)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("start microphone: %w", err)
	}

	c := &codec{requestID: newID(), sampleRate: r.cfg.SampleRate, now: time.Now}
	stream, err := recognition.NewStream(ctx, conn, c, mic, recognition.StreamOptions{
		ChunkSize:  r.cfg.ChunkSize,
		Continuous: opts.Continuous,
		StopGrace:  r.cfg.StopGrace,
	}, r.log.With().Str("connection_id", connectionID).Logger())
	if err != nil {
		return nil, err
	}

	r.log.Debug().
		Str("region", opts.Credentials.Region).
		Str("language", language).
		Str("connection_id", connectionID).
		Msg("cloud recognition started")
	return stream, nil
}

func buildRecognitionURL(endpoint string, region string, language string) (string, error) {
	base := strings.TrimSpace(endpoint)
	if strings.Contains(base, "%s") {
		base = fmt.Sprintf(base, region)
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid speech endpoint: %w", err)
	}
	query := u.Query()
	query.Set("language", language)
	query.Set("format", "simple")
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
