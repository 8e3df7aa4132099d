// Package speech synthesizes assistant replies and plays them back.
package speech

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"havoice/internal/audio"
	"havoice/internal/ports"
)

const (
	defaultEndpoint     = "https://%s.tts.speech.microsoft.com/cognitiveservices/v1"
	defaultVoice        = "en-US-AriaNeural"
	defaultOutputFormat = "audio-16khz-128kbitrate-mono-mp3"
)

// ErrEmptyText is returned when there is nothing to say.
var ErrEmptyText = errors.New("nothing to synthesize")

// Config controls voice synthesis.
type Config struct {
	Endpoint     string
	Voice        string
	Rate         string
	Pitch        string
	OutputFormat string
}

// Player plays encoded audio.
type Player interface {
	Play(ctx context.Context, data []byte) error
}

// Responder implements ports.SpeechResponder over the Azure text-to-speech
// REST API.
type Responder struct {
	cfg    Config
	creds  ports.CredentialSource
	player Player
	http   *http.Client
	log    zerolog.Logger
}

func NewResponder(cfg Config, creds ports.CredentialSource, player Player, httpClient *http.Client, log zerolog.Logger) *Responder {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Voice == "" {
		cfg.Voice = defaultVoice
	}
	if cfg.Rate == "" {
		cfg.Rate = "0%"
	}
	if cfg.Pitch == "" {
		cfg.Pitch = "0%"
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = defaultOutputFormat
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Responder{
		cfg:    cfg,
		creds:  creds,
		player: player,
		http:   httpClient,
		log:    log.With().Str("component", "speech").Logger(),
	}
}

func (r *Responder) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	creds, err := r.creds.SpeechCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	endpoint := r.cfg.Endpoint
	if strings.Contains(endpoint, "%s") {
		endpoint = fmt.Sprintf(endpoint, creds.Region)
	}

	ssml, err := BuildSSML(text, r.cfg.Voice, r.cfg.Rate, r.cfg.Pitch)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", creds.Key)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", r.cfg.OutputFormat)
	req.Header.Set("User-Agent", "havoice")

	started := time.Now()
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("synthesize: read audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("synthesize: service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if len(body) == 0 {
		return nil, errors.New("synthesize: service returned no audio")
	}

	r.log.Debug().
		Str("voice", r.cfg.Voice).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(started)).
		Msg("speech synthesized")
	return body, nil
}

func (r *Responder) Play(ctx context.Context, data []byte) error {
	return r.player.Play(ctx, data)
}

// Chime plays the wake cue.
func (r *Responder) Chime(ctx context.Context) error {
	return r.player.Play(ctx, audio.Chime())
}

// BuildSSML wraps text in a speak/voice/prosody document.
func BuildSSML(text string, voice string, rate string, pitch string) (string, error) {
	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, []byte(text)); err != nil {
		return "", fmt.Errorf("escape ssml text: %w", err)
	}
	attr := func(v string) string {
		var b bytes.Buffer
		_ = xml.EscapeText(&b, []byte(v))
		return b.String()
	}

	lang := "en-US"
	if parts := strings.SplitN(voice, "-", 3); len(parts) >= 2 {
		lang = parts[0] + "-" + parts[1]
	}

	return fmt.Sprintf(
		`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="%s"><voice name="%s"><prosody rate="%s" pitch="%s">%s</prosody></voice></speak>`,
		attr(lang), attr(voice), attr(rate), attr(pitch), escaped.String(),
	), nil
}
