package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

// ErrModelNotConfigured is returned when no API key is set.
var ErrModelNotConfigured = errors.New("chat model API key not set")

// Completer answers a single-turn prompt.
type Completer interface {
	Complete(ctx context.Context, system string, prompt string) (string, error)
}

type ModelConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAIModel is a Completer backed by an OpenAI-compatible chat
// completions endpoint.
type OpenAIModel struct {
	client openai.Client
	model  string
	log    zerolog.Logger
}

func NewOpenAIModel(cfg ModelConfig, log zerolog.Logger) (*OpenAIModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrModelNotConfigured
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIModel{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		log:    log.With().Str("component", "model").Str("model", cfg.Model).Logger(),
	}, nil
}

func (m *OpenAIModel) Complete(ctx context.Context, system string, prompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	started := time.Now()
	resp, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       m.model,
		Messages:    messages,
		Temperature: openai.Float(0.2),
		MaxTokens:   openai.Int(1000),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	m.log.Debug().
		Dur("elapsed", time.Since(started)).
		Int64("prompt_tokens", resp.Usage.PromptTokens).
		Int64("completion_tokens", resp.Usage.CompletionTokens).
		Msg("completion finished")
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
