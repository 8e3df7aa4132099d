package gateway

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"havoice/internal/domain"
)

//go:embed prompts/intent.md
var intentPrompt string

// ErrUnrecognizedAnswer is returned when the model answers with neither
// label.
var ErrUnrecognizedAnswer = errors.New("model answer is not a known intent")

// IntentClassifier labels a request as a device command or conversation.
type IntentClassifier struct {
	model Completer
	cache *Cache
	log   zerolog.Logger
}

// NewIntentClassifier builds a classifier. cache may be nil.
func NewIntentClassifier(model Completer, cache *Cache, log zerolog.Logger) *IntentClassifier {
	return &IntentClassifier{model: model, cache: cache, log: log.With().Str("component", "intent").Logger()}
}

func (c *IntentClassifier) Classify(ctx context.Context, prompt string) (domain.Intent, error) {
	prompt = strings.TrimSpace(prompt)
	key := "intent:" + strings.ToLower(prompt)

	if c.cache != nil {
		if cached, ok, err := c.cache.Get(key); err == nil && ok {
			if intent, ok := domain.ParseIntent(string(cached)); ok {
				return intent, nil
			}
		}
	}

	answer, err := c.model.Complete(ctx, "", strings.ReplaceAll(intentPrompt, "{{{UserPrompt}}}", prompt))
	if err != nil {
		return "", err
	}
	intent, err := parseIntentAnswer(answer)
	if err != nil {
		return "", err
	}

	if c.cache != nil {
		if err := c.cache.Set(key, []byte(intent)); err != nil {
			c.log.Debug().Err(err).Msg("could not cache intent")
		}
	}
	c.log.Info().Str("prompt", prompt).Str("intent", string(intent)).Msg("intent classified")
	return intent, nil
}

// parseIntentAnswer accepts the label with stray quotes, punctuation or
// casing.
func parseIntentAnswer(answer string) (domain.Intent, error) {
	cleaned := strings.ToLower(strings.Trim(strings.TrimSpace(answer), "\"'`.!"))
	switch cleaned {
	case "hacommand":
		return domain.IntentHACommand, nil
	case "chat":
		return domain.IntentChat, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnrecognizedAnswer, answer)
}
