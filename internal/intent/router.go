// Package intent classifies finalized utterances through the gateway.
package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"havoice/internal/api"
	"havoice/internal/domain"
)

var (
	// ErrEmptyUtterance is returned without a network call for blank input.
	ErrEmptyUtterance = errors.New("utterance is empty")
	// ErrUnknownIntent is returned when the gateway answers with an
	// unrecognized label.
	ErrUnknownIntent = errors.New("unknown intent")
)

// Poster is the slice of the gateway client the router needs.
type Poster interface {
	PostJSON(ctx context.Context, path string, in any, out any) error
}

// Router implements ports.IntentClassifier.
type Router struct {
	gateway Poster
	log     zerolog.Logger
}

func NewRouter(gateway Poster, log zerolog.Logger) *Router {
	return &Router{gateway: gateway, log: log.With().Str("component", "intent").Logger()}
}

func (r *Router) Classify(ctx context.Context, text string) (domain.Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyUtterance
	}

	var resp api.ClassifyIntentResponse
	if err := r.gateway.PostJSON(ctx, api.PathClassifyIntent, api.ClassifyIntentRequest{UserPrompt: text}, &resp); err != nil {
		return "", fmt.Errorf("classify intent: %w", err)
	}

	intent, ok := domain.ParseIntent(strings.TrimSpace(resp.Intent))
	if !ok {
		return "", fmt.Errorf("classify intent: %w %q", ErrUnknownIntent, resp.Intent)
	}

	r.log.Debug().Str("intent", string(intent)).Msg("utterance classified")
	return intent, nil
}
