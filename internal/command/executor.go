// Package command forwards classified home-automation commands to the
// gateway.
package command

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"havoice/internal/api"
	"havoice/internal/domain"
)

// Poster is the slice of the gateway client the executor needs.
type Poster interface {
	PostJSON(ctx context.Context, path string, in any, out any) error
}

// Executor implements ports.CommandExecutor.
type Executor struct {
	gateway Poster
	log     zerolog.Logger
}

func NewExecutor(gateway Poster, log zerolog.Logger) *Executor {
	return &Executor{gateway: gateway, log: log.With().Str("component", "command").Logger()}
}

// Execute never returns an error; failures are folded into the outcome.
func (e *Executor) Execute(ctx context.Context, command string) domain.Outcome {
	command = strings.TrimSpace(command)
	if command == "" {
		return domain.Outcome{Success: false, Message: "no command given"}
	}

	var resp api.CommandResponse
	if err := e.gateway.PostJSON(ctx, api.PathPostHACommand, api.CommandRequest{Command: command}, &resp); err != nil {
		e.log.Warn().Err(err).Str("command", command).Msg("command failed")
		return domain.Outcome{Success: false, Message: err.Error()}
	}

	e.log.Info().Bool("success", resp.Success).Str("command", command).Msg("command executed")
	return domain.Outcome{Success: resp.Success, Message: resp.Message}
}
