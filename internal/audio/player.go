package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"
)

// Player pipes encoded audio into an external player such as ffplay.
type Player struct {
	command string
	args    []string
	log     zerolog.Logger
}

func NewPlayer(command string, log zerolog.Logger) *Player {
	args := []string{"-nodisp", "-autoexit", "-loglevel", "error", "-i", "-"}
	if command == "" {
		command = "ffplay"
	}
	return &Player{command: command, args: args, log: log.With().Str("component", "player").Logger()}
}

// Play blocks until playback finishes or ctx is canceled.
func (p *Player) Play(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	cmd := exec.CommandContext(ctx, p.command, p.args...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("play audio: %w: %s", err, trimOutput(stderr.String()))
	}

	p.log.Debug().Int("bytes", len(data)).Msg("playback finished")
	return nil
}
