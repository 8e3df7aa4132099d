package usecase

import (
	"context"
	"errors"
	"fmt"

	"havoice/internal/domain"
)

// process routes one finalized command utterance through classification,
// execution and announcement, then re-arms wake listening. A turn aborted
// by Stop or Close returns without re-arming; the queued request settles
// the mode.
func (c *SessionController) process(u domain.Utterance) {
	t := c.beginTurn()
	defer c.endTurn()
	if t.aborted.Load() {
		return
	}

	intent, err := c.deps.Classifier.Classify(t.ctx, u.Text)
	if t.aborted.Load() {
		return
	}
	if err != nil {
		c.log.Warn().Err(err).Str("utterance", u.Text).Msg("classification failed")
		c.raise(domain.ErrorClassification, err.Error())
		c.deps.Metrics.TurnFinished("", false)
		c.assistant("Sorry, I could not work out what you meant: "+err.Error(), "")
		c.rearm(domain.ReasonClassifyFailed)
		return
	}

	if intent != domain.IntentHACommand {
		c.deps.Metrics.TurnFinished(intent, true)
		c.assistant("That sounded like a conversation rather than a home command. I can only control your devices for now.", "")
		c.rearm(domain.ReasonChat)
		return
	}

	outcome := c.deps.Executor.Execute(t.ctx, u.Text)
	if t.aborted.Load() {
		return
	}
	if !outcome.Success {
		c.raise(domain.ErrorExecution, outcome.Message)
	}
	c.deps.Metrics.TurnFinished(intent, outcome.Success)

	c.setMode(domain.ModeAnnouncing, domain.ReasonCommand)
	c.announce(t.ctx, outcome.Message)
	if t.aborted.Load() {
		return
	}

	c.assistant(fmt.Sprintf("Command executed: Success: %t, Message: %s", outcome.Success, outcome.Message), outcome.Message)
	c.rearm(domain.ReasonAnnounced)
}

// announce speaks text. Failures are reported and never block the session.
func (c *SessionController) announce(ctx context.Context, text string) {
	if c.deps.Responder == nil || text == "" {
		return
	}

	audio, err := c.deps.Responder.Synthesize(ctx, text)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.log.Warn().Err(err).Msg("speech synthesis failed")
			c.raise(domain.ErrorSynthesis, err.Error())
		}
		return
	}
	if err := c.deps.Responder.Play(ctx, audio); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn().Err(err).Msg("playback failed")
		c.raise(domain.ErrorSynthesis, err.Error())
	}
}

func (c *SessionController) beginTurn() *turn {
	ctx, cancel := context.WithTimeout(c.rootCtx, c.cfg.TurnTimeout)
	t := &turn{ctx: ctx, cancel: cancel}
	c.turnMu.Lock()
	c.turn = t
	c.turnMu.Unlock()
	// a Stop already queued behind this turn wins
	if c.stopping.Load() > 0 {
		t.aborted.Store(true)
		cancel()
	}
	return t
}

func (c *SessionController) endTurn() {
	c.turnMu.Lock()
	t := c.turn
	c.turn = nil
	c.turnMu.Unlock()
	if t != nil {
		t.cancel()
	}
}
