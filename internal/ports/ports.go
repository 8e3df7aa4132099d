package ports

import (
	"context"
	"errors"
	"io"

	"havoice/internal/domain"
)

// ErrMissingCredentials is returned when the speech key or region is absent.
var ErrMissingCredentials = errors.New("speech key or region not set")

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// RecognitionOptions describes how a recognition backend should listen.
type RecognitionOptions struct {
	Language    string
	Continuous  bool
	Credentials domain.SpeechCredentials
}

// RecognitionSession is one live recognition backend instance.
//
// Events is closed once the session has ended for any reason. Stop blocks
// until the underlying engine is fully torn down; callers must not start
// another session before Stop returns.
type RecognitionSession interface {
	Events() <-chan domain.TranscriptEvent
	Err() error
	Stop(ctx context.Context) error
}

// Recognizer starts recognition sessions.
type Recognizer interface {
	Start(ctx context.Context, opts RecognitionOptions) (RecognitionSession, error)
}

// IntentClassifier classifies a finalized utterance.
type IntentClassifier interface {
	Classify(ctx context.Context, text string) (domain.Intent, error)
}

// CommandExecutor executes a classified command. It never fails; transport
// errors are reported through the outcome.
type CommandExecutor interface {
	Execute(ctx context.Context, command string) domain.Outcome
}

// SpeechResponder turns assistant text into audible speech.
type SpeechResponder interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Play(ctx context.Context, audio []byte) error
	Chime(ctx context.Context) error
}

// TranscriptCorrector rewrites a final transcript heard in mode.
type TranscriptCorrector interface {
	Correct(mode domain.SessionMode, text string) string
}

// CredentialSource yields the speech engine credentials.
type CredentialSource interface {
	SpeechCredentials(ctx context.Context) (domain.SpeechCredentials, error)
}

// EventSink receives controller state and chat log updates.
type EventSink interface {
	ModeChanged(mode domain.SessionMode, reason domain.TransitionReason)
	PartialTranscript(text string)
	MessageAppended(msg domain.Message)
	CountdownTick(remaining int)
	CountdownCleared()
	SessionError(kind domain.ErrorKind, detail string)
}
