package domain

import "time"

// SessionMode models the voice session lifecycle.
type SessionMode string

const (
	ModeIdle              SessionMode = "idle"
	ModeWakeWordListening SessionMode = "wake_word_listening"
	ModeCommandListening  SessionMode = "command_listening"
	ModeProcessing        SessionMode = "processing"
	ModeAnnouncing        SessionMode = "announcing"
)

// Listening reports whether a recognition backend is live in this mode.
func (m SessionMode) Listening() bool {
	return m == ModeWakeWordListening || m == ModeCommandListening
}

// TransitionReason provides a structured reason for mode transitions.
type TransitionReason string

const (
	ReasonStarted          TransitionReason = "started"
	ReasonStopped          TransitionReason = "stopped"
	ReasonWakePhrase       TransitionReason = "wake_phrase"
	ReasonStopWord         TransitionReason = "stop_word"
	ReasonUtterance        TransitionReason = "utterance"
	ReasonCommand          TransitionReason = "command"
	ReasonChat             TransitionReason = "chat"
	ReasonClassifyFailed   TransitionReason = "classification_failed"
	ReasonAnnounced        TransitionReason = "announced"
	ReasonAutoStop         TransitionReason = "auto_stop"
	ReasonRecognitionError TransitionReason = "recognition_error"
	ReasonCredentials      TransitionReason = "credentials_missing"
)

// ErrorKind classifies non-fatal failures surfaced to the user.
type ErrorKind string

const (
	ErrorConfiguration  ErrorKind = "configuration"
	ErrorRecognition    ErrorKind = "recognition"
	ErrorClassification ErrorKind = "classification"
	ErrorExecution      ErrorKind = "execution"
	ErrorSynthesis      ErrorKind = "synthesis"
)

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental recognition output from a backend.
type TranscriptEvent struct {
	Kind TranscriptKind `json:"kind"`
	Text string         `json:"text"`
}

// IsFinal reports whether the event is a stable result.
func (e TranscriptEvent) IsFinal() bool {
	return e.Kind == TranscriptKindFinal
}

// Utterance is a finalized transcript together with the mode it was heard in.
type Utterance struct {
	Text string
	Mode SessionMode
}

// Sender identifies who authored a chat message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is one immutable entry in the session chat log.
type Message struct {
	ID           string    `json:"id"`
	Sender       Sender    `json:"sender"`
	Text         string    `json:"text"`
	AnnounceText string    `json:"announceText,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Intent is the classification of an utterance.
type Intent string

const (
	IntentHACommand Intent = "HACommand"
	IntentChat      Intent = "Chat"
)

// ParseIntent maps a classifier answer onto a known intent.
func ParseIntent(raw string) (Intent, bool) {
	switch Intent(raw) {
	case IntentHACommand:
		return IntentHACommand, true
	case IntentChat:
		return IntentChat, true
	default:
		return "", false
	}
}

// Outcome is the result of executing a home-automation command.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SpeechCredentials authorize the cloud recognition and synthesis engines.
type SpeechCredentials struct {
	Key    string `json:"speechKey"`
	Region string `json:"speechRegion"`
}

// Complete reports whether both fields are present.
func (c SpeechCredentials) Complete() bool {
	return c.Key != "" && c.Region != ""
}

// BackendKind selects a recognition backend variant.
type BackendKind string

const (
	BackendLocal BackendKind = "local"
	BackendCloud BackendKind = "cloud"
)

// Status summarizes the current controller status.
type Status struct {
	Mode      SessionMode `json:"mode"`
	Backend   BackendKind `json:"backend,omitempty"`
	Countdown int         `json:"countdown,omitempty"`
}
