package usecase

import (
	"havoice/internal/domain"
	"havoice/internal/ports"
)

// loopEvent is anything the controller loop reacts to.
type loopEvent interface {
	isLoopEvent()
}

type startRequest struct {
	reply chan error
}

type stopRequest struct {
	reply chan struct{}
}

type closeRequest struct{}

type wakePhrasesChanged struct {
	phrases []string
}

type timerRole string

const (
	timerAutoStop  timerRole = "auto_stop"
	timerCountdown timerRole = "countdown"
	timerFlush     timerRole = "transcript_flush"
)

// timerFired carries the mode epoch the timer was armed in.
type timerFired struct {
	epoch uint64
	role  timerRole
}

// transcriptArrived carries one recognition event from backend generation id.
type transcriptArrived struct {
	id    uint64
	event domain.TranscriptEvent
}

// backendClosed reports that generation id ended on its own.
type backendClosed struct {
	id uint64
}

// autoStopDue follows every transcript backend id had buffered when the
// auto-stop timer fired.
type autoStopDue struct {
	id    uint64
	epoch uint64
}

func (startRequest) isLoopEvent()       {}
func (stopRequest) isLoopEvent()        {}
func (closeRequest) isLoopEvent()       {}
func (wakePhrasesChanged) isLoopEvent() {}
func (timerFired) isLoopEvent()         {}
func (transcriptArrived) isLoopEvent()  {}
func (backendClosed) isLoopEvent()      {}
func (autoStopDue) isLoopEvent()        {}

// liveBackend is the single recognition session owned by the loop. Its
// forwarder is the only reader of the session's events.
type liveBackend struct {
	id       uint64
	kind     domain.BackendKind
	session  ports.RecognitionSession
	detached chan struct{}
	flush    chan uint64
}

func newLiveBackend(id uint64, kind domain.BackendKind, session ports.RecognitionSession) *liveBackend {
	return &liveBackend{
		id:       id,
		kind:     kind,
		session:  session,
		detached: make(chan struct{}),
		flush:    make(chan uint64, 1),
	}
}

// NopEvents discards every controller event.
type NopEvents struct{}

func (NopEvents) ModeChanged(domain.SessionMode, domain.TransitionReason) {}
func (NopEvents) PartialTranscript(string)                                {}
func (NopEvents) MessageAppended(domain.Message)                          {}
func (NopEvents) CountdownTick(int)                                       {}
func (NopEvents) CountdownCleared()                                       {}
func (NopEvents) SessionError(domain.ErrorKind, string)                   {}
