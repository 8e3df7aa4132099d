package usecase

import "havoice/internal/domain"

// Metrics observes controller activity.
type Metrics interface {
	ModeChanged(mode domain.SessionMode)
	BackendStarted(kind domain.BackendKind)
	// TurnFinished is called once per routed utterance. intent is empty
	// when classification failed.
	TurnFinished(intent domain.Intent, success bool)
	ErrorRaised(kind domain.ErrorKind)
}

type nopMetrics struct{}

func (nopMetrics) ModeChanged(domain.SessionMode)    {}
func (nopMetrics) BackendStarted(domain.BackendKind) {}
func (nopMetrics) TurnFinished(domain.Intent, bool)  {}
func (nopMetrics) ErrorRaised(domain.ErrorKind)      {}
