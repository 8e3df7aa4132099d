// Package timer provides cancelable one-shot and repeating callbacks over an
// injectable clock.
package timer

import (
	"sync"
	"time"
)

// Stopper cancels a pending clock callback.
type Stopper interface {
	Stop() bool
}

// Clock abstracts wall time so tests can drive timers deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
}

type realClock struct{}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Service arms timers on a clock.
type Service struct {
	clock Clock
}

func NewService(clock Clock) *Service {
	if clock == nil {
		clock = RealClock()
	}
	return &Service{clock: clock}
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// After runs fn once after d unless the handle is canceled first.
func (s *Service) After(d time.Duration, fn func()) *Handle {
	h := &Handle{}
	h.mu.Lock()
	h.pending = s.clock.AfterFunc(d, func() {
		if !h.finish(false) {
			return
		}
		fn()
	})
	h.mu.Unlock()
	return h
}

// Every runs fn every d until the handle is canceled.
func (s *Service) Every(d time.Duration, fn func()) *Handle {
	h := &Handle{}
	var arm func()
	arm = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.canceled {
			return
		}
		h.pending = s.clock.AfterFunc(d, func() {
			if !h.finish(true) {
				return
			}
			fn()
			arm()
		})
	}
	arm()
	return h
}

// Handle controls one armed timer. The zero value and nil are inert.
type Handle struct {
	mu       sync.Mutex
	pending  Stopper
	canceled bool
	fired    bool
}

// finish records a firing and reports whether the callback may run.
func (h *Handle) finish(repeating bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.canceled {
		return false
	}
	if !repeating {
		h.fired = true
	}
	h.pending = nil
	return true
}

// Cancel stops the timer. It is safe to call more than once.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.canceled {
		return
	}
	h.canceled = true
	if h.pending != nil {
		h.pending.Stop()
		h.pending = nil
	}
}

// Active reports whether the timer can still fire.
func (h *Handle) Active() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.canceled && !h.fired
}
