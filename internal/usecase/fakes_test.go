package usecase

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"havoice/internal/domain"
	"havoice/internal/ports"
	"havoice/internal/timer"
	"havoice/internal/timer/timertest"
)

type liveCounter struct {
	live atomic.Int32
	max  atomic.Int32
}

func (l *liveCounter) up() {
	n := l.live.Add(1)
	for {
		m := l.max.Load()
		if n <= m || l.max.CompareAndSwap(m, n) {
			return
		}
	}
}

type fakeRecognizer struct {
	kind    domain.BackendKind
	counter *liveCounter

	mu       sync.Mutex
	sessions []*fakeSession
	startErr error
	opts     []ports.RecognitionOptions
}

func (r *fakeRecognizer) Start(_ context.Context, opts ports.RecognitionOptions) (ports.RecognitionSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return nil, r.startErr
	}
	s := &fakeSession{events: make(chan domain.TranscriptEvent, 16), counter: r.counter}
	r.counter.up()
	r.sessions = append(r.sessions, s)
	r.opts = append(r.opts, opts)
	return s, nil
}

func (r *fakeRecognizer) started() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// current returns the latest session that has not ended.
func (r *fakeRecognizer) current() *fakeSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) == 0 {
		return nil
	}
	s := r.sessions[len(r.sessions)-1]
	if s.isEnded() {
		return nil
	}
	return s
}

type fakeSession struct {
	counter *liveCounter

	mu      sync.Mutex
	events  chan domain.TranscriptEvent
	ended   bool
	stopped bool
	err     error
}

func (s *fakeSession) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *fakeSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSession) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.endLocked()
	return nil
}

func (s *fakeSession) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	s.endLocked()
}

func (s *fakeSession) endLocked() {
	if s.ended {
		return
	}
	s.ended = true
	s.counter.live.Add(-1)
	close(s.events)
}

func (s *fakeSession) isEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *fakeSession) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// emit delivers an event unless the session already ended.
func (s *fakeSession) emit(kind domain.TranscriptKind, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	select {
	case s.events <- domain.TranscriptEvent{Kind: kind, Text: text}:
		return true
	default:
		return false
	}
}

type fakeCredentials struct {
	err error
}

func (f fakeCredentials) SpeechCredentials(context.Context) (domain.SpeechCredentials, error) {
	if f.err != nil {
		return domain.SpeechCredentials{}, f.err
	}
	return domain.SpeechCredentials{Key: "key", Region: "eastus"}, nil
}

type switchableCredentials struct {
	mu  sync.Mutex
	err error
}

func (s *switchableCredentials) set(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *switchableCredentials) SpeechCredentials(ctx context.Context) (domain.SpeechCredentials, error) {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	return fakeCredentials{err: err}.SpeechCredentials(ctx)
}

type fakeClassifier struct {
	mu      sync.Mutex
	intent  domain.Intent
	err     error
	block   bool
	entered chan struct{}
	calls   []string
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (domain.Intent, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if block {
		if entered != nil {
			close(entered)
		}
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.intent, f.err
}

func (f *fakeClassifier) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeExecutor struct {
	mu      sync.Mutex
	outcome domain.Outcome
	calls   []string
}

func (f *fakeExecutor) Execute(_ context.Context, command string) domain.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, command)
	return f.outcome
}

func (f *fakeExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeResponder struct {
	mu       sync.Mutex
	synthErr error
	spoken   []string
	plays    int
	chimes   int
}

func (f *fakeResponder) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	return []byte("audio"), nil
}

func (f *fakeResponder) Play(context.Context, []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays++
	return nil
}

func (f *fakeResponder) Chime(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chimes++
	return nil
}

type modeChange struct {
	mode   domain.SessionMode
	reason domain.TransitionReason
}

type sinkError struct {
	kind   domain.ErrorKind
	detail string
}

type fakeEventSink struct {
	mu       sync.Mutex
	modes    []modeChange
	partials []string
	messages []domain.Message
	ticks    []int
	cleared  int
	errors   []sinkError

	holdText string
	held     chan struct{}
	release  chan struct{}
}

// holdOn makes the partial transcript text block the controller loop until
// release is called.
func (s *fakeEventSink) holdOn(text string) (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdText = text
	s.held = make(chan struct{})
	s.release = make(chan struct{})
	release := s.release
	return s.held, func() { close(release) }
}

func (s *fakeEventSink) ModeChanged(mode domain.SessionMode, reason domain.TransitionReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes = append(s.modes, modeChange{mode: mode, reason: reason})
}

func (s *fakeEventSink) PartialTranscript(text string) {
	s.mu.Lock()
	s.partials = append(s.partials, text)
	var held, release chan struct{}
	if s.holdText != "" && text == s.holdText {
		held, release = s.held, s.release
		s.holdText = ""
	}
	s.mu.Unlock()

	if held != nil {
		close(held)
		<-release
	}
}

func (s *fakeEventSink) MessageAppended(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func (s *fakeEventSink) CountdownTick(remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, remaining)
}

func (s *fakeEventSink) CountdownCleared() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
}

func (s *fakeEventSink) SessionError(kind domain.ErrorKind, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, sinkError{kind: kind, detail: detail})
}

func (s *fakeEventSink) snapshotModes() []modeChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]modeChange(nil), s.modes...)
}

func (s *fakeEventSink) snapshotMessages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.messages...)
}

func (s *fakeEventSink) snapshotTicks() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.ticks...)
}

func (s *fakeEventSink) snapshotErrors() []sinkError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkError(nil), s.errors...)
}

func (s *fakeEventSink) sawPartial(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.partials {
		if p == text {
			return true
		}
	}
	return false
}

type harness struct {
	t          *testing.T
	clock      *timertest.Clock
	counter    *liveCounter
	local      *fakeRecognizer
	cloud      *fakeRecognizer
	classifier *fakeClassifier
	executor   *fakeExecutor
	responder  *fakeResponder
	sink       *fakeEventSink
	ctrl       *SessionController
	marker     int
}

type harnessOption func(*Dependencies, *Config)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	counter := &liveCounter{}
	h := &harness{
		t:          t,
		clock:      timertest.New(),
		counter:    counter,
		local:      &fakeRecognizer{kind: domain.BackendLocal, counter: counter},
		cloud:      &fakeRecognizer{kind: domain.BackendCloud, counter: counter},
		classifier: &fakeClassifier{intent: domain.IntentHACommand},
		executor:   &fakeExecutor{outcome: domain.Outcome{Success: true, Message: "Command executed"}},
		responder:  &fakeResponder{},
		sink:       &fakeEventSink{},
	}

	deps := Dependencies{
		Recognizers: map[domain.BackendKind]ports.Recognizer{
			domain.BackendLocal: h.local,
			domain.BackendCloud: h.cloud,
		},
		Credentials: fakeCredentials{},
		Classifier:  h.classifier,
		Executor:    h.executor,
		Responder:   h.responder,
		Events:      h.sink,
		Timers:      timer.NewService(h.clock),
		Log:         zerolog.Nop(),
	}
	cfg := Config{}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}

	h.ctrl = NewSessionController(deps, cfg)
	t.Cleanup(func() { _ = h.ctrl.Close() })
	return h
}

// barrier waits until every request queued so far has been handled. Only
// valid while the controller is not idle.
func (h *harness) barrier() {
	h.t.Helper()
	if err := h.ctrl.Start(context.Background()); err != nil {
		h.t.Fatalf("barrier: %v", err)
	}
}

// say delivers a final transcript to the live backend and waits for the
// loop to consume it.
func (h *harness) say(rec *fakeRecognizer, text string) {
	h.t.Helper()
	session := rec.current()
	if session == nil {
		h.t.Fatalf("no live %s session", rec.kind)
	}
	if !session.emit(domain.TranscriptKindFinal, text) {
		h.t.Fatalf("could not deliver %q", text)
	}
	h.marker++
	marker := "marker-" + strconv.Itoa(h.marker)
	if session.emit(domain.TranscriptKindPartial, marker) {
		eventually(h.t, func() bool { return h.sink.sawPartial(marker) || session.isEnded() })
	} else {
		eventually(h.t, session.isEnded)
	}
}

func (h *harness) waitMode(mode domain.SessionMode) {
	h.t.Helper()
	eventually(h.t, func() bool { return h.ctrl.Status().Mode == mode })
}

func (h *harness) startListening() {
	h.t.Helper()
	if err := h.ctrl.Start(context.Background()); err != nil {
		h.t.Fatalf("start failed: %v", err)
	}
}

func (h *harness) enterCommandMode() {
	h.t.Helper()
	h.startListening()
	h.say(h.local, "hey assistant")
	h.waitMode(domain.ModeCommandListening)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
