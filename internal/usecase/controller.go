package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"havoice/internal/domain"
	"havoice/internal/ports"
	"havoice/internal/timer"
)

// ErrControllerClosed is returned by calls made after Close.
var ErrControllerClosed = errors.New("session controller closed")

const maxRecognitionFailures = 3

// Config controls the voice session state machine.
type Config struct {
	WakeBackend    domain.BackendKind
	CommandBackend domain.BackendKind
	Language       string
	WakePhrases    []string
	StopWords      []string

	AutoStop          time.Duration
	CountdownInterval time.Duration
	FlushInterval     time.Duration
	BackendStop       time.Duration
	TurnTimeout       time.Duration

	Chime bool
}

func (c Config) withDefaults() Config {
	if c.WakeBackend == "" {
		c.WakeBackend = domain.BackendLocal
	}
	if c.CommandBackend == "" {
		c.CommandBackend = domain.BackendCloud
	}
	if c.Language == "" {
		c.Language = "en-US"
	}
	if c.AutoStop <= 0 {
		c.AutoStop = 30 * time.Second
	}
	if c.CountdownInterval <= 0 {
		c.CountdownInterval = time.Second
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 10 * time.Second
	}
	if c.BackendStop <= 0 {
		c.BackendStop = 8 * time.Second
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = time.Minute
	}
	return c
}

// Dependencies are the collaborators the controller sequences.
type Dependencies struct {
	Recognizers map[domain.BackendKind]ports.Recognizer
	Credentials ports.CredentialSource
	Classifier  ports.IntentClassifier
	Executor    ports.CommandExecutor
	Responder   ports.SpeechResponder
	Corrector   ports.TranscriptCorrector
	Events      ports.EventSink
	Timers      *timer.Service
	Metrics     Metrics
	Log         zerolog.Logger
}

// SessionController arbitrates wake-word and command listening. All mode,
// timer and backend state is owned by a single loop goroutine; public
// methods only enqueue requests for it.
type SessionController struct {
	deps Dependencies
	cfg  Config
	log  zerolog.Logger
	msgs *MessageLog

	inbox     chan loopEvent
	quit      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
	rootCtx   context.Context
	cancel    context.CancelFunc

	turnMu   sync.Mutex
	turn     *turn
	stopping atomic.Int32

	statusMu sync.RWMutex
	status   domain.Status

	// loop-owned
	mode      domain.SessionMode
	backend   *liveBackend
	backendID uint64
	epoch     uint64
	autoStop  *timer.Handle
	countdown *timer.Handle
	flush     *timer.Handle
	remaining int
	wake      *wakeMatcher
	stopWords stopWords
	failures  int
}

type turn struct {
	ctx     context.Context
	cancel  context.CancelFunc
	aborted atomic.Bool
}

func NewSessionController(deps Dependencies, cfg Config) *SessionController {
	cfg = cfg.withDefaults()
	if deps.Timers == nil {
		deps.Timers = timer.NewService(nil)
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Events == nil {
		deps.Events = NopEvents{}
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	c := &SessionController{
		deps:      deps,
		cfg:       cfg,
		log:       deps.Log.With().Str("component", "controller").Logger(),
		msgs:      NewMessageLog(deps.Timers.Now),
		inbox:     make(chan loopEvent, 128),
		quit:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		rootCtx:   rootCtx,
		cancel:    cancel,
		mode:      domain.ModeIdle,
		wake:      newWakeMatcher(cfg.WakePhrases),
		stopWords: newStopWords(cfg.StopWords),
		status:    domain.Status{Mode: domain.ModeIdle},
	}
	go c.run()
	return c
}

// Start arms wake-word listening. It is a no-op when already running.
func (c *SessionController) Start(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, startRequest{reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-c.loopDone:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop tears down any backend and timers and returns to idle. Stopping an
// idle controller does nothing.
func (c *SessionController) Stop(ctx context.Context) error {
	c.stopping.Add(1)
	c.abortTurn()
	reply := make(chan struct{})
	if err := c.send(ctx, stopRequest{reply: reply}); err != nil {
		c.stopping.Add(-1)
		return err
	}
	select {
	case <-reply:
		return nil
	case <-c.loopDone:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the session and ends the loop.
func (c *SessionController) Close() error {
	c.closeOnce.Do(func() {
		c.stopping.Add(1)
		c.abortTurn()
		select {
		case c.inbox <- closeRequest{}:
		case <-c.loopDone:
		}
		<-c.loopDone
		c.cancel()
	})
	return nil
}

// SetWakePhrases replaces the accepted wake phrases.
func (c *SessionController) SetWakePhrases(phrases []string) {
	c.post(wakePhrasesChanged{phrases: append([]string(nil), phrases...)})
}

// Status returns a snapshot of the current mode.
func (c *SessionController) Status() domain.Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

// Messages returns the session chat log.
func (c *SessionController) Messages() []domain.Message {
	return c.msgs.Snapshot()
}

func (c *SessionController) send(ctx context.Context, ev loopEvent) error {
	select {
	case <-c.quit:
		return ErrControllerClosed
	default:
	}
	select {
	case c.inbox <- ev:
		return nil
	case <-c.quit:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SessionController) post(ev loopEvent) {
	select {
	case c.inbox <- ev:
	case <-c.quit:
	}
}

func (c *SessionController) abortTurn() {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()
	if c.turn != nil {
		c.turn.aborted.Store(true)
		c.turn.cancel()
	}
}

func (c *SessionController) run() {
	defer close(c.loopDone)

	for ev := range c.inbox {
		if _, ok := ev.(closeRequest); ok {
			c.shutdown()
			return
		}
		c.handle(ev)
	}
}

func (c *SessionController) handle(ev loopEvent) {
	switch ev := ev.(type) {
	case startRequest:
		ev.reply <- c.start()
	case stopRequest:
		c.stop()
		c.stopping.Add(-1)
		close(ev.reply)
	case wakePhrasesChanged:
		c.wake.SetPhrases(ev.phrases)
		c.log.Info().Strs("phrases", ev.phrases).Msg("wake phrases updated")
	case timerFired:
		c.onTimer(ev)
	case transcriptArrived:
		if c.isLive(ev.id) {
			c.transcript(ev.event)
		}
	case backendClosed:
		if c.isLive(ev.id) {
			c.backendEnded()
		}
	case autoStopDue:
		if c.isLive(ev.id) && ev.epoch == c.epoch && c.mode == domain.ModeCommandListening {
			c.autoStopNow()
		}
	}
}

func (c *SessionController) isLive(id uint64) bool {
	return c.backend != nil && c.backend.id == id
}

func (c *SessionController) shutdown() {
	c.cancelModeTimers()
	c.teardownBackend()
	c.setMode(domain.ModeIdle, domain.ReasonStopped)
	close(c.quit)
}

func (c *SessionController) start() error {
	if c.mode != domain.ModeIdle {
		return nil
	}
	c.failures = 0
	return c.enterWakeListening(domain.ReasonStarted)
}

func (c *SessionController) stop() {
	if c.mode == domain.ModeIdle && c.backend == nil {
		return
	}
	c.cancelModeTimers()
	c.teardownBackend()
	c.wake.Reset()
	c.assistant(fmt.Sprintf("Speech recognition stopped. You can now say '%s' to start listening again.", c.wake.Primary()), "")
	c.setMode(domain.ModeIdle, domain.ReasonStopped)
}

// enterWakeListening tears down whatever is running and starts the wake
// backend. On failure the mode is left unchanged.
func (c *SessionController) enterWakeListening(reason domain.TransitionReason) error {
	recognizer, creds, err := c.prepareBackend(c.cfg.WakeBackend)
	if err != nil {
		return err
	}

	c.cancelModeTimers()
	c.teardownBackend()
	c.wake.Reset()

	if err := c.startBackend(c.cfg.WakeBackend, recognizer, creds); err != nil {
		return err
	}

	c.setMode(domain.ModeWakeWordListening, reason)
	epoch := c.epoch
	c.flush = c.deps.Timers.Every(c.cfg.FlushInterval, func() {
		c.post(timerFired{epoch: epoch, role: timerFlush})
	})
	return nil
}

// rearm is the single recovery path after every terminal outcome.
func (c *SessionController) rearm(reason domain.TransitionReason) {
	if err := c.enterWakeListening(reason); err != nil {
		c.log.Warn().Err(err).Msg("could not re-arm wake listening, going idle")
		c.setMode(domain.ModeIdle, reason)
	}
}

// enterCommandListening swaps the wake backend for the command backend. When
// the command backend cannot be prepared the wake backend keeps running.
func (c *SessionController) enterCommandListening() {
	recognizer, creds, err := c.prepareBackend(c.cfg.CommandBackend)
	if err != nil {
		c.wake.Reset()
		return
	}

	c.cancelModeTimers()
	c.teardownBackend()

	if c.cfg.Chime && c.deps.Responder != nil {
		ctx, cancel := context.WithTimeout(c.rootCtx, 2*time.Second)
		if err := c.deps.Responder.Chime(ctx); err != nil {
			c.log.Debug().Err(err).Msg("chime failed")
		}
		cancel()
	}

	if err := c.startBackend(c.cfg.CommandBackend, recognizer, creds); err != nil {
		c.rearm(domain.ReasonRecognitionError)
		return
	}

	c.setMode(domain.ModeCommandListening, domain.ReasonWakePhrase)

	epoch := c.epoch
	c.remaining = int(c.cfg.AutoStop / c.cfg.CountdownInterval)
	c.countdown = c.deps.Timers.Every(c.cfg.CountdownInterval, func() {
		c.post(timerFired{epoch: epoch, role: timerCountdown})
	})
	c.autoStop = c.deps.Timers.After(c.cfg.AutoStop, func() {
		c.post(timerFired{epoch: epoch, role: timerAutoStop})
	})
	c.deps.Events.CountdownTick(c.remaining)
	c.updateStatus(func(s *domain.Status) { s.Countdown = c.remaining })
}

func (c *SessionController) transcript(event domain.TranscriptEvent) {
	if event.Kind == domain.TranscriptKindPartial {
		c.deps.Events.PartialTranscript(event.Text)
		return
	}
	c.failures = 0

	heard := event.Text
	if c.deps.Corrector != nil {
		heard = c.deps.Corrector.Correct(c.mode, heard)
	}

	switch c.mode {
	case domain.ModeWakeWordListening:
		c.wake.Add(heard)
		if !c.wake.Matches() {
			return
		}
		transcript := c.wake.Transcript()
		c.log.Info().Str("transcript", transcript).Msg("wake phrase detected")
		c.user(transcript)
		c.enterCommandListening()

	case domain.ModeCommandListening:
		text := cleanUtterance(heard)
		if text == "" {
			return
		}
		if c.stopWords.Match(text) {
			c.user("Stop")
			c.cancelModeTimers()
			c.teardownBackend()
			c.rearm(domain.ReasonStopWord)
			return
		}

		c.user(text)
		c.cancelModeTimers()
		c.teardownBackend()
		c.setMode(domain.ModeProcessing, domain.ReasonUtterance)
		c.process(domain.Utterance{Text: text, Mode: domain.ModeCommandListening})
	}
}

func (c *SessionController) onTimer(ev timerFired) {
	if ev.epoch != c.epoch {
		return
	}

	switch ev.role {
	case timerFlush:
		if c.mode == domain.ModeWakeWordListening {
			c.wake.Reset()
		}

	case timerCountdown:
		if c.mode != domain.ModeCommandListening || c.remaining <= 0 {
			return
		}
		c.remaining--
		c.deps.Events.CountdownTick(c.remaining)
		c.updateStatus(func(s *domain.Status) { s.Countdown = c.remaining })

	case timerAutoStop:
		if c.mode != domain.ModeCommandListening {
			return
		}
		if c.backend == nil {
			c.autoStopNow()
			return
		}
		// Finals the engine already delivered are queued ahead of the stop.
		select {
		case c.backend.flush <- ev.epoch:
		default:
		}
	}
}

func (c *SessionController) autoStopNow() {
	if c.remaining > 0 {
		c.remaining = 0
		c.deps.Events.CountdownTick(0)
	}
	c.log.Info().Dur("after", c.cfg.AutoStop).Msg("auto stopping command listening")
	c.assistant(fmt.Sprintf("Auto stopping after %s of listening without a command.", c.cfg.AutoStop), "")
	c.cancelModeTimers()
	c.teardownBackend()
	c.rearm(domain.ReasonAutoStop)
}

func (c *SessionController) backendEnded() {
	ended := c.backend
	err := ended.session.Err()
	c.cancelModeTimers()
	c.teardownBackend()

	detail := "recognition session ended unexpectedly"
	if err != nil {
		detail = err.Error()
	}
	c.log.Warn().Err(err).Str("backend", string(ended.kind)).Msg("recognition backend ended")
	c.raise(domain.ErrorRecognition, detail)
	c.assistant("Speech recognition error: "+detail, "")

	c.failures++
	if c.failures >= maxRecognitionFailures {
		c.log.Error().Int("failures", c.failures).Msg("recognition keeps failing, going idle")
		c.setMode(domain.ModeIdle, domain.ReasonRecognitionError)
		return
	}
	c.rearm(domain.ReasonRecognitionError)
}

// prepareBackend resolves the recognizer and fresh credentials for kind
// without touching the live backend. Failures are reported once.
func (c *SessionController) prepareBackend(kind domain.BackendKind) (ports.Recognizer, domain.SpeechCredentials, error) {
	recognizer, ok := c.deps.Recognizers[kind]
	if !ok {
		err := fmt.Errorf("no recognizer configured for %q", kind)
		c.raise(domain.ErrorConfiguration, err.Error())
		c.assistant(err.Error(), "")
		return nil, domain.SpeechCredentials{}, err
	}

	credsCtx, cancel := context.WithTimeout(c.rootCtx, 10*time.Second)
	creds, err := c.deps.Credentials.SpeechCredentials(credsCtx)
	cancel()
	if err != nil {
		c.log.Warn().Err(err).Msg("speech credentials unavailable")
		c.raise(domain.ErrorConfiguration, err.Error())
		if errors.Is(err, ports.ErrMissingCredentials) {
			c.assistant("Speech key or service region not set. Please check your configuration.", "")
		} else {
			c.assistant("Could not load speech credentials: "+err.Error(), "")
		}
		return nil, domain.SpeechCredentials{}, err
	}
	return recognizer, creds, nil
}

// startBackend starts kind once the previous backend is fully torn down.
func (c *SessionController) startBackend(kind domain.BackendKind, recognizer ports.Recognizer, creds domain.SpeechCredentials) error {
	session, err := recognizer.Start(c.rootCtx, ports.RecognitionOptions{
		Language:    c.cfg.Language,
		Continuous:  true,
		Credentials: creds,
	})
	if err != nil {
		c.log.Warn().Err(err).Str("backend", string(kind)).Msg("recognition backend failed to start")
		c.raise(domain.ErrorRecognition, err.Error())
		c.assistant("Speech recognition error: "+err.Error(), "")
		return err
	}

	c.backendID++
	c.backend = newLiveBackend(c.backendID, kind, session)
	go c.forward(c.backend)
	c.deps.Metrics.BackendStarted(kind)
	c.updateStatus(func(s *domain.Status) { s.Backend = kind })
	c.log.Debug().Str("backend", string(kind)).Msg("recognition backend started")
	return nil
}

// teardownBackend stops the live backend and waits for it to finish.
func (c *SessionController) teardownBackend() {
	if c.backend == nil {
		return
	}
	live := c.backend
	c.backend = nil
	close(live.detached)

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.BackendStop)
	defer cancel()
	if err := live.session.Stop(ctx); err != nil {
		c.log.Warn().Err(err).Str("backend", string(live.kind)).Msg("recognition backend stopped with error")
	}
	c.updateStatus(func(s *domain.Status) { s.Backend = "" })
}

// forward moves one backend's events into the inbox in arrival order. After
// detach it keeps draining so the session never blocks on a full channel.
func (c *SessionController) forward(live *liveBackend) {
	events := live.session.Events()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				c.enqueue(live, backendClosed{id: live.id})
				return
			}
			c.enqueue(live, transcriptArrived{id: live.id, event: event})
		case epoch := <-live.flush:
			if !c.forwardBuffered(live, events) {
				return
			}
			c.enqueue(live, autoStopDue{id: live.id, epoch: epoch})
		case <-live.detached:
			for range events {
			}
			return
		}
	}
}

// forwardBuffered enqueues events the session has already buffered. It
// returns false once the session has closed.
func (c *SessionController) forwardBuffered(live *liveBackend, events <-chan domain.TranscriptEvent) bool {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				c.enqueue(live, backendClosed{id: live.id})
				return false
			}
			c.enqueue(live, transcriptArrived{id: live.id, event: event})
		default:
			return true
		}
	}
}

func (c *SessionController) enqueue(live *liveBackend, ev loopEvent) {
	select {
	case c.inbox <- ev:
	case <-live.detached:
	case <-c.quit:
	}
}

// cancelModeTimers cancels every armed timer and invalidates any firing
// already queued.
func (c *SessionController) cancelModeTimers() {
	c.epoch++
	c.autoStop.Cancel()
	c.countdown.Cancel()
	c.flush.Cancel()
	hadCountdown := c.countdown != nil
	c.autoStop, c.countdown, c.flush = nil, nil, nil

	if hadCountdown {
		c.remaining = 0
		c.deps.Events.CountdownCleared()
		c.updateStatus(func(s *domain.Status) { s.Countdown = 0 })
	}
}

func (c *SessionController) setMode(mode domain.SessionMode, reason domain.TransitionReason) {
	if c.mode == mode {
		return
	}
	c.log.Debug().Str("from", string(c.mode)).Str("to", string(mode)).Str("reason", string(reason)).Msg("mode changed")
	c.mode = mode
	c.updateStatus(func(s *domain.Status) { s.Mode = mode })
	c.deps.Metrics.ModeChanged(mode)
	c.deps.Events.ModeChanged(mode, reason)
}

func (c *SessionController) updateStatus(update func(*domain.Status)) {
	c.statusMu.Lock()
	update(&c.status)
	c.statusMu.Unlock()
}

func (c *SessionController) user(text string) {
	c.deps.Events.MessageAppended(c.msgs.Append(domain.SenderUser, text, ""))
}

func (c *SessionController) assistant(text string, announce string) {
	c.deps.Events.MessageAppended(c.msgs.Append(domain.SenderAssistant, text, announce))
}

func (c *SessionController) raise(kind domain.ErrorKind, detail string) {
	c.deps.Metrics.ErrorRaised(kind)
	c.deps.Events.SessionError(kind, detail)
}
