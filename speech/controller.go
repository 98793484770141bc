package speech

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/kaiwa/internal/clock"
)

// Config holds speech session settings.
type Config struct {
	Lang           string
	Continuous     bool
	InterimResults bool

	// TimeLimit force-ends listening after this long, rounded up to whole
	// seconds. Zero disables it.
	TimeLimit time.Duration
	// ConfirmOnTimeUp moves a timed-out session with a partial transcript to
	// confirming instead of idle.
	ConfirmOnTimeUp bool
	// ResetTimeout bounds how long Reset waits for the recognizer to end.
	ResetTimeout time.Duration
	// EndGrace is how long a final result may trail the end event.
	EndGrace time.Duration
	// ConfidenceThreshold flags final results below it as low confidence.
	ConfidenceThreshold float64
}

// DefaultConfig returns the default session settings.
func DefaultConfig() Config {
	return Config{
		Lang:                "en-US",
		Continuous:          true,
		InterimResults:      true,
		ResetTimeout:        1500 * time.Millisecond,
		EndGrace:            300 * time.Millisecond,
		ConfidenceThreshold: 0.7,
	}
}

// Session is a snapshot of the recognition session.
type Session struct {
	Phase             Phase
	Transcript        string
	InterimTranscript string
	Confidence        float64
	LowConfidence     bool
	Err               *SpeechError
	TimeLeft          int // seconds, meaningful when TimeLimited
	TimeLimited       bool
}

// Observer receives session outcomes.
type Observer interface {
	SpeechSession(outcome string)
}

type nopObserver struct{}

func (nopObserver) SpeechSession(string) {}

type resetWaiter struct {
	session uint64
	done    chan struct{}
}

// Controller drives one recognizer through the session phases. It is safe
// for concurrent use; callbacks run outside the lock.
type Controller struct {
	rec      Recognizer
	config   Config
	clock    clock.Clock
	logger   *log.Logger
	observer Observer

	mu        sync.Mutex
	session   Session
	token     uint64
	running   bool
	emitted   bool
	tick      clock.Timer
	grace     clock.Timer
	resetWait *resetWaiter
	listeners map[EventType]ListenerID

	onStart   func()
	onInterim func(string)
	onResult  func(Result)
	onTimeUp  func(string)
	onSilent  func()
	onConfirm func(string)
	onError   func(*SpeechError)
	onPhase   func(from, to Phase)
	onTick    func(int)
}

// Option configures a Controller.
type Option func(*Controller)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(c *Controller) { c.config = cfg }
}

// WithClock sets the clock driving the time limit and reset timeout.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver attaches a telemetry observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observer = o
		}
	}
}

// NewController wraps rec. A nil recognizer makes Start fail with
// speech_not_supported.
func NewController(rec Recognizer, opts ...Option) *Controller {
	c := &Controller{
		rec:      rec,
		config:   DefaultConfig(),
		clock:    clock.Real(),
		logger:   log.Default(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.config.ResetTimeout <= 0 {
		c.config.ResetTimeout = DefaultConfig().ResetTimeout
	}

	if rec != nil {
		c.listeners = make(map[EventType]ListenerID)
		for _, t := range []EventType{EventStart, EventInterim, EventResult, EventEnd, EventError} {
			c.listeners[t] = rec.Events().On(t, c.handleEvent)
		}
	}
	return c
}

// OnStart registers a callback for the recognizer's start event.
func (c *Controller) OnStart(fn func()) { c.mu.Lock(); c.onStart = fn; c.mu.Unlock() }

// OnInterim registers a callback for interim transcripts.
func (c *Controller) OnInterim(fn func(string)) { c.mu.Lock(); c.onInterim = fn; c.mu.Unlock() }

// OnResult registers a callback for the final result. It fires at most once
// per session.
func (c *Controller) OnResult(fn func(Result)) { c.mu.Lock(); c.onResult = fn; c.mu.Unlock() }

// OnTimeUp registers a callback for time limit expiry. It receives whatever
// transcript had accumulated, possibly empty.
func (c *Controller) OnTimeUp(fn func(string)) { c.mu.Lock(); c.onTimeUp = fn; c.mu.Unlock() }

// OnNoSpeech registers a callback for sessions that ended without any
// transcript. The controller is idle again when it fires.
func (c *Controller) OnNoSpeech(fn func()) { c.mu.Lock(); c.onSilent = fn; c.mu.Unlock() }

// OnConfirm registers a callback for confirmed transcripts.
func (c *Controller) OnConfirm(fn func(string)) { c.mu.Lock(); c.onConfirm = fn; c.mu.Unlock() }

// OnError registers a callback for session errors.
func (c *Controller) OnError(fn func(*SpeechError)) { c.mu.Lock(); c.onError = fn; c.mu.Unlock() }

// OnPhaseChange registers a callback for phase changes.
func (c *Controller) OnPhaseChange(fn func(from, to Phase)) { c.mu.Lock(); c.onPhase = fn; c.mu.Unlock() }

// OnTick registers a callback fired every second while a time limit runs.
func (c *Controller) OnTick(fn func(secondsLeft int)) { c.mu.Lock(); c.onTick = fn; c.mu.Unlock() }

// State returns a snapshot of the session.
func (c *Controller) State() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Phase
}

// SetTimeLimit changes the time limit for later sessions.
func (c *Controller) SetTimeLimit(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.TimeLimit = d
}

// Start begins listening. It is valid only from idle; while already
// listening it is a no-op.
func (c *Controller) Start() error {
	if c.rec == nil {
		se := NewSpeechError(ErrTypeNotSupported, "speech recognition is not available", ErrNotSupported)
		c.mu.Lock()
		c.session.Err = se
		onError := c.onError
		c.mu.Unlock()
		c.observer.SpeechSession("error")
		if onError != nil {
			onError(se)
		}
		return se
	}

	c.mu.Lock()
	switch c.session.Phase {
	case PhaseListening:
		c.mu.Unlock()
		c.logger.Debug("speech start ignored, already listening")
		return nil
	case PhaseIdle:
	default:
		phase := c.session.Phase
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotIdle, phase)
	}

	c.token++
	token := c.token
	c.clearLocked()
	c.running = true
	if limit := c.config.TimeLimit; limit > 0 {
		c.session.TimeLimited = true
		c.session.TimeLeft = int((limit + time.Second - 1) / time.Second)
		c.tick = c.clock.AfterFunc(time.Second, func() { c.handleTick(token) })
	}
	notify := c.setPhaseLocked(PhaseListening)
	opts := Options{Lang: c.config.Lang, Continuous: c.config.Continuous, InterimResults: c.config.InterimResults}
	c.mu.Unlock()
	notify()

	c.logger.Debug("speech session started", "session", token, "lang", opts.Lang, "limit", c.config.TimeLimit)
	if err := c.rec.Start(token, opts); err != nil {
		se := classifyStartError(err)
		c.mu.Lock()
		if token != c.token {
			c.mu.Unlock()
			return se
		}
		c.running = false
		c.stopTimersLocked()
		c.clearLocked()
		c.session.Err = se
		notify := c.setPhaseLocked(PhaseIdle)
		onError := c.onError
		c.mu.Unlock()
		notify()

		c.logger.Warn("speech recognition failed to start", "type", se.Type, "err", err)
		c.observer.SpeechSession("error")
		if onError != nil {
			onError(se)
		}
		return se
	}
	return nil
}

// Finish asks the recognizer to finalize what it heard. The session moves
// to processing until the final result or end arrives.
func (c *Controller) Finish() error {
	c.mu.Lock()
	if c.session.Phase != PhaseListening {
		c.mu.Unlock()
		return nil
	}
	token := c.token
	c.stopTimersLocked()
	notify := c.setPhaseLocked(PhaseProcessing)
	c.grace = c.clock.AfterFunc(c.config.ResetTimeout, func() { c.finishWithoutResult(token) })
	c.mu.Unlock()
	notify()

	if err := c.rec.Stop(); err != nil {
		return fmt.Errorf("failed to stop recognizer: %w", err)
	}
	return nil
}

// Confirm accepts the pending transcript and returns to idle. Outside
// confirming it is a no-op and reports false.
func (c *Controller) Confirm() (string, bool) {
	c.mu.Lock()
	if c.session.Phase != PhaseConfirming {
		c.mu.Unlock()
		return "", false
	}
	text := c.session.Transcript
	c.clearLocked()
	notify := c.setPhaseLocked(PhaseIdle)
	onConfirm := c.onConfirm
	c.mu.Unlock()
	notify()

	c.observer.SpeechSession("confirmed")
	if onConfirm != nil {
		onConfirm(text)
	}
	return text, true
}

// Retry resets and starts a new session. It is valid from confirming or
// after an error; otherwise it is a no-op.
func (c *Controller) Retry() error {
	c.mu.Lock()
	ok := c.session.Phase == PhaseConfirming || (c.session.Phase == PhaseIdle && c.session.Err != nil)
	c.mu.Unlock()
	if !ok {
		return nil
	}

	// A reset timeout is recoverable: the session was force-completed.
	_ = c.Reset()
	return c.Start()
}

// Cancel aborts listening or confirming and returns to idle without
// emitting a result.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.session.Phase == PhaseIdle {
		c.mu.Unlock()
		return
	}
	wasRunning := c.running
	c.token++
	c.running = false
	c.stopTimersLocked()
	c.clearLocked()
	notify := c.setPhaseLocked(PhaseIdle)
	c.mu.Unlock()
	notify()

	if wasRunning {
		if err := c.rec.Abort(); err != nil {
			c.logger.Warn("speech abort failed", "err", err)
		}
	}
	c.observer.SpeechSession("cancelled")
}

// Reset aborts any recognition and clears the session, from any phase. It
// waits up to ResetTimeout for the recognizer's end event; when that does
// not arrive it force-completes and returns a recoverable
// speech_reset_timeout error.
func (c *Controller) Reset() error {
	c.mu.Lock()
	wasRunning := c.running && c.rec != nil
	old := c.token
	c.token++
	c.running = false
	c.stopTimersLocked()
	c.clearLocked()
	c.session.Err = nil
	notify := c.setPhaseLocked(PhaseIdle)

	var wait chan struct{}
	if wasRunning {
		wait = make(chan struct{})
		c.resetWait = &resetWaiter{session: old, done: wait}
	}
	c.mu.Unlock()
	notify()

	if wait == nil {
		return nil
	}

	if err := c.rec.Abort(); err != nil {
		c.logger.Warn("speech abort failed during reset", "err", err)
		c.dropResetWait(wait)
		return nil
	}

	timeout := make(chan struct{})
	timer := c.clock.AfterFunc(c.config.ResetTimeout, func() { close(timeout) })
	select {
	case <-wait:
		timer.Stop()
		c.logger.Debug("speech reset complete", "session", old)
		return nil
	case <-timeout:
	}

	c.dropResetWait(wait)
	se := NewSpeechError(ErrTypeResetTimeout, "recognizer did not end in time, reset forced", nil)
	c.mu.Lock()
	if c.session.Phase == PhaseIdle && c.session.Err == nil {
		c.session.Err = se
	}
	onError := c.onError
	c.mu.Unlock()

	c.logger.Warn("speech reset timed out", "session", old, "timeout", c.config.ResetTimeout)
	c.observer.SpeechSession("reset_timeout")
	if onError != nil {
		onError(se)
	}
	return se
}

// Close aborts recognition and detaches from the recognizer.
func (c *Controller) Close() {
	c.Cancel()
	if c.rec == nil {
		return
	}
	c.mu.Lock()
	listeners := c.listeners
	c.listeners = nil
	c.mu.Unlock()
	for t, id := range listeners {
		c.rec.Events().Off(t, id)
	}
}

func (c *Controller) dropResetWait(wait chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resetWait != nil && c.resetWait.done == wait {
		c.resetWait = nil
	}
}

func (c *Controller) handleEvent(ev Event) {
	c.mu.Lock()
	if rw := c.resetWait; rw != nil && ev.Type == EventEnd && ev.Session == rw.session {
		close(rw.done)
		c.resetWait = nil
		c.mu.Unlock()
		return
	}
	if ev.Session != c.token {
		c.mu.Unlock()
		c.logger.Debug("dropping stale speech event", "event", ev.Type, "session", ev.Session)
		return
	}

	switch ev.Type {
	case EventStart:
		fn := c.onStart
		c.mu.Unlock()
		if fn != nil {
			fn()
		}

	case EventInterim:
		if c.session.Phase != PhaseListening && c.session.Phase != PhaseProcessing {
			c.mu.Unlock()
			return
		}
		c.session.InterimTranscript = ev.Result.Transcript
		fn := c.onInterim
		c.mu.Unlock()
		if fn != nil {
			fn(ev.Result.Transcript)
		}

	case EventResult:
		c.acceptResult(ev.Result)

	case EventEnd:
		c.running = false
		if c.emitted || (c.session.Phase != PhaseListening && c.session.Phase != PhaseProcessing) {
			c.mu.Unlock()
			return
		}
		// Ended without a final result. Give a trailing result a moment
		// before settling.
		token := c.token
		c.stopTimersLocked()
		notify := c.setPhaseLocked(PhaseProcessing)
		c.grace = c.clock.AfterFunc(c.config.EndGrace, func() { c.finishWithoutResult(token) })
		c.mu.Unlock()
		notify()

	case EventError:
		if c.session.Phase != PhaseListening && c.session.Phase != PhaseProcessing {
			c.mu.Unlock()
			c.logger.Debug("ignoring speech error outside listening", "code", ev.Code)
			return
		}
		msg := ev.Message
		if msg == "" {
			msg = "speech recognition error"
		}
		se := NewSpeechError(ErrTypeRecognition, msg, nil).WithCode(ev.Code)
		c.token++
		c.running = false
		c.stopTimersLocked()
		c.clearLocked()
		c.session.Err = se
		notify := c.setPhaseLocked(PhaseIdle)
		onError := c.onError
		c.mu.Unlock()
		notify()

		c.logger.Warn("speech recognition error", "code", ev.Code, "message", msg)
		c.observer.SpeechSession("error")
		if onError != nil {
			onError(se)
		}

	default:
		c.mu.Unlock()
	}
}

// acceptResult is called with c.mu held and releases it.
func (c *Controller) acceptResult(r Result) {
	if !r.IsFinal {
		r.IsFinal = true
	}
	if c.emitted || (c.session.Phase != PhaseListening && c.session.Phase != PhaseProcessing) {
		c.mu.Unlock()
		c.logger.Debug("dropping duplicate speech result", "transcript", r.Transcript)
		return
	}
	c.emitted = true
	c.stopTimersLocked()
	c.session.Transcript = r.Transcript
	c.session.InterimTranscript = r.Transcript
	c.session.Confidence = r.Confidence
	c.session.LowConfidence = r.Confidence > 0 && r.Confidence < c.config.ConfidenceThreshold
	notify := c.setPhaseLocked(PhaseConfirming)
	running := c.running
	fn := c.onResult
	c.mu.Unlock()
	notify()

	if running {
		// Continuous recognizers keep listening after a final result.
		if err := c.rec.Stop(); err != nil {
			c.logger.Debug("speech stop after result failed", "err", err)
		}
	}
	if fn != nil {
		fn(r)
	}
}

// finishWithoutResult settles a session whose recognizer ended without a
// final result. An interim transcript is promoted to the result.
func (c *Controller) finishWithoutResult(token uint64) {
	c.mu.Lock()
	if token != c.token || c.emitted || c.session.Phase != PhaseProcessing {
		c.mu.Unlock()
		return
	}
	c.grace = nil
	if interim := c.session.InterimTranscript; interim != "" {
		c.acceptResult(Result{Transcript: interim, IsFinal: true, Timestamp: c.clock.Now()})
		return
	}

	c.token++
	c.clearLocked()
	notify := c.setPhaseLocked(PhaseIdle)
	onSilent := c.onSilent
	c.mu.Unlock()
	notify()
	c.observer.SpeechSession("no_speech")
	if onSilent != nil {
		onSilent()
	}
}

func (c *Controller) handleTick(token uint64) {
	c.mu.Lock()
	if token != c.token || c.session.Phase != PhaseListening {
		c.mu.Unlock()
		return
	}
	c.session.TimeLeft--
	if c.session.TimeLeft > 0 {
		left := c.session.TimeLeft
		c.tick = c.clock.AfterFunc(time.Second, func() { c.handleTick(token) })
		fn := c.onTick
		c.mu.Unlock()
		if fn != nil {
			fn(left)
		}
		return
	}

	c.tick = nil
	transcript := c.session.Transcript
	if transcript == "" {
		transcript = c.session.InterimTranscript
	}
	// The aborted run may still deliver events; they are stale from here.
	c.token++
	c.running = false
	c.stopTimersLocked()

	var notify func()
	if c.config.ConfirmOnTimeUp && transcript != "" {
		c.emitted = true
		c.session.Transcript = transcript
		c.session.InterimTranscript = transcript
		c.session.Confidence = 0
		notify = c.setPhaseLocked(PhaseConfirming)
	} else {
		c.clearLocked()
		notify = c.setPhaseLocked(PhaseIdle)
	}
	onTick := c.onTick
	onTimeUp := c.onTimeUp
	c.mu.Unlock()

	if err := c.rec.Abort(); err != nil {
		c.logger.Debug("speech abort on time up failed", "err", err)
	}
	notify()
	if onTick != nil {
		onTick(0)
	}
	c.logger.Debug("speech time limit reached", "transcript", transcript)
	c.observer.SpeechSession("timeup")
	if onTimeUp != nil {
		onTimeUp(transcript)
	}
}

func (c *Controller) clearLocked() {
	c.session.Transcript = ""
	c.session.InterimTranscript = ""
	c.session.Confidence = 0
	c.session.LowConfidence = false
	c.session.Err = nil
	c.session.TimeLeft = 0
	c.session.TimeLimited = false
	c.emitted = false
}

func (c *Controller) stopTimersLocked() {
	if c.tick != nil {
		c.tick.Stop()
		c.tick = nil
	}
	if c.grace != nil {
		c.grace.Stop()
		c.grace = nil
	}
}

// setPhaseLocked changes the phase and returns the notification to run
// once the lock is released.
func (c *Controller) setPhaseLocked(to Phase) func() {
	from := c.session.Phase
	if from == to {
		return func() {}
	}
	if !CanTransition(from, to) {
		c.logger.Warn("illegal speech phase transition", "from", from, "to", to)
	}
	c.session.Phase = to
	fn := c.onPhase
	if fn == nil {
		return func() {}
	}
	return func() { fn(from, to) }
}
