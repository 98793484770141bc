package training

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/kaiwa/internal/clock"
	"github.com/dgnsrekt/kaiwa/internal/content"
	"github.com/dgnsrekt/kaiwa/speech"
)

// FlowPhase is the step a conversation turn is in.
type FlowPhase int

// Conversation phases.
const (
	FlowPrompt    FlowPhase = iota // turn opened, prompt not played yet
	FlowPlaying                    // prompt audio playing
	FlowReady                      // waiting for the learner to answer
	FlowListening                  // answer window open, countdown running
	FlowAnswered                   // answer recorded, example responses shown
	FlowTimeUp                     // countdown ran out, retry or reveal
	FlowComplete
)

func (p FlowPhase) String() string {
	switch p {
	case FlowPrompt:
		return "prompt"
	case FlowPlaying:
		return "playing"
	case FlowReady:
		return "ready"
	case FlowListening:
		return "listening"
	case FlowAnswered:
		return "answered"
	case FlowTimeUp:
		return "time_up"
	case FlowComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// ConversationSession is the progress through one scene.
type ConversationSession struct {
	ID            string
	SceneID       string
	CurrentIndex  int
	UserResponses []string // indexed by turn
	StartedAt     time.Time
	EndedAt       time.Time
	Completed     bool
	Attempts      int
}

// ConversationState is a snapshot of the flow for rendering.
type ConversationState struct {
	Phase           FlowPhase
	Index           int
	Total           int
	Turn            content.Turn
	Transcript      string // live transcript while listening
	UserResponse    string
	ShowResponses   bool
	TimeLeft        int
	AutoplayBlocked bool
	Err             error
}

// IsLastTurn reports whether the current turn is the scene's last.
func (s ConversationState) IsLastTurn() bool { return s.Index == s.Total-1 }

// ConversationFlow walks a scene turn by turn. It is safe for concurrent
// use; the change callback runs outside the lock.
type ConversationFlow struct {
	scene     content.Scene
	audio     Speaker
	speech    *speech.Controller
	config    Config
	clock     clock.Clock
	logger    *log.Logger
	history   *History
	countdown *Countdown

	mu       sync.Mutex
	state    ConversationState
	session  ConversationSession
	gen      uint64
	archived bool
	onChange func(ConversationState)
}

// NewConversationFlow starts a session over scene. The flow takes over the
// result, interim, time-up, no-speech and error callbacks of rec.
func NewConversationFlow(scene content.Scene, audio Speaker, rec *speech.Controller, opts ...Option) (*ConversationFlow, error) {
	if len(scene.Turns) == 0 {
		return nil, ErrEmptyScene
	}
	s := newSettings(opts)
	f := &ConversationFlow{
		scene:     scene,
		audio:     audio,
		speech:    rec,
		config:    s.config,
		clock:     s.clock,
		logger:    s.logger.WithPrefix("conversation"),
		history:   s.history,
		countdown: NewCountdown(s.clock, s.config.seconds()),
	}
	f.countdown.OnTick(f.handleTick)
	f.countdown.OnExpire(f.handleExpire)
	rec.OnResult(f.handleResult)
	rec.OnInterim(f.handleInterim)
	rec.OnTimeUp(f.handleTimeUp)
	rec.OnNoSpeech(f.handleNoSpeech)
	rec.OnError(f.handleError)

	f.mu.Lock()
	f.startSessionLocked()
	f.mu.Unlock()
	return f, nil
}

// OnChange registers a callback fired after every state change.
func (f *ConversationFlow) OnChange(fn func(ConversationState)) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

// Scene returns the scene being drilled.
func (f *ConversationFlow) Scene() content.Scene { return f.scene }

// State returns a snapshot of the flow.
func (f *ConversationFlow) State() ConversationState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Session returns a copy of the session progress.
func (f *ConversationFlow) Session() ConversationSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.session
	s.UserResponses = append([]string(nil), f.session.UserResponses...)
	return s
}

// PlayPrompt autoplays the current turn. A refused autoplay leaves the turn
// ready with AutoplayBlocked set, and Replay is needed to hear it.
func (f *ConversationFlow) PlayPrompt(ctx context.Context) error {
	return f.play(ctx, true)
}

// Replay plays the current turn on explicit request.
func (f *ConversationFlow) Replay(ctx context.Context) error {
	return f.play(ctx, false)
}

func (f *ConversationFlow) play(ctx context.Context, autoplay bool) error {
	f.mu.Lock()
	prev := f.state.Phase
	switch prev {
	case FlowComplete:
		f.mu.Unlock()
		return ErrComplete
	case FlowPlaying, FlowListening:
		f.mu.Unlock()
		return nil
	}
	gen := f.gen
	turn := f.state.Turn
	f.state.Phase = FlowPlaying
	f.state.Err = nil
	notify := f.changedLocked()
	f.mu.Unlock()
	notify()

	err := f.audio.Play(ctx, turn.Text, f.config.Speed, autoplay)

	f.mu.Lock()
	if gen != f.gen {
		// Superseded by a new turn or an opened answer window.
		f.mu.Unlock()
		return err
	}
	blocked := f.audio.AutoplayBlocked()
	f.state.AutoplayBlocked = blocked
	next := FlowReady
	if prev == FlowAnswered || prev == FlowTimeUp {
		next = prev
	}
	f.state.Phase = next
	if err != nil {
		f.state.Err = err
	}
	listen := f.config.AutoListen && err == nil && !blocked && next == FlowReady
	notify = f.changedLocked()
	f.mu.Unlock()
	notify()

	if err != nil {
		f.logger.Warn("prompt playback failed", "turn", turn.ID, "err", err)
		return err
	}
	if listen {
		return f.StartListening()
	}
	return nil
}

// StartListening opens the answer window: recognition restarts and the
// countdown begins from the full time limit. It is a no-op while already
// listening.
func (f *ConversationFlow) StartListening() error {
	f.mu.Lock()
	prev := f.state.Phase
	switch prev {
	case FlowComplete:
		f.mu.Unlock()
		return ErrComplete
	case FlowListening:
		f.mu.Unlock()
		return nil
	}
	f.gen++
	f.state.Phase = FlowListening
	f.state.ShowResponses = false
	f.state.Transcript = ""
	f.state.UserResponse = ""
	f.state.Err = nil
	f.state.TimeLeft = f.config.seconds()
	f.session.Attempts++
	notify := f.changedLocked()
	f.mu.Unlock()

	if prev == FlowPlaying {
		if err := f.audio.Stop(); err != nil {
			f.logger.Debug("stopping prompt failed", "err", err)
		}
	}
	if err := f.speech.Reset(); err != nil {
		f.logger.Debug("speech reset before listening", "err", err)
	}
	f.countdown.Reset(f.config.seconds())
	f.countdown.Start()
	notify()

	f.logger.Debug("listening", "turn", f.State().Turn.ID, "limit", f.config.ResponseTimeLimit)
	// Start failures arrive through handleError as well.
	return f.speech.Start()
}

// Retry reopens the answer window for the current turn.
func (f *ConversationFlow) Retry() error {
	return f.StartListening()
}

// RevealResponses shows the example responses after a time up.
func (f *ConversationFlow) RevealResponses() {
	f.mu.Lock()
	if f.state.Phase != FlowTimeUp && f.state.Phase != FlowReady {
		f.mu.Unlock()
		return
	}
	f.state.Phase = FlowAnswered
	f.state.ShowResponses = true
	notify := f.changedLocked()
	f.mu.Unlock()
	notify()
}

// Next advances to the following turn, or completes the session after the
// last one. Timers, recognition and audio of the current turn stop.
func (f *ConversationFlow) Next() error {
	f.mu.Lock()
	if f.state.Phase == FlowComplete {
		f.mu.Unlock()
		return ErrComplete
	}
	f.gen++
	var rec *Record
	if f.state.Index >= len(f.scene.Turns)-1 {
		rec = f.completeLocked()
	} else {
		f.openTurnLocked(f.state.Index + 1)
	}
	notify := f.changedLocked()
	f.mu.Unlock()

	f.halt()
	if rec != nil {
		f.history.Add(*rec)
		f.logger.Info("scene complete", "scene", f.scene.ID, "answered", rec.Done, "turns", rec.Items)
	}
	notify()
	return nil
}

// Reset restarts the scene from the first turn with a fresh session. An
// unfinished session is archived first, as Close does.
func (f *ConversationFlow) Reset() {
	f.mu.Lock()
	f.gen++
	var rec *Record
	if !f.archived {
		f.session.EndedAt = f.clock.Now()
		r := f.recordLocked()
		rec = &r
	}
	f.startSessionLocked()
	notify := f.changedLocked()
	f.mu.Unlock()

	f.halt()
	if err := f.speech.Reset(); err != nil {
		f.logger.Debug("speech reset", "err", err)
	}
	if rec != nil {
		f.history.Add(*rec)
	}
	notify()
}

// Close stops the flow and archives an unfinished session. It returns the
// archived record, if any.
func (f *ConversationFlow) Close() (Record, bool) {
	f.mu.Lock()
	f.gen++
	var rec Record
	archive := !f.archived
	if archive {
		f.session.EndedAt = f.clock.Now()
		rec = f.recordLocked()
		f.archived = true
	}
	f.onChange = nil
	f.mu.Unlock()

	f.halt()
	f.speech.OnResult(nil)
	f.speech.OnInterim(nil)
	f.speech.OnTimeUp(nil)
	f.speech.OnNoSpeech(nil)
	f.speech.OnError(nil)
	if archive {
		f.history.Add(rec)
	}
	return rec, archive
}

func (f *ConversationFlow) halt() {
	f.countdown.Stop()
	f.speech.Cancel()
	if err := f.audio.Stop(); err != nil {
		f.logger.Debug("stopping audio failed", "err", err)
	}
}

func (f *ConversationFlow) startSessionLocked() {
	f.session = ConversationSession{
		ID:            uuid.NewString(),
		SceneID:       f.scene.ID,
		UserResponses: make([]string, len(f.scene.Turns)),
		StartedAt:     f.clock.Now(),
	}
	f.archived = false
	f.openTurnLocked(0)
}

func (f *ConversationFlow) openTurnLocked(i int) {
	f.session.CurrentIndex = i
	f.state = ConversationState{
		Phase:    FlowPrompt,
		Index:    i,
		Total:    len(f.scene.Turns),
		Turn:     f.scene.Turns[i],
		TimeLeft: f.config.seconds(),
	}
}

func (f *ConversationFlow) completeLocked() *Record {
	f.state.Phase = FlowComplete
	f.state.ShowResponses = false
	f.session.Completed = true
	f.session.EndedAt = f.clock.Now()
	f.archived = true
	rec := f.recordLocked()
	return &rec
}

func (f *ConversationFlow) recordLocked() Record {
	done := 0
	for _, r := range f.session.UserResponses {
		if r != "" {
			done++
		}
	}
	return Record{
		ID:        f.session.ID,
		Kind:      KindConversation,
		ContentID: f.scene.ID,
		StartedAt: f.session.StartedAt,
		EndedAt:   f.session.EndedAt,
		Completed: f.session.Completed,
		Items:     len(f.scene.Turns),
		Done:      done,
		Attempts:  f.session.Attempts,
		Responses: append([]string(nil), f.session.UserResponses...),
	}
}

func (f *ConversationFlow) handleTick(left int) {
	f.mu.Lock()
	if f.state.Phase != FlowListening {
		f.mu.Unlock()
		return
	}
	f.state.TimeLeft = left
	notify := f.changedLocked()
	f.mu.Unlock()
	notify()
}

func (f *ConversationFlow) handleExpire() { f.closeWindow("", "countdown") }

// handleTimeUp closes the window when the recognizer's own time limit runs
// out before the countdown does.
func (f *ConversationFlow) handleTimeUp(transcript string) { f.closeWindow(transcript, "speech") }

// closeWindow ends the answer window with whatever was heard so far.
func (f *ConversationFlow) closeWindow(heard, source string) {
	f.mu.Lock()
	if f.state.Phase != FlowListening {
		f.mu.Unlock()
		return
	}
	f.gen++
	f.countdown.Stop()
	partial := heard
	if partial == "" {
		partial = f.state.Transcript
	}
	f.state.Phase = FlowTimeUp
	f.state.TimeLeft = 0
	f.state.Transcript = partial
	f.state.UserResponse = partial
	if partial != "" {
		f.session.UserResponses[f.state.Index] = partial
	}
	turnID := f.state.Turn.ID
	notify := f.changedLocked()
	f.mu.Unlock()

	// Cancel settles a controller left confirming by ConfirmOnTimeUp.
	f.speech.Cancel()
	f.logger.Debug("answer window closed", "turn", turnID, "by", source, "partial", partial)
	notify()
}

// handleNoSpeech reopens the turn when recognition ended without hearing
// anything.
func (f *ConversationFlow) handleNoSpeech() {
	f.mu.Lock()
	if f.state.Phase != FlowListening {
		f.mu.Unlock()
		return
	}
	f.countdown.Stop()
	f.state.Phase = FlowReady
	f.state.TimeLeft = f.config.seconds()
	notify := f.changedLocked()
	f.mu.Unlock()
	notify()
}

func (f *ConversationFlow) handleInterim(text string) {
	f.mu.Lock()
	if f.state.Phase != FlowListening {
		f.mu.Unlock()
		return
	}
	f.state.Transcript = text
	notify := f.changedLocked()
	f.mu.Unlock()
	notify()
}

func (f *ConversationFlow) handleResult(r speech.Result) {
	f.mu.Lock()
	if f.state.Phase != FlowListening {
		f.mu.Unlock()
		return
	}
	f.countdown.Stop()
	f.state.Phase = FlowAnswered
	f.state.Transcript = r.Transcript
	f.state.UserResponse = r.Transcript
	f.state.ShowResponses = true
	f.session.UserResponses[f.state.Index] = r.Transcript
	notify := f.changedLocked()
	f.mu.Unlock()

	f.speech.Confirm()
	notify()
}

func (f *ConversationFlow) handleError(se *speech.SpeechError) {
	if se.Type == speech.ErrTypeResetTimeout {
		f.logger.Debug("speech reset forced", "err", se)
		return
	}
	f.mu.Lock()
	if f.state.Phase != FlowListening {
		f.mu.Unlock()
		return
	}
	f.countdown.Stop()
	f.state.Phase = FlowReady
	f.state.Err = se
	notify := f.changedLocked()
	f.mu.Unlock()
	notify()
}

func (f *ConversationFlow) changedLocked() func() {
	fn := f.onChange
	if fn == nil {
		return func() {}
	}
	st := f.state
	return func() { fn(st) }
}
