package training

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/kaiwa/internal/clock"
	"github.com/dgnsrekt/kaiwa/internal/content"
	"github.com/dgnsrekt/kaiwa/speech"
)

// PhrasePhase is the step a phrase card is in.
type PhrasePhase int

// Phrase phases.
const (
	PhraseShowing   PhrasePhase = iota // prompt shown, nothing said yet
	PhraseListening                    // recognizing the learner's attempt
	PhraseAssessing                    // attempt heard, waiting for a self-mark
	PhraseMarked                       // marked, waiting to advance
	PhraseComplete
)

func (p PhrasePhase) String() string {
	switch p {
	case PhraseShowing:
		return "showing"
	case PhraseListening:
		return "listening"
	case PhraseAssessing:
		return "assessing"
	case PhraseMarked:
		return "marked"
	case PhraseComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Mark is a self-assessment.
type Mark int

// Marks.
const (
	Unmarked Mark = iota
	Correct
	Incorrect
)

// PhraseState is a snapshot of the phrase drill for rendering.
type PhraseState struct {
	Phase        PhrasePhase
	Index        int
	Total        int
	Phrase       content.Phrase
	Transcript   string
	UserResponse string
	ShowAnswer   bool
	Mark         Mark
	Completed    int
	Incorrect    []int // phrase indexes queued for another try
	RetryPass    bool  // the first pass is over
	Attempts     int
	Err          error
}

// Progress is the share of phrases marked correct.
func (s PhraseState) Progress() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total)
}

// PhraseFlow drills a phrase group. The learner sees the Japanese prompt,
// says the English phrase and marks the attempt. Phrases marked incorrect
// come back after the first pass until every phrase has been marked correct.
type PhraseFlow struct {
	group   content.PhraseGroup
	audio   Speaker
	speech  *speech.Controller
	config  Config
	clock   clock.Clock
	logger  *log.Logger
	history *History

	mu        sync.Mutex
	state     PhraseState
	id        string
	started   time.Time
	completed map[int]bool
	incorrect []int
	gen       uint64
	advance   clock.Timer
	archived  bool
	onChange  func(PhraseState)
}

// NewPhraseFlow starts a drill over group. A nil rec limits the drill to
// self-marking without recognition.
func NewPhraseFlow(group content.PhraseGroup, audio Speaker, rec *speech.Controller, opts ...Option) (*PhraseFlow, error) {
	if len(group.Phrases) == 0 {
		return nil, ErrEmptyGroup
	}
	s := newSettings(opts)
	f := &PhraseFlow{
		group:   group,
		audio:   audio,
		speech:  rec,
		config:  s.config,
		clock:   s.clock,
		logger:  s.logger.WithPrefix("phrases"),
		history: s.history,
	}
	if rec != nil {
		rec.OnResult(f.handleResult)
		rec.OnInterim(f.handleInterim)
		rec.OnTimeUp(f.handleTimeUp)
		rec.OnNoSpeech(f.handleNoSpeech)
		rec.OnError(f.handleError)
	}
	f.mu.Lock()
	f.startLocked()
	f.mu.Unlock()
	return f, nil
}

// OnChange registers a callback fired after every state change.
func (f *PhraseFlow) OnChange(fn func(PhraseState)) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

// Group returns the group being drilled.
func (f *PhraseFlow) Group() content.PhraseGroup { return f.group }

// State returns a snapshot of the drill.
func (f *PhraseFlow) State() PhraseState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// PlayAnswer plays the English phrase.
func (f *PhraseFlow) PlayAnswer(ctx context.Context) error {
	f.mu.Lock()
	if f.state.Phase == PhraseComplete {
		f.mu.Unlock()
		return ErrComplete
	}
	text := f.state.Phrase.English
	f.mu.Unlock()
	return f.audio.Play(ctx, text, f.config.Speed, false)
}

// RevealAnswer shows the English phrase.
func (f *PhraseFlow) RevealAnswer() {
	f.mu.Lock()
	if f.state.Phase == PhraseComplete || f.state.ShowAnswer {
		f.mu.Unlock()
		return
	}
	f.state.ShowAnswer = true
	notify := f.changedLocked()
	f.mu.Unlock()
	notify()
}

// StartListening recognizes an attempt at the current phrase.
func (f *PhraseFlow) StartListening() error {
	if f.speech == nil {
		return speech.NewSpeechError(speech.ErrTypeNotSupported, "speech recognition is not available", speech.ErrNotSupported)
	}
	f.mu.Lock()
	switch f.state.Phase {
	case PhraseComplete:
		f.mu.Unlock()
		return ErrComplete
	case PhraseListening:
		f.mu.Unlock()
		return nil
	}
	f.cancelAdvanceLocked()
	f.state.Phase = PhraseListening
	f.state.Transcript = ""
	f.state.UserResponse = ""
	f.state.Err = nil
	notify := f.changedLocked()
	f.mu.Unlock()

	if err := f.speech.Reset(); err != nil {
		f.logger.Debug("speech reset before listening", "err", err)
	}
	notify()
	return f.speech.Start()
}

// StopListening asks the recognizer to finalize the attempt.
func (f *PhraseFlow) StopListening() error {
	if f.speech == nil {
		return nil
	}
	return f.speech.Finish()
}

// MarkCorrect records the current phrase as said correctly. When every
// phrase is correct the drill completes; otherwise it advances after
// AdvanceDelay if AutoAdvance is set.
func (f *PhraseFlow) MarkCorrect() error {
	f.mu.Lock()
	if f.state.Phase == PhraseComplete {
		f.mu.Unlock()
		return ErrComplete
	}
	wasListening := f.state.Phase == PhraseListening
	f.cancelAdvanceLocked()
	i := f.state.Index
	f.completed[i] = true
	f.incorrect = slices.DeleteFunc(f.incorrect, func(j int) bool { return j == i })
	f.state.Mark = Correct
	f.state.ShowAnswer = true
	f.state.Attempts++

	var rec *Record
	if f.doneLocked() {
		rec = f.completeLocked()
	} else {
		f.state.Phase = PhraseMarked
		if f.config.AutoAdvance {
			gen := f.gen
			f.advance = f.clock.AfterFunc(f.config.AdvanceDelay, func() { f.autoAdvance(gen) })
		}
	}
	notify := f.changedLocked()
	f.mu.Unlock()

	if wasListening || rec != nil {
		f.stopSpeech()
	}
	if rec != nil {
		f.history.Add(*rec)
		f.logger.Info("phrase group complete", "group", f.group.ID, "attempts", rec.Attempts)
	}
	notify()
	return nil
}

// MarkIncorrect queues the current phrase for another try. A phrase is
// queued at most once; marking it again moves it to the back.
func (f *PhraseFlow) MarkIncorrect() error {
	f.mu.Lock()
	if f.state.Phase == PhraseComplete {
		f.mu.Unlock()
		return ErrComplete
	}
	wasListening := f.state.Phase == PhraseListening
	f.cancelAdvanceLocked()
	i := f.state.Index
	delete(f.completed, i)
	f.incorrect = slices.DeleteFunc(f.incorrect, func(j int) bool { return j == i })
	f.incorrect = append(f.incorrect, i)
	f.state.Mark = Incorrect
	f.state.ShowAnswer = true
	f.state.Phase = PhraseMarked
	f.state.Attempts++
	notify := f.changedLocked()
	f.mu.Unlock()

	if wasListening {
		f.stopSpeech()
	}
	notify()
	return nil
}

// Next moves to the following phrase. After the first pass it visits the
// queued incorrect phrases, then any phrase never marked correct. With
// nothing left the drill completes.
func (f *PhraseFlow) Next() error {
	f.mu.Lock()
	if f.state.Phase == PhraseComplete {
		f.mu.Unlock()
		return ErrComplete
	}
	rec := f.nextLocked()
	notify := f.changedLocked()
	f.mu.Unlock()

	f.stopSpeech()
	if rec != nil {
		f.history.Add(*rec)
	}
	notify()
	return nil
}

// Restart archives the current drill and begins a fresh one.
func (f *PhraseFlow) Restart() {
	f.mu.Lock()
	var rec Record
	archive := !f.archived
	if archive {
		rec = f.recordLocked(f.clock.Now(), false)
	}
	f.startLocked()
	notify := f.changedLocked()
	f.mu.Unlock()

	f.stopSpeech()
	if archive {
		f.history.Add(rec)
	}
	notify()
}

// Close stops the drill and archives it if unfinished.
func (f *PhraseFlow) Close() (Record, bool) {
	f.mu.Lock()
	f.gen++
	f.cancelAdvanceLocked()
	var rec Record
	archive := !f.archived
	if archive {
		rec = f.recordLocked(f.clock.Now(), false)
		f.archived = true
	}
	f.onChange = nil
	f.mu.Unlock()

	f.stopSpeech()
	if err := f.audio.Stop(); err != nil {
		f.logger.Debug("stopping audio failed", "err", err)
	}
	if f.speech != nil {
		f.speech.OnResult(nil)
		f.speech.OnInterim(nil)
		f.speech.OnTimeUp(nil)
		f.speech.OnNoSpeech(nil)
		f.speech.OnError(nil)
	}
	if archive {
		f.history.Add(rec)
	}
	return rec, archive
}

func (f *PhraseFlow) autoAdvance(gen uint64) {
	f.mu.Lock()
	if gen != f.gen || f.state.Phase != PhraseMarked {
		f.mu.Unlock()
		return
	}
	f.advance = nil
	rec := f.nextLocked()
	notify := f.changedLocked()
	f.mu.Unlock()

	if rec != nil {
		f.history.Add(*rec)
	}
	notify()
}

// nextLocked moves to the next phrase and returns the archive record when
// the drill completes.
func (f *PhraseFlow) nextLocked() *Record {
	f.cancelAdvanceLocked()
	n := len(f.group.Phrases)
	if !f.state.RetryPass {
		if f.state.Index < n-1 {
			f.openLocked(f.state.Index + 1)
			return nil
		}
		f.state.RetryPass = true
	}
	if len(f.incorrect) > 0 {
		f.openLocked(f.incorrect[0])
		return nil
	}
	for i := range n {
		if !f.completed[i] {
			f.openLocked(i)
			return nil
		}
	}
	return f.completeLocked()
}

func (f *PhraseFlow) doneLocked() bool {
	return len(f.completed) == len(f.group.Phrases) && len(f.incorrect) == 0
}

func (f *PhraseFlow) startLocked() {
	f.gen++
	f.cancelAdvanceLocked()
	f.id = uuid.NewString()
	f.started = f.clock.Now()
	f.completed = make(map[int]bool)
	f.incorrect = nil
	f.archived = false
	f.state = PhraseState{Total: len(f.group.Phrases)}
	f.openLocked(0)
}

func (f *PhraseFlow) openLocked(i int) {
	f.gen++
	f.state.Phase = PhraseShowing
	f.state.Index = i
	f.state.Phrase = f.group.Phrases[i]
	f.state.Transcript = ""
	f.state.UserResponse = ""
	f.state.ShowAnswer = false
	f.state.Mark = Unmarked
	f.state.Err = nil
}

func (f *PhraseFlow) completeLocked() *Record {
	f.gen++
	f.state.Phase = PhraseComplete
	f.archived = true
	rec := f.recordLocked(f.clock.Now(), true)
	return &rec
}

func (f *PhraseFlow) recordLocked(end time.Time, completed bool) Record {
	return Record{
		ID:        f.id,
		Kind:      KindPhrase,
		ContentID: f.group.ID,
		StartedAt: f.started,
		EndedAt:   end,
		Completed: completed,
		Items:     len(f.group.Phrases),
		Done:      len(f.completed),
		Attempts:  f.state.Attempts,
	}
}

func (f *PhraseFlow) cancelAdvanceLocked() {
	if f.advance != nil {
		f.advance.Stop()
		f.advance = nil
	}
}

func (f *PhraseFlow) stopSpeech() {
	if f.speech != nil {
		f.speech.Cancel()
	}
}

func (f *PhraseFlow) handleInterim(text string) {
	f.mu.Lock()
	if f.state.Phase != PhraseListening {
		f.mu.Unlock()
		return
	}
	f.state.Transcript = text
	notify := f.changedLocked()
	f.mu.Unlock()
	notify()
}

func (f *PhraseFlow) handleResult(r speech.Result) {
	f.mu.Lock()
	if f.state.Phase != PhraseListening {
		f.mu.Unlock()
		return
	}
	f.state.Phase = PhraseAssessing
	f.state.Transcript = r.Transcript
	f.state.UserResponse = r.Transcript
	f.state.ShowAnswer = true
	notify := f.changedLocked()
	f.mu.Unlock()

	f.speech.Confirm()
	notify()
}

// handleTimeUp assesses whatever was heard before the speech time limit ran
// out. With nothing heard the phrase is shown again.
func (f *PhraseFlow) handleTimeUp(transcript string) {
	f.mu.Lock()
	if f.state.Phase != PhraseListening {
		f.mu.Unlock()
		return
	}
	if transcript == "" {
		f.state.Phase = PhraseShowing
		f.state.Transcript = ""
	} else {
		f.state.Phase = PhraseAssessing
		f.state.Transcript = transcript
		f.state.UserResponse = transcript
		f.state.ShowAnswer = true
	}
	notify := f.changedLocked()
	f.mu.Unlock()

	f.speech.Confirm()
	notify()
}

func (f *PhraseFlow) handleNoSpeech() {
	f.mu.Lock()
	if f.state.Phase != PhraseListening {
		f.mu.Unlock()
		return
	}
	f.state.Phase = PhraseShowing
	f.state.Transcript = ""
	notify := f.changedLocked()
	f.mu.Unlock()
	notify()
}

func (f *PhraseFlow) handleError(se *speech.SpeechError) {
	if se.Type == speech.ErrTypeResetTimeout {
		return
	}
	f.mu.Lock()
	if f.state.Phase != PhraseListening {
		f.mu.Unlock()
		return
	}
	f.state.Phase = PhraseShowing
	f.state.Err = se
	notify := f.changedLocked()
	f.mu.Unlock()
	notify()
}

func (f *PhraseFlow) snapshotLocked() PhraseState {
	st := f.state
	st.Completed = len(f.completed)
	st.Incorrect = append([]int(nil), f.incorrect...)
	return st
}

func (f *PhraseFlow) changedLocked() func() {
	fn := f.onChange
	if fn == nil {
		return func() {}
	}
	st := f.snapshotLocked()
	return func() { fn(st) }
}
