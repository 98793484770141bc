// Package typed implements a speech.Recognizer fed from the keyboard. Edits
// become interim results and Submit produces the final result.
package typed

import (
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/kaiwa/speech"
)

// Recognizer turns typed text into recognition events.
type Recognizer struct {
	mu      sync.Mutex
	events  *speech.Emitter
	session uint64
	active  bool
	text    string
	interim bool
}

// New creates a keyboard recognizer.
func New(logger *log.Logger) *Recognizer {
	return &Recognizer{events: speech.NewEmitter(logger)}
}

// Events returns the recognizer's emitter.
func (r *Recognizer) Events() *speech.Emitter { return r.events }

// Start begins accepting text.
func (r *Recognizer) Start(session uint64, opts speech.Options) error {
	r.mu.Lock()
	r.session = session
	r.active = true
	r.text = ""
	r.interim = opts.InterimResults
	r.mu.Unlock()

	r.events.Emit(speech.Event{Type: speech.EventStart, Session: session})
	return nil
}

// Stop finalizes the current text, if any, and ends the run.
func (r *Recognizer) Stop() error {
	r.finish(true)
	return nil
}

// Abort ends the run without a result.
func (r *Recognizer) Abort() error {
	r.finish(false)
	return nil
}

// Active reports whether typed input is being accepted.
func (r *Recognizer) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// SetText replaces the typed text and emits it as an interim result.
func (r *Recognizer) SetText(text string) {
	r.mu.Lock()
	if !r.active || text == r.text {
		r.mu.Unlock()
		return
	}
	r.text = text
	session := r.session
	interim := r.interim
	r.mu.Unlock()

	if interim {
		r.events.Emit(speech.Event{
			Type:    speech.EventInterim,
			Session: session,
			Result:  speech.Result{Transcript: strings.TrimSpace(text), Timestamp: time.Now()},
		})
	}
}

// Submit emits the typed text as the final result with full confidence.
func (r *Recognizer) Submit() {
	r.finish(true)
}

func (r *Recognizer) finish(withResult bool) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	session := r.session
	text := strings.TrimSpace(r.text)
	r.text = ""
	r.mu.Unlock()

	if withResult && text != "" {
		r.events.Emit(speech.Event{
			Type:    speech.EventResult,
			Session: session,
			Result:  speech.Result{Transcript: text, Confidence: 1.0, IsFinal: true, Timestamp: time.Now()},
		})
	}
	r.events.Emit(speech.Event{Type: speech.EventEnd, Session: session})
}

var _ speech.Recognizer = (*Recognizer)(nil)
