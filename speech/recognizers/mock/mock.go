// Package mock provides a scripted speech.Recognizer for tests.
package mock

import (
	"sync"
	"time"

	"github.com/dgnsrekt/kaiwa/speech"
)

// Recognizer emits events only when told to. Start, Stop and Abort record
// calls; Stop and Abort end the run synchronously unless configured not to.
type Recognizer struct {
	mu         sync.Mutex
	events     *speech.Emitter
	session    uint64
	active     bool
	endOnStop  bool
	endOnAbort bool
	pending    []uint64 // aborted runs whose end is withheld

	startErr error
	abortErr error

	starts   int
	stops    int
	aborts   int
	lastOpts speech.Options
}

// New creates a mock recognizer.
func New() *Recognizer {
	return &Recognizer{
		events:     speech.NewEmitter(nil),
		endOnStop:  true,
		endOnAbort: true,
	}
}

// Events returns the recognizer's emitter.
func (r *Recognizer) Events() *speech.Emitter { return r.events }

// Start begins a run.
func (r *Recognizer) Start(session uint64, opts speech.Options) error {
	r.mu.Lock()
	r.starts++
	if r.startErr != nil {
		err := r.startErr
		r.mu.Unlock()
		return err
	}
	r.session = session
	r.active = true
	r.lastOpts = opts
	r.mu.Unlock()

	r.events.Emit(speech.Event{Type: speech.EventStart, Session: session})
	return nil
}

// Stop ends the current run.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	r.stops++
	if !r.active || !r.endOnStop {
		r.mu.Unlock()
		return nil
	}
	r.active = false
	session := r.session
	r.mu.Unlock()

	r.events.Emit(speech.Event{Type: speech.EventEnd, Session: session})
	return nil
}

// Abort discards the current run.
func (r *Recognizer) Abort() error {
	r.mu.Lock()
	r.aborts++
	if r.abortErr != nil {
		err := r.abortErr
		r.mu.Unlock()
		return err
	}
	if !r.active {
		r.mu.Unlock()
		return nil
	}
	r.active = false
	session := r.session
	if !r.endOnAbort {
		r.pending = append(r.pending, session)
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	r.events.Emit(speech.Event{Type: speech.EventEnd, Session: session})
	return nil
}

// Interim emits an interim transcript for the current run.
func (r *Recognizer) Interim(text string) {
	r.emit(speech.Event{Type: speech.EventInterim, Result: speech.Result{Transcript: text, Timestamp: time.Now()}})
}

// Final emits a final result for the current run.
func (r *Recognizer) Final(text string, confidence float64) {
	r.emit(speech.Event{Type: speech.EventResult, Result: speech.Result{
		Transcript: text,
		Confidence: confidence,
		IsFinal:    true,
		Timestamp:  time.Now(),
	}})
}

// End ends the current run.
func (r *Recognizer) End() {
	r.mu.Lock()
	r.active = false
	r.mu.Unlock()
	r.emit(speech.Event{Type: speech.EventEnd})
}

// Fail emits a platform error for the current run.
func (r *Recognizer) Fail(code, message string) {
	r.emit(speech.Event{Type: speech.EventError, Code: code, Message: message})
}

// Send emits ev as is, including its Session.
func (r *Recognizer) Send(ev speech.Event) {
	r.events.Emit(ev)
}

// FlushEnds emits the withheld end events of aborted runs.
func (r *Recognizer) FlushEnds() {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()
	for _, s := range pending {
		r.events.Emit(speech.Event{Type: speech.EventEnd, Session: s})
	}
}

func (r *Recognizer) emit(ev speech.Event) {
	r.mu.Lock()
	ev.Session = r.session
	r.mu.Unlock()
	r.events.Emit(ev)
}

// SetStartError makes Start fail with err.
func (r *Recognizer) SetStartError(err error) { r.mu.Lock(); r.startErr = err; r.mu.Unlock() }

// SetAbortError makes Abort fail with err.
func (r *Recognizer) SetAbortError(err error) { r.mu.Lock(); r.abortErr = err; r.mu.Unlock() }

// SetEndOnAbort controls whether Abort emits end immediately. When false the
// end is held until FlushEnds.
func (r *Recognizer) SetEndOnAbort(v bool) { r.mu.Lock(); r.endOnAbort = v; r.mu.Unlock() }

// SetEndOnStop controls whether Stop emits end.
func (r *Recognizer) SetEndOnStop(v bool) { r.mu.Lock(); r.endOnStop = v; r.mu.Unlock() }

// Session returns the token of the latest run.
func (r *Recognizer) Session() uint64 { r.mu.Lock(); defer r.mu.Unlock(); return r.session }

// Active reports whether a run is in progress.
func (r *Recognizer) Active() bool { r.mu.Lock(); defer r.mu.Unlock(); return r.active }

// Starts returns the number of Start calls.
func (r *Recognizer) Starts() int { r.mu.Lock(); defer r.mu.Unlock(); return r.starts }

// Stops returns the number of Stop calls.
func (r *Recognizer) Stops() int { r.mu.Lock(); defer r.mu.Unlock(); return r.stops }

// Aborts returns the number of Abort calls.
func (r *Recognizer) Aborts() int { r.mu.Lock(); defer r.mu.Unlock(); return r.aborts }

// LastOptions returns the options of the latest run.
func (r *Recognizer) LastOptions() speech.Options { r.mu.Lock(); defer r.mu.Unlock(); return r.lastOpts }

var _ speech.Recognizer = (*Recognizer)(nil)
