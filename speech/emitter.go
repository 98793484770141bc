package speech

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// EventType names a recognizer event.
type EventType string

// Recognizer events.
const (
	EventStart   EventType = "start"
	EventResult  EventType = "result"
	EventInterim EventType = "interimResult"
	EventEnd     EventType = "end"
	EventError   EventType = "error"
)

// Result is one recognition hypothesis.
type Result struct {
	Transcript string
	Confidence float64
	IsFinal    bool
	Timestamp  time.Time
}

// Event is emitted by a recognizer. Session is the token passed to
// Recognizer.Start for the run that produced it.
type Event struct {
	Type    EventType
	Session uint64
	Result  Result
	Code    string // error code for EventError
	Message string // error message for EventError
}

// Listener handles an event.
type Listener func(Event)

// ListenerID identifies a registration for Off.
type ListenerID uint64

type registration struct {
	id ListenerID
	fn Listener
}

// Emitter dispatches typed events to registered listeners in registration
// order. The zero value is ready to use.
type Emitter struct {
	mu        sync.Mutex
	next      ListenerID
	listeners map[EventType][]registration
	logger    *log.Logger
}

// NewEmitter creates an emitter that logs listener panics to logger.
func NewEmitter(logger *log.Logger) *Emitter {
	return &Emitter{logger: logger}
}

// On registers fn for events of type t.
func (e *Emitter) On(t EventType, fn Listener) ListenerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[EventType][]registration)
	}
	e.next++
	e.listeners[t] = append(e.listeners[t], registration{id: e.next, fn: fn})
	return e.next
}

// Off removes a registration. Unknown ids are ignored.
func (e *Emitter) Off(t EventType, id ListenerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	regs := e.listeners[t]
	for i, r := range regs {
		if r.id == id {
			e.listeners[t] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// Count returns the number of listeners for t.
func (e *Emitter) Count(t EventType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[t])
}

// Clear removes every listener.
func (e *Emitter) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = nil
}

// Emit delivers ev to its listeners outside the lock. A panicking listener
// is logged and does not stop delivery to the others.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	regs := append([]registration(nil), e.listeners[ev.Type]...)
	e.mu.Unlock()

	for _, r := range regs {
		e.call(r.fn, ev)
	}
}

func (e *Emitter) call(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger := e.logger
			if logger == nil {
				logger = log.Default()
			}
			logger.Error("speech listener panicked", "event", ev.Type, "panic", r)
		}
	}()
	fn(ev)
}
