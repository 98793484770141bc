package speech

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
)

func TestEmitterOrderAndOff(t *testing.T) {
	var e Emitter
	var got []string

	e.On(EventInterim, func(ev Event) { got = append(got, "a:"+ev.Result.Transcript) })
	id := e.On(EventInterim, func(ev Event) { got = append(got, "b:"+ev.Result.Transcript) })
	e.On(EventEnd, func(Event) { got = append(got, "end") })

	e.Emit(Event{Type: EventInterim, Result: Result{Transcript: "hi"}})
	e.Off(EventInterim, id)
	e.Emit(Event{Type: EventInterim, Result: Result{Transcript: "yo"}})
	e.Emit(Event{Type: EventEnd})

	want := []string{"a:hi", "b:hi", "a:yo", "end"}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if n := e.Count(EventInterim); n != 1 {
		t.Errorf("Count(interim) = %d, want 1", n)
	}

	e.Off(EventInterim, 999)
	e.Clear()
	if n := e.Count(EventEnd); n != 0 {
		t.Errorf("Count(end) after Clear = %d, want 0", n)
	}
}

func TestEmitterRecoversPanics(t *testing.T) {
	e := NewEmitter(log.New(io.Discard))
	called := false
	e.On(EventStart, func(Event) { panic("boom") })
	e.On(EventStart, func(Event) { called = true })

	e.Emit(Event{Type: EventStart})
	if !called {
		t.Error("listener after a panicking one was not called")
	}
}

func TestEmitterListenerMayUnsubscribe(t *testing.T) {
	var e Emitter
	var id ListenerID
	calls := 0
	id = e.On(EventResult, func(Event) {
		calls++
		e.Off(EventResult, id)
	})
	e.Emit(Event{Type: EventResult})
	e.Emit(Event{Type: EventResult})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
