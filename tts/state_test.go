package tts

import "testing"

func TestStateTypeString(t *testing.T) {
	tests := []struct {
		state    StateType
		expected string
	}{
		{StateIdle, "idle"},
		{StateLoading, "loading"},
		{StatePlaying, "playing"},
		{StateBlocked, "blocked"},
		{StateError, "error"},
		{StateType(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := tt.state.String(); result != tt.expected {
				t.Errorf("StateType.String() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestStateIsActive(t *testing.T) {
	tests := []struct {
		state    StateType
		expected bool
	}{
		{StateIdle, false},
		{StateLoading, true},
		{StatePlaying, true},
		{StateBlocked, false},
		{StateError, false},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := (State{Current: tt.state}).IsActive(); got != tt.expected {
				t.Errorf("IsActive() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestStateMachineTransitions(t *testing.T) {
	tests := []struct {
		name  string
		path  []StateType
		valid bool
	}{
		{"play to completion", []StateType{StateLoading, StatePlaying, StateIdle}, true},
		{"superseded while loading", []StateType{StateLoading, StateLoading, StatePlaying}, true},
		{"autoplay blocked then manual", []StateType{StateLoading, StateBlocked, StateLoading, StatePlaying}, true},
		{"error then retry", []StateType{StateLoading, StateError, StateLoading}, true},
		{"idle cannot play directly", []StateType{StatePlaying}, false},
		{"playing cannot reload", []StateType{StateLoading, StatePlaying, StateLoading}, false},
		{"idle cannot block", []StateType{StateBlocked}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateMachine()
			ok := true
			for _, to := range tt.path {
				if !sm.Transition(to) {
					ok = false
					break
				}
			}
			if ok != tt.valid {
				t.Errorf("path %v valid = %v, want %v", tt.path, ok, tt.valid)
			}
		})
	}
}

func TestStateMachineCallbacks(t *testing.T) {
	sm := NewStateMachine()
	var order []string
	sm.OnExit(StateIdle, func() { order = append(order, "exit idle") })
	sm.OnEnter(StateLoading, func() { order = append(order, "enter loading") })

	sm.Transition(StateLoading)
	if len(order) != 2 || order[0] != "exit idle" || order[1] != "enter loading" {
		t.Errorf("callback order = %v", order)
	}

	sm.Transition(StatePlaying)
	sm.Force(StateIdle)
	if sm.Current() != StateIdle {
		t.Errorf("Current() = %v after Force, want idle", sm.Current())
	}
}
