package tts

// StateType represents the playback state of an audio session.
type StateType int

const (
	// StateIdle indicates nothing is loading or playing.
	StateIdle StateType = iota
	// StateLoading indicates audio is being fetched or decoded.
	StateLoading
	// StatePlaying indicates audio is audible.
	StatePlaying
	// StateBlocked indicates an autoplay attempt was refused and manual
	// playback is required.
	StateBlocked
	// StateError indicates the last request failed terminally.
	StateError
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StateBlocked:
		return "blocked"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// State is a snapshot of an audio session.
type State struct {
	Current         StateType
	Text            string // utterance being loaded or played
	Speed           Speed
	RetryCount      int
	AutoplayBlocked bool
	LastError       error
}

// IsActive returns true while audio is loading or playing.
func (s State) IsActive() bool {
	return s.Current == StateLoading || s.Current == StatePlaying
}

// StateMachine manages state transitions for an audio session.
type StateMachine struct {
	current     StateType
	transitions map[StateType][]StateType
	onEnter     map[StateType]func()
	onExit      map[StateType]func()
}

// NewStateMachine creates a new state machine with valid transitions.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[StateType][]StateType{
			StateIdle: {StateLoading},
			// Loading -> Loading is a newer request superseding the current one.
			StateLoading: {StateLoading, StatePlaying, StateIdle, StateBlocked, StateError},
			StatePlaying: {StateIdle, StateBlocked, StateError},
			StateBlocked: {StateLoading, StateIdle},
			StateError:   {StateLoading, StateIdle},
		},
		onEnter: make(map[StateType]func()),
		onExit:  make(map[StateType]func()),
	}
}

// CanTransition reports whether moving to the state is legal.
func (sm *StateMachine) CanTransition(to StateType) bool {
	for _, state := range sm.transitions[sm.current] {
		if state == to {
			return true
		}
	}
	return false
}

// Transition attempts to transition to the specified state.
func (sm *StateMachine) Transition(to StateType) bool {
	if !sm.CanTransition(to) {
		return false
	}
	sm.move(to)
	return true
}

// Force moves to the state without checking the transition table. Used by
// Reset, which is legal from anywhere.
func (sm *StateMachine) Force(to StateType) {
	sm.move(to)
}

func (sm *StateMachine) move(to StateType) {
	if exitFn, ok := sm.onExit[sm.current]; ok && exitFn != nil {
		exitFn()
	}

	sm.current = to

	if enterFn, ok := sm.onEnter[to]; ok && enterFn != nil {
		enterFn()
	}
}

// Current returns the current state.
func (sm *StateMachine) Current() StateType {
	return sm.current
}

// OnEnter registers a callback for entering a state.
func (sm *StateMachine) OnEnter(state StateType, fn func()) {
	sm.onEnter[state] = fn
}

// OnExit registers a callback for exiting a state.
func (sm *StateMachine) OnExit(state StateType, fn func()) {
	sm.onExit[state] = fn
}
