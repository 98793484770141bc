// Package speech turns recognizer events into a discrete session state
// machine: idle, listening, processing and confirming.
package speech

// Phase is the recognition session phase.
type Phase int

// Session phases.
const (
	PhaseIdle Phase = iota
	PhaseListening
	PhaseProcessing
	PhaseConfirming
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseListening:
		return "listening"
	case PhaseProcessing:
		return "processing"
	case PhaseConfirming:
		return "confirming"
	default:
		return "unknown"
	}
}

// transitions lists the legal phase changes. Confirming never goes back to
// listening without passing through idle.
var transitions = map[Phase][]Phase{
	PhaseIdle:       {PhaseListening},
	PhaseListening:  {PhaseProcessing, PhaseConfirming, PhaseIdle},
	PhaseProcessing: {PhaseConfirming, PhaseIdle},
	PhaseConfirming: {PhaseIdle},
}

// CanTransition reports whether from -> to is a legal phase change.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}
