package webhook

import "sync/atomic"

// State is the activation state of a one-shot component.
type State int32

const (
	NotStarted State = iota
	Started
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Started:
		return "started"
	default:
		return "unknown"
	}
}

// Lifecycle guards a single activation.
type Lifecycle struct {
	state atomic.Int32
}

// Begin moves NotStarted to Started and reports whether this call did so.
func (l *Lifecycle) Begin() bool {
	return l.state.CompareAndSwap(int32(NotStarted), int32(Started))
}

// State returns the current state.
func (l *Lifecycle) State() State {
	return State(l.state.Load())
}
