package devserver

import "sync/atomic"

// State is the lifecycle of a dev server.
type State int32

const (
	StateStarting State = iota
	StateWatching
	StateRebuilding
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateWatching:
		return "watching"
	case StateRebuilding:
		return "rebuilding"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type stateMachine struct {
	v atomic.Int32
}

func (m *stateMachine) load() State {
	return State(m.v.Load())
}

func (m *stateMachine) set(s State) {
	m.v.Store(int32(s))
}

// transition moves from one state to another, reporting whether the current
// state was from.
func (m *stateMachine) transition(from, to State) bool {
	return m.v.CompareAndSwap(int32(from), int32(to))
}
