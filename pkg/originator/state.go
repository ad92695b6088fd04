package originator

import (
	"log/slog"
	"sync/atomic"
)

// RunState is the engine's three-value run state.
type RunState int32

const (
	// StateInitial means the engine is constructed and awaiting the first
	// start command.
	StateInitial RunState = iota
	// StateOriginating means the burst loop is actively admitting sessions.
	StateOriginating
	// StateStopped is terminal for the current run; a new Start re-enters
	// StateOriginating through the burst loop.
	StateStopped
)

func (s RunState) String() string {
	switch s {
	case StateInitial:
		return "INITIAL"
	case StateOriginating:
		return "ORIGINATING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// stateMachine guards run-state transitions. Change is idempotent: moving to
// the current state is a silent no-op. Is and Current are safe from any
// goroutine.
type stateMachine struct {
	v   atomic.Int32
	log *slog.Logger
}

func newStateMachine(log *slog.Logger) *stateMachine {
	m := &stateMachine{log: log}
	m.v.Store(int32(StateInitial))
	return m
}

func (m *stateMachine) Current() RunState {
	return RunState(m.v.Load())
}

func (m *stateMachine) Is(s RunState) bool {
	return m.Current() == s
}

// Change moves to the target state and logs the transition. A transition to
// the current state does nothing.
func (m *stateMachine) Change(target RunState) {
	old := RunState(m.v.Swap(int32(target)))
	if old == target {
		return
	}
	m.log.Info("state change", "from", old.String(), "to", target.String())
}
