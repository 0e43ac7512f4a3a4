package engine

import (
	"fmt"
	"sync"
)

// State represents the runner lifecycle state.
type State int

const (
	// StateCreated indicates the runner has been built but not started.
	StateCreated State = iota
	// StateStarting indicates Start has been invoked and the source is
	// initializing.
	StateStarting
	// StateRunning indicates the source is producing into the output channel.
	StateRunning
	// StateStopping indicates a stop has been requested.
	StateStopping
	// StateStopped indicates the runner has stopped. Terminal.
	StateStopped
	// StateFailed indicates startup or shutdown hit a fatal error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// validTransitions defines allowed lifecycle transitions. StateStopped is
// terminal: a runner is never restarted, a fresh one is built instead.
var validTransitions = map[State][]State{
	StateCreated:  {StateStarting},
	StateStarting: {StateRunning, StateFailed},
	StateRunning:  {StateStopping, StateStopped, StateFailed},
	StateStopping: {StateStopped, StateFailed},
	StateFailed:   {StateStopping, StateStopped},
	StateStopped:  {},
}

type stateMachine struct {
	mu    sync.RWMutex
	state State
}

func newStateMachine() *stateMachine {
	return &stateMachine{state: StateCreated}
}

func (sm *stateMachine) State() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

func (sm *stateMachine) Is(s State) bool {
	return sm.State() == s
}

// Transition attempts to move to the target state and fails when the
// transition is not in the table.
func (sm *stateMachine) Transition(target State) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, s := range validTransitions[sm.state] {
		if s == target {
			sm.state = target
			return nil
		}
	}
	return fmt.Errorf("invalid state transition from %s to %s", sm.state, target)
}
