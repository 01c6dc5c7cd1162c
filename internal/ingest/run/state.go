package run

import (
	"fmt"
	"sync"
)

// State represents the run lifecycle state.
type State int

const (
	// StateIdle indicates no run is in progress.
	StateIdle State = iota
	// StateRunning indicates a run is in progress.
	StateRunning
	// StateFailed indicates the last run failed.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	StateIdle:    {StateRunning},
	StateRunning: {StateIdle, StateFailed},
	StateFailed:  {StateRunning},
}

// StateChangeListener is called when state changes.
type StateChangeListener func(from, to State)

// StateMachine manages run state transitions.
type StateMachine struct {
	mu        sync.RWMutex
	state     State
	listeners []StateChangeListener
}

// NewStateMachine creates a new state machine starting in StateIdle.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateIdle}
}

// State returns the current state.
func (sm *StateMachine) State() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// Transition attempts to transition to the target state.
// Returns an error if the transition is not valid.
func (sm *StateMachine) Transition(target State) error {
	sm.mu.Lock()

	if !sm.canTransition(target) {
		from := sm.state
		sm.mu.Unlock()
		return fmt.Errorf("invalid state transition from %s to %s", from, target)
	}

	from := sm.state
	sm.state = target

	listeners := make([]StateChangeListener, len(sm.listeners))
	copy(listeners, sm.listeners)
	sm.mu.Unlock()

	for _, listener := range listeners {
		listener(from, target)
	}
	return nil
}

// canTransition checks if a transition to target is valid.
// Must be called with lock held.
func (sm *StateMachine) canTransition(target State) bool {
	for _, s := range validTransitions[sm.state] {
		if s == target {
			return true
		}
	}
	return false
}

// AddListener adds a state change listener.
func (sm *StateMachine) AddListener(listener StateChangeListener) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, listener)
}

// IsRunning returns true if a run is in progress.
func (sm *StateMachine) IsRunning() bool {
	return sm.State() == StateRunning
}
