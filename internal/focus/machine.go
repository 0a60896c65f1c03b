// Package focus implements the session state machine that decides which
// engine operations are legal at any moment.
package focus

import (
	"slices"
	"strings"
	"sync"

	"github.com/Iron-Ham/driftguard/internal/errors"
)

// State is a session focus state.
type State string

const (
	StateIdle       State = "IDLE"
	StatePlanning   State = "PLANNING"
	StateExecuting  State = "EXECUTING"
	StateValidating State = "VALIDATING" // reserved; no action moves here yet
	StatePanic      State = "PANIC"
)

// States returns every state in declaration order.
func States() []State {
	return []State{StateIdle, StatePlanning, StateExecuting, StateValidating, StatePanic}
}

// ParseState returns the State for s, case-insensitively.
func ParseState(s string) (State, bool) {
	want := State(strings.ToUpper(strings.TrimSpace(s)))
	if slices.Contains(States(), want) {
		return want, true
	}
	return "", false
}

// Action names a guarded engine operation.
type Action string

const (
	ActionProposeTask   Action = "propose task"
	ActionBeginStep     Action = "begin step"
	ActionReportIntent  Action = "report intent"
	ActionCheckpoint    Action = "checkpoint"
	ActionVerify        Action = "verify"
	ActionExplainChange Action = "explain change"
	ActionDelegate      Action = "delegate"
	ActionPanic         Action = "panic"
)

// Actions returns every guarded action.
func Actions() []Action {
	return []Action{
		ActionProposeTask, ActionBeginStep, ActionReportIntent, ActionCheckpoint,
		ActionVerify, ActionExplainChange, ActionDelegate, ActionPanic,
	}
}

// allowedFrom is the transition table. ActionPanic is absent: it is legal
// from every state.
var allowedFrom = map[Action][]State{
	ActionProposeTask:   {StateIdle},
	ActionBeginStep:     {StatePlanning, StateIdle},
	ActionReportIntent:  {StatePlanning, StateIdle},
	ActionCheckpoint:    {StateExecuting},
	ActionVerify:        {StateExecuting},
	ActionExplainChange: {StateExecuting},
	ActionDelegate:      {StateExecuting},
}

// AllowedFrom returns the states in which action is legal.
func AllowedFrom(action Action) []State {
	if action == ActionPanic {
		return States()
	}
	return slices.Clone(allowedFrom[action])
}

// Machine holds the current focus state. It has its own lock so a panic
// can land while an engine operation is still running.
type Machine struct {
	mu    sync.Mutex
	state State
}

// NewMachine returns a Machine in IDLE.
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Validate returns a *errors.StateTransitionError when action is not legal
// from the current state.
func (m *Machine) Validate(action Action) error {
	m.mu.Lock()
	current := m.state
	m.mu.Unlock()

	if action == ActionPanic {
		return nil
	}

	allowed, ok := allowedFrom[action]
	if !ok {
		return errors.NewValidationError("unknown action").WithField("action").WithValue(string(action))
	}
	if slices.Contains(allowed, current) {
		return nil
	}

	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return errors.NewStateTransitionError(string(action), string(current), names)
}

// Transition moves to next and returns the previous state. PANIC is sticky:
// once there, Transition leaves the state alone and reports ok=false.
func (m *Machine) Transition(next State) (prev State, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev = m.state
	if prev == StatePanic {
		return prev, false
	}
	m.state = next
	return prev, true
}

// Panic forces PANIC from any state and returns the previous state.
func (m *Machine) Panic() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state
	m.state = StatePanic
	return prev
}

// Reset returns the machine to IDLE, clearing PANIC.
func (m *Machine) Reset() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state
	m.state = StateIdle
	return prev
}

// Restore sets the state loaded from a snapshot, including PANIC.
func (m *Machine) Restore(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}
