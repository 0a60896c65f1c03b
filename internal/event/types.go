// Package event defines the events the engine publishes after each
// operation so that metrics, logging and the watch dashboard can follow the
// session without depending on the engine.
package event

import "time"

// Event type identifiers.
const (
	TypeStateChanged     = "state.changed"
	TypeTaskProposed     = "task.proposed"
	TypeTaskDelegated    = "task.delegated"
	TypeTaskCheckpointed = "task.checkpointed"
	TypeTaskVerified     = "task.verified"
	TypeScopeClaimed     = "scope.claimed"
	TypeScopeConflict    = "scope.conflict"
	TypeScopeReleased    = "scope.released"
	TypeIntegrityChecked = "integrity.checked"
	TypeRiskScored       = "risk.scored"
	TypeSessionPanic     = "session.panic"
	TypeSessionReset     = "session.reset"
)

// Event is the interface that all events implement.
type Event interface {
	// EventType returns a "category.action" identifier.
	EventType() string
	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides the common fields. Embed it in concrete event types.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Session Events
// -----------------------------------------------------------------------------

// StateChangedEvent is emitted when the focus state moves.
type StateChangedEvent struct {
	baseEvent
	SessionID string
	Action    string // operation that caused the move
	From      string
	To        string
}

// NewStateChangedEvent creates a StateChangedEvent.
func NewStateChangedEvent(sessionID, action, from, to string) StateChangedEvent {
	return StateChangedEvent{
		baseEvent: newBaseEvent(TypeStateChanged),
		SessionID: sessionID,
		Action:    action,
		From:      from,
		To:        to,
	}
}

// PanicEvent is emitted when the session is forced into PANIC.
type PanicEvent struct {
	baseEvent
	SessionID string
	FromState string
	Reason    string
}

// NewPanicEvent creates a PanicEvent.
func NewPanicEvent(sessionID, fromState, reason string) PanicEvent {
	return PanicEvent{
		baseEvent: newBaseEvent(TypeSessionPanic),
		SessionID: sessionID,
		FromState: fromState,
		Reason:    reason,
	}
}

// SessionResetEvent is emitted when a fresh session replaces the old one.
type SessionResetEvent struct {
	baseEvent
	PreviousSessionID string
	SessionID         string
	ReleasedClaims    int
}

// NewSessionResetEvent creates a SessionResetEvent.
func NewSessionResetEvent(previousID, sessionID string, released int) SessionResetEvent {
	return SessionResetEvent{
		baseEvent:         newBaseEvent(TypeSessionReset),
		PreviousSessionID: previousID,
		SessionID:         sessionID,
		ReleasedClaims:    released,
	}
}

// -----------------------------------------------------------------------------
// Task Events
// -----------------------------------------------------------------------------

// TaskProposedEvent is emitted when a task becomes active.
type TaskProposedEvent struct {
	baseEvent
	TaskID     string
	Title      string
	Strictness int
	Items      int
}

// NewTaskProposedEvent creates a TaskProposedEvent.
func NewTaskProposedEvent(taskID, title string, strictness, items int) TaskProposedEvent {
	return TaskProposedEvent{
		baseEvent:  newBaseEvent(TypeTaskProposed),
		TaskID:     taskID,
		Title:      title,
		Strictness: strictness,
		Items:      items,
	}
}

// TaskDelegatedEvent is emitted when a child task is created.
type TaskDelegatedEvent struct {
	baseEvent
	ParentTaskID string
	ChildTaskID  string
	Scopes       []string
}

// NewTaskDelegatedEvent creates a TaskDelegatedEvent.
func NewTaskDelegatedEvent(parentID, childID string, scopes []string) TaskDelegatedEvent {
	return TaskDelegatedEvent{
		baseEvent:    newBaseEvent(TypeTaskDelegated),
		ParentTaskID: parentID,
		ChildTaskID:  childID,
		Scopes:       scopes,
	}
}

// TaskCheckpointedEvent is emitted after a checkpoint commits.
type TaskCheckpointedEvent struct {
	baseEvent
	TaskID         string
	CompletedItems int
	TotalItems     int
	AuditWritten   bool
	TaskCompleted  bool
}

// NewTaskCheckpointedEvent creates a TaskCheckpointedEvent.
func NewTaskCheckpointedEvent(taskID string, completed, total int, auditWritten, taskCompleted bool) TaskCheckpointedEvent {
	return TaskCheckpointedEvent{
		baseEvent:      newBaseEvent(TypeTaskCheckpointed),
		TaskID:         taskID,
		CompletedItems: completed,
		TotalItems:     total,
		AuditWritten:   auditWritten,
		TaskCompleted:  taskCompleted,
	}
}

// Ratio returns the completed fraction, or 0 for an empty checklist.
func (e TaskCheckpointedEvent) Ratio() float64 {
	if e.TotalItems == 0 {
		return 0
	}
	return float64(e.CompletedItems) / float64(e.TotalItems)
}

// TaskVerifiedEvent is emitted after a verification run.
type TaskVerifiedEvent struct {
	baseEvent
	TaskID      string
	Success     bool
	TimedOut    bool
	Placeholder bool
	Duration    time.Duration
}

// NewTaskVerifiedEvent creates a TaskVerifiedEvent.
func NewTaskVerifiedEvent(taskID string, success, timedOut, placeholder bool, duration time.Duration) TaskVerifiedEvent {
	return TaskVerifiedEvent{
		baseEvent:   newBaseEvent(TypeTaskVerified),
		TaskID:      taskID,
		Success:     success,
		TimedOut:    timedOut,
		Placeholder: placeholder,
		Duration:    duration,
	}
}

// -----------------------------------------------------------------------------
// Scope Events
// -----------------------------------------------------------------------------

// ScopeClaimedEvent is emitted when a claim request is granted.
type ScopeClaimedEvent struct {
	baseEvent
	TaskID    string
	Patterns  []string
	Exclusive bool
}

// NewScopeClaimedEvent creates a ScopeClaimedEvent.
func NewScopeClaimedEvent(taskID string, patterns []string, exclusive bool) ScopeClaimedEvent {
	return ScopeClaimedEvent{
		baseEvent: newBaseEvent(TypeScopeClaimed),
		TaskID:    taskID,
		Patterns:  patterns,
		Exclusive: exclusive,
	}
}

// ScopeConflictEvent is emitted when a claim request is rejected.
type ScopeConflictEvent struct {
	baseEvent
	TaskID    string
	Conflicts []string
}

// NewScopeConflictEvent creates a ScopeConflictEvent.
func NewScopeConflictEvent(taskID string, conflicts []string) ScopeConflictEvent {
	return ScopeConflictEvent{
		baseEvent: newBaseEvent(TypeScopeConflict),
		TaskID:    taskID,
		Conflicts: conflicts,
	}
}

// ScopeReleasedEvent is emitted when a task's claims are dropped.
type ScopeReleasedEvent struct {
	baseEvent
	TaskID string
	Count  int
}

// NewScopeReleasedEvent creates a ScopeReleasedEvent.
func NewScopeReleasedEvent(taskID string, count int) ScopeReleasedEvent {
	return ScopeReleasedEvent{
		baseEvent: newBaseEvent(TypeScopeReleased),
		TaskID:    taskID,
		Count:     count,
	}
}

// -----------------------------------------------------------------------------
// Monitoring Events
// -----------------------------------------------------------------------------

// IntegrityCheckedEvent is emitted after every health check.
type IntegrityCheckedEvent struct {
	baseEvent
	Status   string // CLEAN, DIRTY, NO_CLAIMS
	Findings int
}

// NewIntegrityCheckedEvent creates an IntegrityCheckedEvent.
func NewIntegrityCheckedEvent(status string, findings int) IntegrityCheckedEvent {
	return IntegrityCheckedEvent{
		baseEvent: newBaseEvent(TypeIntegrityChecked),
		Status:    status,
		Findings:  findings,
	}
}

// RiskScoredEvent is emitted after a risk calculation.
type RiskScoredEvent struct {
	baseEvent
	Path  string
	Score int
	Class string
}

// NewRiskScoredEvent creates a RiskScoredEvent.
func NewRiskScoredEvent(path string, score int, class string) RiskScoredEvent {
	return RiskScoredEvent{
		baseEvent: newBaseEvent(TypeRiskScored),
		Path:      path,
		Score:     score,
		Class:     class,
	}
}
