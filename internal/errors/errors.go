// Package errors provides centralized error definitions and error handling utilities
// for driftguard. It defines the precondition errors raised by the coordination
// engine, semantic error types, error constructors with context wrapping, and
// error classification helpers.
//
// # Error Types
//
// Precondition errors are raised when an operation is attempted out of order:
//   - StateTransitionError: the action is not legal from the current focus state
//   - IntentMissingError: checkpoint attempted before an intent was filed
//   - NoActiveTaskError: the operation needs an active task and there is none
//
// Domain errors represent failures in collaborators:
//   - GitError: errors from the git adapter (notes, history, listings)
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//
// Scope conflicts are deliberately absent: a rejected claim is returned as
// ordinary data so the caller can negotiate or retry.
//
// # Usage
//
//	err := errors.NewStateTransitionError("checkpoint", "IDLE", []string{"EXECUTING"})
//
//	var stErr *errors.StateTransitionError
//	if errors.As(err, &stErr) { ... }
//
//	if errors.IsPrecondition(err) { ... }
//	hint := errors.Remediation(err)
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is   = errors.Is
	As   = errors.As
	New  = errors.New
	Join = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Engine precondition sentinels. The typed errors below match these through Is.
var (
	// ErrInvalidTransition indicates an action attempted from a disallowed state.
	ErrInvalidTransition = New("invalid state transition")
	// ErrIntentMissing indicates a checkpoint attempted before an intent was filed.
	ErrIntentMissing = New("intent not filed")
	// ErrNoActiveTask indicates an operation that requires an active task.
	ErrNoActiveTask = New("no active task")
)

// Task and scope sentinels.
var (
	// ErrTaskNotFound indicates that a task id does not key a known task.
	ErrTaskNotFound = New("task not found")
	// ErrDelegationOutOfScope indicates a child scope not covered by the parent's claims.
	ErrDelegationOutOfScope = New("delegated scope exceeds parent claims")
)

// Git-related sentinel errors
var (
	// ErrNotGitRepository indicates that the directory is not a git repository.
	ErrNotGitRepository = New("not a git repository")
	// ErrNoHead indicates that the repository has no commits yet.
	ErrNoHead = New("repository has no HEAD revision")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// DriftguardError is the base interface for all driftguard errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type DriftguardError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Precondition Errors
// -----------------------------------------------------------------------------

// StateTransitionError reports an action attempted from a focus state outside
// the action's allowed set. It is always surfaced to the caller verbatim.
//
// Example:
//
//	err := errors.NewStateTransitionError("checkpoint", "IDLE", []string{"EXECUTING"})
//	fmt.Println(err) // "cannot checkpoint from state IDLE (allowed: EXECUTING)"
type StateTransitionError struct {
	baseError
	Action            string
	FromState         string
	AllowedFromStates []string
}

// NewStateTransitionError creates a new StateTransitionError.
func NewStateTransitionError(action, fromState string, allowed []string) *StateTransitionError {
	return &StateTransitionError{
		baseError: baseError{
			message:    "invalid state transition",
			severity:   SeverityWarning,
			userFacing: true,
		},
		Action:            action,
		FromState:         fromState,
		AllowedFromStates: append([]string(nil), allowed...),
	}
}

// Error returns the formatted error message.
func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s from state %s (allowed: %s)",
		e.Action, e.FromState, strings.Join(e.AllowedFromStates, ", "))
}

// Is checks if this error matches the target.
func (e *StateTransitionError) Is(target error) bool {
	if _, ok := target.(*StateTransitionError); ok {
		return true
	}
	return target == ErrInvalidTransition
}

// IntentMissingError reports a checkpoint attempted before an intent was filed.
type IntentMissingError struct {
	baseError
	TaskID string
}

// NewIntentMissingError creates a new IntentMissingError for the given task.
func NewIntentMissingError(taskID string) *IntentMissingError {
	return &IntentMissingError{
		baseError: baseError{
			message:    "checkpoint requires a filed intent",
			severity:   SeverityWarning,
			userFacing: true,
		},
		TaskID: taskID,
	}
}

// Error returns the formatted error message.
func (e *IntentMissingError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("intent missing [task=%s]: %s", e.TaskID, e.message)
	}
	return fmt.Sprintf("intent missing: %s", e.message)
}

// Is checks if this error matches the target.
func (e *IntentMissingError) Is(target error) bool {
	if _, ok := target.(*IntentMissingError); ok {
		return true
	}
	return target == ErrIntentMissing
}

// NoActiveTaskError reports an operation that needs an active task context.
type NoActiveTaskError struct {
	baseError
	Operation string
}

// NewNoActiveTaskError creates a new NoActiveTaskError for the named operation.
func NewNoActiveTaskError(operation string) *NoActiveTaskError {
	return &NoActiveTaskError{
		baseError: baseError{
			message:    "an active task is required",
			severity:   SeverityWarning,
			userFacing: true,
		},
		Operation: operation,
	}
}

// Error returns the formatted error message.
func (e *NoActiveTaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.Operation, e.message)
}

// Is checks if this error matches the target.
func (e *NoActiveTaskError) Is(target error) bool {
	if _, ok := target.(*NoActiveTaskError); ok {
		return true
	}
	return target == ErrNoActiveTask
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// GitError represents errors related to git operations.
//
// Example:
//
//	err := errors.NewGitError("failed to write note", baseErr)
//	err = err.WithRepository("/path/to/repo").WithGitOutput(out)
type GitError struct {
	baseError
	Repository string
	Revision   string
	GitOutput  string // Captured git command output
}

// NewGitError creates a new GitError.
func NewGitError(message string, cause error) *GitError {
	return &GitError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithRepository adds a repository path to the error context.
func (e *GitError) WithRepository(path string) *GitError {
	e.Repository = path
	return e
}

// WithRevision adds a revision id to the error context.
func (e *GitError) WithRevision(rev string) *GitError {
	e.Revision = rev
	return e
}

// WithGitOutput adds git command output to the error context.
func (e *GitError) WithGitOutput(output string) *GitError {
	e.GitOutput = strings.TrimSpace(output)
	return e
}

// Error returns the formatted error message.
func (e *GitError) Error() string {
	var parts []string
	if e.Repository != "" {
		parts = append(parts, fmt.Sprintf("repo=%s", e.Repository))
	}
	if e.Revision != "" {
		parts = append(parts, fmt.Sprintf("rev=%s", e.Revision))
	}

	prefix := "git error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("git error [%s]", strings.Join(parts, ", "))
	}

	msg := e.message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if e.GitOutput != "" {
		msg = fmt.Sprintf("%s\ngit output: %s", msg, e.GitOutput)
	}

	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Is checks if this error matches the target.
func (e *GitError) Is(target error) bool {
	if _, ok := target.(*GitError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("task", "task-1a2b3c4d")
//	fmt.Println(err) // "task 'task-1a2b3c4d' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if e.ResourceType == "task" && target == ErrTaskNotFound {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("strictness must be between 1 and 5")
//	err = err.WithField("strictness").WithValue(9)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. A timeout anywhere in the chain counts, even
// when wrapped by an error that is not itself retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, ErrTimeout) {
		return true
	}

	var dgErr DriftguardError
	if As(err, &dgErr) {
		return dgErr.IsRetryable()
	}
	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var dgErr DriftguardError
	if As(err, &dgErr) {
		return dgErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement DriftguardError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var dgErr DriftguardError
	if As(err, &dgErr) {
		return dgErr.Severity()
	}
	return SeverityError
}

// IsPrecondition returns true if the error is one of the engine precondition
// errors: an invalid transition, a missing intent, or a missing active task.
// Precondition errors are never retried internally.
func IsPrecondition(err error) bool {
	return Is(err, ErrInvalidTransition) || Is(err, ErrIntentMissing) || Is(err, ErrNoActiveTask)
}

// Remediation returns operator guidance for a precondition error, or an empty
// string when the error carries no specific guidance.
func Remediation(err error) string {
	var stErr *StateTransitionError
	switch {
	case As(err, &stErr):
		if stErr.FromState == "PANIC" {
			return "the session is in PANIC; run reset before continuing"
		}
		return fmt.Sprintf("%s is only legal from %s", stErr.Action, strings.Join(stErr.AllowedFromStates, " or "))
	case Is(err, ErrIntentMissing):
		return "file an intent with report_intent (intent + files to touch) before calling checkpoint"
	case Is(err, ErrNoActiveTask):
		return "propose a task first; no task is currently active"
	case Is(err, ErrDelegationOutOfScope):
		return "narrow the child scope to paths inside the parent's claimed patterns"
	}
	return ""
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike a bare fmt.Errorf call site, nil errors stay nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
