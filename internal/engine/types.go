package engine

import (
	"time"

	"github.com/Iron-Ham/driftguard/internal/focus"
	"github.com/Iron-Ham/driftguard/internal/model"
	"github.com/Iron-Ham/driftguard/internal/runner"
	"github.com/Iron-Ham/driftguard/internal/scope"
	"github.com/Iron-Ham/driftguard/internal/vcs"
)

// Initialization outcomes.
const (
	StatusCreated  = "created"
	StatusHydrated = "hydrated"
)

// InitResult is returned by Initialize.
type InitResult struct {
	Status    string `json:"status"`
	SessionID string `json:"sessionId"`
}

// ItemInput describes a checklist item in a proposal. An empty ID defaults
// to the item's 1-based position.
type ItemInput struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

// TaskSpec is the contract for a new task. Zero Strictness means the
// configured default.
type TaskSpec struct {
	Title         string      `json:"title"`
	Goal          string      `json:"goal"`
	Scopes        []string    `json:"scopes"`
	Checklist     []ItemInput `json:"checklist"`
	Strictness    int         `json:"strictness,omitempty"`
	VerifyCommand string      `json:"verifyCommand,omitempty"`
}

// TaskResult is returned by ProposeTask and ResumeTask.
type TaskResult struct {
	Task  *model.Task `json:"task"`
	State focus.State `json:"state"`
}

// StepResult is returned by BeginStep.
type StepResult struct {
	TaskID string      `json:"taskId"`
	StepID string      `json:"stepId"`
	State  focus.State `json:"state"`
}

// IntentResult is returned by ReportIntent.
type IntentResult struct {
	TaskID       string      `json:"taskId"`
	StepID       string      `json:"stepId"`
	Intent       string      `json:"intent"`
	FilesToTouch []string    `json:"filesToTouch"`
	State        focus.State `json:"state"`
}

// CheckpointResult is returned by Checkpoint.
type CheckpointResult struct {
	TaskID         string      `json:"taskId"`
	CompletedItems int         `json:"completedItems"`
	TotalItems     int         `json:"totalItems"`
	Ratio          float64     `json:"ratio"`
	AuditWritten   bool        `json:"auditWritten"`
	TaskCompleted  bool        `json:"taskCompleted"`
	ReleasedClaims int         `json:"releasedClaims"`
	State          focus.State `json:"state"`
}

// VerifyResult is returned by Verify. A failing command is reported here,
// not as an error.
type VerifyResult struct {
	runner.Result
	TaskID      string `json:"taskId"`
	Placeholder bool   `json:"placeholder"`
	IsVerified  bool   `json:"isVerified"`
}

// Explanation compares what was declared with what changed.
type Explanation struct {
	TaskID string `json:"taskId"`

	// Declared intent.
	Intent       string   `json:"intent"`
	FilesToTouch []string `json:"filesToTouch"`

	// Actual changes in the working tree.
	ChangedFiles []string     `json:"changedFiles"`
	DiffStat     vcs.DiffStat `json:"diffStat"`
	Undeclared   []string     `json:"undeclared"`
	Untouched    []string     `json:"untouched"`
	OutOfScope   []string     `json:"outOfScope"`
	VCSError     string       `json:"vcsError,omitempty"`

	// Verification.
	VerifyCommand string `json:"verifyCommand"`
	IsVerified    bool   `json:"isVerified"`
}

// HelpPacket is returned by Panic.
type HelpPacket struct {
	Goal       string           `json:"goal,omitempty"`
	RecentLogs []model.LogEntry `json:"recentLogs"`
	Reason     string           `json:"reason"`
	State      focus.State      `json:"state"`
}

// ClaimResult is returned by ClaimScope. Conflicts are data.
type ClaimResult struct {
	TaskID    string           `json:"taskId"`
	Granted   bool             `json:"granted"`
	Claims    []scope.Claim    `json:"claims,omitempty"`
	Conflicts []scope.Conflict `json:"conflicts,omitempty"`
}

// DelegateResult is returned by DelegateTask.
type DelegateResult struct {
	ParentTaskID string      `json:"parentTaskId"`
	Task         *model.Task `json:"task"`
	Enforced     bool        `json:"containmentEnforced"`
}

// ResetResult is returned by Reset.
type ResetResult struct {
	PreviousSessionID string      `json:"previousSessionId"`
	SessionID         string      `json:"sessionId"`
	ReleasedClaims    int         `json:"releasedClaims"`
	State             focus.State `json:"state"`
}

// Status is a read-only view of the session.
type Status struct {
	SessionID    string           `json:"sessionId"`
	StartedAt    time.Time        `json:"startedAt"`
	State        focus.State      `json:"state"`
	ActiveTask   *model.Task      `json:"activeTask,omitempty"`
	ActiveStepID string           `json:"activeStepId,omitempty"`
	IntentFiled  bool             `json:"intentFiled"`
	IsVerified   bool             `json:"isVerified"`
	ActiveClaims []scope.Claim    `json:"activeClaims"`
	TaskCount    int              `json:"taskCount"`
	LogCount     int              `json:"logCount"`
	RecentLogs   []model.LogEntry `json:"recentLogs"`
}
