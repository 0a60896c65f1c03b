// Package model defines the session, task and log records that make up the
// persisted snapshot.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/Iron-Ham/driftguard/internal/focus"
	"github.com/Iron-Ham/driftguard/internal/scope"
)

// SnapshotVersion is written into every snapshot. A different version on
// load is logged and accepted.
const SnapshotVersion Version = "1"

// Version labels a snapshot's format. It is written as a JSON string; bare
// numbers from older writers are read as their decimal text.
type Version string

// UnmarshalJSON accepts a string or a number.
func (v *Version) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Version(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("snapshot version must be a string or number: %w", err)
	}
	*v = Version(n.String())
	return nil
}

// ItemStatus is the state of one checklist item.
type ItemStatus string

const (
	ItemTodo ItemStatus = "todo"
	ItemDone ItemStatus = "done"
)

// ChecklistItem is one unit of work in a task contract.
type ChecklistItem struct {
	ID     string     `json:"id"`
	Text   string     `json:"text"`
	Status ItemStatus `json:"status"`
}

// Task is a unit of agent work. Tasks are kept after completion for audit.
type Task struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Goal          string          `json:"goal"`
	Strictness    int             `json:"strictness"`
	AllowedScopes []string        `json:"allowedScopes"`
	Checklist     []ChecklistItem `json:"checklist"`
	ParentTaskID  string          `json:"parentTaskId,omitempty"`
	ChildTaskIDs  []string        `json:"childTaskIds"`
	Claims        []scope.Claim   `json:"claims"`
	Intent        string          `json:"intent,omitempty"`
	FilesToTouch  []string        `json:"filesToTouch,omitempty"`
	VerifyCommand string          `json:"verifyCommand,omitempty"`
	RiskScore     *int            `json:"riskScore,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Progress returns the number of done items and the checklist length.
func (t *Task) Progress() (done, total int) {
	for _, item := range t.Checklist {
		if item.Status == ItemDone {
			done++
		}
	}
	return done, len(t.Checklist)
}

// Complete reports whether every checklist item is done. An empty checklist
// is complete.
func (t *Task) Complete() bool {
	done, total := t.Progress()
	return done == total
}

// RaiseRisk keeps the highest score seen.
func (t *Task) RaiseRisk(score int) {
	if t.RiskScore == nil || score > *t.RiskScore {
		s := score
		t.RiskScore = &s
	}
}

// ClaimPatterns returns the patterns of the task's active claims.
func (t *Task) ClaimPatterns() []string {
	return scope.Patterns(t.Claims)
}

// Clone returns a deep copy.
func (t *Task) Clone() *Task {
	c := *t
	c.AllowedScopes = slices.Clone(t.AllowedScopes)
	c.Checklist = slices.Clone(t.Checklist)
	c.ChildTaskIDs = slices.Clone(t.ChildTaskIDs)
	c.Claims = slices.Clone(t.Claims)
	c.FilesToTouch = slices.Clone(t.FilesToTouch)
	if t.RiskScore != nil {
		r := *t.RiskScore
		c.RiskScore = &r
	}
	return &c
}

// Session is the per-process coordination context.
type Session struct {
	ID           string            `json:"id"`
	StartedAt    time.Time         `json:"startedAt"`
	State        focus.State       `json:"state"`
	ActiveTaskID string            `json:"activeTaskId,omitempty"`
	ActiveStepID string            `json:"activeStepId,omitempty"`
	IntentFiled  bool              `json:"intentFiled"`
	IsVerified   bool              `json:"isVerified"`
	ActiveClaims []scope.Claim     `json:"activeClaims"`
	FileHashes   map[string]string `json:"fileHashes"`
}

// LogEntry is one line of the bounded activity log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	TaskID    string    `json:"taskId,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Snapshot is the authoritative persisted state.
type Snapshot struct {
	Version Version          `json:"version"`
	Session Session          `json:"session"`
	Tasks   map[string]*Task `json:"tasks"`
	Logs    []LogEntry       `json:"logs"`
}

// ActiveTask returns the session's active task, or nil.
func (s *Snapshot) ActiveTask() *Task {
	if s.Session.ActiveTaskID == "" {
		return nil
	}
	return s.Tasks[s.Session.ActiveTaskID]
}
