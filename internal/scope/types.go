package scope

import (
	"fmt"
	"time"
)

// Claim is a granted glob-pattern claim owned by a task.
type Claim struct {
	Pattern   string    `json:"pattern"`
	Exclusive bool      `json:"exclusive"`
	TaskID    string    `json:"taskId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Conflict records a requested path that collides with an existing claim.
type Conflict struct {
	Path  string `json:"path"`
	Claim Claim  `json:"claim"`
}

// String renders the conflict for tool output.
func (c Conflict) String() string {
	mode := "shared"
	if c.Claim.Exclusive {
		mode = "exclusive"
	}
	return fmt.Sprintf("%s overlaps %s claim %q held by %s", c.Path, mode, c.Claim.Pattern, c.Claim.TaskID)
}

// Request asks for a set of paths on behalf of a task.
type Request struct {
	TaskID    string
	Paths     []string
	Exclusive bool
}

// Decision is the outcome of evaluating a Request. Scope conflicts are data,
// not errors.
type Decision struct {
	Granted   bool       `json:"granted"`
	Claims    []Claim    `json:"claims,omitempty"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// ParentFunc returns the parent task id of taskID, or "" if it has none.
type ParentFunc func(taskID string) string

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSymmetricExclusivity makes exclusive requests conflict with
// overlapping shared claims too.
func WithSymmetricExclusivity(on bool) Option {
	return func(c *Coordinator) {
		c.symmetric = on
	}
}

// WithClock overrides the time source used to stamp new claims.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}
