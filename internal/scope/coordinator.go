package scope

import (
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Iron-Ham/driftguard/internal/errors"
)

// Coordinator evaluates claim requests and delegation containment. It holds
// no claim state of its own; callers pass the active claims in.
type Coordinator struct {
	symmetric bool
	now       func() time.Time
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Symmetric reports whether exclusive requests also conflict with shared claims.
func (c *Coordinator) Symmetric() bool {
	return c.symmetric
}

// Normalize cleans a pattern to slash-separated, project-relative form and
// rejects patterns that are empty, absolute, escape the project, or are not
// valid globs.
func Normalize(pattern string) (string, error) {
	p := strings.TrimSpace(strings.ReplaceAll(pattern, "\\", "/"))
	if p == "" {
		return "", errors.NewValidationError("scope pattern must not be empty").WithField("path")
	}
	if strings.HasPrefix(p, "/") {
		return "", errors.NewValidationError("scope pattern must be relative to the project root").
			WithField("path").WithValue(pattern)
	}

	trailingSlash := strings.HasSuffix(p, "/")
	p = path.Clean(p)
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", errors.NewValidationError("scope pattern escapes the project root").
			WithField("path").WithValue(pattern)
	}
	// "src/" means the whole directory.
	if trailingSlash && p != "." {
		p += "/**"
	}
	if p == "." {
		p = "**"
	}
	if !doublestar.ValidatePattern(p) {
		return "", errors.NewValidationError("invalid glob pattern").WithField("path").WithValue(pattern)
	}
	return p, nil
}

// NormalizeAll normalizes every pattern, dropping duplicates while keeping
// first-seen order.
func NormalizeAll(patterns []string) ([]string, error) {
	seen := make(map[string]bool, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		n, err := Normalize(p)
		if err != nil {
			return nil, err
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out, nil
}

// Match reports whether pattern accepts name. Invalid patterns match nothing.
func Match(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

// Overlaps reports whether two patterns may describe a common file.
func Overlaps(a, b string) bool {
	return a == b || Match(a, b) || Match(b, a)
}

// Covers reports whether the parent pattern contains the child pattern.
func Covers(parent, child string) bool {
	return parent == child || Match(parent, child)
}

// MatchesAny reports whether name is accepted by any pattern.
func MatchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if Match(p, name) {
			return true
		}
	}
	return false
}

// CheckConflict returns the active claims that block path for requestor.
// Claims held by the requestor or by its parent are skipped.
func (c *Coordinator) CheckConflict(path string, exclusive bool, requestor string, active []Claim, parentOf ParentFunc) []Conflict {
	parent := ""
	if parentOf != nil {
		parent = parentOf(requestor)
	}

	var conflicts []Conflict
	for _, claim := range active {
		if claim.TaskID == requestor {
			continue
		}
		if parent != "" && claim.TaskID == parent {
			continue
		}
		if !Overlaps(path, claim.Pattern) {
			continue
		}
		if claim.Exclusive || (c.symmetric && exclusive) {
			conflicts = append(conflicts, Conflict{Path: path, Claim: claim})
		}
	}
	return conflicts
}

// Evaluate checks every requested path against the active claims. The
// request is granted only when no path conflicts; the returned claims are
// the new ones to commit. Paths the task already holds with the same
// exclusivity are not duplicated.
func (c *Coordinator) Evaluate(req Request, active []Claim, parentOf ParentFunc) (Decision, error) {
	if req.TaskID == "" {
		return Decision{}, errors.NewNoActiveTaskError("claim scope")
	}
	if len(req.Paths) == 0 {
		return Decision{}, errors.NewValidationError("at least one path is required").WithField("paths")
	}

	paths, err := NormalizeAll(req.Paths)
	if err != nil {
		return Decision{}, err
	}

	var conflicts []Conflict
	for _, p := range paths {
		conflicts = append(conflicts, c.CheckConflict(p, req.Exclusive, req.TaskID, active, parentOf)...)
	}
	if len(conflicts) > 0 {
		return Decision{Granted: false, Conflicts: conflicts}, nil
	}

	held := make(map[string]bool)
	for _, claim := range active {
		if claim.TaskID == req.TaskID && claim.Exclusive == req.Exclusive {
			held[claim.Pattern] = true
		}
	}

	now := c.now()
	var claims []Claim
	for _, p := range paths {
		if held[p] {
			continue
		}
		claims = append(claims, Claim{
			Pattern:   p,
			Exclusive: req.Exclusive,
			TaskID:    req.TaskID,
			CreatedAt: now,
		})
	}
	return Decision{Granted: true, Claims: claims}, nil
}

// ValidateDelegation returns an error naming every child pattern that no
// parent pattern covers.
func ValidateDelegation(parentScope, childScope []string) error {
	var outside []string
	for _, child := range childScope {
		covered := false
		for _, parent := range parentScope {
			if Covers(parent, child) {
				covered = true
				break
			}
		}
		if !covered {
			outside = append(outside, child)
		}
	}
	if len(outside) == 0 {
		return nil
	}
	sort.Strings(outside)
	return errors.NewValidationError("delegated scope is outside the parent's claims").
		WithField("scopes").
		WithValue(strings.Join(outside, ", ")).
		WithCause(errors.ErrDelegationOutOfScope)
}

// Patterns returns the pattern text of each claim.
func Patterns(claims []Claim) []string {
	out := make([]string, len(claims))
	for i, c := range claims {
		out[i] = c.Pattern
	}
	return out
}
