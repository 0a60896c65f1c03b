package engine

import (
	"context"
	"strings"

	"github.com/Iron-Ham/driftguard/internal/errors"
	"github.com/Iron-Ham/driftguard/internal/event"
	"github.com/Iron-Ham/driftguard/internal/focus"
	"github.com/Iron-Ham/driftguard/internal/scope"
)

// ClaimScope requests paths for the active task. Any conflict rejects the
// whole request with nothing committed. On success the claim cache is
// rebuilt and the integrity baseline refreshed for the task's claims.
func (e *Engine) ClaimScope(ctx context.Context, paths []string, exclusive bool) (ClaimResult, error) {
	return e.ClaimScopeFor(ctx, "", paths, exclusive)
}

// ClaimScopeFor requests paths on behalf of taskID, which must be the active
// task or one of its delegated descendants. An empty taskID means the active
// task. A child may claim inside scope its parent holds, so the parent
// keeps its claims while handing work to a child.
func (e *Engine) ClaimScopeFor(ctx context.Context, taskID string, paths []string, exclusive bool) (ClaimResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	active := e.activeTask()
	if active == nil {
		return ClaimResult{}, errors.NewNoActiveTaskError("claim scope")
	}
	task := active
	if taskID != "" && taskID != active.ID {
		owner, ok := e.tasks[taskID]
		if !ok {
			return ClaimResult{}, errors.NewNotFoundError("task", taskID).WithCause(errors.ErrTaskNotFound)
		}
		if !e.descendsFrom(owner.ID, active.ID) {
			return ClaimResult{}, errors.NewValidationError(
				"task " + taskID + " is not delegated from active task " + active.ID)
		}
		task = owner
	}

	decision, err := e.coordinator.Evaluate(scope.Request{
		TaskID:    task.ID,
		Paths:     paths,
		Exclusive: exclusive,
	}, e.session.ActiveClaims, e.parentOf)
	if err != nil {
		return ClaimResult{}, err
	}

	logger := e.logger.WithTask(task.ID)
	result := ClaimResult{TaskID: task.ID, Granted: decision.Granted, Conflicts: decision.Conflicts}

	if !decision.Granted {
		descriptions := make([]string, len(decision.Conflicts))
		for i, c := range decision.Conflicts {
			descriptions[i] = c.String()
		}
		e.appendLog("claim scope", task.ID, "rejected: "+strings.Join(descriptions, "; "))
		if err := e.persistLocked(); err != nil {
			return ClaimResult{}, err
		}
		logger.Info("scope claim rejected", "conflicts", len(decision.Conflicts))
		e.bus.Publish(event.NewScopeConflictEvent(task.ID, descriptions))
		return result, nil
	}

	task.Claims = append(task.Claims, decision.Claims...)
	task.UpdatedAt = e.now()
	e.rebuildClaimCache()
	if err := e.refreshBaseline(ctx, task.ClaimPatterns()); err != nil {
		logger.Warn("integrity baseline not refreshed", "error", err)
	}

	result.Claims = decision.Claims
	granted := scope.Patterns(decision.Claims)
	e.appendLog("claim scope", task.ID, strings.Join(granted, ", "))
	if err := e.persistLocked(); err != nil {
		return ClaimResult{}, err
	}

	logger.Info("scope claimed", "patterns", granted, "exclusive", exclusive)
	e.bus.Publish(event.NewScopeClaimedEvent(task.ID, granted, exclusive))
	return result, nil
}

// DelegateTask creates a child of the active task. When the parent holds
// claims, every child scope must lie inside them; a parent without claims
// delegates freely. The child starts without claims and is not activated.
func (e *Engine) DelegateTask(ctx context.Context, spec TaskSpec) (DelegateResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.machine.Validate(focus.ActionDelegate); err != nil {
		return DelegateResult{}, err
	}
	parent, err := e.requireActiveTask(focus.ActionDelegate)
	if err != nil {
		return DelegateResult{}, err
	}

	child, err := e.buildTask(spec)
	if err != nil {
		return DelegateResult{}, err
	}

	parentScope := parent.ClaimPatterns()
	enforced := len(parentScope) > 0
	if enforced {
		if err := scope.ValidateDelegation(parentScope, child.AllowedScopes); err != nil {
			e.logger.WithTask(parent.ID).Info("delegation rejected", "error", err)
			return DelegateResult{}, err
		}
	}

	child.ParentTaskID = parent.ID
	e.tasks[child.ID] = child
	parent.ChildTaskIDs = append(parent.ChildTaskIDs, child.ID)
	parent.UpdatedAt = e.now()

	e.appendLog(string(focus.ActionDelegate), parent.ID, child.ID+": "+child.Title)
	if err := e.persistLocked(); err != nil {
		return DelegateResult{}, err
	}

	e.logger.WithTask(parent.ID).Info("task delegated",
		"child_id", child.ID,
		"scopes", child.AllowedScopes,
		"containment_enforced", enforced)
	e.bus.Publish(event.NewTaskDelegatedEvent(parent.ID, child.ID, child.AllowedScopes))
	return DelegateResult{ParentTaskID: parent.ID, Task: child.Clone(), Enforced: enforced}, nil
}

// descendsFrom reports whether id sits below ancestor in the delegation tree.
func (e *Engine) descendsFrom(id, ancestor string) bool {
	seen := make(map[string]bool)
	for cur := e.parentOf(id); cur != "" && !seen[cur]; cur = e.parentOf(cur) {
		if cur == ancestor {
			return true
		}
		seen[cur] = true
	}
	return false
}
