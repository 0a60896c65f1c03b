package engine

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/Iron-Ham/driftguard/internal/audit"
	"github.com/Iron-Ham/driftguard/internal/config"
	"github.com/Iron-Ham/driftguard/internal/errors"
	"github.com/Iron-Ham/driftguard/internal/event"
	"github.com/Iron-Ham/driftguard/internal/focus"
	"github.com/Iron-Ham/driftguard/internal/model"
	"github.com/Iron-Ham/driftguard/internal/scope"
)

// ProposeTask registers a task contract, makes it active and moves to
// PLANNING.
func (e *Engine) ProposeTask(ctx context.Context, spec TaskSpec) (TaskResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.machine.Validate(focus.ActionProposeTask); err != nil {
		return TaskResult{}, err
	}
	task, err := e.buildTask(spec)
	if err != nil {
		return TaskResult{}, err
	}

	e.tasks[task.ID] = task
	e.session.ActiveTaskID = task.ID
	e.session.ActiveStepID = ""
	e.session.IntentFiled = false
	e.session.IsVerified = false
	e.transition(focus.ActionProposeTask, focus.StatePlanning)
	e.appendLog(string(focus.ActionProposeTask), task.ID, task.Title)
	if err := e.persistLocked(); err != nil {
		return TaskResult{}, err
	}

	e.logger.WithTask(task.ID).Info("task proposed",
		"title", task.Title,
		"strictness", task.Strictness,
		"items", len(task.Checklist))
	e.bus.Publish(event.NewTaskProposedEvent(task.ID, task.Title, task.Strictness, len(task.Checklist)))
	return TaskResult{Task: task.Clone(), State: e.machine.State()}, nil
}

// ResumeTask makes an existing incomplete task active, typically a
// delegated child, and moves to PLANNING. It is legal where ProposeTask is.
func (e *Engine) ResumeTask(ctx context.Context, taskID string) (TaskResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.machine.Validate(focus.ActionProposeTask); err != nil {
		return TaskResult{}, err
	}
	task, ok := e.tasks[taskID]
	if !ok {
		return TaskResult{}, errors.NewNotFoundError("task", taskID).WithCause(errors.ErrTaskNotFound)
	}
	if len(task.Checklist) > 0 && task.Complete() {
		return TaskResult{}, errors.NewValidationError("task is already complete").
			WithField("taskId").WithValue(taskID)
	}

	e.session.ActiveTaskID = task.ID
	e.session.ActiveStepID = ""
	e.session.IntentFiled = false
	e.session.IsVerified = false
	e.transition(focus.ActionProposeTask, focus.StatePlanning)
	e.appendLog("resume task", task.ID, task.Title)
	if err := e.persistLocked(); err != nil {
		return TaskResult{}, err
	}

	e.logger.WithTask(task.ID).Info("task resumed")
	return TaskResult{Task: task.Clone(), State: e.machine.State()}, nil
}

// BeginStep starts a step of the active task, allocating an id when stepID
// is empty, and moves to EXECUTING.
func (e *Engine) BeginStep(ctx context.Context, stepID string) (StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.machine.Validate(focus.ActionBeginStep); err != nil {
		return StepResult{}, err
	}
	task, err := e.requireActiveTask(focus.ActionBeginStep)
	if err != nil {
		return StepResult{}, err
	}

	stepID = strings.TrimSpace(stepID)
	if stepID == "" {
		stepID = newStepID()
	}
	e.session.ActiveStepID = stepID
	e.transition(focus.ActionBeginStep, focus.StateExecuting)
	e.appendLog(string(focus.ActionBeginStep), task.ID, stepID)
	if err := e.persistLocked(); err != nil {
		return StepResult{}, err
	}

	e.logger.WithTask(task.ID).Info("step started", "step_id", stepID)
	return StepResult{TaskID: task.ID, StepID: stepID, State: e.machine.State()}, nil
}

// ReportIntent files what the agent is about to do and which files it
// expects to touch, opening a new step in EXECUTING.
func (e *Engine) ReportIntent(ctx context.Context, intent string, filesToTouch []string) (IntentResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.machine.Validate(focus.ActionReportIntent); err != nil {
		return IntentResult{}, err
	}
	task, err := e.requireActiveTask(focus.ActionReportIntent)
	if err != nil {
		return IntentResult{}, err
	}
	intent = strings.TrimSpace(intent)
	if intent == "" {
		return IntentResult{}, errors.NewValidationError("intent is required").WithField("intent")
	}

	files := cleanPaths(filesToTouch)
	task.Intent = intent
	task.FilesToTouch = files
	task.UpdatedAt = e.now()

	stepID := newStepID()
	e.session.ActiveStepID = stepID
	e.session.IntentFiled = true
	e.session.IsVerified = false
	e.transition(focus.ActionReportIntent, focus.StateExecuting)
	e.appendLog(string(focus.ActionReportIntent), task.ID, intent)
	if err := e.persistLocked(); err != nil {
		return IntentResult{}, err
	}

	e.logger.WithTask(task.ID).Info("intent filed", "step_id", stepID, "files", len(files))
	return IntentResult{
		TaskID:       task.ID,
		StepID:       stepID,
		Intent:       intent,
		FilesToTouch: slices.Clone(files),
		State:        e.machine.State(),
	}, nil
}

// Checkpoint marks checklist items done, writes an audit note, takes a new
// integrity baseline for the task's claims and releases them, and returns
// to IDLE. The active task is cleared once every item is done.
func (e *Engine) Checkpoint(ctx context.Context, summary string, completedIDs []string) (CheckpointResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.session.IntentFiled {
		return CheckpointResult{}, errors.NewIntentMissingError(e.session.ActiveTaskID)
	}
	if err := e.machine.Validate(focus.ActionCheckpoint); err != nil {
		return CheckpointResult{}, err
	}
	task, err := e.requireActiveTask(focus.ActionCheckpoint)
	if err != nil {
		return CheckpointResult{}, err
	}

	if unknown := unknownItems(task, completedIDs); len(unknown) > 0 {
		return CheckpointResult{}, errors.NewValidationError("unknown checklist item ids").
			WithField("completedIds").WithValue(strings.Join(unknown, ", "))
	}
	for i := range task.Checklist {
		if slices.Contains(completedIDs, task.Checklist[i].ID) {
			task.Checklist[i].Status = model.ItemDone
		}
	}
	task.UpdatedAt = e.now()

	done, total := task.Progress()
	completed := task.Complete()
	logger := e.logger.WithTask(task.ID)

	changed, err := e.repo.ChangedFiles(ctx)
	if err != nil {
		logger.Debug("changed files unavailable for audit record", "error", err)
		changed = nil
	}

	auditWritten := false
	if e.cfg.Audit.Enabled {
		auditWritten, err = e.trail.WriteNote(ctx, audit.Record{
			TaskID:         task.ID,
			Title:          task.Title,
			Intent:         task.Intent,
			Summary:        summary,
			Timestamp:      e.now(),
			ChangedFiles:   changed,
			CompletedItems: done,
			TotalItems:     total,
		})
		if err != nil {
			logger.Warn("audit note not written", "error", err)
			auditWritten = false
		}
	}

	patterns := task.ClaimPatterns()
	if err := e.refreshBaseline(ctx, patterns); err != nil {
		logger.Warn("integrity baseline not refreshed", "error", err)
	}
	released := len(task.Claims)
	task.Claims = nil
	e.rebuildClaimCache()

	e.session.IntentFiled = false
	e.session.IsVerified = false
	e.session.ActiveStepID = ""
	if completed {
		e.session.ActiveTaskID = ""
	}
	e.transition(focus.ActionCheckpoint, focus.StateIdle)
	e.appendLog(string(focus.ActionCheckpoint), task.ID, fmt.Sprintf("%d/%d: %s", done, total, summary))
	if err := e.persistLocked(); err != nil {
		return CheckpointResult{}, err
	}

	logger.Info("checkpoint",
		"completed", done,
		"total", total,
		"audit_written", auditWritten,
		"released_claims", released)
	if released > 0 {
		e.bus.Publish(event.NewScopeReleasedEvent(task.ID, released))
	}
	e.bus.Publish(event.NewTaskCheckpointedEvent(task.ID, done, total, auditWritten, completed))

	return CheckpointResult{
		TaskID:         task.ID,
		CompletedItems: done,
		TotalItems:     total,
		Ratio:          ratio(done, total),
		AuditWritten:   auditWritten,
		TaskCompleted:  completed,
		ReleasedClaims: released,
		State:          e.machine.State(),
	}, nil
}

// Verify runs the active task's verification command, or the configured
// default. With neither, it reports a placeholder success. A failing
// command is data, not an error. The engine lock is not held while the
// command runs, so Panic and read-only views stay responsive.
func (e *Engine) Verify(ctx context.Context) (VerifyResult, error) {
	e.mu.Lock()
	if err := e.machine.Validate(focus.ActionVerify); err != nil {
		e.mu.Unlock()
		return VerifyResult{}, err
	}

	res := VerifyResult{}
	command := e.cfg.Verify.DefaultCommand
	if t := e.activeTask(); t != nil {
		res.TaskID = t.ID
		if t.VerifyCommand != "" {
			command = t.VerifyCommand
		}
	}
	sessionID := e.session.ID
	e.mu.Unlock()

	if strings.TrimSpace(command) == "" {
		res.Placeholder = true
		res.Success = true
		res.Output = "no verification command configured"
	} else {
		out, err := e.runner.Run(ctx, command)
		if err != nil {
			return VerifyResult{}, err
		}
		res.Result = out
	}
	res.IsVerified = res.Success

	e.mu.Lock()
	defer e.mu.Unlock()

	logger := e.logger.WithTask(res.TaskID)
	if e.session.ID != sessionID {
		// A reset replaced the session while the command ran.
		logger.Warn("verification result discarded", "command", res.Command, "reason", "session reset")
		return res, nil
	}

	e.session.IsVerified = res.Success
	e.appendLog(string(focus.ActionVerify), res.TaskID, verifyDetail(res))
	if err := e.persistLocked(); err != nil {
		return VerifyResult{}, err
	}

	logger.Info("verification finished",
		"command", res.Command,
		"success", res.Success,
		"timed_out", res.TimedOut,
		"placeholder", res.Placeholder)
	e.bus.Publish(event.NewTaskVerifiedEvent(res.TaskID, res.Success, res.TimedOut, res.Placeholder, res.Duration))
	return res, nil
}

// ExplainChange compares the filed intent and files with the working tree's
// actual changes and the verification state. It only logs.
func (e *Engine) ExplainChange(ctx context.Context) (Explanation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.machine.Validate(focus.ActionExplainChange); err != nil {
		return Explanation{}, err
	}
	task, err := e.requireActiveTask(focus.ActionExplainChange)
	if err != nil {
		return Explanation{}, err
	}

	ex := Explanation{
		TaskID:        task.ID,
		Intent:        task.Intent,
		FilesToTouch:  slices.Clone(task.FilesToTouch),
		VerifyCommand: task.VerifyCommand,
		IsVerified:    e.session.IsVerified,
	}
	if ex.VerifyCommand == "" {
		ex.VerifyCommand = e.cfg.Verify.DefaultCommand
	}

	changed, err := e.repo.ChangedFiles(ctx)
	if err != nil {
		ex.VCSError = err.Error()
	} else {
		ex.ChangedFiles = changed
		if stat, err := e.repo.DiffStat(ctx); err == nil {
			ex.DiffStat = stat
		}
	}

	for _, f := range ex.ChangedFiles {
		if !scope.MatchesAny(ex.FilesToTouch, f) {
			ex.Undeclared = append(ex.Undeclared, f)
		}
		if len(task.AllowedScopes) > 0 && !scope.MatchesAny(task.AllowedScopes, f) {
			ex.OutOfScope = append(ex.OutOfScope, f)
		}
	}
	if ex.VCSError == "" {
		for _, f := range ex.FilesToTouch {
			touched := slices.ContainsFunc(ex.ChangedFiles, func(c string) bool { return scope.Match(f, c) })
			if !touched {
				ex.Untouched = append(ex.Untouched, f)
			}
		}
	}

	e.appendLog(string(focus.ActionExplainChange), task.ID,
		fmt.Sprintf("%d changed, %d undeclared, %d untouched", len(ex.ChangedFiles), len(ex.Undeclared), len(ex.Untouched)))
	if err := e.persistLocked(); err != nil {
		return Explanation{}, err
	}
	return ex, nil
}

// Panic forces PANIC from any state and returns a help packet. The state
// change lands before taking the engine lock; Verify does not hold that
// lock while its command runs, so a running check never delays Panic.
func (e *Engine) Panic(ctx context.Context, reason string) (HelpPacket, error) {
	prev := e.machine.Panic()

	e.mu.Lock()
	defer e.mu.Unlock()

	reason = strings.TrimSpace(reason)
	packet := HelpPacket{
		RecentLogs: e.logs.Recent(3),
		Reason:     reason,
		State:      focus.StatePanic,
	}
	taskID := ""
	if t := e.activeTask(); t != nil {
		packet.Goal = t.Goal
		taskID = t.ID
	}

	e.appendLog(string(focus.ActionPanic), taskID, reason)
	if err := e.persistLocked(); err != nil {
		return packet, err
	}

	e.logger.WithState(string(focus.StatePanic)).Warn("session panic", "reason", reason, "from", string(prev))
	e.bus.Publish(event.NewPanicEvent(e.session.ID, string(prev), reason))
	if prev != focus.StatePanic {
		e.bus.Publish(event.NewStateChangedEvent(e.session.ID, string(focus.ActionPanic), string(prev), string(focus.StatePanic)))
	}
	return packet, nil
}

// buildTask validates spec and returns a new, unregistered task.
func (e *Engine) buildTask(spec TaskSpec) (*model.Task, error) {
	title := strings.TrimSpace(spec.Title)
	if title == "" {
		return nil, errors.NewValidationError("title is required").WithField("title")
	}

	strictness := spec.Strictness
	if strictness == 0 {
		strictness = e.cfg.Tasks.DefaultStrictness
	}
	if strictness < config.MinStrictness || strictness > config.MaxStrictness {
		return nil, errors.NewValidationError(
			fmt.Sprintf("strictness must be between %d and %d", config.MinStrictness, config.MaxStrictness)).
			WithField("strictness").WithValue(strictness)
	}

	scopes, err := scope.NormalizeAll(spec.Scopes)
	if err != nil {
		return nil, err
	}
	checklist, err := buildChecklist(spec.Checklist)
	if err != nil {
		return nil, err
	}

	now := e.now()
	return &model.Task{
		ID:            e.newTaskID(),
		Title:         title,
		Goal:          strings.TrimSpace(spec.Goal),
		Strictness:    strictness,
		AllowedScopes: scopes,
		Checklist:     checklist,
		ChildTaskIDs:  []string{},
		Claims:        []scope.Claim{},
		VerifyCommand: strings.TrimSpace(spec.VerifyCommand),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func buildChecklist(items []ItemInput) ([]model.ChecklistItem, error) {
	out := make([]model.ChecklistItem, 0, len(items))
	seen := make(map[string]bool, len(items))
	for i, in := range items {
		id := strings.TrimSpace(in.ID)
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		if seen[id] {
			return nil, errors.NewValidationError("duplicate checklist item id").
				WithField("checklist").WithValue(id)
		}
		seen[id] = true
		out = append(out, model.ChecklistItem{
			ID:     id,
			Text:   strings.TrimSpace(in.Text),
			Status: model.ItemTodo,
		})
	}
	return out, nil
}

func unknownItems(task *model.Task, ids []string) []string {
	var unknown []string
	for _, id := range ids {
		if !slices.ContainsFunc(task.Checklist, func(it model.ChecklistItem) bool { return it.ID == id }) {
			unknown = append(unknown, id)
		}
	}
	return unknown
}

// cleanPaths normalizes declared file paths to slash-separated relative form
// and drops blanks and duplicates.
func cleanPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
		if p == "" {
			continue
		}
		p = strings.TrimPrefix(path.Clean(p), "./")
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

func ratio(done, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(done) / float64(total)
}

func verifyDetail(res VerifyResult) string {
	switch {
	case res.Placeholder:
		return "placeholder: no command configured"
	case res.TimedOut:
		return fmt.Sprintf("%s: timed out", res.Command)
	case res.Success:
		return fmt.Sprintf("%s: passed", res.Command)
	default:
		return fmt.Sprintf("%s: failed (exit %d)", res.Command, res.ExitCode)
	}
}
