package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Iron-Ham/driftguard/internal/engine"
	"github.com/Iron-Ham/driftguard/internal/errors"
	"github.com/Iron-Ham/driftguard/internal/logging"
)

// Tools holds the tool handlers.
type Tools struct {
	engine *engine.Engine
	logger *logging.Logger
}

// NewTools creates handlers bound to eng.
func NewTools(eng *engine.Engine, logger *logging.Logger) *Tools {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Tools{engine: eng, logger: logger}
}

var stringItems = mcp.Items(map[string]any{"type": "string"})

var checklistItems = mcp.Items(map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id":   map[string]any{"type": "string"},
		"text": map[string]any{"type": "string"},
	},
	"required": []string{"text"},
})

// Registrations returns every tool with its handler.
func (t *Tools) Registrations() []Registration {
	return []Registration{
		{mcp.NewTool("dg_initialize",
			mcp.WithDescription("Hydrate the session from .driftguard/state.json or create a new one"),
		), t.Initialize},
		{mcp.NewTool("dg_status",
			mcp.WithDescription("Show the focus state, active task, claims and recent activity"),
		), t.Status},
		{mcp.NewTool("dg_propose_task",
			mcp.WithDescription("Register a task contract and make it active (IDLE -> PLANNING)"),
			mcp.WithString("title", mcp.Required(), mcp.Description("Short task title")),
			mcp.WithString("goal", mcp.Description("What done looks like")),
			mcp.WithArray("scopes", stringItems, mcp.Description("Glob patterns the task may touch")),
			mcp.WithArray("checklist", checklistItems, mcp.Description("Checklist items; ids default to their position")),
			mcp.WithNumber("strictness", mcp.Description("1-5; defaults to the configured level")),
			mcp.WithString("verify_command", mcp.Description("Shell command that verifies the work")),
		), t.ProposeTask},
		{mcp.NewTool("dg_resume_task",
			mcp.WithDescription("Make an existing incomplete task active, such as a delegated child"),
			mcp.WithString("task_id", mcp.Required()),
		), t.ResumeTask},
		{mcp.NewTool("dg_begin_step",
			mcp.WithDescription("Start a step of the active task (-> EXECUTING)"),
			mcp.WithString("step_id", mcp.Description("Optional step id")),
		), t.BeginStep},
		{mcp.NewTool("dg_report_intent",
			mcp.WithDescription("File what you are about to change and which files (-> EXECUTING)"),
			mcp.WithString("intent", mcp.Required()),
			mcp.WithArray("files", stringItems, mcp.Description("Files you expect to touch")),
		), t.ReportIntent},
		{mcp.NewTool("dg_claim_scope",
			mcp.WithDescription("Claim glob patterns for the active task; all or nothing"),
			mcp.WithArray("paths", mcp.Required(), stringItems),
			mcp.WithBoolean("exclusive", mcp.Description("Block other tasks from overlapping paths")),
			mcp.WithString("task_id", mcp.Description("Claim for a task delegated from the active one")),
		), t.ClaimScope},
		{mcp.NewTool("dg_checkpoint",
			mcp.WithDescription("Record progress, write an audit note and release claims (-> IDLE)"),
			mcp.WithString("summary", mcp.Required()),
			mcp.WithArray("completed_ids", stringItems, mcp.Description("Checklist ids now done")),
		), t.Checkpoint},
		{mcp.NewTool("dg_verify",
			mcp.WithDescription("Run the verification command for the active task"),
		), t.Verify},
		{mcp.NewTool("dg_explain_change",
			mcp.WithDescription("Compare filed intent with actual changes and verification"),
		), t.ExplainChange},
		{mcp.NewTool("dg_delegate_task",
			mcp.WithDescription("Create a child task inside the active task's claims"),
			mcp.WithString("title", mcp.Required()),
			mcp.WithString("goal"),
			mcp.WithArray("scopes", stringItems),
			mcp.WithArray("checklist", checklistItems),
			mcp.WithNumber("strictness"),
			mcp.WithString("verify_command"),
		), t.DelegateTask},
		{mcp.NewTool("dg_health_check",
			mcp.WithDescription("Detect out-of-band edits to claimed files"),
		), t.HealthCheck},
		{mcp.NewTool("dg_calculate_risk",
			mcp.WithDescription("Score a path's recent churn (0-100)"),
			mcp.WithString("path", mcp.Required()),
		), t.CalculateRisk},
		{mcp.NewTool("dg_history",
			mcp.WithDescription("Reconstruct checkpoint history from git notes"),
		), t.History},
		{mcp.NewTool("dg_panic",
			mcp.WithDescription("Stop and ask for help; the session stays in PANIC until reset"),
			mcp.WithString("reason", mcp.Required()),
		), t.Panic},
		{mcp.NewTool("dg_reset",
			mcp.WithDescription("Start a fresh session, releasing every claim"),
		), t.Reset},
	}
}

// Initialize handles dg_initialize.
func (t *Tools) Initialize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.engine.Initialize(ctx)
	return t.render("dg_initialize", res, err)
}

// Status handles dg_status.
func (t *Tools) Status(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.render("dg_status", t.engine.Status(), nil)
}

// ProposeTask handles dg_propose_task.
func (t *Tools) ProposeTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	spec, err := taskSpec(req)
	if err != nil {
		return t.render("dg_propose_task", nil, err)
	}
	res, err := t.engine.ProposeTask(ctx, spec)
	return t.render("dg_propose_task", res, err)
}

// ResumeTask handles dg_resume_task.
func (t *Tools) ResumeTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("task_id")
	if err != nil {
		return t.render("dg_resume_task", nil, invalidArgument("task_id", err))
	}
	res, err := t.engine.ResumeTask(ctx, id)
	return t.render("dg_resume_task", res, err)
}

// BeginStep handles dg_begin_step.
func (t *Tools) BeginStep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.engine.BeginStep(ctx, req.GetString("step_id", ""))
	return t.render("dg_begin_step", res, err)
}

// ReportIntent handles dg_report_intent.
func (t *Tools) ReportIntent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	intent, err := req.RequireString("intent")
	if err != nil {
		return t.render("dg_report_intent", nil, invalidArgument("intent", err))
	}
	res, err := t.engine.ReportIntent(ctx, intent, req.GetStringSlice("files", nil))
	return t.render("dg_report_intent", res, err)
}

// ClaimScope handles dg_claim_scope.
func (t *Tools) ClaimScope(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths, err := req.RequireStringSlice("paths")
	if err != nil {
		return t.render("dg_claim_scope", nil, invalidArgument("paths", err))
	}
	res, err := t.engine.ClaimScopeFor(ctx, req.GetString("task_id", ""), paths, req.GetBool("exclusive", false))
	return t.render("dg_claim_scope", res, err)
}

// Checkpoint handles dg_checkpoint.
func (t *Tools) Checkpoint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, err := req.RequireString("summary")
	if err != nil {
		return t.render("dg_checkpoint", nil, invalidArgument("summary", err))
	}
	res, err := t.engine.Checkpoint(ctx, summary, req.GetStringSlice("completed_ids", nil))
	return t.render("dg_checkpoint", res, err)
}

// Verify handles dg_verify.
func (t *Tools) Verify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.engine.Verify(ctx)
	return t.render("dg_verify", res, err)
}

// ExplainChange handles dg_explain_change.
func (t *Tools) ExplainChange(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.engine.ExplainChange(ctx)
	return t.render("dg_explain_change", res, err)
}

// DelegateTask handles dg_delegate_task.
func (t *Tools) DelegateTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	spec, err := taskSpec(req)
	if err != nil {
		return t.render("dg_delegate_task", nil, err)
	}
	res, err := t.engine.DelegateTask(ctx, spec)
	return t.render("dg_delegate_task", res, err)
}

// HealthCheck handles dg_health_check.
func (t *Tools) HealthCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.engine.HealthCheck(ctx)
	return t.render("dg_health_check", res, err)
}

// CalculateRisk handles dg_calculate_risk.
func (t *Tools) CalculateRisk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return t.render("dg_calculate_risk", nil, invalidArgument("path", err))
	}
	res, err := t.engine.CalculateRisk(ctx, path)
	return t.render("dg_calculate_risk", res, err)
}

// History handles dg_history.
func (t *Tools) History(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.engine.History(ctx)
	return t.render("dg_history", res, err)
}

// Panic handles dg_panic.
func (t *Tools) Panic(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reason, err := req.RequireString("reason")
	if err != nil {
		return t.render("dg_panic", nil, invalidArgument("reason", err))
	}
	res, err := t.engine.Panic(ctx, reason)
	return t.render("dg_panic", res, err)
}

// Reset handles dg_reset.
func (t *Tools) Reset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.engine.Reset(ctx)
	return t.render("dg_reset", res, err)
}

// render turns an engine result into tool output. Engine errors never
// become protocol errors; the agent sees them as tool errors with a hint.
func (t *Tools) render(tool string, v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		if errors.GetSeverity(err) >= errors.SeverityError {
			t.logger.Warn("tool call failed", "tool", tool, "error", err, "retryable", errors.IsRetryable(err))
		} else {
			t.logger.Debug("tool call failed", "tool", tool, "error", err)
		}
		return mcp.NewToolResultError(errorText(err)), nil
	}
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	return mcp.NewToolResultText(string(body)), nil
}

// errorText renders err for the calling agent. Errors not classified as
// user-facing are marked internal; retryable failures say so.
func errorText(err error) string {
	msg := err.Error()
	if !errors.IsUserFacing(err) && !errors.Is(err, errors.ErrDelegationOutOfScope) {
		msg = "internal error: " + msg
	}
	if hint := errors.Remediation(err); hint != "" {
		msg += "\nhint: " + hint
	}
	if errors.IsRetryable(err) {
		msg += "\nretryable: true"
	}
	return msg
}

func invalidArgument(name string, err error) error {
	return errors.NewValidationError("missing or invalid argument").WithField(name).WithCause(err)
}

// taskSpec reads the shared propose/delegate arguments.
func taskSpec(req mcp.CallToolRequest) (engine.TaskSpec, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return engine.TaskSpec{}, invalidArgument("title", err)
	}
	checklist, err := checklistArg(req.GetArguments()["checklist"])
	if err != nil {
		return engine.TaskSpec{}, err
	}
	return engine.TaskSpec{
		Title:         title,
		Goal:          req.GetString("goal", ""),
		Scopes:        req.GetStringSlice("scopes", nil),
		Checklist:     checklist,
		Strictness:    req.GetInt("strictness", 0),
		VerifyCommand: req.GetString("verify_command", ""),
	}, nil
}

// checklistArg accepts a list of {id?, text} objects or plain strings.
func checklistArg(raw any) ([]engine.ItemInput, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, errors.NewValidationError("checklist must be an array").WithField("checklist")
	}

	items := make([]engine.ItemInput, 0, len(list))
	for _, entry := range list {
		switch v := entry.(type) {
		case string:
			items = append(items, engine.ItemInput{Text: v})
		case map[string]any:
			item := engine.ItemInput{}
			item.Text, _ = v["text"].(string)
			switch id := v["id"].(type) {
			case string:
				item.ID = id
			case float64:
				item.ID = fmt.Sprintf("%g", id)
			}
			items = append(items, item)
		default:
			return nil, errors.NewValidationError("checklist items must be strings or objects").
				WithField("checklist").WithValue(entry)
		}
	}
	return items, nil
}
