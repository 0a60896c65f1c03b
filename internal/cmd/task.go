package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/driftguard/internal/engine"
)

var proposeCmd = &cobra.Command{
	Use:   "propose <title>",
	Short: "Propose a task and make it active",
	Long: `Propose a task with a checklist and allowed scopes. Requires IDLE and
moves the session to PLANNING.

Example:
  driftguard propose "Add login" --goal "users can log in" \
    --scope 'src/auth/**' --item "write handler" --item "write tests"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPropose,
}

var resumeCmd = &cobra.Command{
	Use:   "resume <task-id>",
	Short: "Make an existing, incomplete task active again",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

var stepCmd = &cobra.Command{
	Use:   "step [step-id]",
	Short: "Begin a step of the active task",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStep,
}

var intentCmd = &cobra.Command{
	Use:   "intent <description>",
	Short: "File an intent before changing files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIntent,
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint <summary>",
	Short: "Record progress, write an audit note and release claims",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheckpoint,
}

var delegateCmd = &cobra.Command{
	Use:   "delegate <title>",
	Short: "Create a child task inside the active task's claimed scope",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDelegate,
}

func init() {
	for _, c := range []*cobra.Command{proposeCmd, delegateCmd} {
		c.Flags().String("goal", "", "what done looks like")
		c.Flags().StringArray("scope", nil, "allowed glob (repeatable)")
		c.Flags().StringArray("item", nil, "checklist item (repeatable)")
		c.Flags().Int("strictness", 0, "strictness 1-5 (default from config)")
		c.Flags().String("verify", "", "verification command for this task")
	}
	intentCmd.Flags().StringArrayP("file", "f", nil, "file you intend to touch (repeatable)")
	checkpointCmd.Flags().StringArray("done", nil, "completed checklist item id (repeatable)")

	rootCmd.AddCommand(proposeCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(stepCmd)
	rootCmd.AddCommand(intentCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(delegateCmd)
}

func taskSpecFromFlags(cmd *cobra.Command, args []string) engine.TaskSpec {
	goal, _ := cmd.Flags().GetString("goal")
	scopes, _ := cmd.Flags().GetStringArray("scope")
	items, _ := cmd.Flags().GetStringArray("item")
	strictness, _ := cmd.Flags().GetInt("strictness")
	verify, _ := cmd.Flags().GetString("verify")

	checklist := make([]engine.ItemInput, 0, len(items))
	for _, text := range items {
		checklist = append(checklist, engine.ItemInput{Text: text})
	}
	return engine.TaskSpec{
		Title:         strings.Join(args, " "),
		Goal:          goal,
		Scopes:        scopes,
		Checklist:     checklist,
		Strictness:    strictness,
		VerifyCommand: verify,
	}
}

func printTaskResult(w io.Writer, r engine.TaskResult) {
	printTask(w, r.Task)
	fmt.Fprintf(w, "State: %s\n", stateBadge(r.State).Render(string(r.State)))
}

func runPropose(cmd *cobra.Command, args []string) error {
	spec := taskSpecFromFlags(cmd, args)
	return withSession(cmd, func(ctx context.Context, eng *engine.Engine) (engine.TaskResult, error) {
		return eng.ProposeTask(ctx, spec)
	}, printTaskResult)
}

func runResume(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, eng *engine.Engine) (engine.TaskResult, error) {
		return eng.ResumeTask(ctx, args[0])
	}, printTaskResult)
}

func runStep(cmd *cobra.Command, args []string) error {
	var stepID string
	if len(args) == 1 {
		stepID = args[0]
	}
	return withSession(cmd, func(ctx context.Context, eng *engine.Engine) (engine.StepResult, error) {
		return eng.BeginStep(ctx, stepID)
	}, func(w io.Writer, r engine.StepResult) {
		fmt.Fprintf(w, "Step %s of %s; state %s\n", r.StepID, r.TaskID, stateBadge(r.State).Render(string(r.State)))
	})
}

func runIntent(cmd *cobra.Command, args []string) error {
	files, _ := cmd.Flags().GetStringArray("file")
	intent := strings.Join(args, " ")
	return withSession(cmd, func(ctx context.Context, eng *engine.Engine) (engine.IntentResult, error) {
		return eng.ReportIntent(ctx, intent, files)
	}, func(w io.Writer, r engine.IntentResult) {
		fmt.Fprintf(w, "Intent filed for %s (step %s)\n", r.TaskID, r.StepID)
		for _, f := range r.FilesToTouch {
			fmt.Fprintf(w, "  %s\n", f)
		}
		fmt.Fprintf(w, "State: %s\n", stateBadge(r.State).Render(string(r.State)))
	})
}

func runCheckpoint(cmd *cobra.Command, args []string) error {
	done, _ := cmd.Flags().GetStringArray("done")
	summary := strings.Join(args, " ")
	return withSession(cmd, func(ctx context.Context, eng *engine.Engine) (engine.CheckpointResult, error) {
		return eng.Checkpoint(ctx, summary, done)
	}, func(w io.Writer, r engine.CheckpointResult) {
		fmt.Fprintf(w, "Checkpoint for %s: %d/%d items (%.0f%%)\n", r.TaskID, r.CompletedItems, r.TotalItems, r.Ratio*100)
		if r.AuditWritten {
			fmt.Fprintln(w, "Audit note written")
		} else {
			fmt.Fprintln(w, dimStyle.Render("No audit note written"))
		}
		if r.ReleasedClaims > 0 {
			fmt.Fprintf(w, "Released %d claim(s)\n", r.ReleasedClaims)
		}
		if r.TaskCompleted {
			fmt.Fprintln(w, okStyle.Render("Task complete"))
		}
		fmt.Fprintf(w, "State: %s\n", stateBadge(r.State).Render(string(r.State)))
	})
}

func runDelegate(cmd *cobra.Command, args []string) error {
	spec := taskSpecFromFlags(cmd, args)
	return withSession(cmd, func(ctx context.Context, eng *engine.Engine) (engine.DelegateResult, error) {
		return eng.DelegateTask(ctx, spec)
	}, func(w io.Writer, r engine.DelegateResult) {
		fmt.Fprintf(w, "Delegated from %s\n", r.ParentTaskID)
		printTask(w, r.Task)
		if r.Enforced {
			fmt.Fprintln(w, dimStyle.Render("Scope checked against the parent's claims"))
		}
		fmt.Fprintf(w, "Resume it with 'driftguard resume %s'\n", r.Task.ID)
	})
}
