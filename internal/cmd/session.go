package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/driftguard/internal/engine"
	"github.com/Iron-Ham/driftguard/internal/model"
	"github.com/Iron-Ham/driftguard/internal/persist"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or resume the session for this project",
	Long: `Hydrate the session from .driftguard/state.json, or start a fresh
one when no valid snapshot exists. Writes state.json and PLAN.md.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session, active task and claims",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Leave PANIC (or any state) and start a fresh session",
	Long: `Release every claim, return to IDLE and start a new session id.
Tasks are kept so they can be resumed.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

var panicCmd = &cobra.Command{
	Use:   "panic <reason>",
	Short: "Enter PANIC and print a help packet",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPanic,
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(panicCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.engine.Initialize(cmd.Context())
	if err != nil {
		return err
	}
	return printResult(cmd, res, func(w io.Writer, r engine.InitResult) {
		fmt.Fprintf(w, "Session %s (%s)\n", r.SessionID, r.Status)
		fmt.Fprintf(w, "State directory: %s\n", a.engine.StateDir())
	})
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.engine.Hydrate(cmd.Context()) {
		fmt.Fprintln(cmd.OutOrStdout(), "No session. Run 'driftguard init' to start one.")
		return nil
	}
	holder, held := persist.Holder(a.engine.StateDir())
	return printResult(cmd, a.engine.Status(), func(w io.Writer, s engine.Status) {
		printStatus(w, s)
		if held {
			fmt.Fprintf(w, "\n%s\n", dimStyle.Render(fmt.Sprintf("Server: %s (PID %d) since %s",
				holder.Mode, holder.PID, holder.StartedAt.Local().Format("15:04:05"))))
		}
	})
}

func printStatus(w io.Writer, s engine.Status) {
	fmt.Fprintf(w, "%s %s\n", headingStyle.Render("Session:"), s.SessionID)
	fmt.Fprintf(w, "Started: %s\n", s.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "State:   %s\n", stateBadge(s.State).Render(string(s.State)))
	fmt.Fprintf(w, "Tasks:   %d\n\n", s.TaskCount)

	if t := s.ActiveTask; t != nil {
		printTask(w, t)
		if s.ActiveStepID != "" {
			fmt.Fprintf(w, "    Step: %s\n", s.ActiveStepID)
		}
		fmt.Fprintf(w, "    Intent filed: %t  Verified: %t\n", s.IntentFiled, s.IsVerified)
	} else {
		fmt.Fprintln(w, dimStyle.Render("No active task"))
	}

	if len(s.ActiveClaims) > 0 {
		fmt.Fprintln(w, "\nClaims:")
		for _, c := range s.ActiveClaims {
			mode := "shared"
			if c.Exclusive {
				mode = "exclusive"
			}
			fmt.Fprintf(w, "  %s (%s, %s)\n", c.Pattern, mode, c.TaskID)
		}
	}

	if len(s.RecentLogs) > 0 {
		fmt.Fprintln(w, "\nRecent activity:")
		for _, l := range s.RecentLogs {
			fmt.Fprintf(w, "  %s %s %s\n", dimStyle.Render(l.Timestamp.Format("15:04:05")), l.Action, l.Detail)
		}
	}
}

func printTask(w io.Writer, t *model.Task) {
	fmt.Fprintf(w, "%s %s (%s)\n", headingStyle.Render("Task:"), t.Title, t.ID)
	if t.Goal != "" {
		fmt.Fprintf(w, "    Goal: %s\n", t.Goal)
	}
	if len(t.AllowedScopes) > 0 {
		fmt.Fprintf(w, "    Scope: %s\n", strings.Join(t.AllowedScopes, ", "))
	}
	if t.ParentTaskID != "" {
		fmt.Fprintf(w, "    Parent: %s\n", t.ParentTaskID)
	}
	done, total := t.Progress()
	fmt.Fprintf(w, "    Progress: %s\n", persist.ProgressBar(done, total))
	for _, item := range t.Checklist {
		mark := " "
		if item.Status == model.ItemDone {
			mark = "x"
		}
		fmt.Fprintf(w, "    [%s] %s. %s\n", mark, item.ID, item.Text)
	}
	if t.Intent != "" {
		fmt.Fprintf(w, "    Intent: %s\n", t.Intent)
	}
}

func runReset(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, eng *engine.Engine) (engine.ResetResult, error) {
		return eng.Reset(ctx)
	}, func(w io.Writer, r engine.ResetResult) {
		fmt.Fprintf(w, "Session reset: %s -> %s\n", r.PreviousSessionID, r.SessionID)
		fmt.Fprintf(w, "Released %d claim(s); state %s\n", r.ReleasedClaims, r.State)
	})
}

func runPanic(cmd *cobra.Command, args []string) error {
	reason := strings.Join(args, " ")
	return withSession(cmd, func(ctx context.Context, eng *engine.Engine) (engine.HelpPacket, error) {
		return eng.Panic(ctx, reason)
	}, func(w io.Writer, p engine.HelpPacket) {
		fmt.Fprintf(w, "%s %s\n", stateBadge(p.State).Render(string(p.State)), p.Reason)
		if p.Goal != "" {
			fmt.Fprintf(w, "Goal: %s\n", p.Goal)
		}
		for _, l := range p.RecentLogs {
			fmt.Fprintf(w, "  %s %s\n", l.Action, l.Detail)
		}
		fmt.Fprintln(w, dimStyle.Render("Run 'driftguard reset' to recover."))
	})
}
