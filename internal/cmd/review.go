package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/driftguard/internal/audit"
	"github.com/Iron-Ham/driftguard/internal/engine"
	"github.com/Iron-Ham/driftguard/internal/errors"
	"github.com/Iron-Ham/driftguard/internal/integrity"
	"github.com/Iron-Ham/driftguard/internal/risk"
)

var claimCmd = &cobra.Command{
	Use:   "claim <glob>...",
	Short: "Claim paths for the active task",
	Long: `Claim glob patterns for the active task. The request is granted in full
or not at all; conflicts with other tasks' claims are listed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClaim,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Compare claimed files against their baseline hashes",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the active task's verification command",
	Args:  cobra.NoArgs,
	RunE:  runVerify,
}

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Compare the filed intent with the working tree",
	Args:  cobra.NoArgs,
	RunE:  runExplain,
}

var riskCmd = &cobra.Command{
	Use:   "risk <path>",
	Short: "Score a path by recent churn",
	Args:  cobra.ExactArgs(1),
	RunE:  runRisk,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List checkpoint audit notes",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

// errClaimRejected and errVerifyFailed give scripts a non-zero exit after
// the result has been printed.
var (
	errClaimRejected = errors.New("claim rejected")
	errVerifyFailed  = errors.New("verification failed")
)

func init() {
	claimCmd.Flags().BoolP("exclusive", "x", false, "request exclusive claims")
	claimCmd.Flags().String("task", "", "claim for a task delegated from the active one")
	healthCmd.Flags().Bool("strict", false, "exit non-zero when claimed files drifted")

	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(riskCmd)
	rootCmd.AddCommand(historyCmd)
}

func runClaim(cmd *cobra.Command, args []string) error {
	exclusive, _ := cmd.Flags().GetBool("exclusive")
	owner, _ := cmd.Flags().GetString("task")
	var granted bool
	err := withSession(cmd, func(ctx context.Context, eng *engine.Engine) (engine.ClaimResult, error) {
		res, err := eng.ClaimScopeFor(ctx, owner, args, exclusive)
		granted = res.Granted
		return res, err
	}, func(w io.Writer, r engine.ClaimResult) {
		if r.Granted {
			fmt.Fprintf(w, "%s %d claim(s) for %s\n", okStyle.Render("Granted"), len(r.Claims), r.TaskID)
			for _, c := range r.Claims {
				fmt.Fprintf(w, "  %s\n", c.Pattern)
			}
			return
		}
		fmt.Fprintln(w, failStyle.Render("Rejected"))
		for _, c := range r.Conflicts {
			fmt.Fprintf(w, "  %s\n", c.String())
		}
	})
	if err == nil && !granted {
		return errClaimRejected
	}
	return err
}

func runHealth(cmd *cobra.Command, args []string) error {
	strict, _ := cmd.Flags().GetBool("strict")
	var status integrity.Status
	err := withSession(cmd, func(ctx context.Context, eng *engine.Engine) (integrity.Report, error) {
		r, err := eng.HealthCheck(ctx)
		status = r.Status
		return r, err
	}, printReport)
	if err == nil && strict && status == integrity.StatusDirty {
		return fmt.Errorf("claimed files drifted")
	}
	return err
}

func printReport(w io.Writer, r integrity.Report) {
	fmt.Fprintf(w, "Integrity: %s (%d files)\n", integrityBadge(r.Status).Render(string(r.Status)), r.Checked)
	for _, f := range r.Findings {
		fmt.Fprintf(w, "  %s\n", f.String())
	}
}

func runVerify(cmd *cobra.Command, args []string) error {
	var ok bool
	err := withSession(cmd, func(ctx context.Context, eng *engine.Engine) (engine.VerifyResult, error) {
		r, err := eng.Verify(ctx)
		ok = r.Success
		return r, err
	}, func(w io.Writer, r engine.VerifyResult) {
		if r.Placeholder {
			fmt.Fprintf(w, "%s %s\n", passFail(true), dimStyle.Render(r.Output))
			return
		}
		fmt.Fprintf(w, "%s %s (exit %d, %s)\n", passFail(r.Success), r.Command, r.ExitCode, r.Duration.Round(time.Millisecond))
		if r.TimedOut {
			fmt.Fprintln(w, failStyle.Render("timed out"))
		}
		if out := strings.TrimSpace(r.Output); out != "" {
			fmt.Fprintln(w, out)
		}
		if r.Truncated {
			fmt.Fprintln(w, dimStyle.Render("(output truncated)"))
		}
	})
	if err == nil && !ok {
		return errVerifyFailed
	}
	return err
}

func runExplain(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, eng *engine.Engine) (engine.Explanation, error) {
		return eng.ExplainChange(ctx)
	}, func(w io.Writer, e engine.Explanation) {
		fmt.Fprintf(w, "%s %s\n", headingStyle.Render("Intent:"), e.Intent)
		list := func(label string, items []string) {
			if len(items) == 0 {
				return
			}
			fmt.Fprintf(w, "%s\n", label)
			for _, it := range items {
				fmt.Fprintf(w, "  %s\n", it)
			}
		}
		list("Declared:", e.FilesToTouch)
		if e.VCSError != "" {
			fmt.Fprintf(w, "%s %s\n", failStyle.Render("git:"), e.VCSError)
		} else {
			fmt.Fprintf(w, "Changed: %s\n", e.DiffStat)
		}
		list("Changed files:", e.ChangedFiles)
		list("Undeclared:", e.Undeclared)
		list("Out of scope:", e.OutOfScope)
		list("Declared but untouched:", e.Untouched)
		fmt.Fprintf(w, "Verified: %t\n", e.IsVerified)
	})
}

func runRisk(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, eng *engine.Engine) (risk.Score, error) {
		return eng.CalculateRisk(ctx, args[0])
	}, func(w io.Writer, s risk.Score) {
		fmt.Fprintf(w, "%s: %d (%s)\n", s.Path, s.Score, s.Class)
		fmt.Fprintf(w, "  %s\n", dimStyle.Render(s.Reason))
	})
}

func runHistory(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, eng *engine.Engine) ([]audit.Entry, error) {
		return eng.History(ctx)
	}, func(w io.Writer, entries []audit.Entry) {
		if len(entries) == 0 {
			fmt.Fprintln(w, "No audit notes")
			return
		}
		for _, e := range entries {
			rev := e.Revision
			if len(rev) > 8 {
				rev = rev[:8]
			}
			fmt.Fprintf(w, "%s %s  %s (%d/%d) %s\n",
				dimStyle.Render(rev), e.Timestamp.Format("2006-01-02 15:04"),
				e.Title, e.CompletedItems, e.TotalItems, e.Summary)
		}
	})
}
