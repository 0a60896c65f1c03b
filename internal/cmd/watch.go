package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/driftguard/internal/engine"
	"github.com/Iron-Ham/driftguard/internal/integrity"
	"github.com/Iron-Ham/driftguard/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of session state and claimed-file integrity",
	Long: `Watch claimed files and re-run the health check whenever they change.
Another process (usually 'driftguard serve') owns the session; the
dashboard re-reads the snapshot before every check. When stdout is not a
terminal, one line is printed per check instead.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Duration("interval", 0, "also re-check on this interval (e.g. 10s)")
	watchCmd.Flags().Bool("plain", false, "print lines instead of the dashboard")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	interval, _ := cmd.Flags().GetDuration("interval")
	plain, _ := cmd.Flags().GetBool("plain")

	eng := a.engine
	opts := tui.Options{
		Root:     a.root,
		Patterns: eng.ClaimedPatterns,
		Check: func(ctx context.Context) (engine.Status, integrity.Report, error) {
			eng.Hydrate(ctx)
			report, err := eng.HealthCheck(ctx)
			return eng.Status(), report, err
		},
		Interval: interval,
		Debounce: a.cfg.Watch.Debounce(),
		Ignore:   []string{".git", "node_modules", filepath.Base(eng.StateDir())},
		Logger:   a.logger,
	}

	if plain || !tui.IsTerminal(os.Stdout) {
		return tui.RunPlain(ctx, cmd.OutOrStdout(), opts)
	}
	return tui.Run(ctx, opts)
}
