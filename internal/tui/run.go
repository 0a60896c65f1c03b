package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/Iron-Ham/driftguard/internal/errors"
	"github.com/Iron-Ham/driftguard/internal/integrity"
	"github.com/Iron-Ham/driftguard/internal/logging"
)

// Options configures Run.
type Options struct {
	Root     string
	Patterns integrity.PatternsFunc
	Check    CheckFunc
	Interval time.Duration
	Debounce time.Duration
	Ignore   []string
	Logger   *logging.Logger
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Run shows the interactive dashboard until the user quits or ctx ends.
func Run(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(
		NewModel(ctx, opts.Check, opts.Interval),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	w, err := integrity.NewWatcher(opts.Root, opts.Patterns, func(paths []string) {
		p.Send(ChangeMsg{Paths: paths})
	}, watcherOptions(opts)...)
	if err != nil {
		return err
	}
	go func() { _ = w.Run(ctx) }()

	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// RunPlain prints one line per health check. It is used when stdout is not
// a terminal.
func RunPlain(ctx context.Context, out io.Writer, opts Options) error {
	changes := make(chan []string, 16)
	w, err := integrity.NewWatcher(opts.Root, opts.Patterns, func(paths []string) {
		select {
		case changes <- paths:
		default:
		}
	}, watcherOptions(opts)...)
	if err != nil {
		return err
	}
	go func() { _ = w.Run(ctx) }()

	report := func(trigger string) {
		status, r, err := opts.Check(ctx)
		if err != nil {
			fmt.Fprintf(out, "%s health check failed: %v\n", trigger, err)
			return
		}
		fmt.Fprintln(out, PlainLine(trigger, string(status.State), r))
	}

	report("start")
	var poll <-chan time.Time
	if opts.Interval > 0 {
		t := time.NewTicker(opts.Interval)
		defer t.Stop()
		poll = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case paths := <-changes:
			report("change:" + strings.Join(paths, ","))
		case <-poll:
			report("poll")
		}
	}
}

// PlainLine renders one health report as a single log line.
func PlainLine(trigger, state string, r integrity.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] state=%s integrity=%s checked=%d", trigger, state, r.Status, r.Checked)
	for _, f := range r.Findings {
		b.WriteString(" ")
		b.WriteString(f.String())
	}
	return b.String()
}

func watcherOptions(opts Options) []integrity.WatcherOption {
	wo := []integrity.WatcherOption{integrity.WithIgnore(opts.Ignore...)}
	if opts.Debounce > 0 {
		wo = append(wo, integrity.WithDebounce(opts.Debounce))
	}
	if opts.Logger != nil {
		wo = append(wo, integrity.WithWatcherLogger(opts.Logger))
	}
	return wo
}
