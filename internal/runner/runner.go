// Package runner executes verification commands with a timeout and a cap on
// captured output. Commands run through the platform shell in their own
// process group, and the whole group is killed on timeout.
package runner

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/driftguard/internal/errors"
	"github.com/Iron-Ham/driftguard/internal/logging"
)

// Default limits, used when a Runner is built without options.
const (
	DefaultTimeout        = 120 * time.Second
	DefaultMaxOutputBytes = 64 * 1024
)

// Result describes one command execution. A failing or timed-out command is
// a result, not an error.
type Result struct {
	Command   string        `json:"command"`
	ExitCode  int           `json:"exitCode"`
	Success   bool          `json:"success"`
	TimedOut  bool          `json:"timedOut"`
	Output    string        `json:"output"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"duration"`
}

// Runner runs shell commands in a fixed directory.
type Runner struct {
	dir       string
	timeout   time.Duration
	maxOutput int
	logger    *logging.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout bounds each command's wall time.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxOutputBytes caps captured stdout and stderr combined.
func WithMaxOutputBytes(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxOutput = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Runner that executes commands in dir.
func New(dir string, opts ...Option) *Runner {
	r := &Runner{
		dir:       dir,
		timeout:   DefaultTimeout,
		maxOutput: DefaultMaxOutputBytes,
		logger:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Timeout returns the per-command timeout.
func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// Run executes command through the shell. It returns an error only for an
// empty command; a command that cannot be started fails like any other,
// with exit code -1 and the start error as its output.
func (r *Runner) Run(ctx context.Context, command string) (Result, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return Result{}, errors.NewValidationError("command must not be empty").WithField("command")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := shellCommand(ctx, command)
	cmd.Dir = r.dir
	configureCommandProcess(cmd)
	cmd.Cancel = func() error {
		terminateCommandProcess(cmd)
		return nil
	}
	// Orphaned grandchildren can keep the pipes open after the group kill.
	cmd.WaitDelay = 2 * time.Second

	out := newCappedBuffer(r.maxOutput)
	cmd.Stdout = out
	cmd.Stderr = out

	start := time.Now()
	if err := cmd.Start(); err != nil {
		r.logger.Warn("verification command did not start", "command", command, "error", err)
		return Result{
			Command:  command,
			ExitCode: -1,
			Output:   errors.Wrapf(err, "failed to start %q", command).Error(),
			Duration: time.Since(start),
		}, nil
	}
	waitErr := cmd.Wait()

	res := Result{
		Command:   command,
		Output:    out.String(),
		Truncated: out.Truncated(),
		Duration:  time.Since(start),
		ExitCode:  exitCode(cmd, waitErr),
	}
	if ctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
	}
	res.Success = waitErr == nil && !res.TimedOut

	r.logger.Info("verification command finished",
		"command", command,
		"exit_code", res.ExitCode,
		"timed_out", res.TimedOut,
		"duration_ms", res.Duration.Milliseconds(),
		"truncated", res.Truncated,
	)
	return res, nil
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

// cappedBuffer keeps the first max bytes written and discards the rest,
// while reporting full writes so the child never sees a short write.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	max       int
	truncated bool
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.max - len(b.buf)
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func (b *cappedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
