// Package vcs adapts the git CLI for the engine: repository detection, the
// head revision, working-tree changes, file listing, path history and notes.
//
// Every git invocation goes through a [CommandExecutor] so tests can script
// git's responses without a repository.
package vcs

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/Iron-Ham/driftguard/internal/errors"
)

// CommandExecutor abstracts command execution for testability.
type CommandExecutor interface {
	// Run executes a command in dir and returns its stdout. On failure the
	// returned error is an *ExecError carrying stderr.
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// ExecError reports a failed command together with what it wrote to stderr.
type ExecError struct {
	Err    error
	Stderr string
}

func (e *ExecError) Error() string { return e.Err.Error() }
func (e *ExecError) Unwrap() error { return e.Err }

// CLICommandExecutor executes commands using os/exec.
type CLICommandExecutor struct{}

// NewCLICommandExecutor creates a new CLI command executor.
func NewCLICommandExecutor() *CLICommandExecutor {
	return &CLICommandExecutor{}
}

// Run executes a command and returns stdout. Stderr is captured separately
// so warnings never corrupt parsed output.
func (e *CLICommandExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return out, &ExecError{Err: err, Stderr: stderr.String()}
	}
	return out, nil
}

// stderrOf extracts captured stderr from an executor error.
func stderrOf(err error) string {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Stderr
	}
	return ""
}
