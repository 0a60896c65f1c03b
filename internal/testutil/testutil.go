// Package testutil provides git repository fixtures for driftguard tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Default identity used for fixture commits.
const (
	TestAuthorName  = "Driftguard Test"
	TestAuthorEmail = "test@driftguard.dev"
)

// SetupTestRepo creates a temporary git repository with one commit on main.
// The repository is removed when the test completes.
func SetupTestRepo(t *testing.T) string {
	t.Helper()
	SkipIfNoGit(t)

	dir := t.TempDir()

	if err := runGit(dir, nil, "init"); err != nil {
		t.Fatalf("failed to init git repo: %v", err)
	}
	// Notes commits need an identity even when env vars are not passed.
	if err := runGit(dir, nil, "config", "user.email", TestAuthorEmail); err != nil {
		t.Fatalf("failed to configure git email: %v", err)
	}
	if err := runGit(dir, nil, "config", "user.name", TestAuthorName); err != nil {
		t.Fatalf("failed to configure git name: %v", err)
	}

	WriteFile(t, dir, "README.md", "# Test Repository\n")
	if err := runGit(dir, nil, "add", "."); err != nil {
		t.Fatalf("failed to stage files: %v", err)
	}
	if err := runGit(dir, nil, "commit", "-m", "Initial commit"); err != nil {
		t.Fatalf("failed to create initial commit: %v", err)
	}
	if err := runGit(dir, nil, "branch", "-M", "main"); err != nil {
		t.Fatalf("failed to rename branch to main: %v", err)
	}

	return dir
}

// SetupEmptyRepo creates a git repository with no commits.
func SetupEmptyRepo(t *testing.T) string {
	t.Helper()
	SkipIfNoGit(t)

	dir := t.TempDir()
	if err := runGit(dir, nil, "init"); err != nil {
		t.Fatalf("failed to init git repo: %v", err)
	}
	return dir
}

// SetupTestRepoWithContent creates a test repository and commits the given
// files (relative path to content) on top of the initial commit.
func SetupTestRepoWithContent(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := SetupTestRepo(t)
	for path, content := range files {
		WriteFile(t, dir, path, content)
	}
	if err := runGit(dir, nil, "add", "."); err != nil {
		t.Fatalf("failed to stage files: %v", err)
	}
	if err := runGit(dir, nil, "commit", "-m", "Add test files"); err != nil {
		t.Fatalf("failed to commit test files: %v", err)
	}
	return dir
}

// WriteFile writes content to dir/path, creating parent directories.
func WriteFile(t *testing.T, dir, path, content string) {
	t.Helper()

	fullPath := filepath.Join(dir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
}

// CommitFile creates or updates a file and commits it as the test identity.
func CommitFile(t *testing.T, repoDir, path, content, message string) {
	t.Helper()
	CommitFileAs(t, repoDir, path, content, message, TestAuthorName, TestAuthorEmail)
}

// CommitFileAs creates or updates a file and commits it with the given author.
func CommitFileAs(t *testing.T, repoDir, path, content, message, authorName, authorEmail string) {
	t.Helper()

	WriteFile(t, repoDir, path, content)
	env := []string{
		"GIT_AUTHOR_NAME=" + authorName,
		"GIT_AUTHOR_EMAIL=" + authorEmail,
	}
	if err := runGit(repoDir, env, "add", path); err != nil {
		t.Fatalf("failed to stage file %s: %v", path, err)
	}
	if err := runGit(repoDir, env, "commit", "-m", message); err != nil {
		t.Fatalf("failed to commit file %s: %v", path, err)
	}
}

// HeadHash returns the full hash of HEAD.
func HeadHash(t *testing.T, repoDir string) string {
	t.Helper()
	return Git(t, repoDir, "rev-parse", "HEAD")
}

// Git runs a git command and returns its trimmed stdout, failing the test
// on error.
func Git(t *testing.T, repoDir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = repoDir
	output, err := cmd.Output()
	if err != nil {
		t.Fatalf("git %s: %v", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(output))
}

// SkipIfNoGit skips the test if git is not installed.
func SkipIfNoGit(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH, skipping test")
	}
}

// runGit runs a git command with a fixed committer identity. extraEnv
// entries are appended after the defaults and so override them.
func runGit(dir string, extraEnv []string, args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME="+TestAuthorName,
		"GIT_AUTHOR_EMAIL="+TestAuthorEmail,
		"GIT_COMMITTER_NAME="+TestAuthorName,
		"GIT_COMMITTER_EMAIL="+TestAuthorEmail,
	)
	cmd.Env = append(cmd.Env, extraEnv...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &gitError{args: args, output: output, err: err}
	}
	return nil
}

type gitError struct {
	args   []string
	output []byte
	err    error
}

func (e *gitError) Error() string {
	return "git " + strings.Join(e.args, " ") + ": " + e.err.Error() + "\n" + string(e.output)
}

func (e *gitError) Unwrap() error {
	return e.err
}
