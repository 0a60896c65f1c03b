package vcs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/driftguard/internal/errors"
	"github.com/Iron-Ham/driftguard/internal/testutil"
)

// -----------------------------------------------------------------------------
// Mock Command Executor for Unit Tests
// -----------------------------------------------------------------------------

type mockCall struct {
	dir  string
	name string
	args []string
}

type mockResponse struct {
	out []byte
	err error
}

// mockExecutor replays scripted responses in order.
type mockExecutor struct {
	calls     []mockCall
	responses []mockResponse
}

func (m *mockExecutor) add(out string, err error) *mockExecutor {
	m.responses = append(m.responses, mockResponse{out: []byte(out), err: err})
	return m
}

func (m *mockExecutor) Run(_ context.Context, dir string, name string, args ...string) ([]byte, error) {
	m.calls = append(m.calls, mockCall{dir: dir, name: name, args: args})
	idx := len(m.calls) - 1
	if idx < len(m.responses) {
		return m.responses[idx].out, m.responses[idx].err
	}
	return nil, nil
}

func (m *mockExecutor) lastArgs() string {
	if len(m.calls) == 0 {
		return ""
	}
	return strings.Join(m.calls[len(m.calls)-1].args, " ")
}

func execFailure(stderr string) error {
	return &ExecError{Err: errors.New("exit status 128"), Stderr: stderr}
}

// -----------------------------------------------------------------------------
// Unit Tests
// -----------------------------------------------------------------------------

func TestGit_IsRepo(t *testing.T) {
	tests := []struct {
		name string
		out  string
		err  error
		want bool
	}{
		{"inside", "true\n", nil, true},
		{"bare", "false\n", nil, false},
		{"outside", "", execFailure("fatal: not a git repository"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := (&mockExecutor{}).add(tt.out, tt.err)
			g := New("/repo", WithExecutor(m))
			if got := g.IsRepo(context.Background()); got != tt.want {
				t.Errorf("IsRepo() = %v, want %v", got, tt.want)
			}
			if m.calls[0].dir != "/repo" || m.calls[0].name != "git" {
				t.Errorf("call = %+v", m.calls[0])
			}
		})
	}
}

func TestGit_Head(t *testing.T) {
	t.Run("resolves", func(t *testing.T) {
		m := (&mockExecutor{}).add("abc123\n", nil)
		head, err := New("/repo", WithExecutor(m)).Head(context.Background())
		if err != nil || head != "abc123" {
			t.Errorf("Head() = (%q, %v)", head, err)
		}
	})

	t.Run("no commits", func(t *testing.T) {
		m := (&mockExecutor{}).add("", execFailure("")).add("true\n", nil)
		_, err := New("/repo", WithExecutor(m)).Head(context.Background())
		if !errors.Is(err, errors.ErrNoHead) {
			t.Errorf("Head() error = %v, want ErrNoHead", err)
		}
	})

	t.Run("not a repository", func(t *testing.T) {
		m := (&mockExecutor{}).add("", execFailure("fatal")).add("", execFailure("fatal: not a git repository"))
		_, err := New("/tmp", WithExecutor(m)).Head(context.Background())
		if !errors.Is(err, errors.ErrNotGitRepository) {
			t.Errorf("Head() error = %v, want ErrNotGitRepository", err)
		}
		var gitErr *errors.GitError
		if !errors.As(err, &gitErr) || gitErr.Repository != "/tmp" {
			t.Errorf("error should be a GitError for /tmp, got %v", err)
		}
	})
}

func TestParseStatusZ(t *testing.T) {
	out := " M src/a.go\x00?? new file.txt\x00R  src/renamed.go\x00src/old.go\x00D  gone.go\x00 M src/a.go\x00"
	got := parseStatusZ([]byte(out))

	want := []string{"gone.go", "new file.txt", "src/a.go", "src/renamed.go"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("parseStatusZ() = %q, want %q", got, want)
	}
}

func TestParseNumstat(t *testing.T) {
	out := "3\t1\tsrc/a.go\n-\t-\timg.png\n10\t0\tREADME.md\n"
	got := parseNumstat([]byte(out))

	want := DiffStat{Files: 3, Insertions: 13, Deletions: 1}
	if got != want {
		t.Errorf("parseNumstat() = %+v, want %+v", got, want)
	}
	if got.String() != "3 files changed, 13 insertions(+), 1 deletions(-)" {
		t.Errorf("String() = %q", got.String())
	}
}

func TestParseLog(t *testing.T) {
	out := "h1\x1fAda\x1fada@x.dev\x1f1700000000\nbroken line\nh2\x1fBob\x1fbob@x.dev\x1fnotanumber\n"
	got := parseLog([]byte(out))

	if len(got) != 1 {
		t.Fatalf("parseLog() returned %d commits, want 1", len(got))
	}
	if got[0].Hash != "h1" || got[0].AuthorEmail != "ada@x.dev" || got[0].When.Unix() != 1700000000 {
		t.Errorf("commit = %+v", got[0])
	}
}

func TestGit_LogArgs(t *testing.T) {
	m := (&mockExecutor{}).add("", nil)
	since := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	_, err := New("/repo", WithExecutor(m)).Log(context.Background(), "src/a.go", since, 100)
	if err != nil {
		t.Fatal(err)
	}
	args := m.lastArgs()
	for _, want := range []string{"--since=2026-09-01T00:00:00Z", "-n 100", "-- src/a.go"} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}

func TestGit_NoteArgs(t *testing.T) {
	m := (&mockExecutor{}).add("", nil)
	g := New("/repo", WithExecutor(m))

	if err := g.AddNote(context.Background(), "driftguard", "abc", `{"k":1}`); err != nil {
		t.Fatal(err)
	}
	if got := m.lastArgs(); got != `notes --ref=driftguard add -f -m {"k":1} abc` {
		t.Errorf("args = %q", got)
	}
}

func TestGit_NoteWriteFailure(t *testing.T) {
	m := (&mockExecutor{}).add("", execFailure("error: bad object abc"))
	err := New("/repo", WithExecutor(m)).AddNote(context.Background(), "driftguard", "abc", "x")

	var gitErr *errors.GitError
	if !errors.As(err, &gitErr) {
		t.Fatalf("AddNote() error = %v, want GitError", err)
	}
	if gitErr.Revision != "abc" || !strings.Contains(gitErr.GitOutput, "bad object") {
		t.Errorf("GitError = %+v", gitErr)
	}
}

func TestGit_ListNotes_MissingRef(t *testing.T) {
	m := (&mockExecutor{}).add("", execFailure("")).add("", execFailure(""))
	notes, err := New("/repo", WithExecutor(m)).ListNotes(context.Background(), "driftguard")
	if err != nil || len(notes) != 0 {
		t.Errorf("ListNotes() = (%v, %v), want empty", notes, err)
	}
}

func TestTrimPrefix(t *testing.T) {
	paths := []string{"README.md", "app/", "app/main.go", "app/ui/view.go", "apple.go"}

	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{"work tree root", "", "README.md|app/|app/main.go|app/ui/view.go|apple.go"},
		{"subdirectory", "app/", "main.go|ui/view.go"},
		{"nested", "app/ui/", "view.go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strings.Join(trimPrefix(paths, tt.prefix), "|"); got != tt.want {
				t.Errorf("trimPrefix(%q) = %q, want %q", tt.prefix, got, tt.want)
			}
		})
	}
}

func TestGit_ChangedFilesRebasesOntoDirectory(t *testing.T) {
	exec := (&mockExecutor{}).
		add(" M app/main.go\x00?? docs/x.md\x00", nil).
		add("app/\n", nil)
	g := New("/repo/app", WithExecutor(exec))

	got, err := g.ChangedFiles(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != "main.go" {
		t.Errorf("ChangedFiles() = %v, want [main.go]", got)
	}
	if exec.lastArgs() != "rev-parse --show-prefix" {
		t.Errorf("last call = %q", exec.lastArgs())
	}
}

// blockingExecutor waits for the context like a hung git process.
type blockingExecutor struct{}

func (blockingExecutor) Run(ctx context.Context, _ string, _ string, _ ...string) ([]byte, error) {
	<-ctx.Done()
	return nil, &ExecError{Err: ctx.Err(), Stderr: "killed"}
}

func TestGit_TimeoutIsRetryable(t *testing.T) {
	g := New("/repo", WithExecutor(blockingExecutor{}), WithTimeout(20*time.Millisecond))

	_, err := g.Log(context.Background(), "a.go", time.Now(), 1)
	if !errors.Is(err, errors.ErrTimeout) {
		t.Fatalf("Log() error = %v, want ErrTimeout", err)
	}
	var gitErr *errors.GitError
	if !errors.As(err, &gitErr) || gitErr.GitOutput != "killed" {
		t.Errorf("timeout should keep git context, got %v", err)
	}
	var timeoutErr *errors.TimeoutError
	if !errors.As(err, &timeoutErr) || timeoutErr.Operation != "git log" {
		t.Errorf("TimeoutError = %+v", timeoutErr)
	}
	if !errors.IsRetryable(err) {
		t.Error("IsRetryable() = false for a git timeout")
	}

	// A failure that is not a deadline stays a plain git error.
	failing := New("/repo", WithExecutor((&mockExecutor{}).add("", execFailure("fatal: bad"))))
	if _, err := failing.Log(context.Background(), "a.go", time.Now(), 1); errors.Is(err, errors.ErrTimeout) {
		t.Errorf("non-deadline failure reported as timeout: %v", err)
	}
}

// -----------------------------------------------------------------------------
// Integration Tests
// -----------------------------------------------------------------------------

func TestGit_Integration(t *testing.T) {
	dir := testutil.SetupTestRepoWithContent(t, map[string]string{
		"src/a.go":   "package src\n",
		".gitignore": "*.log\n",
	})
	ctx := context.Background()
	g := New(dir)

	if !g.IsRepo(ctx) {
		t.Fatal("IsRepo() = false")
	}
	head, err := g.Head(ctx)
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if head != testutil.HeadHash(t, dir) {
		t.Errorf("Head() = %q", head)
	}

	testutil.WriteFile(t, dir, "src/a.go", "package src\n\nvar x = 1\n")
	testutil.WriteFile(t, dir, "src/b.go", "package src\n")
	testutil.WriteFile(t, dir, "debug.log", "ignored\n")

	changed, err := g.ChangedFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(changed, ",") != "src/a.go,src/b.go" {
		t.Errorf("ChangedFiles() = %v", changed)
	}

	stat, err := g.DiffStat(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stat.Files != 1 || stat.Insertions != 2 {
		t.Errorf("DiffStat() = %+v", stat)
	}

	files, err := g.ListFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(files, ",") != ".gitignore,README.md,src/a.go,src/b.go" {
		t.Errorf("ListFiles() = %v", files)
	}

	commits, err := g.Log(ctx, "src/a.go", time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 1 || commits[0].AuthorEmail != testutil.TestAuthorEmail {
		t.Errorf("Log() = %+v", commits)
	}

	if err := g.AddNote(ctx, "dgtest", head, "first"); err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}
	if err := g.AddNote(ctx, "dgtest", head, "second"); err != nil {
		t.Fatalf("AddNote() overwrite error = %v", err)
	}
	note, err := g.ShowNote(ctx, "dgtest", head)
	if err != nil || strings.TrimSpace(note) != "second" {
		t.Errorf("ShowNote() = (%q, %v)", note, err)
	}
	notes, err := g.ListNotes(ctx, "dgtest")
	if err != nil || len(notes) != 1 || notes[0].Commit != head {
		t.Errorf("ListNotes() = (%+v, %v)", notes, err)
	}
	if empty, err := g.ListNotes(ctx, "never-written"); err != nil || len(empty) != 0 {
		t.Errorf("ListNotes(missing) = (%v, %v)", empty, err)
	}
}

func TestGit_SubdirectoryPathsShareOneBase(t *testing.T) {
	root := testutil.SetupTestRepoWithContent(t, map[string]string{
		"app/main.go": "package main\n",
		"lib/util.go": "package lib\n",
	})
	ctx := context.Background()
	g := New(filepath.Join(root, "app"))

	testutil.WriteFile(t, root, "app/main.go", "package main\n\nfunc main() {}\n")
	testutil.WriteFile(t, root, "app/new.go", "package main\n")
	testutil.WriteFile(t, root, "lib/util.go", "package lib\n\nvar x = 1\n")

	changed, err := g.ChangedFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(changed, ",") != "main.go,new.go" {
		t.Errorf("ChangedFiles() = %v", changed)
	}
	files, err := g.ListFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(files, ",") != "main.go,new.go" {
		t.Errorf("ListFiles() = %v", files)
	}
	stat, err := g.DiffStat(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stat.Files != 1 {
		t.Errorf("DiffStat() = %+v, want only app/main.go", stat)
	}
}

func TestGit_EmptyRepoAndPlainDir(t *testing.T) {
	ctx := context.Background()

	empty := testutil.SetupEmptyRepo(t)
	if _, err := New(empty).Head(ctx); !errors.Is(err, errors.ErrNoHead) {
		t.Errorf("Head() on empty repo = %v, want ErrNoHead", err)
	}

	plain := t.TempDir()
	if err := os.WriteFile(filepath.Join(plain, "x"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	g := New(plain)
	if g.IsRepo(ctx) {
		t.Skip("temp dir is inside a git work tree")
	}
	if _, err := g.Head(ctx); !errors.Is(err, errors.ErrNotGitRepository) {
		t.Errorf("Head() outside repo = %v, want ErrNotGitRepository", err)
	}
}
