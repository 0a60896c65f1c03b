package vcs

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/driftguard/internal/errors"
)

// Commit is one entry of a path's history.
type Commit struct {
	Hash        string    `json:"hash"`
	AuthorName  string    `json:"authorName"`
	AuthorEmail string    `json:"authorEmail"`
	When        time.Time `json:"when"`
}

// DiffStat summarizes working-tree changes against HEAD.
type DiffStat struct {
	Files      int `json:"files"`
	Insertions int `json:"insertions"`
	Deletions  int `json:"deletions"`
}

// String renders the stat like git's --shortstat.
func (d DiffStat) String() string {
	return fmt.Sprintf("%d files changed, %d insertions(+), %d deletions(-)", d.Files, d.Insertions, d.Deletions)
}

// Note is a noted revision in a notes ref.
type Note struct {
	Object string // blob holding the note text
	Commit string // annotated revision
}

// DefaultTimeout bounds a single git invocation.
const DefaultTimeout = 30 * time.Second

// Git runs git commands against one working directory.
type Git struct {
	dir      string
	executor CommandExecutor
	timeout  time.Duration
}

// Option configures a Git adapter.
type Option func(*Git)

// WithExecutor replaces the command executor, mainly for tests.
func WithExecutor(executor CommandExecutor) Option {
	return func(g *Git) {
		if executor != nil {
			g.executor = executor
		}
	}
}

// WithTimeout bounds each git invocation. Zero or negative disables the
// bound and leaves only the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(g *Git) {
		g.timeout = d
	}
}

// New creates a Git adapter rooted at dir.
func New(dir string, opts ...Option) *Git {
	g := &Git{
		dir:      dir,
		executor: NewCLICommandExecutor(),
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dir returns the directory git runs in.
func (g *Git) Dir() string {
	return g.dir
}

// run executes git. A call cut off by a deadline fails with a TimeoutError
// so callers can tell a slow repository from a broken one.
func (g *Git) run(ctx context.Context, args ...string) ([]byte, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	start := time.Now()
	out, err := g.executor.Run(ctx, g.dir, "git", args...)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		op := "git"
		if len(args) > 0 {
			op += " " + args[0]
		}
		return out, errors.NewTimeoutError(op, time.Since(start).Round(time.Millisecond)).WithCause(err)
	}
	return out, err
}

func (g *Git) gitError(msg string, err error) *errors.GitError {
	return errors.NewGitError(msg, err).
		WithRepository(g.dir).
		WithGitOutput(stderrOf(err))
}

// IsRepo reports whether the directory is inside a git work tree.
func (g *Git) IsRepo(ctx context.Context) bool {
	out, err := g.run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// Head returns the full hash of HEAD. A repository without commits yields
// an error matching errors.ErrNoHead.
func (g *Git) Head(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "--verify", "--quiet", "HEAD")
	if err != nil {
		if !g.IsRepo(ctx) {
			return "", g.gitError("failed to resolve HEAD", errors.Join(errors.ErrNotGitRepository, err))
		}
		return "", g.gitError("failed to resolve HEAD", errors.Join(errors.ErrNoHead, err))
	}
	head := strings.TrimSpace(string(out))
	if head == "" {
		return "", g.gitError("failed to resolve HEAD", errors.ErrNoHead)
	}
	return head, nil
}

// ChangedFiles lists paths that differ from HEAD, including untracked files
// that are not ignored. Renames report the new path. Paths are relative to
// the adapter's directory, like ListFiles; changes outside it are dropped.
func (g *Git) ChangedFiles(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, "status", "--porcelain=v1", "-z", "--untracked-files=all")
	if err != nil {
		return nil, g.gitError("failed to read git status", err)
	}
	prefix, err := g.Prefix(ctx)
	if err != nil {
		return nil, err
	}
	return trimPrefix(parseStatusZ(out), prefix), nil
}

// Prefix returns the adapter directory's path below the work tree root,
// slash-terminated, or "" at the root.
func (g *Git) Prefix(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "--show-prefix")
	if err != nil {
		return "", g.gitError("failed to resolve directory prefix", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// trimPrefix rebases root-relative paths onto prefix, keeping only those
// inside it.
func trimPrefix(paths []string, prefix string) []string {
	if prefix == "" {
		return paths
	}
	var out []string
	for _, p := range paths {
		if rel, ok := strings.CutPrefix(p, prefix); ok && rel != "" {
			out = append(out, rel)
		}
	}
	return out
}

// parseStatusZ parses `git status --porcelain=v1 -z` output. Each record is
// "XY path"; rename and copy records are followed by the source path.
func parseStatusZ(out []byte) []string {
	fields := bytes.Split(out, []byte{0})
	seen := make(map[string]bool)
	var paths []string
	for i := 0; i < len(fields); i++ {
		rec := string(fields[i])
		if len(rec) < 4 {
			continue
		}
		x := rec[0]
		p := rec[3:]
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
		if x == 'R' || x == 'C' {
			i++
		}
	}
	sort.Strings(paths)
	return paths
}

// DiffStat summarizes tracked changes under the adapter's directory against
// HEAD.
func (g *Git) DiffStat(ctx context.Context) (DiffStat, error) {
	out, err := g.run(ctx, "diff", "--numstat", "--relative", "HEAD")
	if err != nil {
		return DiffStat{}, g.gitError("failed to compute diff stat", err)
	}
	return parseNumstat(out), nil
}

// parseNumstat sums `git diff --numstat` lines. Binary files count as
// changed with no line totals.
func parseNumstat(out []byte) DiffStat {
	var stat DiffStat
	for _, line := range strings.Split(string(out), "\n") {
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		stat.Files++
		if n, err := strconv.Atoi(parts[0]); err == nil {
			stat.Insertions += n
		}
		if n, err := strconv.Atoi(parts[1]); err == nil {
			stat.Deletions += n
		}
	}
	return stat
}

// ListFiles returns tracked files plus untracked files that are not ignored,
// as slash-separated paths relative to the adapter's directory.
func (g *Git) ListFiles(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, "ls-files", "-z", "--cached", "--others", "--exclude-standard")
	if err != nil {
		return nil, g.gitError("failed to list files", err)
	}

	seen := make(map[string]bool)
	var files []string
	for _, f := range bytes.Split(out, []byte{0}) {
		name := string(f)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

// logFieldSep separates fields in the log format below.
const logFieldSep = "\x1f"

// Log returns up to max commits touching path since the given time, newest
// first.
func (g *Git) Log(ctx context.Context, path string, since time.Time, max int) ([]Commit, error) {
	args := []string{
		"log",
		"--format=%H" + "%x1f" + "%an" + "%x1f" + "%ae" + "%x1f" + "%at",
		"--since=" + since.UTC().Format(time.RFC3339),
	}
	if max > 0 {
		args = append(args, "-n", strconv.Itoa(max))
	}
	args = append(args, "--", path)

	out, err := g.run(ctx, args...)
	if err != nil {
		return nil, g.gitError("failed to read history", err)
	}
	return parseLog(out), nil
}

func parseLog(out []byte) []Commit {
	var commits []Commit
	for _, line := range strings.Split(string(out), "\n") {
		parts := strings.Split(strings.TrimSpace(line), logFieldSep)
		if len(parts) != 4 {
			continue
		}
		secs, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			continue
		}
		commits = append(commits, Commit{
			Hash:        parts[0],
			AuthorName:  parts[1],
			AuthorEmail: parts[2],
			When:        time.Unix(secs, 0).UTC(),
		})
	}
	return commits
}

func notesRef(ref string) string {
	return "--ref=" + ref
}

// AddNote attaches message to rev under refs/notes/<ref>, replacing any
// existing note.
func (g *Git) AddNote(ctx context.Context, ref, rev, message string) error {
	if _, err := g.run(ctx, "notes", notesRef(ref), "add", "-f", "-m", message, rev); err != nil {
		return g.gitError("failed to write note", err).WithRevision(rev)
	}
	return nil
}

// ShowNote returns the note attached to rev under refs/notes/<ref>.
func (g *Git) ShowNote(ctx context.Context, ref, rev string) (string, error) {
	out, err := g.run(ctx, "notes", notesRef(ref), "show", rev)
	if err != nil {
		return "", g.gitError("failed to read note", err).WithRevision(rev)
	}
	return string(out), nil
}

// ListNotes returns every noted revision under refs/notes/<ref>. A ref that
// does not exist yet has no notes.
func (g *Git) ListNotes(ctx context.Context, ref string) ([]Note, error) {
	out, err := g.run(ctx, "notes", notesRef(ref), "list")
	if err != nil {
		if _, refErr := g.run(ctx, "show-ref", "--verify", "--quiet", "refs/notes/"+ref); refErr != nil {
			return nil, nil
		}
		return nil, g.gitError("failed to list notes", err)
	}

	var notes []Note
	for _, line := range strings.Split(string(out), "\n") {
		parts := strings.Fields(line)
		if len(parts) != 2 {
			continue
		}
		notes = append(notes, Note{Object: parts[0], Commit: parts[1]})
	}
	return notes, nil
}
