package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/driftguard/internal/config"
	"github.com/Iron-Ham/driftguard/internal/errors"
	"github.com/Iron-Ham/driftguard/internal/event"
	"github.com/Iron-Ham/driftguard/internal/vcs"
)

// fakeRepo is an in-memory Repository. With repo=false the engine behaves
// as it would outside a git repository.
type fakeRepo struct {
	mu         sync.Mutex
	repo       bool
	head       string
	files      []string
	changed    []string
	changedErr error
	stat       vcs.DiffStat
	commits    map[string][]vcs.Commit
	notes      map[string]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		repo:    true,
		head:    "0123456789abcdef0123456789abcdef01234567",
		commits: make(map[string][]vcs.Commit),
		notes:   make(map[string]string),
	}
}

func (f *fakeRepo) IsRepo(context.Context) bool { return f.repo }

func (f *fakeRepo) ListFiles(context.Context) ([]string, error) { return f.files, nil }

func (f *fakeRepo) Log(_ context.Context, path string, _ time.Time, max int) ([]vcs.Commit, error) {
	c := f.commits[path]
	if len(c) > max {
		c = c[:max]
	}
	return c, nil
}

func (f *fakeRepo) Head(context.Context) (string, error) {
	if !f.repo {
		return "", errors.ErrNotGitRepository
	}
	return f.head, nil
}

func (f *fakeRepo) AddNote(_ context.Context, _, rev, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes[rev] = msg
	return nil
}

func (f *fakeRepo) ShowNote(_ context.Context, _, rev string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notes[rev]
	if !ok {
		return "", errors.New("no note")
	}
	return n, nil
}

func (f *fakeRepo) ListNotes(context.Context, string) ([]vcs.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []vcs.Note
	for rev := range f.notes {
		out = append(out, vcs.Note{Object: "blob", Commit: rev})
	}
	return out, nil
}

func (f *fakeRepo) ChangedFiles(context.Context) ([]string, error) {
	if !f.repo {
		return nil, errors.ErrNotGitRepository
	}
	return f.changed, f.changedErr
}

func (f *fakeRepo) DiffStat(context.Context) (vcs.DiffStat, error) { return f.stat, nil }

// newTestEngine builds an initialized engine over a temp dir. A nil repo
// means "not a git repository".
func newTestEngine(t *testing.T, repo *fakeRepo, opts ...Option) (*Engine, string) {
	t.Helper()
	if repo == nil {
		repo = &fakeRepo{}
	}
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Logging.Enabled = false

	all := append([]Option{WithRepository(repo)}, opts...)
	e, err := New(dir, cfg, all...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return e, dir
}

// eventRecorder collects published event types.
type eventRecorder struct {
	mu    sync.Mutex
	types []string
}

func (r *eventRecorder) handle(ev event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, ev.EventType())
}

func (r *eventRecorder) has(eventType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.types {
		if t == eventType {
			return true
		}
	}
	return false
}

func propose(t *testing.T, e *Engine, scopes []string, items ...string) string {
	t.Helper()
	checklist := make([]ItemInput, len(items))
	for i, text := range items {
		checklist[i] = ItemInput{Text: text}
	}
	res, err := e.ProposeTask(context.Background(), TaskSpec{
		Title:     "task",
		Goal:      "goal",
		Scopes:    scopes,
		Checklist: checklist,
	})
	if err != nil {
		t.Fatalf("ProposeTask() error = %v", err)
	}
	return res.Task.ID
}

func fileIntent(t *testing.T, e *Engine, files ...string) {
	t.Helper()
	if _, err := e.ReportIntent(context.Background(), "do work", files); err != nil {
		t.Fatalf("ReportIntent() error = %v", err)
	}
}
