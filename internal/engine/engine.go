// Package engine is the session/scope coordination engine. It owns the
// session, the task registry and the activity log, enforces the focus state
// machine, and consults the scope coordinator, integrity monitor, risk
// scorer and audit trail before committing each operation through the
// persistence gateway.
//
// An Engine is constructed once per process and shared by every surface
// (CLI, MCP tools, HTTP). Operations are serialized by a single mutex; the
// focus machine has its own lock so Panic lands immediately.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/driftguard/internal/audit"
	"github.com/Iron-Ham/driftguard/internal/config"
	"github.com/Iron-Ham/driftguard/internal/errors"
	"github.com/Iron-Ham/driftguard/internal/event"
	"github.com/Iron-Ham/driftguard/internal/focus"
	"github.com/Iron-Ham/driftguard/internal/integrity"
	"github.com/Iron-Ham/driftguard/internal/logging"
	"github.com/Iron-Ham/driftguard/internal/model"
	"github.com/Iron-Ham/driftguard/internal/persist"
	"github.com/Iron-Ham/driftguard/internal/risk"
	"github.com/Iron-Ham/driftguard/internal/runner"
	"github.com/Iron-Ham/driftguard/internal/scope"
	"github.com/Iron-Ham/driftguard/internal/vcs"
)

// Repository is everything the engine needs from revision control. The git
// adapter in internal/vcs satisfies it.
type Repository interface {
	integrity.FileLister
	risk.History
	audit.Notes
	ChangedFiles(ctx context.Context) ([]string, error)
	DiffStat(ctx context.Context) (vcs.DiffStat, error)
}

// Engine coordinates one session.
type Engine struct {
	mu sync.Mutex

	root    string
	cfg     *config.Config
	machine *focus.Machine
	session model.Session
	tasks   map[string]*model.Task
	logs    *LogQueue

	repo        Repository
	coordinator *scope.Coordinator
	monitor     *integrity.Monitor
	scorer      *risk.Scorer
	trail       *audit.Trail
	runner      *runner.Runner
	gateway     *persist.Gateway

	bus    *event.Bus
	logger *logging.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Child loggers are derived from it.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithBus sets the event bus operations publish to.
func WithBus(bus *event.Bus) Option {
	return func(e *Engine) {
		e.bus = bus
	}
}

// WithRepository replaces the git adapter.
func WithRepository(repo Repository) Option {
	return func(e *Engine) {
		e.repo = repo
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Engine for the project at root. The session starts fresh
// in memory; call Initialize to hydrate from or create the snapshot.
func New(root string, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve project root %s", root)
	}

	e := &Engine{
		root:    abs,
		cfg:     cfg,
		machine: focus.NewMachine(),
		tasks:   make(map[string]*model.Task),
		logs:    NewLogQueue(LogCapacity),
		logger:  logging.NopLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.repo == nil {
		e.repo = vcs.New(abs)
	}

	stateDir := cfg.State.ResolveStateDir(abs)
	e.gateway, err = persist.New(stateDir, persist.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}

	e.coordinator = scope.NewCoordinator(
		scope.WithSymmetricExclusivity(cfg.Scope.SymmetricExclusivity),
		scope.WithClock(e.now),
	)
	e.monitor = integrity.NewMonitor(abs,
		integrity.WithLister(e.repo),
		integrity.WithSkipDirs(filepath.Base(stateDir), "node_modules"),
		integrity.WithLogger(e.logger),
	)
	e.scorer = risk.NewScorer(e.repo,
		risk.WithWindow(cfg.Risk.Window()),
		risk.WithMaxCommits(cfg.Risk.MaxCommits),
		risk.WithClock(e.now),
		risk.WithLogger(e.logger),
	)
	e.trail = audit.NewTrail(e.repo,
		audit.WithRef(cfg.Audit.NotesRef),
		audit.WithLogger(e.logger),
	)
	e.runner = runner.New(abs,
		runner.WithTimeout(cfg.Verify.Timeout),
		runner.WithMaxOutputBytes(cfg.Verify.MaxOutputBytes),
		runner.WithLogger(e.logger),
	)

	e.session = e.freshSession()
	return e, nil
}

// Root returns the project root.
func (e *Engine) Root() string { return e.root }

// StateDir returns the directory holding the snapshot.
func (e *Engine) StateDir() string { return e.gateway.Dir() }

// Bus returns the event bus, which may be nil.
func (e *Engine) Bus() *event.Bus { return e.bus }

// State returns the current focus state without waiting on an in-flight
// operation.
func (e *Engine) State() focus.State { return e.machine.State() }

// Initialize hydrates from the snapshot if one is valid, otherwise starts
// and persists a fresh session.
func (e *Engine) Initialize(ctx context.Context) (InitResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hydrateLocked() {
		e.logger.Info("session hydrated", "session_id", e.session.ID, "tasks", len(e.tasks))
		return InitResult{Status: StatusHydrated, SessionID: e.session.ID}, nil
	}

	e.session = e.freshSession()
	e.tasks = make(map[string]*model.Task)
	e.logs.Replace(nil)
	e.machine.Reset()
	e.appendLog("initialize", "", "session "+e.session.ID)
	if err := e.persistLocked(); err != nil {
		return InitResult{}, err
	}

	e.logger.Info("session created", "session_id", e.session.ID, "state_dir", e.gateway.Dir())
	return InitResult{Status: StatusCreated, SessionID: e.session.ID}, nil
}

// Hydrate reloads the snapshot. It reports false, leaving the in-memory
// session untouched, when the snapshot is missing or invalid.
func (e *Engine) Hydrate(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hydrateLocked()
}

func (e *Engine) hydrateLocked() bool {
	snap, err := e.gateway.Load()
	if err != nil {
		if !errors.Is(err, persist.ErrNoSnapshot) {
			e.logger.Warn("snapshot not hydrated", "path", e.gateway.StatePath(), "error", err)
		}
		return false
	}

	e.session = snap.Session
	e.tasks = snap.Tasks
	e.logs.Replace(snap.Logs)
	e.machine.Restore(snap.Session.State)

	if id := e.session.ActiveTaskID; id != "" && e.tasks[id] == nil {
		e.logger.Warn("snapshot names a missing active task; clearing it", "task_id", id)
		e.session.ActiveTaskID = ""
		e.session.ActiveStepID = ""
		e.session.IntentFiled = false
	}
	// Task claim lists are authoritative; the session list is a cache.
	e.rebuildClaimCache()
	return true
}

// Reset starts a fresh session: new id, IDLE, every claim released and the
// integrity cache cleared. Tasks are kept for audit.
func (e *Engine) Reset(ctx context.Context) (ResetResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prevID := e.session.ID
	released := 0
	for _, t := range e.tasks {
		if n := len(t.Claims); n > 0 {
			released += n
			t.Claims = nil
			t.UpdatedAt = e.now()
			e.bus.Publish(event.NewScopeReleasedEvent(t.ID, n))
		}
	}

	prevState := e.machine.Reset()
	e.session = e.freshSession()
	e.appendLog("reset", "", fmt.Sprintf("previous session %s; released %d claims", prevID, released))
	if err := e.persistLocked(); err != nil {
		return ResetResult{}, err
	}

	e.logger.Info("session reset", "previous_session_id", prevID, "session_id", e.session.ID, "released", released)
	e.bus.Publish(event.NewSessionResetEvent(prevID, e.session.ID, released))
	e.bus.Publish(event.NewStateChangedEvent(e.session.ID, "reset", string(prevState), string(focus.StateIdle)))

	return ResetResult{
		PreviousSessionID: prevID,
		SessionID:         e.session.ID,
		ReleasedClaims:    released,
		State:             focus.StateIdle,
	}, nil
}

// Status returns a read-only view of the session.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		SessionID:    e.session.ID,
		StartedAt:    e.session.StartedAt,
		State:        e.machine.State(),
		ActiveStepID: e.session.ActiveStepID,
		IntentFiled:  e.session.IntentFiled,
		IsVerified:   e.session.IsVerified,
		ActiveClaims: slices.Clone(e.session.ActiveClaims),
		TaskCount:    len(e.tasks),
		LogCount:     e.logs.Len(),
		RecentLogs:   e.logs.Recent(5),
	}
	if t := e.activeTask(); t != nil {
		st.ActiveTask = t.Clone()
	}
	return st
}

// Task returns a copy of the task with id.
func (e *Engine) Task(id string) (*model.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tasks[id]
	if !ok {
		return nil, errors.NewNotFoundError("task", id).WithCause(errors.ErrTaskNotFound)
	}
	return t.Clone(), nil
}

// Tasks returns copies of every task, oldest first.
func (e *Engine) Tasks() []*model.Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*model.Task, 0, len(e.tasks))
	for _, t := range e.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Logs returns the retained activity log, oldest first.
func (e *Engine) Logs() []model.LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.logs.Entries()
}

func (e *Engine) freshSession() model.Session {
	return model.Session{
		ID:           uuid.NewString(),
		StartedAt:    e.now(),
		State:        focus.StateIdle,
		ActiveClaims: []scope.Claim{},
		FileHashes:   map[string]string{},
	}
}

func (e *Engine) activeTask() *model.Task {
	if e.session.ActiveTaskID == "" {
		return nil
	}
	return e.tasks[e.session.ActiveTaskID]
}

// requireActiveTask returns the active task or a NoActiveTaskError.
func (e *Engine) requireActiveTask(op focus.Action) (*model.Task, error) {
	t := e.activeTask()
	if t == nil {
		return nil, errors.NewNoActiveTaskError(string(op))
	}
	return t, nil
}

func (e *Engine) parentOf(taskID string) string {
	if t := e.tasks[taskID]; t != nil {
		return t.ParentTaskID
	}
	return ""
}

// rebuildClaimCache recomputes the session claim list from every task.
func (e *Engine) rebuildClaimCache() {
	claims := []scope.Claim{}
	for _, t := range e.tasks {
		claims = append(claims, t.Claims...)
	}
	sort.Slice(claims, func(i, j int) bool {
		if claims[i].TaskID != claims[j].TaskID {
			return claims[i].TaskID < claims[j].TaskID
		}
		return claims[i].Pattern < claims[j].Pattern
	})
	e.session.ActiveClaims = claims
}

// transition moves the machine and publishes the change. It reports false
// when a concurrent Panic already holds the machine.
func (e *Engine) transition(action focus.Action, next focus.State) bool {
	prev, ok := e.machine.Transition(next)
	if !ok {
		e.logger.Warn("transition suppressed by panic", "action", string(action), "wanted", string(next))
		return false
	}
	if prev != next {
		e.bus.Publish(event.NewStateChangedEvent(e.session.ID, string(action), string(prev), string(next)))
	}
	return true
}

func (e *Engine) appendLog(action, taskID, detail string) {
	e.logs.Push(model.LogEntry{
		Timestamp: e.now(),
		Action:    action,
		TaskID:    taskID,
		Detail:    detail,
	})
}

func (e *Engine) snapshot() *model.Snapshot {
	sess := e.session
	sess.State = e.machine.State()
	return &model.Snapshot{
		Version: model.SnapshotVersion,
		Session: sess,
		Tasks:   e.tasks,
		Logs:    e.logs.Entries(),
	}
}

func (e *Engine) persistLocked() error {
	if err := e.gateway.Save(e.snapshot()); err != nil {
		e.logger.Error("failed to persist snapshot", "path", e.gateway.StatePath(), "error", err)
		return err
	}
	return nil
}

// refreshBaseline rehashes the files matched by patterns and replaces their
// entries in the session cache.
func (e *Engine) refreshBaseline(ctx context.Context, patterns []string) error {
	if len(patterns) == 0 {
		return nil
	}
	hashes, err := e.monitor.CalculateFileHashes(ctx, patterns)
	if err != nil {
		return err
	}
	if e.session.FileHashes == nil {
		e.session.FileHashes = make(map[string]string)
	}
	for path := range e.session.FileHashes {
		if scope.MatchesAny(patterns, path) {
			delete(e.session.FileHashes, path)
		}
	}
	for path, sum := range hashes {
		e.session.FileHashes[path] = sum
	}
	return nil
}

func (e *Engine) newTaskID() string {
	for {
		id := "task-" + uuid.NewString()[:8]
		if _, taken := e.tasks[id]; !taken {
			return id
		}
	}
}

func newStepID() string {
	return "step-" + uuid.NewString()[:8]
}
