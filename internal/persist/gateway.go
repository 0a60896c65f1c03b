// Package persist writes the authoritative state snapshot and its derived
// PLAN.md summary, and reads the snapshot back on startup.
package persist

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kaptinlin/jsonschema"

	"github.com/Iron-Ham/driftguard/internal/errors"
	"github.com/Iron-Ham/driftguard/internal/logging"
	"github.com/Iron-Ham/driftguard/internal/model"
)

const (
	// StateFile is the snapshot file name inside the state directory.
	StateFile = "state.json"
	// PlanFile is the derived summary. It is never read back.
	PlanFile = "PLAN.md"
)

// ErrNoSnapshot is returned by Load when no snapshot has been written yet.
var ErrNoSnapshot = errors.New("no snapshot")

//go:embed schema/state.schema.json
var stateSchema []byte

// Gateway owns the on-disk snapshot. It has a single writer: the engine.
type Gateway struct {
	dir    string
	schema *jsonschema.Schema
	logger *logging.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger used for hydration warnings.
func WithLogger(logger *logging.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New creates a Gateway rooted at dir. The directory is created lazily on
// the first Save.
func New(dir string, opts ...Option) (*Gateway, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(stateSchema)
	if err != nil {
		return nil, fmt.Errorf("compile state schema: %w", err)
	}

	g := &Gateway{
		dir:    dir,
		schema: schema,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Dir returns the state directory.
func (g *Gateway) Dir() string { return g.dir }

// StatePath returns the snapshot path.
func (g *Gateway) StatePath() string { return filepath.Join(g.dir, StateFile) }

// PlanPath returns the PLAN.md path.
func (g *Gateway) PlanPath() string { return filepath.Join(g.dir, PlanFile) }

// Save writes the snapshot atomically, then regenerates PLAN.md.
func (g *Gateway) Save(snap *model.Snapshot) error {
	if snap == nil {
		return errors.NewValidationError("snapshot is nil")
	}
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	out := *snap
	if out.Version == "" {
		out.Version = model.SnapshotVersion
	}
	if out.Tasks == nil {
		out.Tasks = map[string]*model.Task{}
	}
	if out.Logs == nil {
		out.Logs = []model.LogEntry{}
	}

	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := atomicWriteFile(g.StatePath(), data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := atomicWriteFile(g.PlanPath(), []byte(RenderPlan(&out)), 0o644); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	return nil
}

// Load reads and validates the snapshot. A missing file yields
// ErrNoSnapshot; an unparsable or schema-invalid file yields a
// ValidationError. A version other than model.SnapshotVersion is logged
// and accepted.
func (g *Gateway) Load() (*model.Snapshot, error) {
	data, err := os.ReadFile(g.StatePath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	if err := g.Validate(data); err != nil {
		return nil, err
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.NewValidationError("snapshot is not valid JSON").
			WithField(StateFile).WithCause(err)
	}
	if snap.Version != model.SnapshotVersion {
		g.logger.Warn("snapshot version mismatch",
			"found", snap.Version,
			"expected", model.SnapshotVersion)
	}
	if snap.Tasks == nil {
		snap.Tasks = map[string]*model.Task{}
	}
	if snap.Session.FileHashes == nil {
		snap.Session.FileHashes = map[string]string{}
	}
	return &snap, nil
}

// Validate checks raw snapshot bytes against the embedded schema.
func (g *Gateway) Validate(data []byte) error {
	if !json.Valid(data) {
		return errors.NewValidationError("snapshot is not valid JSON").WithField(StateFile)
	}
	result := g.schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return errors.NewValidationError(fmt.Sprintf("snapshot schema validation failed: %v", result.Errors)).
		WithField(StateFile)
}

// atomicWriteFile writes data to a temporary file in the target directory
// and renames it into place, so readers never see a partial file.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	success = true
	return nil
}
