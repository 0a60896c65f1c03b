// Package integrity detects out-of-band edits to claimed files by comparing
// content hashes against the baseline taken when the claims were granted.
package integrity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/Iron-Ham/driftguard/internal/errors"
	"github.com/Iron-Ham/driftguard/internal/logging"
	"github.com/Iron-Ham/driftguard/internal/scope"
)

// Status is the outcome of a health check.
type Status string

const (
	StatusClean    Status = "CLEAN"
	StatusDirty    Status = "DIRTY"
	StatusNoClaims Status = "NO_CLAIMS"
)

// FindingKind classifies a drifted file.
type FindingKind string

const (
	FindingNew      FindingKind = "NEW"
	FindingModified FindingKind = "MODIFIED"
	FindingDeleted  FindingKind = "DELETED"
)

// Finding is one drifted file.
type Finding struct {
	Path string      `json:"path"`
	Kind FindingKind `json:"kind"`
}

// String renders "MODIFIED src/a.go".
func (f Finding) String() string {
	return string(f.Kind) + " " + f.Path
}

// Report is the result of a health check.
type Report struct {
	Status   Status    `json:"status"`
	Findings []Finding `json:"findings,omitempty"`
	Checked  int       `json:"checked"`
}

// FileLister enumerates project files. The git adapter satisfies it.
type FileLister interface {
	IsRepo(ctx context.Context) bool
	ListFiles(ctx context.Context) ([]string, error)
}

// Monitor hashes files under a project root.
type Monitor struct {
	root     string
	lister   FileLister
	skipDirs []string
	logger   *logging.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLister sets the file lister used inside a repository.
func WithLister(l FileLister) Option {
	return func(m *Monitor) {
		m.lister = l
	}
}

// WithSkipDirs adds directory names whose contents are never hashed.
func WithSkipDirs(names ...string) Option {
	return func(m *Monitor) {
		m.skipDirs = append(m.skipDirs, names...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMonitor creates a Monitor for the project at root.
func NewMonitor(root string, opts ...Option) *Monitor {
	m := &Monitor{
		root:     root,
		skipDirs: []string{".git"},
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CalculateFileHashes returns the sha256 of every project file matched by
// any pattern, keyed by slash-separated relative path. Files that vanish
// while being read are skipped.
func (m *Monitor) CalculateFileHashes(ctx context.Context, patterns []string) (map[string]string, error) {
	hashes := make(map[string]string)
	if len(patterns) == 0 {
		return hashes, nil
	}

	files, err := m.listFiles(ctx)
	if err != nil {
		return nil, err
	}

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !scope.MatchesAny(patterns, rel) {
			continue
		}
		sum, err := hashFile(filepath.Join(m.root, filepath.FromSlash(rel)))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				m.logger.Debug("skipping unreadable file", "path", rel, "error", err)
			}
			continue
		}
		if sum == "" {
			continue
		}
		hashes[rel] = sum
	}
	return hashes, nil
}

// Check compares the files currently matched by patterns against baseline.
// With no patterns the status is NO_CLAIMS. Baseline entries no longer
// matched by any pattern are ignored.
func (m *Monitor) Check(ctx context.Context, patterns []string, baseline map[string]string) (Report, error) {
	if len(patterns) == 0 {
		return Report{Status: StatusNoClaims}, nil
	}

	current, err := m.CalculateFileHashes(ctx, patterns)
	if err != nil {
		return Report{}, err
	}

	findings := Diff(patterns, baseline, current)
	report := Report{Status: StatusClean, Findings: findings, Checked: len(current)}
	if len(findings) > 0 {
		report.Status = StatusDirty
	}
	return report, nil
}

// Diff classifies differences between a baseline and a current snapshot,
// sorted by path.
func Diff(patterns []string, baseline, current map[string]string) []Finding {
	var findings []Finding
	for path, sum := range current {
		old, ok := baseline[path]
		switch {
		case !ok:
			findings = append(findings, Finding{Path: path, Kind: FindingNew})
		case old != sum:
			findings = append(findings, Finding{Path: path, Kind: FindingModified})
		}
	}
	for path := range baseline {
		if _, ok := current[path]; ok {
			continue
		}
		if scope.MatchesAny(patterns, path) {
			findings = append(findings, Finding{Path: path, Kind: FindingDeleted})
		}
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].Path < findings[j].Path })
	return findings
}

func (m *Monitor) listFiles(ctx context.Context) ([]string, error) {
	if m.lister == nil || !m.lister.IsRepo(ctx) {
		return m.walk()
	}
	files, err := m.lister.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	// Untracked listings include the state directory unless it is ignored.
	kept := make([]string, 0, len(files))
	for _, rel := range files {
		if !m.inSkippedDir(rel) {
			kept = append(kept, rel)
		}
	}
	return kept, nil
}

func (m *Monitor) inSkippedDir(rel string) bool {
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if slices.Contains(m.skipDirs, dir) {
			return true
		}
	}
	return false
}

// walk lists regular files under root when no repository is available.
func (m *Monitor) walk() ([]string, error) {
	skip := make(map[string]bool, len(m.skipDirs))
	for _, d := range m.skipDirs {
		skip[d] = true
	}

	var files []string
	err := filepath.WalkDir(m.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == m.root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != m.root && skip[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(m.root, path)
		if err != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk %s", m.root)
	}
	sort.Strings(files)
	return files, nil
}

// hashFile returns "" for anything that is not a regular file.
func hashFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
