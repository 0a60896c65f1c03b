// Package audit records checkpoint summaries as git notes attached to the
// head revision, in a notes ref of their own, and rebuilds the checkpoint
// history from those notes alone.
//
// Each record carries a digest of its RFC 8785 canonical JSON form so that
// hand-edited notes are reported as unverified on reconstruction.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/Iron-Ham/driftguard/internal/errors"
	"github.com/Iron-Ham/driftguard/internal/logging"
	"github.com/Iron-Ham/driftguard/internal/vcs"
)

// DefaultRef is the notes ref short name, i.e. refs/notes/driftguard.
const DefaultRef = "driftguard"

// Record is one checkpoint's audit entry.
type Record struct {
	TaskID         string    `json:"taskId"`
	Title          string    `json:"title"`
	Intent         string    `json:"intent"`
	Summary        string    `json:"summary"`
	Timestamp      time.Time `json:"timestamp"`
	ChangedFiles   []string  `json:"changedFiles"`
	CompletedItems int       `json:"completedItems"`
	TotalItems     int       `json:"totalItems"`
	Digest         string    `json:"digest,omitempty"`
}

// Entry is a reconstructed record and the revision it is attached to.
type Entry struct {
	Record
	Revision string `json:"revision"`
	Verified bool   `json:"verified"`
}

// Notes is the subset of the git adapter the trail needs.
type Notes interface {
	IsRepo(ctx context.Context) bool
	Head(ctx context.Context) (string, error)
	AddNote(ctx context.Context, ref, rev, message string) error
	ShowNote(ctx context.Context, ref, rev string) (string, error)
	ListNotes(ctx context.Context, ref string) ([]vcs.Note, error)
}

// Trail reads and writes audit notes.
type Trail struct {
	notes  Notes
	ref    string
	logger *logging.Logger
}

// Option configures a Trail.
type Option func(*Trail)

// WithRef sets the notes ref short name.
func WithRef(ref string) Option {
	return func(t *Trail) {
		if ref != "" {
			t.ref = ref
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(t *Trail) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTrail creates a Trail. A nil notes adapter disables writing.
func NewTrail(notes Notes, opts ...Option) *Trail {
	t := &Trail{
		notes:  notes,
		ref:    DefaultRef,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Ref returns the notes ref short name.
func (t *Trail) Ref() string {
	return t.ref
}

// Digest returns the sha256 of the record's canonical JSON, computed with
// the Digest field cleared.
func Digest(rec Record) (string, error) {
	rec.Digest = ""
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// WriteNote attaches rec to HEAD, overwriting any existing note. It returns
// false without error outside a repository or before the first commit.
func (t *Trail) WriteNote(ctx context.Context, rec Record) (bool, error) {
	if t.notes == nil || !t.notes.IsRepo(ctx) {
		return false, nil
	}

	head, err := t.notes.Head(ctx)
	if err != nil {
		if errors.Is(err, errors.ErrNoHead) || errors.Is(err, errors.ErrNotGitRepository) {
			return false, nil
		}
		return false, err
	}

	if rec.ChangedFiles == nil {
		rec.ChangedFiles = []string{}
	}
	digest, err := Digest(rec)
	if err != nil {
		return false, errors.Wrap(err, "failed to digest audit record")
	}
	rec.Digest = digest

	body, err := json.Marshal(rec)
	if err != nil {
		return false, errors.Wrap(err, "failed to encode audit record")
	}
	if err := t.notes.AddNote(ctx, t.ref, head, string(body)); err != nil {
		return false, err
	}

	t.logger.Info("audit note written", "task_id", rec.TaskID, "revision", head, "ref", t.ref)
	return true, nil
}

// ReconstructHistory reads every note in the ref, newest first by record
// timestamp. Notes that cannot be read or parsed are skipped.
func (t *Trail) ReconstructHistory(ctx context.Context) ([]Entry, error) {
	if t.notes == nil || !t.notes.IsRepo(ctx) {
		return nil, nil
	}

	notes, err := t.notes.ListNotes(ctx, t.ref)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(notes))
	for _, n := range notes {
		body, err := t.notes.ShowNote(ctx, t.ref, n.Commit)
		if err != nil {
			t.logger.Warn("skipping unreadable audit note", "revision", n.Commit, "error", err)
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			t.logger.Warn("skipping unparsable audit note", "revision", n.Commit, "error", err)
			continue
		}

		want, err := Digest(rec)
		entries = append(entries, Entry{
			Record:   rec,
			Revision: n.Commit,
			Verified: err == nil && rec.Digest != "" && rec.Digest == want,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}
