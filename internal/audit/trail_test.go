package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Iron-Ham/driftguard/internal/errors"
	"github.com/Iron-Ham/driftguard/internal/testutil"
	"github.com/Iron-Ham/driftguard/internal/vcs"
)

// memNotes is an in-memory notes store keyed by revision.
type memNotes struct {
	repo    bool
	head    string
	headErr error
	addErr  error
	notes   map[string]string
}

func newMemNotes(head string) *memNotes {
	return &memNotes{repo: true, head: head, notes: make(map[string]string)}
}

func (m *memNotes) IsRepo(context.Context) bool { return m.repo }

func (m *memNotes) Head(context.Context) (string, error) { return m.head, m.headErr }

func (m *memNotes) AddNote(_ context.Context, _, rev, msg string) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.notes[rev] = msg
	return nil
}

func (m *memNotes) ShowNote(_ context.Context, _, rev string) (string, error) {
	n, ok := m.notes[rev]
	if !ok {
		return "", errors.New("no note")
	}
	return n, nil
}

func (m *memNotes) ListNotes(context.Context, string) ([]vcs.Note, error) {
	var out []vcs.Note
	for rev := range m.notes {
		out = append(out, vcs.Note{Object: "blob-" + rev, Commit: rev})
	}
	return out, nil
}

func record(task string, at time.Time) Record {
	return Record{
		TaskID:         task,
		Title:          "title " + task,
		Intent:         "intent",
		Summary:        "summary",
		Timestamp:      at,
		ChangedFiles:   []string{"src/a.go"},
		CompletedItems: 1,
		TotalItems:     2,
	}
}

func TestDigest_IgnoresDigestField(t *testing.T) {
	rec := record("t1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	a, err := Digest(rec)
	if err != nil {
		t.Fatal(err)
	}
	rec.Digest = "something"
	b, _ := Digest(rec)
	if a != b || len(a) != 64 {
		t.Errorf("Digest() = %q / %q", a, b)
	}

	rec.Summary = "different"
	c, _ := Digest(rec)
	if c == a {
		t.Error("digest should change with content")
	}
}

func TestWriteNote_Skips(t *testing.T) {
	tests := []struct {
		name  string
		notes Notes
	}{
		{"nil adapter", nil},
		{"not a repo", &memNotes{repo: false}},
		{"no head", &memNotes{repo: true, headErr: errors.NewGitError("no head", errors.ErrNoHead)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := NewTrail(tt.notes).WriteNote(context.Background(), record("t", time.Now()))
			if ok || err != nil {
				t.Errorf("WriteNote() = (%v, %v), want (false, nil)", ok, err)
			}
		})
	}
}

func TestWriteNote_PropagatesGitFailure(t *testing.T) {
	m := newMemNotes("abc")
	m.addErr = errors.NewGitError("failed to write note", nil)

	ok, err := NewTrail(m).WriteNote(context.Background(), record("t", time.Now()))
	if ok || err == nil {
		t.Errorf("WriteNote() = (%v, %v), want failure", ok, err)
	}
}

func TestReconstructHistory(t *testing.T) {
	m := newMemNotes("rev1")
	trail := NewTrail(m)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	if ok, err := trail.WriteNote(ctx, record("old", base)); !ok || err != nil {
		t.Fatalf("WriteNote() = (%v, %v)", ok, err)
	}
	m.head = "rev2"
	if ok, err := trail.WriteNote(ctx, record("new", base.Add(time.Hour))); !ok || err != nil {
		t.Fatalf("WriteNote() = (%v, %v)", ok, err)
	}

	// Tamper with one note and add garbage on another revision.
	var tampered Record
	_ = json.Unmarshal([]byte(m.notes["rev1"]), &tampered)
	tampered.Summary = "rewritten"
	body, _ := json.Marshal(tampered)
	m.notes["rev1"] = string(body)
	m.notes["rev3"] = "not json"

	entries, err := trail.ReconstructHistory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("ReconstructHistory() returned %d entries, want 2", len(entries))
	}
	if entries[0].TaskID != "new" || entries[0].Revision != "rev2" || !entries[0].Verified {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].TaskID != "old" || entries[1].Verified {
		t.Errorf("entries[1] = %+v, want unverified", entries[1])
	}
}

func TestTrail_GitRoundTrip(t *testing.T) {
	dir := testutil.SetupTestRepo(t)
	ctx := context.Background()
	trail := NewTrail(vcs.New(dir), WithRef("dgtest"))

	rec := record("task-1", time.Now().UTC())
	ok, err := trail.WriteNote(ctx, rec)
	if !ok || err != nil {
		t.Fatalf("WriteNote() = (%v, %v)", ok, err)
	}

	// Overwrite at the same head.
	rec.Summary = "second checkpoint"
	if ok, err := trail.WriteNote(ctx, rec); !ok || err != nil {
		t.Fatalf("WriteNote() overwrite = (%v, %v)", ok, err)
	}

	entries, err := trail.ReconstructHistory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Summary != "second checkpoint" || e.Revision != testutil.HeadHash(t, dir) || !e.Verified {
		t.Errorf("entry = %+v", e)
	}
	if e.CompletedItems != 1 || e.TotalItems != 2 || len(e.ChangedFiles) != 1 {
		t.Errorf("entry counts = %+v", e.Record)
	}
	if trail.Ref() != "dgtest" {
		t.Errorf("Ref() = %q", trail.Ref())
	}
}

func TestTrail_EmptyRepository(t *testing.T) {
	dir := testutil.SetupEmptyRepo(t)
	ok, err := NewTrail(vcs.New(dir)).WriteNote(context.Background(), record("t", time.Now()))
	if ok || err != nil {
		t.Errorf("WriteNote() on empty repo = (%v, %v), want (false, nil)", ok, err)
	}
}
