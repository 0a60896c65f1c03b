package integrity

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Iron-Ham/driftguard/internal/testutil"
	"github.com/Iron-Ham/driftguard/internal/vcs"
)

type staticLister struct {
	repo  bool
	files []string
}

func (s staticLister) IsRepo(context.Context) bool                { return s.repo }
func (s staticLister) ListFiles(context.Context) ([]string, error) { return s.files, nil }

func TestCalculateFileHashes_Walk(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "src/a.go", "a")
	testutil.WriteFile(t, dir, "src/lib/b.go", "b")
	testutil.WriteFile(t, dir, "docs/x.md", "x")
	testutil.WriteFile(t, dir, ".driftguard/state.json", "{}")
	testutil.WriteFile(t, dir, ".git/HEAD", "ref")

	m := NewMonitor(dir, WithSkipDirs(".driftguard"))

	hashes, err := m.CalculateFileHashes(context.Background(), []string{"src/**", ".driftguard/**", ".git/**"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 2 {
		t.Fatalf("hashes = %v, want src/a.go and src/lib/b.go", hashes)
	}
	// sha256("a")
	if hashes["src/a.go"] != "ca978112ca1bbdcafac231b39a23dc4da786eff8147c4e72b9807785afee48bb" {
		t.Errorf("hash of src/a.go = %s", hashes["src/a.go"])
	}
}

func TestCalculateFileHashes_SkipsVanishedFiles(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.go", "a")

	m := NewMonitor(dir, WithLister(staticLister{repo: true, files: []string{"a.go", "gone.go"}}))
	hashes, err := m.CalculateFileHashes(context.Background(), []string{"*.go"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 1 || hashes["a.go"] == "" {
		t.Errorf("hashes = %v", hashes)
	}
}

func TestCalculateFileHashes_ListerSkipsStateDir(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.go", "a")
	testutil.WriteFile(t, dir, ".driftguard/state.json", "{}")

	lister := staticLister{repo: true, files: []string{"a.go", ".driftguard/state.json"}}
	m := NewMonitor(dir, WithLister(lister), WithSkipDirs(".driftguard"))
	hashes, err := m.CalculateFileHashes(context.Background(), []string{"**"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 1 || hashes["a.go"] == "" {
		t.Errorf("hashes = %v, want only a.go", hashes)
	}
}

func TestCalculateFileHashes_NoPatterns(t *testing.T) {
	hashes, err := NewMonitor(t.TempDir()).CalculateFileHashes(context.Background(), nil)
	if err != nil || len(hashes) != 0 {
		t.Errorf("CalculateFileHashes(nil) = (%v, %v)", hashes, err)
	}
}

func TestDiff(t *testing.T) {
	patterns := []string{"src/**"}
	baseline := map[string]string{
		"src/same.go":    "1",
		"src/changed.go": "1",
		"src/deleted.go": "1",
		"old/elsewhere":  "1",
	}
	current := map[string]string{
		"src/same.go":    "1",
		"src/changed.go": "2",
		"src/new.go":     "1",
	}

	got := Diff(patterns, baseline, current)
	var rendered []string
	for _, f := range got {
		rendered = append(rendered, f.String())
	}
	want := "MODIFIED src/changed.go,DELETED src/deleted.go,NEW src/new.go"
	if strings.Join(rendered, ",") != want {
		t.Errorf("Diff() = %v, want %s", rendered, want)
	}
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "src/a.go", "a")
	m := NewMonitor(dir)
	ctx := context.Background()

	report, err := m.Check(ctx, nil, nil)
	if err != nil || report.Status != StatusNoClaims {
		t.Fatalf("Check(no claims) = (%+v, %v)", report, err)
	}

	patterns := []string{"src/**"}
	baseline, err := m.CalculateFileHashes(ctx, patterns)
	if err != nil {
		t.Fatal(err)
	}

	report, err = m.Check(ctx, patterns, baseline)
	if err != nil || report.Status != StatusClean || report.Checked != 1 {
		t.Fatalf("Check(clean) = (%+v, %v)", report, err)
	}

	testutil.WriteFile(t, dir, "src/a.go", "edited out of band")
	report, err = m.Check(ctx, patterns, baseline)
	if err != nil {
		t.Fatal(err)
	}
	if report.Status != StatusDirty || len(report.Findings) != 1 || report.Findings[0].Kind != FindingModified {
		t.Errorf("Check(dirty) = %+v", report)
	}

	if err := os.Remove(filepath.Join(dir, "src", "a.go")); err != nil {
		t.Fatal(err)
	}
	report, _ = m.Check(ctx, patterns, baseline)
	if report.Status != StatusDirty || report.Findings[0].Kind != FindingDeleted {
		t.Errorf("Check(deleted) = %+v", report)
	}
}

func TestCheck_GitRepository(t *testing.T) {
	dir := testutil.SetupTestRepoWithContent(t, map[string]string{
		"src/a.go":   "a",
		".gitignore": "*.tmp\n",
	})
	testutil.WriteFile(t, dir, "src/untracked.go", "u")
	testutil.WriteFile(t, dir, "src/ignored.tmp", "i")

	m := NewMonitor(dir, WithLister(vcs.New(dir)))
	hashes, err := m.CalculateFileHashes(context.Background(), []string{"src/**"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 2 {
		t.Errorf("hashes = %v, want tracked and untracked but not ignored", hashes)
	}
	if _, ok := hashes["src/ignored.tmp"]; ok {
		t.Error("ignored file should not be hashed")
	}
}
