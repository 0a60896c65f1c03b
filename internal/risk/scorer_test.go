package risk

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/driftguard/internal/errors"
	"github.com/Iron-Ham/driftguard/internal/testutil"
	"github.com/Iron-Ham/driftguard/internal/vcs"
)

type fakeHistory struct {
	repo    bool
	commits []vcs.Commit
	err     error

	gotSince time.Time
	gotMax   int
}

func (f *fakeHistory) IsRepo(context.Context) bool { return f.repo }

func (f *fakeHistory) Log(_ context.Context, _ string, since time.Time, max int) ([]vcs.Commit, error) {
	f.gotSince, f.gotMax = since, max
	return f.commits, f.err
}

func commitsBy(n int, authors ...string) []vcs.Commit {
	out := make([]vcs.Commit, n)
	for i := range out {
		a := authors[i%len(authors)]
		out[i] = vcs.Commit{Hash: fmt.Sprintf("h%d", i), AuthorName: a, AuthorEmail: a + "@x.dev"}
	}
	return out
}

func TestFormula(t *testing.T) {
	tests := []struct {
		commits, authors int
		isTest           bool
		want             int
	}{
		{0, 0, false, 0},
		{5, 2, false, 20},
		{10, 3, false, 35},
		{40, 5, false, 100},
		{3, 1, true, 0},
		{20, 4, true, 40},
		{60, 10, true, 80},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d/%v", tt.commits, tt.authors, tt.isTest), func(t *testing.T) {
			if got := Formula(tt.commits, tt.authors, tt.isTest); got != tt.want {
				t.Errorf("Formula() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		score int
		want  Class
	}{
		{0, ClassLow},
		{20, ClassLow},
		{21, ClassModerate},
		{40, ClassModerate},
		{41, ClassHigh},
		{70, ClassHigh},
		{71, ClassCritical},
		{100, ClassCritical},
	}

	for _, tt := range tests {
		if got := Classify(tt.score); got != tt.want {
			t.Errorf("Classify(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestIsTestFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"internal/risk/scorer_test.go", true},
		{"src/app.spec.ts", true},
		{"src/app.test.js", true},
		{"tests/helpers.py", true},
		{"test_models.py", true},
		{"src/contest.go", false},
		{"src/app.ts", false},
		{"testdata.go", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsTestFile(tt.path); got != tt.want {
				t.Errorf("IsTestFile(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestScorer_Calculate(t *testing.T) {
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	h := &fakeHistory{repo: true, commits: commitsBy(10, "ada", "bob", "ADA")}
	s := NewScorer(h, WithClock(func() time.Time { return now }), WithMaxCommits(50), WithWindow(7*24*time.Hour))

	got := s.Calculate(context.Background(), "./src/core.go")

	if got.Path != "src/core.go" {
		t.Errorf("Path = %q", got.Path)
	}
	// "ADA" and "ada" share an email once lowercased.
	if got.Commits != 10 || got.Authors != 2 || got.Score != 30 || got.Class != ClassModerate {
		t.Errorf("Calculate() = %+v", got)
	}
	if !h.gotSince.Equal(now.Add(-7*24*time.Hour)) || h.gotMax != 50 {
		t.Errorf("Log called with since=%v max=%d", h.gotSince, h.gotMax)
	}
	if !strings.Contains(got.Reason, "last 7 days") {
		t.Errorf("Reason = %q", got.Reason)
	}
}

func TestScorer_Degrades(t *testing.T) {
	tests := []struct {
		name    string
		history History
		reason  string
	}{
		{"nil history", nil, "not a git repository"},
		{"not a repo", &fakeHistory{repo: false}, "not a git repository"},
		{"log error", &fakeHistory{repo: true, err: errors.New("boom")}, "history unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewScorer(tt.history).Calculate(context.Background(), "a.go")
			if got.Score != 0 || got.Class != ClassLow {
				t.Errorf("Calculate() = %+v, want 0/low", got)
			}
			if !strings.Contains(got.Reason, tt.reason) {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.reason)
			}
		})
	}
}

func TestScorer_GitRepository(t *testing.T) {
	dir := testutil.SetupTestRepo(t)
	for i := 0; i < 3; i++ {
		testutil.CommitFileAs(t, dir, "src/hot.go", fmt.Sprintf("v%d", i), "edit", "Ada", "ada@x.dev")
	}
	testutil.CommitFileAs(t, dir, "src/hot.go", "v4", "edit", "Bob", "bob@x.dev")

	got := NewScorer(vcs.New(dir)).Calculate(context.Background(), "src/hot.go")
	if got.Commits != 4 || got.Authors != 2 || got.Score != 18 {
		t.Errorf("Calculate() = %+v, want 4 commits by 2 authors = 18", got)
	}
}
