// Package risk scores how dangerous it is to edit a path, using its recent
// revision churn as the signal: frequently changed files touched by many
// authors are hotspots.
package risk

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/Iron-Ham/driftguard/internal/logging"
	"github.com/Iron-Ham/driftguard/internal/vcs"
)

// Scoring weights and bounds.
const (
	commitWeight   = 2
	authorWeight   = 5
	testDiscount   = 20
	MaxScore       = 100
	DefaultWindow  = 30 * 24 * time.Hour
	DefaultCommits = 100
)

// Class is a coarse risk band.
type Class string

const (
	ClassCritical Class = "critical hotspot"
	ClassHigh     Class = "high activity"
	ClassModerate Class = "moderate"
	ClassLow      Class = "low"
)

// Classify maps a score to its band: >70 critical, >40 high, >20 moderate.
func Classify(score int) Class {
	switch {
	case score > 70:
		return ClassCritical
	case score > 40:
		return ClassHigh
	case score > 20:
		return ClassModerate
	default:
		return ClassLow
	}
}

// Score is the result for one path.
type Score struct {
	Path    string `json:"path"`
	Score   int    `json:"score"`
	Class   Class  `json:"class"`
	Commits int    `json:"commits"`
	Authors int    `json:"authors"`
	IsTest  bool   `json:"isTest"`
	Reason  string `json:"reason"`
}

// History reads a path's commits. The git adapter satisfies it.
type History interface {
	IsRepo(ctx context.Context) bool
	Log(ctx context.Context, path string, since time.Time, max int) ([]vcs.Commit, error)
}

// Scorer computes churn scores.
type Scorer struct {
	history    History
	window     time.Duration
	maxCommits int
	now        func() time.Time
	logger     *logging.Logger
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithWindow sets the trailing history window.
func WithWindow(d time.Duration) Option {
	return func(s *Scorer) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithMaxCommits bounds how many commits are read.
func WithMaxCommits(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.maxCommits = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Scorer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScorer creates a Scorer over history. A nil history always scores 0.
func NewScorer(history History, opts ...Option) *Scorer {
	s := &Scorer{
		history:    history,
		window:     DefaultWindow,
		maxCommits: DefaultCommits,
		now:        time.Now,
		logger:     logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Calculate returns score = min(100, 2*commits + 5*authors), less 20 for
// test files. Without history the score is 0 with a reason.
func (s *Scorer) Calculate(ctx context.Context, p string) Score {
	p = strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, "\\", "/")), "./")
	res := Score{Path: p, IsTest: IsTestFile(p)}

	if s.history == nil || !s.history.IsRepo(ctx) {
		res.Class = Classify(0)
		res.Reason = "not a git repository; no history to score"
		return res
	}

	commits, err := s.history.Log(ctx, p, s.now().Add(-s.window), s.maxCommits)
	if err != nil {
		s.logger.Warn("risk history unavailable", "path", p, "error", err)
		res.Class = Classify(0)
		res.Reason = "history unavailable: " + err.Error()
		return res
	}

	authors := make(map[string]struct{})
	for _, c := range commits {
		key := strings.ToLower(strings.TrimSpace(c.AuthorEmail))
		if key == "" {
			key = strings.TrimSpace(c.AuthorName)
		}
		authors[key] = struct{}{}
	}

	res.Commits = len(commits)
	res.Authors = len(authors)
	res.Score = Formula(res.Commits, res.Authors, res.IsTest)
	res.Class = Classify(res.Score)

	days := int(s.window.Hours() / 24)
	res.Reason = fmt.Sprintf("%d commits by %d authors in the last %d days", res.Commits, res.Authors, days)
	if res.IsTest {
		res.Reason += "; test file discount applied"
	}
	return res
}

// Formula applies the churn weights, cap and test discount.
func Formula(commits, authors int, isTest bool) int {
	score := min(MaxScore, commitWeight*commits+authorWeight*authors)
	if isTest {
		score = max(0, score-testDiscount)
	}
	return score
}

var testNamePattern = regexp.MustCompile(`(?i)(^test_|_test\.|\.test\.|\.spec\.|_spec\.|^spec_|^tests?\.[a-z]+$)`)

// IsTestFile reports whether the file name looks like a test or spec.
func IsTestFile(p string) bool {
	base := path.Base(p)
	if testNamePattern.MatchString(base) {
		return true
	}
	for _, dir := range strings.Split(path.Dir(p), "/") {
		switch strings.ToLower(dir) {
		case "test", "tests", "__tests__", "spec":
			return true
		}
	}
	return false
}
