package engine

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/driftguard/internal/audit"
	"github.com/Iron-Ham/driftguard/internal/event"
	"github.com/Iron-Ham/driftguard/internal/integrity"
	"github.com/Iron-Ham/driftguard/internal/risk"
	"github.com/Iron-Ham/driftguard/internal/scope"
)

// HealthCheck diffs the files under every active claim against the
// session's hash cache. It does not move the baseline.
func (e *Engine) HealthCheck(ctx context.Context) (integrity.Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	patterns := scope.Patterns(e.session.ActiveClaims)
	report, err := e.monitor.Check(ctx, patterns, e.session.FileHashes)
	if err != nil {
		return integrity.Report{}, err
	}

	if report.Status == integrity.StatusDirty {
		e.logger.Warn("integrity drift detected", "findings", len(report.Findings))
	} else {
		e.logger.Debug("integrity check", "status", string(report.Status), "checked", report.Checked)
	}
	e.bus.Publish(event.NewIntegrityCheckedEvent(string(report.Status), len(report.Findings)))
	return report, nil
}

// ClaimedPatterns returns the patterns of every active claim.
func (e *Engine) ClaimedPatterns() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return scope.Patterns(e.session.ActiveClaims)
}

// CalculateRisk scores a path's recent churn and raises the active task's
// risk score to the running maximum.
func (e *Engine) CalculateRisk(ctx context.Context, path string) (risk.Score, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	score := e.scorer.Calculate(ctx, path)

	if t := e.activeTask(); t != nil {
		t.RaiseRisk(score.Score)
		t.UpdatedAt = e.now()
		e.appendLog("calculate risk", t.ID, fmt.Sprintf("%s: %d (%s)", score.Path, score.Score, score.Class))
		if err := e.persistLocked(); err != nil {
			return risk.Score{}, err
		}
	}

	e.logger.Debug("risk scored", "path", score.Path, "score", score.Score, "class", string(score.Class))
	e.bus.Publish(event.NewRiskScoredEvent(score.Path, score.Score, string(score.Class)))
	return score, nil
}

// History reconstructs the checkpoint audit trail from git notes, newest
// first.
func (e *Engine) History(ctx context.Context) ([]audit.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trail.ReconstructHistory(ctx)
}
