// Package metrics exposes Prometheus instruments fed by the engine's event
// bus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Iron-Ham/driftguard/internal/event"
	"github.com/Iron-Ham/driftguard/internal/focus"
)

const namespace = "driftguard"

// Recorder holds every instrument. Create one per registry.
type Recorder struct {
	transitions     *prometheus.CounterVec
	focusState      *prometheus.GaugeVec
	tasksProposed   prometheus.Counter
	tasksDelegated  prometheus.Counter
	checkpoints     *prometheus.CounterVec
	checkpointRatio prometheus.Histogram
	verifications   *prometheus.CounterVec
	verifyDuration  prometheus.Histogram
	claims          *prometheus.CounterVec
	releasedClaims  prometheus.Counter
	integrityChecks *prometheus.CounterVec
	driftFindings   prometheus.Gauge
	riskScores      prometheus.Histogram
	panics          prometheus.Counter
	resets          prometheus.Counter
}

// New registers the instruments with reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Focus state transitions by source and target state",
		}, []string{"from", "to"}),
		focusState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "focus_state",
			Help:      "1 for the current focus state, 0 otherwise",
		}, []string{"state"}),
		tasksProposed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_proposed_total",
			Help:      "Tasks proposed",
		}),
		tasksDelegated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_delegated_total",
			Help:      "Child tasks created by delegation",
		}),
		checkpoints: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Checkpoints by task completion and audit outcome",
		}, []string{"completed", "audit_written"}),
		checkpointRatio: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_completion_ratio",
			Help:      "Checklist completion ratio at each checkpoint",
			Buckets:   []float64{0.25, 0.5, 0.75, 1},
		}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verification runs by result",
		}, []string{"result"}),
		verifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verification_duration_seconds",
			Help:      "Verification command duration",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		claims: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scope_claim_requests_total",
			Help:      "Scope claim requests by outcome",
		}, []string{"outcome"}),
		releasedClaims: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scope_claims_released_total",
			Help:      "Scope claims released at checkpoint or reset",
		}),
		integrityChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_checks_total",
			Help:      "Health checks by status",
		}, []string{"status"}),
		driftFindings: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "integrity_findings",
			Help:      "Findings reported by the most recent health check",
		}),
		riskScores: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Churn risk scores calculated",
			Buckets:   []float64{20, 40, 70, 100},
		}),
		panics: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_total",
			Help:      "Sessions forced into PANIC",
		}),
		resets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_resets_total",
			Help:      "Session resets",
		}),
	}
}

// SetState marks state as current in the focus_state gauge.
func (r *Recorder) SetState(state focus.State) {
	for _, s := range focus.States() {
		v := 0.0
		if s == state {
			v = 1
		}
		r.focusState.WithLabelValues(string(s)).Set(v)
	}
}

// Attach subscribes the recorder to every event on bus and returns the
// subscription id.
func (r *Recorder) Attach(bus *event.Bus) string {
	return bus.SubscribeAll(r.Observe)
}

// Observe updates instruments for one event. Unknown events are ignored.
func (r *Recorder) Observe(ev event.Event) {
	switch e := ev.(type) {
	case event.StateChangedEvent:
		r.transitions.WithLabelValues(e.From, e.To).Inc()
		if state, ok := focus.ParseState(e.To); ok {
			r.SetState(state)
		}
	case event.PanicEvent:
		r.panics.Inc()
	case event.SessionResetEvent:
		r.resets.Inc()
	case event.TaskProposedEvent:
		r.tasksProposed.Inc()
	case event.TaskDelegatedEvent:
		r.tasksDelegated.Inc()
	case event.TaskCheckpointedEvent:
		r.checkpoints.WithLabelValues(strconv.FormatBool(e.TaskCompleted), strconv.FormatBool(e.AuditWritten)).Inc()
		r.checkpointRatio.Observe(e.Ratio())
	case event.TaskVerifiedEvent:
		r.verifications.WithLabelValues(verifyOutcome(e)).Inc()
		if !e.Placeholder {
			r.verifyDuration.Observe(e.Duration.Seconds())
		}
	case event.ScopeClaimedEvent:
		r.claims.WithLabelValues("granted").Inc()
	case event.ScopeConflictEvent:
		r.claims.WithLabelValues("conflict").Inc()
	case event.ScopeReleasedEvent:
		r.releasedClaims.Add(float64(e.Count))
	case event.IntegrityCheckedEvent:
		r.integrityChecks.WithLabelValues(e.Status).Inc()
		r.driftFindings.Set(float64(e.Findings))
	case event.RiskScoredEvent:
		r.riskScores.Observe(float64(e.Score))
	}
}

func verifyOutcome(e event.TaskVerifiedEvent) string {
	switch {
	case e.Placeholder:
		return "placeholder"
	case e.TimedOut:
		return "timeout"
	case e.Success:
		return "passed"
	default:
		return "failed"
	}
}
