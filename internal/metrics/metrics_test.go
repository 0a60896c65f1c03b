package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Iron-Ham/driftguard/internal/event"
	"github.com/Iron-Ham/driftguard/internal/focus"
)

func TestRecorder_ObservesBusEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	bus := event.NewBus()
	r.Attach(bus)

	bus.Publish(event.NewStateChangedEvent("s", "propose task", "IDLE", "PLANNING"))
	bus.Publish(event.NewStateChangedEvent("s", "report intent", "PLANNING", "EXECUTING"))
	bus.Publish(event.NewTaskProposedEvent("t", "title", 2, 1))
	bus.Publish(event.NewScopeClaimedEvent("t", []string{"src/**"}, true))
	bus.Publish(event.NewScopeConflictEvent("t", []string{"x"}))
	bus.Publish(event.NewScopeReleasedEvent("t", 3))
	bus.Publish(event.NewTaskCheckpointedEvent("t", 1, 2, true, false))
	bus.Publish(event.NewIntegrityCheckedEvent("DIRTY", 4))
	bus.Publish(event.NewRiskScoredEvent("a.go", 55, "high activity"))
	bus.Publish(event.NewPanicEvent("s", "EXECUTING", "stuck"))

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"transition IDLE->PLANNING", testutil.ToFloat64(r.transitions.WithLabelValues("IDLE", "PLANNING")), 1},
		{"focus state EXECUTING", testutil.ToFloat64(r.focusState.WithLabelValues("EXECUTING")), 1},
		{"focus state PLANNING", testutil.ToFloat64(r.focusState.WithLabelValues("PLANNING")), 0},
		{"tasks proposed", testutil.ToFloat64(r.tasksProposed), 1},
		{"claims granted", testutil.ToFloat64(r.claims.WithLabelValues("granted")), 1},
		{"claims conflicted", testutil.ToFloat64(r.claims.WithLabelValues("conflict")), 1},
		{"claims released", testutil.ToFloat64(r.releasedClaims), 3},
		{"checkpoints", testutil.ToFloat64(r.checkpoints.WithLabelValues("false", "true")), 1},
		{"dirty checks", testutil.ToFloat64(r.integrityChecks.WithLabelValues("DIRTY")), 1},
		{"findings", testutil.ToFloat64(r.driftFindings), 4},
		{"panics", testutil.ToFloat64(r.panics), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestRecorder_VerifyOutcomes(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.Observe(event.NewTaskVerifiedEvent("t", true, false, true, 0))
	r.Observe(event.NewTaskVerifiedEvent("t", true, false, false, time.Second))
	r.Observe(event.NewTaskVerifiedEvent("t", false, true, false, 2*time.Second))
	r.Observe(event.NewTaskVerifiedEvent("t", false, false, false, time.Second))

	for _, outcome := range []string{"placeholder", "passed", "timeout", "failed"} {
		if got := testutil.ToFloat64(r.verifications.WithLabelValues(outcome)); got != 1 {
			t.Errorf("verifications{%s} = %v, want 1", outcome, got)
		}
	}
	if n := testutil.CollectAndCount(r.verifications); n != 4 {
		t.Errorf("verification series = %d, want 4", n)
	}
}

func TestRecorder_SetState(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.SetState(focus.StatePanic)

	for _, s := range focus.States() {
		want := 0.0
		if s == focus.StatePanic {
			want = 1
		}
		if got := testutil.ToFloat64(r.focusState.WithLabelValues(string(s))); got != want {
			t.Errorf("focus_state{%s} = %v, want %v", s, got, want)
		}
	}
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Error("registering twice on one registry should panic")
		}
	}()
	New(reg)
}
