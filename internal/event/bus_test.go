package event

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := NewBus()

	var received Event
	id := bus.Subscribe(TypeScopeClaimed, func(e Event) {
		received = e
	})
	if id == "" {
		t.Fatal("Subscribe should return a non-empty ID")
	}

	bus.Publish(NewScopeClaimedEvent("task-1", []string{"src/**"}, true))

	claimed, ok := received.(ScopeClaimedEvent)
	if !ok {
		t.Fatalf("received %T, want ScopeClaimedEvent", received)
	}
	if claimed.TaskID != "task-1" || !claimed.Exclusive {
		t.Errorf("received %+v", claimed)
	}
	if claimed.Timestamp().IsZero() {
		t.Error("Timestamp() should be set")
	}
}

func TestBus_PublishIgnoresOtherTypes(t *testing.T) {
	bus := NewBus()

	called := false
	bus.Subscribe(TypeSessionPanic, func(Event) { called = true })
	bus.Publish(NewRiskScoredEvent("a.go", 10, "low"))

	if called {
		t.Error("handler should not receive events of another type")
	}
}

func TestBus_OrderSpecificBeforeWildcard(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(Event) { order = append(order, "all") })
	bus.Subscribe(TypeStateChanged, func(Event) { order = append(order, "first") })
	bus.Subscribe(TypeStateChanged, func(Event) { order = append(order, "second") })

	bus.Publish(NewStateChangedEvent("s", "propose task", "IDLE", "PLANNING"))

	want := []string{"first", "second", "all"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
			break
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	count := 0
	keep := bus.Subscribe(TypeTaskVerified, func(Event) { count++ })
	drop := bus.Subscribe(TypeTaskVerified, func(Event) { count += 10 })

	if !bus.Unsubscribe(drop) {
		t.Fatal("Unsubscribe should find the subscription")
	}
	if bus.Unsubscribe(drop) {
		t.Error("second Unsubscribe should return false")
	}
	if bus.Unsubscribe("sub-unknown") {
		t.Error("Unsubscribe of unknown id should return false")
	}

	bus.Publish(NewTaskVerifiedEvent("t", true, false, false, 0))
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", bus.SubscriptionCount())
	}
	_ = keep
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(TypeScopeReleased, func(Event) {})
	bus.SubscribeAll(func(Event) {})

	bus.Clear()
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after Clear, want 0", bus.SubscriptionCount())
	}
}

func TestBus_HandlerPanicRecovery(t *testing.T) {
	bus := NewBus()

	reached := false
	bus.Subscribe(TypeSessionPanic, func(Event) { panic("boom") })
	bus.Subscribe(TypeSessionPanic, func(Event) { reached = true })

	bus.Publish(NewPanicEvent("s", "EXECUTING", "lost"))

	if !reached {
		t.Error("handler after a panicking handler should still run")
	}
}

func TestBus_NilPublish(t *testing.T) {
	var bus *Bus
	bus.Publish(NewSessionResetEvent("a", "b", 0))
}

func TestBus_UniqueIDs(t *testing.T) {
	bus := NewBus()
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := bus.Subscribe(TypeRiskScored, func(Event) {})
		if seen[id] {
			t.Fatalf("duplicate subscription id %q", id)
		}
		seen[id] = true
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var count atomic.Int64
	bus.SubscribeAll(func(Event) { count.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(NewIntegrityCheckedEvent("CLEAN", 0))
			}
		}()
	}
	wg.Wait()

	if got := count.Load(); got != 1000 {
		t.Errorf("handled %d events, want 1000", got)
	}
}

func TestTaskCheckpointedEvent_Ratio(t *testing.T) {
	tests := []struct {
		completed, total int
		want             float64
	}{
		{0, 0, 0},
		{1, 2, 0.5},
		{3, 3, 1},
	}
	for _, tt := range tests {
		e := NewTaskCheckpointedEvent("t", tt.completed, tt.total, false, false)
		if got := e.Ratio(); got != tt.want {
			t.Errorf("Ratio(%d/%d) = %v, want %v", tt.completed, tt.total, got, tt.want)
		}
	}
}

func TestEventTypes(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{NewStateChangedEvent("s", "a", "IDLE", "PLANNING"), TypeStateChanged},
		{NewPanicEvent("s", "IDLE", "r"), TypeSessionPanic},
		{NewSessionResetEvent("a", "b", 1), TypeSessionReset},
		{NewTaskProposedEvent("t", "title", 2, 1), TypeTaskProposed},
		{NewTaskDelegatedEvent("p", "c", nil), TypeTaskDelegated},
		{NewTaskCheckpointedEvent("t", 1, 1, true, true), TypeTaskCheckpointed},
		{NewTaskVerifiedEvent("t", true, false, true, 0), TypeTaskVerified},
		{NewScopeClaimedEvent("t", nil, false), TypeScopeClaimed},
		{NewScopeConflictEvent("t", nil), TypeScopeConflict},
		{NewScopeReleasedEvent("t", 2), TypeScopeReleased},
		{NewIntegrityCheckedEvent("DIRTY", 1), TypeIntegrityChecked},
		{NewRiskScoredEvent("p", 1, "low"), TypeRiskScored},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.event.EventType(); got != tt.want {
				t.Errorf("EventType() = %q, want %q", got, tt.want)
			}
		})
	}
}
