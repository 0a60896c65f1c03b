package model

import "testing"

func TestTask_Progress(t *testing.T) {
	tests := []struct {
		name      string
		items     []ChecklistItem
		wantDone  int
		wantTotal int
		complete  bool
	}{
		{"empty", nil, 0, 0, true},
		{"partial", []ChecklistItem{{ID: "1", Status: ItemDone}, {ID: "2", Status: ItemTodo}}, 1, 2, false},
		{"all done", []ChecklistItem{{ID: "1", Status: ItemDone}}, 1, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &Task{Checklist: tt.items}
			done, total := task.Progress()
			if done != tt.wantDone || total != tt.wantTotal {
				t.Errorf("Progress() = (%d, %d), want (%d, %d)", done, total, tt.wantDone, tt.wantTotal)
			}
			if task.Complete() != tt.complete {
				t.Errorf("Complete() = %v, want %v", task.Complete(), tt.complete)
			}
		})
	}
}

func TestTask_RaiseRisk(t *testing.T) {
	task := &Task{}
	for _, s := range []int{30, 10, 55, 40} {
		task.RaiseRisk(s)
	}
	if task.RiskScore == nil || *task.RiskScore != 55 {
		t.Errorf("RiskScore = %v, want 55", task.RiskScore)
	}
}

func TestTask_Clone(t *testing.T) {
	orig := &Task{ID: "t", Checklist: []ChecklistItem{{ID: "1", Status: ItemTodo}}}
	orig.RaiseRisk(10)

	c := orig.Clone()
	c.Checklist[0].Status = ItemDone
	*c.RiskScore = 99

	if orig.Checklist[0].Status != ItemTodo || *orig.RiskScore != 10 {
		t.Error("Clone() shares state with the original")
	}
}

func TestSnapshot_ActiveTask(t *testing.T) {
	snap := &Snapshot{Tasks: map[string]*Task{"t1": {ID: "t1"}}}
	if snap.ActiveTask() != nil {
		t.Error("ActiveTask() should be nil without an active id")
	}
	snap.Session.ActiveTaskID = "t1"
	if snap.ActiveTask() == nil || snap.ActiveTask().ID != "t1" {
		t.Error("ActiveTask() should return t1")
	}
}
