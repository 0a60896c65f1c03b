package engine

import (
	"fmt"
	"testing"

	"github.com/Iron-Ham/driftguard/internal/model"
)

func TestLogQueue_KeepsNewest(t *testing.T) {
	q := NewLogQueue(LogCapacity)
	for i := range 150 {
		q.Push(model.LogEntry{Action: fmt.Sprintf("a%d", i)})
	}

	if q.Len() != LogCapacity {
		t.Fatalf("Len() = %d, want %d", q.Len(), LogCapacity)
	}
	entries := q.Entries()
	if entries[0].Action != "a50" {
		t.Errorf("oldest = %s, want a50", entries[0].Action)
	}
	if entries[len(entries)-1].Action != "a149" {
		t.Errorf("newest = %s, want a149", entries[len(entries)-1].Action)
	}
}

func TestLogQueue_Recent(t *testing.T) {
	tests := []struct {
		name   string
		pushed int
		n      int
		want   []string
	}{
		{"empty", 0, 3, []string{}},
		{"fewer than n", 2, 3, []string{"a0", "a1"}},
		{"more than n", 5, 3, []string{"a2", "a3", "a4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewLogQueue(4)
			for i := range tt.pushed {
				q.Push(model.LogEntry{Action: fmt.Sprintf("a%d", i)})
			}
			got := q.Recent(tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("Recent(%d) returned %d entries, want %d", tt.n, len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Action != tt.want[i] {
					t.Errorf("Recent[%d] = %s, want %s", i, got[i].Action, tt.want[i])
				}
			}
		})
	}
}

func TestLogQueue_Replace(t *testing.T) {
	q := NewLogQueue(3)
	q.Push(model.LogEntry{Action: "old"})

	q.Replace([]model.LogEntry{{Action: "a"}, {Action: "b"}, {Action: "c"}, {Action: "d"}})

	got := q.Entries()
	if len(got) != 3 || got[0].Action != "b" || got[2].Action != "d" {
		t.Errorf("Entries() = %v", got)
	}
}
