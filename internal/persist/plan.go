package persist

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/driftguard/internal/model"
)

const (
	planLogLines     = 5
	progressBarWidth = 20
)

// RenderPlan renders the human-readable summary of a snapshot.
func RenderPlan(snap *model.Snapshot) string {
	var b strings.Builder

	b.WriteString("# driftguard plan\n\n")
	fmt.Fprintf(&b, "- **State:** %s\n", snap.Session.State)
	fmt.Fprintf(&b, "- **Session:** %s\n", snap.Session.ID)
	if snap.Session.ActiveStepID != "" {
		fmt.Fprintf(&b, "- **Step:** %s\n", snap.Session.ActiveStepID)
	}
	fmt.Fprintf(&b, "- **Verified:** %t\n\n", snap.Session.IsVerified)

	task := snap.ActiveTask()
	if task == nil {
		b.WriteString("_No active task._\n")
	} else {
		writeTask(&b, task, snap.Session.IntentFiled)
	}

	if n := len(snap.Logs); n > 0 {
		b.WriteString("\n## Recent activity\n\n")
		start := max(0, n-planLogLines)
		for _, entry := range snap.Logs[start:] {
			fmt.Fprintf(&b, "- `%s` %s", entry.Timestamp.UTC().Format("2006-01-02 15:04:05"), entry.Action)
			if entry.TaskID != "" {
				fmt.Fprintf(&b, " [%s]", entry.TaskID)
			}
			if entry.Detail != "" {
				fmt.Fprintf(&b, ": %s", entry.Detail)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

func writeTask(b *strings.Builder, task *model.Task, intentFiled bool) {
	fmt.Fprintf(b, "## %s\n\n", task.Title)
	fmt.Fprintf(b, "- **Task:** %s (strictness %d)\n", task.ID, task.Strictness)
	if task.ParentTaskID != "" {
		fmt.Fprintf(b, "- **Parent:** %s\n", task.ParentTaskID)
	}
	if task.Goal != "" {
		fmt.Fprintf(b, "- **Goal:** %s\n", task.Goal)
	}
	if len(task.AllowedScopes) > 0 {
		fmt.Fprintf(b, "- **Scope:** `%s`\n", strings.Join(task.AllowedScopes, "`, `"))
	}
	if patterns := task.ClaimPatterns(); len(patterns) > 0 {
		fmt.Fprintf(b, "- **Claims:** `%s`\n", strings.Join(patterns, "`, `"))
	}

	done, total := task.Progress()
	fmt.Fprintf(b, "\n%s\n", ProgressBar(done, total))

	if total > 0 {
		b.WriteString("\n### Checklist\n\n")
		for _, item := range task.Checklist {
			mark := " "
			if item.Status == model.ItemDone {
				mark = "x"
			}
			fmt.Fprintf(b, "- [%s] %s. %s\n", mark, item.ID, item.Text)
		}
	}

	if intentFiled && task.Intent != "" {
		b.WriteString("\n### Intent\n\n")
		b.WriteString(task.Intent + "\n")
		for _, f := range task.FilesToTouch {
			fmt.Fprintf(b, "- `%s`\n", f)
		}
	}
}

// ProgressBar renders done/total as a fixed-width text bar.
func ProgressBar(done, total int) string {
	pct := 100
	if total > 0 {
		pct = done * 100 / total
	}
	filled := pct * progressBarWidth / 100
	return fmt.Sprintf("`[%s%s]` %d/%d (%d%%)",
		strings.Repeat("#", filled), strings.Repeat("-", progressBarWidth-filled), done, total, pct)
}
