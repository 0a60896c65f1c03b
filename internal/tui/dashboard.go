// Package tui renders the live watch dashboard: session state, the active
// task's progress and the integrity of claimed files, re-checked whenever
// the file watcher reports a change.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/driftguard/internal/engine"
	"github.com/Iron-Ham/driftguard/internal/integrity"
	"github.com/Iron-Ham/driftguard/internal/persist"
)

// CheckFunc produces a fresh status and health report.
type CheckFunc func(ctx context.Context) (engine.Status, integrity.Report, error)

// ChangeMsg is sent when the watcher sees claimed paths change.
type ChangeMsg struct {
	Paths []string
}

type checkMsg struct {
	status engine.Status
	report integrity.Report
	err    error
	at     time.Time
}

type tickMsg time.Time

const maxChanged = 8

// Model is the bubbletea model for the dashboard.
type Model struct {
	ctx      context.Context
	check    CheckFunc
	interval time.Duration
	spinner  spinner.Model

	status  engine.Status
	report  integrity.Report
	err     error
	checked time.Time
	loading bool
	changed []string
	width   int
}

// NewModel creates a dashboard that re-checks on change events and every
// interval (zero disables polling).
func NewModel(ctx context.Context, check CheckFunc, interval time.Duration) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorPrimary)
	return Model{
		ctx:      ctx,
		check:    check,
		interval: interval,
		spinner:  sp,
		loading:  true,
	}
}

// Init starts the spinner and the first check.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runCheck(), m.tick())
}

func (m Model) runCheck() tea.Cmd {
	ctx, check := m.ctx, m.check
	return func() tea.Msg {
		status, report, err := check(ctx)
		return checkMsg{status: status, report: report, err: err, at: time.Now()}
	}
}

func (m Model) tick() tea.Cmd {
	if m.interval <= 0 {
		return nil
	}
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			m.loading = true
			return m, m.runCheck()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case ChangeMsg:
		m.changed = append(append([]string(nil), msg.Paths...), m.changed...)
		if len(m.changed) > maxChanged {
			m.changed = m.changed[:maxChanged]
		}
		m.loading = true
		return m, m.runCheck()

	case tickMsg:
		m.loading = true
		return m, tea.Batch(m.runCheck(), m.tick())

	case checkMsg:
		m.loading = false
		m.status, m.report, m.err, m.checked = msg.status, msg.report, msg.err, msg.at
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder

	header := titleStyle.Render("driftguard watch")
	if m.loading {
		header += " " + m.spinner.View()
	}
	b.WriteString(header + "\n\n")

	b.WriteString(m.sessionPanel())
	b.WriteString("\n")
	b.WriteString(m.integrityPanel())
	b.WriteString("\n")

	if len(m.changed) > 0 {
		line := fit("recent changes: "+strings.Join(m.changed, ", "), m.width)
		b.WriteString(mutedStyle.Render(line) + "\n")
	}
	b.WriteString(helpStyle.Render("r recheck • q quit"))
	return b.String()
}

func (m Model) sessionPanel() string {
	var lines []string
	row := func(label, value string) {
		lines = append(lines, labelStyle.Render(label)+fit(value, m.valueWidth()))
	}

	state := m.status.State
	if state == "" {
		state = "IDLE"
	}
	row("state", StateStyle(state).Render(string(state)))
	if m.status.SessionID != "" {
		row("session", mutedStyle.Render(m.status.SessionID))
	}

	if task := m.status.ActiveTask; task != nil {
		row("task", fmt.Sprintf("%s (%s)", task.Title, task.ID))
		done, total := task.Progress()
		row("progress", persist.ProgressBar(done, total))
		if m.status.ActiveStepID != "" {
			row("step", m.status.ActiveStepID)
		}
		if task.Intent != "" {
			row("intent", task.Intent)
		}
	} else {
		row("task", mutedStyle.Render("none"))
	}
	row("verified", fmt.Sprintf("%t", m.status.IsVerified))
	return m.panel(strings.Join(lines, "\n"))
}

func (m Model) integrityPanel() string {
	var lines []string
	if m.err != nil {
		lines = append(lines, errorStyle.Render("health check failed: "+m.err.Error()))
		return m.panel(strings.Join(lines, "\n"))
	}

	status := m.report.Status
	if status == "" {
		status = integrity.StatusNoClaims
	}
	line := labelStyle.Render("integrity") + IntegrityStyle(status).Render(string(status))
	if m.report.Checked > 0 {
		line += mutedStyle.Render(fmt.Sprintf("  %d files", m.report.Checked))
	}
	lines = append(lines, line)

	for _, f := range m.report.Findings {
		lines = append(lines, "  "+findingStyle(f.Kind).Render(string(f.Kind))+" "+f.Path)
	}
	if len(m.status.ActiveClaims) > 0 {
		patterns := make([]string, 0, len(m.status.ActiveClaims))
		for _, c := range m.status.ActiveClaims {
			patterns = append(patterns, c.Pattern)
		}
		lines = append(lines, labelStyle.Render("claims")+strings.Join(patterns, ", "))
	}
	if !m.checked.IsZero() {
		lines = append(lines, mutedStyle.Render("checked "+m.checked.Format(time.Kitchen)))
	}
	return m.panel(strings.Join(lines, "\n"))
}

// valueWidth is the room left for a row value inside a panel, or zero when
// the terminal size is unknown.
func (m Model) valueWidth() int {
	if m.width <= 0 {
		return 0
	}
	return max(m.width-16, 8)
}

func (m Model) panel(content string) string {
	style := panelStyle
	if m.width > 4 {
		style = style.Width(m.width - 4)
	}
	return style.Render(content)
}
