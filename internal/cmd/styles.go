package cmd

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/driftguard/internal/tui"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171"))
)

// Badge helpers reuse the dashboard palette.
var (
	stateBadge     = tui.StateStyle
	integrityBadge = tui.IntegrityStyle
)

func passFail(ok bool) string {
	if ok {
		return okStyle.Render("PASS")
	}
	return failStyle.Render("FAIL")
}
