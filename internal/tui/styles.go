package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/driftguard/internal/focus"
	"github.com/Iron-Ham/driftguard/internal/integrity"
)

// Palette colors, taken from the default dark theme.
var (
	colorPrimary   = lipgloss.Color("#A78BFA")
	colorSecondary = lipgloss.Color("#10B981")
	colorWarning   = lipgloss.Color("#F59E0B")
	colorError     = lipgloss.Color("#F87171")
	colorMuted     = lipgloss.Color("#9CA3AF")
	colorBorder    = lipgloss.Color("#6B7280")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	labelStyle = lipgloss.NewStyle().Foreground(colorMuted).Width(10)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle = lipgloss.NewStyle().Foreground(colorError)
	helpStyle  = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
)

// StateStyle colors a focus state badge.
func StateStyle(s focus.State) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch s {
	case focus.StateIdle:
		return base.Foreground(colorMuted)
	case focus.StatePlanning:
		return base.Foreground(colorPrimary)
	case focus.StateExecuting:
		return base.Foreground(colorSecondary)
	case focus.StateValidating:
		return base.Foreground(colorWarning)
	case focus.StatePanic:
		return base.Foreground(colorError)
	}
	return base
}

// IntegrityStyle colors a health check status.
func IntegrityStyle(s integrity.Status) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch s {
	case integrity.StatusClean:
		return base.Foreground(colorSecondary)
	case integrity.StatusDirty:
		return base.Foreground(colorWarning)
	}
	return base.Foreground(colorMuted)
}

func findingStyle(k integrity.FindingKind) lipgloss.Style {
	switch k {
	case integrity.FindingDeleted:
		return errorStyle
	case integrity.FindingNew:
		return lipgloss.NewStyle().Foreground(colorSecondary)
	}
	return lipgloss.NewStyle().Foreground(colorWarning)
}
