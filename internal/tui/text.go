package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// fit shortens s to width visible columns, keeping escape sequences intact.
// A non-positive width leaves s alone.
func fit(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	if width <= 3 {
		return "..."
	}
	return ansi.Truncate(s, width, "...")
}
