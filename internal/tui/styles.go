package tui

import (
	"github.com/charmbracelet/lipgloss"

	"lsphost/internal/tools"
)

var (
	// TitleStyle styles the heading above the install view.
	TitleStyle = lipgloss.NewStyle().Bold(true).Underline(true)

	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	waitingStyle = lipgloss.NewStyle().Faint(true)
)

// PhaseStyle returns the style for a phase label. The zero phase means the
// tool has not started yet.
func PhaseStyle(p tools.Phase) lipgloss.Style {
	switch p {
	case tools.PhaseInstalled, tools.PhaseCached:
		return doneStyle
	case tools.PhaseFailed:
		return failedStyle
	case "":
		return waitingStyle
	default:
		return activeStyle
	}
}

func phaseFinished(p tools.Phase) bool {
	switch p {
	case tools.PhaseInstalled, tools.PhaseCached, tools.PhaseFailed:
		return true
	}
	return false
}

func phaseLabel(p tools.Phase) string {
	if p == "" {
		return "waiting"
	}
	return string(p)
}
