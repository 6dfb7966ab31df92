package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/davarch/ci-tracker/internal/domain"
)

var (
	colorRunning = lipgloss.Color("33")  // blue
	colorPending = lipgloss.Color("214") // orange
	colorSuccess = lipgloss.Color("46")  // green
	colorFailed  = lipgloss.Color("196") // red
	colorMuted   = lipgloss.Color("240") // gray

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			PaddingLeft(1).
			PaddingRight(1)

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Background(lipgloss.Color("237"))

	stageStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			PaddingLeft(6)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			MarginTop(1)

	emptyStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorFailed)
)

func statusIcon(s domain.Status) string {
	switch s {
	case domain.StatusSuccess:
		return "✅"
	case domain.StatusFailed:
		return "❌"
	case domain.StatusCanceled:
		return "⛔"
	case domain.StatusRunning:
		return "▶️"
	case domain.StatusPending, domain.StatusCreated:
		return "⏳"
	case domain.StatusSkipped:
		return "⏭️"
	case domain.StatusManual:
		return "✋"
	default:
		return "❓"
	}
}

func statusColor(s domain.Status) lipgloss.Color {
	switch s {
	case domain.StatusSuccess:
		return colorSuccess
	case domain.StatusFailed:
		return colorFailed
	case domain.StatusRunning:
		return colorRunning
	case domain.StatusPending, domain.StatusCreated:
		return colorPending
	default:
		return colorMuted
	}
}

// stageMark is the one-character summary used in pipeline stage breakdowns.
func stageMark(s domain.Status) string {
	switch s {
	case domain.StatusSuccess:
		return "✓"
	case domain.StatusFailed:
		return "✗"
	case domain.StatusRunning:
		return "▶"
	case domain.StatusPending, domain.StatusCreated:
		return "…"
	case domain.StatusCanceled:
		return "⊘"
	default:
		return "·"
	}
}
