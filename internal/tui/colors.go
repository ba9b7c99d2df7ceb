package tui

import (
	"github.com/charmbracelet/lipgloss"

	"flowbar/backend/internal/model"
)

// Terminal colours. Phase colours follow the badge palette.
const (
	ColorPrimaryText   = "#E6EAF2"
	ColorSecondaryText = "#B1B8C7"
	ColorError         = "#EF4444"
)

func phaseStyle(state model.TimerState) lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(model.BadgeColor(state))).
		Bold(true)
}
