package model

import (
	"fmt"
	"time"
)

// Phase colours shared by the border overlay and the badge.
const (
	BorderFocusColor = "rgba(46, 204, 113, 0.3)"
	BorderBreakColor = "rgba(52, 152, 219, 0.3)"
	BorderIdleColor  = "transparent"

	BadgeFocusColor  = "#2ecc71"
	BadgeBreakColor  = "#3498db"
	BadgePausedColor = "#f39c12"
	BadgeIdleColor   = "#808080"
)

// FormatClock renders seconds as MM:SS, with a leading minus when negative.
func FormatClock(seconds int) string {
	sign := ""
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	return fmt.Sprintf("%s%02d:%02d", sign, seconds/60, seconds%60)
}

// FormatDuration renders seconds for the hover summary, e.g. "1h 05m".
func FormatDuration(seconds int) string {
	d := time.Duration(seconds) * time.Second
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %02dm", hours, minutes)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%ds", seconds)
}

// Grade maps a flow score to the title icon letter and colour.
func Grade(score int) (string, string) {
	switch {
	case score >= 80:
		return "A", "#27ae60"
	case score >= 60:
		return "B", "#2ecc71"
	case score >= 40:
		return "C", "#f39c12"
	case score > 0:
		return "D", "#e74c3c"
	default:
		return "0", "#808080"
	}
}

// BorderColor is the overlay colour for a timer state.
func BorderColor(state TimerState) string {
	switch state {
	case StateFocus:
		return BorderFocusColor
	case StateBreak:
		return BorderBreakColor
	default:
		return BorderIdleColor
	}
}

func BadgeColor(state TimerState) string {
	switch state {
	case StateFocus:
		return BadgeFocusColor
	case StateBreak:
		return BadgeBreakColor
	case StatePaused:
		return BadgePausedColor
	default:
		return BadgeIdleColor
	}
}
