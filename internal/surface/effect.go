// Package surface carries the outbound side effects the core emits for the
// UI surfaces: border overlay, badge, title icon and phase notifications.
package surface

import (
	"context"
	"time"

	"flowbar/backend/internal/model"
)

type Kind string

const (
	KindBorder Kind = "border"
	KindBadge  Kind = "badge"
	KindTitle  Kind = "title"
	KindPhase  Kind = "phase"
)

// Effect is one outbound update. Fields not relevant to Kind are zero.
type Effect struct {
	Kind  Kind             `json:"kind"`
	State model.TimerState `json:"state"`
	Color string           `json:"color,omitempty"`
	Text  string           `json:"text,omitempty"`
	// TabID targets one tab; zero means every tab.
	TabID   int                  `json:"tabId,omitempty"`
	Summary *model.DomainSummary `json:"summary,omitempty"`
	// Previous is the phase left behind on KindPhase effects.
	Previous model.TimerState `json:"previous,omitempty"`
	At       time.Time        `json:"at"`
}

// Notifier delivers effects. Implementations must not block the caller for
// long and must swallow their own delivery failures.
type Notifier interface {
	Notify(ctx context.Context, effect Effect)
}

// Multi fans an effect out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, effect Effect) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, effect)
		}
	}
}

// Discard drops every effect.
type Discard struct{}

func (Discard) Notify(context.Context, Effect) {}

// BorderFor builds the overlay effect for a state.
func BorderFor(state model.TimerState, at time.Time) Effect {
	return Effect{Kind: KindBorder, State: state, Color: model.BorderColor(state), At: at}
}

// BadgeFor builds the badge effect. Stopped clears the badge text.
func BadgeFor(state model.TimerState, timeLeft int, at time.Time) Effect {
	text := ""
	if state != model.StateStopped {
		text = model.FormatClock(timeLeft)
	}
	return Effect{Kind: KindBadge, State: state, Color: model.BadgeColor(state), Text: text, At: at}
}
