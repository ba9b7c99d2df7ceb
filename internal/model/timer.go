package model

import "time"

type TimerState string

const (
	StateStopped TimerState = "stopped"
	StateFocus   TimerState = "focus"
	StateBreak   TimerState = "break"
	StatePaused  TimerState = "paused"
)

const (
	DefaultFocusDurationSeconds = 25 * 60
	DefaultBreakDurationSeconds = 5 * 60
)

// IsRunning reports whether s is a timed phase.
func (s TimerState) IsRunning() bool {
	return s == StateFocus || s == StateBreak
}

func (s TimerState) Valid() bool {
	switch s {
	case StateStopped, StateFocus, StateBreak, StatePaused:
		return true
	}
	return false
}

// AlarmName is the wake-up tag of a running phase.
func (s TimerState) AlarmName() string {
	return "timer_" + string(s)
}

// TimerSnapshot is the persisted timer aggregate. EndTime is milliseconds
// since the Unix epoch. PausedRemainingMs holds the exact residual while
// paused; TimeLeft is its whole-second display value.
type TimerSnapshot struct {
	TimerState        TimerState  `json:"timerState"`
	OriginalTimerType *TimerState `json:"originalTimerType"`
	EndTime           *int64      `json:"endTime"`
	TimeLeft          int         `json:"timeLeft"`
	PausedRemainingMs *int64      `json:"pausedRemainingMs"`
	FocusDuration     int         `json:"focusDuration"`
	BreakDuration     int         `json:"breakDuration"`
}

// DefaultTimerSnapshot is what a fresh install, or a failed read, yields.
func DefaultTimerSnapshot() TimerSnapshot {
	return TimerSnapshot{
		TimerState:    StateStopped,
		TimeLeft:      DefaultFocusDurationSeconds,
		FocusDuration: DefaultFocusDurationSeconds,
		BreakDuration: DefaultBreakDurationSeconds,
	}
}

// DurationFor returns the configured length of a phase in seconds.
func (s TimerSnapshot) DurationFor(state TimerState) int {
	if state == StateBreak {
		return s.BreakDuration
	}
	return s.FocusDuration
}

// RemainingAt recomputes timeLeft. Running phases derive it from EndTime,
// every other state uses the stored value.
func (s TimerSnapshot) RemainingAt(now time.Time) int {
	if !s.TimerState.IsRunning() || s.EndTime == nil {
		if s.TimeLeft < 0 {
			return 0
		}
		return s.TimeLeft
	}
	remainingMs := *s.EndTime - now.UnixMilli()
	if remainingMs <= 0 {
		return 0
	}
	return int(remainingMs / 1000)
}

// RemainingMillisAt is RemainingAt without rounding. PausedRemainingMs is
// used only while it still agrees with TimeLeft, so a rewritten TimeLeft wins.
func (s TimerSnapshot) RemainingMillisAt(now time.Time) int64 {
	var remaining int64
	switch {
	case s.TimerState.IsRunning() && s.EndTime != nil:
		remaining = *s.EndTime - now.UnixMilli()
	case s.PausedRemainingMs != nil && *s.PausedRemainingMs/1000 == int64(s.TimeLeft):
		remaining = *s.PausedRemainingMs
	default:
		remaining = int64(s.TimeLeft) * 1000
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// EndAt returns EndTime as a time.Time, or the zero time when unset.
func (s TimerSnapshot) EndAt() time.Time {
	if s.EndTime == nil {
		return time.Time{}
	}
	return time.UnixMilli(*s.EndTime)
}

func Millis(t time.Time) *int64 {
	ms := t.UnixMilli()
	return &ms
}

func StatePtr(state TimerState) *TimerState {
	return &state
}

// TimerInfo answers getTimerInfo.
type TimerInfo struct {
	TimeLeft          int         `json:"timeLeft"`
	TimerState        TimerState  `json:"timerState"`
	TotalDuration     int         `json:"totalDuration"`
	EndTime           *int64      `json:"endTime"`
	OriginalTimerType *TimerState `json:"originalTimerType"`
	Display           string      `json:"display"`
}
