// Package scheduler provides the wake-up primitives the timer is driven by:
// named one-shot alarms at absolute times, cancellable periodic tasks and a
// trailing-edge throttle.
package scheduler

import (
	"sync"
	"time"

	"flowbar/backend/internal/clock"
)

// AlarmHandler receives the name of a fired alarm.
type AlarmHandler func(name string)

// Alarms keeps at most one pending wake-up per name. Scheduling a name again
// replaces the previous wake-up.
type Alarms struct {
	clock clock.Clock

	mu      sync.Mutex
	handler AlarmHandler
	pending map[string]*alarm
}

type alarm struct {
	at    time.Time
	timer clock.Timer
}

func NewAlarms(c clock.Clock) *Alarms {
	return &Alarms{
		clock:   c,
		pending: make(map[string]*alarm),
	}
}

// OnAlarm sets the handler invoked when an alarm fires.
func (a *Alarms) OnAlarm(handler AlarmHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = handler
}

// Schedule arms name to fire at the absolute time at. A time in the past
// fires as soon as possible.
func (a *Alarms) Schedule(name string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.pending[name]; ok {
		existing.timer.Stop()
	}

	delay := at.Sub(a.clock.Now())
	if delay < 0 {
		delay = 0
	}
	entry := &alarm{at: at}
	entry.timer = a.clock.AfterFunc(delay, func() {
		a.fire(name, entry)
	})
	a.pending[name] = entry
}

// Clear cancels name. It reports whether an alarm was pending.
func (a *Alarms) Clear(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.pending[name]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(a.pending, name)
	return true
}

// ClearAll cancels every pending alarm.
func (a *Alarms) ClearAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, entry := range a.pending {
		entry.timer.Stop()
		delete(a.pending, name)
	}
}

// Get returns the scheduled time of name.
func (a *Alarms) Get(name string) (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.pending[name]
	if !ok {
		return time.Time{}, false
	}
	return entry.at, true
}

func (a *Alarms) fire(name string, entry *alarm) {
	a.mu.Lock()
	// A replaced or cleared alarm may still reach here if Stop lost the race.
	if a.pending[name] != entry {
		a.mu.Unlock()
		return
	}
	delete(a.pending, name)
	handler := a.handler
	a.mu.Unlock()

	if handler != nil {
		handler(name)
	}
}
