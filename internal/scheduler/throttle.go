package scheduler

import (
	"sync"
	"time"

	"flowbar/backend/internal/clock"
)

// Throttle runs fn at most once per interval. A call inside the window is
// coalesced into a single trailing run at the end of the window.
type Throttle struct {
	clock    clock.Clock
	interval time.Duration
	fn       func()

	mu       sync.Mutex
	lastRun  time.Time
	trailing clock.Timer
	stopped  bool
}

func NewThrottle(c clock.Clock, interval time.Duration, fn func()) *Throttle {
	return &Throttle{clock: c, interval: interval, fn: fn}
}

// Trigger requests a run.
func (t *Throttle) Trigger() {
	t.mu.Lock()
	if t.stopped || t.trailing != nil {
		t.mu.Unlock()
		return
	}

	now := t.clock.Now()
	wait := t.interval - now.Sub(t.lastRun)
	if t.lastRun.IsZero() || wait <= 0 {
		t.lastRun = now
		t.mu.Unlock()
		t.fn()
		return
	}

	t.trailing = t.clock.AfterFunc(wait, func() {
		t.mu.Lock()
		t.trailing = nil
		if t.stopped {
			t.mu.Unlock()
			return
		}
		t.lastRun = t.clock.Now()
		t.mu.Unlock()
		t.fn()
	})
	t.mu.Unlock()
}

// Stop drops any pending trailing run and ignores later triggers.
func (t *Throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.trailing != nil {
		t.trailing.Stop()
		t.trailing = nil
	}
}
