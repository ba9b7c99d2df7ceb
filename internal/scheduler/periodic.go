package scheduler

import (
	"sync"
	"time"

	"flowbar/backend/internal/clock"
)

// Periodic runs fn every interval until cancelled. Runs never overlap: the
// next run is armed only after fn returns.
type Periodic struct {
	clock    clock.Clock
	interval time.Duration
	fn       func(now time.Time)

	mu        sync.Mutex
	timer     clock.Timer
	cancelled bool
}

// Every starts a periodic task. The first run happens one interval from now.
func Every(c clock.Clock, interval time.Duration, fn func(now time.Time)) *Periodic {
	if interval <= 0 {
		interval = time.Second
	}
	p := &Periodic{clock: c, interval: interval, fn: fn}
	p.mu.Lock()
	p.armLocked()
	p.mu.Unlock()
	return p
}

// Cancel stops the task. It is safe to call more than once and from fn.
func (p *Periodic) Cancel() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = true
	if p.timer != nil {
		p.timer.Stop()
	}
}

func (p *Periodic) Cancelled() bool {
	if p == nil {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

func (p *Periodic) armLocked() {
	p.timer = p.clock.AfterFunc(p.interval, p.run)
}

func (p *Periodic) run() {
	p.mu.Lock()
	if p.cancelled {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.fn(p.clock.Now())

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.cancelled {
		p.armLocked()
	}
}
