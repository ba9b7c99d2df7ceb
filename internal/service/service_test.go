package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"flowbar/backend/internal/clock"
	"flowbar/backend/internal/model"
	"flowbar/backend/internal/repository"
	"flowbar/backend/internal/scheduler"
	"flowbar/backend/internal/surface"
	"flowbar/backend/internal/testutil"
)

var epoch = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu      sync.Mutex
	effects []surface.Effect
}

func (r *recorder) Notify(_ context.Context, effect surface.Effect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = append(r.effects, effect)
}

func (r *recorder) phases() []surface.Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	var phases []surface.Effect
	for _, effect := range r.effects {
		if effect.Kind == surface.KindPhase {
			phases = append(phases, effect)
		}
	}
	return phases
}

type harness struct {
	ctx      context.Context
	clock    *clock.Fake
	store    *repository.KVRepository
	alarms   *scheduler.Alarms
	activity *Activity
	settings *SettingsService
	tracking *TrackingService
	timer    *TimerService
	gate     *GateService
	effects  *recorder
}

func newHarness(t *testing.T, tick time.Duration) *harness {
	t.Helper()

	h := &harness{
		ctx:      context.Background(),
		clock:    clock.NewFake(epoch),
		store:    repository.NewKVRepository(testutil.OpenDB(t)),
		activity: NewActivity(),
		effects:  &recorder{},
	}
	h.alarms = scheduler.NewAlarms(h.clock)
	h.settings = NewSettingsService(h.store, nil)
	h.tracking = NewTrackingService(h.store, h.settings, h.clock, nil, TrackingOptions{TickWidth: tick})
	h.timer = NewTimerService(h.store, h.tracking, h.activity, h.alarms, h.clock, h.effects, nil, TimerOptions{})
	h.gate = NewGateService(h.timer, h.tracking, h.settings, h.clock, nil, "chrome-extension://test/sanctuary.html")
	h.alarms.OnAlarm(func(name string) { h.timer.HandleAlarm(h.ctx, name) })
	t.Cleanup(h.timer.Shutdown)
	return h
}

func (h *harness) saveSettings(t *testing.T, settings model.Settings) {
	t.Helper()
	_, apiErr := h.settings.Update(h.ctx, settings)
	require.Nil(t, apiErr)
}

func (h *harness) snapshot(t *testing.T) model.TimerSnapshot {
	t.Helper()
	h.timer.mu.Lock()
	defer h.timer.mu.Unlock()
	snapshot, err := h.timer.loadLocked(h.ctx)
	require.NoError(t, err)
	return snapshot
}

func (h *harness) focusSeconds(domain string) int {
	total := 0
	for _, session := range h.tracking.TimeData(h.ctx).SessionHistory {
		if session.Type == model.SessionFocus && model.SameSite(session.Domain, domain) {
			total += session.Duration
		}
	}
	return total
}
