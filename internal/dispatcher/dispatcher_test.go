package dispatcher_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowbar/backend/internal/clock"
	"flowbar/backend/internal/dispatcher"
	"flowbar/backend/internal/model"
	"flowbar/backend/internal/repository"
	"flowbar/backend/internal/scheduler"
	"flowbar/backend/internal/service"
	"flowbar/backend/internal/surface"
	"flowbar/backend/internal/testutil"
)

type effects struct {
	mu   sync.Mutex
	seen []surface.Effect
}

func (e *effects) Notify(_ context.Context, effect surface.Effect) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, effect)
}

func (e *effects) count(kind surface.Kind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, effect := range e.seen {
		if effect.Kind == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	ctx      context.Context
	clock    *clock.Fake
	store    *repository.KVRepository
	tracking *service.TrackingService
	settings *service.SettingsService
	effects  *effects
	d        *dispatcher.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ctx:     context.Background(),
		clock:   clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
		store:   repository.NewKVRepository(testutil.OpenDB(t)),
		effects: &effects{},
	}
	activity := service.NewActivity()
	alarms := scheduler.NewAlarms(f.clock)
	f.settings = service.NewSettingsService(f.store, nil)
	f.tracking = service.NewTrackingService(f.store, f.settings, f.clock, nil, service.TrackingOptions{TickWidth: time.Second})
	timer := service.NewTimerService(f.store, f.tracking, activity, alarms, f.clock, f.effects, nil, service.TimerOptions{})
	gate := service.NewGateService(timer, f.tracking, f.settings, f.clock, nil, "")
	t.Cleanup(timer.Shutdown)

	f.d = dispatcher.New(dispatcher.Deps{
		Activity: activity,
		Timer:    timer,
		Tracking: f.tracking,
		Gate:     gate,
		Settings: f.settings,
		Notifier: f.effects,
		Clock:    f.clock,
	}, 2*time.Second)
	alarms.OnAlarm(func(name string) { f.d.AlarmFired(f.ctx, name) })

	_, apiErr := f.settings.Update(f.ctx, model.Settings{
		FocusDuration:    1500,
		BreakDuration:    300,
		DistractionSites: "youtube.com",
	})
	require.Nil(t, apiErr)
	return f
}

func (f *fixture) sessions(domain string) []model.Session {
	var result []model.Session
	for _, session := range f.tracking.TimeData(f.ctx).SessionHistory {
		if model.SameSite(session.Domain, domain) {
			result = append(result, session)
		}
	}
	return result
}

func TestControlMessages(t *testing.T) {
	f := newFixture(t)

	response := f.d.HandleMessage(f.ctx, dispatcher.Message{Action: dispatcher.ActionStartTimer})
	require.True(t, response.Success)
	assert.Equal(t, model.StateFocus, response.TimerState)

	response = f.d.HandleMessage(f.ctx, dispatcher.Message{Action: dispatcher.ActionStartTimer})
	assert.False(t, response.Success)
	assert.Equal(t, "timer_running", response.Code)
	assert.Equal(t, 409, response.Status())

	f.clock.Advance(90 * time.Second)
	response = f.d.HandleMessage(f.ctx, dispatcher.Message{Action: dispatcher.ActionGetTimerInfo})
	require.True(t, response.Success)
	assert.Equal(t, 1410, response.TimeLeft)

	response = f.d.HandleMessage(f.ctx, dispatcher.Message{Action: dispatcher.ActionStopTimer})
	require.True(t, response.Success)
	require.NotNil(t, response.ElapsedSeconds)
	assert.Equal(t, 90, *response.ElapsedSeconds)
	assert.Equal(t, model.StateStopped, response.TimerState)

	response = f.d.HandleMessage(f.ctx, dispatcher.Message{Action: "selfDestruct"})
	assert.False(t, response.Success)
	assert.Equal(t, "unknown_action", response.Code)
	assert.Equal(t, 404, response.Status())
}

func TestGetTimerInfoEncodesFlat(t *testing.T) {
	f := newFixture(t)

	response := f.d.HandleMessage(f.ctx, dispatcher.Message{Action: dispatcher.ActionGetTimerInfo})
	raw, err := json.Marshal(response)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, true, decoded["success"])
	assert.Equal(t, "stopped", decoded["timerState"])
	assert.Equal(t, float64(1500), decoded["timeLeft"])
	assert.NotContains(t, decoded, "error")
}

func TestAllowDistractionMessage(t *testing.T) {
	f := newFixture(t)
	f.d.HandleMessage(f.ctx, dispatcher.Message{Action: dispatcher.ActionStartTimer})

	decision := f.d.NavigationCommitted(f.ctx, 3, 0, "https://www.youtube.com/")
	assert.Equal(t, service.GateRedirect, decision.Action)

	response := f.d.HandleMessage(f.ctx, dispatcher.Message{Action: dispatcher.ActionAllowDistraction, Site: "www.youtube.com"})
	require.True(t, response.Success)
	require.NotNil(t, response.Grant)
	assert.Equal(t, "https://www.youtube.com", response.Grant.Target)

	decision = f.d.NavigationCommitted(f.ctx, 3, 0, "https://www.youtube.com/")
	assert.Equal(t, service.GateAllow, decision.Action)

	response = f.d.HandleMessage(f.ctx, dispatcher.Message{Action: dispatcher.ActionAllowDistraction})
	assert.False(t, response.Success)
	assert.Equal(t, "invalid_site", response.Code)
}

func TestTabSwitchClosesPreviousSession(t *testing.T) {
	f := newFixture(t)
	f.d.TabActivated(f.ctx, 1, "https://go.dev/doc")
	f.d.HandleMessage(f.ctx, dispatcher.Message{Action: dispatcher.ActionStartTimer})
	f.clock.Advance(5 * time.Second)

	snapshot := f.d.TabActivated(f.ctx, 2, "https://pkg.go.dev/")
	assert.Equal(t, 2, snapshot.TabID)
	assert.Equal(t, "pkg.go.dev", snapshot.Domain)

	previous := f.sessions("go.dev")
	require.Len(t, previous, 1)
	assert.False(t, previous[0].IsOpen())
	assert.Equal(t, 5, previous[0].Duration)

	f.clock.Advance(3 * time.Second)
	current := f.sessions("pkg.go.dev")
	require.Len(t, current, 1)
	assert.True(t, current[0].IsOpen())
	assert.Equal(t, 3, current[0].Duration)
}

func TestWindowBlurSuspendsTracking(t *testing.T) {
	f := newFixture(t)
	f.d.TabActivated(f.ctx, 1, "https://go.dev/")
	f.d.HandleMessage(f.ctx, dispatcher.Message{Action: dispatcher.ActionStartTimer})
	f.clock.Advance(4 * time.Second)

	f.d.WindowFocusChanged(f.ctx, false)
	f.clock.Advance(20 * time.Second)
	sessions := f.sessions("go.dev")
	require.Len(t, sessions, 1)
	assert.False(t, sessions[0].IsOpen())
	assert.Equal(t, 4, sessions[0].Duration)

	snapshot := f.d.WindowFocusChanged(f.ctx, true)
	assert.Equal(t, "go.dev", snapshot.Domain)
	f.clock.Advance(2 * time.Second)
	assert.Len(t, f.sessions("go.dev"), 2)
}

func TestNavigationOnInactiveTabLeavesActivity(t *testing.T) {
	f := newFixture(t)
	f.d.TabActivated(f.ctx, 1, "https://go.dev/")

	f.d.NavigationCommitted(f.ctx, 9, 0, "https://example.com/")
	assert.Equal(t, "go.dev", f.d.Activity().Domain)

	f.d.NavigationCommitted(f.ctx, 1, 4, "https://ads.example.net/frame")
	assert.Equal(t, "go.dev", f.d.Activity().Domain, "subframes are ignored")

	f.d.NavigationCommitted(f.ctx, 1, 0, "https://www.example.com/")
	assert.Equal(t, "example.com", f.d.Activity().Domain)
}

func TestTitleRefreshIsThrottled(t *testing.T) {
	f := newFixture(t)
	f.d.TabActivated(f.ctx, 1, "https://go.dev/")
	require.Equal(t, 1, f.effects.count(surface.KindTitle))

	for i := 0; i < 5; i++ {
		f.d.StorageChanged(f.ctx, repository.StorageChange{Partition: repository.PartitionLocal, Key: model.KeyTimeData})
	}
	assert.Equal(t, 1, f.effects.count(surface.KindTitle))

	f.clock.Advance(2 * time.Second)
	assert.Equal(t, 2, f.effects.count(surface.KindTitle), "trailing refresh")
}

func TestSettingsChangeRefreshesIdleTimer(t *testing.T) {
	f := newFixture(t)
	f.d.HandleMessage(f.ctx, dispatcher.Message{Action: dispatcher.ActionStartTimer})
	f.d.HandleMessage(f.ctx, dispatcher.Message{Action: dispatcher.ActionResetTimer})

	changes, unsubscribe := f.store.Subscribe(16)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(f.ctx)
	done := make(chan error, 1)
	go func() { done <- f.d.Run(ctx, changes) }()

	_, apiErr := f.settings.Update(f.ctx, model.Settings{FocusDuration: 3000, BreakDuration: 300})
	require.Nil(t, apiErr)

	assert.Eventually(t, func() bool {
		var timeLeft int
		err := f.store.GetJSON(f.ctx, repository.PartitionSync, model.KeyTimeLeft, &timeLeft)
		return err == nil && timeLeft == 3000
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestInstalledSeedsDefaults(t *testing.T) {
	f := newFixture(t)

	info := f.d.Installed(f.ctx, "install")
	assert.Equal(t, model.StateStopped, info.TimerState)

	first, apiErr := f.settings.ConsumeFirstInstall(f.ctx)
	require.Nil(t, apiErr)
	assert.True(t, first)
}
