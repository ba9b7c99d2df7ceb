// Package dispatcher routes platform events and control messages to the
// timer, tracking ledger and distraction gate. It owns the activity context.
package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"flowbar/backend/internal/clock"
	"flowbar/backend/internal/model"
	"flowbar/backend/internal/repository"
	"flowbar/backend/internal/scheduler"
	"flowbar/backend/internal/service"
	"flowbar/backend/internal/surface"
)

const DefaultRefreshInterval = 2 * time.Second

type Deps struct {
	Activity *service.Activity
	Timer    *service.TimerService
	Tracking *service.TrackingService
	Gate     *service.GateService
	Settings *service.SettingsService
	Notifier surface.Notifier
	Clock    clock.Clock
	Logger   *slog.Logger
}

type Dispatcher struct {
	activity *service.Activity
	timer    *service.TimerService
	tracking *service.TrackingService
	gate     *service.GateService
	settings *service.SettingsService
	notifier surface.Notifier
	clock    clock.Clock
	logger   *slog.Logger

	refresh *scheduler.Throttle
}

// New builds a dispatcher. Title refreshes are throttled to one per
// refreshInterval.
func New(deps Deps, refreshInterval time.Duration) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = surface.Discard{}
	}
	if refreshInterval <= 0 {
		refreshInterval = DefaultRefreshInterval
	}
	d := &Dispatcher{
		activity: deps.Activity,
		timer:    deps.Timer,
		tracking: deps.Tracking,
		gate:     deps.Gate,
		settings: deps.Settings,
		notifier: deps.Notifier,
		clock:    deps.Clock,
		logger:   deps.Logger.With("component", "dispatcher"),
	}
	d.refresh = scheduler.NewThrottle(d.clock, refreshInterval, func() {
		d.refreshTitle(context.Background())
	})
	return d
}

// Activity returns the current browsing context.
func (d *Dispatcher) Activity() service.ActivitySnapshot {
	return d.activity.Snapshot()
}

// TabActivated makes tabID the active tab. Switching to another site closes
// the focus session of the one left behind.
func (d *Dispatcher) TabActivated(ctx context.Context, tabID int, rawURL string) service.ActivitySnapshot {
	domain, _ := model.DomainFromURL(rawURL)
	d.timer.MoveActivity(ctx, func() (string, string) {
		return d.activity.SetActive(tabID, domain), domain
	})

	border := surface.BorderFor(d.timer.State(ctx), d.clock.Now())
	border.TabID = tabID
	d.notifier.Notify(ctx, border)
	d.refresh.Trigger()
	return d.activity.Snapshot()
}

// NavigationCommitted runs the gate for a committed main-frame navigation.
// On the active tab it also moves tracking to the new domain.
func (d *Dispatcher) NavigationCommitted(ctx context.Context, tabID, frameID int, rawURL string) service.Decision {
	if frameID != 0 {
		return service.Decision{Action: service.GateAllow, URL: rawURL, Reason: "subframe"}
	}

	decision := d.gate.CheckNavigation(ctx, rawURL)
	if d.activity.IsActiveTab(tabID) {
		domain := ""
		if decision.Action == service.GateAllow {
			domain = decision.Domain
		}
		d.timer.MoveActivity(ctx, func() (string, string) {
			return d.activity.SetDomain(domain), domain
		})
		d.refresh.Trigger()
	}
	return decision
}

// WindowFocusChanged suspends tracking while the browser window is in the
// background and resumes it on the last domain.
func (d *Dispatcher) WindowFocusChanged(ctx context.Context, focused bool) service.ActivitySnapshot {
	d.timer.MoveActivity(ctx, func() (string, string) {
		domain := d.activity.SetWindowFocused(focused)
		if focused {
			return "", domain
		}
		return domain, ""
	})
	if focused {
		d.refresh.Trigger()
	}
	return d.activity.Snapshot()
}

func (d *Dispatcher) AlarmFired(ctx context.Context, name string) model.TimerInfo {
	d.logger.Debug("alarm fired", "alarm", name)
	d.timer.HandleAlarm(ctx, name)
	return d.timer.Info(ctx)
}

func (d *Dispatcher) Startup(ctx context.Context) model.TimerInfo {
	d.timer.Restore(ctx)
	return d.timer.Info(ctx)
}

// Installed handles install and update. A fresh install seeds defaults and
// raises the firstInstall flag.
func (d *Dispatcher) Installed(ctx context.Context, reason string) model.TimerInfo {
	if reason == "install" {
		if err := d.settings.MarkInstalled(ctx); err != nil {
			d.logger.Error("failed to mark first install", "error", err)
		}
	}
	d.logger.Info("installed", "reason", reason)
	return d.Startup(ctx)
}

// StorageChanged reacts to writes in the store: new durations reset an idle
// timer, anything the title depends on schedules a throttled refresh.
func (d *Dispatcher) StorageChanged(ctx context.Context, change repository.StorageChange) {
	switch change.Key {
	case model.KeyFocusDuration, model.KeyBreakDuration:
		if change.Partition == repository.PartitionSync {
			d.timer.RefreshIdle(ctx)
		}
	case model.KeyDistractionSites, model.KeyFocusSites, model.KeyTimerState, model.KeyTimeData:
		d.refresh.Trigger()
	}
}

// Run consumes store changes until ctx is done or the channel closes.
func (d *Dispatcher) Run(ctx context.Context, changes <-chan repository.StorageChange) error {
	defer d.refresh.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			d.StorageChanged(ctx, change)
		}
	}
}

func (d *Dispatcher) refreshTitle(ctx context.Context) {
	active := d.activity.Snapshot()
	if active.Domain == "" {
		return
	}
	summary := d.tracking.DomainSummary(ctx, active.Domain)
	d.notifier.Notify(ctx, surface.Effect{
		Kind:    surface.KindTitle,
		State:   d.timer.State(ctx),
		Color:   summary.GradeColor,
		Text:    summary.Grade,
		TabID:   active.TabID,
		Summary: &summary,
		At:      d.clock.Now(),
	})
}
