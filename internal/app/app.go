// Package app wires the store, services, dispatcher and HTTP engine into
// one daemon.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"

	"flowbar/backend/internal/clock"
	"flowbar/backend/internal/config"
	"flowbar/backend/internal/dispatcher"
	"flowbar/backend/internal/handler"
	"flowbar/backend/internal/repository"
	"flowbar/backend/internal/router"
	"flowbar/backend/internal/scheduler"
	"flowbar/backend/internal/service"
	"flowbar/backend/internal/surface"
)

type App struct {
	Store      *repository.KVRepository
	Hub        *surface.Hub
	Alarms     *scheduler.Alarms
	Timer      *service.TimerService
	Tracking   *service.TrackingService
	Settings   *service.SettingsService
	Auth       *service.AuthService
	Dispatcher *dispatcher.Dispatcher
	Engine     *gin.Engine
}

// New builds the daemon around an already migrated database. Extra
// notifiers receive every effect next to the SSE hub.
func New(cfg config.Config, database *sql.DB, c clock.Clock, logger *slog.Logger, extra ...surface.Notifier) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store := repository.NewKVRepository(database)
	hub := surface.NewHub(logger)
	notifier := surface.Multi(append([]surface.Notifier{hub}, extra...))

	authService, err := service.NewAuthService(cfg.PairingSecret, cfg.JWTSecret, cfg.TokenTTL.Std(), c)
	if err != nil {
		return nil, fmt.Errorf("init auth: %w", err)
	}

	activity := service.NewActivity()
	alarms := scheduler.NewAlarms(c)
	settings := service.NewSettingsService(store, logger)
	tracking := service.NewTrackingService(store, settings, c, logger, service.TrackingOptions{
		TickWidth:  cfg.TickInterval.Std(),
		GrantTTL:   cfg.GrantTTL.Std(),
		HistoryCap: cfg.HistoryCap,
	})
	timer := service.NewTimerService(store, tracking, activity, alarms, c, notifier, logger, service.TimerOptions{
		RecomputeInterval: cfg.RecomputeInterval.Std(),
	})
	gate := service.NewGateService(timer, tracking, settings, c, logger, cfg.SanctuaryURL)

	d := dispatcher.New(dispatcher.Deps{
		Activity: activity,
		Timer:    timer,
		Tracking: tracking,
		Gate:     gate,
		Settings: settings,
		Notifier: notifier,
		Clock:    c,
		Logger:   logger,
	}, cfg.RefreshInterval.Std())
	alarms.OnAlarm(func(name string) {
		d.AlarmFired(context.Background(), name)
	})

	engine := router.New(authService, router.Handlers{
		Auth:     handler.NewAuthHandler(authService),
		Timer:    handler.NewTimerHandler(d),
		Platform: handler.NewPlatformHandler(d),
		Gate:     handler.NewGateHandler(gate, tracking),
		Tracking: handler.NewTrackingHandler(tracking),
		Settings: handler.NewSettingsHandler(settings),
		Stream:   handler.NewStreamHandler(hub, store),
	}, cfg.CORSOrigins)

	return &App{
		Store:      store,
		Hub:        hub,
		Alarms:     alarms,
		Timer:      timer,
		Tracking:   tracking,
		Settings:   settings,
		Auth:       authService,
		Dispatcher: d,
		Engine:     engine,
	}, nil
}

// Run restores the timer and feeds storage changes to the dispatcher until
// ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	changes, unsubscribe := a.Store.Subscribe(64)
	defer unsubscribe()

	a.Dispatcher.Startup(ctx)
	return a.Dispatcher.Run(ctx, changes)
}

// Close stops every timer owned by the daemon.
func (a *App) Close() {
	a.Timer.Shutdown()
}
