package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"flowbar/backend/internal/app"
	"flowbar/backend/internal/clock"
	"flowbar/backend/internal/config"
	"flowbar/backend/internal/db"
	"flowbar/backend/internal/notify"
	"flowbar/backend/internal/surface"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.NewLogger("info", os.Stderr).Error("load config", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("flowbar daemon stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	var extra []surface.Notifier
	var desktop *notify.Desktop
	if cfg.DesktopNotifications {
		desktop = notify.NewDesktop("Flowbar", logger)
		extra = append(extra, desktop)
	}

	daemon, err := app.New(cfg, database, clock.Real(), logger, extra...)
	if err != nil {
		return err
	}
	defer daemon.Close()

	if !daemon.Auth.Enabled() {
		logger.Warn("pairing secret not set, API is open to local clients")
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           daemon.Engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("flowbar daemon listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("run server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return daemon.Run(groupCtx)
	})
	if desktop != nil {
		group.Go(func() error {
			return desktop.Run(groupCtx)
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
