package main

import (
	"os"

	"flowbar/backend/internal/config"
	"flowbar/backend/internal/db"
)

func main() {
	cfg, err := config.Load()
	logger := config.NewLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Error("open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
		logger.Error("run migrations", "error", err)
		os.Exit(1)
	}

	logger.Info("migrations applied successfully", "path", cfg.DBPath)
}
