// Package main is the entry point for the Garmin health webhook and tool
// server. Configuration is read by internal/config; everything else is
// wired in internal/server.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/garmin-mcp/internal/config"
	"github.com/sakif/garmin-mcp/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := cfg.Log.Logger(os.Stdout)
	slog.SetDefault(logger)

	// The SQLite file's directory must exist before the driver opens it.
	if cfg.Store.Driver == config.DriverSQLite && cfg.Store.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Store.Path)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
