// Package main is the entry point of the example store server.
//
// main only reads configuration, builds the logger and the sandbox, and
// hands them to internal/server. Configuration comes from an optional YAML
// file (--config) and AUTHOR_* environment variables:
//
//	AUTHOR_AUTH_JWT_SECRET=$(openssl rand -hex 32) \
//	AUTHOR_DATABASE_PATH=/var/lib/examples/examples.db \
//	server --config /etc/examples/server.yaml
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/sakif/example-author/internal/config"
	"github.com/sakif/example-author/internal/executor"
	"github.com/sakif/example-author/internal/executor/docker"
	"github.com/sakif/example-author/internal/server"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "path to a YAML config file")
	debug := pflag.Bool("debug", false, "log at debug level")
	pflag.Parse()

	// === 1. LOGGING ===
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	// === 2. CONFIGURATION ===
	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Error("auth.jwt_secret is required (set AUTHOR_AUTH_JWT_SECRET)")
		os.Exit(1)
	}

	// os.MkdirAll is mkdir -p; the default database lives under data/
	dbDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", dbDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// === 3. SANDBOX ===
	// Optional: without Docker the server still lists, saves and formats,
	// and execute answers 503.
	var exec executor.Executor
	if cfg.Executor.Enabled {
		sandbox, err := docker.New(context.Background(), cfg.Executor.Docker(), logger)
		if err != nil {
			logger.Warn("Docker executor unavailable, execute will return 503",
				slog.String("error", err.Error()),
			)
		} else {
			defer sandbox.Close()
			exec = sandbox
		}
	}

	// === 4. SERVER ===
	srv, err := server.New(cfg, logger, exec)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
