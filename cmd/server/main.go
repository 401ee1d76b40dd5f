// Command server runs the smartbin REST API.
//
// Configuration comes from the environment (optionally seeded from .env);
// run with --help to list every variable.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sakif/smartbin/internal/config"
	"github.com/sakif/smartbin/internal/server"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load before reading the environment")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [--env FILE]\n\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, config.Usage())
	}
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// The SQLite file lives under data/ by default; create it on first run.
	if cfg.DB.Driver == config.DriverSQLite && cfg.DB.SQLitePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deps, err := server.BuildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, deps, logger)
	if err != nil {
		deps.Close()
		return fmt.Errorf("creating server: %w", err)
	}

	// Blocks until SIGINT/SIGTERM; Start closes deps on the way out.
	return srv.Start()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := config.ParseLevel(cfg.LogLevel) // validated by config.Load
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
