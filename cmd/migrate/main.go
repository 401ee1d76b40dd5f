// Command migrate applies the embedded schema to the configured database.
//
// Postgres is migrated explicitly; SQLite databases apply their schema when
// they are opened, so running migrate against one only creates the file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/smartbin/internal/config"
	"github.com/sakif/smartbin/internal/repository/postgres"
	"github.com/sakif/smartbin/internal/repository/sqlite"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load before reading the environment")
	timeout := flag.Duration("timeout", 2*time.Minute, "give up after this long")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := migrate(ctx, cfg, logger); err != nil {
		logger.Error("migration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("database is up to date", slog.String("driver", cfg.DB.Driver))
}

func migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	switch cfg.DB.Driver {
	case config.DriverPostgres:
		db, err := postgres.New(ctx, cfg.DB.URL, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Migrate(ctx)
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.DB.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
		db, err := sqlite.New(cfg.DB.SQLitePath)
		if err != nil {
			return err
		}
		return db.Close()
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", cfg.DB.Driver)
	}
}
