// Package sqlite implements the repository interfaces on an embedded SQLite
// database. It backs local development (DB_DRIVER=sqlite) where no managed
// Postgres is available, and the service-level tests.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so no C toolchain
// is needed to build or cross-compile.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/smartbin/internal/apperror"
	"github.com/sakif/smartbin/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and hands out per-table repositories.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/smartbin.db"  → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests)
//
// The pool is capped at one connection. SQLite allows a single writer
// anyway, and an in-memory database only exists on the connection that
// created it.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

func (db *DB) Users() repository.UserRepository     { return &UserDB{conn: db.conn} }
func (db *DB) Bins() repository.BinRepository       { return &BinDB{conn: db.conn} }
func (db *DB) Actions() repository.ActionRepository { return &ActionDB{conn: db.conn} }
func (db *DB) Notifications() repository.NotificationRepository {
	return &NotificationDB{conn: db.conn}
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
			phone         TEXT,
			role          TEXT NOT NULL DEFAULT 'public',
			password_hash TEXT,
			avatar_url    TEXT,
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL,
			last_login    DATETIME
		);

		CREATE TABLE IF NOT EXISTS trash_bins (
			id               TEXT PRIMARY KEY,
			name             TEXT NOT NULL,
			location         TEXT NOT NULL DEFAULT '',
			latitude         REAL,
			longitude        REAL,
			fill_level       INTEGER NOT NULL DEFAULT 0,
			status           TEXT NOT NULL DEFAULT 'normal',
			battery_level    INTEGER NOT NULL DEFAULT 100,
			sensor_id        TEXT UNIQUE,
			capacity         INTEGER NOT NULL DEFAULT 0,
			notes            TEXT NOT NULL DEFAULT '',
			field_officer_id TEXT REFERENCES users(id) ON DELETE SET NULL,
			last_collection  DATETIME,
			next_collection  DATETIME,
			created_at       DATETIME NOT NULL,
			updated_at       DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trash_bins_status ON trash_bins(status);

		CREATE TABLE IF NOT EXISTS action_history (
			id         TEXT PRIMARY KEY,
			user_id    TEXT REFERENCES users(id) ON DELETE SET NULL,
			bin_id     TEXT REFERENCES trash_bins(id) ON DELETE SET NULL,
			action     TEXT NOT NULL,
			notes      TEXT,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_action_history_created_at ON action_history(created_at);

		CREATE TABLE IF NOT EXISTS notifications (
			id         TEXT PRIMARY KEY,
			bin_id     TEXT REFERENCES trash_bins(id) ON DELETE CASCADE,
			message    TEXT NOT NULL,
			type       TEXT NOT NULL DEFAULT 'info',
			read       INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at);

		CREATE TABLE IF NOT EXISTS sensor_readings (
			id            TEXT PRIMARY KEY,
			bin_id        TEXT NOT NULL REFERENCES trash_bins(id) ON DELETE CASCADE,
			fill_level    INTEGER NOT NULL,
			battery_level INTEGER,
			recorded_at   DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sensor_readings_bin ON sensor_readings(bin_id, recorded_at);
	`)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// translate maps driver errors onto apperror values.
func translate(err error, op, resource, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound(resource, id)
	}
	var sqliteErr *moderncsqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return apperror.Conflict(fmt.Sprintf("%s already exists", resource))
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return apperror.NotFound("referenced record", id)
		}
	}
	return fmt.Errorf("sqlite: %s: %w", op, err)
}
