// Package postgres implements the repository interfaces on top of a
// Postgres database (the managed Supabase instance in production) using
// lib/pq through database/sql.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"time"

	"github.com/lib/pq"

	"github.com/sakif/smartbin/internal/apperror"
	"github.com/sakif/smartbin/internal/repository"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Postgres SQLSTATE codes we translate into domain errors.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	invalidTextRepr     = "22P02"
)

var _ repository.Store = (*DB)(nil)

// DB wraps the connection pool and hands out per-table repositories.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// New opens a pool for dsn and verifies it with a ping.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening database: %w", err)
	}
	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	return NewWithConn(conn, logger), nil
}

// NewWithConn wraps an existing pool. Tests use it with sqlmock.
func NewWithConn(conn *sql.DB, logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{conn: conn, logger: logger}
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

func (db *DB) Close() error {
	return db.conn.Close()
}

// Migrate applies every embedded migration in lexical order. The scripts
// are idempotent (IF NOT EXISTS), so re-running them is safe.
func (db *DB) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("postgres: listing migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrationFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("postgres: reading %s: %w", name, err)
		}
		if _, err := db.conn.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("postgres: applying %s: %w", name, err)
		}
		db.logger.Info("migration applied", slog.String("file", name))
	}
	return nil
}

// translate converts driver errors into apperror values. Anything it does
// not recognise is wrapped with op and returned as-is.
func translate(err error, op, resource, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound(resource, id)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case uniqueViolation:
			return apperror.Conflict(fmt.Sprintf("%s already exists (%s)", resource, pqErr.Constraint))
		case foreignKeyViolation:
			return apperror.NotFound("referenced record", id)
		case invalidTextRepr:
			// A malformed uuid can never match a row.
			return apperror.NotFound(resource, id)
		}
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}
