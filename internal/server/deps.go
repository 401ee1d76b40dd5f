package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/smartbin/internal/auth"
	"github.com/sakif/smartbin/internal/config"
	"github.com/sakif/smartbin/internal/events"
	"github.com/sakif/smartbin/internal/identity"
	"github.com/sakif/smartbin/internal/metrics"
	"github.com/sakif/smartbin/internal/repository"
	"github.com/sakif/smartbin/internal/repository/postgres"
	"github.com/sakif/smartbin/internal/repository/sqlite"
	"github.com/sakif/smartbin/internal/throttle"
)

// Deps are the long-lived collaborators shared by every request. The
// server owns them and closes them on shutdown.
type Deps struct {
	Store     repository.Store
	Identity  identity.Provider
	Tokens    *auth.TokenService
	Passwords *auth.PasswordService

	RegisterThrottle throttle.Throttle
	ResendThrottle   throttle.Throttle

	Events  events.Publisher
	Metrics *metrics.Metrics

	// Redis is nil unless REDIS_URL is set.
	Redis redis.UniversalClient
}

// OpenStore connects to the database selected by cfg.DB.Driver. SQLite is
// migrated on open; Postgres is migrated by cmd/migrate.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	switch cfg.DB.Driver {
	case config.DriverPostgres:
		db, err := postgres.New(ctx, cfg.DB.URL, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.DriverSQLite:
		db, err := sqlite.New(cfg.DB.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DB.Driver)
	}
}

// NewIdentity returns the Supabase client when a project is configured and
// the local bcrypt provider otherwise.
func NewIdentity(cfg *config.Config, users repository.UserRepository, passwords *auth.PasswordService) (identity.Provider, error) {
	if !cfg.UseSupabase() {
		return identity.NewLocal(users, passwords), nil
	}
	sb, err := identity.NewSupabase(identity.SupabaseConfig{
		URL:            cfg.Supabase.URL,
		AnonKey:        cfg.Supabase.AnonKey,
		ServiceRoleKey: cfg.Supabase.ServiceRoleKey,
	})
	if err != nil {
		return nil, err
	}
	return sb, nil
}

// BuildDeps wires every dependency from cfg. On error, whatever was
// already opened is closed.
func BuildDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Deps, err error) {
	d := &Deps{Metrics: metrics.New(), Passwords: auth.NewPasswordService()}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	if d.Store, err = OpenStore(ctx, cfg, logger); err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if d.Tokens, err = auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL); err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	if d.Identity, err = NewIdentity(cfg, d.Store.Users(), d.Passwords); err != nil {
		return nil, fmt.Errorf("creating identity provider: %w", err)
	}

	if cfg.Redis.URL != "" {
		opts, perr := redis.ParseURL(cfg.Redis.URL)
		if perr != nil {
			return nil, fmt.Errorf("parsing REDIS_URL: %w", perr)
		}
		d.Redis = redis.NewClient(opts)
		if err = d.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("pinging redis: %w", err)
		}
		d.RegisterThrottle = throttle.NewRedis(d.Redis, "smartbin:throttle:register", cfg.Throttle.Interval)
		d.ResendThrottle = throttle.NewRedis(d.Redis, "smartbin:throttle:resend", cfg.Throttle.Interval)
	} else {
		d.RegisterThrottle = throttle.NewMemory(cfg.Throttle.Interval, 0)
		d.ResendThrottle = throttle.NewMemory(cfg.Throttle.Interval, 0)
	}

	d.Events = events.Nop{}
	if cfg.AMQP.URL != "" {
		broker, derr := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if derr != nil {
			return nil, fmt.Errorf("connecting to broker: %w", derr)
		}
		d.Events = broker
	}

	logger.Info("dependencies ready",
		slog.String("db", cfg.DB.Driver),
		slog.String("identity", d.Identity.Name()),
		slog.Bool("redis", d.Redis != nil),
		slog.Bool("events", cfg.AMQP.URL != ""),
	)
	return d, nil
}

// Close releases every non-nil dependency.
func (d *Deps) Close() error {
	var errs []error
	if d.Events != nil {
		errs = append(errs, d.Events.Close())
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	return errors.Join(errs...)
}
