// Package config loads runtime settings from the environment, optionally
// seeded from a .env file, and checks they make sense together.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port      int    `env:"PORT" env-default:"5000" env-description:"HTTP listen port"`
	LogLevel  string `env:"LOG_LEVEL" env-default:"info" env-description:"debug, info, warn or error"`
	LogFormat string `env:"LOG_FORMAT" env-default:"text" env-description:"text or json"`
	StaticDir string `env:"STATIC_DIR" env-description:"built SPA bundle to serve; empty disables"`

	DB         DB
	Auth       Auth
	Supabase   Supabase
	Throttle   Throttle
	Redis      Redis
	AMQP       AMQP
	Sensor     Sensor
	Scheduler  Scheduler
	HTTPServer HTTPServer
}

type DB struct {
	Driver     string `env:"DB_DRIVER" env-default:"sqlite" env-description:"postgres or sqlite"`
	URL        string `env:"DATABASE_URL" env-description:"Postgres DSN"`
	SQLitePath string `env:"SQLITE_PATH" env-default:"data/smartbin.db"`
}

type Auth struct {
	JWTSecret string        `env:"JWT_SECRET" env-default:"your-secret-key-change-in-production"`
	JWTTTL    time.Duration `env:"JWT_TTL" env-default:"168h"`
}

type Supabase struct {
	URL                  string `env:"SUPABASE_URL"`
	AnonKey              string `env:"SUPABASE_ANON_KEY"`
	ServiceRoleKey       string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	EmailConfirmRedirect string `env:"EMAIL_CONFIRM_REDIRECT_TO" env-default:"http://localhost:5000"`
}

type Throttle struct {
	Interval time.Duration `env:"THROTTLE_INTERVAL" env-default:"12s"`
}

type Redis struct {
	URL string `env:"REDIS_URL" env-description:"enables shared throttling when set"`
}

type AMQP struct {
	URL      string `env:"AMQP_URL" env-description:"enables event publishing when set"`
	Exchange string `env:"AMQP_EXCHANGE" env-default:"smartbin.events"`
}

type Sensor struct {
	APIKey string `env:"SENSOR_API_KEY" env-description:"shared key for POST /api/sensor/data"`
}

type Scheduler struct {
	MaintenanceSchedule string        `env:"MAINTENANCE_SCHEDULE" env-default:"@every 15m"`
	StaleAfter          time.Duration `env:"STALE_AFTER" env-default:"24h"`
}

type HTTPServer struct {
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"30s"`
}

// Load reads envFiles (missing files are skipped) into the process
// environment without overriding variables that are already set, then
// parses the environment into a Config and validates it.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: reading %s: %w", f, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when DB_DRIVER=postgres"))
		}
	case DriverSQLite:
		if c.DB.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required when DB_DRIVER=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DB.Driver))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if (c.Supabase.URL == "") != (c.Supabase.AnonKey == "") {
		errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_ANON_KEY must be set together"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if c.Throttle.Interval < 0 {
		errs = append(errs, errors.New("THROTTLE_INTERVAL must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// UseSupabase reports whether credentials are delegated to Supabase Auth.
func (c *Config) UseSupabase() bool {
	return c.Supabase.URL != "" && c.Supabase.AnonKey != ""
}

// ParseLevel maps LOG_LEVEL onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q is not a valid level", s)
	}
	return level, nil
}

// Usage lists every supported variable, for --help output.
func Usage() string {
	var cfg Config
	desc, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return desc
}
