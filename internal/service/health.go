package service

import (
	"context"
	"log/slog"
	"time"
)

const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthDown     = "error"

	pingTimeout = 2 * time.Second
)

// Pinger is anything that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// DependencyStatus is the health of one backing service.
type DependencyStatus struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type HealthReport struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies"`
}

// HealthService pings the database and the optional dependencies. Only
// the database is critical: an optional failure degrades the report.
type HealthService struct {
	db       Pinger
	optional map[string]Pinger
	logger   *slog.Logger
	now      func() time.Time
}

func NewHealthService(db Pinger, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{db: db, optional: map[string]Pinger{}, logger: logger, now: time.Now}
}

// WithDependency adds a non-critical dependency to the report.
func (h *HealthService) WithDependency(name string, p Pinger) *HealthService {
	h.optional[name] = p
	return h
}

func (h *HealthService) Check(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:       HealthOK,
		Timestamp:    h.now().UTC(),
		Dependencies: make(map[string]DependencyStatus, len(h.optional)+1),
	}

	db := h.ping(ctx, "database", h.db)
	report.Dependencies["database"] = db
	if db.Status != HealthOK {
		report.Status = HealthDown
	}

	for name, p := range h.optional {
		dep := h.ping(ctx, name, p)
		report.Dependencies[name] = dep
		if dep.Status != HealthOK && report.Status == HealthOK {
			report.Status = HealthDegraded
		}
	}
	return report
}

func (h *HealthService) ping(ctx context.Context, name string, p Pinger) DependencyStatus {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	status := DependencyStatus{Status: HealthOK, LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		h.logger.Warn("health check failed", slog.String("dependency", name), slog.String("error", err.Error()))
		status.Status = HealthDown
		status.Error = err.Error()
	}
	return status
}
