// Package metrics exposes Prometheus collectors for the HTTP layer and the
// domain flows worth watching: login outcomes, sensor ingestion and alerts.
// A nil *Metrics is valid and records nothing, which keeps tests simple.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login outcomes.
const (
	LoginSuccess  = "success"
	LoginRejected = "rejected"
	LoginError    = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	logins         *prometheus.CounterVec
	profileCreates prometheus.Counter
	readings       *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	throttled      *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, plus the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartbin_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smartbin_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartbin_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		profileCreates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartbin_profiles_autocreated_total",
			Help: "Profiles created on first login",
		}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartbin_sensor_readings_total",
			Help: "Sensor readings ingested, by resulting bin status",
		}, []string{"status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartbin_notifications_created_total",
			Help: "Notifications created, by type",
		}, []string{"type"}),
		throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartbin_throttled_requests_total",
			Help: "Requests rejected by the email throttle",
		}, []string{"flow"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration,
		m.logins, m.profileCreates, m.readings, m.notifications, m.throttled,
	)
	return m
}

// Handler serves the exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ProfileCreated() {
	if m == nil {
		return
	}
	m.profileCreates.Inc()
}

func (m *Metrics) Reading(status string) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(status).Inc()
}

func (m *Metrics) Notification(kind string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind).Inc()
}

func (m *Metrics) Throttled(flow string) {
	if m == nil {
		return
	}
	m.throttled.WithLabelValues(flow).Inc()
}
