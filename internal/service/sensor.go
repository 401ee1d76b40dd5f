package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/smartbin/internal/apperror"
	"github.com/sakif/smartbin/internal/events"
	"github.com/sakif/smartbin/internal/metrics"
	"github.com/sakif/smartbin/internal/model"
	"github.com/sakif/smartbin/internal/repository"
)

// SensorService ingests fill/battery readings pushed by bin sensors.
type SensorService struct {
	bins     repository.BinRepository
	notifier *NotificationService
	events   events.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewSensorService(bins repository.BinRepository, notifier *NotificationService, publisher events.Publisher, m *metrics.Metrics, logger *slog.Logger) *SensorService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SensorService{bins: bins, notifier: notifier, events: publisher, metrics: m, logger: logger}
}

// ReadingInput is the body of POST /api/sensor/data. Either BinID or
// SensorID identifies the bin.
type ReadingInput struct {
	BinID        string `json:"bin_id"`
	SensorID     string `json:"sensor_id"`
	FillLevel    *int   `json:"fill_level"`
	BatteryLevel *int   `json:"battery_level"`
}

// IngestResult reports what a reading changed.
type IngestResult struct {
	Reading        *model.SensorReading `json:"reading"`
	Bin            *model.Bin           `json:"bin"`
	PreviousStatus model.BinStatus      `json:"previous_status"`
	Alerts         []model.Notification `json:"alerts"`
}

// Ingest stores the reading and updates the bin. A status escalation
// raises a warning/critical alert and publishes a status event; a battery
// dropping below LowBatteryLevel raises a single info alert. Alert and
// event failures do not fail the reading.
func (s *SensorService) Ingest(ctx context.Context, in ReadingInput) (*IngestResult, error) {
	in.BinID = strings.TrimSpace(in.BinID)
	in.SensorID = strings.TrimSpace(in.SensorID)
	if in.BinID == "" && in.SensorID == "" {
		return nil, apperror.ValidationFailed("bin_id", "Missing required field: bin_id or sensor_id")
	}
	if in.FillLevel == nil {
		return nil, apperror.ValidationFailed("fill_level", "Missing required field: fill_level")
	}
	if err := validatePercent("fill_level", *in.FillLevel); err != nil {
		return nil, err
	}
	if in.BatteryLevel != nil {
		if err := validatePercent("battery_level", *in.BatteryLevel); err != nil {
			return nil, err
		}
	}

	binID := in.BinID
	if binID == "" {
		bin, err := s.bins.GetBySensorID(ctx, in.SensorID)
		if err != nil {
			return nil, fmt.Errorf("service/sensor: resolving sensor %s: %w", in.SensorID, err)
		}
		binID = bin.ID
	}

	status := model.StatusForFill(*in.FillLevel)
	reading := &model.SensorReading{BinID: binID, FillLevel: *in.FillLevel, BatteryLevel: in.BatteryLevel}
	prev, err := s.bins.ApplyReading(ctx, reading, status)
	if err != nil {
		return nil, fmt.Errorf("service/sensor: applying reading: %w", err)
	}
	s.metrics.Reading(string(status))

	current := *prev
	current.FillLevel = reading.FillLevel
	current.Status = status
	if reading.BatteryLevel != nil {
		current.BatteryLevel = *reading.BatteryLevel
	}
	current.UpdatedAt = reading.RecordedAt

	result := &IngestResult{Reading: reading, Bin: &current, PreviousStatus: prev.Status, Alerts: []model.Notification{}}

	if status != prev.Status {
		publish(ctx, s.events, s.logger, events.BinStatusChanged, events.BinStatusChange{
			BinID: binID, Name: current.Name, From: string(prev.Status), To: string(status),
			FillLevel: current.FillLevel, BatteryLevel: current.BatteryLevel,
		})
	}
	if status.Severity() > prev.Status.Severity() {
		kind := model.NotificationWarning
		if status == model.BinFull {
			kind = model.NotificationCritical
		}
		s.alert(ctx, result, binID, fillMessage(&current), kind)
	}
	if current.BatteryLevel < model.LowBatteryLevel && prev.BatteryLevel >= model.LowBatteryLevel {
		s.alert(ctx, result, binID, lowBatteryMessage(&current), model.NotificationInfo)
	}

	s.logger.Debug("sensor reading applied",
		slog.String("bin_id", binID),
		slog.Int("fill_level", current.FillLevel),
		slog.String("status", string(status)),
	)
	return result, nil
}

func (s *SensorService) alert(ctx context.Context, result *IngestResult, binID, message string, kind model.NotificationType) {
	created, err := s.notifier.raise(ctx, binID, message, kind)
	if err != nil {
		s.logger.Warn("raising sensor alert failed (ignored)", slog.String("bin_id", binID), slog.String("error", err.Error()))
		return
	}
	if created {
		result.Alerts = append(result.Alerts, model.Notification{BinID: &binID, Message: message, Type: kind})
	}
}

// Readings returns the latest readings of a bin, newest first.
func (s *SensorService) Readings(ctx context.Context, binID string, limit int) ([]model.SensorReading, error) {
	if _, err := s.bins.GetByID(ctx, binID); err != nil {
		return nil, fmt.Errorf("service/sensor: loading bin: %w", err)
	}
	readings, err := s.bins.ListReadings(ctx, binID, limit)
	if err != nil {
		return nil, fmt.Errorf("service/sensor: listing readings: %w", err)
	}
	return readings, nil
}

// Alert texts are stable per bin so unread duplicates can be detected.
func fillMessage(b *model.Bin) string {
	if b.Status == model.BinFull {
		return fmt.Sprintf("Bin %s is full and needs collection", b.Name)
	}
	return fmt.Sprintf("Bin %s is nearly full", b.Name)
}

func lowBatteryMessage(b *model.Bin) string {
	return fmt.Sprintf("Low battery on bin %s", b.Name)
}

func staleMessage(b *model.Bin) string {
	return fmt.Sprintf("No sensor data from bin %s", b.Name)
}
