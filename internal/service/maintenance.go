package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sakif/smartbin/internal/model"
	"github.com/sakif/smartbin/internal/repository"
)

const (
	DefaultStaleAfter  = 24 * time.Hour
	maintenanceTimeout = 2 * time.Minute
)

// MaintenanceService periodically scans the fleet for bins whose sensor
// battery is low or whose sensor has gone quiet, and raises alerts for
// them. Alerts are skipped while an identical one is still unread.
type MaintenanceService struct {
	bins       repository.BinRepository
	notifier   *NotificationService
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewMaintenanceService(bins repository.BinRepository, notifier *NotificationService, staleAfter time.Duration, logger *slog.Logger) *MaintenanceService {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MaintenanceService{bins: bins, notifier: notifier, staleAfter: staleAfter, logger: logger, now: time.Now}
}

// MaintenanceReport summarises one scan.
type MaintenanceReport struct {
	Scanned int
	Created int
}

func (m *MaintenanceService) Run(ctx context.Context) (MaintenanceReport, error) {
	var report MaintenanceReport
	staleBefore := m.now().Add(-m.staleAfter)

	bins, err := m.bins.ListNeedingAttention(ctx, model.LowBatteryLevel, staleBefore)
	if err != nil {
		return report, fmt.Errorf("service/maintenance: listing bins: %w", err)
	}
	report.Scanned = len(bins)

	for i := range bins {
		b := &bins[i]
		if b.BatteryLevel < model.LowBatteryLevel {
			m.raise(ctx, &report, b, lowBatteryMessage(b), model.NotificationInfo)
		}
		// Bins without a sensor are updated by hand and never go stale.
		if b.SensorID != nil && b.UpdatedAt.Before(staleBefore) {
			m.raise(ctx, &report, b, staleMessage(b), model.NotificationWarning)
		}
	}
	return report, nil
}

func (m *MaintenanceService) raise(ctx context.Context, report *MaintenanceReport, b *model.Bin, message string, kind model.NotificationType) {
	created, err := m.notifier.raise(ctx, b.ID, message, kind)
	if err != nil {
		m.logger.Warn("raising maintenance alert failed", slog.String("bin_id", b.ID), slog.String("error", err.Error()))
		return
	}
	if created {
		report.Created++
	}
}

// Schedule registers Run on c with the given cron spec.
func (m *MaintenanceService) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
		defer cancel()

		report, err := m.Run(ctx)
		if err != nil {
			m.logger.Error("maintenance scan failed", slog.String("error", err.Error()))
			return
		}
		m.logger.Info("maintenance scan finished",
			slog.Int("scanned", report.Scanned),
			slog.Int("alerts_created", report.Created),
		)
	})
	if err != nil {
		return 0, fmt.Errorf("service/maintenance: scheduling %q: %w", spec, err)
	}
	return id, nil
}
