package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/smartbin/internal/apperror"
	"github.com/sakif/smartbin/internal/model"
	"github.com/sakif/smartbin/internal/repository"
)

const (
	DefaultNearbyRadiusKm = 5.0
	recentNotifications   = 5
)

type BinService struct {
	bins          repository.BinRepository
	users         repository.UserRepository
	notifications repository.NotificationRepository
	logger        *slog.Logger
}

func NewBinService(bins repository.BinRepository, users repository.UserRepository, notifications repository.NotificationRepository, logger *slog.Logger) *BinService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BinService{bins: bins, users: users, notifications: notifications, logger: logger}
}

func (s *BinService) List(ctx context.Context, filter model.BinFilter) ([]model.Bin, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperror.ValidationFailed("status", "Invalid status: must be normal, warning or full")
	}
	bins, err := s.bins.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service/bins: listing: %w", err)
	}
	return bins, nil
}

// Get returns the bin with its field officer and latest notifications,
// loaded concurrently. A missing officer row is not an error.
func (s *BinService) Get(ctx context.Context, id string) (*model.BinDetails, error) {
	bin, err := s.bins.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/bins: loading %s: %w", id, err)
	}

	details := &model.BinDetails{Bin: *bin, RecentNotifications: []model.Notification{}}
	g, gctx := errgroup.WithContext(ctx)

	if bin.FieldOfficerID != nil {
		g.Go(func() error {
			officer, err := s.users.GetByID(gctx, *bin.FieldOfficerID)
			if errors.Is(err, apperror.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("loading field officer: %w", err)
			}
			details.FieldOfficer = officer
			return nil
		})
	}
	g.Go(func() error {
		list, err := s.notifications.List(gctx, model.NotificationFilter{BinID: id, Limit: recentNotifications})
		if err != nil {
			return fmt.Errorf("loading notifications: %w", err)
		}
		details.RecentNotifications = list
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("service/bins: details for %s: %w", id, err)
	}
	return details, nil
}

// Nearby returns bins within radiusKm of the point, closest first. A
// non-positive radius means DefaultNearbyRadiusKm.
func (s *BinService) Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]model.NearbyBin, error) {
	if err := validateCoordinates(&lat, &lng); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		radiusKm = DefaultNearbyRadiusKm
	}

	bins, err := s.bins.ListWithCoordinates(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/bins: nearby: %w", err)
	}

	out := make([]model.NearbyBin, 0, len(bins))
	for _, b := range bins {
		if b.Latitude == nil || b.Longitude == nil {
			continue
		}
		d := haversineKm(lat, lng, *b.Latitude, *b.Longitude)
		if d <= radiusKm {
			out = append(out, model.NearbyBin{Bin: b, Distance: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, nil
}

func (s *BinService) Stats(ctx context.Context) (*model.BinStats, error) {
	stats, err := s.bins.Stats(ctx, model.LowBatteryLevel)
	if err != nil {
		return nil, fmt.Errorf("service/bins: stats: %w", err)
	}
	return stats, nil
}

// BinInput is the body of the bin create/update endpoints. Nil fields are
// left unchanged on update.
type BinInput struct {
	Name           *string    `json:"name"`
	Location       *string    `json:"location"`
	Latitude       *float64   `json:"latitude"`
	Longitude      *float64   `json:"longitude"`
	FillLevel      *int       `json:"fill_level"`
	BatteryLevel   *int       `json:"battery_level"`
	SensorID       *string    `json:"sensor_id"`
	Capacity       *int       `json:"capacity"`
	Notes          *string    `json:"notes"`
	FieldOfficerID *string    `json:"field_officer_id"`
	NextCollection *time.Time `json:"next_collection"`
}

func (s *BinService) Create(ctx context.Context, in BinInput) (*model.Bin, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, apperror.ValidationFailed("name", "Missing required field: name")
	}
	bin := &model.Bin{BatteryLevel: 100}
	if err := s.apply(ctx, bin, in); err != nil {
		return nil, err
	}
	if err := s.bins.Create(ctx, bin); err != nil {
		return nil, fmt.Errorf("service/bins: creating: %w", err)
	}
	s.logger.Info("bin created", slog.String("bin_id", bin.ID), slog.String("name", bin.Name))
	return bin, nil
}

func (s *BinService) Update(ctx context.Context, id string, in BinInput) (*model.Bin, error) {
	bin, err := s.bins.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/bins: loading %s: %w", id, err)
	}
	if err := s.apply(ctx, bin, in); err != nil {
		return nil, err
	}
	if err := s.bins.Update(ctx, bin); err != nil {
		return nil, fmt.Errorf("service/bins: updating %s: %w", id, err)
	}
	return bin, nil
}

func (s *BinService) Delete(ctx context.Context, id string) error {
	if err := s.bins.Delete(ctx, id); err != nil {
		return fmt.Errorf("service/bins: deleting %s: %w", id, err)
	}
	s.logger.Info("bin deleted", slog.String("bin_id", id))
	return nil
}

// apply validates in and copies it onto bin. Status always follows the
// resulting fill level.
func (s *BinService) apply(ctx context.Context, bin *model.Bin, in BinInput) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return apperror.ValidationFailed("name", "Name must not be empty")
		}
		bin.Name = name
	}
	if in.Location != nil {
		bin.Location = strings.TrimSpace(*in.Location)
	}
	if err := validateCoordinates(in.Latitude, in.Longitude); err != nil {
		return err
	}
	if in.Latitude != nil {
		bin.Latitude = in.Latitude
	}
	if in.Longitude != nil {
		bin.Longitude = in.Longitude
	}
	if in.FillLevel != nil {
		if err := validatePercent("fill_level", *in.FillLevel); err != nil {
			return err
		}
		bin.FillLevel = *in.FillLevel
	}
	if in.BatteryLevel != nil {
		if err := validatePercent("battery_level", *in.BatteryLevel); err != nil {
			return err
		}
		bin.BatteryLevel = *in.BatteryLevel
	}
	if in.Capacity != nil {
		if *in.Capacity < 0 {
			return apperror.ValidationFailed("capacity", "capacity must not be negative")
		}
		bin.Capacity = *in.Capacity
	}
	if in.SensorID != nil {
		bin.SensorID = emptyToNil(in.SensorID)
	}
	if in.Notes != nil {
		bin.Notes = strings.TrimSpace(*in.Notes)
	}
	if in.NextCollection != nil {
		bin.NextCollection = in.NextCollection
	}
	if in.FieldOfficerID != nil {
		officerID := emptyToNil(in.FieldOfficerID)
		if officerID != nil {
			if err := s.checkOfficer(ctx, *officerID); err != nil {
				return err
			}
		}
		bin.FieldOfficerID = officerID
	}
	bin.Status = model.StatusForFill(bin.FillLevel)
	return nil
}

func (s *BinService) checkOfficer(ctx context.Context, id string) error {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, apperror.ErrNotFound) {
		return apperror.ValidationFailed("field_officer_id", "Unknown field officer")
	}
	if err != nil {
		return fmt.Errorf("service/bins: checking officer %s: %w", id, err)
	}
	if user.Role != model.RoleOfficer && user.Role != model.RoleAdmin {
		return apperror.ValidationFailed("field_officer_id", "Assigned user is not a field officer")
	}
	return nil
}

func validatePercent(field string, v int) error {
	if v < 0 || v > 100 {
		return apperror.ValidationFailed(field, field+" must be between 0 and 100")
	}
	return nil
}

func validateCoordinates(lat, lng *float64) error {
	if lat != nil && (*lat < -90 || *lat > 90) {
		return apperror.ValidationFailed("latitude", "latitude must be between -90 and 90")
	}
	if lng != nil && (*lng < -180 || *lng > 180) {
		return apperror.ValidationFailed("longitude", "longitude must be between -180 and 180")
	}
	return nil
}
