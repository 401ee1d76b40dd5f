// Package repository declares the persistence contracts the service layer
// depends on. Implementations live in the postgres and sqlite subpackages;
// services only ever see these interfaces.
package repository

import (
	"context"
	"time"

	"github.com/sakif/smartbin/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository stores local user profiles.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)

	// Create inserts a new profile. A clash on id or email returns
	// apperror.ErrConflict.
	Create(ctx context.Context, user *model.User) error

	// EnsureProfile atomically inserts the profile or, when a row with the
	// same id already exists, returns that row untouched. A clash on email
	// with a different id returns apperror.ErrConflict.
	EnsureProfile(ctx context.Context, user *model.User) (*model.User, error)

	UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// BinRepository stores trash bins and their sensor readings.
type BinRepository interface {
	List(ctx context.Context, filter model.BinFilter) ([]model.Bin, error)
	ListWithCoordinates(ctx context.Context) ([]model.Bin, error)
	GetByID(ctx context.Context, id string) (*model.Bin, error)
	GetBySensorID(ctx context.Context, sensorID string) (*model.Bin, error)
	Create(ctx context.Context, bin *model.Bin) error
	Update(ctx context.Context, bin *model.Bin) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context, lowBattery int) (*model.BinStats, error)

	// ApplyReading appends the reading and copies its levels onto the bin,
	// returning the bin as it was before the update.
	ApplyReading(ctx context.Context, reading *model.SensorReading, status model.BinStatus) (*model.Bin, error)
	ListReadings(ctx context.Context, binID string, limit int) ([]model.SensorReading, error)

	// ListNeedingAttention returns bins whose battery is below lowBattery or
	// that have not been updated since staleBefore.
	ListNeedingAttention(ctx context.Context, lowBattery int, staleBefore time.Time) ([]model.Bin, error)
}

// ActionRepository stores the append-only action history.
type ActionRepository interface {
	// RecordEmpty appends an EMPTY_BIN action and, when BinID is set, resets
	// that bin to an empty/normal state in the same transaction.
	RecordEmpty(ctx context.Context, action *model.Action) error
	History(ctx context.Context, opts ListOptions) ([]model.ActionHistoryEntry, error)
}

// NotificationRepository stores per-bin alerts.
type NotificationRepository interface {
	List(ctx context.Context, filter model.NotificationFilter) ([]model.Notification, error)
	Create(ctx context.Context, n *model.Notification) error
	UnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id string) error

	// HasUnread reports whether an unread notification with the same bin
	// and message already exists.
	HasUnread(ctx context.Context, binID, message string) (bool, error)
}

// Store bundles the repositories of one backing database.
type Store interface {
	Users() UserRepository
	Bins() BinRepository
	Actions() ActionRepository
	Notifications() NotificationRepository
	Ping(ctx context.Context) error
	Close() error
}
