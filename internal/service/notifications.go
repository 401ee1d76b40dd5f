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

type NotificationService struct {
	notifications repository.NotificationRepository
	bins          repository.BinRepository
	events        events.Publisher
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

func NewNotificationService(
	notifications repository.NotificationRepository,
	bins repository.BinRepository,
	publisher events.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *NotificationService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{notifications: notifications, bins: bins, events: publisher, metrics: m, logger: logger}
}

// NotificationList is a page of notifications plus the global unread count.
type NotificationList struct {
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unreadCount"`
}

func (s *NotificationService) List(ctx context.Context, filter model.NotificationFilter) (*NotificationList, error) {
	list, err := s.notifications.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service/notifications: listing: %w", err)
	}
	unread, err := s.notifications.UnreadCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/notifications: counting unread: %w", err)
	}
	return &NotificationList{Notifications: list, UnreadCount: unread}, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context) (int, error) {
	n, err := s.notifications.UnreadCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("service/notifications: counting unread: %w", err)
	}
	return n, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id string) error {
	if err := s.notifications.MarkRead(ctx, id); err != nil {
		return fmt.Errorf("service/notifications: marking %s read: %w", id, err)
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context) (int64, error) {
	n, err := s.notifications.MarkAllRead(ctx)
	if err != nil {
		return 0, fmt.Errorf("service/notifications: marking all read: %w", err)
	}
	return n, nil
}

func (s *NotificationService) Delete(ctx context.Context, id string) error {
	if err := s.notifications.Delete(ctx, id); err != nil {
		return fmt.Errorf("service/notifications: deleting %s: %w", id, err)
	}
	return nil
}

// NotificationInput is the body of POST /api/notifications.
type NotificationInput struct {
	BinID   *string                `json:"bin_id"`
	Message string                 `json:"message"`
	Type    model.NotificationType `json:"type"`
}

// Create stores a manual alert. Type defaults to info.
func (s *NotificationService) Create(ctx context.Context, in NotificationInput) (*model.Notification, error) {
	in.Message = strings.TrimSpace(in.Message)
	in.BinID = emptyToNil(in.BinID)
	if in.Message == "" {
		return nil, apperror.ValidationFailed("message", "Missing required field: message")
	}
	if in.Type == "" {
		in.Type = model.NotificationInfo
	}
	if !in.Type.Valid() {
		return nil, apperror.ValidationFailed("type", "Invalid type: must be info, warning or critical")
	}
	if in.BinID != nil {
		if _, err := s.bins.GetByID(ctx, *in.BinID); err != nil {
			return nil, fmt.Errorf("service/notifications: checking bin: %w", err)
		}
	}

	n := &model.Notification{BinID: in.BinID, Message: in.Message, Type: in.Type}
	if err := s.store(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// raise stores an alert generated by the system unless an identical unread
// one already exists. It reports whether a row was written.
func (s *NotificationService) raise(ctx context.Context, binID, message string, kind model.NotificationType) (bool, error) {
	dup, err := s.notifications.HasUnread(ctx, binID, message)
	if err != nil {
		return false, fmt.Errorf("service/notifications: checking duplicates: %w", err)
	}
	if dup {
		return false, nil
	}
	if err := s.store(ctx, &model.Notification{BinID: &binID, Message: message, Type: kind}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *NotificationService) store(ctx context.Context, n *model.Notification) error {
	if err := s.notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("service/notifications: creating: %w", err)
	}
	s.metrics.Notification(string(n.Type))
	publish(ctx, s.events, s.logger, events.NotificationCreated, n)
	return nil
}
