package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/smartbin/internal/apperror"
	"github.com/sakif/smartbin/internal/events"
	"github.com/sakif/smartbin/internal/model"
	"github.com/sakif/smartbin/internal/repository"
)

type ActionService struct {
	actions repository.ActionRepository
	users   repository.UserRepository
	events  events.Publisher
	logger  *slog.Logger
}

func NewActionService(actions repository.ActionRepository, users repository.UserRepository, publisher events.Publisher, logger *slog.Logger) *ActionService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ActionService{actions: actions, users: users, events: publisher, logger: logger}
}

// EmptyBinInput is the body of POST /api/actions/empty.
type EmptyBinInput struct {
	BinID *string `json:"bin_id"`
	Notes *string `json:"notes"`
}

// EmptyBin appends an EMPTY_BIN row and resets the bin in one transaction.
// Ids that are not UUIDs are dropped, as is a user id without a profile
// row, so the audit row is still written.
func (s *ActionService) EmptyBin(ctx context.Context, userID string, in EmptyBinInput) (*model.Action, error) {
	action := &model.Action{Notes: emptyToNil(in.Notes)}
	if isUUID(userID) && s.hasProfile(ctx, userID) {
		action.UserID = &userID
	}
	if in.BinID != nil && isUUID(*in.BinID) {
		binID := *in.BinID
		action.BinID = &binID
	}

	if err := s.actions.RecordEmpty(ctx, action); err != nil {
		return nil, fmt.Errorf("service/actions: recording empty: %w", err)
	}

	s.logger.Info("bin emptied",
		slog.String("action_id", action.ID),
		slog.Any("bin_id", action.BinID),
		slog.Any("user_id", action.UserID),
	)
	if action.BinID != nil {
		publish(ctx, s.events, s.logger, events.BinEmptied, events.BinCollection{
			BinID: *action.BinID, ActionID: action.ID, UserID: action.UserID,
		})
	}
	return action, nil
}

func (s *ActionService) hasProfile(ctx context.Context, userID string) bool {
	_, err := s.users.GetByID(ctx, userID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		s.logger.Warn("checking actor profile failed", slog.String("user_id", userID), slog.String("error", err.Error()))
	}
	return err == nil
}

func (s *ActionService) History(ctx context.Context, opts repository.ListOptions) ([]model.ActionHistoryEntry, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, apperror.ValidationFailed("limit", "limit and offset must not be negative")
	}
	entries, err := s.actions.History(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service/actions: history: %w", err)
	}
	return entries, nil
}
