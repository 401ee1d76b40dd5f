// Package service holds the business rules of the API. Handlers parse HTTP
// and call into it; it calls the repository interfaces and the identity
// provider. Nothing here knows about HTTP: failures are reported as
// apperror values and the handler layer picks the status code.
//
//	Handler (HTTP) → Service (rules) → Repository (SQL)
//	                               ↘ identity.Provider (Supabase Auth)
//
// Side effects that must never fail a request (last_login, alerts raised
// by sensor data, published events) are logged at Warn and dropped.
package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/sakif/smartbin/internal/events"
)

func isUUID(s string) bool {
	return uuid.Validate(s) == nil
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

// emptyToNil turns an explicitly empty optional string into "unset".
func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

func publish(ctx context.Context, p events.Publisher, logger *slog.Logger, eventType string, data any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, eventType, data); err != nil {
		logger.Warn("publishing event failed",
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
	}
}
