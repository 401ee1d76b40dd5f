// Package events publishes domain events (bin status changes, collections,
// new alerts) for downstream consumers such as a dispatch or SMS service.
// Publishing is best effort: callers log failures and carry on.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	BinStatusChanged    = "bin.status_changed"
	BinEmptied          = "bin.emptied"
	NotificationCreated = "notification.created"
)

// DefaultExchange is the topic exchange all events are routed through.
const DefaultExchange = "smartbin.events"

// Publisher sends an event of the given type. The type doubles as the
// routing key.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any) error
	Close() error
}

// Envelope is the JSON body of every message.
type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

func encode(eventType string, data any, at time.Time) (Envelope, []byte, error) {
	env := Envelope{ID: uuid.NewString(), Type: eventType, OccurredAt: at.UTC(), Data: data}
	body, err := json.Marshal(env)
	if err != nil {
		return env, nil, fmt.Errorf("events: encoding %s: %w", eventType, err)
	}
	return env, body, nil
}

// BinStatusChange is the payload of BinStatusChanged.
type BinStatusChange struct {
	BinID        string `json:"bin_id"`
	Name         string `json:"name"`
	From         string `json:"from"`
	To           string `json:"to"`
	FillLevel    int    `json:"fill_level"`
	BatteryLevel int    `json:"battery_level"`
}

// BinCollection is the payload of BinEmptied.
type BinCollection struct {
	BinID    string  `json:"bin_id"`
	ActionID string  `json:"action_id"`
	UserID   *string `json:"user_id"`
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
func (Nop) Close() error                               { return nil }
