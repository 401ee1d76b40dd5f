package model

import "time"

// NotificationType controls how the client renders an alert.
type NotificationType string

const (
	NotificationInfo     NotificationType = "info"
	NotificationWarning  NotificationType = "warning"
	NotificationCritical NotificationType = "critical"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationInfo, NotificationWarning, NotificationCritical:
		return true
	}
	return false
}

// Notification is a per-bin alert with read/unread state.
type Notification struct {
	ID        string           `json:"id"`
	BinID     *string          `json:"bin_id"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
	Bin       *BinSummary      `json:"trash_bins,omitempty"`
}

// NotificationFilter narrows a notification listing.
type NotificationFilter struct {
	BinID      string
	UnreadOnly bool
	Limit      int
	Offset     int
}
