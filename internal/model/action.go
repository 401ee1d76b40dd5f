package model

import "time"

// ActionEmptyBin is recorded when a field officer empties a bin.
const ActionEmptyBin = "EMPTY_BIN"

// Action is an append-only audit row (table action_history).
type Action struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"user_id"`
	BinID     *string   `json:"bin_id"`
	Action    string    `json:"action"`
	Notes     *string   `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// ActionActor is the user summary joined onto history rows.
type ActionActor struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// ActionHistoryEntry is an Action with its related user and bin.
type ActionHistoryEntry struct {
	Action
	User *ActionActor `json:"users"`
	Bin  *BinSummary  `json:"trash_bins"`
}
