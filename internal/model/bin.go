package model

import "time"

// BinStatus is derived from the fill level reported by the bin's sensor.
type BinStatus string

const (
	BinNormal  BinStatus = "normal"
	BinWarning BinStatus = "warning"
	BinFull    BinStatus = "full"
)

// Fill thresholds (percent) at which a bin changes status.
const (
	WarningFillLevel = 70
	FullFillLevel    = 90
)

// Valid reports whether s is a known status.
func (s BinStatus) Valid() bool {
	switch s {
	case BinNormal, BinWarning, BinFull:
		return true
	}
	return false
}

// Severity orders statuses so escalations can be detected.
func (s BinStatus) Severity() int {
	switch s {
	case BinWarning:
		return 1
	case BinFull:
		return 2
	}
	return 0
}

// StatusForFill maps a fill percentage to a status.
func StatusForFill(fill int) BinStatus {
	switch {
	case fill >= FullFillLevel:
		return BinFull
	case fill >= WarningFillLevel:
		return BinWarning
	default:
		return BinNormal
	}
}

// Bin is a physical waste receptacle (table trash_bins).
type Bin struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Location       string     `json:"location"`
	Latitude       *float64   `json:"latitude"`
	Longitude      *float64   `json:"longitude"`
	FillLevel      int        `json:"fill_level"`
	Status         BinStatus  `json:"status"`
	BatteryLevel   int        `json:"battery_level"`
	SensorID       *string    `json:"sensor_id"`
	Capacity       int        `json:"capacity"`
	Notes          string     `json:"notes"`
	FieldOfficerID *string    `json:"field_officer_id"`
	LastCollection *time.Time `json:"last_collection"`
	NextCollection *time.Time `json:"next_collection"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// BinSummary is the short form embedded in notifications and history rows.
type BinSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

// NearbyBin is a bin annotated with its distance from a query point.
type NearbyBin struct {
	Bin
	Distance float64 `json:"distance"` // kilometres
}

// BinDetails is the response shape of GET /api/bins/{id}.
type BinDetails struct {
	Bin
	FieldOfficer        *User          `json:"fieldOfficer"`
	RecentNotifications []Notification `json:"recentNotifications"`
}

// BinStats aggregates the fleet for dashboards.
type BinStats struct {
	Total            int               `json:"total"`
	ByStatus         map[BinStatus]int `json:"by_status"`
	AverageFillLevel float64           `json:"average_fill_level"`
	LowBattery       int               `json:"low_battery"`
}

// BinFilter narrows a bin listing.
type BinFilter struct {
	Search string
	Status BinStatus
	Limit  int
	Offset int
}
