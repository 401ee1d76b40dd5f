package model

import "time"

// LowBatteryLevel is the battery percentage below which an alert is raised.
const LowBatteryLevel = 20

// SensorReading is one raw measurement pushed by a bin's sensor.
type SensorReading struct {
	ID           string    `json:"id"`
	BinID        string    `json:"bin_id"`
	FillLevel    int       `json:"fill_level"`
	BatteryLevel *int      `json:"battery_level"`
	RecordedAt   time.Time `json:"recorded_at"`
}
