package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKm(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		want                   float64
		delta                  float64
	}{
		{"same point", 23.8103, 90.4125, 23.8103, 90.4125, 0, 1e-9},
		{"one degree of latitude", 0, 0, 1, 0, 111.19, 0.01},
		{"Dhaka to Chittagong", 23.8103, 90.4125, 22.3569, 91.7832, 213.1, 2},
		{"across the antimeridian", 0, 179.5, 0, -179.5, 111.19, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := haversineKm(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			assert.InDelta(t, tt.want, got, tt.delta)
		})
	}
}
