package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/smartbin/internal/apperror"
	"github.com/sakif/smartbin/internal/model"
	"github.com/sakif/smartbin/internal/repository/sqlite"
)

func newBinService(t *testing.T) (*BinService, *sqlite.DB) {
	t.Helper()
	db := newTestStore(t)
	return NewBinService(db.Bins(), db.Users(), db.Notifications(), nil), db
}

func TestBinService_ListRejectsUnknownStatus(t *testing.T) {
	svc, db := newBinService(t)
	createBin(t, db, model.Bin{Name: "A", FillLevel: 95})
	createBin(t, db, model.Bin{Name: "B", FillLevel: 10})

	_, err := svc.List(context.Background(), model.BinFilter{Status: "overflowing"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	full, err := svc.List(context.Background(), model.BinFilter{Status: model.BinFull})
	require.NoError(t, err)
	require.Len(t, full, 1)
	assert.Equal(t, "A", full[0].Name)
}

func TestBinService_GetLoadsOfficerAndNotifications(t *testing.T) {
	svc, db := newBinService(t)
	ctx := context.Background()
	officer := createUser(t, db, "Officer", "officer@example.com", model.RoleOfficer)
	bin := createBin(t, db, model.Bin{Name: "Market", FillLevel: 50, FieldOfficerID: &officer.ID})

	for i := 0; i < 7; i++ {
		require.NoError(t, db.Notifications().Create(ctx, &model.Notification{
			BinID: &bin.ID, Message: "note", Type: model.NotificationInfo,
		}))
	}

	details, err := svc.Get(ctx, bin.ID)
	require.NoError(t, err)
	assert.Equal(t, "Market", details.Name)
	require.NotNil(t, details.FieldOfficer)
	assert.Equal(t, "Officer", details.FieldOfficer.Name)
	assert.Len(t, details.RecentNotifications, 5)
}

func TestBinService_GetWithoutOfficer(t *testing.T) {
	svc, db := newBinService(t)
	bin := createBin(t, db, model.Bin{Name: "Lonely"})

	details, err := svc.Get(context.Background(), bin.ID)
	require.NoError(t, err)
	assert.Nil(t, details.FieldOfficer)
	assert.NotNil(t, details.RecentNotifications)
	assert.Empty(t, details.RecentNotifications)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestBinService_Nearby(t *testing.T) {
	svc, db := newBinService(t)
	// Distances from (23.8103, 90.4125): ~1.1 km, ~3.3 km, ~11 km.
	createBin(t, db, model.Bin{Name: "Far", Latitude: ptr(23.9103), Longitude: ptr(90.4125)})
	createBin(t, db, model.Bin{Name: "Near", Latitude: ptr(23.8203), Longitude: ptr(90.4125)})
	createBin(t, db, model.Bin{Name: "Mid", Latitude: ptr(23.8403), Longitude: ptr(90.4125)})
	createBin(t, db, model.Bin{Name: "NoCoords"})

	got, err := svc.Nearby(context.Background(), 23.8103, 90.4125, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Near", got[0].Name)
	assert.Equal(t, "Mid", got[1].Name)
	assert.InDelta(t, 1.11, got[0].Distance, 0.05)

	got, err = svc.Nearby(context.Background(), 23.8103, 90.4125, 20)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = svc.Nearby(context.Background(), 91, 0, 5)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestBinService_CreateValidates(t *testing.T) {
	svc, db := newBinService(t)
	public := createUser(t, db, "Citizen", "citizen@example.com", model.RolePublic)

	tests := []struct {
		name  string
		in    BinInput
		field string
	}{
		{"missing name", BinInput{}, "name"},
		{"fill too high", BinInput{Name: ptr("x"), FillLevel: ptr(101)}, "fill_level"},
		{"battery negative", BinInput{Name: ptr("x"), BatteryLevel: ptr(-1)}, "battery_level"},
		{"latitude out of range", BinInput{Name: ptr("x"), Latitude: ptr(-90.5)}, "latitude"},
		{"longitude out of range", BinInput{Name: ptr("x"), Longitude: ptr(180.1)}, "longitude"},
		{"unknown officer", BinInput{Name: ptr("x"), FieldOfficerID: ptr("nobody")}, "field_officer_id"},
		{"officer is not an officer", BinInput{Name: ptr("x"), FieldOfficerID: &public.ID}, "field_officer_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in)
			require.ErrorIs(t, err, apperror.ErrValidation)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestBinService_CreateUpdateDelete(t *testing.T) {
	svc, db := newBinService(t)
	ctx := context.Background()
	officer := createUser(t, db, "Officer", "o@example.com", model.RoleOfficer)

	bin, err := svc.Create(ctx, BinInput{
		Name: ptr(" Gulshan 1 "), Location: ptr("Gulshan Circle"), FillLevel: ptr(75),
		Latitude: ptr(23.78), Longitude: ptr(90.41), FieldOfficerID: &officer.ID, SensorID: ptr("SENSOR-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Gulshan 1", bin.Name)
	assert.Equal(t, model.BinWarning, bin.Status)
	assert.Equal(t, 100, bin.BatteryLevel)

	updated, err := svc.Update(ctx, bin.ID, BinInput{FillLevel: ptr(92), FieldOfficerID: ptr("")})
	require.NoError(t, err)
	assert.Equal(t, model.BinFull, updated.Status)
	assert.Nil(t, updated.FieldOfficerID)
	assert.Equal(t, "Gulshan Circle", updated.Location, "unset fields are kept")

	stored, err := db.Bins().GetByID(ctx, bin.ID)
	require.NoError(t, err)
	assert.Equal(t, 92, stored.FillLevel)

	require.NoError(t, svc.Delete(ctx, bin.ID))
	assert.ErrorIs(t, svc.Delete(ctx, bin.ID), apperror.ErrNotFound)

	_, err = svc.Update(ctx, bin.ID, BinInput{Name: ptr("gone")})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestBinService_Stats(t *testing.T) {
	svc, db := newBinService(t)
	createBin(t, db, model.Bin{Name: "A", FillLevel: 20, BatteryLevel: 10})
	createBin(t, db, model.Bin{Name: "B", FillLevel: 80, BatteryLevel: 90})

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.LowBattery)
	assert.InDelta(t, 50.0, stats.AverageFillLevel, 0.001)
}
