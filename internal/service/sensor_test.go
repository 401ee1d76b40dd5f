package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/smartbin/internal/apperror"
	"github.com/sakif/smartbin/internal/events"
	"github.com/sakif/smartbin/internal/model"
	"github.com/sakif/smartbin/internal/repository/sqlite"
)

type sensorFixture struct {
	svc      *SensorService
	notifier *NotificationService
	db       *sqlite.DB
	pub      *recordingPublisher
}

func newSensorFixture(t *testing.T) *sensorFixture {
	t.Helper()
	db := newTestStore(t)
	pub := &recordingPublisher{}
	notifier := NewNotificationService(db.Notifications(), db.Bins(), pub, nil, nil)
	return &sensorFixture{
		svc:      NewSensorService(db.Bins(), notifier, pub, nil, nil),
		notifier: notifier,
		db:       db,
		pub:      pub,
	}
}

func TestSensorIngest_Validation(t *testing.T) {
	f := newSensorFixture(t)
	tests := []struct {
		name string
		in   ReadingInput
	}{
		{"no bin or sensor", ReadingInput{FillLevel: ptr(10)}},
		{"no fill level", ReadingInput{BinID: "b"}},
		{"fill level above 100", ReadingInput{BinID: "b", FillLevel: ptr(120)}},
		{"battery below 0", ReadingInput{BinID: "b", FillLevel: ptr(10), BatteryLevel: ptr(-5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Ingest(context.Background(), tt.in)
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}
}

func TestSensorIngest_UnknownBin(t *testing.T) {
	f := newSensorFixture(t)

	_, err := f.svc.Ingest(context.Background(), ReadingInput{BinID: "missing", FillLevel: ptr(10)})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = f.svc.Ingest(context.Background(), ReadingInput{SensorID: "SENSOR-X", FillLevel: ptr(10)})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSensorIngest_EscalationRaisesAlertAndEvent(t *testing.T) {
	f := newSensorFixture(t)
	ctx := context.Background()
	bin := createBin(t, f.db, model.Bin{Name: "Mirpur 10", FillLevel: 40, BatteryLevel: 80, SensorID: ptr("SENSOR-10")})

	res, err := f.svc.Ingest(ctx, ReadingInput{SensorID: "SENSOR-10", FillLevel: ptr(75)})
	require.NoError(t, err)
	assert.Equal(t, model.BinNormal, res.PreviousStatus)
	assert.Equal(t, model.BinWarning, res.Bin.Status)
	assert.Equal(t, 80, res.Bin.BatteryLevel, "battery kept when not reported")
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, model.NotificationWarning, res.Alerts[0].Type)

	res, err = f.svc.Ingest(ctx, ReadingInput{BinID: bin.ID, FillLevel: ptr(93)})
	require.NoError(t, err)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, model.NotificationCritical, res.Alerts[0].Type)
	assert.Equal(t, "Bin Mirpur 10 is full and needs collection", res.Alerts[0].Message)

	// Same status again: no new alert, no status event.
	res, err = f.svc.Ingest(ctx, ReadingInput{BinID: bin.ID, FillLevel: ptr(97)})
	require.NoError(t, err)
	assert.Empty(t, res.Alerts)

	stored, err := f.db.Bins().GetByID(ctx, bin.ID)
	require.NoError(t, err)
	assert.Equal(t, 97, stored.FillLevel)
	assert.Equal(t, model.BinFull, stored.Status)

	assert.Equal(t, []string{
		events.BinStatusChanged, events.NotificationCreated,
		events.BinStatusChanged, events.NotificationCreated,
	}, f.pub.types())

	first := f.pub.events[0].Data.(events.BinStatusChange)
	assert.Equal(t, "normal", first.From)
	assert.Equal(t, "warning", first.To)
}

func TestSensorIngest_DeEscalationPublishesWithoutAlert(t *testing.T) {
	f := newSensorFixture(t)
	bin := createBin(t, f.db, model.Bin{Name: "Drop", FillLevel: 95, BatteryLevel: 80})

	res, err := f.svc.Ingest(context.Background(), ReadingInput{BinID: bin.ID, FillLevel: ptr(5)})
	require.NoError(t, err)
	assert.Equal(t, model.BinNormal, res.Bin.Status)
	assert.Empty(t, res.Alerts)
	assert.Equal(t, []string{events.BinStatusChanged}, f.pub.types())
}

func TestSensorIngest_LowBatteryAlertOnce(t *testing.T) {
	f := newSensorFixture(t)
	ctx := context.Background()
	bin := createBin(t, f.db, model.Bin{Name: "Battery", FillLevel: 10, BatteryLevel: 50})

	res, err := f.svc.Ingest(ctx, ReadingInput{BinID: bin.ID, FillLevel: ptr(10), BatteryLevel: ptr(15)})
	require.NoError(t, err)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, model.NotificationInfo, res.Alerts[0].Type)

	res, err = f.svc.Ingest(ctx, ReadingInput{BinID: bin.ID, FillLevel: ptr(11), BatteryLevel: ptr(12)})
	require.NoError(t, err)
	assert.Empty(t, res.Alerts, "already below threshold")

	count, err := f.notifier.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSensorIngest_EventFailureDoesNotFailReading(t *testing.T) {
	f := newSensorFixture(t)
	f.pub.err = assert.AnError
	bin := createBin(t, f.db, model.Bin{Name: "Broker down", FillLevel: 10, BatteryLevel: 90})

	res, err := f.svc.Ingest(context.Background(), ReadingInput{BinID: bin.ID, FillLevel: ptr(91)})
	require.NoError(t, err)
	assert.Len(t, res.Alerts, 1)
}

func TestSensorReadings(t *testing.T) {
	f := newSensorFixture(t)
	ctx := context.Background()
	bin := createBin(t, f.db, model.Bin{Name: "History", BatteryLevel: 90})

	for _, fill := range []int{10, 20, 30} {
		_, err := f.svc.Ingest(ctx, ReadingInput{BinID: bin.ID, FillLevel: ptr(fill)})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	readings, err := f.svc.Readings(ctx, bin.ID, 2)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, 30, readings[0].FillLevel)

	_, err = f.svc.Readings(ctx, "missing", 10)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
