package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/smartbin/internal/apperror"
	"github.com/sakif/smartbin/internal/events"
	"github.com/sakif/smartbin/internal/model"
	"github.com/sakif/smartbin/internal/repository"
	"github.com/sakif/smartbin/internal/repository/sqlite"
)

func newActionService(t *testing.T) (*ActionService, *sqlite.DB, *recordingPublisher) {
	t.Helper()
	db := newTestStore(t)
	pub := &recordingPublisher{}
	return NewActionService(db.Actions(), db.Users(), pub, nil), db, pub
}

func TestEmptyBin_ResetsBinAndAppendsAction(t *testing.T) {
	svc, db, pub := newActionService(t)
	ctx := context.Background()
	officer := createUser(t, db, "Officer", "officer@example.com", model.RoleOfficer)
	bin := createBin(t, db, model.Bin{Name: "Full one", Location: "Banani", FillLevel: 95})
	require.Equal(t, model.BinFull, bin.Status)

	action, err := svc.EmptyBin(ctx, officer.ID, EmptyBinInput{BinID: &bin.ID, Notes: ptr("collected")})
	require.NoError(t, err)
	assert.Equal(t, model.ActionEmptyBin, action.Action)
	require.NotNil(t, action.UserID)
	assert.Equal(t, officer.ID, *action.UserID)

	stored, err := db.Bins().GetByID(ctx, bin.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FillLevel)
	assert.Equal(t, model.BinNormal, stored.Status)
	assert.NotNil(t, stored.LastCollection)

	history, err := svc.History(ctx, repository.ListOptions{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, action.ID, history[0].ID)
	require.NotNil(t, history[0].Bin)
	assert.Equal(t, "Full one", history[0].Bin.Name)

	assert.Equal(t, []string{events.BinEmptied}, pub.types())
}

func TestEmptyBin_MissingBin(t *testing.T) {
	svc, _, pub := newActionService(t)
	ctx := context.Background()

	_, err := svc.EmptyBin(ctx, "", EmptyBinInput{BinID: ptr(uuid.NewString())})
	require.ErrorIs(t, err, apperror.ErrNotFound)

	history, err := svc.History(ctx, repository.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, history, "no action row without the bin reset")
	assert.Empty(t, pub.types())
}

func TestEmptyBin_DropsNonUUIDIds(t *testing.T) {
	svc, db, pub := newActionService(t)
	ctx := context.Background()
	bin := createBin(t, db, model.Bin{Name: "Keep", FillLevel: 80})

	action, err := svc.EmptyBin(ctx, "dev-user", EmptyBinInput{BinID: ptr("bin-7")})
	require.NoError(t, err)
	assert.Nil(t, action.UserID)
	assert.Nil(t, action.BinID)
	assert.Empty(t, pub.types(), "no collection event without a bin")

	stored, err := db.Bins().GetByID(ctx, bin.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, stored.FillLevel, "other bins untouched")
}

func TestEmptyBin_UserWithoutProfile(t *testing.T) {
	svc, db, _ := newActionService(t)
	bin := createBin(t, db, model.Bin{Name: "B", FillLevel: 50})

	action, err := svc.EmptyBin(context.Background(), uuid.NewString(), EmptyBinInput{BinID: &bin.ID})
	require.NoError(t, err)
	assert.Nil(t, action.UserID)
	require.NotNil(t, action.BinID)
}

func TestHistory_RejectsNegativePaging(t *testing.T) {
	svc, _, _ := newActionService(t)
	_, err := svc.History(context.Background(), repository.ListOptions{Limit: -1})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
