package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/smartbin/internal/apperror"
	"github.com/sakif/smartbin/internal/model"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewWithConn(conn, nil), mock
}

var userCols = []string{"id", "name", "email", "phone", "role", "avatar_url", "password_hash",
	"created_at", "updated_at", "last_login"}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"no rows", sql.ErrNoRows, apperror.ErrNotFound},
		{"unique violation", &pq.Error{Code: "23505", Constraint: "users_email_key"}, apperror.ErrConflict},
		{"foreign key violation", &pq.Error{Code: "23503"}, apperror.ErrNotFound},
		{"malformed uuid", &pq.Error{Code: "22P02"}, apperror.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translate(tt.err, "op", "user", "id-1"), tt.target)
		})
	}

	plain := errors.New("connection reset")
	got := translate(plain, "getting user", "user", "id-1")
	assert.ErrorIs(t, got, plain)
	assert.Contains(t, got.Error(), "postgres: getting user")
	assert.NoError(t, translate(nil, "op", "user", "id"))
}

func TestEnsureProfile_ReturnsStoredRow(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (id) DO UPDATE SET id = users.id")).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("0b7e6f3a-1111-4c1e-9d7e-000000000001", "Stored Name", "a@example.com", nil, "officer", nil, "", now, now, nil))

	got, err := db.Users().EnsureProfile(context.Background(), &model.User{
		ID: "0b7e6f3a-1111-4c1e-9d7e-000000000001", Name: "Incoming", Email: "a@example.com", Role: model.RolePublic,
	})
	require.NoError(t, err)
	assert.Equal(t, "Stored Name", got.Name)
	assert.Equal(t, model.RoleOfficer, got.Role)
	assert.Nil(t, got.Phone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureProfile_EmailConflict(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	_, err := db.Users().EnsureProfile(context.Background(), &model.User{ID: "x", Email: "a@example.com"})
	assert.ErrorIs(t, err, apperror.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByEmail_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE lower(email) = lower($1)")).
		WithArgs("Nobody@Example.com").
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := db.Users().GetByEmail(context.Background(), "Nobody@Example.com")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestTouchLastLogin(t *testing.T) {
	db, mock := newMockDB(t)
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec("UPDATE users SET last_login").
		WithArgs("id-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET last_login").
		WithArgs("id-2", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, db.Users().TouchLastLogin(context.Background(), "id-1", at))
	assert.ErrorIs(t, db.Users().TouchLastLogin(context.Background(), "id-2", at), apperror.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEmpty_Commits(t *testing.T) {
	db, mock := newMockDB(t)
	binID, userID := "bin-1", "user-1"

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE trash_bins SET fill_level = 0").
		WithArgs(binID, "normal", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO action_history").
		WithArgs(sqlmock.AnyArg(), userID, binID, model.ActionEmptyBin, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	action := &model.Action{UserID: &userID, BinID: &binID}
	require.NoError(t, db.Actions().RecordEmpty(context.Background(), action))
	assert.NotEmpty(t, action.ID)
	assert.Equal(t, model.ActionEmptyBin, action.Action)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEmpty_MissingBinRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	binID := "bin-404"

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE trash_bins SET fill_level = 0").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := db.Actions().RecordEmpty(context.Background(), &model.Action{BinID: &binID})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEmpty_InsertFailureRollsBack(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO action_history").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := db.Actions().RecordEmpty(context.Background(), &model.Action{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAllRead(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET read = true WHERE read = false")).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := db.Notifications().MarkAllRead(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

func TestMigrate_AppliesEveryFileInOrder(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER TABLE users").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer conn.Close()
	db := NewWithConn(conn, nil)

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.Error(t, db.Ping(context.Background()))
}
