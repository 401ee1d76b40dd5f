package sqlite

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/smartbin/internal/apperror"
	"github.com/sakif/smartbin/internal/model"
)

// =========================================================================
// CREATE / GET
// =========================================================================

func TestUserCreate(t *testing.T) {
	db := newTestDB(t)
	phone := "+8801700000000"

	user := &model.User{ID: "u-1", Name: "Rahim", Email: "rahim@example.com", Phone: &phone, Role: model.RolePublic}
	if err := db.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if user.CreatedAt.IsZero() || user.UpdatedAt.IsZero() {
		t.Error("Create() did not set timestamps")
	}

	got, err := db.Users().GetByID(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Email != "rahim@example.com" || got.Role != model.RolePublic {
		t.Errorf("GetByID() = %+v", got)
	}
	if got.Phone == nil || *got.Phone != phone {
		t.Errorf("Phone = %v, want %q", got.Phone, phone)
	}
	if got.AvatarURL != nil || got.LastLogin != nil {
		t.Error("nullable columns should come back nil")
	}
}

func TestUserCreate_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "u-1", "dup@example.com", model.RolePublic)

	err := db.Users().Create(context.Background(), &model.User{ID: "u-2", Name: "Other", Email: "DUP@example.com", Role: model.RolePublic})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Create() error = %v, want ErrConflict", err)
	}
}

func TestUserGetByEmail_CaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "u-1", "Mixed@Example.com", model.RoleOfficer)

	got, err := db.Users().GetByEmail(context.Background(), "mixed@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got.ID != "u-1" {
		t.Errorf("ID = %q, want u-1", got.ID)
	}
}

func TestUserGet_NotFound(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.Users().GetByID(context.Background(), "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
	if _, err := db.Users().GetByEmail(context.Background(), "missing@example.com"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByEmail() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// ENSURE PROFILE
// =========================================================================

func TestEnsureProfile_InsertsOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := db.Users().EnsureProfile(ctx, &model.User{ID: "auth-1", Name: "First", Email: "a@example.com", Role: model.RolePublic})
	if err != nil {
		t.Fatalf("EnsureProfile() error = %v", err)
	}

	// A second call with different values keeps the stored row.
	second, err := db.Users().EnsureProfile(ctx, &model.User{ID: "auth-1", Name: "Second", Email: "a@example.com", Role: model.RoleAdmin})
	if err != nil {
		t.Fatalf("EnsureProfile() second call error = %v", err)
	}
	if second.Name != first.Name || second.Role != model.RolePublic {
		t.Errorf("EnsureProfile() overwrote existing row: %+v", second)
	}
}

func TestEnsureProfile_Concurrent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.Users().EnsureProfile(ctx, &model.User{ID: "auth-race", Name: "Race", Email: "race@example.com", Role: model.RolePublic})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("EnsureProfile() concurrent error = %v", err)
		}
	}

	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM users WHERE id = 'auth-race'`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("profile rows = %d, want 1", count)
	}
}

func TestEnsureProfile_EmailClash(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "legacy-id", "clash@example.com", model.RolePublic)

	_, err := db.Users().EnsureProfile(context.Background(), &model.User{ID: "auth-2", Name: "New", Email: "clash@example.com", Role: model.RolePublic})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("EnsureProfile() error = %v, want ErrConflict", err)
	}
}

// =========================================================================
// UPDATES
// =========================================================================

func TestUpdateProfile(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "u-1", "edit@example.com", model.RolePublic)

	name := "Renamed"
	got, err := db.Users().UpdateProfile(context.Background(), "u-1", model.ProfileUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if got.Name != "Renamed" {
		t.Errorf("Name = %q, want Renamed", got.Name)
	}
	if got.Email != "edit@example.com" {
		t.Error("UpdateProfile() touched fields it was not given")
	}

	if _, err := db.Users().UpdateProfile(context.Background(), "missing", model.ProfileUpdate{Name: &name}); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateProfile() missing user error = %v, want ErrNotFound", err)
	}
}

func TestTouchLastLogin(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "u-1", "login@example.com", model.RolePublic)

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := db.Users().TouchLastLogin(context.Background(), "u-1", at); err != nil {
		t.Fatalf("TouchLastLogin() error = %v", err)
	}

	got, _ := db.Users().GetByID(context.Background(), "u-1")
	if got.LastLogin == nil || !got.LastLogin.Equal(at) {
		t.Errorf("LastLogin = %v, want %v", got.LastLogin, at)
	}

	if err := db.Users().TouchLastLogin(context.Background(), "missing", at); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("TouchLastLogin() missing user error = %v, want ErrNotFound", err)
	}
}

func TestTouchLastLogin_DriverErrorIsTranslated(t *testing.T) {
	db := newTestDB(t)
	db.Close()

	err := db.Users().TouchLastLogin(context.Background(), "u-1", time.Now())
	if err == nil {
		t.Fatal("TouchLastLogin() on a closed database should fail")
	}
	if !strings.HasPrefix(err.Error(), "sqlite: updating last_login: ") {
		t.Errorf("TouchLastLogin() error = %q, want the sqlite: updating last_login prefix", err)
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		t.Errorf("TouchLastLogin() driver failure surfaced as domain error %v", appErr)
	}
}
