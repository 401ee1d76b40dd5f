package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sakif/smartbin/internal/apperror"
	"github.com/sakif/smartbin/internal/model"
	"github.com/sakif/smartbin/internal/repository"
	"github.com/sakif/smartbin/internal/repository/dbutil"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the users table.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, name, email, phone, role, avatar_url, COALESCE(password_hash, ''),
	created_at, updated_at, last_login`

func scanUser(row dbutil.Scanner) (*model.User, error) {
	var (
		u         model.User
		role      string
		phone     sql.NullString
		avatar    sql.NullString
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &phone, &role, &avatar,
		&u.PasswordHash, &u.CreatedAt, &u.UpdatedAt, &lastLogin); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	u.Phone = dbutil.StringPtr(phone)
	u.AvatarURL = dbutil.StringPtr(avatar)
	u.LastLogin = dbutil.TimePtr(lastLogin)
	return &u, nil
}

// GetByID retrieves a user by id.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, translate(err, "getting user", "user", id)
	}
	return user, nil
}

func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		return nil, translate(err, "getting user by email", "user", email)
	}
	return user, nil
}

func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, email, phone, role, avatar_url, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?)`,
		user.ID, user.Name, user.Email,
		dbutil.NullString(user.Phone), string(user.Role), dbutil.NullString(user.AvatarURL),
		user.PasswordHash, now, now,
	)
	return translate(err, "inserting user", "user", user.ID)
}

// EnsureProfile inserts with ON CONFLICT DO NOTHING and then reads the row
// back by id, so concurrent callers converge on one row. When nothing was
// inserted and no row has this id, the email belongs to another profile.
func (u *UserDB) EnsureProfile(ctx context.Context, user *model.User) (*model.User, error) {
	now := time.Now().UTC()
	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, email, phone, role, avatar_url, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?)
		 ON CONFLICT DO NOTHING`,
		user.ID, user.Name, user.Email,
		dbutil.NullString(user.Phone), string(user.Role), dbutil.NullString(user.AvatarURL),
		user.PasswordHash, now, now,
	)
	if err != nil {
		return nil, translate(err, "upserting user", "user", user.ID)
	}
	stored, err := u.GetByID(ctx, user.ID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Conflict("user with this email already exists")
	}
	return stored, err
}

func (u *UserDB) UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error) {
	res, err := u.conn.ExecContext(ctx,
		`UPDATE users SET
			name = COALESCE(?, name),
			phone = COALESCE(?, phone),
			avatar_url = COALESCE(?, avatar_url),
			updated_at = ?
		 WHERE id = ?`,
		dbutil.NullString(upd.Name), dbutil.NullString(upd.Phone), dbutil.NullString(upd.AvatarURL),
		time.Now().UTC(), id,
	)
	if err != nil {
		return nil, translate(err, "updating user", "user", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperror.NotFound("user", id)
	}
	return u.GetByID(ctx, id)
}

func (u *UserDB) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := u.conn.ExecContext(ctx,
		`UPDATE users SET last_login = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return translate(err, "updating last_login", "user", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}
