package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/sakif/smartbin/internal/apperror"
	"github.com/sakif/smartbin/internal/model"
	"github.com/sakif/smartbin/internal/repository"
	"github.com/sakif/smartbin/internal/repository/dbutil"
)

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

func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, translate(err, "getting user", "user", id)
	}
	return user, nil
}

func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	user, err := scanUser(row)
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
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $8)`,
		user.ID, user.Name, user.Email,
		dbutil.NullString(user.Phone), string(user.Role), dbutil.NullString(user.AvatarURL),
		user.PasswordHash, now,
	)
	return translate(err, "inserting user", "user", user.ID)
}

// EnsureProfile relies on INSERT ... ON CONFLICT (id) DO UPDATE so that
// concurrent first logins for the same identity serialise inside Postgres:
// exactly one insert wins and every caller gets the stored row back. The
// no-op SET keeps the existing row intact.
func (u *UserDB) EnsureProfile(ctx context.Context, user *model.User) (*model.User, error) {
	now := time.Now().UTC()
	row := u.conn.QueryRowContext(ctx,
		`INSERT INTO users (id, name, email, phone, role, avatar_url, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $8)
		 ON CONFLICT (id) DO UPDATE SET id = users.id
		 RETURNING `+userColumns,
		user.ID, user.Name, user.Email,
		dbutil.NullString(user.Phone), string(user.Role), dbutil.NullString(user.AvatarURL),
		user.PasswordHash, now,
	)
	stored, err := scanUser(row)
	if err != nil {
		return nil, translate(err, "upserting user", "user", user.ID)
	}
	return stored, nil
}

func (u *UserDB) UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error) {
	row := u.conn.QueryRowContext(ctx,
		`UPDATE users SET
			name = COALESCE($2, name),
			phone = COALESCE($3, phone),
			avatar_url = COALESCE($4, avatar_url),
			updated_at = $5
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, dbutil.NullString(upd.Name), dbutil.NullString(upd.Phone), dbutil.NullString(upd.AvatarURL),
		time.Now().UTC(),
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, translate(err, "updating user", "user", id)
	}
	return user, nil
}

func (u *UserDB) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := u.conn.ExecContext(ctx,
		`UPDATE users SET last_login = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return translate(err, "updating last_login", "user", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}
