// Package model defines the data structures used throughout the application.
// JSON tags follow the snake_case column names the browser client already reads.
package model

import "time"

// Role is the authorization level stored on a user profile.
type Role string

const (
	RolePublic  Role = "public"
	RoleOfficer Role = "officer"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePublic, RoleOfficer, RoleAdmin:
		return true
	}
	return false
}

// User is a local profile row. Its ID equals the identity ID issued by the
// Auth provider, so one Auth identity maps to at most one profile.
//
// PasswordHash is a legacy column: once the Auth provider owns credentials it
// only holds a placeholder hash, except for the local provider which still
// verifies against it.
type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Phone        *string    `json:"phone"`
	Role         Role       `json:"role"`
	AvatarURL    *string    `json:"avatar_url"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLogin    *time.Time `json:"last_login"`
}

// ProfileUpdate carries the user-editable profile fields. Nil means unchanged.
type ProfileUpdate struct {
	Name      *string `json:"name"`
	Phone     *string `json:"phone"`
	AvatarURL *string `json:"avatar_url"`
}

// Profile is the session view of a user returned by login. It may be built
// from the Auth identity alone when no local row could be stored.
type Profile struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Phone     *string `json:"phone"`
	Role      Role    `json:"role"`
	AvatarURL *string `json:"avatar_url"`
}

// User returns the fields of p as a User, for token issuing.
func (p *Profile) User() *User {
	return &User{ID: p.ID, Name: p.Name, Email: p.Email, Phone: p.Phone, Role: p.Role, AvatarURL: p.AvatarURL}
}
