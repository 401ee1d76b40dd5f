// Package identity talks to the system that owns credentials.
//
// In production that is Supabase Auth (GoTrue): it stores passwords, sends
// confirmation emails and decides whether a login is valid. The API never
// sees a password hash for those accounts. For local development without a
// Supabase project, Local checks bcrypt hashes kept on the users table.
//
// Both implementations return the same sentinel errors so the service layer
// can map provider failures to HTTP statuses without knowing which one is
// configured.
package identity

import (
	"context"
	"errors"
)

var (
	// ErrInvalidCredentials means the email/password pair was rejected
	// (wrong password, unknown email, or an unconfirmed address).
	ErrInvalidCredentials = errors.New("identity: invalid credentials")

	// ErrRateLimited means the provider refused to send another email yet.
	ErrRateLimited = errors.New("identity: rate limited")

	// ErrAlreadyRegistered means an identity with this email exists.
	ErrAlreadyRegistered = errors.New("identity: already registered")
)

// Metadata is the free-form profile data stored alongside an identity.
// Account holders can rewrite it through the provider, so none of it is
// trusted for authorization: Role is informational only.
type Metadata struct {
	Name      string `json:"name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Role      string `json:"role,omitempty"`
}

// Identity is an authenticated account as the provider knows it.
type Identity struct {
	ID       string
	Email    string
	Metadata Metadata
}

// SignUpRequest starts a registration that ends with an email confirmation.
type SignUpRequest struct {
	Email      string
	Password   string
	Metadata   Metadata
	RedirectTo string
}

// Provider is implemented by Supabase and Local.
type Provider interface {
	SignUp(ctx context.Context, req SignUpRequest) (*Identity, error)
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	ResendConfirmation(ctx context.Context, email, redirectTo string) error

	// CreateUser provisions an already-confirmed identity. Used by seeding.
	CreateUser(ctx context.Context, email, password string, meta Metadata) (*Identity, error)

	Name() string
}

// Error carries the provider's own status and message. Kind, when set, is
// one of the sentinel errors above so errors.Is keeps working.
type Error struct {
	Status  int
	Code    string
	Message string
	Kind    error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Message returns the provider's human-readable text for err, or fallback.
func Message(err error, fallback string) string {
	var perr *Error
	if errors.As(err, &perr) && perr.Message != "" {
		return perr.Message
	}
	return fallback
}
