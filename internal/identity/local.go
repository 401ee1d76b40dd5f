package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sakif/smartbin/internal/apperror"
	"github.com/sakif/smartbin/internal/repository"
)

// Hasher is the subset of auth.PasswordService Local needs.
type Hasher interface {
	Verify(hash, plaintext string) error
}

// Local authenticates against users.password_hash. It has no email flow:
// sign-ups are confirmed immediately and resends are no-ops. The caller is
// still responsible for writing the profile row with the password hash.
type Local struct {
	users  repository.UserRepository
	hasher Hasher
}

var _ Provider = (*Local)(nil)

func NewLocal(users repository.UserRepository, hasher Hasher) *Local {
	return &Local{users: users, hasher: hasher}
}

func (l *Local) Name() string { return "local" }

func (l *Local) SignUp(ctx context.Context, req SignUpRequest) (*Identity, error) {
	return l.CreateUser(ctx, req.Email, req.Password, req.Metadata)
}

func (l *Local) CreateUser(ctx context.Context, email, _ string, meta Metadata) (*Identity, error) {
	_, err := l.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, &Error{Status: http.StatusUnprocessableEntity, Code: "user_already_exists",
			Message: "User already registered", Kind: ErrAlreadyRegistered}
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("identity: checking existing user: %w", err)
	}
	return &Identity{ID: uuid.NewString(), Email: strings.TrimSpace(email), Metadata: meta}, nil
}

func (l *Local) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	invalid := &Error{Status: http.StatusBadRequest, Code: "invalid_credentials",
		Message: "Invalid login credentials", Kind: ErrInvalidCredentials}

	user, err := l.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("identity: loading user: %w", err)
	}
	if user.PasswordHash == "" || l.hasher.Verify(user.PasswordHash, password) != nil {
		return nil, invalid
	}

	meta := Metadata{Name: user.Name, Role: string(user.Role)}
	if user.Phone != nil {
		meta.Phone = *user.Phone
	}
	if user.AvatarURL != nil {
		meta.AvatarURL = *user.AvatarURL
	}
	return &Identity{ID: user.ID, Email: user.Email, Metadata: meta}, nil
}

func (l *Local) ResendConfirmation(context.Context, string, string) error {
	return nil
}
