package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/sakif/smartbin/internal/apperror"
	"github.com/sakif/smartbin/internal/auth"
	"github.com/sakif/smartbin/internal/identity"
	"github.com/sakif/smartbin/internal/metrics"
	"github.com/sakif/smartbin/internal/model"
	"github.com/sakif/smartbin/internal/repository"
	"github.com/sakif/smartbin/internal/throttle"
)

const (
	MinPasswordLength = 6

	// managedPassword is hashed into password_hash for profiles whose
	// credentials live with the Auth provider.
	managedPassword = "auth-managed"

	// providerEmailWait is the Auth provider's own minimum interval between
	// confirmation emails to one address.
	providerEmailWait = 10 * time.Second
)

// AuthDeps groups the collaborators of AuthService.
type AuthDeps struct {
	Users     repository.UserRepository
	Identity  identity.Provider
	Tokens    *auth.TokenService
	Passwords *auth.PasswordService

	// RegisterThrottle and ResendThrottle keep separate windows per email.
	RegisterThrottle throttle.Throttle
	ResendThrottle   throttle.Throttle

	// RedirectTo is where confirmation links send the user.
	RedirectTo string

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// AuthService implements registration, confirmation resends, login with
// profile reconciliation, and profile reads/edits.
type AuthService struct {
	users      repository.UserRepository
	identity   identity.Provider
	tokens     *auth.TokenService
	passwords  *auth.PasswordService
	register   throttle.Throttle
	resend     throttle.Throttle
	redirectTo string
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewAuthService(d AuthDeps) *AuthService {
	if d.RegisterThrottle == nil {
		d.RegisterThrottle = throttle.NewMemory(throttle.DefaultInterval, 0)
	}
	if d.ResendThrottle == nil {
		d.ResendThrottle = throttle.NewMemory(throttle.DefaultInterval, 0)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &AuthService{
		users:      d.Users,
		identity:   d.Identity,
		tokens:     d.Tokens,
		passwords:  d.Passwords,
		register:   d.RegisterThrottle,
		resend:     d.ResendThrottle,
		redirectTo: d.RedirectTo,
		metrics:    d.Metrics,
		logger:     d.Logger,
		now:        time.Now,
	}
}

// RegisterInput is the body of POST /api/auth/register.
type RegisterInput struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Phone    *string `json:"phone"`
}

// AuthResult is what a successful login hands back to the client.
type AuthResult struct {
	User  *model.Profile `json:"user"`
	Token string         `json:"token"`
}

// Register signs the user up with the identity provider, which sends the
// confirmation email, and stores a local profile. Failing to store the
// profile is not fatal: Login creates it on first sign-in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = emptyToNil(in.Phone)

	if in.Name == "" || in.Email == "" || in.Password == "" {
		return nil, apperror.ValidationFailed("", "Missing required fields: name, email, password")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, apperror.ValidationFailed("email", "Invalid email address")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password", fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}

	if wait := s.throttleWait(ctx, s.register, in.Email); wait > 0 {
		s.metrics.Throttled("register")
		return nil, apperror.RateLimited(
			fmt.Sprintf("Please wait %ds before requesting another confirmation email.", throttle.Seconds(wait)), wait)
	}

	// A failing lookup must not block registration; the provider is the
	// authority on duplicates anyway.
	switch _, err := s.users.GetByEmail(ctx, in.Email); {
	case err == nil:
		return nil, apperror.Conflict("User with this email already exists")
	case !errors.Is(err, apperror.ErrNotFound):
		s.logger.Warn("checking existing profile failed (ignored)",
			slog.String("email", in.Email), slog.String("error", err.Error()))
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", "Password must be 72 bytes or fewer")
	}

	meta := identity.Metadata{Name: in.Name}
	if in.Phone != nil {
		meta.Phone = *in.Phone
	}
	ident, err := s.identity.SignUp(ctx, identity.SignUpRequest{
		Email: in.Email, Password: in.Password, Metadata: meta, RedirectTo: s.redirectTo,
	})
	if err != nil {
		return nil, s.providerEmailError(ctx, s.register, in.Email, err, "registration")
	}

	user := &model.User{
		ID:           ident.ID,
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		Role:         model.RolePublic,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		s.logger.Warn("storing profile failed (will be created on first login)",
			slog.String("user_id", ident.ID), slog.String("error", err.Error()))
		user.CreatedAt = s.now().UTC()
		user.UpdatedAt = user.CreatedAt
	}

	s.touch(ctx, s.register, in.Email)
	s.logger.Info("user registered", slog.String("user_id", user.ID), slog.String("provider", s.identity.Name()))
	return user, nil
}

// ResendConfirmation asks the provider to send the signup email again.
func (s *AuthService) ResendConfirmation(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperror.ValidationFailed("email", "Missing email")
	}

	if wait := s.throttleWait(ctx, s.resend, email); wait > 0 {
		s.metrics.Throttled("resend")
		return apperror.RateLimited(
			fmt.Sprintf("Please wait %ds before resending confirmation.", throttle.Seconds(wait)), wait)
	}

	if err := s.identity.ResendConfirmation(ctx, email, s.redirectTo); err != nil {
		return s.providerEmailError(ctx, s.resend, email, err, "resend")
	}

	s.touch(ctx, s.resend, email)
	return nil
}

// providerEmailError maps a SignUp/Resend failure. A provider rate limit
// also opens our own window so the next attempt is refused locally.
func (s *AuthService) providerEmailError(ctx context.Context, t throttle.Throttle, email string, err error, flow string) error {
	var perr *identity.Error
	switch {
	case errors.Is(err, identity.ErrRateLimited):
		s.touch(ctx, t, email)
		s.metrics.Throttled(flow)
		return apperror.RateLimited("Too many requests. Please try again in 10 seconds.", providerEmailWait)
	case errors.Is(err, identity.ErrAlreadyRegistered):
		return apperror.Conflict("User with this email already exists")
	case errors.As(err, &perr):
		return apperror.ValidationFailed("", identity.Message(err, "Request failed"))
	default:
		return fmt.Errorf("service/auth: %s: %w", flow, err)
	}
}

// Login authenticates with the identity provider, then reconciles the
// local profile:
//
//  1. look the profile up by identity id, then by email;
//  2. if missing, create it with an atomic upsert so concurrent first
//     logins agree on one row; an email clash with a legacy row re-fetches
//     that row;
//  3. touch last_login;
//  4. merge, local values first, identity metadata filling the gaps.
//
// Only a rejected credential or a provider outage fails the call. Profile
// storage problems degrade to a session built from the identity alone.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("", "Missing required fields: email, password")
	}

	ident, err := s.identity.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			s.metrics.Login(metrics.LoginRejected)
			return nil, apperror.Unauthorized(identity.Message(err, "Invalid email or password"))
		}
		s.metrics.Login(metrics.LoginError)
		return nil, fmt.Errorf("service/auth: signing in: %w", err)
	}
	if ident.Email == "" {
		ident.Email = email
	}

	profile := s.findProfile(ctx, ident)
	if profile == nil {
		profile = s.createProfile(ctx, ident)
	}

	if profile != nil {
		if err := s.users.TouchLastLogin(ctx, profile.ID, s.now()); err != nil {
			s.logger.Warn("updating last_login failed (ignored)",
				slog.String("user_id", profile.ID), slog.String("error", err.Error()))
		}
	}

	merged := mergeProfile(profile, ident)
	token, err := s.tokens.Generate(merged.User())
	if err != nil {
		s.metrics.Login(metrics.LoginError)
		return nil, fmt.Errorf("service/auth: issuing token for %s: %w", merged.ID, err)
	}

	s.metrics.Login(metrics.LoginSuccess)
	s.logger.Info("user logged in",
		slog.String("user_id", merged.ID),
		slog.String("role", string(merged.Role)),
		slog.Bool("auth_only", profile == nil),
	)
	return &AuthResult{User: merged, Token: token}, nil
}

func (s *AuthService) findProfile(ctx context.Context, ident *identity.Identity) *model.User {
	user, err := s.users.GetByID(ctx, ident.ID)
	if err == nil {
		return user
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		s.logger.Warn("profile lookup by id failed", slog.String("user_id", ident.ID), slog.String("error", err.Error()))
	}

	user, err = s.users.GetByEmail(ctx, ident.Email)
	if err == nil {
		return user
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		s.logger.Warn("profile lookup by email failed", slog.String("email", ident.Email), slog.String("error", err.Error()))
	}
	return nil
}

// createProfile returns nil when no row could be stored or found.
func (s *AuthService) createProfile(ctx context.Context, ident *identity.Identity) *model.User {
	hash, err := s.passwords.Hash(managedPassword)
	if err != nil {
		s.logger.Error("hashing placeholder password failed", slog.String("error", err.Error()))
		return nil
	}

	candidate := &model.User{
		ID:           ident.ID,
		Name:         fallbackName(ident),
		Email:        ident.Email,
		Phone:        optional(ident.Metadata.Phone),
		Role:         model.RolePublic,
		AvatarURL:    optional(ident.Metadata.AvatarURL),
		PasswordHash: hash,
	}

	stored, err := s.users.EnsureProfile(ctx, candidate)
	switch {
	case err == nil:
		s.metrics.ProfileCreated()
		s.logger.Info("profile ensured on login", slog.String("user_id", stored.ID))
		return stored
	case errors.Is(err, apperror.ErrConflict):
		existing, ferr := s.users.GetByEmail(ctx, ident.Email)
		if ferr == nil {
			return existing
		}
		s.logger.Error("profile conflict but re-fetch failed; continuing with identity only",
			slog.String("user_id", ident.ID), slog.String("error", ferr.Error()))
	default:
		s.logger.Error("creating profile failed; continuing with identity only",
			slog.String("user_id", ident.ID), slog.String("error", err.Error()))
	}
	return nil
}

func mergeProfile(local *model.User, ident *identity.Identity) *model.Profile {
	meta := ident.Metadata
	p := &model.Profile{
		ID:        ident.ID,
		Name:      fallbackName(ident),
		Email:     ident.Email,
		Phone:     optional(meta.Phone),
		Role:      model.RolePublic,
		AvatarURL: optional(meta.AvatarURL),
	}
	if local == nil {
		return p
	}

	p.ID = local.ID
	if local.Name != "" {
		p.Name = local.Name
	}
	if local.Email != "" {
		p.Email = local.Email
	}
	if local.Phone != nil {
		p.Phone = local.Phone
	}
	if local.Role.Valid() {
		p.Role = local.Role
	}
	if local.AvatarURL != nil {
		p.AvatarURL = local.AvatarURL
	}
	return p
}

// fallbackName is the metadata name, else the local part of the email.
func fallbackName(ident *identity.Identity) string {
	if n := strings.TrimSpace(ident.Metadata.Name); n != "" {
		return n
	}
	if local, _, ok := strings.Cut(ident.Email, "@"); ok && local != "" {
		return local
	}
	return "User"
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Me returns the caller's full profile row.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: loading profile: %w", err)
	}
	return user, nil
}

// UpdateProfile edits name, phone and avatar. Empty phone/avatar values are
// stored as empty strings, not cleared, so the merge keeps preferring them.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, upd model.ProfileUpdate) (*model.User, error) {
	upd.Name = trimPtr(upd.Name)
	upd.Phone = trimPtr(upd.Phone)
	upd.AvatarURL = trimPtr(upd.AvatarURL)

	if upd.Name == nil && upd.Phone == nil && upd.AvatarURL == nil {
		return nil, apperror.ValidationFailed("", "Nothing to update")
	}
	if upd.Name != nil && *upd.Name == "" {
		return nil, apperror.ValidationFailed("name", "Name must not be empty")
	}

	user, err := s.users.UpdateProfile(ctx, userID, upd)
	if err != nil {
		return nil, fmt.Errorf("service/auth: updating profile: %w", err)
	}
	return user, nil
}

func (s *AuthService) throttleWait(ctx context.Context, t throttle.Throttle, email string) time.Duration {
	wait, err := t.Wait(ctx, email)
	if err != nil {
		s.logger.Warn("throttle check failed (allowing request)", slog.String("error", err.Error()))
		return 0
	}
	return wait
}

func (s *AuthService) touch(ctx context.Context, t throttle.Throttle, email string) {
	if err := t.Touch(ctx, email); err != nil {
		s.logger.Warn("recording throttle window failed", slog.String("error", err.Error()))
	}
}
