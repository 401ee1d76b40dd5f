package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sakif/smartbin/internal/auth"
	"github.com/sakif/smartbin/internal/identity"
	"github.com/sakif/smartbin/internal/model"
	"github.com/sakif/smartbin/internal/repository/sqlite"
	"github.com/sakif/smartbin/internal/throttle"
)

// fakeProvider is an in-memory identity.Provider. Accounts are keyed by
// lower-cased email; the *Err fields force a failure on the next calls.
type fakeProvider struct {
	mu       sync.Mutex
	accounts map[string]*fakeAccount

	signUpErr error
	signInErr error
	resendErr error

	signUps int
	resends int
}

type fakeAccount struct {
	id       string
	email    string
	password string
	meta     identity.Metadata
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{accounts: make(map[string]*fakeAccount)}
}

// add registers a confirmed account and returns its id.
func (f *fakeProvider) add(email, password string, meta identity.Metadata) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.accounts[strings.ToLower(email)] = &fakeAccount{id: id, email: email, password: password, meta: meta}
	return id
}

func (f *fakeProvider) SignUp(_ context.Context, req identity.SignUpRequest) (*identity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signUps++
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	key := strings.ToLower(req.Email)
	if _, ok := f.accounts[key]; ok {
		return nil, &identity.Error{Status: 422, Code: "user_already_exists", Message: "User already registered", Kind: identity.ErrAlreadyRegistered}
	}
	acc := &fakeAccount{id: uuid.NewString(), email: req.Email, password: req.Password, meta: req.Metadata}
	f.accounts[key] = acc
	return &identity.Identity{ID: acc.id, Email: acc.email, Metadata: acc.meta}, nil
}

func (f *fakeProvider) SignIn(_ context.Context, email, password string) (*identity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	acc, ok := f.accounts[strings.ToLower(email)]
	if !ok || acc.password != password {
		return nil, &identity.Error{Status: 400, Code: "invalid_credentials", Message: "Invalid login credentials", Kind: identity.ErrInvalidCredentials}
	}
	return &identity.Identity{ID: acc.id, Email: acc.email, Metadata: acc.meta}, nil
}

func (f *fakeProvider) ResendConfirmation(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resends++
	return f.resendErr
}

func (f *fakeProvider) CreateUser(ctx context.Context, email, password string, meta identity.Metadata) (*identity.Identity, error) {
	return f.SignUp(ctx, identity.SignUpRequest{Email: email, Password: password, Metadata: meta})
}

func (f *fakeProvider) Name() string { return "fake" }

// failingUsers wraps a real UserRepository and overrides selected calls.
type failingUsers struct {
	*sqlite.UserDB
	ensureErr error
	touchErr  error
	createErr error
}

func (f *failingUsers) EnsureProfile(ctx context.Context, u *model.User) (*model.User, error) {
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	return f.UserDB.EnsureProfile(ctx, u)
}

func (f *failingUsers) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	if f.touchErr != nil {
		return f.touchErr
	}
	return f.UserDB.TouchLastLogin(ctx, id, at)
}

func (f *failingUsers) Create(ctx context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.UserDB.Create(ctx, u)
}

var errDatabaseDown = errors.New("database is down")

func newTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type authFixture struct {
	svc      *AuthService
	db       *sqlite.DB
	users    *failingUsers
	provider *fakeProvider
	tokens   *auth.TokenService
	clock    *time.Time
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	db := newTestStore(t)
	tokens, err := auth.NewTokenService("test-secret-0123456789abcdef", time.Hour)
	require.NoError(t, err)

	users := &failingUsers{UserDB: db.Users().(*sqlite.UserDB)}
	provider := newFakeProvider()
	svc := NewAuthService(AuthDeps{
		Users:            users,
		Identity:         provider,
		Tokens:           tokens,
		Passwords:        auth.NewPasswordServiceForTest(4),
		RegisterThrottle: throttle.NewMemory(throttle.DefaultInterval, 0),
		ResendThrottle:   throttle.NewMemory(throttle.DefaultInterval, 0),
		RedirectTo:       "http://localhost:5000",
	})
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &authFixture{svc: svc, db: db, users: users, provider: provider, tokens: tokens, clock: &now}
}

func createBin(t *testing.T, db *sqlite.DB, bin model.Bin) *model.Bin {
	t.Helper()
	if bin.Status == "" {
		bin.Status = model.StatusForFill(bin.FillLevel)
	}
	require.NoError(t, db.Bins().Create(context.Background(), &bin))
	return &bin
}

func createUser(t *testing.T, db *sqlite.DB, name, email string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{ID: uuid.NewString(), Name: name, Email: email, Role: role}
	require.NoError(t, db.Users().Create(context.Background(), u))
	return u
}

func ptr[T any](v T) *T { return &v }

// recordingPublisher keeps every published event in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

type recordedEvent struct {
	Type string
	Data any
}

func (r *recordingPublisher) Publish(_ context.Context, eventType string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, recordedEvent{Type: eventType, Data: data})
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
