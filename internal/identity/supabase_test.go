package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGoTrue records the last request and replies with a canned response.
type fakeGoTrue struct {
	status int
	body   string

	path, query, apikey, bearer string
	payload                     map[string]any
}

func (f *fakeGoTrue) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.path = r.URL.Path
	f.query = r.URL.RawQuery
	f.apikey = r.Header.Get("apikey")
	f.bearer = r.Header.Get("Authorization")
	f.payload = map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&f.payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_, _ = w.Write([]byte(f.body))
}

func newTestSupabase(t *testing.T, fake *fakeGoTrue) *Supabase {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewSupabase(SupabaseConfig{
		URL: srv.URL + "/", AnonKey: "anon-key", ServiceRoleKey: "service-key",
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return s
}

func TestNewSupabase_RequiresKeys(t *testing.T) {
	_, err := NewSupabase(SupabaseConfig{URL: "https://x.supabase.co"})
	assert.Error(t, err)
}

func TestSupabaseSignUp(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bare user (confirmation on)", `{"id":"u-1","email":"a@example.com","user_metadata":{"name":"Ayesha"}}`},
		{"session (autoconfirm)", `{"access_token":"t","user":{"id":"u-1","email":"a@example.com","user_metadata":{"name":"Ayesha"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeGoTrue{status: http.StatusOK, body: tt.body}
			s := newTestSupabase(t, fake)

			id, err := s.SignUp(context.Background(), SignUpRequest{
				Email: "a@example.com", Password: "secret1",
				Metadata:   Metadata{Name: "Ayesha", Phone: "0170"},
				RedirectTo: "http://localhost:5000",
			})
			require.NoError(t, err)
			assert.Equal(t, "u-1", id.ID)
			assert.Equal(t, "Ayesha", id.Metadata.Name)

			assert.Equal(t, "/auth/v1/signup", fake.path)
			assert.Equal(t, "redirect_to=http%3A%2F%2Flocalhost%3A5000", fake.query)
			assert.Equal(t, "anon-key", fake.apikey)
			assert.Equal(t, "Bearer anon-key", fake.bearer)
			data, _ := fake.payload["data"].(map[string]any)
			assert.Equal(t, "0170", data["phone"])
		})
	}
}

func TestSupabaseSignUp_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{"email rate limit", http.StatusTooManyRequests,
			`{"code":429,"error_code":"over_email_send_rate_limit","msg":"For security purposes, you can only request this after 10 seconds."}`,
			ErrRateLimited},
		{"legacy rate limit message", http.StatusBadRequest,
			`{"msg":"For security purposes, you can only request this after 10 seconds."}`, ErrRateLimited},
		{"already registered", http.StatusUnprocessableEntity,
			`{"code":422,"error_code":"user_already_exists","msg":"User already registered"}`, ErrAlreadyRegistered},
		{"weak password", http.StatusUnprocessableEntity,
			`{"code":422,"error_code":"weak_password","msg":"Password should be at least 6 characters."}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSupabase(t, &fakeGoTrue{status: tt.status, body: tt.body})

			_, err := s.SignUp(context.Background(), SignUpRequest{Email: "a@example.com", Password: "x"})
			require.Error(t, err)

			var perr *Error
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.status, perr.Status)
			if tt.kind != nil {
				assert.ErrorIs(t, err, tt.kind)
			} else {
				assert.Nil(t, perr.Kind)
				assert.Equal(t, "Password should be at least 6 characters.", Message(err, ""))
			}
		})
	}
}

func TestSupabaseSignIn(t *testing.T) {
	fake := &fakeGoTrue{status: http.StatusOK,
		body: `{"access_token":"tok","user":{"id":"u-9","email":"b@example.com","user_metadata":{"phone":"0180"}}}`}
	s := newTestSupabase(t, fake)

	id, err := s.SignIn(context.Background(), "b@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u-9", id.ID)
	assert.Equal(t, "0180", id.Metadata.Phone)
	assert.Equal(t, "/auth/v1/token", fake.path)
	assert.Equal(t, "grant_type=password", fake.query)
	assert.Equal(t, "pw", fake.payload["password"])
}

func TestSupabaseSignIn_Rejected(t *testing.T) {
	for _, body := range []string{
		`{"error":"invalid_grant","error_description":"Invalid login credentials"}`,
		`{"code":400,"error_code":"email_not_confirmed","msg":"Email not confirmed"}`,
		`{"code":400,"error_code":"something_new","msg":"Nope"}`,
	} {
		s := newTestSupabase(t, &fakeGoTrue{status: http.StatusBadRequest, body: body})
		_, err := s.SignIn(context.Background(), "b@example.com", "bad")
		assert.ErrorIs(t, err, ErrInvalidCredentials, body)
	}

	s := newTestSupabase(t, &fakeGoTrue{status: http.StatusBadGateway, body: `upstream down`})
	_, err := s.SignIn(context.Background(), "b@example.com", "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestSupabaseResendConfirmation(t *testing.T) {
	fake := &fakeGoTrue{status: http.StatusOK, body: `{}`}
	s := newTestSupabase(t, fake)

	require.NoError(t, s.ResendConfirmation(context.Background(), "c@example.com", ""))
	assert.Equal(t, "/auth/v1/resend", fake.path)
	assert.Equal(t, "signup", fake.payload["type"])
	assert.Empty(t, fake.query)
}

func TestSupabaseCreateUser_UsesServiceKey(t *testing.T) {
	fake := &fakeGoTrue{status: http.StatusOK, body: `{"id":"adm-1","email":"admin@example.com"}`}
	s := newTestSupabase(t, fake)

	id, err := s.CreateUser(context.Background(), "admin@example.com", "admin123", Metadata{Name: "Admin", Role: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "adm-1", id.ID)
	assert.Equal(t, "/auth/v1/admin/users", fake.path)
	assert.Equal(t, "service-key", fake.apikey)
	assert.Equal(t, "Bearer service-key", fake.bearer)
	assert.Equal(t, true, fake.payload["email_confirm"])
}

func TestSupabaseCreateUser_NoServiceKey(t *testing.T) {
	s, err := NewSupabase(SupabaseConfig{URL: "http://127.0.0.1:1", AnonKey: "anon"})
	require.NoError(t, err)
	_, err = s.CreateUser(context.Background(), "x@example.com", "pw", Metadata{})
	assert.Error(t, err)
}
