package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// SupabaseConfig holds the project URL and keys from the Supabase dashboard.
type SupabaseConfig struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string

	// HTTPClient is the base client; its transport is wrapped so the keys
	// are attached to every request. Nil uses http.DefaultClient.
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Supabase is a minimal GoTrue REST client.
//
// GoTrue wants the project key twice: as the apikey header, and as a Bearer
// token. The Bearer part is handled by an oauth2 transport with a static
// token source, the same way an OAuth client attaches an access token.
// Admin calls use the service-role key instead of the anon key.
type Supabase struct {
	authURL string
	anonKey string
	public  *http.Client

	serviceKey string
	admin      *http.Client
}

var _ Provider = (*Supabase)(nil)

func NewSupabase(cfg SupabaseConfig) (*Supabase, error) {
	if cfg.URL == "" || cfg.AnonKey == "" {
		return nil, errors.New("identity: supabase URL and anon key are required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("identity: invalid supabase URL: %w", err)
	}
	base := cfg.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	s := &Supabase{
		authURL:    strings.TrimRight(cfg.URL, "/") + "/auth/v1",
		anonKey:    cfg.AnonKey,
		public:     bearerClient(base, cfg.AnonKey, timeout),
		serviceKey: cfg.ServiceRoleKey,
	}
	if cfg.ServiceRoleKey != "" {
		s.admin = bearerClient(base, cfg.ServiceRoleKey, timeout)
	}
	return s, nil
}

func bearerClient(base *http.Client, key string, timeout time.Duration) *http.Client {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	c := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: key, TokenType: "Bearer"}))
	c.Timeout = timeout
	return c
}

func (s *Supabase) Name() string { return "supabase" }

// gotrueUser is the user object GoTrue returns from every endpoint.
type gotrueUser struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	UserMetadata Metadata `json:"user_metadata"`
}

func (u *gotrueUser) identity() *Identity {
	return &Identity{ID: u.ID, Email: u.Email, Metadata: u.UserMetadata}
}

// sessionOrUser decodes both response shapes of /signup: a bare user when
// email confirmation is on, or a session wrapping the user when it is off.
type sessionOrUser struct {
	gotrueUser
	User *gotrueUser `json:"user"`
}

func (r *sessionOrUser) identity() *Identity {
	if r.User != nil && r.User.ID != "" {
		return r.User.identity()
	}
	return r.gotrueUser.identity()
}

func (s *Supabase) SignUp(ctx context.Context, req SignUpRequest) (*Identity, error) {
	var out sessionOrUser
	err := s.do(ctx, s.public, s.anonKey, "/signup", redirect(req.RedirectTo), map[string]any{
		"email":    req.Email,
		"password": req.Password,
		"data":     req.Metadata,
	}, &out)
	if err != nil {
		return nil, err
	}
	id := out.identity()
	if id.ID == "" {
		return nil, errors.New("identity: signup response carried no user id")
	}
	return id, nil
}

func (s *Supabase) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	var out struct {
		AccessToken string      `json:"access_token"`
		User        *gotrueUser `json:"user"`
	}
	err := s.do(ctx, s.public, s.anonKey, "/token", url.Values{"grant_type": {"password"}}, map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		// Every client-side rejection from the token endpoint is a failed
		// login as far as the caller is concerned.
		var perr *Error
		if errors.As(err, &perr) && perr.Status >= 400 && perr.Status < 500 && perr.Kind == nil {
			perr.Kind = ErrInvalidCredentials
		}
		return nil, err
	}
	if out.User == nil || out.User.ID == "" {
		return nil, &Error{Status: http.StatusUnauthorized, Message: "Invalid email or password", Kind: ErrInvalidCredentials}
	}
	return out.User.identity(), nil
}

func (s *Supabase) ResendConfirmation(ctx context.Context, email, redirectTo string) error {
	return s.do(ctx, s.public, s.anonKey, "/resend", redirect(redirectTo), map[string]string{
		"type":  "signup",
		"email": email,
	}, nil)
}

func (s *Supabase) CreateUser(ctx context.Context, email, password string, meta Metadata) (*Identity, error) {
	if s.admin == nil {
		return nil, errors.New("identity: creating users requires the service role key")
	}
	var out gotrueUser
	err := s.do(ctx, s.admin, s.serviceKey, "/admin/users", nil, map[string]any{
		"email":         email,
		"password":      password,
		"email_confirm": true,
		"user_metadata": meta,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.identity(), nil
}

func redirect(to string) url.Values {
	if to == "" {
		return nil
	}
	return url.Values{"redirect_to": {to}}
}

func (s *Supabase) do(ctx context.Context, client *http.Client, key, path string, query url.Values, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("identity: encoding %s request: %w", path, err)
	}

	endpoint := s.authURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("identity: building %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", key)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("identity: calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("identity: reading %s response: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		return parseError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("identity: decoding %s response: %w", path, err)
	}
	return nil
}

// gotrueError covers the error shapes of older and newer GoTrue releases.
type gotrueError struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Err              string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func parseError(status int, raw []byte) error {
	var ge gotrueError
	_ = json.Unmarshal(raw, &ge)

	perr := &Error{Status: status, Code: ge.ErrorCode}
	for _, m := range []string{ge.Msg, ge.ErrorDescription, ge.Message, ge.Err} {
		if m != "" {
			perr.Message = m
			break
		}
	}
	if perr.Message == "" {
		perr.Message = http.StatusText(status)
	}
	if perr.Code == "" {
		perr.Code = ge.Err
	}

	lower := strings.ToLower(perr.Message)
	switch {
	case status == http.StatusTooManyRequests,
		strings.HasPrefix(perr.Code, "over_"),
		strings.Contains(lower, "only request this after"):
		perr.Kind = ErrRateLimited
	case perr.Code == "user_already_exists",
		perr.Code == "email_exists",
		strings.Contains(lower, "already registered"):
		perr.Kind = ErrAlreadyRegistered
	case perr.Code == "invalid_credentials",
		perr.Code == "invalid_grant",
		perr.Code == "email_not_confirmed":
		perr.Kind = ErrInvalidCredentials
	}
	return perr
}
