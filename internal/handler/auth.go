package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/smartbin/internal/auth"
	"github.com/sakif/smartbin/internal/model"
	"github.com/sakif/smartbin/internal/service"
)

// AuthHandler serves /api/auth.
type AuthHandler struct {
	svc    *service.AuthService
	logger *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

type registerResponse struct {
	Message string      `json:"message"`
	User    *model.User `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message string         `json:"message"`
	Token   string         `json:"token"`
	User    *model.Profile `json:"user"`
}

type userResponse struct {
	User *model.User `json:"user"`
}

// HandleRegister creates the identity and local profile.
//
// HTTP: POST /api/auth/register {name, email, password, phone?}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.svc.Register(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{
		Message: "Registration successful. Check your email to confirm your account.",
		User:    user,
	})
}

// HandleResendConfirmation re-sends the signup email.
//
// HTTP: POST /api/auth/resend-confirmation {email}
func (h *AuthHandler) HandleResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.svc.ResendConfirmation(r.Context(), in.Email); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Confirmation email sent again. Check your inbox and spam folder."})
}

// HandleLogin signs in with the identity provider and returns an API token.
//
// HTTP: POST /api/auth/login {email, password}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.svc.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Message: "Login successful", Token: res.Token, User: res.User})
}

// HandleLogout is stateless: the client drops its token.
//
// HTTP: POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// HandleMe returns the caller's profile.
//
// HTTP: GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())

	user, err := h.svc.Me(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

// HandleUpdateMe edits name, phone and avatar_url.
//
// HTTP: PUT /api/auth/me
func (h *AuthHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())

	var upd model.ProfileUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.svc.UpdateProfile(r.Context(), claims.UserID, upd)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}
