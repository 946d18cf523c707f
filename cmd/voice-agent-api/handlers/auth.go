package handlers

import (
	"errors"
	"net/http"

	"github.com/axmen-recycling/voice-agent/internal/auth"
	"github.com/axmen-recycling/voice-agent/internal/observability"
)

// AuthHandler issues admin session tokens.
type AuthHandler struct {
	base
	service *auth.Service
}

// NewAuthHandler creates a new login handler.
func NewAuthHandler(logger *observability.Logger, service *auth.Service) *AuthHandler {
	return &AuthHandler{
		base:    base{logger: logger},
		service: service,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string     `json:"token"`
	User  *auth.User `json:"user"`
}

// Login exchanges an email and password for a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	token, user, err := h.service.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		h.writeError(w, http.StatusUnauthorized, "Invalid credentials", "")
		return
	}
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Login failed")
		h.writeError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}

	h.logger.WithContext(r.Context()).Info().Str("user_id", user.ID).Msg("Admin logged in")
	h.writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}
