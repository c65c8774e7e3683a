package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	"github.com/pandeptwidyaop/multisite/internal/server/auth"
	"github.com/pandeptwidyaop/multisite/internal/server/web/middleware"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	OTPCode  string `json:"otp_code,omitempty"`
}

type userResponse struct {
	ID               string  `json:"id"`
	Username         string  `json:"username"`
	Email            string  `json:"email,omitempty"`
	Name             string  `json:"name,omitempty"`
	SuperAdmin       bool    `json:"super_admin"`
	Role             string  `json:"role,omitempty"`
	TenantID         *string `json:"tenant_id,omitempty"`
	TwoFactorEnabled bool    `json:"two_factor_enabled"`
}

func newUserResponse(u *models.User) userResponse {
	resp := userResponse{
		ID:               u.ID.String(),
		Username:         u.Username,
		Email:            u.Email,
		Name:             u.Name,
		SuperAdmin:       u.IsSuperAdmin,
		TwoFactorEnabled: u.TwoFactorEnabled,
	}
	if u.Profile != nil {
		resp.Role = string(u.Profile.Role)
		if u.Profile.TenantID != nil {
			id := u.Profile.TenantID.String()
			resp.TenantID = &id
		}
	}
	return resp
}

type loginResponse struct {
	Token       string        `json:"token,omitempty"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
	CSRFToken   string        `json:"csrf_token,omitempty"`
	User        *userResponse `json:"user,omitempty"`
	Requires2FA bool          `json:"requires_2fa,omitempty"`
}

func (h *Handler) secureCookies(r *http.Request) bool {
	return r.TLS != nil || !h.config.Server.DevMode
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), req.Username, req.Password, req.OTPCode)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTOTPRequired):
			respondJSON(w, http.StatusOK, loginResponse{Requires2FA: true})
		case errors.Is(err, pkgerrors.ErrUnauthorized):
			logger.WarnEvent().
				Str("username", req.Username).
				Str("client_ip", middleware.ClientIP(r)).
				Msg("Failed login")
			respondError(w, http.StatusUnauthorized, "Invalid credentials")
		default:
			respondAppError(w, r, err)
		}
		return
	}

	token, expires, err := h.authMW.GenerateToken(user)
	if err != nil {
		logger.ErrorEvent().Err(err).Msg("Failed to generate token")
		respondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	csrfToken, err := h.csrf.GenerateToken(user.ID.String())
	if err != nil {
		logger.ErrorEvent().Err(err).Msg("Failed to generate CSRF token")
		respondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	http.SetCookie(w, middleware.SessionCookie(token, expires, h.secureCookies(r)))
	u := newUserResponse(user)
	respondJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: &expires,
		CSRFToken: csrfToken,
		User:      &u,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	cookie := middleware.SessionCookie("", time.Unix(0, 0), h.secureCookies(r))
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	user, err := h.accounts.GetUser(r.Context(), claims.Username)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrUserNotFound) {
			respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *Handler) csrfToken(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	token, err := h.csrf.GenerateToken(claims.UserID)
	if err != nil {
		logger.ErrorEvent().Err(err).Msg("Failed to generate CSRF token")
		respondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

type acceptInvitationRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// acceptInvitation sets the password of an account created by
// provisioning, spending its invitation.
func (h *Handler) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req acceptInvitationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.invitations.Accept(r.Context(), req.Token, req.Password)
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	logger.InfoEvent().Str("username", user.Username).Msg("Invitation accepted")
	respondJSON(w, http.StatusOK, map[string]string{
		"username": user.Username,
		"message":  "Password set",
	})
}
