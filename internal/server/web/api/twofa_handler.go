package api

import (
	"errors"
	"net/http"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	"github.com/pandeptwidyaop/multisite/internal/server/auth"
	"github.com/pandeptwidyaop/multisite/internal/server/web/middleware"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
)

// currentUser loads the account behind the request's session.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	user, err := h.accounts.GetUser(r.Context(), claims.Username)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrUserNotFound) {
			respondError(w, http.StatusUnauthorized, "Unauthorized")
		} else {
			respondAppError(w, r, err)
		}
		return nil, false
	}
	return user, true
}

// twoFactorStatus returns the 2FA status for the current user
func (h *Handler) twoFactorStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"enabled": user.TwoFactorEnabled,
	})
}

// twoFactorSetup generates a secret to enrol. Nothing is stored until the
// secret is confirmed with a valid code.
func (h *Handler) twoFactorSetup(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if user.TwoFactorEnabled {
		respondError(w, http.StatusBadRequest, "2FA is already enabled")
		return
	}

	secret, qrURL, err := h.totp.GenerateSecret(user.Username)
	if err != nil {
		logger.ErrorEvent().Err(err).Msg("Failed to generate TOTP secret")
		respondError(w, http.StatusInternalServerError, "Failed to generate secret")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"secret": secret,
		"qr_url": qrURL,
	})
}

// twoFactorVerify enables 2FA once the code for the enrolled secret checks.
func (h *Handler) twoFactorVerify(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Secret string `json:"secret"`
		Code   string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Secret == "" || req.Code == "" {
		respondError(w, http.StatusBadRequest, "Secret and code are required")
		return
	}

	if err := h.accounts.EnableTOTP(r.Context(), user.ID, req.Secret, req.Code); err != nil {
		respondAppError(w, r, err)
		return
	}

	logger.InfoEvent().Str("username", user.Username).Msg("2FA enabled")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "2FA enabled successfully",
	})
}

// twoFactorDisable requires the password and a current code.
func (h *Handler) twoFactorDisable(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Password string `json:"password"`
		Code     string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Password == "" {
		respondError(w, http.StatusBadRequest, "Password is required")
		return
	}

	if _, err := h.accounts.Authenticate(r.Context(), user.Username, req.Password, req.Code); err != nil {
		if errors.Is(err, auth.ErrTOTPRequired) {
			respondError(w, http.StatusBadRequest, "Code is required")
			return
		}
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err := h.accounts.DisableTOTP(r.Context(), user.ID); err != nil {
		respondAppError(w, r, err)
		return
	}

	logger.InfoEvent().Str("username", user.Username).Msg("2FA disabled")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "2FA disabled successfully",
	})
}
