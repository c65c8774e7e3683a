package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"

	"gorm.io/gorm"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	"github.com/pandeptwidyaop/multisite/internal/server/auth"
	"github.com/pandeptwidyaop/multisite/internal/server/config"
	"github.com/pandeptwidyaop/multisite/internal/server/metrics"
	"github.com/pandeptwidyaop/multisite/internal/server/orders"
	"github.com/pandeptwidyaop/multisite/internal/server/payment"
	"github.com/pandeptwidyaop/multisite/internal/server/provision"
	"github.com/pandeptwidyaop/multisite/internal/server/registry"
	"github.com/pandeptwidyaop/multisite/internal/server/web/middleware"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Deps are the services the API is built on.
type Deps struct {
	DB          *gorm.DB
	Config      *config.Config
	Registry    *registry.Registry
	Orders      *orders.Service
	Payments    *payment.Client
	Provisioner *provision.Orchestrator
	Invitations *auth.InvitationService
	Accounts    *auth.AccountService
	TOTP        *auth.TOTPService
	Metrics     *metrics.Metrics
}

// Handler handles platform API requests
type Handler struct {
	db          *gorm.DB
	config      *config.Config
	registry    *registry.Registry
	orders      *orders.Service
	payments    *payment.Client
	provisioner *provision.Orchestrator
	invitations *auth.InvitationService
	accounts    *auth.AccountService
	totp        *auth.TOTPService
	metrics     *metrics.Metrics

	authMW *middleware.AuthMiddleware
	csrf   *middleware.CSRFProtection

	onboardingLimit *middleware.RateLimiter
	webhookLimit    *middleware.RateLimiter
	loginLimit      *middleware.RateLimiter
}

// NewHandler creates a new API handler. Call Close to stop the rate
// limiters' cleanup goroutines.
func NewHandler(deps Deps) *Handler {
	totp := deps.TOTP
	if totp == nil {
		totp = auth.NewTOTPService("")
	}
	return &Handler{
		db:          deps.DB,
		config:      deps.Config,
		registry:    deps.Registry,
		orders:      deps.Orders,
		payments:    deps.Payments,
		provisioner: deps.Provisioner,
		invitations: deps.Invitations,
		accounts:    deps.Accounts,
		totp:        totp,
		metrics:     deps.Metrics,

		authMW: middleware.NewAuthMiddleware(deps.Config.Auth.JWTSecret),
		csrf:   middleware.NewCSRFProtection(deps.Config.Auth.JWTSecret),

		onboardingLimit: middleware.NewRateLimiter(middleware.PerMinute(10), 5),
		webhookLimit:    middleware.NewRateLimiter(middleware.PerMinute(120), 30),
		loginLimit:      middleware.NewRateLimiter(middleware.PerMinute(10), 5),
	}
}

// Close releases background resources.
func (h *Handler) Close() {
	h.onboardingLimit.Stop()
	h.webhookLimit.Stop()
	h.loginLimit.Stop()
}

func (h *Handler) isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	return slices.Contains(h.config.Server.AllowedOrigins, origin)
}

// CORSMiddleware adds CORS headers for the configured dashboard origins.
func (h *Handler) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if h.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+middleware.CSRFHeader)
			w.Header().Set("Access-Control-Max-Age", "3600")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	protect := func(fn http.HandlerFunc) http.Handler {
		return h.authMW.Protect(h.csrf.Protect(fn))
	}
	superAdmin := func(fn http.HandlerFunc) http.Handler {
		return protect(middleware.RequireSuperAdmin(fn).ServeHTTP)
	}
	editor := func(fn http.HandlerFunc) http.Handler {
		return protect(middleware.RequireRole(models.RoleEditor)(fn).ServeHTTP)
	}

	// Public routes
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /api/health", h.health)
	mux.HandleFunc("GET /api/version", h.getVersion)
	mux.HandleFunc("GET /api/plans", h.listPlans)

	// Purchase and onboarding
	mux.HandleFunc("POST /api/checkout", h.checkout)
	mux.HandleFunc("GET /api/onboarding/{token}", h.getOnboarding)
	mux.Handle("POST /api/onboarding/{token}", h.onboardingLimit.Limit(http.HandlerFunc(h.submitOnboarding)))
	mux.HandleFunc("GET /onboarding/{token}", h.onboardingPage)
	mux.Handle("POST /onboarding/{token}", h.onboardingLimit.Limit(http.HandlerFunc(h.onboardingForm)))
	mux.Handle("POST /api/payments/webhook", h.webhookLimit.Limit(http.HandlerFunc(h.paymentWebhook)))

	// Accounts
	mux.Handle("POST /api/auth/login", h.loginLimit.Limit(http.HandlerFunc(h.login)))
	mux.HandleFunc("POST /api/auth/logout", h.logout)
	mux.Handle("POST /api/auth/invitations/accept", h.loginLimit.Limit(http.HandlerFunc(h.acceptInvitation)))
	mux.Handle("GET /api/auth/me", h.authMW.Protect(http.HandlerFunc(h.me)))
	mux.Handle("GET /api/auth/csrf", h.authMW.Protect(http.HandlerFunc(h.csrfToken)))
	mux.Handle("GET /api/2fa/status", protect(h.twoFactorStatus))
	mux.Handle("POST /api/2fa/setup", protect(h.twoFactorSetup))
	mux.Handle("POST /api/2fa/verify", protect(h.twoFactorVerify))
	mux.Handle("POST /api/2fa/disable", protect(h.twoFactorDisable))

	// Platform administration
	mux.Handle("GET /api/tenants", superAdmin(h.listTenants))
	mux.Handle("POST /api/tenants", superAdmin(h.createTenant))
	mux.Handle("GET /api/tenants/{id}", superAdmin(h.getTenant))
	mux.Handle("PATCH /api/tenants/{id}/active", superAdmin(h.setTenantActive))
	mux.Handle("POST /api/tenants/{id}/setup-fee", superAdmin(h.markSetupFeePaid))
	mux.Handle("POST /api/tenants/{id}/domains", superAdmin(h.addDomain))
	mux.Handle("POST /api/domains/{id}/verify", superAdmin(h.verifyDomain))
	mux.Handle("POST /api/domains/{id}/primary", superAdmin(h.setPrimaryDomain))
	mux.Handle("PATCH /api/domains/{id}/active", superAdmin(h.setDomainActive))
	mux.Handle("GET /api/orders/{number}", superAdmin(h.getOrder))
	mux.Handle("POST /api/orders/{number}/refund", superAdmin(h.refundOrder))

	// Tenant dashboard
	mux.Handle("GET /api/settings", editor(h.getSettings))
	mux.Handle("PATCH /api/settings", editor(h.updateSettings))
	mux.Handle("GET /api/content/sections", editor(h.listSections))
	mux.Handle("POST /api/content/sections", editor(h.createSection))
	mux.Handle("DELETE /api/content/sections/{id}", editor(h.deleteSection))
	mux.Handle("GET /api/content/services", editor(h.listServices))
	mux.Handle("POST /api/content/services", editor(h.createService))
	mux.Handle("DELETE /api/content/services/{id}", editor(h.deleteService))

	if h.config.Metrics.Enabled {
		mux.Handle("GET "+h.config.Metrics.Path, h.metrics.Handler())
	}
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

type errorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pkgerrors.ErrUnauthorized), errors.Is(err, pkgerrors.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, pkgerrors.ErrForbidden):
		return http.StatusForbidden
	}

	appErr, ok := pkgerrors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case pkgerrors.CodeNotFound:
		return http.StatusNotFound
	case pkgerrors.CodePrecondition:
		if appErr.Reason == pkgerrors.ReasonExpired {
			return http.StatusGone
		}
		return http.StatusConflict
	case pkgerrors.CodeConflict:
		return http.StatusConflict
	case pkgerrors.CodeValidation:
		return http.StatusBadRequest
	case pkgerrors.CodeExternal:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondAppError writes err using the error taxonomy. Errors outside the
// taxonomy are logged and reported without detail.
func respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorResponse{Error: http.StatusText(status)}

	if appErr, ok := pkgerrors.As(err); ok {
		body.Code = appErr.Code
		body.Field = appErr.Field
		body.Reason = string(appErr.Reason)
		body.Error = appErr.Message
	}

	switch status {
	case http.StatusInternalServerError:
		body = errorResponse{Error: "Internal server error"}
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	case http.StatusBadGateway:
		logger.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("Upstream service failed")
	case http.StatusUnauthorized, http.StatusForbidden:
		if body.Code == "" {
			body.Error = err.Error()
		}
	}

	respondJSON(w, status, body)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// health returns a simple health check response
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	database := "ok"
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(r.Context()) != nil {
		status = http.StatusServiceUnavailable
		database = "unavailable"
	}
	respondJSON(w, status, map[string]interface{}{
		"status":   http.StatusText(status),
		"service":  "multisite-server",
		"database": database,
	})
}
