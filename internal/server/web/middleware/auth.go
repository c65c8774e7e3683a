package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	"github.com/pandeptwidyaop/multisite/internal/server/scope"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
)

// AuthCookie is the httpOnly cookie carrying the dashboard session.
const AuthCookie = "auth_token"

// DefaultSessionTTL is how long an issued session token stays valid.
const DefaultSessionTTL = 24 * time.Hour

// Claims represents JWT claims. TenantID is nil for superadmins.
type Claims struct {
	Username   string  `json:"username"`
	UserID     string  `json:"user_id"`
	Role       string  `json:"role,omitempty"`
	TenantID   *string `json:"tenant_id,omitempty"`
	SuperAdmin bool    `json:"super_admin,omitempty"`
	jwt.RegisteredClaims
}

// Viewer converts the claims into the capability model used by scoped
// data access. Malformed ids yield a viewer without membership.
func (c *Claims) Viewer() scope.Viewer {
	v := scope.Viewer{Username: c.Username, SuperAdmin: c.SuperAdmin}
	if id, err := uuid.Parse(c.UserID); err == nil {
		v.UserID = id
	}
	if c.TenantID != nil && !c.SuperAdmin {
		if tenantID, err := uuid.Parse(*c.TenantID); err == nil {
			v.Membership = &scope.Membership{TenantID: tenantID, Role: models.Role(c.Role)}
		}
	}
	return v
}

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	jwtSecret []byte
	ttl       time.Duration
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: []byte(jwtSecret),
		ttl:       DefaultSessionTTL,
	}
}

// tokenFromRequest reads the session from the cookie first, then from a
// Bearer Authorization header. fromCookie reports which one was used.
func tokenFromRequest(r *http.Request) (token string, fromCookie bool, ok bool) {
	if cookie, err := r.Cookie(AuthCookie); err == nil && cookie.Value != "" {
		return cookie.Value, true, true
	}
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false, false
	}
	scheme, value, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || value == "" {
		return "", false, false
	}
	return value, false, true
}

// Parse validates a session token and returns its claims.
func (m *AuthMiddleware) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// Protect wraps a handler with JWT authentication. The claims and the
// derived viewer are attached to the request context.
func (m *AuthMiddleware) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, fromCookie, ok := tokenFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		claims, err := m.Parse(tokenString)
		if err != nil {
			logger.WarnEvent().Err(err).Str("path", r.URL.Path).Msg("Invalid session token")
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := SetClaimsInContext(r.Context(), claims)
		ctx = scope.WithViewer(ctx, claims.Viewer())
		ctx = withCookieSession(ctx, fromCookie)
		annotate(ctx, func(info *requestInfo) { info.claims = claims })
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GenerateToken issues a session token for user, which must be loaded
// with its profile.
func (m *AuthMiddleware) GenerateToken(user *models.User) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(m.ttl)
	claims := &Claims{
		Username:   user.Username,
		UserID:     user.ID.String(),
		SuperAdmin: user.IsSuperAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if user.Profile != nil {
		claims.Role = string(user.Profile.Role)
		if user.Profile.TenantID != nil && !user.IsSuperAdmin {
			id := user.Profile.TenantID.String()
			claims.TenantID = &id
		}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.jwtSecret)
	return signed, expires, err
}

// SessionCookie returns the cookie storing token.
func SessionCookie(token string, expires time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     AuthCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
