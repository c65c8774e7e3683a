package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	"github.com/pandeptwidyaop/multisite/internal/server/scope"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	claimsContextKey  contextKey = "claims"
	cookieSessionKey  contextKey = "cookie_session"
	requestInfoCtxKey contextKey = "request_info"
)

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// RequireSuperAdmin allows only platform administrators.
func RequireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, ok := scope.ViewerFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !v.SuperAdmin {
			writeError(w, http.StatusForbidden, "Forbidden: superadmin required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole allows members holding at least role. When the request
// resolved a tenant from its host, the membership must be in that tenant.
// Superadmins always pass.
func RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, ok := scope.ViewerFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if v.SuperAdmin {
				next.ServeHTTP(w, r)
				return
			}

			own, member := v.TenantID()
			if !member {
				writeError(w, http.StatusForbidden, "Forbidden: tenant membership required")
				return
			}
			if tenant, resolved := scope.TenantFrom(r.Context()); resolved && tenant.ID != own {
				writeError(w, http.StatusForbidden, "Forbidden: not a member of this site")
				return
			}
			if !v.Can(own, role) {
				writeError(w, http.StatusForbidden, "Forbidden: insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClaimsFromContext retrieves claims from request context
func GetClaimsFromContext(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(claimsContextKey).(*Claims); ok {
		return claims
	}
	return nil
}

// SetClaimsInContext stores claims in context (used by auth middleware)
func SetClaimsInContext(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

func withCookieSession(ctx context.Context, fromCookie bool) context.Context {
	return context.WithValue(ctx, cookieSessionKey, fromCookie)
}

// IsCookieSession reports whether the request authenticated with the
// session cookie rather than an Authorization header.
func IsCookieSession(ctx context.Context) bool {
	fromCookie, _ := ctx.Value(cookieSessionKey).(bool)
	return fromCookie
}
