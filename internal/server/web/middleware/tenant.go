package middleware

import (
	"context"
	"net/http"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	"github.com/pandeptwidyaop/multisite/internal/server/errorpages"
	"github.com/pandeptwidyaop/multisite/internal/server/scope"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
)

// HostResolver maps a Host header to its tenant.
type HostResolver interface {
	Resolve(ctx context.Context, host string) (*models.Tenant, error)
}

// FailureHandler writes the response for a request whose host did not
// resolve.
type FailureHandler func(w http.ResponseWriter, r *http.Request, err error)

// HTMLFailure renders error pages for public site requests.
func HTMLFailure(w http.ResponseWriter, r *http.Request, err error) {
	if pkgerrors.IsNotFound(err) {
		errorpages.NotFound(w, r.Host)
		return
	}
	errorpages.RenderError(w, err, nil)
}

// JSONFailure answers API requests.
func JSONFailure(w http.ResponseWriter, r *http.Request, err error) {
	if pkgerrors.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "Site not found")
		return
	}
	writeError(w, http.StatusServiceUnavailable, "Site lookup unavailable")
}

// ResolveTenant attaches the tenant serving the request's host to its
// context. Hosts that serve no tenant never reach next.
func ResolveTenant(resolver HostResolver, fail FailureHandler) func(http.Handler) http.Handler {
	if fail == nil {
		fail = HTMLFailure
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant, err := resolver.Resolve(r.Context(), r.Host)
			if err != nil {
				if !pkgerrors.IsNotFound(err) {
					logger.ErrorEvent().Err(err).Str("host", r.Host).Msg("Tenant resolution failed")
				}
				fail(w, r, err)
				return
			}

			ctx := scope.WithTenant(r.Context(), tenant)
			ctx = logger.WithContext(ctx, map[string]interface{}{"tenant": tenant.Slug})
			annotate(ctx, func(info *requestInfo) { info.tenant = tenant.Slug })
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
