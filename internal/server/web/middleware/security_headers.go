package middleware

import "net/http"

const dashboardCSP = "default-src 'self'; " +
	"script-src 'self'; " +
	"style-src 'self' 'unsafe-inline'; " +
	"img-src 'self' data: https:; " +
	"font-src 'self' data:; " +
	"connect-src 'self'; " +
	"frame-ancestors 'none'; " +
	"base-uri 'self'; " +
	"form-action 'self'"

// Tenant sites load branding from anywhere over https (logos, fonts, maps)
// and keep inline styles for their colors.
const siteCSP = "default-src 'self' https:; " +
	"script-src 'self' https:; " +
	"style-src 'self' 'unsafe-inline' https:; " +
	"img-src 'self' data: https:; " +
	"font-src 'self' data: https:; " +
	"frame-ancestors 'self'; " +
	"base-uri 'self'"

func securityHeaders(csp, frameOptions string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", frameOptions)
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000")
		}
		h.Set("Content-Security-Policy", csp)
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders adds strict headers for the API and dashboard.
func SecurityHeaders(next http.Handler) http.Handler {
	return securityHeaders(dashboardCSP, "DENY", next)
}

// SiteSecurityHeaders adds headers suited to public tenant sites.
func SiteSecurityHeaders(next http.Handler) http.Handler {
	return securityHeaders(siteCSP, "SAMEORIGIN", next)
}
