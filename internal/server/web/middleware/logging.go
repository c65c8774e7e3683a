package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pandeptwidyaop/multisite/pkg/logger"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// requestInfo collects values that inner middleware learn about a request
// so the access log can report them.
type requestInfo struct {
	tenant string
	claims *Claims
}

func annotate(ctx context.Context, fn func(*requestInfo)) {
	if info, ok := ctx.Value(requestInfoCtxKey).(*requestInfo); ok {
		fn(info)
	}
}

// levelFor picks the log event for status under the configured level, or
// nil when the request is not logged.
func levelFor(logLevel string, status int) *zerolog.Event {
	switch logLevel {
	case "silent":
		return nil
	case "error":
		if status >= 500 {
			return logger.ErrorEvent()
		}
		return nil
	case "warn":
		if status < 400 {
			return nil
		}
	}
	switch {
	case status >= 500:
		return logger.ErrorEvent()
	case status >= 400:
		return logger.WarnEvent()
	default:
		return logger.InfoEvent()
	}
}

// HTTPLogger logs all HTTP requests at info level.
func HTTPLogger(next http.Handler) http.Handler {
	return HTTPLoggerWithLevel(next, "info")
}

// HTTPLoggerWithLevel logs HTTP requests based on configured level:
// "silent", "error" (5xx), "warn" (4xx+5xx), "info" (all requests).
func HTTPLoggerWithLevel(next http.Handler, logLevel string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		info := &requestInfo{}
		ctx := context.WithValue(r.Context(), requestInfoCtxKey, info)

		next.ServeHTTP(rw, r.WithContext(ctx))

		duration := time.Since(start)
		logEvent := levelFor(logLevel, rw.statusCode)
		if logEvent == nil {
			return
		}

		logEvent = logEvent.
			Str("method", r.Method).
			Str("host", r.Host).
			Str("path", r.URL.Path).
			Str("client_ip", ClientIP(r)).
			Str("user_agent", r.UserAgent()).
			Int("status", rw.statusCode).
			Int64("bytes", rw.written).
			Dur("duration", duration)

		if info.tenant != "" {
			logEvent = logEvent.Str("tenant", info.tenant)
		}
		if info.claims != nil {
			logEvent = logEvent.
				Str("user_id", info.claims.UserID).
				Str("username", info.claims.Username).
				Str("role", info.claims.Role)
		}

		logEvent.Msg("HTTP request")
	})
}
