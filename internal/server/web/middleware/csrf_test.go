package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFToken(t *testing.T) {
	c := NewCSRFProtection(testSecret)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	token, err := c.GenerateToken("user-1")
	require.NoError(t, err)

	assert.True(t, c.ValidateToken(token, "user-1"))
	assert.True(t, c.ValidateToken(token, "user-1"), "tokens are reusable within their lifetime")
	assert.False(t, c.ValidateToken(token, "user-2"))
	assert.False(t, c.ValidateToken(token+"0", "user-1"))
	assert.False(t, c.ValidateToken("", "user-1"))
	assert.False(t, NewCSRFProtection("other").ValidateToken(token, "user-1"))

	now = now.Add(time.Hour)
	assert.False(t, c.ValidateToken(token, "user-1"))
}

func TestCSRFProtect(t *testing.T) {
	auth := NewAuthMiddleware(testSecret)
	csrf := NewCSRFProtection(testSecret)
	user := ownerUser(uuid.New())
	session, _, err := auth.GenerateToken(user)
	require.NoError(t, err)
	csrfToken, err := csrf.GenerateToken(user.ID.String())
	require.NoError(t, err)

	handler := auth.Protect(csrf.Protect(okHandler))

	tests := []struct {
		name   string
		method string
		cookie bool
		header string
		status int
	}{
		{"get with cookie", http.MethodGet, true, "", http.StatusOK},
		{"post with cookie and token", http.MethodPost, true, csrfToken, http.StatusOK},
		{"post with cookie without token", http.MethodPost, true, "", http.StatusForbidden},
		{"delete with cookie and bad token", http.MethodDelete, true, "x.y.z", http.StatusForbidden},
		{"post with bearer", http.MethodPost, false, "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/content/sections", nil)
			if tt.cookie {
				req.AddCookie(&http.Cookie{Name: AuthCookie, Value: session})
			} else {
				req.Header.Set("Authorization", "Bearer "+session)
			}
			if tt.header != "" {
				req.Header.Set(CSRFHeader, tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
