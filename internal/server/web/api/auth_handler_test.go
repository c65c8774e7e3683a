package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandeptwidyaop/multisite/internal/server/web/middleware"
)

func TestLogin(t *testing.T) {
	f := setupAPI(t)

	tests := []struct {
		name     string
		username string
		password string
		want     int
	}{
		{"valid credentials", "admin", testAdminPassword, http.StatusOK},
		{"wrong password", "admin", "nope", http.StatusUnauthorized},
		{"unknown user", "ghost", testAdminPassword, http.StatusUnauthorized},
		{"missing password", "admin", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := f.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{
				"username": tt.username,
				"password": tt.password,
			})
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestLogin_IssuesSessionAndCSRF(t *testing.T) {
	f := setupAPI(t)

	resp := f.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "admin",
		"password": testAdminPassword,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == middleware.AuthCookie {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	// Cookie sessions need the CSRF token on writes.
	cookieHeader := http.Header{"Cookie": {session.Name + "=" + session.Value}}
	resp = f.request(t, http.MethodPost, "/api/2fa/setup", "", nil, cookieHeader)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	status, body := f.call(t, http.MethodGet, "/api/auth/csrf", session.Value, nil)
	require.Equal(t, http.StatusOK, status)
	cookieHeader.Set(middleware.CSRFHeader, body["csrf_token"].(string))
	resp = f.request(t, http.MethodPost, "/api/2fa/setup", "", nil, cookieHeader)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMe(t *testing.T) {
	f := setupAPI(t)

	status, _ := f.call(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = f.call(t, http.MethodGet, "/api/auth/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := f.call(t, http.MethodGet, "/api/auth/me", f.adminToken(t), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "admin", body["username"])
	assert.Equal(t, true, body["super_admin"])
}

func TestTwoFactor_EnableLoginDisable(t *testing.T) {
	f := setupAPI(t)
	token := f.adminToken(t)

	status, body := f.call(t, http.MethodPost, "/api/2fa/setup", token, nil)
	require.Equal(t, http.StatusOK, status)
	secret := body["secret"].(string)
	assert.NotEmpty(t, body["qr_url"])

	status, _ = f.call(t, http.MethodPost, "/api/2fa/verify", token, map[string]string{
		"secret": secret,
		"code":   "000000",
	})
	assert.NotEqual(t, http.StatusOK, status)

	status, _ = f.call(t, http.MethodPost, "/api/2fa/verify", token, map[string]string{
		"secret": secret,
		"code":   f.totp.CodeAt(secret, time.Now()),
	})
	require.Equal(t, http.StatusOK, status)

	status, body = f.call(t, http.MethodGet, "/api/2fa/status", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["enabled"])

	login := map[string]string{"username": "admin", "password": testAdminPassword}
	status, body = f.call(t, http.MethodPost, "/api/auth/login", "", login)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["requires_2fa"])
	assert.Nil(t, body["token"])

	login["otp_code"] = f.totp.CodeAt(secret, time.Now())
	status, body = f.call(t, http.MethodPost, "/api/auth/login", "", login)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["token"])

	status, _ = f.call(t, http.MethodPost, "/api/2fa/disable", token, map[string]string{
		"password": testAdminPassword,
		"code":     f.totp.CodeAt(secret, time.Now()),
	})
	require.Equal(t, http.StatusOK, status)

	status, body = f.call(t, http.MethodGet, "/api/2fa/status", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["enabled"])
}
