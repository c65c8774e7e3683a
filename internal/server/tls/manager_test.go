package tls

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
)

type fakeHosts map[string]bool

func (f fakeHosts) Resolve(_ context.Context, host string) (*models.Tenant, error) {
	if f[host] {
		return &models.Tenant{Slug: "acme", IsActive: true}, nil
	}
	return nil, pkgerrors.NotFound("tenant", nil)
}

func TestNewManager_Disabled(t *testing.T) {
	m, err := NewManager(Config{}, fakeHosts{})
	require.NoError(t, err)
	assert.False(t, m.IsEnabled())
	assert.False(t, m.AutoCert())
	assert.Nil(t, m.TLSConfig())

	fallback := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	m.HTTPHandler(fallback).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestNewManager_AutoCertPolicy(t *testing.T) {
	m, err := NewManager(Config{AutoCert: true, CertDir: t.TempDir()}, fakeHosts{"www.acme.cl": true})
	require.NoError(t, err)
	require.True(t, m.IsEnabled())
	assert.True(t, m.AutoCert())
	assert.NotNil(t, m.TLSConfig().GetCertificate)

	assert.NoError(t, m.hostPolicy(context.Background(), "www.acme.cl"))
	assert.Error(t, m.hostPolicy(context.Background(), "evil.example.com"))
}

func TestNewManager_AutoCertNeedsDir(t *testing.T) {
	_, err := NewManager(Config{AutoCert: true}, fakeHosts{})
	assert.Error(t, err)
}

func TestNewManager_BadCertificateFiles(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "server.crt")
	key := filepath.Join(dir, "server.key")
	require.NoError(t, os.WriteFile(cert, []byte("not a certificate"), 0o600))
	require.NoError(t, os.WriteFile(key, []byte("not a key"), 0o600))

	_, err := NewManager(Config{CertFile: cert, KeyFile: key}, fakeHosts{})
	assert.Error(t, err)
}
