package tls

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"golang.org/x/crypto/acme/autocert"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
)

// Config holds TLS configuration.
type Config struct {
	AutoCert bool
	CertDir  string
	Email    string // Let's Encrypt account contact
	CertFile string
	KeyFile  string
}

// HostChecker reports which tenant serves a host. The domain resolver
// implements it.
type HostChecker interface {
	Resolve(ctx context.Context, host string) (*models.Tenant, error)
}

// Manager handles TLS certificates for tenant hostnames.
type Manager struct {
	hosts       HostChecker
	autocertMgr *autocert.Manager
	tlsConfig   *tls.Config
}

// NewManager creates a TLS manager. With AutoCert, certificates are issued
// on first use for any host that resolves to an active tenant; a static
// certificate pair is used otherwise. Neither configured leaves TLS off.
func NewManager(cfg Config, hosts HostChecker) (*Manager, error) {
	m := &Manager{hosts: hosts}

	switch {
	case cfg.AutoCert:
		if cfg.CertDir == "" {
			return nil, fmt.Errorf("tls.cert_dir is required for autocert")
		}
		m.autocertMgr = &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: m.hostPolicy,
			Cache:      autocert.DirCache(cfg.CertDir),
			Email:      cfg.Email,
		}
		m.tlsConfig = &tls.Config{
			GetCertificate: m.autocertMgr.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}

	case cfg.CertFile != "" && cfg.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificates: %w", err)
		}
		m.tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	return m, nil
}

// hostPolicy refuses certificates for hosts no active tenant answers on,
// so arbitrary SNI names cannot drain the ACME rate limit.
func (m *Manager) hostPolicy(ctx context.Context, host string) error {
	if _, err := m.hosts.Resolve(ctx, host); err != nil {
		return fmt.Errorf("host %q is not served: %w", host, err)
	}
	return nil
}

// TLSConfig returns the TLS configuration, nil when TLS is off.
func (m *Manager) TLSConfig() *tls.Config {
	return m.tlsConfig
}

// HTTPHandler answers ACME HTTP-01 challenges and passes everything else
// to fallback. Without autocert it returns fallback unchanged.
func (m *Manager) HTTPHandler(fallback http.Handler) http.Handler {
	if m.autocertMgr == nil {
		return fallback
	}
	return m.autocertMgr.HTTPHandler(fallback)
}

// IsEnabled returns whether TLS is enabled.
func (m *Manager) IsEnabled() bool {
	return m.tlsConfig != nil
}

// AutoCert reports whether certificates are issued on demand.
func (m *Manager) AutoCert() bool {
	return m.autocertMgr != nil
}
