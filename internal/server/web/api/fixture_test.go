package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pandeptwidyaop/multisite/internal/db"
	"github.com/pandeptwidyaop/multisite/internal/db/models"
	"github.com/pandeptwidyaop/multisite/internal/server/auth"
	"github.com/pandeptwidyaop/multisite/internal/server/config"
	"github.com/pandeptwidyaop/multisite/internal/server/metrics"
	"github.com/pandeptwidyaop/multisite/internal/server/orders"
	"github.com/pandeptwidyaop/multisite/internal/server/payment"
	"github.com/pandeptwidyaop/multisite/internal/server/provision"
	"github.com/pandeptwidyaop/multisite/internal/server/registry"
	"github.com/pandeptwidyaop/multisite/internal/server/resolver"
)

const (
	testBaseDomain    = "sitios.local"
	testJWTSecret     = "test-secret-that-is-long-enough-for-hs256"
	testWebhookSecret = "whsec-test"
	testAdminPassword = "admin-password"
)

// fakeProvider is a minimal payment provider. Card token "approve" is
// approved, anything else rejected.
type fakeProvider struct {
	mu       sync.Mutex
	seq      int
	payments map[string]map[string]interface{}
	refunds  []string
	fail     bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{payments: map[string]map[string]interface{}{}}
}

func (p *fakeProvider) add(id, status, reference string, amount int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments[id] = map[string]interface{}{
		"id":                 id,
		"status":             status,
		"status_detail":      "accredited",
		"external_reference": reference,
		"transaction_amount": amount,
	}
}

func (p *fakeProvider) setFail(fail bool) {
	p.mu.Lock()
	p.fail = fail
	p.mu.Unlock()
}

func (p *fakeProvider) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/payments", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.fail {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message": "internal_error"}`))
			return
		}

		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.seq++
		id := fmt.Sprintf("%d", 1000+p.seq)
		status, detail := "rejected", "cc_rejected_other_reason"
		if body["token"] == "approve" {
			status, detail = "approved", "accredited"
		}
		pay := map[string]interface{}{
			"id":                 id,
			"status":             status,
			"status_detail":      detail,
			"external_reference": body["external_reference"],
			"transaction_amount": body["transaction_amount"],
		}
		p.payments[id] = pay
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(pay)
	})
	mux.HandleFunc("GET /v1/payments/{id}", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		pay, ok := p.payments[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message": "payment not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(pay)
	})
	mux.HandleFunc("POST /v1/payments/{id}/refunds", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		pay, ok := p.payments[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message": "payment not found"}`))
			return
		}
		p.refunds = append(p.refunds, r.PathValue("id"))
		pay["status"] = "refunded"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     9000 + len(p.refunds),
			"status": "approved",
			"amount": pay["transaction_amount"],
		})
	})
	return mux
}

type apiFixture struct {
	db          *gorm.DB
	cfg         *config.Config
	registry    *registry.Registry
	orders      *orders.Service
	accounts    *auth.AccountService
	totp        *auth.TOTPService
	provisioner *provision.Orchestrator
	handler     *Handler
	server      *httptest.Server
	provider    *fakeProvider
	now         time.Time
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	database, err := db.Connect(db.Config{Driver: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(database))
	_, err = orders.SetupPlans(ctx, database)
	require.NoError(t, err)

	f := &apiFixture{
		db:       database,
		provider: newFakeProvider(),
		now:      time.Now(),
	}
	providerServer := httptest.NewServer(f.provider.handler())
	t.Cleanup(providerServer.Close)

	f.cfg = &config.Config{
		Server:  config.ServerConfig{BaseDomain: testBaseDomain, DevMode: true},
		Auth:    config.AuthConfig{JWTSecret: testJWTSecret, AdminUsername: "admin", AdminPassword: testAdminPassword},
		Payment: config.PaymentConfig{WebhookSecret: testWebhookSecret},
	}

	m := metrics.New(prometheus.NewRegistry())
	f.registry = registry.New(database, testBaseDomain)
	res := resolver.New(database, resolver.NewMemoryCache(), resolver.Options{}, m)
	f.registry.SetEvictor(res)

	f.orders = orders.NewService(database, orders.Config{}, m)
	f.orders.SetClock(func() time.Time { return f.now })
	invitations := auth.NewInvitationService(database, 0)
	f.totp = auth.NewTOTPService("multisite-test")
	f.accounts = auth.NewAccountService(database, f.totp)
	f.provisioner = provision.New(database, f.registry, f.orders, invitations, m)

	_, _, err = f.accounts.EnsureSuperAdmin(ctx, "admin", testAdminPassword)
	require.NoError(t, err)

	f.handler = NewHandler(Deps{
		DB:          database,
		Config:      f.cfg,
		Registry:    f.registry,
		Orders:      f.orders,
		Payments:    payment.NewClient(payment.Config{BaseURL: providerServer.URL, AccessToken: "TEST", Timeout: 2 * time.Second}),
		Provisioner: f.provisioner,
		Invitations: invitations,
		Accounts:    f.accounts,
		TOTP:        f.totp,
		Metrics:     m,
	})
	t.Cleanup(f.handler.Close)

	mux := http.NewServeMux()
	f.handler.RegisterRoutes(mux)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// tokenFor issues a bearer token for username.
func (f *apiFixture) tokenFor(t *testing.T, username string) string {
	t.Helper()
	user, err := f.accounts.GetUser(context.Background(), username)
	require.NoError(t, err)
	token, _, err := f.handler.authMW.GenerateToken(user)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) adminToken(t *testing.T) string {
	return f.tokenFor(t, "admin")
}

// tenantWithOwner creates a tenant whose owner logs in with password.
func (f *apiFixture) tenantWithOwner(t *testing.T, slug string) (*models.Tenant, string) {
	t.Helper()
	result, err := f.provisioner.CreateTenant(context.Background(), provision.TenantRequest{
		Name:      strings.ToUpper(slug[:1]) + slug[1:],
		Slug:      slug,
		Email:     slug + "@example.com",
		Username:  "owner_" + slug,
		Password:  "owner-password",
		NoContent: true,
	})
	require.NoError(t, err)
	return result.Tenant, f.tokenFor(t, "owner_"+slug)
}

// paidOrder creates an order and approves its payment, returning the
// order and its onboarding token.
func (f *apiFixture) paidOrder(t *testing.T, email string) (*models.Order, string) {
	t.Helper()
	ctx := context.Background()
	order, err := f.orders.Create(ctx, "essential", orders.Buyer{Email: email, Name: "Ana Soto"})
	require.NoError(t, err)
	paid, applied, err := f.orders.ApplyPayment(ctx, order.ID, orders.PaymentEvent{
		ProviderPaymentID: "pay-" + order.OrderNumber,
		Status:            "approved",
		Amount:            order.Amount,
		Source:            models.SourceWebhook,
	})
	require.NoError(t, err)
	require.True(t, applied)
	return paid, paid.OnboardingToken.String()
}

// request performs a call against the API server. body may be nil, a
// string sent as-is, or a value encoded as JSON.
func (f *apiFixture) request(t *testing.T, method, path, token string, body interface{}, header http.Header) *http.Response {
	t.Helper()
	var reader io.Reader
	contentType := "application/json"
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
		contentType = "application/x-www-form-urlencoded"
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if reader != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// call performs a JSON call and decodes the response into a map.
func (f *apiFixture) call(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	resp := f.request(t, method, path, token, body, nil)
	var out map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(bytes.TrimSpace(raw)) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

// list performs a call whose response is a JSON array.
func (f *apiFixture) list(t *testing.T, path, token string) (int, []map[string]interface{}) {
	t.Helper()
	resp := f.request(t, http.MethodGet, path, token, nil, nil)
	var out []map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(raw)
}
