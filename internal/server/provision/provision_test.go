package provision

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pandeptwidyaop/multisite/internal/db"
	"github.com/pandeptwidyaop/multisite/internal/db/models"
	"github.com/pandeptwidyaop/multisite/internal/server/auth"
	"github.com/pandeptwidyaop/multisite/internal/server/metrics"
	"github.com/pandeptwidyaop/multisite/internal/server/orders"
	"github.com/pandeptwidyaop/multisite/internal/server/registry"
	"github.com/pandeptwidyaop/multisite/internal/server/resolver"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/utils"
)

const baseDomain = "sitios.local"

type fixture struct {
	db          *gorm.DB
	registry    *registry.Registry
	orders      *orders.Service
	invitations *auth.InvitationService
	metrics     *metrics.Metrics
	resolver    *resolver.Resolver
	orch        *Orchestrator
	now         time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	database, err := db.Connect(db.Config{Driver: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(database))
	_, err = orders.SetupPlans(context.Background(), database)
	require.NoError(t, err)

	f := &fixture{
		db:      database,
		metrics: metrics.New(prometheus.NewRegistry()),
		now:     time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	f.registry = registry.New(database, baseDomain)
	f.resolver = resolver.New(database, resolver.NewMemoryCache(), resolver.Options{}, f.metrics)
	f.registry.SetEvictor(f.resolver)

	f.orders = orders.NewService(database, orders.Config{}, f.metrics)
	f.orders.SetClock(clock)
	f.invitations = auth.NewInvitationService(database, 0)
	f.invitations.SetClock(clock)

	f.orch = New(database, f.registry, f.orders, f.invitations, f.metrics)
	return f
}

// paidOrder returns a paid order of plan and its onboarding token.
func (f *fixture) paidOrder(t *testing.T, plan, email string) (*models.Order, string) {
	t.Helper()
	ctx := context.Background()
	order, err := f.orders.Create(ctx, plan, orders.Buyer{Email: email, Name: "Buyer"})
	require.NoError(t, err)

	paid, applied, err := f.orders.ApplyPayment(ctx, order.ID, orders.PaymentEvent{
		ProviderPaymentID: "mp-" + order.OrderNumber,
		Status:            "approved",
		Amount:            order.Amount,
		Source:            models.SourceWebhook,
	})
	require.NoError(t, err)
	require.True(t, applied)
	require.NotNil(t, paid.OnboardingToken)
	return paid, paid.OnboardingToken.String()
}

func (f *fixture) countTenants(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Tenant{}).Count(&n).Error)
	return n
}

func reasonOf(t *testing.T, err error) pkgerrors.Reason {
	t.Helper()
	appErr, ok := pkgerrors.As(err)
	require.True(t, ok, "expected AppError, got %v", err)
	return appErr.Reason
}

func TestProvision_CreatesResolvableTenant(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order, token := f.paidOrder(t, "essential", "ana@acme.cl")

	_, err := f.orders.GetForOnboarding(ctx, token)
	require.NoError(t, err)

	result, err := f.orch.Provision(ctx, token, SetupData{
		CompanyName:  "Acme",
		Slug:         "acme",
		Tagline:      "Electricidad segura",
		AboutText:    "Quince años de experiencia.",
		PrimaryColor: "#112233",
		ContactPhone: "+56911111111",
	})
	require.NoError(t, err)

	assert.Equal(t, "acme", result.Tenant.Slug)
	assert.True(t, result.Tenant.IsActive)
	assert.True(t, result.Tenant.SetupFeePaid)
	assert.True(t, result.Tenant.SetupCompleted)
	assert.Equal(t, 5, result.Tenant.MaxPages)
	assert.Equal(t, "plan:essential", result.Tenant.Notes)

	assert.Equal(t, "acme.sitios.local", result.Domain.Hostname)
	assert.True(t, result.Domain.IsPrimary)
	assert.True(t, result.Domain.IsVerified)
	assert.Equal(t, models.DomainTypeSubdomain, result.Domain.Type)

	assert.Equal(t, "ana", result.Owner.Username)
	assert.False(t, utils.IsUsablePassword(result.Owner.Password))
	assert.Equal(t, models.RoleOwner, result.Profile.Role)
	require.NotNil(t, result.Profile.TenantID)
	assert.Equal(t, result.Tenant.ID, *result.Profile.TenantID)
	assert.NotEmpty(t, result.InvitationToken)

	assert.Equal(t, models.OrderCompleted, result.Order.Status)
	require.NotNil(t, result.Order.TenantID)
	assert.Equal(t, result.Tenant.ID, *result.Order.TenantID)
	assert.Equal(t, order.ID, result.Order.ID)

	assert.Equal(t, "#112233", result.Tenant.Settings.PrimaryColor)

	var sections []models.Section
	require.NoError(t, f.db.Where("tenant_id = ?", result.Tenant.ID).Order("position").Find(&sections).Error)
	require.Len(t, sections, 3)
	assert.Equal(t, "Bienvenido a Acme", sections[0].Title)
	assert.Equal(t, models.SectionAbout, sections[1].Type)
	assert.Equal(t, models.SectionContact, sections[2].Type)

	resolved, err := f.resolver.Resolve(ctx, "ACME.sitios.local:443")
	require.NoError(t, err)
	assert.Equal(t, result.Tenant.ID, resolved.ID)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TenantsProvisioned.WithLabelValues(StatusSuccess)))

	// The invitation sets the owner's first password.
	user, err := f.invitations.Accept(ctx, result.InvitationToken, "s3cret-pass")
	require.NoError(t, err)
	assert.True(t, utils.ComparePassword(user.Password, "s3cret-pass"))
}

func TestProvision_TokenIsSpent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, token := f.paidOrder(t, "essential", "ana@acme.cl")

	_, err := f.orch.Provision(ctx, token, SetupData{CompanyName: "Acme"})
	require.NoError(t, err)

	_, err = f.orch.Provision(ctx, token, SetupData{CompanyName: "Acme Dos", Slug: "acme-dos"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ReasonCompleted, reasonOf(t, err))
	assert.Equal(t, int64(1), f.countTenants(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TenantsProvisioned.WithLabelValues(StatusRejected)))
}

func TestProvision_ConcurrentSameSlug(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, first := f.paidOrder(t, "essential", "ana@acme.cl")
	_, second := f.paidOrder(t, "essential", "bea@acme.cl")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, token := range []string{first, second} {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			_, errs[i] = f.orch.Provision(ctx, token, SetupData{CompanyName: "Acme", Slug: "acme"})
		}(i, token)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case pkgerrors.IsConflict(err):
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)
	assert.Equal(t, int64(1), f.countTenants(t))

	var completed int64
	require.NoError(t, f.db.Model(&models.Order{}).Where("status = ?", models.OrderCompleted).Count(&completed).Error)
	assert.Equal(t, int64(1), completed)
}

func TestProvision_SlugTakenAtInsert(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order, token := f.paidOrder(t, "essential", "ana@acme.cl")

	// A rival row appears between the availability check and the insert.
	claimed := false
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:claim_slug", func(tx *gorm.DB) {
		tenant, ok := tx.Statement.Dest.(*models.Tenant)
		if !ok || tenant.Slug != "acme" || claimed {
			return
		}
		claimed = true
		rival := &models.Tenant{Name: "Rival", Slug: "acme", Template: models.TemplateCustom}
		if err := tx.Session(&gorm.Session{NewDB: true}).Create(rival).Error; err != nil {
			tx.AddError(err)
		}
	}))
	defer f.db.Callback().Create().Remove("test:claim_slug")

	_, err := f.orch.Provision(ctx, token, SetupData{CompanyName: "Acme", Slug: "acme"})
	require.Error(t, err)
	require.True(t, claimed)
	assert.True(t, pkgerrors.IsConflict(err), "got %v", err)

	assert.Zero(t, f.countTenants(t))
	for _, model := range []interface{}{&models.User{}, &models.UserProfile{}, &models.Domain{}, &models.Section{}} {
		var n int64
		require.NoError(t, f.db.Model(model).Count(&n).Error)
		assert.Zero(t, n, "%T left behind", model)
	}

	stored, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, stored.Status)
}

func TestProvision_RollsBackOnFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order, token := f.paidOrder(t, "essential", "ana@acme.cl")

	// Another tenant already owns the hostname the new slug would get.
	other, err := f.registry.Create(ctx, registry.CreateInput{Name: "Other"})
	require.NoError(t, err)
	_, err = f.registry.AddDomain(ctx, other.ID, "acme.sitios.local")
	require.NoError(t, err)

	_, err = f.orch.Provision(ctx, token, SetupData{CompanyName: "Acme", Slug: "acme"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))

	assert.Equal(t, int64(1), f.countTenants(t))
	var users, sections int64
	require.NoError(t, f.db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, f.db.Model(&models.Section{}).Count(&sections).Error)
	assert.Zero(t, users)
	assert.Zero(t, sections)

	reloaded, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, reloaded.Status)
	assert.Nil(t, reloaded.TenantID)

	// The same token works once the input is fixed.
	result, err := f.orch.Provision(ctx, token, SetupData{CompanyName: "Acme", Slug: "acme-spa"})
	require.NoError(t, err)
	assert.Equal(t, "acme-spa.sitios.local", result.Domain.Hostname)
}

func TestProvision_ExpiredToken(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order, token := f.paidOrder(t, "essential", "ana@acme.cl")

	f.now = f.now.Add(f.orders.TokenTTL())

	_, err := f.orch.Provision(ctx, token, SetupData{CompanyName: "Acme"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ReasonExpired, reasonOf(t, err))
	assert.Zero(t, f.countTenants(t))

	reloaded, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderExpired, reloaded.Status)
}

func TestProvision_UnknownToken(t *testing.T) {
	f := setup(t)

	_, err := f.orch.Provision(context.Background(), "not-a-token", SetupData{CompanyName: "Acme"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestProvision_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, essential := f.paidOrder(t, "essential", "ana@acme.cl")

	tests := []struct {
		name  string
		data  SetupData
		field string
	}{
		{"missing company", SetupData{CompanyName: "  "}, "company_name"},
		{"reserved slug", SetupData{CompanyName: "Acme", Slug: "admin"}, "slug"},
		{"short slug", SetupData{CompanyName: "Acme", Slug: "ab"}, "slug"},
		{"theme outside plan", SetupData{CompanyName: "Acme", Theme: "electricidad"}, "theme"},
		{"bad color", SetupData{CompanyName: "Acme", PrimaryColor: "red"}, "primary_color"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.Provision(ctx, essential, tt.data)
			require.Error(t, err)
			appErr, ok := pkgerrors.As(err)
			require.True(t, ok)
			assert.Equal(t, pkgerrors.CodeValidation, appErr.Code)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
	assert.Zero(t, f.countTenants(t))
}

func TestProvision_PlanTheme(t *testing.T) {
	f := setup(t)
	_, token := f.paidOrder(t, "pro", "ana@acme.cl")

	result, err := f.orch.Provision(context.Background(), token, SetupData{CompanyName: "Chispa", Theme: "electricidad"})
	require.NoError(t, err)
	assert.Equal(t, models.TemplateElectricidad, result.Tenant.Template)
	assert.Equal(t, 10, result.Tenant.MaxPages)
}

func TestProvision_UsernameSuffix(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, first := f.paidOrder(t, "essential", "ana@acme.cl")
	_, second := f.paidOrder(t, "essential", "ana@otra.cl")

	a, err := f.orch.Provision(ctx, first, SetupData{CompanyName: "Acme"})
	require.NoError(t, err)
	b, err := f.orch.Provision(ctx, second, SetupData{CompanyName: "Otra"})
	require.NoError(t, err)

	assert.Equal(t, "ana", a.Owner.Username)
	assert.Equal(t, "ana1", b.Owner.Username)
}

func TestUsernameBase(t *testing.T) {
	assert.Equal(t, "ana.perez", UsernameBase(" Ana.Perez@Example.com"))
	assert.Equal(t, "jos", UsernameBase("josé@example.com"))
	assert.Equal(t, "user", UsernameBase("@example.com"))
}

func TestDarken(t *testing.T) {
	assert.Equal(t, "#b26e07", Darken("#ff9e0b"))
	assert.Equal(t, models.DefaultSecondaryColor, Darken("nope"))
}

func TestCreateTenant(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	result, err := f.orch.CreateTenant(ctx, TenantRequest{
		Name:         "Chispa Eléctrica",
		Domain:       "www.chispa.cl",
		ExtraDomains: []string{"chispa.cl"},
		Template:     models.TemplateElectricidad,
		Email:        "contacto@chispa.cl",
		Password:     "s3cret-pass",
	})
	require.NoError(t, err)

	assert.Equal(t, "chispa-electrica", result.Tenant.Slug)
	require.Len(t, result.Domains, 3)
	assert.Equal(t, "www.chispa.cl", result.Domains[0].Hostname)
	assert.True(t, result.Domains[0].IsPrimary)
	assert.Equal(t, "chispa-electrica.sitios.local", result.Domains[2].Hostname)
	for _, d := range result.Domains {
		assert.True(t, d.IsVerified, d.Hostname)
	}

	assert.Equal(t, "admin_chispa-electrica", result.Owner.Username)
	assert.True(t, utils.ComparePassword(result.Owner.Password, "s3cret-pass"))
	assert.Empty(t, result.InvitationToken)

	assert.Equal(t, "#f59e0b", result.Tenant.Settings.PrimaryColor)
	assert.Equal(t, 3, result.Sections)
	assert.Equal(t, 4, result.Services)

	resolved, err := f.resolver.Resolve(ctx, "chispa.cl")
	require.NoError(t, err)
	assert.Equal(t, result.Tenant.ID, resolved.ID)
}

func TestCreateTenant_InvitationWithoutPassword(t *testing.T) {
	f := setup(t)

	result, err := f.orch.CreateTenant(context.Background(), TenantRequest{
		Name:         "Acme",
		PrimaryColor: "#ff9e0b",
		NoContent:    true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.InvitationToken)
	assert.False(t, utils.IsUsablePassword(result.Owner.Password))
	assert.Equal(t, "#b26e07", result.Tenant.Settings.SecondaryColor)
	assert.Zero(t, result.Sections)
}

func TestCreateTenant_RejectsBeforeWriting(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.orch.CreateTenant(ctx, TenantRequest{Name: "Acme", Slug: "acme", Domain: "acme.cl"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		req   TenantRequest
		field string
	}{
		{"explicit slug taken", TenantRequest{Name: "Acme", Slug: "acme"}, "slug"},
		{"domain taken", TenantRequest{Name: "Beta", Domain: "ACME.cl"}, "domain"},
		{"username taken", TenantRequest{Name: "Beta", Username: "admin_acme"}, "username"},
		{"invalid domain", TenantRequest{Name: "Beta", Domain: "not a host"}, "domain"},
		{"unknown template", TenantRequest{Name: "Beta", Template: "retro"}, "template"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.CreateTenant(ctx, tt.req)
			require.Error(t, err)
			appErr, ok := pkgerrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
	assert.Equal(t, int64(1), f.countTenants(t))
}

func TestCreateTenant_DerivedSlugIsSuffixed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.orch.CreateTenant(ctx, TenantRequest{Name: "Acme", NoOwner: true})
	require.NoError(t, err)
	second, err := f.orch.CreateTenant(ctx, TenantRequest{Name: "Acme", NoOwner: true})
	require.NoError(t, err)

	assert.Equal(t, "acme", first.Tenant.Slug)
	assert.Equal(t, "acme-1", second.Tenant.Slug)
	assert.Nil(t, second.Owner)
}
