package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pandeptwidyaop/multisite/internal/db"
	"github.com/pandeptwidyaop/multisite/internal/db/models"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.Connect(db.Config{Driver: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(database))
	return database
}

type recordingEvictor struct {
	mu    sync.Mutex
	hosts []string
}

func (e *recordingEvictor) Evict(_ context.Context, hosts ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hosts = append(e.hosts, hosts...)
}

func (e *recordingEvictor) evicted() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.hosts...)
}

func TestCreate_DerivesSlugWithSuffix(t *testing.T) {
	database := setupTestDB(t)
	reg := New(database, "sitios.local")
	ctx := context.Background()

	first, err := reg.Create(ctx, CreateInput{Name: "Constructora del Sur SpA"})
	require.NoError(t, err)
	assert.Equal(t, "constructora-del-sur-spa", first.Slug)

	second, err := reg.Create(ctx, CreateInput{Name: "Constructora del Sur SpA"})
	require.NoError(t, err)
	assert.Equal(t, "constructora-del-sur-spa-1", second.Slug)

	third, err := reg.Create(ctx, CreateInput{Name: "Constructora del Sur SpA"})
	require.NoError(t, err)
	assert.Equal(t, "constructora-del-sur-spa-2", third.Slug)
}

func TestCreate_Defaults(t *testing.T) {
	database := setupTestDB(t)
	reg := New(database, "sitios.local")

	tenant, err := reg.Create(context.Background(), CreateInput{Name: "Acme"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, tenant.ID)
	assert.True(t, tenant.IsActive)
	assert.Equal(t, models.TemplateCustom, tenant.Template)
	assert.Equal(t, models.DefaultMaxPages, tenant.MaxPages)
	assert.Equal(t, models.DefaultMaxStorageMB, tenant.MaxStorageMB)
	require.NotNil(t, tenant.Settings)
	assert.Equal(t, models.DefaultPrimaryColor, tenant.Settings.PrimaryColor)
}

func TestCreate_CreatesExactlyOneSettingsRow(t *testing.T) {
	database := setupTestDB(t)
	reg := New(database, "sitios.local")
	ctx := context.Background()

	tenant, err := reg.Create(ctx, CreateInput{Name: "Settings Co"})
	require.NoError(t, err)

	// Repeated ensure never duplicates
	for i := 0; i < 3; i++ {
		settings, err := reg.EnsureSettings(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, tenant.Settings.ID, settings.ID)
	}

	var count int64
	database.Model(&models.TenantSettings{}).Where("tenant_id = ?", tenant.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCreate_ExplicitSlug(t *testing.T) {
	database := setupTestDB(t)
	reg := New(database, "sitios.local")
	ctx := context.Background()

	tenant, err := reg.Create(ctx, CreateInput{Name: "Acme", Slug: " ACME "})
	require.NoError(t, err)
	assert.Equal(t, "acme", tenant.Slug)

	_, err = reg.Create(ctx, CreateInput{Name: "Other", Slug: "acme"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))
	assert.ErrorIs(t, err, pkgerrors.ErrSlugConflict)

	appErr, ok := pkgerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "slug", appErr.Field)
}

func TestCreate_Validation(t *testing.T) {
	database := setupTestDB(t)
	reg := New(database, "sitios.local")

	tests := []struct {
		name  string
		input CreateInput
		field string
	}{
		{"empty name", CreateInput{Name: "  "}, "name"},
		{"reserved slug", CreateInput{Name: "Admin", Slug: "admin"}, "slug"},
		{"malformed slug", CreateInput{Name: "Bad", Slug: "bad_slug!"}, "slug"},
		{"unknown template", CreateInput{Name: "Tpl", Template: "space"}, "template"},
		{"name without letters", CreateInput{Name: "!!!"}, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Create(context.Background(), tt.input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err))
			appErr, _ := pkgerrors.As(err)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}

	var count int64
	database.Model(&models.Tenant{}).Count(&count)
	assert.Zero(t, count)
}

func TestCreate_ShortNameGetsSuffix(t *testing.T) {
	database := setupTestDB(t)
	reg := New(database, "sitios.local")

	// "ab" is below the minimum length, so the first valid candidate is ab-1
	tenant, err := reg.Create(context.Background(), CreateInput{Name: "AB"})
	require.NoError(t, err)
	assert.Equal(t, "ab-1", tenant.Slug)
}

func TestCreate_SlugExhausted(t *testing.T) {
	database := setupTestDB(t)
	reg := New(database, "sitios.local")

	for i := 0; i <= MaxSlugAttempts; i++ {
		require.NoError(t, database.Create(&models.Tenant{
			Name: "Busy", Slug: slugCandidate("busy-name", i), Template: models.TemplateCustom,
		}).Error)
	}

	_, err := reg.Create(context.Background(), CreateInput{Name: "Busy Name"})
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrSlugExhausted)
}

// claimSlugBeforeInsert makes the next insert of a tenant with slug lose
// to a rival row written on the same connection, after the slug check has
// already passed.
func claimSlugBeforeInsert(t *testing.T, database *gorm.DB, slug string) *int {
	t.Helper()
	claimed := 0
	require.NoError(t, database.Callback().Create().Before("gorm:create").Register("test:claim_slug", func(tx *gorm.DB) {
		tenant, ok := tx.Statement.Dest.(*models.Tenant)
		if !ok || tenant.Slug != slug || claimed > 0 {
			return
		}
		claimed++
		rival := &models.Tenant{Name: "Rival", Slug: slug, Template: models.TemplateCustom}
		if err := tx.Session(&gorm.Session{NewDB: true}).Create(rival).Error; err != nil {
			tx.AddError(err)
		}
	}))
	t.Cleanup(func() { _ = database.Callback().Create().Remove("test:claim_slug") })
	return &claimed
}

func TestCreate_ExplicitSlugLostOnInsert(t *testing.T) {
	database := setupTestDB(t)
	reg := New(database, "sitios.local")
	claimed := claimSlugBeforeInsert(t, database, "acme")

	_, err := reg.Create(context.Background(), CreateInput{Name: "Acme", Slug: "acme"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err), "got %v", err)
	assert.Equal(t, 1, *claimed)

	var settings int64
	require.NoError(t, database.Model(&models.TenantSettings{}).Count(&settings).Error)
	assert.Zero(t, settings)
}

func TestCreate_DerivedSlugRetriesAfterLostInsert(t *testing.T) {
	database := setupTestDB(t)
	reg := New(database, "sitios.local")
	claimed := claimSlugBeforeInsert(t, database, "acme")

	tenant, err := reg.Create(context.Background(), CreateInput{Name: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, *claimed)
	assert.Equal(t, "acme", tenant.Slug)
	require.NotNil(t, tenant.Settings)
}

func TestSlugCandidate(t *testing.T) {
	assert.Equal(t, "acme", slugCandidate("acme", 0))
	assert.Equal(t, "acme-7", slugCandidate("acme", 7))

	long := "a123456789b123456789c123456789d123456789e12345678-"
	got := slugCandidate(long[:50], 12)
	assert.LessOrEqual(t, len(got), 50)
	assert.Equal(t, "-12", got[len(got)-3:])
}

func TestFindBySlugAndDomain(t *testing.T) {
	database := setupTestDB(t)
	reg := New(database, "sitios.local")
	ctx := context.Background()

	tenant, err := reg.Create(ctx, CreateInput{Name: "Finder"})
	require.NoError(t, err)
	_, err = reg.AddDomain(ctx, tenant.ID, "finder.sitios.local")
	require.NoError(t, err)

	bySlug, err := reg.FindBySlug(ctx, "FINDER")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, bySlug.ID)
	require.Len(t, bySlug.Domains, 1)
	assert.NotNil(t, bySlug.Settings)

	byDomain, err := reg.FindByDomain(ctx, "Finder.Sitios.Local:8080")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, byDomain.ID)

	_, err = reg.FindBySlug(ctx, "missing")
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.ErrorIs(t, err, pkgerrors.ErrTenantNotFound)

	_, err = reg.FindByDomain(ctx, "missing.sitios.local")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestList(t *testing.T) {
	database := setupTestDB(t)
	reg := New(database, "sitios.local")
	ctx := context.Background()

	for _, name := range []string{"Alpha Works", "Beta Works", "Gamma Tools"} {
		_, err := reg.Create(ctx, CreateInput{Name: name})
		require.NoError(t, err)
	}
	_, err := reg.Create(ctx, CreateInput{Name: "Dormant", Inactive: true})
	require.NoError(t, err)

	all, err := reg.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "alpha-works", all[0].Slug)

	active, err := reg.List(ctx, ListFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 3)

	works, err := reg.List(ctx, ListFilter{Search: "works"})
	require.NoError(t, err)
	assert.Len(t, works, 2)

	none, err := reg.List(ctx, ListFilter{Search: "%"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAddDomain(t *testing.T) {
	database := setupTestDB(t)
	reg := New(database, "sitios.local")
	evictor := &recordingEvictor{}
	reg.SetEvictor(evictor)
	ctx := context.Background()

	tenant, err := reg.Create(ctx, CreateInput{Name: "Domains"})
	require.NoError(t, err)

	sub, err := reg.AddDomain(ctx, tenant.ID, "Domains.Sitios.Local")
	require.NoError(t, err)
	assert.Equal(t, "domains.sitios.local", sub.Hostname)
	assert.Equal(t, models.DomainTypeSubdomain, sub.Type)
	assert.True(t, sub.IsVerified)
	assert.True(t, sub.IsPrimary)

	custom, err := reg.AddDomain(ctx, tenant.ID, "www.domains.cl")
	require.NoError(t, err)
	assert.Equal(t, models.DomainTypeCustom, custom.Type)
	assert.False(t, custom.IsVerified)
	assert.False(t, custom.IsPrimary)
	assert.Len(t, custom.VerificationToken, 32)

	assert.Equal(t, []string{"domains.sitios.local", "www.domains.cl"}, evictor.evicted())

	_, err = reg.AddDomain(ctx, tenant.ID, "not a host")
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestAddDomain_GloballyUnique(t *testing.T) {
	database := setupTestDB(t)
	reg := New(database, "sitios.local")
	ctx := context.Background()

	a, err := reg.Create(ctx, CreateInput{Name: "Tenant A"})
	require.NoError(t, err)
	b, err := reg.Create(ctx, CreateInput{Name: "Tenant B"})
	require.NoError(t, err)

	_, err = reg.AddDomain(ctx, a.ID, "shared.example.com")
	require.NoError(t, err)

	_, err = reg.AddDomain(ctx, b.ID, "SHARED.example.com")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))
	assert.ErrorIs(t, err, pkgerrors.ErrDomainTaken)
}

func TestSetPrimary(t *testing.T) {
	database := setupTestDB(t)
	reg := New(database, "sitios.local")
	ctx := context.Background()

	tenant, err := reg.Create(ctx, CreateInput{Name: "Primary"})
	require.NoError(t, err)
	first, err := reg.AddDomain(ctx, tenant.ID, "primary.sitios.local")
	require.NoError(t, err)
	second, err := reg.AddDomain(ctx, tenant.ID, "primary.example.com")
	require.NoError(t, err)

	require.NoError(t, reg.SetPrimary(ctx, second.ID))

	loaded, err := reg.FindByID(ctx, tenant.ID)
	require.NoError(t, err)
	primaries := 0
	for _, d := range loaded.Domains {
		if d.IsPrimary {
			primaries++
			assert.Equal(t, second.ID, d.ID)
		}
	}
	assert.Equal(t, 1, primaries)
	assert.Equal(t, "primary.example.com", loaded.PrimaryDomain().Hostname)
	assert.NotEqual(t, first.ID, loaded.PrimaryDomain().ID)

	err = reg.SetPrimary(ctx, uuid.New())
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestVerifyDomain(t *testing.T) {
	database := setupTestDB(t)
	reg := New(database, "sitios.local")
	ctx := context.Background()

	tenant, err := reg.Create(ctx, CreateInput{Name: "Verify"})
	require.NoError(t, err)
	domain, err := reg.AddDomain(ctx, tenant.ID, "verify.example.com")
	require.NoError(t, err)

	_, err = reg.VerifyDomain(ctx, domain.ID, "wrong")
	assert.True(t, pkgerrors.IsValidation(err))

	verified, err := reg.VerifyDomain(ctx, domain.ID, domain.VerificationToken)
	require.NoError(t, err)
	assert.True(t, verified.IsVerified)
	assert.NotNil(t, verified.VerifiedAt)
}

func TestSetActive_EvictsDomains(t *testing.T) {
	database := setupTestDB(t)
	reg := New(database, "sitios.local")
	ctx := context.Background()

	tenant, err := reg.Create(ctx, CreateInput{Name: "Switch"})
	require.NoError(t, err)
	_, err = reg.AddDomain(ctx, tenant.ID, "switch.sitios.local")
	require.NoError(t, err)

	evictor := &recordingEvictor{}
	reg.SetEvictor(evictor)

	require.NoError(t, reg.SetActive(ctx, tenant.ID, false))
	assert.Equal(t, []string{"switch.sitios.local"}, evictor.evicted())

	loaded, err := reg.FindByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.False(t, loaded.IsActive)

	err = reg.SetActive(ctx, uuid.New(), true)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestUpdateSettings(t *testing.T) {
	database := setupTestDB(t)
	reg := New(database, "sitios.local")
	ctx := context.Background()

	tenant, err := reg.Create(ctx, CreateInput{Name: "Brand"})
	require.NoError(t, err)

	settings, err := reg.UpdateSettings(ctx, tenant.ID, SettingsUpdate{PrimaryColor: "#f59e0b", ContactEmail: "hola@brand.cl"})
	require.NoError(t, err)
	assert.Equal(t, "#f59e0b", settings.PrimaryColor)
	assert.Equal(t, models.DefaultSecondaryColor, settings.SecondaryColor)
	assert.Equal(t, "hola@brand.cl", settings.ContactEmail)
}

func TestSubdomainFor(t *testing.T) {
	reg := New(nil, "Sitios.Local")
	assert.Equal(t, "acme.sitios.local", reg.SubdomainFor("acme"))
	assert.Equal(t, "sitios.local", reg.BaseDomain())
}

func BenchmarkSlugCandidate(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = slugCandidate(fmt.Sprintf("tenant-%d", i%10), i%MaxSlugAttempts)
	}
}
