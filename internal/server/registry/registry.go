package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
	"github.com/pandeptwidyaop/multisite/pkg/utils"
)

// MaxSlugAttempts bounds the numeric suffixes tried for a derived slug.
const MaxSlugAttempts = 100

// errSlugRace marks a tenant insert that lost the slug to a concurrent one.
var errSlugRace = pkgerrors.New("slug taken during insert")

// Evictor drops cached host resolutions. The domain resolver implements it.
type Evictor interface {
	Evict(ctx context.Context, hosts ...string)
}

// Quotas are the per-resource limits stored on a tenant.
type Quotas struct {
	MaxPages     int
	MaxServices  int
	MaxImages    int
	MaxStorageMB int
}

// DefaultQuotas returns the limits used when no plan applies.
func DefaultQuotas() Quotas {
	return Quotas{
		MaxPages:     models.DefaultMaxPages,
		MaxServices:  models.DefaultMaxServices,
		MaxImages:    models.DefaultMaxImages,
		MaxStorageMB: models.DefaultMaxStorageMB,
	}
}

// CreateInput describes a new tenant. When Slug is empty it is derived from
// Name and collisions get a numeric suffix; an explicit Slug that is taken
// is a conflict.
type CreateInput struct {
	Name         string
	Slug         string
	CompanyName  string
	ContactEmail string
	ContactPhone string
	Template     models.Template
	Quotas       Quotas
	MonthlyFee   int64
	SetupFeePaid bool
	Inactive     bool
	Notes        string

	// SetupCompleted marks tenants whose onboarding form was filled in.
	SetupCompleted bool
}

// ListFilter narrows List.
type ListFilter struct {
	ActiveOnly bool
	Search     string
}

// Registry is the durable store of tenants, their domains and settings.
type Registry struct {
	db         *gorm.DB
	baseDomain string
	evictor    Evictor
}

// New creates a registry. baseDomain is the platform domain under which
// tenant subdomains are issued.
func New(db *gorm.DB, baseDomain string) *Registry {
	return &Registry{
		db:         db,
		baseDomain: strings.ToLower(baseDomain),
	}
}

// SetEvictor wires the resolver cache so domain and tenant changes take
// effect immediately.
func (r *Registry) SetEvictor(e Evictor) {
	r.evictor = e
}

// WithTx returns a registry whose operations run on tx.
func (r *Registry) WithTx(tx *gorm.DB) *Registry {
	return &Registry{db: tx, baseDomain: r.baseDomain, evictor: r.evictor}
}

// BaseDomain returns the platform domain.
func (r *Registry) BaseDomain() string {
	return r.baseDomain
}

// SubdomainFor returns the self-issued hostname for slug.
func (r *Registry) SubdomainFor(slug string) string {
	return slug + "." + r.baseDomain
}

// Create inserts a tenant and its settings row in one transaction.
func (r *Registry) Create(ctx context.Context, in CreateInput) (*models.Tenant, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, pkgerrors.Validation("name", "name is required", nil)
	}

	template := in.Template
	if template == "" {
		template = models.TemplateCustom
	}
	if !template.IsValid() {
		return nil, pkgerrors.Validation("template", fmt.Sprintf("unknown template %q", template), nil)
	}

	quotas := in.Quotas
	if quotas == (Quotas{}) {
		quotas = DefaultQuotas()
	}

	var tenant *models.Tenant
	insert := func(tx *gorm.DB) error {
		slug, err := r.pickSlug(tx, in.Slug, name)
		if err != nil {
			return err
		}

		tenant = &models.Tenant{
			Name:           name,
			Slug:           slug,
			CompanyName:    in.CompanyName,
			ContactEmail:   in.ContactEmail,
			ContactPhone:   in.ContactPhone,
			Template:       template,
			IsActive:       !in.Inactive,
			SetupCompleted: in.SetupCompleted,
			SetupFeePaid:   in.SetupFeePaid,
			MonthlyFee:     in.MonthlyFee,
			MaxPages:       quotas.MaxPages,
			MaxServices:    quotas.MaxServices,
			MaxImages:      quotas.MaxImages,
			MaxStorageMB:   quotas.MaxStorageMB,
			Notes:          in.Notes,
		}
		if err := tx.Create(tenant).Error; err != nil {
			if pkgerrors.IsUniqueViolation(err) {
				return errSlugRace
			}
			return pkgerrors.Wrap(err, "failed to create tenant")
		}

		settings, err := ensureSettings(tx, tenant.ID)
		if err != nil {
			return err
		}
		tenant.Settings = settings
		return nil
	}

	err := r.db.WithContext(ctx).Transaction(insert)
	if pkgerrors.Is(err, errSlugRace) && in.Slug == "" {
		// A concurrent create took the derived slug after it was picked.
		err = r.db.WithContext(ctx).Transaction(insert)
	}
	if pkgerrors.Is(err, errSlugRace) {
		return nil, pkgerrors.Conflict("slug", "slug already taken", pkgerrors.ErrSlugConflict)
	}
	if err != nil {
		return nil, err
	}

	logger.InfoEvent().
		Str("tenant_id", tenant.ID.String()).
		Str("slug", tenant.Slug).
		Msg("Tenant created")

	return tenant, nil
}

// pickSlug validates an explicit slug or derives a free one from name.
func (r *Registry) pickSlug(tx *gorm.DB, explicit, name string) (string, error) {
	if explicit != "" {
		slug := utils.NormalizeSlug(explicit)
		if !utils.IsValidSlug(slug) {
			return "", pkgerrors.Validation("slug", "invalid slug", pkgerrors.ErrInvalidSlug)
		}
		taken, err := slugTaken(tx, slug)
		if err != nil {
			return "", err
		}
		if taken {
			return "", pkgerrors.Conflict("slug", "slug already taken", pkgerrors.ErrSlugConflict)
		}
		return slug, nil
	}

	base := utils.Slugify(name)
	if base == "" {
		return "", pkgerrors.Validation("name", "name has no usable characters for a slug", pkgerrors.ErrInvalidSlug)
	}

	for i := 0; i <= MaxSlugAttempts; i++ {
		candidate := slugCandidate(base, i)
		if !utils.IsValidSlug(candidate) {
			continue
		}
		taken, err := slugTaken(tx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}

	return "", pkgerrors.Conflict("slug", "no free slug for this name", pkgerrors.ErrSlugExhausted)
}

// slugCandidate returns base for n == 0, otherwise base-n truncated so the
// result fits the slug length limit.
func slugCandidate(base string, n int) string {
	if n == 0 {
		return base
	}
	suffix := fmt.Sprintf("-%d", n)
	if len(base)+len(suffix) > utils.MaxSlugLength {
		base = strings.TrimRight(base[:utils.MaxSlugLength-len(suffix)], "-")
	}
	return base + suffix
}

func slugTaken(tx *gorm.DB, slug string) (bool, error) {
	var count int64
	if err := tx.Model(&models.Tenant{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, pkgerrors.Wrap(err, "failed to check slug")
	}
	return count > 0, nil
}

// SlugAvailable reports whether slug is well formed and unused.
func (r *Registry) SlugAvailable(ctx context.Context, slug string) (bool, error) {
	slug = utils.NormalizeSlug(slug)
	if !utils.IsValidSlug(slug) {
		return false, nil
	}
	taken, err := slugTaken(r.db.WithContext(ctx), slug)
	return !taken, err
}

// EnsureSettings creates the tenant's settings row with defaults if it does
// not exist yet, and returns the stored row.
func (r *Registry) EnsureSettings(ctx context.Context, tenantID uuid.UUID) (*models.TenantSettings, error) {
	return ensureSettings(r.db.WithContext(ctx), tenantID)
}

func ensureSettings(tx *gorm.DB, tenantID uuid.UUID) (*models.TenantSettings, error) {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		DoNothing: true,
	}).Create(models.DefaultSettings(tenantID)).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create tenant settings")
	}

	var settings models.TenantSettings
	if err := tx.Where("tenant_id = ?", tenantID).First(&settings).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "failed to load tenant settings")
	}
	return &settings, nil
}

// FindByID loads a tenant with its domains and settings.
func (r *Registry) FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindBySlug loads a tenant with its domains and settings.
func (r *Registry) FindBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	return r.findOne(ctx, "slug = ?", utils.NormalizeSlug(slug))
}

func (r *Registry) findOne(ctx context.Context, query string, arg interface{}) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).
		Preload("Domains", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Settings").
		Where(query, arg).
		First(&tenant).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound("tenant not found", pkgerrors.ErrTenantNotFound)
		}
		return nil, pkgerrors.Wrap(err, "failed to get tenant")
	}
	return &tenant, nil
}

// FindByDomain returns the tenant bound to host, whatever the state of the
// domain or tenant. Serving decisions belong to the resolver.
func (r *Registry) FindByDomain(ctx context.Context, host string) (*models.Tenant, error) {
	var domain models.Domain
	err := r.db.WithContext(ctx).
		Where("hostname = ?", utils.NormalizeHost(host)).
		First(&domain).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound("tenant not found", pkgerrors.ErrTenantNotFound)
		}
		return nil, pkgerrors.Wrap(err, "failed to get domain")
	}
	return r.FindByID(ctx, domain.TenantID)
}

// List returns tenants in creation order.
func (r *Registry) List(ctx context.Context, filter ListFilter) ([]models.Tenant, error) {
	query := r.db.WithContext(ctx).
		Preload("Domains", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Order("created_at ASC")

	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + utils.SanitizeLikePattern(strings.ToLower(s)) + "%"
		query = query.Where("(LOWER(name) LIKE ? ESCAPE '\\' OR slug LIKE ? ESCAPE '\\')", pattern, pattern)
	}

	var tenants []models.Tenant
	if err := query.Find(&tenants).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list tenants")
	}
	return tenants, nil
}

// SetActive activates or deactivates a tenant and drops its cached
// resolutions.
func (r *Registry) SetActive(ctx context.Context, tenantID uuid.UUID, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("id = ?", tenantID).
		Update("is_active", active)
	if result.Error != nil {
		return pkgerrors.Wrap(result.Error, "failed to update tenant")
	}
	if result.RowsAffected == 0 {
		return pkgerrors.NotFound("tenant not found", pkgerrors.ErrTenantNotFound)
	}

	r.evictTenant(ctx, tenantID)

	logger.InfoEvent().
		Str("tenant_id", tenantID.String()).
		Bool("active", active).
		Msg("Tenant activation changed")
	return nil
}

// MarkSetupFeePaid records that the tenant's setup fee has been settled.
func (r *Registry) MarkSetupFeePaid(ctx context.Context, tenantID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("id = ?", tenantID).
		Update("setup_fee_paid", true)
	if result.Error != nil {
		return pkgerrors.Wrap(result.Error, "failed to update tenant")
	}
	if result.RowsAffected == 0 {
		return pkgerrors.NotFound("tenant not found", pkgerrors.ErrTenantNotFound)
	}
	r.evictTenant(ctx, tenantID)
	return nil
}

func (r *Registry) evictTenant(ctx context.Context, tenantID uuid.UUID) {
	if r.evictor == nil {
		return
	}
	var hosts []string
	if err := r.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("tenant_id = ?", tenantID).
		Pluck("hostname", &hosts).Error; err != nil {
		logger.WarnEvent().Err(err).Str("tenant_id", tenantID.String()).Msg("Failed to list domains for cache eviction")
		return
	}
	r.evictor.Evict(ctx, hosts...)
}

// Evict drops cached resolutions for hosts. Callers that changed domains
// inside a transaction call it again after commit.
func (r *Registry) Evict(ctx context.Context, hosts ...string) {
	r.evict(ctx, hosts...)
}

func (r *Registry) evict(ctx context.Context, hosts ...string) {
	if r.evictor != nil {
		r.evictor.Evict(ctx, hosts...)
	}
}
