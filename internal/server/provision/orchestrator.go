package provision

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	"github.com/pandeptwidyaop/multisite/internal/server/auth"
	"github.com/pandeptwidyaop/multisite/internal/server/metrics"
	"github.com/pandeptwidyaop/multisite/internal/server/orders"
	"github.com/pandeptwidyaop/multisite/internal/server/registry"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
	"github.com/pandeptwidyaop/multisite/pkg/utils"
)

// Provisioning outcomes recorded in metrics.
const (
	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// SetupData is the onboarding form a buyer submits after paying.
type SetupData struct {
	CompanyName    string
	Slug           string
	Theme          string
	Tagline        string
	AboutText      string
	PrimaryColor   string
	SecondaryColor string
	LogoURL        string
	ContactPhone   string
	WhatsappNumber string
}

// Result is everything a successful provisioning created.
type Result struct {
	Tenant  *models.Tenant
	Domain  *models.Domain
	Owner   *models.User
	Profile *models.UserProfile
	Order   *models.Order
	// InvitationToken lets the owner set a password. It is only available
	// here; the database keeps its hash.
	InvitationToken string
}

// Orchestrator turns paid orders into tenants.
type Orchestrator struct {
	db          *gorm.DB
	registry    *registry.Registry
	orders      *orders.Service
	invitations *auth.InvitationService
	metrics     *metrics.Metrics
}

// New creates an orchestrator. Every collaborator is rebound to the
// provisioning transaction, so they must share db.
func New(db *gorm.DB, reg *registry.Registry, ord *orders.Service, inv *auth.InvitationService, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{db: db, registry: reg, orders: ord, invitations: inv, metrics: m}
}

// Provision creates the tenant for the order behind token. All writes
// happen in one transaction: on any error nothing is left behind and the
// same token can be submitted again.
func (o *Orchestrator) Provision(ctx context.Context, token string, data SetupData) (*Result, error) {
	start := time.Now()

	result, err := o.provision(ctx, token, data)
	took := time.Since(start)
	if err != nil {
		status := StatusFailed
		if pkgerrors.IsPrecondition(err) || pkgerrors.IsConflict(err) || pkgerrors.IsValidation(err) || pkgerrors.IsNotFound(err) {
			status = StatusRejected
		}
		o.metrics.ObserveProvisioning(status, took)

		if appErr, ok := pkgerrors.As(err); ok && appErr.Reason == pkgerrors.ReasonExpired {
			o.orders.ExpireIfDue(ctx, token)
		}

		event := logger.WarnEvent()
		if status == StatusFailed {
			event = logger.ErrorEvent()
		}
		event.Err(err).
			Str("slug", data.Slug).
			Str("status", status).
			Dur("duration", took).
			Msg("Provisioning failed")
		return nil, err
	}

	o.metrics.ObserveProvisioning(StatusSuccess, took)
	o.registry.Evict(ctx, result.Domain.Hostname)

	logger.InfoEvent().
		Str("order_number", result.Order.OrderNumber).
		Str("slug", result.Tenant.Slug).
		Str("domain", result.Domain.Hostname).
		Str("owner", result.Owner.Username).
		Dur("duration", took).
		Msg("Tenant provisioned")
	return result, nil
}

func (o *Orchestrator) provision(ctx context.Context, token string, data SetupData) (*Result, error) {
	order, err := o.orders.CheckProvisionable(ctx, token)
	if err != nil {
		return nil, err
	}
	if order.Plan == nil {
		return nil, pkgerrors.NotFound("plan not found", pkgerrors.ErrPlanNotFound)
	}

	in, err := normalizeSetup(data, order)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reg := o.registry.WithTx(tx)
		ords := o.orders.WithTx(tx)
		inv := o.invitations.WithTx(tx)

		// Recheck inside the transaction; a concurrent submission may have
		// completed the order since the first check.
		if _, err := ords.CheckProvisionable(ctx, token); err != nil {
			return err
		}

		// 1. Slug: a taken slug is reported, never renamed.
		available, err := reg.SlugAvailable(ctx, in.slug)
		if err != nil {
			return err
		}
		if !available {
			return pkgerrors.Conflict("slug", "slug already taken", pkgerrors.ErrSlugConflict)
		}

		// 2. Tenant with plan quotas.
		plan := order.Plan
		tenant, err := reg.Create(ctx, registry.CreateInput{
			Name:         in.companyName,
			Slug:         in.slug,
			CompanyName:  in.companyName,
			ContactEmail: order.Email,
			ContactPhone: data.ContactPhone,
			Template:     in.template,
			Quotas: registry.Quotas{
				MaxPages:     plan.MaxPages,
				MaxServices:  plan.MaxServices,
				MaxImages:    plan.MaxImages,
				MaxStorageMB: plan.MaxStorageMB,
			},
			MonthlyFee:     plan.RenewalPrice,
			SetupFeePaid:   true,
			SetupCompleted: true,
			Notes:          "plan:" + plan.Slug,
		})
		if err != nil {
			return err
		}

		// 3. Self-issued primary subdomain, verified on creation.
		domain, err := reg.AddDomain(ctx, tenant.ID, reg.SubdomainFor(tenant.Slug))
		if err != nil {
			return err
		}

		// 4. Branding.
		settings, err := reg.UpdateSettings(ctx, tenant.ID, registry.SettingsUpdate{
			PrimaryColor:   in.primaryColor,
			SecondaryColor: in.secondaryColor,
			LogoURL:        data.LogoURL,
			ContactEmail:   order.Email,
			ContactPhone:   data.ContactPhone,
			WhatsappNumber: data.WhatsappNumber,
		})
		if err != nil {
			return err
		}
		tenant.Settings = settings
		tenant.Domains = []models.Domain{*domain}

		// 5. Owner account without a usable password.
		username, err := pickUsername(tx, UsernameBase(order.Email))
		if err != nil {
			return err
		}
		owner, profile, err := createOwner(ctx, tx, tenant.ID, ownerInput{
			Username: username,
			Email:    order.Email,
			Name:     in.companyName,
			Phone:    data.ContactPhone,
		})
		if err != nil {
			return err
		}

		// 6. Invitation for the out-of-band password setup.
		invitation, err := inv.Issue(ctx, profile)
		if err != nil {
			return err
		}

		// 7. Placeholder content.
		sections := onboardingSections(in.companyName, strings.TrimSpace(data.Tagline), strings.TrimSpace(data.AboutText))
		if err := seedContent(ctx, tx, tenant.ID, sections, nil); err != nil {
			return err
		}

		// 8. Spend the order.
		completed, err := ords.Complete(ctx, order.ID, tenant.ID)
		if err != nil {
			return err
		}

		*result = Result{
			Tenant:          tenant,
			Domain:          domain,
			Owner:           owner,
			Profile:         profile,
			Order:           completed,
			InvitationToken: invitation,
		}
		return nil
	})
	if err != nil {
		if pkgerrors.IsUniqueViolation(err) {
			return nil, pkgerrors.Conflict("slug", "slug already taken", err)
		}
		return nil, err
	}
	return result, nil
}

type normalizedSetup struct {
	companyName    string
	slug           string
	template       models.Template
	primaryColor   string
	secondaryColor string
}

// normalizeSetup validates untrusted form input against the order's plan.
func normalizeSetup(data SetupData, order *models.Order) (*normalizedSetup, error) {
	out := &normalizedSetup{companyName: strings.TrimSpace(data.CompanyName)}
	if out.companyName == "" {
		return nil, pkgerrors.Validation("company_name", "company name is required", nil)
	}
	if len([]rune(out.companyName)) > 100 {
		return nil, pkgerrors.Validation("company_name", "company name is too long", nil)
	}

	out.slug = utils.NormalizeSlug(data.Slug)
	if out.slug == "" {
		out.slug = utils.Slugify(out.companyName)
	}
	if utils.IsReservedSlug(out.slug) {
		return nil, pkgerrors.Validation("slug", "slug is reserved", pkgerrors.ErrInvalidSlug)
	}
	if !utils.IsValidSlug(out.slug) {
		return nil, pkgerrors.Validation("slug", "slug must be 3-50 lowercase letters, digits or hyphens", pkgerrors.ErrInvalidSlug)
	}

	theme := strings.TrimSpace(data.Theme)
	if theme == "" {
		theme = "default"
	}
	if order.Plan != nil && len(order.Plan.Themes()) > 0 && !order.Plan.AllowsTheme(theme) {
		return nil, pkgerrors.Validation("theme", "theme not available in this plan", nil)
	}
	out.template = models.Template(theme)
	if !out.template.IsValid() {
		out.template = models.TemplateCustom
	}

	out.primaryColor = strings.TrimSpace(data.PrimaryColor)
	out.secondaryColor = strings.TrimSpace(data.SecondaryColor)
	if out.primaryColor != "" && !IsHexColor(out.primaryColor) {
		return nil, pkgerrors.Validation("primary_color", "color must look like #rrggbb", nil)
	}
	if out.secondaryColor != "" && !IsHexColor(out.secondaryColor) {
		return nil, pkgerrors.Validation("secondary_color", "color must look like #rrggbb", nil)
	}
	return out, nil
}
