package provision

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	"github.com/pandeptwidyaop/multisite/internal/server/registry"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
	"github.com/pandeptwidyaop/multisite/pkg/utils"
)

// TenantRequest is an administrative tenant creation outside the paid-order
// flow.
type TenantRequest struct {
	Name string
	// Slug is optional; a derived slug gets a numeric suffix on collision.
	Slug string
	// Domain is the primary hostname. Empty makes the subdomain primary.
	Domain       string
	ExtraDomains []string
	Template     models.Template

	Email          string
	Phone          string
	Username       string
	Password       string
	PrimaryColor   string
	SecondaryColor string

	// SetupFeePaid records a fee settled outside checkout. Without it the
	// site answers with the payment-required page.
	SetupFeePaid bool

	NoContent bool
	NoOwner   bool
}

// TenantResult is what CreateTenant produced.
type TenantResult struct {
	Tenant          *models.Tenant
	Domains         []models.Domain
	Owner           *models.User
	InvitationToken string
	Sections        int
	Services        int
}

// CreateTenant validates the whole request before writing anything and then
// creates the tenant, its domains, owner and content in one transaction.
func (o *Orchestrator) CreateTenant(ctx context.Context, req TenantRequest) (*TenantResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, pkgerrors.Validation("name", "name is required", nil)
	}
	if req.Template == "" {
		req.Template = models.TemplateCustom
	}
	if !req.Template.IsValid() {
		return nil, pkgerrors.Validation("template", "unknown template "+string(req.Template), nil)
	}

	preset := PresetFor(req.Template)
	primary := firstNonEmpty(req.PrimaryColor, preset.PrimaryColor)
	secondary := req.SecondaryColor
	if secondary == "" {
		if req.PrimaryColor != "" {
			secondary = Darken(req.PrimaryColor)
		} else {
			secondary = preset.SecondaryColor
		}
	}
	for field, c := range map[string]string{"primary_color": primary, "secondary_color": secondary} {
		if !IsHexColor(c) {
			return nil, pkgerrors.Validation(field, "color must look like #rrggbb", nil)
		}
	}

	hosts, err := o.requestedHosts(req)
	if err != nil {
		return nil, err
	}

	if err := o.precheck(ctx, req, hosts); err != nil {
		return nil, err
	}

	result := &TenantResult{}
	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reg := o.registry.WithTx(tx)

		tenant, err := reg.Create(ctx, registry.CreateInput{
			Name:           req.Name,
			Slug:           req.Slug,
			CompanyName:    req.Name,
			ContactEmail:   req.Email,
			ContactPhone:   req.Phone,
			Template:       req.Template,
			SetupCompleted: true,
			SetupFeePaid:   req.SetupFeePaid,
		})
		if err != nil {
			return err
		}
		result.Tenant = tenant

		// Hosts named on the command line are asserted by the operator, so
		// custom ones are verified immediately.
		hosts = append(hosts, reg.SubdomainFor(tenant.Slug))
		seen := map[string]bool{}
		for _, host := range hosts {
			if seen[host] {
				continue
			}
			seen[host] = true
			domain, err := reg.AddDomain(ctx, tenant.ID, host)
			if err != nil {
				return err
			}
			if !domain.IsVerified {
				if domain, err = reg.VerifyDomain(ctx, domain.ID, domain.VerificationToken); err != nil {
					return err
				}
			}
			result.Domains = append(result.Domains, *domain)
		}

		settings, err := reg.UpdateSettings(ctx, tenant.ID, registry.SettingsUpdate{
			PrimaryColor:   primary,
			SecondaryColor: secondary,
			ContactEmail:   req.Email,
			ContactPhone:   req.Phone,
		})
		if err != nil {
			return err
		}
		tenant.Settings = settings
		tenant.Domains = result.Domains

		if !req.NoOwner {
			owner, profile, err := createOwner(ctx, tx, tenant.ID, ownerInput{
				Username: o.ownerUsername(req, tenant.Slug),
				Email:    req.Email,
				Name:     req.Name,
				Phone:    req.Phone,
				Password: req.Password,
			})
			if err != nil {
				return err
			}
			result.Owner = owner
			if req.Password == "" {
				token, err := o.invitations.WithTx(tx).Issue(ctx, profile)
				if err != nil {
					return err
				}
				result.InvitationToken = token
			}
		}

		if !req.NoContent {
			sections := adminSections(req.Name)
			services := seedServices(preset.Services)
			if err := seedContent(ctx, tx, tenant.ID, sections, services); err != nil {
				return err
			}
			result.Sections = len(sections)
			result.Services = len(services)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	hostnames := make([]string, len(result.Domains))
	for i, d := range result.Domains {
		hostnames[i] = d.Hostname
	}
	o.registry.Evict(ctx, hostnames...)

	logger.InfoEvent().
		Str("slug", result.Tenant.Slug).
		Strs("domains", hostnames).
		Bool("owner", result.Owner != nil).
		Int("sections", result.Sections).
		Int("services", result.Services).
		Msg("Tenant created by administrator")
	return result, nil
}

func (o *Orchestrator) requestedHosts(req TenantRequest) ([]string, error) {
	var hosts []string
	for _, raw := range append([]string{req.Domain}, req.ExtraDomains...) {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		host := utils.NormalizeHost(raw)
		if !utils.IsValidHostname(host) {
			return nil, pkgerrors.Validation("domain", "invalid domain "+raw, pkgerrors.ErrInvalidDomain)
		}
		hosts = append(hosts, host)
	}
	return hosts, nil
}

func (o *Orchestrator) ownerUsername(req TenantRequest, slug string) string {
	if u := strings.TrimSpace(req.Username); u != "" {
		return u
	}
	return "admin_" + slug
}

// precheck rejects duplicates before any write so a failing command leaves
// no state behind. The constrained inserts remain the final word.
func (o *Orchestrator) precheck(ctx context.Context, req TenantRequest, hosts []string) error {
	tx := o.db.WithContext(ctx)

	slug := utils.NormalizeSlug(req.Slug)
	if slug == "" {
		slug = utils.Slugify(req.Name)
	} else {
		if !utils.IsValidSlug(slug) {
			return pkgerrors.Validation("slug", "invalid slug", pkgerrors.ErrInvalidSlug)
		}
		available, err := o.registry.SlugAvailable(ctx, slug)
		if err != nil {
			return err
		}
		if !available {
			return pkgerrors.Conflict("slug", "slug already taken", pkgerrors.ErrSlugConflict)
		}
	}

	var taken []string
	if len(hosts) > 0 {
		if err := tx.Model(&models.Domain{}).Where("hostname IN ?", hosts).Pluck("hostname", &taken).Error; err != nil {
			return pkgerrors.Wrap(err, "failed to check domains")
		}
	}
	if len(taken) > 0 {
		return pkgerrors.Conflict("domain", "domain already taken: "+strings.Join(taken, ", "), pkgerrors.ErrDomainTaken)
	}

	if !req.NoOwner {
		username := o.ownerUsername(req, slug)
		exists, err := usernameTaken(tx, username)
		if err != nil {
			return err
		}
		if exists {
			return pkgerrors.Conflict("username", "username already taken", pkgerrors.ErrUsernameTaken)
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
