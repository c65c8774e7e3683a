package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
	"github.com/pandeptwidyaop/multisite/pkg/utils"
)

// AddDomain binds host to a tenant. Hostnames below the base domain are
// self-issued and verified on creation; any other hostname is a custom
// domain that needs verification. The first domain of a tenant is primary.
func (r *Registry) AddDomain(ctx context.Context, tenantID uuid.UUID, host string) (*models.Domain, error) {
	hostname := utils.NormalizeHost(host)
	if !utils.IsValidHostname(hostname) {
		return nil, pkgerrors.Validation("domain", "invalid domain", pkgerrors.ErrInvalidDomain)
	}

	domain := &models.Domain{
		TenantID:  tenantID,
		Hostname:  hostname,
		IsActive:  true,
		Type:      models.DomainTypeCustom,
		IsPrimary: false,
	}
	if utils.IsSubdomainOf(hostname, r.baseDomain) {
		now := time.Now()
		domain.Type = models.DomainTypeSubdomain
		domain.IsVerified = true
		domain.SSLEnabled = true
		domain.VerifiedAt = &now
	} else {
		token, err := utils.GenerateRandomToken(16)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "failed to generate verification token")
		}
		domain.VerificationToken = token
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.Domain{}).Where("hostname = ?", hostname).Count(&taken).Error; err != nil {
			return pkgerrors.Wrap(err, "failed to check domain")
		}
		if taken > 0 {
			return pkgerrors.Conflict("domain", "domain already taken", pkgerrors.ErrDomainTaken)
		}

		var existing int64
		if err := tx.Model(&models.Domain{}).Where("tenant_id = ?", tenantID).Count(&existing).Error; err != nil {
			return pkgerrors.Wrap(err, "failed to count tenant domains")
		}
		domain.IsPrimary = existing == 0

		if err := tx.Create(domain).Error; err != nil {
			if pkgerrors.IsUniqueViolation(err) {
				return pkgerrors.Conflict("domain", "domain already taken", pkgerrors.ErrDomainTaken)
			}
			return pkgerrors.Wrap(err, "failed to create domain")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.evict(ctx, hostname)

	logger.InfoEvent().
		Str("tenant_id", tenantID.String()).
		Str("hostname", hostname).
		Str("type", string(domain.Type)).
		Bool("primary", domain.IsPrimary).
		Msg("Domain added")

	return domain, nil
}

// SetPrimary makes domainID the only primary domain of its tenant.
func (r *Registry) SetPrimary(ctx context.Context, domainID uuid.UUID) error {
	var hostnames []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		domain, err := findDomain(tx, domainID)
		if err != nil {
			return err
		}

		if err := tx.Model(&models.Domain{}).
			Where("tenant_id = ? AND id <> ?", domain.TenantID, domain.ID).
			Update("is_primary", false).Error; err != nil {
			return pkgerrors.Wrap(err, "failed to clear primary domain")
		}
		if err := tx.Model(domain).Update("is_primary", true).Error; err != nil {
			return pkgerrors.Wrap(err, "failed to set primary domain")
		}

		return tx.Model(&models.Domain{}).
			Where("tenant_id = ?", domain.TenantID).
			Pluck("hostname", &hostnames).Error
	})
	if err != nil {
		return err
	}

	r.evict(ctx, hostnames...)
	return nil
}

// VerifyDomain marks a custom domain verified when token matches the one
// issued at creation.
func (r *Registry) VerifyDomain(ctx context.Context, domainID uuid.UUID, token string) (*models.Domain, error) {
	domain, err := findDomain(r.db.WithContext(ctx), domainID)
	if err != nil {
		return nil, err
	}
	if domain.IsVerified {
		return domain, nil
	}
	if domain.VerificationToken == "" || !utils.SecureCompareStrings(domain.VerificationToken, token) {
		return nil, pkgerrors.Validation("token", "verification token does not match", pkgerrors.ErrInvalidToken)
	}

	now := time.Now()
	if err := r.db.WithContext(ctx).Model(domain).Updates(map[string]interface{}{
		"is_verified": true,
		"verified_at": now,
	}).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "failed to verify domain")
	}
	domain.IsVerified = true
	domain.VerifiedAt = &now

	r.evict(ctx, domain.Hostname)

	logger.InfoEvent().Str("hostname", domain.Hostname).Msg("Domain verified")
	return domain, nil
}

// SetDomainActive enables or disables serving a single hostname.
func (r *Registry) SetDomainActive(ctx context.Context, domainID uuid.UUID, active bool) error {
	domain, err := findDomain(r.db.WithContext(ctx), domainID)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Model(domain).Update("is_active", active).Error; err != nil {
		return pkgerrors.Wrap(err, "failed to update domain")
	}
	r.evict(ctx, domain.Hostname)
	return nil
}

func findDomain(tx *gorm.DB, id uuid.UUID) (*models.Domain, error) {
	var domain models.Domain
	if err := tx.Where("id = ?", id).First(&domain).Error; err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound("domain not found", err)
		}
		return nil, pkgerrors.Wrap(err, "failed to get domain")
	}
	return &domain, nil
}

// SettingsUpdate carries branding and contact changes. Empty fields are
// left untouched.
type SettingsUpdate struct {
	PrimaryColor   string
	SecondaryColor string
	FontFamily     string
	LogoURL        string
	ContactEmail   string
	ContactPhone   string
	Address        string
	WhatsappNumber string
	FacebookURL    string
	InstagramURL   string
	LinkedinURL    string
}

// UpdateSettings applies branding changes to the tenant's settings row,
// creating the row first if it is missing.
func (r *Registry) UpdateSettings(ctx context.Context, tenantID uuid.UUID, in SettingsUpdate) (*models.TenantSettings, error) {
	settings, err := r.EnsureSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	set := func(column, value string) {
		if value != "" {
			updates[column] = value
		}
	}
	set("primary_color", in.PrimaryColor)
	set("secondary_color", in.SecondaryColor)
	set("font_family", in.FontFamily)
	set("logo_url", in.LogoURL)
	set("contact_email", in.ContactEmail)
	set("contact_phone", in.ContactPhone)
	set("address", in.Address)
	set("whatsapp_number", in.WhatsappNumber)
	set("facebook_url", in.FacebookURL)
	set("instagram_url", in.InstagramURL)
	set("linkedin_url", in.LinkedinURL)

	if len(updates) == 0 {
		return settings, nil
	}
	if err := r.db.WithContext(ctx).Model(settings).Updates(updates).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "failed to update tenant settings")
	}
	return r.EnsureSettings(ctx, tenantID)
}
