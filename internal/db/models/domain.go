package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DomainType distinguishes self-issued subdomains from customer domains.
type DomainType string

const (
	DomainTypeSubdomain DomainType = "subdomain"
	DomainTypeCustom    DomainType = "custom"
)

// Domain binds a hostname to exactly one tenant. Hostnames are globally
// unique and stored lowercase.
type Domain struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID          uuid.UUID  `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Hostname          string     `gorm:"uniqueIndex;not null;size:255" json:"hostname"`
	Type              DomainType `gorm:"size:20;not null" json:"type"`
	IsPrimary         bool       `gorm:"not null" json:"is_primary"`
	IsActive          bool       `gorm:"not null;index" json:"is_active"`
	IsVerified        bool       `gorm:"not null" json:"is_verified"`
	SSLEnabled        bool       `gorm:"not null" json:"ssl_enabled"`
	VerificationToken string     `gorm:"size:64" json:"-"`
	VerifiedAt        *time.Time `json:"verified_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// Relationships
	Tenant *Tenant `gorm:"foreignKey:TenantID" json:"-"`
}

// BeforeCreate hook to set UUID if not provided
func (d *Domain) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.Hostname = strings.ToLower(d.Hostname)
	return nil
}

// TableName specifies the table name
func (Domain) TableName() string {
	return "domains"
}

// Trusted reports whether the domain may be served.
func (d *Domain) Trusted(allowUnverified bool) bool {
	if !d.IsActive {
		return false
	}
	return d.IsVerified || allowUnverified
}
