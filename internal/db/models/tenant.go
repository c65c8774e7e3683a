package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Template selects the industry preset a tenant site was created from.
type Template string

const (
	TemplateElectricidad           Template = "electricidad"
	TemplateConstruccion           Template = "construccion"
	TemplateServiciosProfesionales Template = "servicios_profesionales"
	TemplatePortafolio             Template = "portafolio"
	TemplateCustom                 Template = "custom"
)

// IsValid reports whether t is a known template.
func (t Template) IsValid() bool {
	switch t {
	case TemplateElectricidad, TemplateConstruccion, TemplateServiciosProfesionales,
		TemplatePortafolio, TemplateCustom:
		return true
	}
	return false
}

// Default quotas for tenants created outside of a plan.
const (
	DefaultMaxPages     = 10
	DefaultMaxServices  = 20
	DefaultMaxImages    = 100
	DefaultMaxStorageMB = 100
)

// Tenant is the isolation boundary: one customer website with its own
// domains, settings, users and content. The slug is never reassigned.
type Tenant struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string    `gorm:"not null;size:100" json:"name"`
	Slug         string    `gorm:"uniqueIndex;not null;size:50" json:"slug"`
	CompanyName  string    `gorm:"size:200" json:"company_name,omitempty"`
	ContactEmail string    `gorm:"size:254" json:"contact_email,omitempty"`
	ContactPhone string    `gorm:"size:20" json:"contact_phone,omitempty"`
	Template     Template  `gorm:"size:50;not null" json:"template"`

	IsActive       bool `gorm:"not null;index" json:"is_active"`
	SetupCompleted bool `gorm:"not null" json:"setup_completed"`

	// Billing
	SetupFeePaid    bool       `gorm:"not null" json:"setup_fee_paid"`
	MonthlyFee      int64      `json:"monthly_fee"`
	LastPaymentDate *time.Time `json:"last_payment_date,omitempty"`
	NextPaymentDue  *time.Time `json:"next_payment_due,omitempty"`

	// Quotas
	MaxPages     int `gorm:"not null" json:"max_pages"`
	MaxServices  int `gorm:"not null" json:"max_services"`
	MaxImages    int `gorm:"not null" json:"max_images"`
	MaxStorageMB int `gorm:"not null" json:"max_storage_mb"`

	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Domains  []Domain        `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"domains,omitempty"`
	Settings *TenantSettings `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"settings,omitempty"`
}

// BeforeCreate hook to set UUID if not provided.
func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// TableName specifies the table name.
func (Tenant) TableName() string {
	return "tenants"
}

// PrimaryDomain returns the loaded primary domain, if any.
func (t *Tenant) PrimaryDomain() *Domain {
	for i := range t.Domains {
		if t.Domains[i].IsPrimary {
			return &t.Domains[i]
		}
	}
	return nil
}
