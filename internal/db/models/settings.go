package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Default branding applied to every new tenant.
const (
	DefaultPrimaryColor   = "#2563eb"
	DefaultSecondaryColor = "#1e40af"
	DefaultFontFamily     = "Inter, sans-serif"
)

// TenantSettings holds branding, contact channels and feature flags.
// Exactly one row exists per tenant.
type TenantSettings struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"tenant_id"`

	// Branding
	PrimaryColor   string `gorm:"size:7;not null" json:"primary_color"`
	SecondaryColor string `gorm:"size:7;not null" json:"secondary_color"`
	FontFamily     string `gorm:"size:100;not null" json:"font_family"`
	LogoURL        string `json:"logo_url,omitempty"`
	FaviconURL     string `json:"favicon_url,omitempty"`

	// Contact
	ContactEmail   string `gorm:"size:254" json:"contact_email,omitempty"`
	ContactPhone   string `gorm:"size:20" json:"contact_phone,omitempty"`
	Address        string `json:"address,omitempty"`
	WhatsappNumber string `gorm:"size:20" json:"whatsapp_number,omitempty"`
	FacebookURL    string `json:"facebook_url,omitempty"`
	InstagramURL   string `json:"instagram_url,omitempty"`
	LinkedinURL    string `json:"linkedin_url,omitempty"`

	// Analytics
	GoogleAnalyticsID string `gorm:"size:50" json:"google_analytics_id,omitempty"`

	// Features
	EnableBlog         bool `gorm:"not null" json:"enable_blog"`
	EnableTestimonials bool `gorm:"not null" json:"enable_testimonials"`
	EnableContactForm  bool `gorm:"not null" json:"enable_contact_form"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultSettings returns the settings row created alongside a tenant.
func DefaultSettings(tenantID uuid.UUID) *TenantSettings {
	return &TenantSettings{
		TenantID:           tenantID,
		PrimaryColor:       DefaultPrimaryColor,
		SecondaryColor:     DefaultSecondaryColor,
		FontFamily:         DefaultFontFamily,
		EnableBlog:         false,
		EnableTestimonials: true,
		EnableContactForm:  true,
	}
}

// BeforeCreate hook to set UUID if not provided.
func (s *TenantSettings) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// TableName specifies the table name.
func (TenantSettings) TableName() string {
	return "tenant_settings"
}
