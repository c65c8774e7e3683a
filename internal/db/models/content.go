package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TenantOwned is implemented by every entity whose rows belong to exactly
// one tenant. Scoped repositories only accept such types.
type TenantOwned interface {
	OwnerID() uuid.UUID
	AssignTenant(id uuid.UUID)
}

// SectionType identifies the kind of page block.
type SectionType string

const (
	SectionHero         SectionType = "hero"
	SectionAbout        SectionType = "about"
	SectionServices     SectionType = "services"
	SectionContact      SectionType = "contact"
	SectionGallery      SectionType = "gallery"
	SectionTestimonials SectionType = "testimonials"
)

// IsValid reports whether t is a known section type.
func (t SectionType) IsValid() bool {
	switch t {
	case SectionHero, SectionAbout, SectionServices, SectionContact, SectionGallery, SectionTestimonials:
		return true
	}
	return false
}

// Section is a block of the tenant's public page.
type Section struct {
	ID         uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID   uuid.UUID   `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Type       SectionType `gorm:"size:20;not null" json:"type"`
	Title      string      `gorm:"size:200" json:"title"`
	Subtitle   string      `gorm:"size:300" json:"subtitle,omitempty"`
	Content    string      `json:"content,omitempty"`
	ButtonText string      `gorm:"size:50" json:"button_text,omitempty"`
	ButtonURL  string      `json:"button_url,omitempty"`
	Position   int         `gorm:"not null" json:"position"`
	IsActive   bool        `gorm:"not null;index" json:"is_active"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`

	Tenant *Tenant `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"-"`
}

func (s *Section) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (Section) TableName() string { return "sections" }

func (s *Section) OwnerID() uuid.UUID        { return s.TenantID }
func (s *Section) AssignTenant(id uuid.UUID) { s.TenantID = id }

// Service is an offering listed on the tenant's site.
type Service struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Name        string    `gorm:"size:200;not null" json:"name"`
	Description string    `json:"description,omitempty"`
	Icon        string    `gorm:"size:50" json:"icon,omitempty"`
	Position    int       `gorm:"not null" json:"position"`
	IsActive    bool      `gorm:"not null;index" json:"is_active"`
	IsFeatured  bool      `gorm:"not null" json:"is_featured"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Tenant *Tenant `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"-"`
}

func (s *Service) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (Service) TableName() string { return "services" }

func (s *Service) OwnerID() uuid.UUID        { return s.TenantID }
func (s *Service) AssignTenant(id uuid.UUID) { s.TenantID = id }
