package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Plan is a purchasable package; its quotas are copied onto the tenant
// produced by an order for it.
type Plan struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Slug         string    `gorm:"uniqueIndex;not null;size:50" json:"slug"`
	Name         string    `gorm:"not null;size:100" json:"name"`
	Description  string    `json:"description"`
	Price        int64     `gorm:"not null" json:"price"`
	RenewalPrice int64     `gorm:"not null" json:"renewal_price"`
	Currency     string    `gorm:"size:3;not null" json:"currency"`

	Features        datatypes.JSON `gorm:"type:json" json:"features"`
	AvailableThemes datatypes.JSON `gorm:"type:json" json:"available_themes"`

	MaxPages     int `gorm:"not null" json:"max_pages"`
	MaxServices  int `gorm:"not null" json:"max_services"`
	MaxImages    int `gorm:"not null" json:"max_images"`
	MaxStorageMB int `gorm:"not null" json:"max_storage_mb"`

	HasCustomDomain    bool      `gorm:"not null" json:"has_custom_domain"`
	HasAnalytics       bool      `gorm:"not null" json:"has_analytics"`
	HasPrioritySupport bool      `gorm:"not null" json:"has_priority_support"`
	HasWhiteLabel      bool      `gorm:"not null" json:"has_white_label"`
	IsActive           bool      `gorm:"not null;index" json:"is_active"`
	IsFeatured         bool      `gorm:"not null" json:"is_featured"`
	DisplayOrder       int       `gorm:"not null" json:"display_order"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// BeforeCreate hook to set UUID if not provided.
func (p *Plan) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// TableName specifies the table name.
func (Plan) TableName() string {
	return "plans"
}

// Themes decodes AvailableThemes. A malformed column yields no themes.
func (p *Plan) Themes() []string {
	var themes []string
	if len(p.AvailableThemes) == 0 {
		return themes
	}
	if err := json.Unmarshal(p.AvailableThemes, &themes); err != nil {
		return nil
	}
	return themes
}

// AllowsTheme reports whether theme may be chosen during onboarding.
func (p *Plan) AllowsTheme(theme string) bool {
	for _, t := range p.Themes() {
		if t == theme {
			return true
		}
	}
	return false
}
