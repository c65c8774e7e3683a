package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is a tenant membership role.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
	RoleOwner:  4,
}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	_, ok := roleRank[r]
	return ok
}

// Includes reports whether r can do everything other can
// (owner ⊇ admin ⊇ editor ⊇ viewer). Unknown roles include nothing.
func (r Role) Includes(other Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	otherRank, ok := roleRank[other]
	if !ok {
		return false
	}
	return rank >= otherRank
}

// User represents a platform account
type User struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Username         string     `gorm:"uniqueIndex;not null;size:150"`
	Email            string     `gorm:"index;size:254"`
	Password         string     `gorm:"not null"` // bcrypt hash or unusable marker
	Name             string
	IsActive         bool `gorm:"not null"`
	IsSuperAdmin     bool `gorm:"not null"`
	TwoFactorEnabled bool `gorm:"not null"`
	TwoFactorSecret  string
	LastLoginAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Relationships
	Profile *UserProfile `gorm:"foreignKey:UserID"`
}

// BeforeCreate hook to set UUID if not provided
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// TableName specifies the table name
func (User) TableName() string {
	return "users"
}

// UserProfile links an account to at most one tenant with a role. Only
// superadmin accounts have no tenant.
type UserProfile struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID   uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null"`
	TenantID *uuid.UUID `gorm:"type:uuid;index"`
	Role     Role       `gorm:"size:20;not null"`
	Phone    string     `gorm:"size:20"`

	// Out-of-band credential setup. Only the sha256 of the token is stored.
	InvitationTokenHash  *string `gorm:"uniqueIndex;size:64"`
	InvitationExpiresAt  *time.Time
	InvitationAcceptedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// Relationships
	User   *User   `gorm:"foreignKey:UserID"`
	Tenant *Tenant `gorm:"foreignKey:TenantID"`
}

// BeforeCreate hook to set UUID if not provided
func (p *UserProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// TableName specifies the table name
func (UserProfile) TableName() string {
	return "user_profiles"
}
