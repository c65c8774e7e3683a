package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OrderStatus is a state of the order lifecycle.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderPaid       OrderStatus = "paid"
	OrderOnboarding OrderStatus = "onboarding"
	OrderCompleted  OrderStatus = "completed"
	OrderFailed     OrderStatus = "failed"
	OrderExpired    OrderStatus = "expired"
	OrderRefunded   OrderStatus = "refunded"
)

// IsValid reports whether s is a known status.
func (s OrderStatus) IsValid() bool {
	return slices.Contains([]OrderStatus{
		OrderPending, OrderPaid, OrderOnboarding, OrderCompleted,
		OrderFailed, OrderExpired, OrderRefunded,
	}, s)
}

// IsTerminal reports whether no further transition except refund applies.
func (s OrderStatus) IsTerminal() bool {
	return slices.Contains([]OrderStatus{OrderCompleted, OrderFailed, OrderExpired, OrderRefunded}, s)
}

// IsPaid reports whether a successful payment has been recorded.
func (s OrderStatus) IsPaid() bool {
	return slices.Contains([]OrderStatus{OrderPaid, OrderOnboarding, OrderCompleted}, s)
}

// Order is a purchase attempt for a plan. Once paid it carries a one-time
// onboarding token; once completed it references the tenant it produced.
type Order struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderNumber string    `gorm:"uniqueIndex;not null;size:20" json:"order_number"`
	PlanID      uuid.UUID `gorm:"type:uuid;not null;index" json:"plan_id"`

	// Buyer
	Email      string `gorm:"not null;index;size:254" json:"email"`
	BuyerName  string `gorm:"size:200" json:"buyer_name,omitempty"`
	BuyerPhone string `gorm:"size:20" json:"buyer_phone,omitempty"`

	// Billing
	BillingRUT     string `gorm:"size:12" json:"billing_rut,omitempty"`
	BillingName    string `gorm:"size:200" json:"billing_name,omitempty"`
	BillingAddress string `json:"billing_address,omitempty"`

	Amount   int64       `gorm:"not null" json:"amount"`
	Currency string      `gorm:"size:3;not null" json:"currency"`
	Status   OrderStatus `gorm:"size:20;not null;index" json:"status"`

	// Payment provider
	ProviderPaymentID    string         `gorm:"size:64;index" json:"provider_payment_id,omitempty"`
	ProviderStatus       string         `gorm:"size:50" json:"provider_status,omitempty"`
	ProviderStatusDetail string         `gorm:"size:100" json:"provider_status_detail,omitempty"`
	ProviderData         datatypes.JSON `gorm:"type:json" json:"-"`

	// Onboarding
	OnboardingToken *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"-"`
	TokenExpiresAt  *time.Time `json:"token_expires_at,omitempty"`
	TenantID        *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"tenant_id,omitempty"`

	IPAddress   string     `gorm:"size:45" json:"-"`
	UserAgent   string     `gorm:"size:500" json:"-"`
	Notes       string     `json:"notes,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relationships
	Plan   *Plan   `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	Tenant *Tenant `gorm:"foreignKey:TenantID" json:"-"`
}

// BeforeCreate hook to set UUID if not provided.
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// TableName specifies the table name.
func (Order) TableName() string {
	return "orders"
}

// TokenExpiredAt reports whether the onboarding token is expired at now.
// Expiry is inclusive: a token whose expiry equals now is expired.
func (o *Order) TokenExpiredAt(now time.Time) bool {
	if o.TokenExpiresAt == nil {
		return true
	}
	return !now.Before(*o.TokenExpiresAt)
}

// TokenValidAt reports whether the onboarding token can still be used to
// create a tenant.
func (o *Order) TokenValidAt(now time.Time) bool {
	if o.OnboardingToken == nil {
		return false
	}
	if o.Status != OrderPaid && o.Status != OrderOnboarding {
		return false
	}
	return !o.TokenExpiredAt(now)
}
