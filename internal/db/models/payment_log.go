package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrPaymentLogImmutable is returned when something tries to change an
// existing payment log row.
var ErrPaymentLogImmutable = errors.New("payment log entries are append-only")

// Payment log actions.
const (
	ActionPaymentAttempt  = "payment_attempt"
	ActionPaymentApproved = "payment_approved"
	ActionPaymentRejected = "payment_rejected"
	ActionPaymentPending  = "payment_pending"
	ActionPaymentRefunded = "payment_refunded"
	ActionPaymentError    = "payment_error"
)

// Payment log sources.
const (
	SourceCheckout = "checkout"
	SourceWebhook  = "webhook"
	SourceAdmin    = "admin"
)

// PaymentLog is the append-only audit trail of an order's payment events.
// (provider_payment_id, action) is unique so a redelivered provider
// notification cannot be recorded twice.
type PaymentLog struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"order_id"`
	Action            string         `gorm:"size:50;not null;uniqueIndex:idx_payment_logs_provider_action,priority:2" json:"action"`
	Source            string         `gorm:"size:20;not null" json:"source"`
	ProviderPaymentID *string        `gorm:"size:64;uniqueIndex:idx_payment_logs_provider_action,priority:1" json:"provider_payment_id,omitempty"`
	Status            string         `gorm:"size:50" json:"status,omitempty"`
	StatusDetail      string         `gorm:"size:100" json:"status_detail,omitempty"`
	Amount            int64          `json:"amount"`
	RawData           datatypes.JSON `gorm:"type:json" json:"raw_data,omitempty"`
	IPAddress         string         `gorm:"size:45" json:"ip_address,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`

	// Relationships
	Order *Order `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeCreate hook to set UUID if not provided.
func (l *PaymentLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// BeforeUpdate rejects every update.
func (l *PaymentLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrPaymentLogImmutable
}

// BeforeDelete rejects every delete through the model.
func (l *PaymentLog) BeforeDelete(tx *gorm.DB) error {
	return ErrPaymentLogImmutable
}

// TableName specifies the table name.
func (PaymentLog) TableName() string {
	return "payment_logs"
}
