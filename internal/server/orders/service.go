package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	"github.com/pandeptwidyaop/multisite/internal/server/metrics"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
)

// Defaults applied when Config leaves a field empty.
const (
	DefaultTokenTTL = 72 * time.Hour
	DefaultCurrency = "CLP"
	DefaultPrefix   = "ORD"

	maxOrderNumberAttempts = 5
)

// Config tunes the lifecycle.
type Config struct {
	TokenTTL time.Duration
	Currency string
	Prefix   string
}

// Buyer is the purchaser data captured at checkout.
type Buyer struct {
	Email          string
	Name           string
	Phone          string
	BillingRUT     string
	BillingName    string
	BillingAddress string
	IPAddress      string
	UserAgent      string
}

// Service owns order state and the one-time onboarding token.
type Service struct {
	db      *gorm.DB
	cfg     Config
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates an order service.
func NewService(db *gorm.DB, cfg Config, m *metrics.Metrics) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &Service{db: db, cfg: cfg, metrics: m, now: time.Now}
}

// WithTx returns a service whose operations run on tx.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx, cfg: s.cfg, metrics: s.metrics, now: s.now}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Now returns the service's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

// Create opens a pending order for an active plan.
func (s *Service) Create(ctx context.Context, planSlug string, buyer Buyer) (*models.Order, error) {
	email := strings.ToLower(strings.TrimSpace(buyer.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, pkgerrors.Validation("email", "invalid email address", err)
	}

	plan, err := FindPlan(ctx, s.db, planSlug)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		PlanID:         plan.ID,
		Email:          email,
		BuyerName:      strings.TrimSpace(buyer.Name),
		BuyerPhone:     buyer.Phone,
		BillingRUT:     buyer.BillingRUT,
		BillingName:    buyer.BillingName,
		BillingAddress: buyer.BillingAddress,
		Amount:         plan.Price,
		Currency:       plan.Currency,
		Status:         models.OrderPending,
		IPAddress:      buyer.IPAddress,
		UserAgent:      buyer.UserAgent,
	}
	if order.Currency == "" {
		order.Currency = s.cfg.Currency
	}

	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		number, err := s.nextOrderNumber(ctx, attempt)
		if err != nil {
			return nil, err
		}
		order.ID = uuid.Nil
		order.OrderNumber = number

		err = s.db.WithContext(ctx).Create(order).Error
		if err == nil {
			order.Plan = plan
			logger.InfoEvent().
				Str("order_number", order.OrderNumber).
				Str("plan", plan.Slug).
				Int64("amount", order.Amount).
				Msg("Order created")
			return order, nil
		}
		if !pkgerrors.IsUniqueViolation(err) {
			return nil, pkgerrors.Wrap(err, "failed to create order")
		}
	}

	return nil, pkgerrors.Conflict("order_number", "could not allocate an order number", nil)
}

// nextOrderNumber returns PREFIX-YYYY-NNNN where NNNN follows the orders
// already numbered this year. offset skips numbers lost to a race.
func (s *Service) nextOrderNumber(ctx context.Context, offset int) (string, error) {
	year := s.now().Year()
	prefix := fmt.Sprintf("%s-%d-", s.cfg.Prefix, year)

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_number LIKE ?", prefix+"%").
		Count(&count).Error; err != nil {
		return "", pkgerrors.Wrap(err, "failed to count orders")
	}
	return fmt.Sprintf("%s%04d", prefix, count+1+int64(offset)), nil
}

// FindByID loads an order with its plan.
func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.findOne(ctx, "id = ?", id)
}

// FindByNumber loads an order by its public number.
func (s *Service) FindByNumber(ctx context.Context, number string) (*models.Order, error) {
	return s.findOne(ctx, "order_number = ?", strings.TrimSpace(number))
}

func (s *Service) findOne(ctx context.Context, query string, arg interface{}) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Plan").Where(query, arg).First(&order).Error; err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound("order not found", pkgerrors.ErrOrderNotFound)
		}
		return nil, pkgerrors.Wrap(err, "failed to get order")
	}
	return &order, nil
}

// Logs returns the payment log of an order, oldest first.
func (s *Service) Logs(ctx context.Context, orderID uuid.UUID) ([]models.PaymentLog, error) {
	var logs []models.PaymentLog
	if err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&logs).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list payment logs")
	}
	return logs, nil
}

// RecordAttempt appends a payment_attempt entry before the provider is
// contacted.
func (s *Service) RecordAttempt(ctx context.Context, order *models.Order, source, ip string) error {
	return s.appendLog(s.db.WithContext(ctx), &models.PaymentLog{
		OrderID:   order.ID,
		Action:    models.ActionPaymentAttempt,
		Source:    source,
		Amount:    order.Amount,
		IPAddress: ip,
	})
}

// RecordError appends a payment_error entry. The order status is left
// unchanged.
func (s *Service) RecordError(ctx context.Context, order *models.Order, source, detail string) error {
	raw, _ := json.Marshal(map[string]string{"error": detail})
	return s.appendLog(s.db.WithContext(ctx), &models.PaymentLog{
		OrderID:      order.ID,
		Action:       models.ActionPaymentError,
		Source:       source,
		StatusDetail: truncate(detail, 100),
		Amount:       order.Amount,
		RawData:      datatypes.JSON(raw),
	})
}

func (s *Service) appendLog(tx *gorm.DB, entry *models.PaymentLog) error {
	if err := tx.Create(entry).Error; err != nil {
		return pkgerrors.Wrap(err, "failed to append payment log")
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
