package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
)

// errNoop aborts a transaction whose change turned out to be a duplicate or
// an invalid transition. It never leaves the package.
var errNoop = errors.New("no-op transition")

// PaymentEvent is a payment status reported by the provider, either in the
// checkout response or in a webhook notification.
type PaymentEvent struct {
	ProviderPaymentID string
	Status            string
	StatusDetail      string
	Amount            int64
	Raw               []byte
	Source            string
	IPAddress         string
}

// outcome maps a provider status to the log action and the target order
// status. An empty target means the event is only logged.
func outcome(providerStatus string) (action string, target models.OrderStatus) {
	switch strings.ToLower(providerStatus) {
	case "approved":
		return models.ActionPaymentApproved, models.OrderPaid
	case "rejected", "cancelled":
		return models.ActionPaymentRejected, models.OrderFailed
	case "refunded", "charged_back":
		return models.ActionPaymentRefunded, models.OrderRefunded
	default:
		return models.ActionPaymentPending, ""
	}
}

// CanTransition reports whether from -> to is an edge of the order state
// machine.
func CanTransition(from, to models.OrderStatus) bool {
	switch to {
	case models.OrderPaid, models.OrderFailed:
		return from == models.OrderPending
	case models.OrderOnboarding:
		return from == models.OrderPaid
	case models.OrderExpired, models.OrderCompleted:
		return from == models.OrderPaid || from == models.OrderOnboarding
	case models.OrderRefunded:
		return from != models.OrderRefunded && from.IsValid()
	}
	return false
}

// ApplyPayment records a provider payment event against an order and
// performs the transition it implies. A duplicate event (same provider
// payment id and action) or one that is not valid from the current state
// is a no-op: applied is false, nothing is logged and the current order is
// returned.
func (s *Service) ApplyPayment(ctx context.Context, orderID uuid.UUID, ev PaymentEvent) (order *models.Order, applied bool, err error) {
	action, target := outcome(ev.Status)
	var from models.OrderStatus

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Order
		if err := tx.Where("id = ?", orderID).First(&current).Error; err != nil {
			if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.NotFound("order not found", pkgerrors.ErrOrderNotFound)
			}
			return pkgerrors.Wrap(err, "failed to get order")
		}
		from = current.Status

		if ev.ProviderPaymentID != "" {
			var seen int64
			if err := tx.Model(&models.PaymentLog{}).
				Where("provider_payment_id = ? AND action = ?", ev.ProviderPaymentID, action).
				Count(&seen).Error; err != nil {
				return pkgerrors.Wrap(err, "failed to check payment log")
			}
			if seen > 0 {
				return errNoop
			}
		}

		if target != "" && !CanTransition(current.Status, target) {
			return errNoop
		}

		entry := &models.PaymentLog{
			OrderID:      current.ID,
			Action:       action,
			Source:       ev.Source,
			Status:       ev.Status,
			StatusDetail: truncate(ev.StatusDetail, 100),
			Amount:       ev.Amount,
			IPAddress:    ev.IPAddress,
		}
		if ev.ProviderPaymentID != "" {
			pid := ev.ProviderPaymentID
			entry.ProviderPaymentID = &pid
		}
		if len(ev.Raw) > 0 {
			entry.RawData = datatypes.JSON(ev.Raw)
		}
		if err := tx.Create(entry).Error; err != nil {
			if pkgerrors.IsUniqueViolation(err) {
				return errNoop
			}
			return pkgerrors.Wrap(err, "failed to append payment log")
		}

		if target == "" {
			return nil
		}

		updates := map[string]interface{}{
			"status":                 target,
			"provider_status":        ev.Status,
			"provider_status_detail": truncate(ev.StatusDetail, 100),
		}
		if ev.ProviderPaymentID != "" {
			updates["provider_payment_id"] = ev.ProviderPaymentID
		}
		if len(ev.Raw) > 0 {
			updates["provider_data"] = datatypes.JSON(ev.Raw)
		}
		if target == models.OrderPaid {
			now := s.now()
			token := uuid.New()
			updates["paid_at"] = now
			updates["onboarding_token"] = token
			updates["token_expires_at"] = now.Add(s.cfg.TokenTTL)
		}

		result := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", current.ID, current.Status).
			Updates(updates)
		if result.Error != nil {
			return pkgerrors.Wrap(result.Error, "failed to update order")
		}
		if result.RowsAffected == 0 {
			return errNoop
		}
		return nil
	})

	if err != nil && !errors.Is(err, errNoop) {
		return nil, false, err
	}
	applied = err == nil

	order, loadErr := s.FindByID(ctx, orderID)
	if loadErr != nil {
		return nil, false, loadErr
	}

	event := logger.InfoEvent().
		Str("order_number", order.OrderNumber).
		Str("provider_payment_id", ev.ProviderPaymentID).
		Str("provider_status", ev.Status).
		Str("source", ev.Source).
		Str("status", string(order.Status)).
		Bool("applied", applied)
	event.Msg("Payment event processed")

	if applied && target != "" {
		s.metrics.ObserveTransition(string(from), string(target))
	}
	return order, applied, nil
}

// GetForOnboarding validates an onboarding token and returns its order.
// A paid order moves to onboarding on first access; revisits are no-ops.
// Expiry is checked lazily here: a token whose expiry is at or before now
// marks the order expired.
func (s *Service) GetForOnboarding(ctx context.Context, rawToken string) (*models.Order, error) {
	token, err := uuid.Parse(strings.TrimSpace(rawToken))
	if err != nil {
		return nil, pkgerrors.NotFound("order not found", pkgerrors.ErrInvalidToken)
	}

	order, err := s.findOne(ctx, "onboarding_token = ?", token)
	if err != nil {
		return nil, err
	}

	if err := s.checkUsable(ctx, order); err != nil {
		return nil, err
	}

	if order.Status == models.OrderPaid {
		if err := s.transition(ctx, order, models.OrderOnboarding, nil); err != nil && !errors.Is(err, errNoop) {
			return nil, err
		}
		order.Status = models.OrderOnboarding
	}
	return order, nil
}

// checkUsable returns the precondition error for an order whose token can
// no longer create a tenant, expiring it when its time has passed.
func (s *Service) checkUsable(ctx context.Context, order *models.Order) error {
	switch order.Status {
	case models.OrderCompleted:
		return pkgerrors.PreconditionFailed(pkgerrors.ReasonCompleted, "order already completed", pkgerrors.ErrOrderCompleted)
	case models.OrderExpired:
		return pkgerrors.PreconditionFailed(pkgerrors.ReasonExpired, "onboarding link expired", pkgerrors.ErrTokenExpired)
	case models.OrderPaid, models.OrderOnboarding:
		if order.TokenExpiredAt(s.now()) {
			if err := s.transition(ctx, order, models.OrderExpired, nil); err != nil && !errors.Is(err, errNoop) {
				return err
			}
			order.Status = models.OrderExpired
			return pkgerrors.PreconditionFailed(pkgerrors.ReasonExpired, "onboarding link expired", pkgerrors.ErrTokenExpired)
		}
		return nil
	default:
		return pkgerrors.PreconditionFailed(pkgerrors.ReasonWrongStatus, "order cannot be onboarded", pkgerrors.ErrOrderWrongStatus)
	}
}

// Complete marks the order completed and links it to the tenant it
// produced. It runs a conditional update so an order completes at most
// once; callers provisioning inside a transaction pass a service bound to
// it with WithTx.
func (s *Service) Complete(ctx context.Context, orderID, tenantID uuid.UUID) (*models.Order, error) {
	now := s.now()

	order, err := s.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := completable(order, now); err != nil {
		return nil, err
	}

	result := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, order.Status).
		Updates(map[string]interface{}{
			"status":       models.OrderCompleted,
			"tenant_id":    tenantID,
			"completed_at": now,
		})
	if result.Error != nil {
		if pkgerrors.IsUniqueViolation(result.Error) {
			return nil, pkgerrors.Conflict("tenant_id", "tenant already linked to an order", result.Error)
		}
		return nil, pkgerrors.Wrap(result.Error, "failed to complete order")
	}

	if result.RowsAffected == 0 {
		reloaded, err := s.FindByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if err := completable(reloaded, now); err != nil {
			return nil, err
		}
		return nil, pkgerrors.PreconditionFailed(pkgerrors.ReasonWrongStatus, "order changed during completion", pkgerrors.ErrOrderWrongStatus)
	}

	s.metrics.ObserveTransition(string(order.Status), string(models.OrderCompleted))

	from := order.Status
	order.Status = models.OrderCompleted
	order.TenantID = &tenantID
	order.CompletedAt = &now
	logger.InfoEvent().
		Str("order_number", order.OrderNumber).
		Str("from", string(from)).
		Str("tenant_id", tenantID.String()).
		Msg("Order completed")
	return order, nil
}

// completable returns the precondition error for an order that cannot be
// completed at now.
func completable(order *models.Order, now time.Time) error {
	switch {
	case order.Status == models.OrderCompleted:
		return pkgerrors.PreconditionFailed(pkgerrors.ReasonCompleted, "order already completed", pkgerrors.ErrOrderCompleted)
	case order.Status == models.OrderExpired:
		return pkgerrors.PreconditionFailed(pkgerrors.ReasonExpired, "onboarding link expired", pkgerrors.ErrTokenExpired)
	case order.Status != models.OrderPaid && order.Status != models.OrderOnboarding:
		return pkgerrors.PreconditionFailed(pkgerrors.ReasonWrongStatus, "order cannot be completed", pkgerrors.ErrOrderWrongStatus)
	case order.TokenExpiredAt(now):
		return pkgerrors.PreconditionFailed(pkgerrors.ReasonExpired, "onboarding link expired", pkgerrors.ErrTokenExpired)
	}
	return nil
}

// CheckProvisionable loads the order behind token and returns a
// precondition error if it cannot produce a tenant. Unlike
// GetForOnboarding it never changes the order.
func (s *Service) CheckProvisionable(ctx context.Context, rawToken string) (*models.Order, error) {
	token, err := uuid.Parse(strings.TrimSpace(rawToken))
	if err != nil {
		return nil, pkgerrors.NotFound("order not found", pkgerrors.ErrInvalidToken)
	}
	order, err := s.findOne(ctx, "onboarding_token = ?", token)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case models.OrderCompleted:
		return nil, pkgerrors.PreconditionFailed(pkgerrors.ReasonCompleted, "order already completed", pkgerrors.ErrOrderCompleted)
	case models.OrderExpired:
		return nil, pkgerrors.PreconditionFailed(pkgerrors.ReasonExpired, "onboarding link expired", pkgerrors.ErrTokenExpired)
	case models.OrderPaid, models.OrderOnboarding:
		if order.TokenExpiredAt(s.now()) {
			return nil, pkgerrors.PreconditionFailed(pkgerrors.ReasonExpired, "onboarding link expired", pkgerrors.ErrTokenExpired)
		}
		return order, nil
	default:
		return nil, pkgerrors.PreconditionFailed(pkgerrors.ReasonWrongStatus, "order cannot be onboarded", pkgerrors.ErrOrderWrongStatus)
	}
}

// ExpireIfDue marks the order behind token expired when its time has
// passed. It is used after a failed provisioning so the expiry survives
// the aborted transaction.
func (s *Service) ExpireIfDue(ctx context.Context, rawToken string) {
	token, err := uuid.Parse(strings.TrimSpace(rawToken))
	if err != nil {
		return
	}
	order, err := s.findOne(ctx, "onboarding_token = ?", token)
	if err != nil {
		return
	}
	if (order.Status == models.OrderPaid || order.Status == models.OrderOnboarding) && order.TokenExpiredAt(s.now()) {
		if err := s.transition(ctx, order, models.OrderExpired, nil); err != nil && !errors.Is(err, errNoop) {
			logger.WarnEvent().Err(err).Str("order_number", order.OrderNumber).Msg("Failed to expire order")
		}
	}
}

// transition moves order to target if the edge exists and nobody changed
// the order in the meantime. Non-payment transitions do not touch the
// payment log.
func (s *Service) transition(ctx context.Context, order *models.Order, target models.OrderStatus, extra map[string]interface{}) error {
	if !CanTransition(order.Status, target) {
		return errNoop
	}
	updates := map[string]interface{}{"status": target}
	for k, v := range extra {
		updates[k] = v
	}

	result := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Updates(updates)
	if result.Error != nil {
		return pkgerrors.Wrap(result.Error, "failed to update order")
	}
	if result.RowsAffected == 0 {
		return errNoop
	}

	logger.InfoEvent().
		Str("order_number", order.OrderNumber).
		Str("from", string(order.Status)).
		Str("to", string(target)).
		Msg("Order transition")
	s.metrics.ObserveTransition(string(order.Status), string(target))
	return nil
}

// Expired reports whether the order's token is expired now.
func (s *Service) Expired(order *models.Order) bool {
	return order.TokenExpiredAt(s.now())
}

// TokenTTL returns the configured onboarding token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.cfg.TokenTTL
}
