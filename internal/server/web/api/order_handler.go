package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	"github.com/pandeptwidyaop/multisite/internal/server/orders"
	"github.com/pandeptwidyaop/multisite/internal/server/payment"
	"github.com/pandeptwidyaop/multisite/internal/server/web/middleware"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
)

func (h *Handler) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := orders.ListPlans(r.Context(), h.db)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, plans)
}

type checkoutRequest struct {
	PlanSlug        string `json:"plan_slug"`
	Email           string `json:"email"`
	BuyerName       string `json:"buyer_name"`
	BuyerPhone      string `json:"buyer_phone"`
	BillingRUT      string `json:"billing_rut"`
	BillingName     string `json:"billing_name"`
	BillingAddress  string `json:"billing_address"`
	CardToken       string `json:"card_token"`
	PaymentMethodID string `json:"payment_method_id"`
	Installments    int    `json:"installments"`
}

type orderResponse struct {
	OrderNumber    string             `json:"order_number"`
	Status         models.OrderStatus `json:"status"`
	Amount         int64              `json:"amount"`
	Currency       string             `json:"currency"`
	ProviderStatus string             `json:"provider_status,omitempty"`
	Message        string             `json:"message,omitempty"`
	OnboardingURL  string             `json:"onboarding_url,omitempty"`
	TokenExpiresAt *time.Time         `json:"token_expires_at,omitempty"`
}

func newOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		OrderNumber:    order.OrderNumber,
		Status:         order.Status,
		Amount:         order.Amount,
		Currency:       order.Currency,
		ProviderStatus: order.ProviderStatus,
	}
	if order.ProviderStatus != "" {
		resp.Message = payment.StatusMessage(order.ProviderStatus, order.ProviderStatusDetail)
	}
	if order.OnboardingToken != nil && (order.Status == models.OrderPaid || order.Status == models.OrderOnboarding) {
		resp.OnboardingURL = "/onboarding/" + order.OnboardingToken.String()
		resp.TokenExpiresAt = order.TokenExpiresAt
	}
	return resp
}

// checkout opens an order and charges the card in one request. Whatever the
// provider answers is recorded against the order; only a provider failure
// is an error, and it leaves the order pending.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.CardToken) == "" {
		respondAppError(w, r, pkgerrors.Validation("card_token", "card token is required", nil))
		return
	}
	if h.payments == nil {
		respondAppError(w, r, pkgerrors.ExternalService("payment provider not configured", nil))
		return
	}

	ctx := r.Context()
	ip := middleware.ClientIP(r)
	order, err := h.orders.Create(ctx, req.PlanSlug, orders.Buyer{
		Email:          req.Email,
		Name:           req.BuyerName,
		Phone:          req.BuyerPhone,
		BillingRUT:     req.BillingRUT,
		BillingName:    req.BillingName,
		BillingAddress: req.BillingAddress,
		IPAddress:      ip,
		UserAgent:      r.UserAgent(),
	})
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	if err := h.orders.RecordAttempt(ctx, order, models.SourceCheckout, ip); err != nil {
		logger.WarnEvent().Err(err).Str("order_number", order.OrderNumber).Msg("Failed to record payment attempt")
	}

	description := "Sitio web"
	if order.Plan != nil {
		description = "Plan " + order.Plan.Name
	}
	pay, err := h.payments.CreatePayment(ctx, payment.CreateRequest{
		Amount:          order.Amount,
		PayerEmail:      order.Email,
		PayerName:       order.BuyerName,
		Description:     description,
		CardToken:       req.CardToken,
		PaymentMethodID: req.PaymentMethodID,
		Installments:    req.Installments,
		Reference:       order.OrderNumber,
		IdempotencyKey:  order.ID.String(),
	})
	if err != nil {
		if recErr := h.orders.RecordError(ctx, order, models.SourceCheckout, err.Error()); recErr != nil {
			logger.WarnEvent().Err(recErr).Str("order_number", order.OrderNumber).Msg("Failed to record payment error")
		}
		respondAppError(w, r, err)
		return
	}

	order, _, err = h.orders.ApplyPayment(ctx, order.ID, orders.PaymentEvent{
		ProviderPaymentID: pay.ID,
		Status:            pay.Status,
		StatusDetail:      pay.StatusDetail,
		Amount:            pay.Amount,
		Raw:               pay.Raw,
		Source:            models.SourceCheckout,
		IPAddress:         ip,
	})
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	resp := newOrderResponse(order)
	resp.ProviderStatus = pay.Status
	resp.Message = payment.StatusMessage(pay.Status, pay.StatusDetail)
	respondJSON(w, http.StatusCreated, resp)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.orders.FindByNumber(ctx, r.PathValue("number"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	logs, err := h.orders.Logs(ctx, order.ID)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"order": order,
		"logs":  logs,
	})
}

// refundOrder refunds the order's payment at the provider and records the
// refund as an administrative payment event.
func (h *Handler) refundOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.orders.FindByNumber(ctx, r.PathValue("number"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	if order.ProviderPaymentID == "" || order.PaidAt == nil {
		respondAppError(w, r, pkgerrors.PreconditionFailed(pkgerrors.ReasonWrongStatus, "order has no captured payment", pkgerrors.ErrOrderWrongStatus))
		return
	}
	// Expired orders keep their captured payment and stay refundable.
	if !orders.CanTransition(order.Status, models.OrderRefunded) {
		respondAppError(w, r, pkgerrors.PreconditionFailed(pkgerrors.ReasonWrongStatus, "order already refunded", pkgerrors.ErrOrderWrongStatus))
		return
	}
	if h.payments == nil {
		respondAppError(w, r, pkgerrors.ExternalService("payment provider not configured", nil))
		return
	}

	refund, err := h.payments.Refund(ctx, order.ProviderPaymentID, 0)
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	order, applied, err := h.orders.ApplyPayment(ctx, order.ID, orders.PaymentEvent{
		ProviderPaymentID: order.ProviderPaymentID,
		Status:            "refunded",
		StatusDetail:      "refund " + refund.ID,
		Amount:            refund.Amount,
		Source:            models.SourceAdmin,
		IPAddress:         middleware.ClientIP(r),
	})
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	claims := middleware.GetClaimsFromContext(ctx)
	event := logger.InfoEvent().
		Str("order_number", order.OrderNumber).
		Str("refund_id", refund.ID).
		Bool("applied", applied)
	if claims != nil {
		event = event.Str("by", claims.Username)
	}
	event.Msg("Order refunded")

	respondJSON(w, http.StatusOK, newOrderResponse(order))
}
