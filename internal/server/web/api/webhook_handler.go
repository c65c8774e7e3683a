package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	"github.com/pandeptwidyaop/multisite/internal/server/metrics"
	"github.com/pandeptwidyaop/multisite/internal/server/orders"
	"github.com/pandeptwidyaop/multisite/internal/server/payment"
	"github.com/pandeptwidyaop/multisite/internal/server/web/middleware"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
)

// resourceID accepts the notification's data id as a JSON string or number.
type resourceID string

func (id *resourceID) UnmarshalJSON(b []byte) error {
	*id = resourceID(strings.Trim(string(bytes.TrimSpace(b)), `"`))
	return nil
}

type notification struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID resourceID `json:"id"`
	} `json:"data"`
}

// paymentWebhook handles provider notifications. The signature is checked
// before anything else; the payment itself is then re-read from the
// provider, so the notification body is never trusted for status.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var n notification
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &n); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	query := r.URL.Query()
	if n.Type == "" {
		n.Type = firstNonEmpty(query.Get("type"), query.Get("topic"))
	}
	dataID := string(n.Data.ID)
	if dataID == "" {
		dataID = firstNonEmpty(query.Get("data.id"), query.Get("id"))
	}

	ctx := r.Context()
	ip := middleware.ClientIP(r)
	log := logger.WithFields(map[string]interface{}{
		"type":                n.Type,
		"provider_payment_id": dataID,
		"request_id":          r.Header.Get(payment.HeaderRequestID),
		"client_ip":           ip,
	})

	if err := payment.VerifySignature(h.config.Payment.WebhookSecret, r.Header, dataID); err != nil {
		h.metrics.ObserveWebhook(metrics.WebhookBadSignature)
		log.Warn().Err(err).Msg("Rejected payment notification")
		respondError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	if n.Type != "payment" || dataID == "" {
		h.metrics.ObserveWebhook(metrics.WebhookIgnored)
		log.Debug().Msg("Ignored notification")
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if h.payments == nil {
		h.metrics.ObserveWebhook(metrics.WebhookError)
		respondAppError(w, r, pkgerrors.ExternalService("payment provider not configured", nil))
		return
	}

	pay, err := h.payments.GetPayment(ctx, dataID)
	if err != nil {
		h.metrics.ObserveWebhook(metrics.WebhookError)
		respondAppError(w, r, err)
		return
	}

	order, err := h.orders.FindByNumber(ctx, pay.ExternalReference)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			// Acknowledge so the provider stops retrying a payment that is
			// not ours.
			h.metrics.ObserveWebhook(metrics.WebhookUnknownOrder)
			log.Warn().Str("reference", pay.ExternalReference).Msg("Payment notification for unknown order")
			respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		h.metrics.ObserveWebhook(metrics.WebhookError)
		respondAppError(w, r, err)
		return
	}

	raw := pay.Raw
	if len(raw) == 0 {
		raw = body
	}
	order, applied, err := h.orders.ApplyPayment(ctx, order.ID, orders.PaymentEvent{
		ProviderPaymentID: pay.ID,
		Status:            pay.Status,
		StatusDetail:      pay.StatusDetail,
		Amount:            pay.Amount,
		Raw:               raw,
		Source:            models.SourceWebhook,
		IPAddress:         ip,
	})
	if err != nil {
		h.metrics.ObserveWebhook(metrics.WebhookError)
		respondAppError(w, r, err)
		return
	}

	outcome := metrics.WebhookDuplicate
	if applied {
		outcome = metrics.WebhookApplied
	}
	h.metrics.ObserveWebhook(outcome)
	log.Info().
		Str("order_number", order.OrderNumber).
		Str("provider_status", pay.Status).
		Str("status", string(order.Status)).
		Bool("applied", applied).
		Msg("Payment notification handled")

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"order_number": order.OrderNumber,
		"status":       order.Status,
		"applied":      applied,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
