package api

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
)

func checkoutBody(cardToken string) map[string]interface{} {
	return map[string]interface{}{
		"plan_slug":  "essential",
		"email":      "Ana@Example.com",
		"buyer_name": "Ana Soto",
		"card_token": cardToken,
	}
}

func TestListPlans(t *testing.T) {
	f := setupAPI(t)

	status, plans := f.list(t, "/api/plans", "")
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, plans)

	slugs := make([]string, 0, len(plans))
	for _, p := range plans {
		slugs = append(slugs, p["slug"].(string))
	}
	assert.Contains(t, slugs, "essential")
}

func TestCheckout_Approved(t *testing.T) {
	f := setupAPI(t)

	status, body := f.call(t, http.MethodPost, "/api/checkout", "", checkoutBody("approve"))
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, string(models.OrderPaid), body["status"])
	assert.Equal(t, "approved", body["provider_status"])
	assert.NotEmpty(t, body["message"])
	assert.True(t, strings.HasPrefix(body["onboarding_url"].(string), "/onboarding/"))

	order, err := f.orders.FindByNumber(context.Background(), body["order_number"].(string))
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", order.Email)
	assert.NotEmpty(t, order.ProviderPaymentID)

	logs, err := f.orders.Logs(context.Background(), order.ID)
	require.NoError(t, err)
	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	assert.Contains(t, actions, models.ActionPaymentApproved)
}

func TestCheckout_Rejected(t *testing.T) {
	f := setupAPI(t)

	status, body := f.call(t, http.MethodPost, "/api/checkout", "", checkoutBody("declined-card"))
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, string(models.OrderFailed), body["status"])
	assert.NotEmpty(t, body["message"])
	assert.Nil(t, body["onboarding_url"])
}

func TestCheckout_Validation(t *testing.T) {
	f := setupAPI(t)

	status, body := f.call(t, http.MethodPost, "/api/checkout", "", checkoutBody(""))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "card_token", body["field"])

	req := checkoutBody("approve")
	req["email"] = "not-an-email"
	status, body = f.call(t, http.MethodPost, "/api/checkout", "", req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "email", body["field"])

	req = checkoutBody("approve")
	req["plan_slug"] = "platinum"
	status, _ = f.call(t, http.MethodPost, "/api/checkout", "", req)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCheckout_ProviderFailureLeavesOrderPending(t *testing.T) {
	f := setupAPI(t)
	f.provider.setFail(true)

	status, body := f.call(t, http.MethodPost, "/api/checkout", "", checkoutBody("approve"))
	require.Equal(t, http.StatusBadGateway, status, body)
	assert.Equal(t, "EXTERNAL_SERVICE", body["code"])

	var order models.Order
	require.NoError(t, f.db.Order("created_at DESC").First(&order).Error)
	assert.Equal(t, models.OrderPending, order.Status)

	logs, err := f.orders.Logs(context.Background(), order.ID)
	require.NoError(t, err)
	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	assert.Contains(t, actions, models.ActionPaymentError)
}

func TestGetOrder_RequiresSuperAdmin(t *testing.T) {
	f := setupAPI(t)
	order, _ := f.paidOrder(t, "ana@example.com")
	_, ownerToken := f.tenantWithOwner(t, "acme")

	status, _ := f.call(t, http.MethodGet, "/api/orders/"+order.OrderNumber, "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = f.call(t, http.MethodGet, "/api/orders/"+order.OrderNumber, ownerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := f.call(t, http.MethodGet, "/api/orders/"+order.OrderNumber, f.adminToken(t), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["logs"], 1)
}

func TestRefundOrder(t *testing.T) {
	f := setupAPI(t)
	admin := f.adminToken(t)

	status, body := f.call(t, http.MethodPost, "/api/checkout", "", checkoutBody("approve"))
	require.Equal(t, http.StatusCreated, status, body)
	number := body["order_number"].(string)

	status, body = f.call(t, http.MethodPost, "/api/orders/"+number+"/refund", admin, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, string(models.OrderRefunded), body["status"])
	assert.Len(t, f.provider.refunds, 1)

	// A refunded order has nothing left to refund.
	status, body = f.call(t, http.MethodPost, "/api/orders/"+number+"/refund", admin, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "wrong_status", body["reason"])
}

func TestRefundOrder_Expired(t *testing.T) {
	f := setupAPI(t)
	admin := f.adminToken(t)

	status, body := f.call(t, http.MethodPost, "/api/checkout", "", checkoutBody("approve"))
	require.Equal(t, http.StatusCreated, status, body)
	number := body["order_number"].(string)
	token := strings.TrimPrefix(body["onboarding_url"].(string), "/onboarding/")

	// The buyer never onboards and the link lapses.
	f.now = f.now.Add(100 * time.Hour)
	status, _ = f.call(t, http.MethodGet, "/api/onboarding/"+token, "", nil)
	require.Equal(t, http.StatusGone, status)
	order, err := f.orders.FindByNumber(context.Background(), number)
	require.NoError(t, err)
	require.Equal(t, models.OrderExpired, order.Status)

	status, body = f.call(t, http.MethodPost, "/api/orders/"+number+"/refund", admin, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, string(models.OrderRefunded), body["status"])
	assert.Len(t, f.provider.refunds, 1)
}

func TestRefundOrder_NothingCaptured(t *testing.T) {
	f := setupAPI(t)

	status, body := f.call(t, http.MethodPost, "/api/checkout", "", checkoutBody("declined-card"))
	require.Equal(t, http.StatusCreated, status, body)

	status, body = f.call(t, http.MethodPost, "/api/orders/"+body["order_number"].(string)+"/refund", f.adminToken(t), nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "wrong_status", body["reason"])
	assert.Empty(t, f.provider.refunds)
}
