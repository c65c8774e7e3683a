package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		BaseURL:     server.URL,
		AccessToken: "TEST-token",
		Timeout:     2 * time.Second,
		RetryCount:  0,
	})
}

func TestCreatePayment(t *testing.T) {
	var got map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments", r.URL.Path)
		assert.Equal(t, "Bearer TEST-token", r.Header.Get("Authorization"))
		assert.Equal(t, "order-id-1", r.Header.Get("X-Idempotency-Key"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 123456789, "status": "approved", "status_detail": "accredited",
			"external_reference": "ORD-2026-0001", "transaction_amount": 150000,
			"payer": {"email": "ana@example.com"}}`))
	})

	payment, err := client.CreatePayment(context.Background(), CreateRequest{
		Amount:         150000,
		PayerEmail:     "ana@example.com",
		PayerName:      "Ana María Soto",
		Description:    "Plan Esencial",
		CardToken:      "card-tok",
		Reference:      "ORD-2026-0001",
		IdempotencyKey: "order-id-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "123456789", payment.ID)
	assert.Equal(t, "approved", payment.Status)
	assert.Equal(t, "accredited", payment.StatusDetail)
	assert.Equal(t, int64(150000), payment.Amount)
	assert.Equal(t, "ORD-2026-0001", payment.ExternalReference)
	assert.NotEmpty(t, payment.Raw)

	assert.Equal(t, 150000.0, got["transaction_amount"])
	assert.Equal(t, "ORD-2026-0001", got["external_reference"])
	assert.Equal(t, 1.0, got["installments"])
	payer := got["payer"].(map[string]interface{})
	assert.Equal(t, "Ana", payer["first_name"])
	assert.Equal(t, "María Soto", payer["last_name"])
}

func TestCreatePayment_RejectedIsNotAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 1, "status": "rejected", "status_detail": "cc_rejected_insufficient_amount"}`))
	})

	payment, err := client.CreatePayment(context.Background(), CreateRequest{Amount: 1, CardToken: "x"})
	require.NoError(t, err)
	assert.Equal(t, "rejected", payment.Status)
	assert.Equal(t, "Fondos insuficientes", StatusMessage(payment.Status, payment.StatusDetail))
}

func TestCreatePayment_ExternalFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message": "internal_error"}`))
		}},
		{"bad request", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message": "invalid card token"}`))
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>gateway</html>`))
		}},
		{"missing status", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"id": 42}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			_, err := client.CreatePayment(context.Background(), CreateRequest{Amount: 100, CardToken: "x"})
			require.Error(t, err)
			assert.True(t, pkgerrors.IsExternal(err))
		})
	}
}

func TestCreatePayment_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(Config{BaseURL: url, Timeout: time.Second})
	_, err := client.CreatePayment(context.Background(), CreateRequest{Amount: 100, CardToken: "x"})
	assert.True(t, pkgerrors.IsExternal(err))
}

func TestCreatePayment_Validation(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := client.CreatePayment(context.Background(), CreateRequest{Amount: 0, CardToken: "x"})
	assert.True(t, pkgerrors.IsValidation(err))
	_, err = client.CreatePayment(context.Background(), CreateRequest{Amount: 10})
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestGetPayment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/payments/987", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": "987", "status": "refunded", "external_reference": "ORD-2026-0007", "transaction_amount": 250000.0}`))
	})

	payment, err := client.GetPayment(context.Background(), "987")
	require.NoError(t, err)
	assert.Equal(t, "987", payment.ID)
	assert.Equal(t, "refunded", payment.Status)
	assert.Equal(t, "ORD-2026-0007", payment.ExternalReference)
	assert.Equal(t, int64(250000), payment.Amount)
}

func TestGetPayment_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "Payment not found"}`))
	})
	_, err := client.GetPayment(context.Background(), "1")
	assert.True(t, pkgerrors.IsExternal(err))
}

func TestRefund(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/55/refunds", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{}`, string(body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 777, "status": "approved", "amount": 150000}`))
	})

	refund, err := client.Refund(context.Background(), "55", 0)
	require.NoError(t, err)
	assert.Equal(t, "777", refund.ID)
	assert.Equal(t, int64(150000), refund.Amount)
}

func TestVerifySignature(t *testing.T) {
	const secret = "whsec"
	header := func(sig, requestID string) http.Header {
		h := http.Header{}
		if sig != "" {
			h.Set(HeaderSignature, sig)
		}
		h.Set(HeaderRequestID, requestID)
		return h
	}
	valid := Sign(secret, "123", "req-1", "1700000000")

	tests := []struct {
		name   string
		secret string
		header http.Header
		dataID string
		ok     bool
	}{
		{"valid", secret, header(valid, "req-1"), "123", true},
		{"wrong data id", secret, header(valid, "req-1"), "124", false},
		{"wrong request id", secret, header(valid, "req-2"), "123", false},
		{"wrong secret", "other", header(valid, "req-1"), "123", false},
		{"no secret configured", "", header(valid, "req-1"), "123", false},
		{"missing header", secret, header("", "req-1"), "123", false},
		{"malformed header", secret, header("garbage", "req-1"), "123", false},
		{"missing v1", secret, header("ts=1700000000", "req-1"), "123", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(tt.secret, tt.header, tt.dataID)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, pkgerrors.ErrInvalidSignature)
			}
		})
	}
}

func TestStatusMessage(t *testing.T) {
	assert.Equal(t, "¡Pago aprobado!", StatusMessage("approved", ""))
	assert.Equal(t, "Pago rechazado. Intenta con otra tarjeta.", StatusMessage("rejected", "unknown"))
	assert.Equal(t, "Estado: weird", StatusMessage("weird", ""))
}
