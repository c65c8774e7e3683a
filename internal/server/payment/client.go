package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
)

// Config configures the provider client.
type Config struct {
	BaseURL         string
	AccessToken     string
	Timeout         time.Duration
	RetryCount      int
	NotificationURL string
}

// CreateRequest is a card payment for an order.
type CreateRequest struct {
	Amount          int64
	PayerEmail      string
	PayerName       string
	Description     string
	CardToken       string
	PaymentMethodID string
	Installments    int
	// Reference is the order number echoed back as external_reference.
	Reference string
	// IdempotencyKey makes retries of the same charge safe.
	IdempotencyKey string
}

// Payment is the provider's view of a payment.
type Payment struct {
	ID                string
	Status            string
	StatusDetail      string
	ExternalReference string
	PayerEmail        string
	Amount            int64
	Raw               []byte
}

// Refund is the result of a refund request.
type Refund struct {
	ID     string
	Status string
	Amount int64
}

type payer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type createBody struct {
	TransactionAmount float64 `json:"transaction_amount"`
	Token             string  `json:"token"`
	Description       string  `json:"description"`
	Installments      int     `json:"installments"`
	PaymentMethodID   string  `json:"payment_method_id,omitempty"`
	ExternalReference string  `json:"external_reference,omitempty"`
	NotificationURL   string  `json:"notification_url,omitempty"`
	Payer             payer   `json:"payer"`
}

type paymentResponse struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	StatusDetail      string      `json:"status_detail"`
	ExternalReference string      `json:"external_reference"`
	TransactionAmount float64     `json:"transaction_amount"`
	Payer             struct {
		Email string `json:"email"`
	} `json:"payer"`
}

type refundResponse struct {
	ID     json.Number `json:"id"`
	Status string      `json:"status"`
	Amount float64     `json:"amount"`
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Status  int    `json:"status"`
}

// Client talks to the payment provider's REST API.
type Client struct {
	http *resty.Client
	cfg  Config
}

// NewClient creates a provider client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}

	http := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.AccessToken != "" {
		http.SetAuthToken(cfg.AccessToken)
	}

	return &Client{http: http, cfg: cfg}
}

// CreatePayment charges a tokenized card. Any status the provider reports
// (approved, rejected, in_process...) is a successful call; only transport
// failures and malformed answers are errors.
func (c *Client) CreatePayment(ctx context.Context, req CreateRequest) (*Payment, error) {
	if req.Amount <= 0 {
		return nil, pkgerrors.Validation("amount", "amount must be positive", nil)
	}
	if req.CardToken == "" {
		return nil, pkgerrors.Validation("card_token", "card token required", nil)
	}
	if req.Installments <= 0 {
		req.Installments = 1
	}

	body := createBody{
		TransactionAmount: float64(req.Amount),
		Token:             req.CardToken,
		Description:       req.Description,
		Installments:      req.Installments,
		PaymentMethodID:   req.PaymentMethodID,
		ExternalReference: req.Reference,
		NotificationURL:   c.cfg.NotificationURL,
		Payer:             payer{Email: req.PayerEmail},
	}
	if fields := strings.Fields(req.PayerName); len(fields) > 0 {
		body.Payer.FirstName = fields[0]
		body.Payer.LastName = strings.Join(fields[1:], " ")
	}

	r := c.http.R().SetContext(ctx).SetBody(body)
	if req.IdempotencyKey != "" {
		r.SetHeader("X-Idempotency-Key", req.IdempotencyKey)
	}

	logger.InfoEvent().
		Str("reference", req.Reference).
		Int64("amount", req.Amount).
		Msg("Creating provider payment")

	resp, err := r.Post("/v1/payments")
	payment, err := decodePayment(resp, err, "create payment")
	if err != nil {
		return nil, err
	}

	logger.InfoEvent().
		Str("reference", req.Reference).
		Str("provider_payment_id", payment.ID).
		Str("status", payment.Status).
		Str("status_detail", payment.StatusDetail).
		Msg("Provider payment created")
	return payment, nil
}

// GetPayment fetches the authoritative state of a payment.
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	if id == "" {
		return nil, pkgerrors.Validation("payment_id", "payment id required", nil)
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		Get("/v1/payments/{id}")
	return decodePayment(resp, err, "get payment")
}

// Refund returns the full amount of a payment, or amount when positive.
func (c *Client) Refund(ctx context.Context, id string, amount int64) (*Refund, error) {
	if id == "" {
		return nil, pkgerrors.Validation("payment_id", "payment id required", nil)
	}
	body := map[string]interface{}{}
	if amount > 0 {
		body["amount"] = float64(amount)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetBody(body).
		Post("/v1/payments/{id}/refunds")
	if err := checkResponse(resp, err, "refund payment"); err != nil {
		return nil, err
	}

	var out refundResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil || out.ID.String() == "" {
		return nil, pkgerrors.ExternalService("malformed refund response", err)
	}

	logger.InfoEvent().
		Str("provider_payment_id", id).
		Str("refund_id", out.ID.String()).
		Str("status", out.Status).
		Msg("Provider refund created")
	return &Refund{ID: out.ID.String(), Status: out.Status, Amount: int64(math.Round(out.Amount))}, nil
}

func checkResponse(resp *resty.Response, err error, op string) error {
	if err != nil {
		logger.ErrorEvent().Err(err).Str("op", op).Msg("Payment provider unreachable")
		return pkgerrors.ExternalService("payment provider unreachable", err)
	}
	if resp.IsError() {
		var apiErr apiError
		_ = json.Unmarshal(resp.Body(), &apiErr)
		logger.ErrorEvent().
			Int("status", resp.StatusCode()).
			Str("message", apiErr.Message).
			Str("op", op).
			Msg("Payment provider returned an error")
		return pkgerrors.ExternalService(
			fmt.Sprintf("payment provider returned %d", resp.StatusCode()),
			fmt.Errorf("%s: %s", op, apiErr.Message),
		)
	}
	return nil
}

func decodePayment(resp *resty.Response, err error, op string) (*Payment, error) {
	if err := checkResponse(resp, err, op); err != nil {
		return nil, err
	}

	var out paymentResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, pkgerrors.ExternalService("malformed payment response", err)
	}
	if out.ID.String() == "" || out.Status == "" {
		return nil, pkgerrors.ExternalService("malformed payment response", fmt.Errorf("%s: missing id or status", op))
	}

	return &Payment{
		ID:                out.ID.String(),
		Status:            out.Status,
		StatusDetail:      out.StatusDetail,
		ExternalReference: out.ExternalReference,
		PayerEmail:        out.Payer.Email,
		Amount:            int64(math.Round(out.TransactionAmount)),
		Raw:               resp.Body(),
	}, nil
}
