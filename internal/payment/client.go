package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Status is the outcome of a charge attempt
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Result is the gateway's answer to a charge request
type Result struct {
	Status    Status `json:"status"`
	PaymentID string `json:"payment_id"`
	Message   string `json:"message,omitempty"`
}

// Client charges a booking. A transport error and a gateway decline are both
// failures to the booking flow; implementations must not retry on their own,
// the user re-submits instead.
type Client interface {
	Charge(ctx context.Context, bookingRef, userID string, amount float64) (*Result, error)
}

// HTTPConfig holds payment gateway client settings
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPClient calls the payment gateway over HTTP
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a payment gateway client
func NewHTTPClient(cfg *HTTPConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type chargeRequest struct {
	BookingRef string  `json:"booking_ref"`
	UserID     string  `json:"user_id"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
}

// Charge submits a single charge attempt. One attempt only: charging is not
// idempotent on the gateway side, so a timeout must surface to the caller
// instead of being retried.
func (c *HTTPClient) Charge(ctx context.Context, bookingRef, userID string, amount float64) (*Result, error) {
	body, err := json.Marshal(chargeRequest{
		BookingRef: bookingRef,
		UserID:     userID,
		Amount:     amount,
		Currency:   "INR",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal charge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/payments/charge", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read charge response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &Result{
			Status:  StatusFailed,
			Message: fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, string(data)),
		}, nil
	}

	result := &Result{}
	if err := json.Unmarshal(data, result); err != nil {
		return nil, fmt.Errorf("decode charge response: %w", err)
	}
	return result, nil
}
