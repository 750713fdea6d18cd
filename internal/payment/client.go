package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

var ErrProviderUnavailable = errors.New("payment provider unavailable")

// Request describes one payment to create with the provider.
type Request struct {
	OrderID   uuid.UUID       `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	ReturnURL string          `json:"return_url"`
}

// Result carries the redirect URL the customer's browser is sent to.
type Result struct {
	PaymentID  string `json:"payment_id"`
	PaymentURL string `json:"payment_url"`
}

type Provider interface {
	CreatePayment(ctx context.Context, req Request) (*Result, error)
}

// Client calls the external payment provider over HTTP. All calls run through
// a circuit breaker so a dead provider fails fast instead of tying up request
// handlers for the full timeout.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*Result]
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	settings := gobreaker.Settings{
		Name:    "payment-provider",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    gobreaker.NewCircuitBreaker[*Result](settings),
	}
}

func (c *Client) CreatePayment(ctx context.Context, req Request) (*Result, error) {
	result, err := c.breaker.Execute(func() (*Result, error) {
		return c.createPayment(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrProviderUnavailable
		}
		return nil, err
	}
	return result, nil
}

func (c *Client) createPayment(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call payment provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("payment provider returned status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}
	if result.PaymentURL == "" {
		return nil, errors.New("payment provider returned empty payment_url")
	}

	return &result, nil
}
