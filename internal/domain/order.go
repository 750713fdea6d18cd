package domain

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderItem struct {
	OfferID     int64           `json:"offer_id"`
	Title       string          `json:"title"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	PickupStart string          `json:"pickup_start"`
	PickupEnd   string          `json:"pickup_end"`
}

type Order struct {
	ID                uuid.UUID
	CustomerID        string
	BusinessID        int64
	BusinessName      string
	BusinessAddress   string
	Items             []OrderItem
	PickupStart       string
	PickupEnd         string
	Subtotal          decimal.Decimal
	ServiceFee        decimal.Decimal
	PromocodeDiscount decimal.Decimal
	Total             decimal.Decimal
	Currency          string
	Notes             string
	Status            OrderStatus
	PickupCode        string
	IdempotencyKey    string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OrderDraft is the transient checkout payload assembled from the cart. It is
// never persisted as-is; placing an order materializes it.
type OrderDraft struct {
	Items             []OrderItem
	PickupStart       string
	PickupEnd         string
	BusinessID        int64
	BusinessName      string
	BusinessAddress   string
	Subtotal          decimal.Decimal
	ServiceFee        decimal.Decimal
	PromocodeDiscount decimal.Decimal
	Total             decimal.Decimal
	Currency          string
	Notes             string
}

// pickupCodeAlphabet omits characters easy to misread at the counter.
const pickupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const pickupCodeLength = 8

// NewPickupCode generates the short code shown at redemption.
func NewPickupCode() string {
	b := make([]byte, pickupCodeLength)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = pickupCodeAlphabet[int(b[i])%len(pickupCodeAlphabet)]
	}
	return string(b)
}
