package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment records one payment-initiation request against an order. The
// idempotency key makes repeated submissions return the same payment URL
// instead of charging twice.
type Payment struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	IdempotencyKey string
	PaymentURL     string
	Amount         decimal.Decimal
	Currency       string
	CreatedAt      time.Time
}
