package service

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart         = errors.New("cart is empty, nothing to checkout")
	ErrOfferUnavailable  = errors.New("offer is not available")
	ErrIllegalTransition = errors.New("illegal transition of order status")
	ErrNotOwner          = errors.New("order does not belong to this account")
	ErrOrderNotPayable   = errors.New("order is not in a payable state")

	// Redemption failures, surfaced to the scanner app as machine-readable codes.
	ErrAlreadyPickedUp = errors.New("order already picked up")
	ErrQRExpired       = errors.New("qr payload expired")
	ErrCodeNotFound    = errors.New("pickup code not found")
	ErrNotRedeemable   = errors.New("order cannot be redeemed")
)

// VendorConflictError signals that adding the offer would mix vendors in one
// cart. Carries both business names so the client can render the replacement
// confirmation dialog.
type VendorConflictError struct {
	CurrentBusinessID   int64
	CurrentBusinessName string
	NewBusinessID       int64
	NewBusinessName     string
}

func (e *VendorConflictError) Error() string {
	return fmt.Sprintf("cart already holds items from %q, cannot add items from %q",
		e.CurrentBusinessName, e.NewBusinessName)
}
