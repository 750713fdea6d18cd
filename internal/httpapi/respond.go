package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/kindplate/kindplate/internal/cartstore"
	"github.com/kindplate/kindplate/internal/payment"
	"github.com/kindplate/kindplate/internal/repository"
	"github.com/kindplate/kindplate/internal/service"
)

type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// vendorConflictDetails names both businesses so the client can render the
// "replace cart?" dialog.
type vendorConflictDetails struct {
	CurrentBusinessID   int64  `json:"current_business_id"`
	CurrentBusinessName string `json:"current_business_name"`
	NewBusinessID       int64  `json:"new_business_id"`
	NewBusinessName     string `json:"new_business_name"`
}

// handleServiceError maps domain and service errors to HTTP statuses and the
// machine-readable codes clients switch on.
func handleServiceError(w http.ResponseWriter, err error) {
	var conflict *service.VendorConflictError
	if errors.As(err, &conflict) {
		respondJSON(w, http.StatusConflict, ErrorResponse{
			Error: conflict.Error(),
			Code:  "VENDOR_CONFLICT",
			Details: vendorConflictDetails{
				CurrentBusinessID:   conflict.CurrentBusinessID,
				CurrentBusinessName: conflict.CurrentBusinessName,
				NewBusinessID:       conflict.NewBusinessID,
				NewBusinessName:     conflict.NewBusinessName,
			},
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrAlreadyPickedUp):
		respondError(w, http.StatusConflict, "ALREADY_PICKED_UP", "order already picked up")
	case errors.Is(err, service.ErrQRExpired):
		respondError(w, http.StatusGone, "QR_EXPIRED", "QR code expired, ask the customer to refresh it")
	case errors.Is(err, service.ErrCodeNotFound):
		respondError(w, http.StatusNotFound, "CODE_NOT_FOUND", "pickup code not found")
	case errors.Is(err, service.ErrNotRedeemable):
		respondError(w, http.StatusConflict, "NOT_REDEEMABLE", "order cannot be redeemed in its current state")
	case errors.Is(err, service.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "EMPTY_CART", "cart is empty")
	case errors.Is(err, service.ErrOfferUnavailable):
		respondError(w, http.StatusConflict, "OFFER_UNAVAILABLE", "offer is inactive or sold out")
	case errors.Is(err, service.ErrOrderNotPayable):
		respondError(w, http.StatusConflict, "ORDER_NOT_PAYABLE", "order is not awaiting payment")
	case errors.Is(err, service.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "ILLEGAL_TRANSITION", "order status does not allow this operation")
	case errors.Is(err, service.ErrNotOwner):
		respondError(w, http.StatusForbidden, "FORBIDDEN", "resource belongs to another account")
	case errors.Is(err, repository.ErrOfferNotFound):
		respondError(w, http.StatusNotFound, "OFFER_NOT_FOUND", "offer not found")
	case errors.Is(err, repository.ErrBusinessNotFound):
		respondError(w, http.StatusNotFound, "BUSINESS_NOT_FOUND", "business not found")
	case errors.Is(err, repository.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found")
	case errors.Is(err, repository.ErrInsufficientQuantity):
		respondError(w, http.StatusConflict, "OFFER_SOLD_OUT", "offer quantity changed, refresh the cart")
	case errors.Is(err, cartstore.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "ITEM_NOT_FOUND", "item is not in the cart")
	case errors.Is(err, payment.ErrProviderUnavailable):
		respondError(w, http.StatusServiceUnavailable, "PAYMENT_UNAVAILABLE", "payment provider is unavailable, try again later")
	default:
		log.Printf("internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
