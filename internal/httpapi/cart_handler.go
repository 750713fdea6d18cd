package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kindplate/kindplate/internal/service"
)

type CartHandler struct {
	carts   *service.CartService
	timeout time.Duration
}

func NewCartHandler(carts *service.CartService, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	OfferID  int64 `json:"offer_id"`
	Quantity int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.GetCart(ctx, getCustomerID(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}

	if req.OfferID <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_OFFER_ID", "offer_id must be positive")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "INVALID_QUANTITY", "quantity must be between 1 and 99")
		return
	}

	cart, err := h.carts.AddOffer(ctx, getCustomerID(r.Context()), req.OfferID, req.Quantity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, cart)
}

// ReplaceCart handles the confirmed side of a vendor conflict: the old cart
// is dropped and started over with the new offer.
func (h *CartHandler) ReplaceCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}

	if req.OfferID <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_OFFER_ID", "offer_id must be positive")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "INVALID_QUANTITY", "quantity must be between 1 and 99")
		return
	}

	cart, err := h.carts.ReplaceWithOffer(ctx, getCustomerID(r.Context()), req.OfferID, req.Quantity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	offerID, err := strconv.ParseInt(chi.URLParam(r, "offer_id"), 10, 64)
	if err != nil || offerID <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_OFFER_ID", "offer_id must be a positive integer")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}
	if req.Quantity < 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "INVALID_QUANTITY", "quantity must be between 0 and 99")
		return
	}

	customerID := getCustomerID(r.Context())
	if errUpdate := h.carts.UpdateQuantity(ctx, customerID, offerID, req.Quantity); errUpdate != nil {
		handleServiceError(w, errUpdate)
		return
	}

	cart, err := h.carts.GetCart(ctx, customerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	offerID, err := strconv.ParseInt(chi.URLParam(r, "offer_id"), 10, 64)
	if err != nil || offerID <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_OFFER_ID", "offer_id must be a positive integer")
		return
	}

	customerID := getCustomerID(r.Context())
	if errRemove := h.carts.RemoveItem(ctx, customerID, offerID); errRemove != nil {
		handleServiceError(w, errRemove)
		return
	}

	cart, err := h.carts.GetCart(ctx, customerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	customerID := getCustomerID(r.Context())
	if err := h.carts.ClearCart(ctx, customerID); err != nil {
		handleServiceError(w, err)
		return
	}

	cart, err := h.carts.GetCart(ctx, customerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}
