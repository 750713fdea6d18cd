package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kindplate/kindplate/internal/domain"
	"github.com/kindplate/kindplate/internal/repository"
)

type OffersHandler struct {
	offers  repository.OfferRepository
	timeout time.Duration
}

func NewOffersHandler(offers repository.OfferRepository, timeout time.Duration) *OffersHandler {
	return &OffersHandler{
		offers:  offers,
		timeout: timeout,
	}
}

type OfferDTO struct {
	ID              int64        `json:"id"`
	BusinessID      int64        `json:"business_id"`
	Title           string       `json:"title"`
	Description     string       `json:"description,omitempty"`
	OriginalPrice   domain.Money `json:"original_price"`
	DiscountedPrice domain.Money `json:"discounted_price"`
	Quantity        int          `json:"quantity"`
	PickupStart     string       `json:"pickup_start"`
	PickupEnd       string       `json:"pickup_end"`
	Active          bool         `json:"active"`
	CreatedAt       time.Time    `json:"created_at"`
}

func toOfferDTO(o *domain.Offer) OfferDTO {
	return OfferDTO{
		ID:              o.ID,
		BusinessID:      o.BusinessID,
		Title:           o.Title,
		Description:     o.Description,
		OriginalPrice:   o.OriginalPrice,
		DiscountedPrice: o.DiscountedPrice,
		Quantity:        o.Quantity,
		PickupStart:     o.PickupStart,
		PickupEnd:       o.PickupEnd,
		Active:          o.Active,
		CreatedAt:       o.CreatedAt,
	}
}

type CreateOfferRequestDTO struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	OriginalPrice   string `json:"original_price"`
	DiscountedPrice string `json:"discounted_price"`
	Currency        string `json:"currency"`
	Quantity        int    `json:"quantity"`
	PickupStart     string `json:"pickup_start"`
	PickupEnd       string `json:"pickup_end"`
}

// ListMine returns every offer of the authenticated business, active or not.
func (h *OffersHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	offers, err := h.offers.ListOffersByBusiness(ctx, getBusinessID(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	dtos := make([]OfferDTO, 0, len(offers))
	for _, o := range offers {
		dtos = append(dtos, toOfferDTO(o))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GetOffer is the business-side fetch, scoped to the caller's own offers.
func (h *OffersHandler) GetOffer(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	offerID, err := strconv.ParseInt(chi.URLParam(r, "offer_id"), 10, 64)
	if err != nil || offerID <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_OFFER_ID", "offer_id must be a positive integer")
		return
	}

	offer, err := h.offers.GetOffer(ctx, offerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if offer.BusinessID != getBusinessID(r.Context()) {
		handleServiceError(w, repository.ErrOfferNotFound)
		return
	}

	respondJSON(w, http.StatusOK, toOfferDTO(offer))
}

// GetActiveOffer is the customer-side fetch. Paused or deleted offers read as
// not found.
func (h *OffersHandler) GetActiveOffer(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	offerID, err := strconv.ParseInt(chi.URLParam(r, "offer_id"), 10, 64)
	if err != nil || offerID <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_OFFER_ID", "offer_id must be a positive integer")
		return
	}

	offer, err := h.offers.GetOffer(ctx, offerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !offer.Active {
		handleServiceError(w, repository.ErrOfferNotFound)
		return
	}

	respondJSON(w, http.StatusOK, toOfferDTO(offer))
}

func (h *OffersHandler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateOfferRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}

	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "INVALID_TITLE", "title must not be empty")
		return
	}
	if req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_QUANTITY", "quantity must be positive")
		return
	}
	if !validClockTime(req.PickupStart) || !validClockTime(req.PickupEnd) {
		respondError(w, http.StatusBadRequest, "INVALID_PICKUP_WINDOW", "pickup times must be HH:MM")
		return
	}

	original, err := parsePrice(req.OriginalPrice, req.Currency)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PRICE", "original_price is not a valid amount")
		return
	}
	discounted, err := parsePrice(req.DiscountedPrice, req.Currency)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PRICE", "discounted_price is not a valid amount")
		return
	}
	if discounted.Amount.GreaterThan(original.Amount) {
		respondError(w, http.StatusBadRequest, "INVALID_PRICE", "discounted_price must not exceed original_price")
		return
	}

	offer := &domain.Offer{
		BusinessID:      getBusinessID(r.Context()),
		Title:           req.Title,
		Description:     req.Description,
		OriginalPrice:   original,
		DiscountedPrice: discounted,
		Quantity:        req.Quantity,
		PickupStart:     req.PickupStart,
		PickupEnd:       req.PickupEnd,
		Active:          true,
	}

	if errCreate := h.offers.CreateOffer(ctx, offer); errCreate != nil {
		handleServiceError(w, errCreate)
		return
	}

	respondJSON(w, http.StatusCreated, toOfferDTO(offer))
}

func (h *OffersHandler) DeleteOffer(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	offerID, err := strconv.ParseInt(chi.URLParam(r, "offer_id"), 10, 64)
	if err != nil || offerID <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_OFFER_ID", "offer_id must be a positive integer")
		return
	}

	if errDelete := h.offers.DeleteOffer(ctx, offerID, getBusinessID(r.Context())); errDelete != nil {
		handleServiceError(w, errDelete)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ToggleOffer flips an offer between active and paused.
func (h *OffersHandler) ToggleOffer(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	offerID, err := strconv.ParseInt(chi.URLParam(r, "offer_id"), 10, 64)
	if err != nil || offerID <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_OFFER_ID", "offer_id must be a positive integer")
		return
	}

	active, err := h.offers.ToggleOffer(ctx, offerID, getBusinessID(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"active": active})
}

func parsePrice(amount, currency string) (domain.Money, error) {
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.Money{}, err
	}
	return domain.NewMoney(dec, currency)
}

// validClockTime checks the "HH:MM" shape used for pickup windows.
func validClockTime(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	hh, err := strconv.Atoi(s[:2])
	if err != nil || hh < 0 || hh > 23 {
		return false
	}
	mm, err := strconv.Atoi(s[3:])
	if err != nil || mm < 0 || mm > 59 {
		return false
	}
	return true
}
