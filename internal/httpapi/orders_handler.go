package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kindplate/kindplate/internal/domain"
	"github.com/kindplate/kindplate/internal/service"
)

type OrdersHandler struct {
	checkout   *service.CheckoutService
	redemption *service.RedemptionService
	timeout    time.Duration
}

func NewOrdersHandler(checkout *service.CheckoutService, redemption *service.RedemptionService, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		checkout:   checkout,
		redemption: redemption,
		timeout:    timeout,
	}
}

type PlaceOrderRequestDTO struct {
	Notes string `json:"notes"`
}

type OrderDTO struct {
	ID                string             `json:"id"`
	BusinessID        int64              `json:"business_id"`
	BusinessName      string             `json:"business_name"`
	BusinessAddress   string             `json:"business_address"`
	Items             []domain.OrderItem `json:"items"`
	PickupStart       string             `json:"pickup_start"`
	PickupEnd         string             `json:"pickup_end"`
	Subtotal          decimal.Decimal    `json:"subtotal"`
	ServiceFee        decimal.Decimal    `json:"service_fee"`
	PromocodeDiscount decimal.Decimal    `json:"promocode_discount"`
	Total             decimal.Decimal    `json:"total"`
	Currency          string             `json:"currency"`
	Notes             string             `json:"notes,omitempty"`
	Status            string             `json:"status"`
	PickupCode        string             `json:"pickup_code"`
	CreatedAt         time.Time          `json:"created_at"`
}

type DraftDTO struct {
	Items             []domain.OrderItem `json:"items"`
	PickupStart       string             `json:"pickup_start"`
	PickupEnd         string             `json:"pickup_end"`
	BusinessName      string             `json:"business_name"`
	BusinessAddress   string             `json:"business_address"`
	Subtotal          decimal.Decimal    `json:"subtotal"`
	ServiceFee        decimal.Decimal    `json:"service_fee"`
	PromocodeDiscount decimal.Decimal    `json:"promocode_discount"`
	Total             decimal.Decimal    `json:"total"`
	Currency          string             `json:"currency"`
}

func toOrderDTO(o *domain.Order) OrderDTO {
	return OrderDTO{
		ID:                o.ID.String(),
		BusinessID:        o.BusinessID,
		BusinessName:      o.BusinessName,
		BusinessAddress:   o.BusinessAddress,
		Items:             o.Items,
		PickupStart:       o.PickupStart,
		PickupEnd:         o.PickupEnd,
		Subtotal:          o.Subtotal,
		ServiceFee:        o.ServiceFee,
		PromocodeDiscount: o.PromocodeDiscount,
		Total:             o.Total,
		Currency:          o.Currency,
		Notes:             o.Notes,
		Status:            o.Status.String(),
		PickupCode:        o.PickupCode,
		CreatedAt:         o.CreatedAt,
	}
}

// GetDraft previews the order built from the current cart without persisting
// anything.
func (h *OrdersHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	draft, err := h.checkout.PreviewDraft(ctx, getCustomerID(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, DraftDTO{
		Items:             draft.Items,
		PickupStart:       draft.PickupStart,
		PickupEnd:         draft.PickupEnd,
		BusinessName:      draft.BusinessName,
		BusinessAddress:   draft.BusinessAddress,
		Subtotal:          draft.Subtotal,
		ServiceFee:        draft.ServiceFee,
		PromocodeDiscount: draft.PromocodeDiscount,
		Total:             draft.Total,
		Currency:          draft.Currency,
	})
}

func (h *OrdersHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PlaceOrderRequestDTO
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
			return
		}
	}
	if len(req.Notes) > 500 {
		respondError(w, http.StatusBadRequest, "INVALID_NOTES", "notes must be at most 500 characters")
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	order, err := h.checkout.PlaceOrder(ctx, getCustomerID(r.Context()), idempotencyKey, req.Notes)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toOrderDTO(order))
}

func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.checkout.ListOrders(ctx, getCustomerID(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	dtos := make([]OrderDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, toOrderDTO(o))
	}
	respondJSON(w, http.StatusOK, dtos)
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ORDER_ID", "order_id must be a UUID")
		return
	}

	order, err := h.checkout.GetOrder(ctx, getCustomerID(r.Context()), orderID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toOrderDTO(order))
}

type QRResponseDTO struct {
	Payload   string `json:"payload"`
	ExpiresIn int    `json:"expires_in"`
}

// GetOrderQR returns a fresh signed payload for the pickup QR code.
func (h *OrdersHandler) GetOrderQR(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ORDER_ID", "order_id must be a UUID")
		return
	}

	payload, err := h.redemption.IssueQR(ctx, getCustomerID(r.Context()), orderID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, QRResponseDTO{
		Payload:   payload,
		ExpiresIn: h.redemption.QRTTL(),
	})
}

// MarkReady is the business side of the lifecycle: confirmed orders become
// ready for pickup.
func (h *OrdersHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ORDER_ID", "order_id must be a UUID")
		return
	}

	order, err := h.checkout.MarkReady(ctx, getBusinessID(r.Context()), orderID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toOrderDTO(order))
}

type ScanRequestDTO struct {
	Code string `json:"code"`
}

// Scan redeems a pickup code or QR payload at the counter.
func (h *OrdersHandler) Scan(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ScanRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}
	if req.Code == "" {
		respondError(w, http.StatusBadRequest, "INVALID_CODE", "code must not be empty")
		return
	}

	order, err := h.redemption.Redeem(ctx, getBusinessID(r.Context()), req.Code)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toOrderDTO(order))
}
