package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kindplate/kindplate/internal/service"
)

type PaymentHandler struct {
	payments      *service.PaymentService
	webhookSecret []byte
	timeout       time.Duration
}

func NewPaymentHandler(payments *service.PaymentService, webhookSecret []byte, timeout time.Duration) *PaymentHandler {
	return &PaymentHandler{
		payments:      payments,
		webhookSecret: webhookSecret,
		timeout:       timeout,
	}
}

type PaymentResponseDTO struct {
	PaymentID  string `json:"payment_id"`
	OrderID    string `json:"order_id"`
	PaymentURL string `json:"payment_url"`
}

// InitiatePayment asks the provider for a checkout session and returns the
// redirect URL. Safe to retry with the same Idempotency-Key header.
func (h *PaymentHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ORDER_ID", "order_id must be a UUID")
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	p, err := h.payments.Initiate(ctx, getCustomerID(r.Context()), orderID, idempotencyKey)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, PaymentResponseDTO{
		PaymentID:  p.ID.String(),
		OrderID:    p.OrderID.String(),
		PaymentURL: p.PaymentURL,
	})
}

type WebhookRequestDTO struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// Webhook receives payment confirmations from the provider. The endpoint is
// unauthenticated for users, so the request must carry a valid HMAC signature
// over the raw body. Deliveries are at-least-once, so a repeated confirmation
// must succeed quietly.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "cannot read request body")
		return
	}

	if !h.validSignature(body, r.Header.Get("X-Webhook-Signature")) {
		respondError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "webhook signature is missing or invalid")
		return
	}

	var req WebhookRequestDTO
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ORDER_ID", "order_id must be a UUID")
		return
	}

	if req.Status != "succeeded" {
		// Failed or pending charges leave the order in NEW; the expiry sweep
		// cancels it if no payment ever lands.
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if _, err := h.payments.ConfirmPaid(ctx, orderID); err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// validSignature checks the hex-encoded HMAC-SHA256 of the raw body.
func (h *PaymentHandler) validSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, h.webhookSecret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
