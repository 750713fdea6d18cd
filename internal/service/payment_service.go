package service

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"github.com/kindplate/kindplate/internal/domain"
	"github.com/kindplate/kindplate/internal/payment"
	"github.com/kindplate/kindplate/internal/repository"
)

type PaymentService struct {
	orders    repository.OrderRepository
	payments  repository.PaymentRepository
	provider  payment.Provider
	returnURL string
}

func NewPaymentService(orders repository.OrderRepository, payments repository.PaymentRepository, provider payment.Provider, returnURL string) *PaymentService {
	return &PaymentService{
		orders:    orders,
		payments:  payments,
		provider:  provider,
		returnURL: returnURL,
	}
}

// Initiate creates a payment with the provider for a freshly placed order and
// returns the redirect URL. A repeated call with the same idempotency key
// returns the payment already created instead of charging twice.
func (s *PaymentService) Initiate(ctx context.Context, customerID string, orderID uuid.UUID, idempotencyKey string) (*domain.Payment, error) {
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	existing, err := s.payments.GetPaymentByIdempotencyKey(ctx, idempotencyKey)
	if err != nil && !errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, err
	}
	if existing != nil {
		log.Printf("duplicate payment request detected idempotency_key = %v payment_id = %v", idempotencyKey, existing.ID)
		return existing, nil
	}

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, ErrNotOwner
	}
	if order.Status != domain.OrderStatusNew {
		return nil, ErrOrderNotPayable
	}

	result, err := s.provider.CreatePayment(ctx, payment.Request{
		OrderID:   order.ID,
		Amount:    order.Total,
		Currency:  order.Currency,
		ReturnURL: s.returnURL,
	})
	if err != nil {
		return nil, err
	}

	p := &domain.Payment{
		ID:             uuid.New(),
		OrderID:        order.ID,
		IdempotencyKey: idempotencyKey,
		PaymentURL:     result.PaymentURL,
		Amount:         order.Total,
		Currency:       order.Currency,
	}

	if errCreate := s.payments.CreatePayment(ctx, p); errCreate != nil {
		if errors.Is(errCreate, repository.ErrDuplicatePayment) {
			// Lost the race against a concurrent submit with the same key.
			return s.payments.GetPaymentByIdempotencyKey(ctx, idempotencyKey)
		}
		return nil, errCreate
	}

	return p, nil
}

// ConfirmPaid is invoked by the provider webhook once the charge settles and
// moves the order to confirmed.
func (s *PaymentService) ConfirmPaid(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status == domain.OrderStatusConfirmed {
		// Webhooks retry, a second delivery is not an error.
		return order, nil
	}
	if !domain.CanTransitionTo(order.Status, domain.OrderStatusConfirmed) {
		return nil, ErrIllegalTransition
	}

	if err := s.orders.UpdateOrderStatus(ctx, orderID, order.Status, domain.OrderStatusConfirmed); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return s.orders.GetOrderByID(ctx, orderID)
		}
		return nil, err
	}

	order.Status = domain.OrderStatusConfirmed
	return order, nil
}
