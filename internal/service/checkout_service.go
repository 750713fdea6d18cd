package service

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kindplate/kindplate/internal/domain"
	"github.com/kindplate/kindplate/internal/repository"
)

// CartReader is the slice of the cart service checkout needs.
type CartReader interface {
	GetCart(ctx context.Context, customerID string) (*domain.Cart, error)
	ClearCart(ctx context.Context, customerID string) error
}

type CheckoutService struct {
	carts      CartReader
	orders     repository.OrderRepository
	offers     repository.OfferRepository
	serviceFee decimal.Decimal
}

func NewCheckoutService(carts CartReader, orders repository.OrderRepository, offers repository.OfferRepository, serviceFee decimal.Decimal) *CheckoutService {
	return &CheckoutService{
		carts:      carts,
		orders:     orders,
		offers:     offers,
		serviceFee: serviceFee,
	}
}

func (s *CheckoutService) ServiceFee() decimal.Decimal {
	return s.serviceFee
}

// BuildDraft assembles the checkout payload from the cart: per-item pickup
// windows collapse into one overall window, totals are computed, snapshot
// fields are copied verbatim. Pure given its inputs.
func (s *CheckoutService) BuildDraft(cart *domain.Cart, business *domain.Business, notes string) (*domain.OrderDraft, error) {
	if cart.IsEmpty() || cart.BusinessID == 0 {
		return nil, ErrEmptyCart
	}

	start, end := domain.AggregatePickupWindow(cart.Items)

	items := make([]domain.OrderItem, 0, len(cart.Items))
	for _, ci := range cart.Items {
		items = append(items, domain.OrderItem{
			OfferID:     ci.OfferID,
			Title:       ci.Snapshot.Title,
			Quantity:    ci.Quantity,
			UnitPrice:   ci.Snapshot.DiscountedPrice.Amount,
			PickupStart: ci.Snapshot.PickupStart,
			PickupEnd:   ci.Snapshot.PickupEnd,
		})
	}

	subtotal := cart.TotalPrice()

	return &domain.OrderDraft{
		Items:             items,
		PickupStart:       start,
		PickupEnd:         end,
		BusinessID:        business.ID,
		BusinessName:      business.Name,
		BusinessAddress:   business.Address,
		Subtotal:          subtotal,
		ServiceFee:        s.serviceFee,
		PromocodeDiscount: decimal.Zero,
		Total:             subtotal.Add(s.serviceFee),
		Currency:          cart.Currency(),
		Notes:             notes,
	}, nil
}

// PreviewDraft builds the checkout preview for the customer's current cart.
func (s *CheckoutService) PreviewDraft(ctx context.Context, customerID string) (*domain.OrderDraft, error) {
	cart, err := s.carts.GetCart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	business, err := s.offers.GetBusiness(ctx, cart.BusinessID)
	if err != nil {
		return nil, err
	}

	return s.BuildDraft(cart, business, "")
}

// PlaceOrder turns the customer's cart into a persisted order. The
// idempotency key makes a retried submit return the already-created order
// instead of placing a second one.
func (s *CheckoutService) PlaceOrder(ctx context.Context, customerID, idempotencyKey, notes string) (*domain.Order, error) {
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	existing, err := s.orders.GetOrderByIdempotencyKey(ctx, idempotencyKey)
	if err != nil && !errors.Is(err, repository.ErrOrderNotFound) {
		return nil, err
	}
	if existing != nil {
		log.Printf("duplicate order request detected idempotency_key = %v order_id = %v", idempotencyKey, existing.ID)
		return existing, nil
	}

	cart, err := s.carts.GetCart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	business, err := s.offers.GetBusiness(ctx, cart.BusinessID)
	if err != nil {
		return nil, err
	}

	draft, err := s.BuildDraft(cart, business, notes)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		ID:                uuid.New(),
		CustomerID:        customerID,
		BusinessID:        draft.BusinessID,
		BusinessName:      draft.BusinessName,
		BusinessAddress:   draft.BusinessAddress,
		Items:             draft.Items,
		PickupStart:       draft.PickupStart,
		PickupEnd:         draft.PickupEnd,
		Subtotal:          draft.Subtotal,
		ServiceFee:        draft.ServiceFee,
		PromocodeDiscount: draft.PromocodeDiscount,
		Total:             draft.Total,
		Currency:          draft.Currency,
		Notes:             draft.Notes,
		Status:            domain.OrderStatusNew,
		PickupCode:        domain.NewPickupCode(),
		IdempotencyKey:    idempotencyKey,
	}

	if errCreate := s.orders.CreateOrder(ctx, order); errCreate != nil {
		if errors.Is(errCreate, repository.ErrDuplicateOrder) {
			// Lost the race against a concurrent submit with the same key.
			return s.orders.GetOrderByIdempotencyKey(ctx, idempotencyKey)
		}
		return nil, errCreate
	}

	if errClear := s.carts.ClearCart(ctx, customerID); errClear != nil {
		log.Printf("clear cart after order error: %v \n", errClear)
	}

	return order, nil
}

func (s *CheckoutService) GetOrder(ctx context.Context, customerID string, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, ErrNotOwner
	}
	return order, nil
}

func (s *CheckoutService) ListOrders(ctx context.Context, customerID string) ([]*domain.Order, error) {
	return s.orders.ListOrdersByCustomer(ctx, customerID)
}

// MarkReady moves a confirmed order to ready-for-pickup, on behalf of the
// owning business.
func (s *CheckoutService) MarkReady(ctx context.Context, businessID int64, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BusinessID != businessID {
		return nil, ErrNotOwner
	}
	if !domain.CanTransitionTo(order.Status, domain.OrderStatusReadyForPickup) {
		return nil, ErrIllegalTransition
	}

	if err := s.orders.UpdateOrderStatus(ctx, orderID, order.Status, domain.OrderStatusReadyForPickup); err != nil {
		return nil, err
	}

	order.Status = domain.OrderStatusReadyForPickup
	return order, nil
}
