package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/kindplate/kindplate/internal/domain"
	"github.com/kindplate/kindplate/internal/repository"
)

// RedemptionService marks orders as picked up at the counter. It accepts
// either the short pickup code typed by staff or a scanned QR payload.
type RedemptionService struct {
	orders repository.OrderRepository
	qr     *QRSigner
}

func NewRedemptionService(orders repository.OrderRepository, qr *QRSigner) *RedemptionService {
	return &RedemptionService{orders: orders, qr: qr}
}

// Redeem resolves the code to an order, validates the lifecycle transition
// and flips the order to picked up. Failures map onto the scanner error
// codes: ErrCodeNotFound, ErrQRExpired, ErrAlreadyPickedUp, ErrNotRedeemable.
func (s *RedemptionService) Redeem(ctx context.Context, businessID int64, code string) (*domain.Order, error) {
	order, err := s.resolve(ctx, code)
	if err != nil {
		return nil, err
	}

	if order.BusinessID != businessID {
		// A code from another vendor's order is indistinguishable from an
		// unknown one on purpose.
		return nil, ErrCodeNotFound
	}

	if order.Status == domain.OrderStatusPickedUp {
		return nil, ErrAlreadyPickedUp
	}
	if !domain.CanTransitionTo(order.Status, domain.OrderStatusPickedUp) {
		return nil, ErrNotRedeemable
	}

	errUpdate := s.orders.UpdateOrderStatus(ctx, order.ID, order.Status, domain.OrderStatusPickedUp)
	if errUpdate != nil {
		if errors.Is(errUpdate, repository.ErrOrderNotFound) {
			// Lost the compare-and-set race: someone redeemed it first.
			return nil, ErrAlreadyPickedUp
		}
		return nil, errUpdate
	}

	order.Status = domain.OrderStatusPickedUp
	return order, nil
}

// IssueQR returns a signed QR payload for the customer's order.
func (s *RedemptionService) IssueQR(ctx context.Context, customerID string, orderID uuid.UUID) (string, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.CustomerID != customerID {
		return "", ErrNotOwner
	}

	return s.qr.Sign(order.ID)
}

func (s *RedemptionService) QRTTL() int {
	return int(s.qr.TTL().Seconds())
}

func (s *RedemptionService) resolve(ctx context.Context, code string) (*domain.Order, error) {
	if IsQRPayload(code) {
		orderID, err := s.qr.Parse(code)
		if err != nil {
			return nil, err
		}

		order, err := s.orders.GetOrderByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrOrderNotFound) {
				return nil, ErrCodeNotFound
			}
			return nil, err
		}
		return order, nil
	}

	order, err := s.orders.GetOrderByPickupCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrPickupCodeNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return order, nil
}
