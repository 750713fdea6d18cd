package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindplate/kindplate/internal/domain"
	"github.com/kindplate/kindplate/internal/repository"
)

func newRedemptionFixture(status domain.OrderStatus) (*RedemptionService, *mockOrderRepo, *domain.Order) {
	orders := newMockOrderRepo()
	order := &domain.Order{
		ID:         uuid.New(),
		CustomerID: "cust-1",
		BusinessID: 10,
		Status:     status,
		PickupCode: "ABCD2345",
	}
	orders.orders[order.ID] = order

	qr := NewQRSigner([]byte("test-secret"), 5*time.Minute)
	return NewRedemptionService(orders, qr), orders, order
}

func TestRedemptionService_RedeemByPickupCode(t *testing.T) {
	svc, orders, order := newRedemptionFixture(domain.OrderStatusReadyForPickup)

	redeemed, err := svc.Redeem(context.Background(), 10, "ABCD2345")
	require.NoError(t, err)

	assert.Equal(t, order.ID, redeemed.ID)
	assert.Equal(t, domain.OrderStatusPickedUp, redeemed.Status)
	assert.Equal(t, domain.OrderStatusPickedUp, orders.orders[order.ID].Status)
}

func TestRedemptionService_RedeemByQR(t *testing.T) {
	svc, _, order := newRedemptionFixture(domain.OrderStatusConfirmed)

	payload, err := svc.qr.Sign(order.ID)
	require.NoError(t, err)

	redeemed, err := svc.Redeem(context.Background(), 10, payload)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPickedUp, redeemed.Status)
}

func TestRedemptionService_AlreadyPickedUp(t *testing.T) {
	svc, _, _ := newRedemptionFixture(domain.OrderStatusPickedUp)

	_, err := svc.Redeem(context.Background(), 10, "ABCD2345")
	assert.ErrorIs(t, err, ErrAlreadyPickedUp)
}

func TestRedemptionService_ExpiredQR(t *testing.T) {
	svc, _, order := newRedemptionFixture(domain.OrderStatusReadyForPickup)

	expired := NewQRSigner([]byte("test-secret"), -time.Minute)
	payload, err := expired.Sign(order.ID)
	require.NoError(t, err)

	_, err = svc.Redeem(context.Background(), 10, payload)
	assert.ErrorIs(t, err, ErrQRExpired)
}

func TestRedemptionService_TamperedQR(t *testing.T) {
	svc, _, order := newRedemptionFixture(domain.OrderStatusReadyForPickup)

	other := NewQRSigner([]byte("wrong-secret"), 5*time.Minute)
	payload, err := other.Sign(order.ID)
	require.NoError(t, err)

	_, err = svc.Redeem(context.Background(), 10, payload)
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestRedemptionService_UnknownCode(t *testing.T) {
	svc, _, _ := newRedemptionFixture(domain.OrderStatusReadyForPickup)

	_, err := svc.Redeem(context.Background(), 10, "ZZZZ9999")
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestRedemptionService_OtherBusinessCode(t *testing.T) {
	svc, _, _ := newRedemptionFixture(domain.OrderStatusReadyForPickup)

	_, err := svc.Redeem(context.Background(), 99, "ABCD2345")
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestRedemptionService_UnpaidOrderNotRedeemable(t *testing.T) {
	svc, _, _ := newRedemptionFixture(domain.OrderStatusNew)

	_, err := svc.Redeem(context.Background(), 10, "ABCD2345")
	assert.ErrorIs(t, err, ErrNotRedeemable)
}

func TestRedemptionService_CancelledOrderNotRedeemable(t *testing.T) {
	svc, _, _ := newRedemptionFixture(domain.OrderStatusCancelled)

	_, err := svc.Redeem(context.Background(), 10, "ABCD2345")
	assert.ErrorIs(t, err, ErrNotRedeemable)
}

func TestRedemptionService_LostRaceMapsToAlreadyPickedUp(t *testing.T) {
	svc, orders, _ := newRedemptionFixture(domain.OrderStatusReadyForPickup)
	// Another scan wins between resolve and the status compare-and-set.
	orders.updateErr = repository.ErrOrderNotFound

	_, err := svc.Redeem(context.Background(), 10, "ABCD2345")
	assert.ErrorIs(t, err, ErrAlreadyPickedUp)
}

func TestRedemptionService_IssueQR(t *testing.T) {
	svc, _, order := newRedemptionFixture(domain.OrderStatusConfirmed)

	payload, err := svc.IssueQR(context.Background(), "cust-1", order.ID)
	require.NoError(t, err)

	parsed, err := svc.qr.Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, order.ID, parsed)
}

func TestRedemptionService_IssueQR_WrongCustomer(t *testing.T) {
	svc, _, order := newRedemptionFixture(domain.OrderStatusConfirmed)

	_, err := svc.IssueQR(context.Background(), "cust-2", order.ID)
	assert.ErrorIs(t, err, ErrNotOwner)
}
