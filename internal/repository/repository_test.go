package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kindplate/kindplate/internal/domain"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "../../migrations",
	}

	repo, err := NewRepository(creds)
	require.NoError(t, err)

	err = repo.RunMigrations(creds)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func seedBusiness(t *testing.T, repo *Repository, name string) int64 {
	t.Helper()

	var id int64
	err := repo.db.QueryRow(
		`INSERT INTO businesses (name, address) VALUES ($1, $2) RETURNING id`,
		name, "Somewhere 1").Scan(&id)
	require.NoError(t, err)
	return id
}

func seedOffer(t *testing.T, repo *Repository, businessID int64, quantity int) *domain.Offer {
	t.Helper()

	offer := &domain.Offer{
		BusinessID:      businessID,
		Title:           "Surprise bag",
		Description:     "Whatever is left in the evening",
		OriginalPrice:   mustMoney(t, "12.00"),
		DiscountedPrice: mustMoney(t, "4.99"),
		Quantity:        quantity,
		PickupStart:     "17:00",
		PickupEnd:       "19:00",
		Active:          true,
	}
	require.NoError(t, repo.CreateOffer(context.Background(), offer))
	return offer
}

func mustMoney(t *testing.T, amount string) domain.Money {
	t.Helper()
	m, err := domain.NewMoney(decimal.RequireFromString(amount), "EUR")
	require.NoError(t, err)
	return m
}

func newTestOrder(businessID int64, offer *domain.Offer, quantity int) *domain.Order {
	unit := offer.DiscountedPrice.Amount
	subtotal := unit.Mul(decimal.NewFromInt(int64(quantity)))
	fee := decimal.RequireFromString("0.49")
	return &domain.Order{
		ID:              uuid.New(),
		CustomerID:      "cust-1",
		BusinessID:      businessID,
		BusinessName:    "Corner Bakery",
		BusinessAddress: "Somewhere 1",
		Items: []domain.OrderItem{{
			OfferID:     offer.ID,
			Title:       offer.Title,
			Quantity:    quantity,
			UnitPrice:   unit,
			PickupStart: offer.PickupStart,
			PickupEnd:   offer.PickupEnd,
		}},
		PickupStart:       offer.PickupStart,
		PickupEnd:         offer.PickupEnd,
		Subtotal:          subtotal,
		ServiceFee:        fee,
		PromocodeDiscount: decimal.Zero,
		Total:             subtotal.Add(fee),
		Currency:          "EUR",
		Status:            domain.OrderStatusNew,
		PickupCode:        domain.NewPickupCode(),
		IdempotencyKey:    uuid.NewString(),
	}
}

func offerQuantity(t *testing.T, repo *Repository, id int64) int {
	t.Helper()
	var q int
	require.NoError(t, repo.db.QueryRow(`SELECT quantity FROM offers WHERE id = $1`, id).Scan(&q))
	return q
}

func TestGetOffer_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.GetOffer(context.Background(), 12345)
	assert.ErrorIs(t, err, ErrOfferNotFound)
}

func TestCreateOffer_RoundTrip(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	businessID := seedBusiness(t, repo, "Corner Bakery")
	offer := seedOffer(t, repo, businessID, 5)
	require.NotZero(t, offer.ID)

	got, err := repo.GetOffer(context.Background(), offer.ID)
	require.NoError(t, err)

	assert.Equal(t, offer.Title, got.Title)
	assert.True(t, got.DiscountedPrice.Amount.Equal(decimal.RequireFromString("4.99")))
	assert.Equal(t, "EUR", got.DiscountedPrice.Currency.String())
	assert.Equal(t, 5, got.Quantity)
	assert.True(t, got.Active)
}

func TestListOffersByBusiness(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	b1 := seedBusiness(t, repo, "Corner Bakery")
	b2 := seedBusiness(t, repo, "Sushi Spot")
	seedOffer(t, repo, b1, 5)
	seedOffer(t, repo, b1, 3)
	seedOffer(t, repo, b2, 1)

	offers, err := repo.ListOffersByBusiness(context.Background(), b1)
	require.NoError(t, err)
	assert.Len(t, offers, 2)
}

func TestToggleOffer(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	businessID := seedBusiness(t, repo, "Corner Bakery")
	offer := seedOffer(t, repo, businessID, 5)

	active, err := repo.ToggleOffer(context.Background(), offer.ID, businessID)
	require.NoError(t, err)
	assert.False(t, active)

	active, err = repo.ToggleOffer(context.Background(), offer.ID, businessID)
	require.NoError(t, err)
	assert.True(t, active)

	// Another business cannot toggle it.
	_, err = repo.ToggleOffer(context.Background(), offer.ID, businessID+1)
	assert.ErrorIs(t, err, ErrOfferNotFound)
}

func TestDeleteOffer_OwnerScoped(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	businessID := seedBusiness(t, repo, "Corner Bakery")
	offer := seedOffer(t, repo, businessID, 5)

	err := repo.DeleteOffer(context.Background(), offer.ID, businessID+1)
	assert.ErrorIs(t, err, ErrOfferNotFound)

	err = repo.DeleteOffer(context.Background(), offer.ID, businessID)
	require.NoError(t, err)

	_, err = repo.GetOffer(context.Background(), offer.ID)
	assert.ErrorIs(t, err, ErrOfferNotFound)
}

func TestCreateOrder_DecrementsQuantityAndWritesOutbox(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	businessID := seedBusiness(t, repo, "Corner Bakery")
	offer := seedOffer(t, repo, businessID, 5)
	order := newTestOrder(businessID, offer, 2)

	require.NoError(t, repo.CreateOrder(ctx, order))

	assert.Equal(t, 3, offerQuantity(t, repo, offer.ID))

	got, err := repo.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusNew, got.Status)
	assert.True(t, got.Total.Equal(order.Total))
	require.Len(t, got.Items, 1)
	assert.Equal(t, offer.ID, got.Items[0].OfferID)

	events, err := repo.GetUnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "order.created", events[0].EventType)
	assert.Equal(t, order.ID.String(), events[0].AggregateID)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "NEW", payload["status"])
}

func TestCreateOrder_DuplicateIdempotencyKey(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	businessID := seedBusiness(t, repo, "Corner Bakery")
	offer := seedOffer(t, repo, businessID, 5)

	first := newTestOrder(businessID, offer, 1)
	require.NoError(t, repo.CreateOrder(ctx, first))

	second := newTestOrder(businessID, offer, 1)
	second.IdempotencyKey = first.IdempotencyKey
	err := repo.CreateOrder(ctx, second)
	assert.ErrorIs(t, err, ErrDuplicateOrder)

	// The rolled-back attempt must not leak its quantity decrement.
	assert.Equal(t, 4, offerQuantity(t, repo, offer.ID))

	got, err := repo.GetOrderByIdempotencyKey(ctx, first.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestCreateOrder_InsufficientQuantity(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	businessID := seedBusiness(t, repo, "Corner Bakery")
	offer := seedOffer(t, repo, businessID, 1)
	order := newTestOrder(businessID, offer, 2)

	err := repo.CreateOrder(ctx, order)
	assert.ErrorIs(t, err, ErrInsufficientQuantity)

	assert.Equal(t, 1, offerQuantity(t, repo, offer.ID))
	_, err = repo.GetOrderByID(ctx, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCreateOrder_InactiveOffer(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	businessID := seedBusiness(t, repo, "Corner Bakery")
	offer := seedOffer(t, repo, businessID, 5)
	_, err := repo.ToggleOffer(ctx, offer.ID, businessID)
	require.NoError(t, err)

	order := newTestOrder(businessID, offer, 1)
	err = repo.CreateOrder(ctx, order)
	assert.ErrorIs(t, err, ErrInsufficientQuantity)
}

func TestGetOrderByPickupCode(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	businessID := seedBusiness(t, repo, "Corner Bakery")
	offer := seedOffer(t, repo, businessID, 5)
	order := newTestOrder(businessID, offer, 1)
	require.NoError(t, repo.CreateOrder(ctx, order))

	got, err := repo.GetOrderByPickupCode(ctx, order.PickupCode)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = repo.GetOrderByPickupCode(ctx, "ZZZZ9999")
	assert.ErrorIs(t, err, ErrPickupCodeNotFound)
}

func TestUpdateOrderStatus_CompareAndSet(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	businessID := seedBusiness(t, repo, "Corner Bakery")
	offer := seedOffer(t, repo, businessID, 5)
	order := newTestOrder(businessID, offer, 1)
	require.NoError(t, repo.CreateOrder(ctx, order))

	err := repo.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusNew, domain.OrderStatusConfirmed)
	require.NoError(t, err)

	// Same transition again: the order is no longer in NEW.
	err = repo.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusNew, domain.OrderStatusConfirmed)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	got, err := repo.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, got.Status)

	events, err := repo.GetUnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "order.created", events[0].EventType)
	assert.Equal(t, "order.confirmed", events[1].EventType)
}

func TestMarkEventPublished(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	businessID := seedBusiness(t, repo, "Corner Bakery")
	offer := seedOffer(t, repo, businessID, 5)
	order := newTestOrder(businessID, offer, 1)
	require.NoError(t, repo.CreateOrder(ctx, order))

	events, err := repo.GetUnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	require.NoError(t, repo.MarkEventPublished(ctx, events[0].ID))

	events, err = repo.GetUnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCancelExpiredOrders(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	businessID := seedBusiness(t, repo, "Corner Bakery")
	offer := seedOffer(t, repo, businessID, 5)

	stale := newTestOrder(businessID, offer, 2)
	require.NoError(t, repo.CreateOrder(ctx, stale))

	fresh := newTestOrder(businessID, offer, 1)
	require.NoError(t, repo.CreateOrder(ctx, fresh))

	// Age the first order past the payment deadline.
	_, err := repo.db.ExecContext(ctx,
		`UPDATE orders SET created_at = NOW() - INTERVAL '1 hour' WHERE id = $1`, stale.ID)
	require.NoError(t, err)

	cancelled, err := repo.CancelExpiredOrders(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	got, err := repo.GetOrderByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, got.Status)

	// 5 - 2 - 1 = 2 after both orders, +2 restored by the sweep.
	assert.Equal(t, 4, offerQuantity(t, repo, offer.ID))

	got, err = repo.GetOrderByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusNew, got.Status)

	events, err := repo.GetUnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "order.cancelled", events[2].EventType)
}

func TestPayments(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	businessID := seedBusiness(t, repo, "Corner Bakery")
	offer := seedOffer(t, repo, businessID, 5)
	order := newTestOrder(businessID, offer, 1)
	require.NoError(t, repo.CreateOrder(ctx, order))

	p := &domain.Payment{
		ID:             uuid.New(),
		OrderID:        order.ID,
		IdempotencyKey: "pay-key-1",
		PaymentURL:     "https://pay.example.com/abc",
		Amount:         order.Total,
		Currency:       "EUR",
	}
	require.NoError(t, repo.CreatePayment(ctx, p))

	dup := &domain.Payment{
		ID:             uuid.New(),
		OrderID:        order.ID,
		IdempotencyKey: "pay-key-1",
		PaymentURL:     "https://pay.example.com/other",
		Amount:         order.Total,
		Currency:       "EUR",
	}
	err := repo.CreatePayment(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicatePayment)

	got, err := repo.GetPaymentByIdempotencyKey(ctx, "pay-key-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "https://pay.example.com/abc", got.PaymentURL)

	_, err = repo.GetPaymentByIdempotencyKey(ctx, "missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestContextCancellation(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()

	time.Sleep(10 * time.Millisecond) // Ensure context is cancelled

	_, err := repo.GetOffer(ctx, 1)
	assert.Error(t, err)
}
