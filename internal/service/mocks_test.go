package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kindplate/kindplate/internal/cache"
	"github.com/kindplate/kindplate/internal/cartstore"
	"github.com/kindplate/kindplate/internal/domain"
	"github.com/kindplate/kindplate/internal/payment"
	"github.com/kindplate/kindplate/internal/repository"
)

type mockCartRepo struct {
	m    sync.RWMutex
	cart *domain.Cart
	err  error

	addCalls     int
	replaceCalls int
	deleteCalls  int
}

func (m *mockCartRepo) GetCart(context.Context, string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.cart == nil {
		return nil, cartstore.ErrCartNotFound
	}
	return m.cart, nil
}

func (m *mockCartRepo) AddItem(_ context.Context, customerID string, item domain.CartItem) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.addCalls++
	if m.cart == nil {
		m.cart = &domain.Cart{CustomerID: customerID, BusinessID: item.BusinessID}
	}
	m.cart.Items = append(m.cart.Items, item)
	return nil
}

func (m *mockCartRepo) ReplaceCart(_ context.Context, customerID string, item domain.CartItem) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.replaceCalls++
	m.cart = &domain.Cart{
		CustomerID: customerID,
		BusinessID: item.BusinessID,
		Items:      []domain.CartItem{item},
	}
	return nil
}

func (m *mockCartRepo) UpdateItemQuantity(_ context.Context, _ string, offerID int64, quantity int) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.cart == nil {
		return cartstore.ErrCartNotFound
	}
	item := m.cart.FindItem(offerID)
	if item == nil {
		return cartstore.ErrItemNotFound
	}
	item.Quantity = quantity
	return nil
}

func (m *mockCartRepo) RemoveItem(_ context.Context, _ string, offerID int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.cart == nil {
		return cartstore.ErrCartNotFound
	}
	kept := m.cart.Items[:0]
	for _, it := range m.cart.Items {
		if it.OfferID != offerID {
			kept = append(kept, it)
		}
	}
	m.cart.Items = kept
	return nil
}

func (m *mockCartRepo) DeleteCart(context.Context, string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.deleteCalls++
	m.cart = nil
	return nil
}

type mockCartCache struct {
	m    sync.RWMutex
	cart *domain.Cart
	err  error

	deleteCalls int
}

func (m *mockCartCache) Get(context.Context, string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.cart == nil {
		return nil, cache.ErrCacheMiss
	}
	return m.cart, nil
}

func (m *mockCartCache) Set(_ context.Context, _ string, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.cart = cart
	return nil
}

func (m *mockCartCache) Delete(context.Context, string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.deleteCalls++
	m.cart = nil
	return nil
}

type mockOfferRepo struct {
	offers     map[int64]*domain.Offer
	businesses map[int64]*domain.Business
	err        error
}

func (m *mockOfferRepo) GetOffer(_ context.Context, id int64) (*domain.Offer, error) {
	if m.err != nil {
		return nil, m.err
	}
	offer, ok := m.offers[id]
	if !ok {
		return nil, repository.ErrOfferNotFound
	}
	return offer, nil
}

func (m *mockOfferRepo) GetBusiness(_ context.Context, id int64) (*domain.Business, error) {
	if m.err != nil {
		return nil, m.err
	}
	b, ok := m.businesses[id]
	if !ok {
		return nil, repository.ErrBusinessNotFound
	}
	return b, nil
}

func (m *mockOfferRepo) ListOffersByBusiness(_ context.Context, businessID int64) ([]*domain.Offer, error) {
	var out []*domain.Offer
	for _, o := range m.offers {
		if o.BusinessID == businessID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockOfferRepo) CreateOffer(_ context.Context, offer *domain.Offer) error {
	if m.err != nil {
		return m.err
	}
	m.offers[offer.ID] = offer
	return nil
}

func (m *mockOfferRepo) DeleteOffer(_ context.Context, id, businessID int64) error {
	o, ok := m.offers[id]
	if !ok || o.BusinessID != businessID {
		return repository.ErrOfferNotFound
	}
	delete(m.offers, id)
	return nil
}

func (m *mockOfferRepo) ToggleOffer(_ context.Context, id, businessID int64) (bool, error) {
	o, ok := m.offers[id]
	if !ok || o.BusinessID != businessID {
		return false, repository.ErrOfferNotFound
	}
	o.Active = !o.Active
	return o.Active, nil
}

type mockOrderRepo struct {
	m      sync.Mutex
	orders map[uuid.UUID]*domain.Order

	createErr error
	updateErr error

	createCalls int
	updateCalls int
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[uuid.UUID]*domain.Order)}
}

func (m *mockOrderRepo) CreateOrder(_ context.Context, order *domain.Order) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	for _, o := range m.orders {
		if o.IdempotencyKey == order.IdempotencyKey {
			return repository.ErrDuplicateOrder
		}
	}
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) GetOrderByIdempotencyKey(_ context.Context, key string) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	for _, o := range m.orders {
		if o.IdempotencyKey == key {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *mockOrderRepo) GetOrderByPickupCode(_ context.Context, code string) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	for _, o := range m.orders {
		if o.PickupCode == code {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrPickupCodeNotFound
}

func (m *mockOrderRepo) ListOrdersByCustomer(_ context.Context, customerID string) ([]*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateOrderStatus(_ context.Context, id uuid.UUID, from, to domain.OrderStatus) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return repository.ErrOrderNotFound
	}
	o.Status = to
	return nil
}

func (m *mockOrderRepo) CancelExpiredOrders(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (m *mockOrderRepo) GetUnpublishedEvents(context.Context, int) ([]*repository.OutboxEvent, error) {
	return nil, nil
}

func (m *mockOrderRepo) MarkEventPublished(context.Context, int) error {
	return nil
}

type mockPaymentRepo struct {
	m        sync.Mutex
	payments map[string]*domain.Payment

	createErr   error
	createCalls int
}

func newMockPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{payments: make(map[string]*domain.Payment)}
}

func (m *mockPaymentRepo) CreatePayment(_ context.Context, p *domain.Payment) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.payments[p.IdempotencyKey]; ok {
		return repository.ErrDuplicatePayment
	}
	cp := *p
	m.payments[p.IdempotencyKey] = &cp
	return nil
}

func (m *mockPaymentRepo) GetPaymentByIdempotencyKey(_ context.Context, key string) (*domain.Payment, error) {
	m.m.Lock()
	defer m.m.Unlock()
	p, ok := m.payments[key]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

type mockProvider struct {
	result *payment.Result
	err    error
	calls  int
}

func (m *mockProvider) CreatePayment(context.Context, payment.Request) (*payment.Result, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func mustMoney(amount, code string) domain.Money {
	m, err := domain.NewMoney(decimal.RequireFromString(amount), code)
	if err != nil {
		panic(err)
	}
	return m
}

func testOffer(id, businessID int64, price string, qty int) *domain.Offer {
	return &domain.Offer{
		ID:              id,
		BusinessID:      businessID,
		Title:           "Surprise bag",
		OriginalPrice:   mustMoney("12.00", "EUR"),
		DiscountedPrice: mustMoney(price, "EUR"),
		Quantity:        qty,
		PickupStart:     "17:00",
		PickupEnd:       "19:00",
		Active:          true,
	}
}

func testCartItem(offerID, businessID int64, qty int, price string) domain.CartItem {
	return domain.CartItem{
		OfferID:    offerID,
		BusinessID: businessID,
		Quantity:   qty,
		Snapshot: domain.OfferSnapshot{
			Title:           "Surprise bag",
			DiscountedPrice: mustMoney(price, "EUR"),
			PickupStart:     "17:00",
			PickupEnd:       "19:00",
			BusinessName:    "Corner Bakery",
		},
	}
}
