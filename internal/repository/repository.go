package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/kindplate/kindplate/internal/domain"
)

var (
	ErrOfferNotFound        = errors.New("offer not found")
	ErrBusinessNotFound     = errors.New("business not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrPickupCodeNotFound   = errors.New("pickup code not found")
	ErrDuplicateOrder       = errors.New("order with this idempotency key already exists")
	ErrInsufficientQuantity = errors.New("offer has insufficient quantity")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrDuplicatePayment     = errors.New("payment with this idempotency key already exists")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// OutboxEvent is a pending order lifecycle event written in the same
// transaction as the state change it describes.
type OutboxEvent struct {
	ID          int
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

type OfferRepository interface {
	GetOffer(ctx context.Context, id int64) (*domain.Offer, error)
	GetBusiness(ctx context.Context, id int64) (*domain.Business, error)
	ListOffersByBusiness(ctx context.Context, businessID int64) ([]*domain.Offer, error)
	CreateOffer(ctx context.Context, offer *domain.Offer) error
	DeleteOffer(ctx context.Context, id, businessID int64) error
	ToggleOffer(ctx context.Context, id, businessID int64) (bool, error)
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	GetOrderByPickupCode(ctx context.Context, code string) (*domain.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) error
	CancelExpiredOrders(ctx context.Context, cutoff time.Time) (int, error)
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventPublished(ctx context.Context, id int) error
}

type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	GetPaymentByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
