package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/kindplate/kindplate/internal/domain"
)

func (r *Repository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	query := `INSERT INTO payments (id, order_id, idempotency_key, payment_url, amount, currency, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, NOW())`

	_, err := r.db.ExecContext(ctx, query,
		payment.ID,
		payment.OrderID,
		payment.IdempotencyKey,
		payment.PaymentURL,
		payment.Amount,
		payment.Currency,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicatePayment
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *Repository) GetPaymentByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	query := `SELECT id, order_id, idempotency_key, payment_url, amount, currency, created_at
	          FROM payments WHERE idempotency_key = $1`

	var p domain.Payment
	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&p.ID,
		&p.OrderID,
		&p.IdempotencyKey,
		&p.PaymentURL,
		&p.Amount,
		&p.Currency,
		&p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query payment by idempotency key: %w", err)
	}

	return &p, nil
}
