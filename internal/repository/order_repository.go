package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kindplate/kindplate/internal/domain"
)

const orderColumns = `id, customer_id, business_id, business_name, business_address, items,
	          pickup_start, pickup_end, subtotal, service_fee, promocode_discount, total,
	          currency, notes, status, pickup_code, idempotency_key, created_at, updated_at`

// CreateOrder inserts the order, decrements offer quantities, and writes the
// order.created outbox row in one transaction. A sold-out offer aborts with
// ErrInsufficientQuantity; a reused idempotency key with ErrDuplicateOrder.
func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, item := range order.Items {
		result, errUpd := tx.ExecContext(ctx,
			`UPDATE offers SET quantity = quantity - $2 WHERE id = $1 AND active AND quantity >= $2`,
			item.OfferID, item.Quantity)
		if errUpd != nil {
			return fmt.Errorf("decrement offer quantity: %w", errUpd)
		}
		affected, errAff := result.RowsAffected()
		if errAff != nil {
			return fmt.Errorf("decrement offer rows affected: %w", errAff)
		}
		if affected == 0 {
			return ErrInsufficientQuantity
		}
	}

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	query := `INSERT INTO orders (id, customer_id, business_id, business_name, business_address, items,
	          pickup_start, pickup_end, subtotal, service_fee, promocode_discount, total,
	          currency, notes, status, pickup_code, idempotency_key, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW())`

	_, insertErr := tx.ExecContext(ctx, query,
		order.ID,
		order.CustomerID,
		order.BusinessID,
		order.BusinessName,
		order.BusinessAddress,
		itemsJSON,
		order.PickupStart,
		order.PickupEnd,
		order.Subtotal,
		order.ServiceFee,
		order.PromocodeDiscount,
		order.Total,
		order.Currency,
		order.Notes,
		order.Status,
		order.PickupCode,
		order.IdempotencyKey,
	)
	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}

	if err := insertOutboxEvent(ctx, tx, order, "order.created"); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order tx: %w", err)
	}
	return nil
}

func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.queryOneOrder(ctx, query, id)
}

func (r *Repository) GetOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key = $1`
	return r.queryOneOrder(ctx, query, key)
}

func (r *Repository) GetOrderByPickupCode(ctx context.Context, code string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE pickup_code = $1`

	order, err := r.queryOneOrder(ctx, query, code)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, ErrPickupCodeNotFound
	}
	return order, err
}

func (r *Repository) ListOrdersByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("query orders by customer: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, errScan := scanOrder(rows)
		if errScan != nil {
			return nil, errScan
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return orders, nil
}

// UpdateOrderStatus is a compare-and-set: the update only applies when the
// order is still in the expected `from` status, so two concurrent scans of
// the same pickup code cannot both succeed.
func (r *Repository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status rows affected: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotFound
	}

	order, err := queryOneOrderTx(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}

	if err := insertOutboxEvent(ctx, tx, order, eventTypeFor(to)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status tx: %w", err)
	}
	return nil
}

// CancelExpiredOrders cancels unpaid orders older than the cutoff, restores
// the reserved offer quantities, and emits order.cancelled events. Returns
// the number of orders cancelled.
func (r *Repository) CancelExpiredOrders(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = $1 AND created_at < $2 FOR UPDATE`,
		domain.OrderStatusNew, cutoff)
	if err != nil {
		return 0, fmt.Errorf("query expired orders: %w", err)
	}

	var stale []*domain.Order
	for rows.Next() {
		order, errScan := scanOrder(rows)
		if errScan != nil {
			rows.Close()
			return 0, errScan
		}
		stale = append(stale, order)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("row iteration error: %w", err)
	}

	for _, order := range stale {
		for _, item := range order.Items {
			if _, errUpd := tx.ExecContext(ctx,
				`UPDATE offers SET quantity = quantity + $2 WHERE id = $1`,
				item.OfferID, item.Quantity); errUpd != nil {
				return 0, fmt.Errorf("restore offer quantity: %w", errUpd)
			}
		}

		if _, errUpd := tx.ExecContext(ctx,
			`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`,
			order.ID, domain.OrderStatusCancelled); errUpd != nil {
			return 0, fmt.Errorf("cancel expired order: %w", errUpd)
		}

		order.Status = domain.OrderStatusCancelled
		if err := insertOutboxEvent(ctx, tx, order, "order.cancelled"); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit expiry tx: %w", err)
	}
	return len(stale), nil
}

func (r *Repository) GetUnpublishedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM order_outbox WHERE published_at IS NULL ORDER BY id LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query unpublished events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return events, nil
}

func (r *Repository) MarkEventPublished(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE order_outbox SET published_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}

func eventTypeFor(status domain.OrderStatus) string {
	return "order." + strings.ToLower(string(status))
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertOutboxEvent(ctx context.Context, tx *sql.Tx, order *domain.Order, eventType string) error {
	payload := map[string]any{
		"order_id":     order.ID,
		"customer_id":  order.CustomerID,
		"business_id":  order.BusinessID,
		"status":       order.Status,
		"total":        order.Total,
		"currency":     order.Currency,
		"pickup_start": order.PickupStart,
		"pickup_end":   order.PickupEnd,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO order_outbox (aggregate_id, event_type, payload, created_at) VALUES ($1, $2, $3, NOW())`,
		order.ID.String(), eventType, payloadJSON)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *Repository) queryOneOrder(ctx context.Context, query string, arg any) (*domain.Order, error) {
	return queryOneOrderTx(ctx, r.db, query, arg)
}

func queryOneOrderTx(ctx context.Context, q queryRower, query string, arg any) (*domain.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order     domain.Order
		itemsJSON []byte
	)

	err := row.Scan(
		&order.ID,
		&order.CustomerID,
		&order.BusinessID,
		&order.BusinessName,
		&order.BusinessAddress,
		&itemsJSON,
		&order.PickupStart,
		&order.PickupEnd,
		&order.Subtotal,
		&order.ServiceFee,
		&order.PromocodeDiscount,
		&order.Total,
		&order.Currency,
		&order.Notes,
		&order.Status,
		&order.PickupCode,
		&order.IdempotencyKey,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}

	return &order, nil
}
