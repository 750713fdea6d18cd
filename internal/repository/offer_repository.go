package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kindplate/kindplate/internal/domain"
)

const offerColumns = `id, business_id, title, description, original_price, discounted_price,
	          currency, quantity, pickup_start, pickup_end, active, created_at`

func (r *Repository) GetOffer(ctx context.Context, id int64) (*domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`

	offer, err := scanOffer(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOfferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query offer by id: %w", err)
	}

	return offer, nil
}

func (r *Repository) CreateBusiness(ctx context.Context, b *domain.Business) error {
	query := `INSERT INTO businesses (name, address, created_at) VALUES ($1, $2, NOW())
	          RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, b.Name, b.Address).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert business: %w", err)
	}
	return nil
}

func (r *Repository) GetBusiness(ctx context.Context, id int64) (*domain.Business, error) {
	query := `SELECT id, name, address, created_at FROM businesses WHERE id = $1`

	var b domain.Business
	err := r.db.QueryRowContext(ctx, query, id).Scan(&b.ID, &b.Name, &b.Address, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBusinessNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query business by id: %w", err)
	}

	return &b, nil
}

func (r *Repository) ListOffersByBusiness(ctx context.Context, businessID int64) ([]*domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE business_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("query offers by business: %w", err)
	}
	defer rows.Close()

	var offers []*domain.Offer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer row: %w", err)
		}
		offers = append(offers, offer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return offers, nil
}

func (r *Repository) CreateOffer(ctx context.Context, offer *domain.Offer) error {
	query := `INSERT INTO offers (business_id, title, description, original_price, discounted_price,
	          currency, quantity, pickup_start, pickup_end, active, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	          RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		offer.BusinessID,
		offer.Title,
		offer.Description,
		offer.OriginalPrice.Amount,
		offer.DiscountedPrice.Amount,
		offer.DiscountedPrice.Currency.String(),
		offer.Quantity,
		offer.PickupStart,
		offer.PickupEnd,
		offer.Active,
	).Scan(&offer.ID, &offer.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}

	return nil
}

func (r *Repository) DeleteOffer(ctx context.Context, id, businessID int64) error {
	query := `DELETE FROM offers WHERE id = $1 AND business_id = $2`

	result, err := r.db.ExecContext(ctx, query, id, businessID)
	if err != nil {
		return fmt.Errorf("delete offer: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete offer rows affected: %w", err)
	}
	if affected == 0 {
		return ErrOfferNotFound
	}

	return nil
}

// ToggleOffer flips the active flag and returns the new value.
func (r *Repository) ToggleOffer(ctx context.Context, id, businessID int64) (bool, error) {
	query := `UPDATE offers SET active = NOT active WHERE id = $1 AND business_id = $2 RETURNING active`

	var active bool
	err := r.db.QueryRowContext(ctx, query, id, businessID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrOfferNotFound
	}
	if err != nil {
		return false, fmt.Errorf("toggle offer: %w", err)
	}

	return active, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOffer(row rowScanner) (*domain.Offer, error) {
	var (
		o            domain.Offer
		original     decimal.Decimal
		discounted   decimal.Decimal
		currencyCode string
	)

	err := row.Scan(
		&o.ID,
		&o.BusinessID,
		&o.Title,
		&o.Description,
		&original,
		&discounted,
		&currencyCode,
		&o.Quantity,
		&o.PickupStart,
		&o.PickupEnd,
		&o.Active,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if o.OriginalPrice, err = domain.NewMoney(original, currencyCode); err != nil {
		return nil, err
	}
	if o.DiscountedPrice, err = domain.NewMoney(discounted, currencyCode); err != nil {
		return nil, err
	}

	return &o, nil
}
