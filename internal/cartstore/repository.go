package cartstore

import (
	"context"
	"errors"

	"github.com/kindplate/kindplate/internal/domain"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("item not found in cart")
)

// CartRepository persists the server-mirrored cart. The single-vendor rule is
// enforced one level up, in the cart service; the repository only guarantees
// that ReplaceCart swaps the whole document in one write.
type CartRepository interface {
	GetCart(ctx context.Context, customerID string) (*domain.Cart, error)
	AddItem(ctx context.Context, customerID string, item domain.CartItem) error
	ReplaceCart(ctx context.Context, customerID string, item domain.CartItem) error
	UpdateItemQuantity(ctx context.Context, customerID string, offerID int64, quantity int) error
	RemoveItem(ctx context.Context, customerID string, offerID int64) error
	DeleteCart(ctx context.Context, customerID string) error
}
