package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OfferSnapshot is a denormalized copy of an offer embedded in a cart item,
// so carts render without re-fetching offers. Snapshot fields are copied at
// add-to-cart time and never re-validated against the live offer.
type OfferSnapshot struct {
	Title           string `json:"title"`
	DiscountedPrice Money  `json:"discounted_price"`
	PickupStart     string `json:"pickup_start"`
	PickupEnd       string `json:"pickup_end"`
	BusinessName    string `json:"business_name"`
}

type CartItem struct {
	OfferID    int64         `json:"offer_id"`
	BusinessID int64         `json:"business_id"`
	Quantity   int           `json:"quantity"`
	Snapshot   OfferSnapshot `json:"snapshot"`
	AddedAt    time.Time     `json:"added_at"`
}

type Cart struct {
	CustomerID string     `json:"customer_id"`
	BusinessID int64      `json:"business_id"`
	Items      []CartItem `json:"items"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// ConflictsWith reports whether adding an offer from the given business would
// break the single-vendor-cart rule. An empty cart never conflicts.
func (c *Cart) ConflictsWith(businessID int64) bool {
	if c.IsEmpty() {
		return false
	}
	return c.BusinessID != businessID
}

// TotalPrice folds discounted_price x quantity over all items. Pure and
// order-independent.
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	if c == nil {
		return total
	}
	for _, item := range c.Items {
		total = total.Add(item.Snapshot.DiscountedPrice.Amount.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// Currency returns the currency of the first item, or the empty string for an
// empty cart. All items in a single-vendor cart share one currency.
func (c *Cart) Currency() string {
	if c.IsEmpty() {
		return ""
	}
	return c.Items[0].Snapshot.DiscountedPrice.Currency.String()
}

func (c *Cart) FindItem(offerID int64) *CartItem {
	if c == nil {
		return nil
	}
	for i := range c.Items {
		if c.Items[i].OfferID == offerID {
			return &c.Items[i]
		}
	}
	return nil
}
