package domain

import "time"

// Offer is a discounted, quantity-limited food item listed by a business,
// collectable within its pickup window.
type Offer struct {
	ID              int64
	BusinessID      int64
	Title           string
	Description     string
	OriginalPrice   Money
	DiscountedPrice Money
	Quantity        int
	PickupStart     string
	PickupEnd       string
	Active          bool
	CreatedAt       time.Time
}

type Business struct {
	ID        int64
	Name      string
	Address   string
	CreatedAt time.Time
}
