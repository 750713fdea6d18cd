package service

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kindplate/kindplate/internal/cache"
	"github.com/kindplate/kindplate/internal/cartstore"
	"github.com/kindplate/kindplate/internal/domain"
	"github.com/kindplate/kindplate/internal/repository"
)

type CartService struct {
	repo   cartstore.CartRepository
	cache  cache.CartCache
	offers repository.OfferRepository
	sfg    singleflight.Group // Prevents cache stampede
}

func NewCartService(repo cartstore.CartRepository, cache cache.CartCache, offers repository.OfferRepository) *CartService {
	return &CartService{
		repo:   repo,
		cache:  cache,
		offers: offers,
	}
}

func (s *CartService) GetCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(customerID, func() (interface{}, error) {

		cart, err := s.cache.Get(ctx, customerID)
		if err == nil {
			return cart, nil // cart is in cache
		}

		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cache get error: %v \n", err) // log cache error but continue
		}

		cart, errGet := s.repo.GetCart(ctx, customerID)
		if errGet != nil && errors.Is(errGet, cartstore.ErrCartNotFound) { // no cart yet, return empty cart
			return &domain.Cart{
				CustomerID: customerID,
				Items:      nil,
				CreatedAt:  time.Now(),
				UpdatedAt:  time.Now(),
			}, nil
		}
		if errGet != nil {
			return nil, errGet
		}

		// set cache
		go func() {
			errSet := s.cache.Set(context.Background(), customerID, cart)
			if errSet != nil {
				log.Printf("cache set error: %v \n", errSet)
			}
		}()

		return cart, nil
	})

	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// AddOffer adds an offer to the customer's cart, enforcing the
// single-vendor-cart rule: a cart scoped to another business rejects the add
// with a *VendorConflictError and no mutation happens.
func (s *CartService) AddOffer(ctx context.Context, customerID string, offerID int64, quantity int) (*domain.Cart, error) {
	item, offer, err := s.buildItem(ctx, offerID, quantity)
	if err != nil {
		return nil, err
	}

	cart, err := s.GetCart(ctx, customerID)
	if err != nil {
		return nil, err
	}

	if cart.ConflictsWith(offer.BusinessID) {
		return nil, &VendorConflictError{
			CurrentBusinessID:   cart.BusinessID,
			CurrentBusinessName: cart.Items[0].Snapshot.BusinessName,
			NewBusinessID:       offer.BusinessID,
			NewBusinessName:     item.Snapshot.BusinessName,
		}
	}

	if errAdd := s.repo.AddItem(ctx, customerID, item); errAdd != nil {
		log.Printf("repo add item error: %v \n", errAdd)
		return nil, errAdd
	}

	s.invalidateCache(customerID)
	return s.GetCart(ctx, customerID)
}

// ReplaceWithOffer resolves a confirmed vendor conflict: the existing cart is
// dropped and replaced by the new offer in one write.
func (s *CartService) ReplaceWithOffer(ctx context.Context, customerID string, offerID int64, quantity int) (*domain.Cart, error) {
	item, _, err := s.buildItem(ctx, offerID, quantity)
	if err != nil {
		return nil, err
	}

	if errReplace := s.repo.ReplaceCart(ctx, customerID, item); errReplace != nil {
		log.Printf("repo replace cart error: %v \n", errReplace)
		return nil, errReplace
	}

	s.invalidateCache(customerID)
	return s.GetCart(ctx, customerID)
}

// UpdateQuantity sets an item's quantity; zero or less removes the item.
func (s *CartService) UpdateQuantity(ctx context.Context, customerID string, offerID int64, quantity int) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, customerID, offerID)
	}

	errUpdate := s.repo.UpdateItemQuantity(ctx, customerID, offerID, quantity)
	if errUpdate != nil {
		log.Printf("repo update item quantity error: %v \n", errUpdate)
		return errUpdate
	}

	s.invalidateCache(customerID)
	return nil
}

func (s *CartService) RemoveItem(ctx context.Context, customerID string, offerID int64) error {
	errRemove := s.repo.RemoveItem(ctx, customerID, offerID)
	if errRemove != nil {
		log.Printf("repo remove item error: %v \n", errRemove)
		return errRemove
	}

	s.invalidateCache(customerID)
	return nil
}

func (s *CartService) ClearCart(ctx context.Context, customerID string) error {
	errDelete := s.repo.DeleteCart(ctx, customerID)
	if errDelete != nil && !errors.Is(errDelete, cartstore.ErrCartNotFound) {
		log.Printf("repo delete cart error: %v \n", errDelete)
		return errDelete
	}

	s.invalidateCache(customerID)
	return nil
}

// buildItem resolves the offer and its business into a cart item carrying the
// display snapshot.
func (s *CartService) buildItem(ctx context.Context, offerID int64, quantity int) (domain.CartItem, *domain.Offer, error) {
	offer, err := s.offers.GetOffer(ctx, offerID)
	if err != nil {
		return domain.CartItem{}, nil, err
	}
	if !offer.Active || offer.Quantity <= 0 {
		return domain.CartItem{}, nil, ErrOfferUnavailable
	}

	business, err := s.offers.GetBusiness(ctx, offer.BusinessID)
	if err != nil {
		return domain.CartItem{}, nil, err
	}

	return domain.CartItem{
		OfferID:    offer.ID,
		BusinessID: offer.BusinessID,
		Quantity:   quantity,
		Snapshot: domain.OfferSnapshot{
			Title:           offer.Title,
			DiscountedPrice: offer.DiscountedPrice,
			PickupStart:     offer.PickupStart,
			PickupEnd:       offer.PickupEnd,
			BusinessName:    business.Name,
		},
	}, offer, nil
}

func (s *CartService) invalidateCache(customerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	errInvalidate := s.cache.Delete(ctx, customerID)
	if errInvalidate != nil {
		log.Printf("cache invalidate error: %v \n", errInvalidate)
	}
}
