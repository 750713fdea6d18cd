package cartstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kindplate/kindplate/internal/domain"
)

// cartDoc is the mongo shape of a cart. Prices are stored as strings so the
// decimal values round-trip without float drift.
type cartDoc struct {
	ID         string        `bson:"_id,omitempty"`
	CustomerID string        `bson:"customer_id"`
	BusinessID int64         `bson:"business_id"`
	Items      []cartItemDoc `bson:"items"`
	CreatedAt  time.Time     `bson:"created_at"`
	UpdatedAt  time.Time     `bson:"updated_at"`
}

type cartItemDoc struct {
	OfferID       int64     `bson:"offer_id"`
	BusinessID    int64     `bson:"business_id"`
	Quantity      int       `bson:"quantity"`
	Title         string    `bson:"title"`
	PriceAmount   string    `bson:"price_amount"`
	PriceCurrency string    `bson:"price_currency"`
	PickupStart   string    `bson:"pickup_start"`
	PickupEnd     string    `bson:"pickup_end"`
	BusinessName  string    `bson:"business_name"`
	AddedAt       time.Time `bson:"added_at"`
}

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("carts"),
	}
}

func (m *MongoRepository) GetCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	var doc cartDoc

	filter := bson.M{"customer_id": customerID}
	err := m.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return mapDocToDomain(doc)
}

func (m *MongoRepository) AddItem(ctx context.Context, customerID string, item domain.CartItem) error {
	now := time.Now()
	item.AddedAt = now
	itemDoc := mapItemToDoc(item)

	filter := bson.M{"customer_id": customerID}

	var existing cartDoc
	err := m.collection.FindOne(ctx, filter).Decode(&existing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			doc := cartDoc{
				CustomerID: customerID,
				BusinessID: item.BusinessID,
				Items:      []cartItemDoc{itemDoc},
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if _, e2 := m.collection.InsertOne(ctx, doc); e2 != nil {
				return fmt.Errorf("failed to create cart with item: %w", e2)
			}
			return nil
		}
		return fmt.Errorf("failed to check existing cart: %w", err)
	}

	itemExists := false
	for _, ex := range existing.Items {
		if ex.OfferID == item.OfferID {
			itemExists = true
			break
		}
	}

	if itemExists {
		// Re-adding an offer replaces the quantity and refreshes the snapshot.
		update := bson.M{
			"$set": bson.M{
				"items.$[elem]": itemDoc,
				"updated_at":    now,
			},
		}
		arrayFilters := options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{
				bson.M{"elem.offer_id": item.OfferID},
			},
		})

		if _, e2 := m.collection.UpdateOne(ctx, filter, update, arrayFilters); e2 != nil {
			return fmt.Errorf("failed to update existing item: %w", e2)
		}
		return nil
	}

	update := bson.M{
		"$push": bson.M{"items": itemDoc},
		"$set":  bson.M{"updated_at": now, "business_id": item.BusinessID},
	}
	if _, e2 := m.collection.UpdateOne(ctx, filter, update); e2 != nil {
		return fmt.Errorf("failed to add new item: %w", e2)
	}

	return nil
}

// ReplaceCart swaps the whole cart for a single item from a new vendor. One
// upsert, so the clear-then-add resolution is atomic from the client's view.
func (m *MongoRepository) ReplaceCart(ctx context.Context, customerID string, item domain.CartItem) error {
	now := time.Now()
	item.AddedAt = now

	filter := bson.M{"customer_id": customerID}
	update := bson.M{
		"$set": bson.M{
			"business_id": item.BusinessID,
			"items":       []cartItemDoc{mapItemToDoc(item)},
			"updated_at":  now,
		},
		"$setOnInsert": bson.M{
			"customer_id": customerID,
			"created_at":  now,
		},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to replace cart: %w", err)
	}

	return nil
}

func (m *MongoRepository) UpdateItemQuantity(ctx context.Context, customerID string, offerID int64, quantity int) error {
	filter := bson.M{
		"customer_id":    customerID,
		"items.offer_id": offerID,
	}

	update := bson.M{
		"$set": bson.M{
			"items.$[elem].quantity": quantity,
			"updated_at":             time.Now(),
		},
	}

	arrayFilters := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{
			bson.M{"elem.offer_id": offerID},
		},
	})

	result, err := m.collection.UpdateOne(ctx, filter, update, arrayFilters)
	if err != nil {
		return fmt.Errorf("failed to update item quantity: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (m *MongoRepository) RemoveItem(ctx context.Context, customerID string, offerID int64) error {
	filter := bson.M{"customer_id": customerID}
	update := bson.M{
		"$pull": bson.M{
			"items": bson.M{"offer_id": offerID},
		},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

func (m *MongoRepository) DeleteCart(ctx context.Context, customerID string) error {
	filter := bson.M{"customer_id": customerID}

	result, err := m.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "customer_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func mapItemToDoc(item domain.CartItem) cartItemDoc {
	return cartItemDoc{
		OfferID:       item.OfferID,
		BusinessID:    item.BusinessID,
		Quantity:      item.Quantity,
		Title:         item.Snapshot.Title,
		PriceAmount:   item.Snapshot.DiscountedPrice.Amount.String(),
		PriceCurrency: item.Snapshot.DiscountedPrice.Currency.String(),
		PickupStart:   item.Snapshot.PickupStart,
		PickupEnd:     item.Snapshot.PickupEnd,
		BusinessName:  item.Snapshot.BusinessName,
		AddedAt:       item.AddedAt,
	}
}

func mapDocToDomain(doc cartDoc) (*domain.Cart, error) {
	items := make([]domain.CartItem, 0, len(doc.Items))
	for _, itemDoc := range doc.Items {
		item, err := mapItemDocToDomain(itemDoc)
		if err != nil {
			return nil, fmt.Errorf("mapItemDocToDomain: %w", err)
		}
		items = append(items, item)
	}

	return &domain.Cart{
		CustomerID: doc.CustomerID,
		BusinessID: doc.BusinessID,
		Items:      items,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}, nil
}

func mapItemDocToDomain(doc cartItemDoc) (domain.CartItem, error) {
	amount, err := decimal.NewFromString(doc.PriceAmount)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("price amount[%s] is not valid: %w", doc.PriceAmount, err)
	}

	price, err := domain.NewMoney(amount, doc.PriceCurrency)
	if err != nil {
		return domain.CartItem{}, err
	}

	return domain.CartItem{
		OfferID:    doc.OfferID,
		BusinessID: doc.BusinessID,
		Quantity:   doc.Quantity,
		Snapshot: domain.OfferSnapshot{
			Title:           doc.Title,
			DiscountedPrice: price,
			PickupStart:     doc.PickupStart,
			PickupEnd:       doc.PickupEnd,
			BusinessName:    doc.BusinessName,
		},
		AddedAt: doc.AddedAt,
	}, nil
}
