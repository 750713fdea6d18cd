package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"

	"github.com/kindplate/kindplate/internal/domain"
	"github.com/kindplate/kindplate/internal/repository"
)

// Seeds the database with fake businesses and offers for local development.

var offerTitles = []string{
	"Surprise bag",
	"Evening bread box",
	"Pastry assortment",
	"Lunch leftovers",
	"Veggie box",
	"Sushi set",
	"Soup and bread",
	"Deli selection",
}

var pickupWindows = [][2]string{
	{"12:00", "14:00"},
	{"16:30", "18:00"},
	{"17:00", "19:00"},
	{"18:00", "20:30"},
	{"20:00", "21:30"},
}

func main() {
	cred := &repository.Credentials{
		Host:              getEnv("POSTGRES_HOST", "localhost"),
		Port:              getEnvInt("POSTGRES_PORT", 5432),
		User:              getEnv("POSTGRES_USER", "kindplate"),
		Password:          getEnv("POSTGRES_PASSWORD", "kindplate"),
		DBName:            getEnv("POSTGRES_DB", "kindplate"),
		MigrationsDirPath: getEnv("MIGRATIONS_DIR", "./migrations"),
	}

	repo, err := repository.NewRepository(cred)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(cred); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	businesses := getEnvInt("SEED_BUSINESSES", 10)
	offersPer := getEnvInt("SEED_OFFERS_PER_BUSINESS", 4)
	ctx := context.Background()

	for i := 0; i < businesses; i++ {
		business := &domain.Business{
			Name:    gofakeit.Company(),
			Address: gofakeit.Street() + ", " + gofakeit.City(),
		}
		if err := repo.CreateBusiness(ctx, business); err != nil {
			log.Fatalf("failed to create business: %v", err)
		}

		for j := 0; j < offersPer; j++ {
			if err := repo.CreateOffer(ctx, randomOffer(business.ID)); err != nil {
				log.Fatalf("failed to create offer: %v", err)
			}
		}

		log.Printf("seeded business %q with %d offers", business.Name, offersPer)
	}

	log.Printf("done: %d businesses, %d offers", businesses, businesses*offersPer)
}

func randomOffer(businessID int64) *domain.Offer {
	original := decimal.NewFromFloat(gofakeit.Float64Range(6, 25)).Round(2)
	discounted := original.Mul(decimal.NewFromFloat(gofakeit.Float64Range(0.25, 0.5))).Round(2)
	window := pickupWindows[rand.Intn(len(pickupWindows))]

	originalMoney, err := domain.NewMoney(original, "EUR")
	if err != nil {
		log.Fatalf("failed to build price: %v", err)
	}
	discountedMoney, err := domain.NewMoney(discounted, "EUR")
	if err != nil {
		log.Fatalf("failed to build price: %v", err)
	}

	return &domain.Offer{
		BusinessID:      businessID,
		Title:           offerTitles[rand.Intn(len(offerTitles))],
		Description:     fmt.Sprintf("%s from %s", gofakeit.AdjectiveDescriptive(), gofakeit.Company()),
		OriginalPrice:   originalMoney,
		DiscountedPrice: discountedMoney,
		Quantity:        gofakeit.Number(1, 10),
		PickupStart:     window[0],
		PickupEnd:       window[1],
		Active:          true,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			log.Fatalf("invalid %s: %v", key, err)
		}
		return parsed
	}
	return defaultValue
}
