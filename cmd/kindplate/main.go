package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/kindplate/kindplate/internal/cache"
	"github.com/kindplate/kindplate/internal/cartstore"
	"github.com/kindplate/kindplate/internal/httpapi"
	"github.com/kindplate/kindplate/internal/payment"
	"github.com/kindplate/kindplate/internal/publisher"
	"github.com/kindplate/kindplate/internal/repository"
	"github.com/kindplate/kindplate/internal/service"
)

type Config struct {
	HTTPPort        string
	MongoURI        string
	MongoDatabase   string
	RedisAddr       string
	Postgres        repository.Credentials
	KafkaBrokers    []string
	AuthSecret      string
	QRSecret        string
	WebhookSecret   string
	QRTTL           time.Duration
	ServiceFee      decimal.Decimal
	Currency        string
	ProviderURL     string
	ReturnURL       string
	PaymentTTL      time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	ScanRate        rate.Limit
	ScanBurst       int
}

func loadConfig() *Config {
	fee, err := decimal.NewFromString(getEnv("SERVICE_FEE", "0.49"))
	if err != nil {
		log.Fatalf("invalid SERVICE_FEE: %v", err)
	}

	return &Config{
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		MongoURI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGODB_DATABASE", "kindplate"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Postgres: repository.Credentials{
			Host:              getEnv("POSTGRES_HOST", "localhost"),
			Port:              getEnvInt("POSTGRES_PORT", 5432),
			User:              getEnv("POSTGRES_USER", "kindplate"),
			Password:          getEnv("POSTGRES_PASSWORD", "kindplate"),
			DBName:            getEnv("POSTGRES_DB", "kindplate"),
			MigrationsDirPath: getEnv("MIGRATIONS_DIR", "./migrations"),
		},
		KafkaBrokers:    strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		AuthSecret:      getEnv("AUTH_SECRET", "dev-secret-change-me"),
		QRSecret:        getEnv("QR_SECRET", "dev-qr-secret-change-me"),
		WebhookSecret:   getEnv("WEBHOOK_SECRET", "dev-webhook-secret-change-me"),
		QRTTL:           time.Duration(getEnvInt("QR_TTL_SECONDS", 300)) * time.Second,
		ServiceFee:      fee,
		Currency:        getEnv("CURRENCY", "EUR"),
		ProviderURL:     getEnv("PAYMENT_PROVIDER_URL", "http://localhost:9000"),
		ReturnURL:       getEnv("PAYMENT_RETURN_URL", "http://localhost:3000/orders"),
		PaymentTTL:      time.Duration(getEnvInt("PAYMENT_TTL_MINUTES", 30)) * time.Minute,
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		ScanRate:        rate.Limit(getEnvInt("SCAN_RATE_PER_SEC", 5)),
		ScanBurst:       getEnvInt("SCAN_BURST", 10),
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

func main() {
	cfg := loadConfig()
	ctx := context.Background()

	// Cart mirror in MongoDB.
	mongoDB, err := cartstore.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatalf("failed to connect to MongoDB: %v", err)
	}
	cartRepo := cartstore.NewMongoRepository(mongoDB)
	if err := cartRepo.CreateIndexes(ctx); err != nil {
		log.Fatalf("failed to create mongo indexes: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to ping redis: %v", err)
	}
	cartCache := cache.NewRedisCache(redisClient)

	// Offers, orders, payments and the outbox in Postgres.
	repo, err := repository.NewRepository(&cfg.Postgres)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(&cfg.Postgres); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	provider := payment.NewClient(cfg.ProviderURL, 10*time.Second)

	qrSigner := service.NewQRSigner([]byte(cfg.QRSecret), cfg.QRTTL)
	carts := service.NewCartService(cartRepo, cartCache, repo)
	checkout := service.NewCheckoutService(carts, repo, repo, cfg.ServiceFee)
	redemption := service.NewRedemptionService(repo, qrSigner)
	payments := service.NewPaymentService(repo, repo, provider, cfg.ReturnURL)

	// Outbox poller publishes order events and cancels unpaid orders.
	poller := publisher.NewOutboxPoller(repo, cfg.PaymentTTL, cfg.KafkaBrokers...)
	pollerCtx, stopPoller := context.WithCancel(context.Background())
	go poller.Run(pollerCtx)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		AuthSecret:     []byte(cfg.AuthSecret),
		RequestTimeout: cfg.RequestTimeout,
		ServiceFee:     cfg.ServiceFee,
		Currency:       cfg.Currency,
		ScanRate:       cfg.ScanRate,
		ScanBurst:      cfg.ScanBurst,
	},
		httpapi.NewCartHandler(carts, cfg.RequestTimeout),
		httpapi.NewOrdersHandler(checkout, redemption, cfg.RequestTimeout),
		httpapi.NewPaymentHandler(payments, []byte(cfg.WebhookSecret), cfg.RequestTimeout),
		httpapi.NewOffersHandler(repo, cfg.RequestTimeout),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "kindplate-api"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("kindplate API starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	stopPoller()
	if err := poller.Close(); err != nil {
		log.Printf("failed to close kafka writer: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("server exited")
}
