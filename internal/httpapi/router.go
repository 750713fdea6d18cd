package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

type RouterConfig struct {
	AuthSecret     []byte
	RequestTimeout time.Duration
	ServiceFee     decimal.Decimal
	Currency       string
	ScanRate       rate.Limit
	ScanBurst      int
}

// NewRouter assembles the public API surface. Customer and business routes
// share the auth middleware but are fenced by role.
func NewRouter(cfg RouterConfig, cart *CartHandler, orders *OrdersHandler, payments *PaymentHandler, offers *OffersHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Provider webhook is authenticated by an HMAC signature, not a user token.
	r.Post("/api/v1/payments/webhook", payments.Webhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.AuthSecret))

		r.Get("/config", func(w http.ResponseWriter, req *http.Request) {
			respondJSON(w, http.StatusOK, map[string]string{
				"service_fee": cfg.ServiceFee.StringFixed(2),
				"currency":    cfg.Currency,
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleCustomer))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cart.GetCart)
				r.Delete("/", cart.ClearCart)
				r.Post("/items", cart.AddItem)
				r.Put("/items/{offer_id}", cart.UpdateQuantity)
				r.Delete("/items/{offer_id}", cart.RemoveItem)
				r.Post("/replace", cart.ReplaceCart)
			})

			r.Get("/offers/{offer_id}", offers.GetActiveOffer)

			r.Get("/checkout/draft", orders.GetDraft)

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", orders.PlaceOrder)
				r.Get("/", orders.ListOrders)
				r.Get("/{order_id}", orders.GetOrder)
				r.Get("/{order_id}/qr", orders.GetOrderQR)
				r.Post("/{order_id}/payment", payments.InitiatePayment)
			})
		})

		r.Route("/business", func(r chi.Router) {
			r.Use(RequireRole(RoleBusiness))

			r.Route("/offers", func(r chi.Router) {
				r.Get("/", offers.ListMine)
				r.Post("/", offers.CreateOffer)
				r.Get("/{offer_id}", offers.GetOffer)
				r.Delete("/{offer_id}", offers.DeleteOffer)
				r.Post("/{offer_id}/toggle", offers.ToggleOffer)
			})

			r.Post("/orders/{order_id}/ready", orders.MarkReady)

			r.Group(func(r chi.Router) {
				r.Use(ScanRateLimit(rate.NewLimiter(cfg.ScanRate, cfg.ScanBurst)))
				r.Post("/scan", orders.Scan)
			})
		})
	})

	return r
}
