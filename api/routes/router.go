package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/fulfillment-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/fulfillment-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/fulfillment-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/fulfillment-backend/api/controllers/webhooks"
	"github.com/angelmondragon/fulfillment-backend/api/middleware"
	"github.com/angelmondragon/fulfillment-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/fulfillment-backend/internal/checkout"
	"github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

// IdempotencyStore backs replay protection for mutating routes.
type IdempotencyStore = middleware.IdempotencyStore

type orderCachePurger interface {
	PurgeOrders(ctx context.Context) (int, error)
}

// Dependencies carries everything the HTTP surface needs. Nil services make
// their handlers answer 500 instead of panicking.
type Dependencies struct {
	Pingers     map[string]controllers.Pinger
	Idempotency IdempotencyStore
	Metrics     prometheus.Gatherer

	Checkout  checkoutsvc.Service
	Carts     cart.Service
	Orders    orders.Service
	Payments  ordercontrollers.SessionCreator
	Webhooks  webhookcontrollers.PaymentWebhookService
	Inventory controllers.InventoryService
	Cache     orderCachePurger
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	idem := middleware.Idempotency(deps.Idempotency, logg, middleware.DefaultIdempotencyTTL)
	critical := middleware.Idempotency(deps.Idempotency, logg, middleware.CriticalIdempotencyTTL)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Pingers, logg))
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.Webhooks, logg))

		// Guests and customers.
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))

			r.With(critical).Post("/checkout", controllers.Checkout(deps.Checkout, logg))

			r.With(idem).Post("/carts", cartcontrollers.CartCreate(deps.Carts, logg))
			r.Get("/carts/{cartID}", cartcontrollers.CartFetch(deps.Carts, logg))
			r.With(idem).Put("/carts/{cartID}/items", cartcontrollers.CartSetItem(deps.Carts, logg))

			r.Post("/orders/lookup", ordercontrollers.GuestLookup(deps.Orders, logg))
			r.With(critical).Post("/orders/{orderID}/payment-session", ordercontrollers.PaymentSession(deps.Orders, deps.Payments, logg))
		})

		// Signed-in customers.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.Get("/orders", ordercontrollers.List(deps.Orders, logg))
			r.Get("/orders/{orderID}", ordercontrollers.Detail(deps.Orders, logg))
			r.With(critical).Post("/orders/{orderID}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
			r.With(idem).Post("/orders/{orderID}/claim", ordercontrollers.Claim(deps.Orders, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin))

			r.With(idem).Post("/orders/{orderID}/fulfillment", controllers.AdminAdvanceFulfillment(deps.Orders, logg))
			r.Get("/inventory/{variantID}", controllers.AdminInventoryGet(deps.Inventory, logg))
			r.With(idem).Post("/inventory/{variantID}/adjust", controllers.AdminInventoryAdjust(deps.Inventory, logg))
			r.Post("/cache/orders/purge", controllers.AdminPurgeOrderCache(deps.Cache, logg))
		})
	})

	return r
}
