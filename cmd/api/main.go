package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/fulfillment-backend/api/controllers"
	"github.com/angelmondragon/fulfillment-backend/api/routes"
	"github.com/angelmondragon/fulfillment-backend/internal/app"
	"github.com/angelmondragon/fulfillment-backend/internal/cart"
	"github.com/angelmondragon/fulfillment-backend/internal/catalog"
	"github.com/angelmondragon/fulfillment-backend/internal/checkout"
	"github.com/angelmondragon/fulfillment-backend/internal/inventory"
	"github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/internal/payments"
	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/fulfillment-backend/pkg/migrate"
	"github.com/angelmondragon/fulfillment-backend/pkg/redis"
	"github.com/angelmondragon/fulfillment-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Env:         cfg.App.Env,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	fulfillmentMetrics := metrics.NewFulfillmentMetrics(registry)

	stack, err := app.BuildOrderStack(context.Background(), cfg, logg, dbClient, redisClient, fulfillmentMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build order stack", err)
		os.Exit(1)
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logg.Error(context.Background(), "error closing notifier", err)
		}
	}()

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient, stack, fulfillmentMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		os.Exit(1)
	}
	deps.Metrics = registry

	port := cfg.App.Port
	if envPort := os.Getenv("PORT"); envPort != "" {
		port = envPort
	}

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"port": port,
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(groupCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		logg.Info(groupCtx, "shutting down api server")
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped gracefully")
}

func buildDependencies(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, stack *app.OrderStack, m *metrics.FulfillmentMetrics) (routes.Dependencies, error) {
	inventorySvc, err := inventory.NewService(dbClient, dbClient.DB(), stack.Ledger, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	catalogRepo := catalog.NewRepository(dbClient.DB())
	cartRepo := cart.NewRepository(dbClient.DB())
	cartSvc, err := cart.NewService(cartRepo, catalogRepo)
	if err != nil {
		return routes.Dependencies{}, err
	}

	currency, err := enums.ParseCurrency(cfg.Checkout.Currency)
	if err != nil {
		return routes.Dependencies{}, err
	}
	numbers, err := checkout.NewRedisOrderNumbers(redisClient, cfg.Checkout.OrderNumberPrefix)
	if err != nil {
		return routes.Dependencies{}, err
	}
	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Tx:       dbClient,
		Carts:    cartRepo,
		Catalog:  catalogRepo,
		Orders:   orders.NewRepository(dbClient.DB()),
		Ledger:   stack.Ledger,
		Numbers:  numbers,
		Currency: currency,
		Metrics:  m,
		Logger:   logg,
		Pricing: checkout.FlatRatePricing{
			ShippingCents:              cfg.Checkout.ShippingFlatCents,
			FreeShippingThresholdCents: cfg.Checkout.FreeShippingThresholdCents,
			TaxRateBasisPoints:         cfg.Checkout.TaxRateBasisPoints,
		},
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}
	provider, err := payments.NewStripeProvider(payments.StripeProviderParams{
		Sessions:   stripeClient,
		Verifier:   stripeClient,
		SuccessURL: cfg.Stripe.SuccessURL,
		CancelURL:  cfg.Stripe.CancelURL,
		SessionTTL: cfg.Checkout.PaymentSessionTTL,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	guard, err := payments.NewIdempotencyGuard(redisClient, cfg.Checkout.WebhookIdempotencyTTL)
	if err != nil {
		return routes.Dependencies{}, err
	}
	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Orders:          stack.Orders,
		Provider:        provider,
		Guard:           guard,
		ProviderName:    enums.PaymentProviderStripe,
		ProviderTimeout: cfg.Checkout.ProviderTimeout,
		Metrics:         m,
		Logger:          logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		Pingers: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Idempotency: redisClient,
		Checkout:    checkoutSvc,
		Carts:       cartSvc,
		Orders:      stack.Orders,
		Payments:    paymentSvc,
		Webhooks:    paymentSvc,
		Inventory:   inventorySvc,
		Cache:       stack.Cache,
	}, nil
}
