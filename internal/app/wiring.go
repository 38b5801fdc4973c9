package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/fulfillment-backend/internal/cache"
	"github.com/angelmondragon/fulfillment-backend/internal/inventory"
	"github.com/angelmondragon/fulfillment-backend/internal/notifications"
	"github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/fulfillment-backend/pkg/pubsub"
	"github.com/angelmondragon/fulfillment-backend/pkg/redis"
)

// OrderStack is the order state machine plus the collaborators every binary
// that mutates orders shares.
type OrderStack struct {
	Ledger   *inventory.Ledger
	Cache    *cache.OrderCache
	Notifier orders.Notifier
	Orders   orders.Service

	closers []func() error
}

// Close releases notifier transports in reverse order of creation.
func (s *OrderStack) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BuildOrderStack wires the ledger, cache, notifier and order service.
func BuildOrderStack(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, m *metrics.FulfillmentMetrics) (*OrderStack, error) {
	stack := &OrderStack{Ledger: inventory.NewLedger(logg)}

	orderCache, err := cache.NewOrderCache(redisClient, cfg.Cache.OrderTTL, logg)
	if err != nil {
		return nil, fmt.Errorf("order cache: %w", err)
	}
	stack.Cache = orderCache

	if err := stack.buildNotifier(ctx, cfg, logg); err != nil {
		_ = stack.Close()
		return nil, err
	}

	svc, err := orders.NewService(orders.ServiceParams{
		Repo:          orders.NewRepository(dbClient.DB()),
		Tx:            dbClient,
		Ledger:        stack.Ledger,
		Notifier:      stack.Notifier,
		Cache:         orderCache,
		Limiter:       redisClient,
		Metrics:       m,
		Logger:        logg,
		ClaimAttempts: cfg.Checkout.ClaimMaxAttempts,
		ClaimWindow:   cfg.Checkout.ClaimWindow,
	})
	if err != nil {
		_ = stack.Close()
		return nil, fmt.Errorf("order service: %w", err)
	}
	stack.Orders = svc
	return stack, nil
}

func (s *OrderStack) buildNotifier(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Notifications.Transport)) {
	case config.NotificationsTransportPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return fmt.Errorf("pubsub client: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		sink, err := notifications.NewPubSubSink(client.OrdersPublisher())
		if err != nil {
			return fmt.Errorf("pubsub sink: %w", err)
		}
		s.Notifier = sink
	case config.NotificationsTransportKafka:
		sink, err := notifications.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, logg)
		if err != nil {
			return fmt.Errorf("kafka sink: %w", err)
		}
		s.closers = append(s.closers, sink.Close)
		s.Notifier = sink
	default:
		s.Notifier = notifications.NewLogSink(logg)
	}
	return nil
}
