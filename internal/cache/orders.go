package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/redis"
)

const (
	orderNamespace  = "order"
	defaultOrderTTL = 10 * time.Minute
)

// Store is the slice of the redis client the order cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) (int, error)
	CacheKey(parts ...string) string
}

// OrderCache keeps serialized orders in redis. Every failure is logged and
// reported as a miss; the database stays the source of truth.
type OrderCache struct {
	store Store
	ttl   time.Duration
	logg  *logger.Logger
}

func NewOrderCache(store Store, ttl time.Duration, logg *logger.Logger) (*OrderCache, error) {
	if store == nil {
		return nil, errors.New("cache store required")
	}
	if ttl <= 0 {
		ttl = defaultOrderTTL
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &OrderCache{store: store, ttl: ttl, logg: logg}, nil
}

func (c *OrderCache) key(orderID uuid.UUID) string {
	return c.store.CacheKey(orderNamespace, orderID.String())
}

func (c *OrderCache) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, bool) {
	raw, err := c.store.Get(ctx, c.key(orderID))
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logg.Warn(c.logg.WithOrderID(ctx, orderID.String()), "order cache read failed: "+err.Error())
		return nil, false
	}
	var order models.Order
	if err := json.Unmarshal([]byte(raw), &order); err != nil || !order.Status.IsTerminal() {
		c.logg.Warn(c.logg.WithOrderID(ctx, orderID.String()), "order cache entry corrupt")
		c.drop(ctx, orderID)
		return nil, false
	}
	return &order, true
}

// Set stores terminal orders only; live orders are always read from the
// database.
func (c *OrderCache) Set(ctx context.Context, order *models.Order) {
	if order == nil || !order.Status.IsTerminal() {
		return
	}
	payload, err := json.Marshal(order)
	if err != nil {
		c.logg.Warn(c.logg.WithOrderID(ctx, order.ID.String()), "order cache encode failed: "+err.Error())
		return
	}
	if err := c.store.Set(ctx, c.key(order.ID), payload, c.ttl); err != nil {
		c.logg.Warn(c.logg.WithOrderID(ctx, order.ID.String()), "order cache write failed: "+err.Error())
	}
}

func (c *OrderCache) Invalidate(ctx context.Context, order *models.Order) {
	if order == nil {
		return
	}
	c.drop(ctx, order.ID)
}

func (c *OrderCache) drop(ctx context.Context, orderID uuid.UUID) {
	if err := c.store.Del(ctx, c.key(orderID)); err != nil {
		c.logg.Warn(c.logg.WithOrderID(ctx, orderID.String()), "order cache invalidate failed: "+err.Error())
	}
}

// PurgeOrders drops every cached order. Used after schema changes, when the
// cached encoding may no longer match the model.
func (c *OrderCache) PurgeOrders(ctx context.Context) (int, error) {
	return c.store.DeletePattern(ctx, c.store.CacheKey(orderNamespace, "*"))
}
