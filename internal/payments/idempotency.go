package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/fulfillment-backend/pkg/redis"
)

const (
	webhookScope = "payment_webhook"

	// inFlightReservation bounds how long a crashed delivery blocks its
	// redelivery.
	inFlightReservation = 30 * time.Second

	markerInFlight = "in_flight"
	markerDone     = "done"
)

// ErrEventInFlight reports that another delivery of the same event holds the
// reservation. The caller should ask the provider to retry.
var ErrEventInFlight = errors.New("payment event already in flight")

// IdempotencyGuard remembers processed provider event ids so redelivered
// events short-circuit before touching the database. An event is reserved
// briefly while it is applied and only remembered for ttl once Confirm runs.
type IdempotencyGuard struct {
	store    redis.IdempotencyStore
	ttl      time.Duration
	inFlight time.Duration
	scope    string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, inFlight: inFlightReservation, scope: webhookScope}, nil
}

// CheckAndMark reserves eventID. It reports true when the event was already
// confirmed and ErrEventInFlight when another delivery still holds it.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	reserved, err := g.store.SetNX(ctx, key, markerInFlight, g.inFlight)
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if reserved {
		return false, nil
	}
	marker, err := g.store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// Reservation lapsed between the two calls; the next delivery claims it.
		return false, ErrEventInFlight
	case err != nil:
		return false, fmt.Errorf("read idempotency key: %w", err)
	case marker == markerDone:
		return true, nil
	default:
		return false, ErrEventInFlight
	}
}

// Confirm records eventID as applied for the full ttl.
func (g *IdempotencyGuard) Confirm(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Set(ctx, g.store.IdempotencyKey(g.scope, eventID), markerDone, g.ttl)
}

// Release forgets eventID so a failed delivery can be retried.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, eventID))
}
