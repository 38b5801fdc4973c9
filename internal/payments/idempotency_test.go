package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fulfillment-backend/pkg/redis"
)

type storedMarker struct {
	value   string
	ttl     time.Duration
	expires time.Time
}

// fakeIdempotencyStore expires keys against a movable clock.
type fakeIdempotencyStore struct {
	keys map[string]storedMarker
	now  time.Time
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{
		keys: map[string]storedMarker{},
		now:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeIdempotencyStore) live(key string) (storedMarker, bool) {
	m, ok := f.keys[key]
	if !ok {
		return storedMarker{}, false
	}
	if m.ttl > 0 && !f.now.Before(m.expires) {
		delete(f.keys, key)
		return storedMarker{}, false
	}
	return m, true
}

func (f *fakeIdempotencyStore) put(key string, value any, ttl time.Duration) {
	f.keys[key] = storedMarker{value: value.(string), ttl: ttl, expires: f.now.Add(ttl)}
}

func (f *fakeIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	m, ok := f.live(key)
	if !ok {
		return "", redis.Nil
	}
	return m.value, nil
}

func (f *fakeIdempotencyStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.put(key, value, ttl)
	return nil
}

func (f *fakeIdempotencyStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.live(key); ok {
		return false, nil
	}
	f.put(key, value, ttl)
	return true, nil
}

func (f *fakeIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "ful:idempotency:" + scope + ":" + id
}

func (f *fakeIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.keys, k)
	}
	return nil
}

const evt1Key = "ful:idempotency:payment_webhook:evt_1"

func TestIdempotencyGuardMarksEvents(t *testing.T) {
	store := newFakeIdempotencyStore()
	guard, err := NewIdempotencyGuard(store, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, inFlightReservation, store.keys[evt1Key].ttl)

	_, err = guard.CheckAndMark(ctx, "evt_1")
	require.ErrorIs(t, err, ErrEventInFlight)

	require.NoError(t, guard.Confirm(ctx, "evt_1"))
	assert.Equal(t, time.Hour, store.keys[evt1Key].ttl)
	seen, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, guard.Release(ctx, "evt_1"))
	seen, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = guard.CheckAndMark(ctx, "")
	require.Error(t, err)
	require.Error(t, guard.Confirm(ctx, ""))
}

func TestIdempotencyGuardReservationLapsesWithoutConfirm(t *testing.T) {
	store := newFakeIdempotencyStore()
	guard, err := NewIdempotencyGuard(store, 168*time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	require.False(t, seen)

	store.now = store.now.Add(inFlightReservation)
	seen, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestNewIdempotencyGuardValidates(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, time.Hour)
	require.Error(t, err)
	_, err = NewIdempotencyGuard(newFakeIdempotencyStore(), -time.Second)
	require.Error(t, err)
}
