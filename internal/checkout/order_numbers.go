package checkout

import (
	"context"
	"fmt"
	"strings"
)

type counterStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	CounterKey(name string) string
}

// OrderNumbers hands out human-readable sequential order numbers.
type OrderNumbers interface {
	Next(ctx context.Context) (string, error)
}

// RedisOrderNumbers derives order numbers from an atomic redis counter.
// Numbers consumed by failed checkouts are not reused.
type RedisOrderNumbers struct {
	store  counterStore
	prefix string
}

// NewRedisOrderNumbers builds a counter-backed sequence.
func NewRedisOrderNumbers(store counterStore, prefix string) (*RedisOrderNumbers, error) {
	if store == nil {
		return nil, fmt.Errorf("counter store required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "ORD"
	}
	return &RedisOrderNumbers{store: store, prefix: prefix}, nil
}

func (n *RedisOrderNumbers) Next(ctx context.Context) (string, error) {
	seq, err := n.store.Incr(ctx, n.store.CounterKey("order_number"))
	if err != nil {
		return "", fmt.Errorf("next order number: %w", err)
	}
	return formatOrderNumber(n.prefix, seq), nil
}

func formatOrderNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%08d", prefix, seq)
}
