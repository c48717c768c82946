package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DeliveryLedger implements ports.DeliveryLedger with Redis SET NX PX.
// A held key means a notification for that dedup key went out within the cooldown.
type DeliveryLedger struct {
	client *goredis.Client
	prefix string
}

// NewDeliveryLedger creates a Redis-backed delivery ledger.
func NewDeliveryLedger(client *goredis.Client) *DeliveryLedger {
	return &DeliveryLedger{
		client: client,
		prefix: "delivery:",
	}
}

// Reserve claims key for ttl. Returns false if another delivery holds it.
func (l *DeliveryLedger) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	result, err := l.client.SetArgs(ctx, l.prefix+key, time.Now().UTC().Unix(), goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis delivery reserve: %w", err)
	}
	return result == "OK", nil
}

// Release drops a reservation after a failed delivery.
func (l *DeliveryLedger) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delivery release: %w", err)
	}
	return nil
}
