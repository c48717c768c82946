package redis

import (
	"context"
	"fmt"
	"time"

	"voucher-trade-engine/config"

	"github.com/cenkalti/backoff/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// connectAttempts bounds how long startup waits for Redis.
const connectAttempts = 5

// NewClient creates a Redis client and verifies connectivity, retrying the
// first ping with exponential backoff while Redis is still starting.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	_, err := backoff.Retry(ctx, func() (string, error) {
		pong, err := client.Ping(ctx).Result()
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Addr()).Msg("Redis not reachable yet")
		}
		return pong, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(connectAttempts))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Msg("Redis connection established")

	return client, nil
}
