package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// errBlankNonce is returned for a claim without a client or nonce; such a
// key would be shared by every unsigned caller.
var errBlankNonce = errors.New("verifier nonce: client id and nonce are required")

// NonceStore implements ports.NonceStore for verification-service calls.
// Each verifier client has its own nonce namespace; a claim lives for the
// signature timestamp window and stores the time it was first seen.
type NonceStore struct {
	client goredis.Cmdable
	now    func() time.Time
}

// NewNonceStore creates a Redis-backed verifier nonce store.
func NewNonceStore(client goredis.Cmdable) *NonceStore {
	return &NonceStore{client: client, now: time.Now}
}

// CheckAndSet claims nonce for clientID. It returns false when the nonce was
// already claimed inside ttl.
func (s *NonceStore) CheckAndSet(ctx context.Context, clientID string, nonce string, ttl time.Duration) (bool, error) {
	if clientID == "" || nonce == "" {
		return false, errBlankNonce
	}
	claimed, err := s.client.SetNX(ctx, verifierNonceKey(clientID, nonce), s.now().UTC().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim verifier nonce for %s: %w", clientID, err)
	}
	return claimed, nil
}

func verifierNonceKey(clientID, nonce string) string {
	return "verifier:" + clientID + ":nonce:" + nonce
}
