package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNonceStore(t *testing.T) (*NonceStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewNonceStore(client), mr
}

func TestNonceStore_ClaimRecordsFirstSeen(t *testing.T) {
	store, mr := newNonceStore(t)
	seen := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return seen }

	ok, err := store.CheckAndSet(context.Background(), "verifier-1", "nonce-abc", 2*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	key := "verifier:verifier-1:nonce:nonce-abc"
	value, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(seen.Unix(), 10), value)
	assert.Equal(t, 2*time.Minute, mr.TTL(key))
}

func TestNonceStore_ReplayRejected(t *testing.T) {
	store, _ := newNonceStore(t)
	ctx := context.Background()

	ok, err := store.CheckAndSet(ctx, "verifier-1", "nonce-xyz", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.CheckAndSet(ctx, "verifier-1", "nonce-xyz", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "replayed nonce should be refused")
}

func TestNonceStore_NamespacedPerClient(t *testing.T) {
	store, _ := newNonceStore(t)
	ctx := context.Background()

	ok, err := store.CheckAndSet(ctx, "verifier-A", "nonce-123", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.CheckAndSet(ctx, "verifier-B", "nonce-123", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "same nonce from another verifier client is a different claim")
}

func TestNonceStore_ClaimExpires(t *testing.T) {
	store, mr := newNonceStore(t)
	ctx := context.Background()

	ok, err := store.CheckAndSet(ctx, "verifier-1", "nonce-expire", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = store.CheckAndSet(ctx, "verifier-1", "nonce-expire", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired nonce should be claimable again")
}

func TestNonceStore_BlankClaimRejected(t *testing.T) {
	store, mr := newNonceStore(t)

	_, err := store.CheckAndSet(context.Background(), "", "nonce-1", time.Minute)
	assert.ErrorIs(t, err, errBlankNonce)
	_, err = store.CheckAndSet(context.Background(), "verifier-1", "", time.Minute)
	assert.ErrorIs(t, err, errBlankNonce)
	assert.Empty(t, mr.Keys())
}

func TestNonceStore_RedisDown(t *testing.T) {
	store, mr := newNonceStore(t)
	mr.Close()

	_, err := store.CheckAndSet(context.Background(), "verifier-1", "nonce-1", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verifier-1")
}
