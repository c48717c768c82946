package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestDeliveryLedger_ReserveAndExpire(t *testing.T) {
	clock := &fakeClock{t: baseTime}
	ledger := NewDeliveryLedger(clock.Now)
	ctx := context.Background()

	ok, err := ledger.Reserve(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.Reserve(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(time.Hour)
	ok, err = ledger.Reserve(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "reservation lapses after the cooldown")
}

func TestDeliveryLedger_Release(t *testing.T) {
	ledger := NewDeliveryLedger(nil)
	ctx := context.Background()

	ok, err := ledger.Reserve(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, ledger.Release(ctx, "k"))

	ok, err = ledger.Reserve(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNonceStore_CheckAndSet(t *testing.T) {
	clock := &fakeClock{t: baseTime}
	store := NewNonceStore(clock.Now)
	ctx := context.Background()

	ok, err := store.CheckAndSet(ctx, "verifier", "n1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.CheckAndSet(ctx, "verifier", "n1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "replay is rejected")

	ok, err = store.CheckAndSet(ctx, "other", "n1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "nonces are scoped per client")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = store.CheckAndSet(cancelled, "verifier", "n2", time.Minute)
	assert.Error(t, err)
}

func TestRateLimitStore_FixedWindow(t *testing.T) {
	clock := &fakeClock{t: baseTime}
	rl := NewRateLimitStore(clock.Now)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		res, err := rl.Allow(ctx, "user:trades", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 3-i, res.Remaining)
		assert.Equal(t, baseTime.Add(time.Minute).Unix(), res.ResetAt)
	}

	res, err := rl.Allow(ctx, "user:trades", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Zero(t, res.Remaining)

	other, err := rl.Allow(ctx, "other:trades", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	clock.Advance(time.Minute)
	res, err = rl.Allow(ctx, "user:trades", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "a new window starts once the old one ends")
}
