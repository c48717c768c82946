package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voucher-trade-engine/internal/adapter/storage/memory"
	"voucher-trade-engine/internal/core/domain"
	"voucher-trade-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingNotifier keeps sent notifications and can be told to fail.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []ports.Notification
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, notification ports.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification)
	return nil
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Sent() []ports.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ports.Notification(nil), n.sent...)
}

func (n *recordingNotifier) fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

type dispatchEnv struct {
	store      *memory.Store
	notifier   *recordingNotifier
	dispatcher *NotificationDispatcherImpl
}

func newDispatchEnv(t *testing.T) *dispatchEnv {
	t.Helper()
	store := memory.New(memory.WithClock(testClock))
	notifier := &recordingNotifier{}
	d := NewNotificationDispatcher(store.Wishlists(), store.Vouchers(), store.MatchEvents(),
		memory.NewDeliveryLedger(testClock), notifier, 24*time.Hour, testPolicy(), zerolog.Nop())
	d.now = testClock
	return &dispatchEnv{store: store, notifier: notifier, dispatcher: d}
}

// seedMatch stores a voucher, a wishlist item and the match event between them.
func (e *dispatchEnv) seedMatch(t *testing.T, opts ...voucherOpt) (*domain.Voucher, *domain.WishlistItem, *domain.MatchEvent) {
	t.Helper()
	ctx := t.Context()
	v := newVoucher(opts...)
	require.NoError(t, e.store.Vouchers().Create(ctx, v))

	item := &domain.WishlistItem{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		BrandName: v.BrandName,
		Category:  v.Category,
		Notify:    true,
		CreatedAt: testNow,
	}
	require.NoError(t, e.store.Wishlists().Create(ctx, item))

	event := &domain.MatchEvent{
		ID:             uuid.New(),
		WishlistItemID: item.ID,
		UserID:         item.UserID,
		VoucherID:      v.ID,
		Score:          80,
		PriceSnapshot:  v.SellingPrice,
		DedupKey:       domain.BuildMatchDedupKey(item.ID, v.ID, v.SellingPrice, v.Availability(testNow)),
		CreatedAt:      testNow,
	}
	inserted, err := e.store.MatchEvents().Record(ctx, event)
	require.NoError(t, err)
	require.True(t, inserted)
	return v, item, event
}

func TestNotificationDispatcher_Deliver(t *testing.T) {
	env := newDispatchEnv(t)
	v, item, event := env.seedMatch(t)

	outcome, err := env.dispatcher.Deliver(t.Context(), event)
	require.NoError(t, err)
	assert.Equal(t, ports.Delivered(), outcome)

	sent := env.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, NotificationMatch, sent[0].Kind)
	assert.Equal(t, item.UserID, sent[0].UserID)
	assert.Equal(t, event.DedupKey, sent[0].DedupKey)
	assert.Equal(t, v.ID.String(), sent[0].Data["voucher_id"])
	assert.Equal(t, "8000", sent[0].Data["selling_price"])

	events, err := env.store.MatchEvents().ListByUser(t.Context(), item.UserID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].IsDelivered())
}

func TestNotificationDispatcher_Deliver_DuplicateWithinCooldown(t *testing.T) {
	env := newDispatchEnv(t)
	_, _, event := env.seedMatch(t)

	_, err := env.dispatcher.Deliver(t.Context(), event)
	require.NoError(t, err)

	outcome, err := env.dispatcher.Deliver(t.Context(), event)
	require.NoError(t, err)
	assert.Equal(t, ports.Skipped(ports.SkipDuplicate), outcome)
	assert.Len(t, env.notifier.Sent(), 1)
}

func TestNotificationDispatcher_Deliver_Skips(t *testing.T) {
	tests := []struct {
		name   string
		opts   []voucherOpt
		mutate func(t *testing.T, env *dispatchEnv, v *domain.Voucher, item *domain.WishlistItem)
		reason ports.SkipReason
	}{
		{
			name: "wishlist item removed",
			mutate: func(t *testing.T, env *dispatchEnv, _ *domain.Voucher, item *domain.WishlistItem) {
				require.NoError(t, env.store.Wishlists().Delete(t.Context(), item.ID))
			},
			reason: ports.SkipWishlistItemGone,
		},
		{
			name: "notify turned off",
			mutate: func(t *testing.T, env *dispatchEnv, _ *domain.Voucher, item *domain.WishlistItem) {
				_, err := env.store.Wishlists().SetNotify(t.Context(), item.ID, false)
				require.NoError(t, err)
			},
			reason: ports.SkipNotifyDisabled,
		},
		{
			name: "voucher sold",
			mutate: func(t *testing.T, env *dispatchEnv, v *domain.Voucher, _ *domain.WishlistItem) {
				require.NoError(t, env.store.Vouchers().CompareAndSetStatus(t.Context(), v.ID, domain.VoucherStatusActive, domain.VoucherStatusSold))
			},
			reason: ports.SkipVoucherUnavailable,
		},
		{
			name:   "voucher past expiry",
			opts:   []voucherOpt{withExpiry(testNow.Add(time.Hour))},
			mutate: func(_ *testing.T, env *dispatchEnv, _ *domain.Voucher, _ *domain.WishlistItem) {
				env.dispatcher.now = func() time.Time { return testNow.Add(2 * time.Hour) }
			},
			reason: ports.SkipVoucherUnavailable,
		},
		{
			name: "price changed since match",
			mutate: func(t *testing.T, env *dispatchEnv, v *domain.Voucher, _ *domain.WishlistItem) {
				_, err := env.store.Vouchers().UpdatePrice(t.Context(), v.ID, 7000, 30)
				require.NoError(t, err)
			},
			reason: ports.SkipStaleSnapshot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newDispatchEnv(t)
			v, item, event := env.seedMatch(t, tt.opts...)
			tt.mutate(t, env, v, item)

			outcome, err := env.dispatcher.Deliver(t.Context(), event)
			require.NoError(t, err)
			assert.Equal(t, ports.Skipped(tt.reason), outcome)
			assert.Empty(t, env.notifier.Sent())
		})
	}
}

func TestNotificationDispatcher_Deliver_FailureReleasesReservation(t *testing.T) {
	env := newDispatchEnv(t)
	_, item, event := env.seedMatch(t)

	env.notifier.fail(errors.New("channel down"))
	_, err := env.dispatcher.Deliver(t.Context(), event)
	require.Error(t, err)

	events, err := env.store.MatchEvents().ListByUser(t.Context(), item.UserID, 10)
	require.NoError(t, err)
	assert.False(t, events[0].IsDelivered())

	env.notifier.fail(nil)
	outcome, err := env.dispatcher.Deliver(t.Context(), event)
	require.NoError(t, err)
	assert.Equal(t, ports.Delivered(), outcome)
	assert.Len(t, env.notifier.Sent(), 1)
}

func TestNotificationDispatcher_DeliverTradeUpdate(t *testing.T) {
	initiator, recipient := uuid.New(), uuid.New()
	byInitiator := domain.CancelReasonByInitiator
	unavailable := domain.CancelReasonVoucherNoLongerAvailable

	tests := []struct {
		name   string
		status domain.TradeStatus
		reason *domain.CancelReason
		want   []uuid.UUID
	}{
		{"pending tells recipient", domain.TradeStatusPending, nil, []uuid.UUID{recipient}},
		{"rejected tells initiator", domain.TradeStatusRejected, nil, []uuid.UUID{initiator}},
		{"completed tells both", domain.TradeStatusCompleted, nil, []uuid.UUID{initiator, recipient}},
		{"initiator cancel tells recipient", domain.TradeStatusCancelled, &byInitiator, []uuid.UUID{recipient}},
		{"engine cancel tells both", domain.TradeStatusCancelled, &unavailable, []uuid.UUID{initiator, recipient}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newDispatchEnv(t)
			trade := &domain.Trade{
				ID:                 uuid.New(),
				InitiatorID:        initiator,
				RecipientID:        recipient,
				InitiatorVoucherID: uuid.New(),
				Status:             tt.status,
				MatchScore:         70,
				CancelReason:       tt.reason,
			}

			outcome, err := env.dispatcher.DeliverTradeUpdate(t.Context(), trade)
			require.NoError(t, err)
			assert.Equal(t, ports.Delivered(), outcome)

			var users []uuid.UUID
			for _, n := range env.notifier.Sent() {
				assert.Equal(t, NotificationTrade, n.Kind)
				assert.Equal(t, string(tt.status), n.Data["status"])
				assert.Equal(t, trade.Counterparty(n.UserID).String(), n.Data["counterparty"])
				users = append(users, n.UserID)
			}
			assert.Equal(t, tt.want, users)

			again, err := env.dispatcher.DeliverTradeUpdate(t.Context(), trade)
			require.NoError(t, err)
			assert.Equal(t, ports.Skipped(ports.SkipDuplicate), again)
			assert.Len(t, env.notifier.Sent(), len(tt.want))
		})
	}
}
