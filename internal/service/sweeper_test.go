package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"voucher-trade-engine/internal/core/ports/mocks"
	"voucher-trade-engine/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSweeper_RunOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	inv := mocks.NewMockInventoryService(ctrl)
	trades := mocks.NewMockTradeService(ctrl)
	inv.EXPECT().ExpireOverdue(gomock.Any(), 50).Return(3, nil)
	trades.EXPECT().ReconcileAccepted(gomock.Any(), 5*time.Minute, 50).Return(1, nil)

	s := NewSweeper(inv, trades, time.Minute, 5*time.Minute, 50, newTestLogger())
	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Expired: 3, Reconciled: 1}, res)
}

func TestSweeper_RunOnce_ContinuesAfterFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	inv := mocks.NewMockInventoryService(ctrl)
	trades := mocks.NewMockTradeService(ctrl)
	inv.EXPECT().ExpireOverdue(gomock.Any(), 10).Return(0, apperror.ErrStoreUnavailable(errors.New("db down")))
	trades.EXPECT().ReconcileAccepted(gomock.Any(), time.Minute, 10).Return(2, nil)

	s := NewSweeper(inv, trades, time.Minute, time.Minute, 10, newTestLogger())
	res, err := s.RunOnce(context.Background())
	requireAppError(t, err, "SYS_002")
	assert.Equal(t, 2, res.Reconciled)
}

func TestSweeper_ExpiresOverdueVouchers(t *testing.T) {
	env := newTestEnv(t)
	overdue := env.seed(t, withExpiry(testNow.Add(-time.Minute)))
	fresh := env.seed(t)

	s := NewSweeper(env.inventory, env.trades, time.Minute, time.Minute, 100, newTestLogger())
	res, err := s.RunOnce(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, "expired", string(env.voucherStatus(t, overdue.ID)))
	assert.Equal(t, "active", string(env.voucherStatus(t, fresh.ID)))
}

func TestSweeper_RunStopsWithContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	inv := mocks.NewMockInventoryService(ctrl)
	trades := mocks.NewMockTradeService(ctrl)
	inv.EXPECT().ExpireOverdue(gomock.Any(), gomock.Any()).Return(0, nil).AnyTimes()
	trades.EXPECT().ReconcileAccepted(gomock.Any(), gomock.Any(), gomock.Any()).Return(0, nil).AnyTimes()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	s := NewSweeper(inv, trades, 5*time.Millisecond, time.Minute, 10, newTestLogger())
	require.NoError(t, s.Run(ctx))
}

func TestSweeper_RunOnce_RedeliversMatches(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	inv := mocks.NewMockInventoryService(ctrl)
	trades := mocks.NewMockTradeService(ctrl)
	matcher := mocks.NewMockWishlistMatcher(ctrl)
	inv.EXPECT().ExpireOverdue(gomock.Any(), 20).Return(0, nil)
	trades.EXPECT().ReconcileAccepted(gomock.Any(), time.Minute, 20).Return(0, nil)
	matcher.EXPECT().RedeliverPending(gomock.Any(), testNow.Add(-6*time.Hour), 20).Return(2, nil)

	s := NewSweeper(inv, trades, time.Minute, time.Minute, 20, newTestLogger()).
		WithRedelivery(matcher, 6*time.Hour)
	s.now = testClock

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Redelivered: 2}, res)
}

func TestSweeper_RunOnce_RedeliveryOffWithZeroWindow(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	inv := mocks.NewMockInventoryService(ctrl)
	trades := mocks.NewMockTradeService(ctrl)
	matcher := mocks.NewMockWishlistMatcher(ctrl)
	inv.EXPECT().ExpireOverdue(gomock.Any(), 5).Return(1, nil)
	trades.EXPECT().ReconcileAccepted(gomock.Any(), time.Minute, 5).Return(0, nil)

	s := NewSweeper(inv, trades, time.Minute, time.Minute, 5, newTestLogger()).
		WithRedelivery(matcher, 0)
	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Expired: 1}, res)
}
