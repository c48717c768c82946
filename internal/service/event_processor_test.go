package service

import (
	"context"
	"errors"
	"testing"

	"voucher-trade-engine/internal/core/domain"
	"voucher-trade-engine/internal/core/ports"
	"voucher-trade-engine/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEventProcessor_RoutesEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	matcher := mocks.NewMockWishlistMatcher(ctrl)
	dispatcher := mocks.NewMockNotificationDispatcher(ctrl)

	voucherID := uuid.New()
	trade := &domain.Trade{ID: uuid.New(), Status: domain.TradeStatusPending}
	item := &domain.WishlistItem{ID: uuid.New(), BrandName: "Amazon"}

	q := NewEventQueue()
	q.Publish(domain.NewVoucherEvent(domain.EventVoucherPriceChanged, voucherID, testNow))
	q.Publish(domain.NewTradeEvent(trade, testNow))
	q.Publish(domain.NewWishlistItemEvent(item, testNow))
	q.Publish(domain.Event{Type: domain.EventTradeChanged})
	q.Close()

	matcher.EXPECT().Rescan(gomock.Any(), voucherID).Return(1, nil)
	dispatcher.EXPECT().DeliverTradeUpdate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, got *domain.Trade) (ports.DeliveryOutcome, error) {
			assert.Equal(t, trade.ID, got.ID)
			return ports.Delivered(), nil
		})
	matcher.EXPECT().MatchItem(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, got *domain.WishlistItem) (int, error) {
			assert.Equal(t, item.ID, got.ID)
			return 0, nil
		})

	p := NewEventProcessor(q, matcher, dispatcher, 2, newTestLogger())
	require.NoError(t, p.Run(context.Background()))
}

func TestEventProcessor_HandlerFailuresDoNotStopWorkers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	matcher := mocks.NewMockWishlistMatcher(ctrl)
	dispatcher := mocks.NewMockNotificationDispatcher(ctrl)

	first, second := uuid.New(), uuid.New()
	q := NewEventQueue()
	q.Publish(domain.NewVoucherEvent(domain.EventVoucherActivated, first, testNow))
	q.Publish(domain.NewVoucherEvent(domain.EventVoucherActivated, second, testNow))
	q.Close()

	gomock.InOrder(
		matcher.EXPECT().Rescan(gomock.Any(), first).DoAndReturn(func(context.Context, uuid.UUID) (int, error) {
			panic("boom")
		}),
		matcher.EXPECT().Rescan(gomock.Any(), second).Return(0, errors.New("store down")),
	)

	p := NewEventProcessor(q, matcher, dispatcher, 1, newTestLogger())
	require.NoError(t, p.Run(context.Background()))
}

func TestEventProcessor_StopsOnContextCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewEventProcessor(NewEventQueue(), mocks.NewMockWishlistMatcher(ctrl), mocks.NewMockNotificationDispatcher(ctrl), 3, newTestLogger())
	require.NoError(t, p.Run(ctx))
}
