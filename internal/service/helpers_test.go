package service

import (
	"sync"
	"testing"
	"time"

	"voucher-trade-engine/internal/adapter/storage/memory"
	"voucher-trade-engine/internal/core/domain"
	"voucher-trade-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

func testPolicy() StorePolicy {
	return StorePolicy{Timeout: time.Second, ReadRetries: 2, RetryInterval: time.Millisecond}
}

// recordingPublisher keeps published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(e domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func requireAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperror.From(err)
	require.True(t, ok, "expected AppError, got %T: %v", err, err)
	require.Equal(t, code, appErr.Code, appErr.Message)
}

type voucherOpt func(*domain.Voucher)

func withStatus(s domain.VoucherStatus) voucherOpt {
	return func(v *domain.Voucher) { v.Status = s }
}

func withSeller(id uuid.UUID) voucherOpt {
	return func(v *domain.Voucher) { v.SellerID = id }
}

func withPrice(p int64) voucherOpt {
	return func(v *domain.Voucher) { v.SellingPrice = p }
}

func withBrand(b string) voucherOpt {
	return func(v *domain.Voucher) { v.BrandName = b }
}

func withExpiry(at time.Time) voucherOpt {
	return func(v *domain.Voucher) { v.ExpiryDate = at }
}

func newVoucher(opts ...voucherOpt) *domain.Voucher {
	v := &domain.Voucher{
		ID:                 uuid.New(),
		SellerID:           uuid.New(),
		BrandName:          "Amazon",
		Category:           "Shopping",
		OriginalValue:      10000,
		SellingPrice:       8000,
		DiscountPercentage: 20,
		ExpiryDate:         testNow.Add(20 * 24 * time.Hour),
		Status:             domain.VoucherStatusActive,
		CreatedAt:          testNow.Add(-time.Hour),
		UpdatedAt:          testNow.Add(-time.Hour),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.Status.IsTradable() {
		v.IsVerified = true
	}
	return v
}

// testEnv wires the services over one in-memory store.
type testEnv struct {
	store     *memory.Store
	events    *recordingPublisher
	scorer    *Scorer
	inventory *InventoryServiceImpl
	trades    *TradeServiceImpl
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New(memory.WithClock(testClock))
	events := &recordingPublisher{}
	scorer, err := NewScorer(DefaultScoringPolicy())
	require.NoError(t, err)

	inv := NewInventoryService(store.Vouchers(), events, testPolicy(), zerolog.Nop())
	inv.now = testClock
	trades := NewTradeService(inv, store.Vouchers(), store.Trades(), store.Wishlists(), scorer, events, testPolicy(), zerolog.Nop())
	trades.now = testClock

	return &testEnv{store: store, events: events, scorer: scorer, inventory: inv, trades: trades}
}

func (e *testEnv) seed(t *testing.T, opts ...voucherOpt) *domain.Voucher {
	t.Helper()
	v := newVoucher(opts...)
	require.NoError(t, e.store.Vouchers().Create(t.Context(), v))
	return v
}

func (e *testEnv) voucherStatus(t *testing.T, id uuid.UUID) domain.VoucherStatus {
	t.Helper()
	v, err := e.store.Vouchers().GetVoucher(t.Context(), id)
	require.NoError(t, err)
	return v.Status
}
