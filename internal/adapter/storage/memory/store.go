// Package memory holds process-local implementations of the storage ports.
// It backs the engine when store.driver is "memory" and in tests.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"voucher-trade-engine/internal/core/domain"

	"github.com/google/uuid"
)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for timestamps the store writes itself.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store keeps every entity in maps guarded by one RWMutex. Compare-and-set
// operations additionally take per-voucher locks in sorted id order so
// multi-voucher batches never deadlock against each other.
type Store struct {
	mu       sync.RWMutex
	vouchers map[uuid.UUID]domain.Voucher
	trades   map[uuid.UUID]domain.Trade
	items    map[uuid.UUID]domain.WishlistItem
	events   map[uuid.UUID]domain.MatchEvent
	dedup    map[string]uuid.UUID

	locks *keyedLocks
	now   func() time.Time
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		vouchers: make(map[uuid.UUID]domain.Voucher),
		trades:   make(map[uuid.UUID]domain.Trade),
		items:    make(map[uuid.UUID]domain.WishlistItem),
		events:   make(map[uuid.UUID]domain.MatchEvent),
		dedup:    make(map[string]uuid.UUID),
		locks:    newKeyedLocks(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Vouchers returns the ports.InventoryStore view of the store.
func (s *Store) Vouchers() *VoucherStore { return &VoucherStore{s: s} }

// Trades returns the ports.TradeRepository view of the store.
func (s *Store) Trades() *TradeStore { return &TradeStore{s: s} }

// Wishlists returns the ports.WishlistRepository view of the store.
func (s *Store) Wishlists() *WishlistStore { return &WishlistStore{s: s} }

// MatchEvents returns the ports.MatchEventRepository view of the store.
func (s *Store) MatchEvents() *MatchEventStore { return &MatchEventStore{s: s} }

// Ping implements ports.HealthChecker.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return "memory"
}

// keyedLocks hands out one mutex per voucher id.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// lock acquires the mutex of every id in ascending order and returns the
// matching unlock function.
func (k *keyedLocks) lock(ids ...uuid.UUID) func() {
	ordered := uniqueSorted(ids)

	k.mu.Lock()
	held := make([]*sync.Mutex, 0, len(ordered))
	for _, id := range ordered {
		m, ok := k.locks[id]
		if !ok {
			m = &sync.Mutex{}
			k.locks[id] = m
		}
		held = append(held, m)
	}
	k.mu.Unlock()

	for _, m := range held {
		m.Lock()
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func uniqueSorted(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

func limitSlice[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
