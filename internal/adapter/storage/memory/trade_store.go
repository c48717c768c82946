package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"voucher-trade-engine/internal/core/domain"

	"github.com/google/uuid"
)

// TradeStore implements ports.TradeRepository.
type TradeStore struct {
	s *Store
}

// CreateExclusive holds the locks of every referenced voucher while it looks
// for an open trade, so concurrent proposals on one voucher serialize. Under
// the locks every voucher must still be available for trade.
func (r *TradeStore) CreateExclusive(ctx context.Context, t *domain.Trade) error {
	ids := t.VoucherIDs()
	unlock := r.s.locks.lock(ids...)
	defer unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, id := range ids {
		v, ok := r.s.vouchers[id]
		if !ok {
			return fmt.Errorf("%w: trade references a missing voucher", domain.ErrVoucherNotFound)
		}
		if !v.IsAvailableAt(t.CreatedAt) {
			return fmt.Errorf("%w: voucher %s is %s", domain.ErrStatusConflict, id, v.Status)
		}
	}
	if _, exists := r.s.trades[t.ID]; exists {
		return fmt.Errorf("trade %s already exists", t.ID)
	}
	for _, existing := range r.s.trades {
		if !existing.Status.IsOpen() {
			continue
		}
		for _, id := range ids {
			if existing.References(id) {
				return domain.ErrVoucherClaimed
			}
		}
	}
	r.s.trades[t.ID] = cloneTrade(*t)
	return nil
}

func (r *TradeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Trade, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.trades[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTradeNotFound, id)
	}
	out := cloneTrade(t)
	return &out, nil
}

func (r *TradeStore) CompareAndSetStatus(ctx context.Context, tr domain.TradeTransition) (*domain.Trade, error) {
	if !tr.From.CanTransitionTo(tr.To) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, tr.From, tr.To)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.trades[tr.TradeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTradeNotFound, tr.TradeID)
	}
	if t.Status != tr.From {
		return nil, fmt.Errorf("%w: trade %s is %s", domain.ErrStatusConflict, tr.TradeID, t.Status)
	}
	if tr.At.IsZero() {
		tr.At = r.s.now().UTC()
	}
	tr.Apply(&t)
	r.s.trades[t.ID] = t

	out := cloneTrade(t)
	return &out, nil
}

func (r *TradeStore) ListByUser(ctx context.Context, userID uuid.UUID, status *domain.TradeStatus) ([]domain.Trade, error) {
	out := r.collect(func(t *domain.Trade) bool {
		if !t.IsParty(userID) {
			return false
		}
		return status == nil || t.Status == *status
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *TradeStore) ListStuckAccepted(ctx context.Context, before time.Time, limit int) ([]domain.Trade, error) {
	out := r.collect(func(t *domain.Trade) bool {
		return t.Status == domain.TradeStatusAccepted && t.UpdatedAt.Before(before)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return limitSlice(out, limit), nil
}

func (r *TradeStore) collect(keep func(*domain.Trade) bool) []domain.Trade {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Trade, 0)
	for _, t := range r.s.trades {
		if keep(&t) {
			out = append(out, cloneTrade(t))
		}
	}
	return out
}

// cloneTrade copies the pointer fields so callers never alias stored state.
func cloneTrade(t domain.Trade) domain.Trade {
	if t.RecipientVoucherID != nil {
		id := *t.RecipientVoucherID
		t.RecipientVoucherID = &id
	}
	if t.CancelReason != nil {
		reason := *t.CancelReason
		t.CancelReason = &reason
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		t.CompletedAt = &at
	}
	return t
}
