package memory

import (
	"context"
	"sort"
	"time"

	"voucher-trade-engine/internal/core/domain"

	"github.com/google/uuid"
)

// MatchEventStore implements ports.MatchEventRepository.
// The dedup index plays the part of the unique constraint on dedup_key.
type MatchEventStore struct {
	s *Store
}

func (r *MatchEventStore) Record(ctx context.Context, e *domain.MatchEvent) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id, dup := r.s.dedup[e.DedupKey]; dup {
		*e = cloneMatchEvent(r.s.events[id])
		return false, nil
	}
	r.s.events[e.ID] = *e
	r.s.dedup[e.DedupKey] = e.ID
	return true, nil
}

func (r *MatchEventStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.MatchEvent, error) {
	r.s.mu.RLock()
	out := make([]domain.MatchEvent, 0)
	for _, e := range r.s.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return limitSlice(out, limit), nil
}

func (r *MatchEventStore) ListUndelivered(ctx context.Context, since time.Time, limit int) ([]domain.MatchEvent, error) {
	r.s.mu.RLock()
	out := make([]domain.MatchEvent, 0)
	for _, e := range r.s.events {
		if e.DeliveredAt == nil && !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return limitSlice(out, limit), nil
}

// MarkDelivered stamps the first delivery only.
func (r *MatchEventStore) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if ok && e.DeliveredAt == nil {
		delivered := at
		e.DeliveredAt = &delivered
		r.s.events[id] = e
	}
	return nil
}

func cloneMatchEvent(e domain.MatchEvent) domain.MatchEvent {
	if e.DeliveredAt != nil {
		at := *e.DeliveredAt
		e.DeliveredAt = &at
	}
	return e
}
