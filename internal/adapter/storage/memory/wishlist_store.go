package memory

import (
	"context"
	"fmt"
	"sort"

	"voucher-trade-engine/internal/core/domain"

	"github.com/google/uuid"
)

// WishlistStore implements ports.WishlistRepository.
type WishlistStore struct {
	s *Store
}

func (r *WishlistStore) Create(ctx context.Context, item *domain.WishlistItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.items[item.ID]; exists {
		return fmt.Errorf("wishlist item %s already exists", item.ID)
	}
	r.s.items[item.ID] = cloneItem(*item)
	return nil
}

func (r *WishlistStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.WishlistItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	item, ok := r.s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWishlistItemNotFound, id)
	}
	out := cloneItem(item)
	return &out, nil
}

func (r *WishlistStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.WishlistItem, error) {
	return r.collect(func(item *domain.WishlistItem) bool { return item.UserID == userID }), nil
}

func (r *WishlistStore) ListByBrand(ctx context.Context, brand string) ([]domain.WishlistItem, error) {
	return r.collect(func(item *domain.WishlistItem) bool { return item.WantsBrand(brand) }), nil
}

func (r *WishlistStore) SetNotify(ctx context.Context, id uuid.UUID, notify bool) (*domain.WishlistItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWishlistItemNotFound, id)
	}
	item.Notify = notify
	r.s.items[id] = item
	out := cloneItem(item)
	return &out, nil
}

func (r *WishlistStore) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.items[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrWishlistItemNotFound, id)
	}
	delete(r.s.items, id)
	return nil
}

func (r *WishlistStore) collect(keep func(*domain.WishlistItem) bool) []domain.WishlistItem {
	r.s.mu.RLock()
	out := make([]domain.WishlistItem, 0)
	for _, item := range r.s.items {
		if keep(&item) {
			out = append(out, cloneItem(item))
		}
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func cloneItem(item domain.WishlistItem) domain.WishlistItem {
	if item.MaxPrice != nil {
		p := *item.MaxPrice
		item.MaxPrice = &p
	}
	return item
}
