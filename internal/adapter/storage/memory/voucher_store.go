package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"voucher-trade-engine/internal/core/domain"

	"github.com/google/uuid"
)

// VoucherStore implements ports.InventoryStore.
type VoucherStore struct {
	s *Store
}

func (r *VoucherStore) Create(ctx context.Context, v *domain.Voucher) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.vouchers[v.ID]; exists {
		return fmt.Errorf("voucher %s already exists", v.ID)
	}
	r.s.vouchers[v.ID] = *v
	return nil
}

func (r *VoucherStore) GetVoucher(ctx context.Context, id uuid.UUID) (*domain.Voucher, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	v, ok := r.s.vouchers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrVoucherNotFound, id)
	}
	return &v, nil
}

func (r *VoucherStore) ListActiveByCategory(ctx context.Context, category string, asOf time.Time) ([]domain.Voucher, error) {
	want := domain.NormalizeKey(category)
	return r.filter(func(v *domain.Voucher) bool {
		return domain.NormalizeKey(v.Category) == want && v.IsAvailableAt(asOf)
	}, newestFirst, 0), nil
}

func (r *VoucherStore) ListAvailable(ctx context.Context, brand string, asOf time.Time, limit int) ([]domain.Voucher, error) {
	want := domain.NormalizeKey(brand)
	return r.filter(func(v *domain.Voucher) bool {
		if want != "" && domain.NormalizeKey(v.BrandName) != want {
			return false
		}
		return v.IsAvailableAt(asOf)
	}, newestFirst, limit), nil
}

func (r *VoucherStore) ListExpired(ctx context.Context, asOf time.Time, limit int) ([]domain.Voucher, error) {
	return r.filter(func(v *domain.Voucher) bool {
		return !v.Status.IsTerminal() && v.IsExpiredAt(asOf)
	}, func(a, b *domain.Voucher) bool {
		return a.ExpiryDate.Before(b.ExpiryDate)
	}, limit), nil
}

func (r *VoucherStore) ListExpiring(ctx context.Context, from, to time.Time) ([]domain.Voucher, error) {
	return r.filter(func(v *domain.Voucher) bool {
		return v.Status.IsTradable() && !v.ExpiryDate.Before(from) && v.ExpiryDate.Before(to)
	}, func(a, b *domain.Voucher) bool {
		return a.ExpiryDate.Before(b.ExpiryDate)
	}, 0), nil
}

func (r *VoucherStore) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next domain.VoucherStatus) error {
	return r.CompareAndSetStatuses(ctx, []domain.StatusChange{{VoucherID: id, From: expected, To: next}})
}

// CompareAndSetStatuses checks the whole batch against a working copy and
// publishes it only if every step holds.
func (r *VoucherStore) CompareAndSetStatuses(ctx context.Context, changes []domain.StatusChange) error {
	if len(changes) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(changes))
	for _, c := range changes {
		if !c.From.CanTransitionTo(c.To) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, c.From, c.To)
		}
		ids = append(ids, c.VoucherID)
	}

	unlock := r.s.locks.lock(ids...)
	defer unlock()

	r.s.mu.RLock()
	working := make(map[uuid.UUID]domain.Voucher, len(ids))
	for _, id := range ids {
		v, ok := r.s.vouchers[id]
		if !ok {
			r.s.mu.RUnlock()
			return fmt.Errorf("%w: %s", domain.ErrVoucherNotFound, id)
		}
		working[id] = v
	}
	r.s.mu.RUnlock()

	now := r.s.now().UTC()
	for _, c := range changes {
		v := working[c.VoucherID]
		if v.Status != c.From {
			return fmt.Errorf("%w: voucher %s", domain.ErrStatusConflict, c.VoucherID)
		}
		v.Status = c.To
		if c.To == domain.VoucherStatusVerified {
			v.IsVerified = true
		}
		v.UpdatedAt = now
		working[c.VoucherID] = v
	}

	r.s.mu.Lock()
	for id, v := range working {
		// Views and price may have moved while the batch was checked.
		current := r.s.vouchers[id]
		current.Status = v.Status
		current.IsVerified = v.IsVerified
		current.UpdatedAt = v.UpdatedAt
		r.s.vouchers[id] = current
	}
	r.s.mu.Unlock()
	return nil
}

func (r *VoucherStore) UpdatePrice(ctx context.Context, id uuid.UUID, price int64, discount float64) (*domain.Voucher, error) {
	unlock := r.s.locks.lock(id)
	defer unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vouchers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrVoucherNotFound, id)
	}
	if v.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: voucher %s", domain.ErrStatusConflict, id)
	}
	v.SellingPrice = price
	v.DiscountPercentage = discount
	v.UpdatedAt = r.s.now().UTC()
	r.s.vouchers[id] = v
	return &v, nil
}

func (r *VoucherStore) IncrementViews(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vouchers[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrVoucherNotFound, id)
	}
	v.Views++
	r.s.vouchers[id] = v
	return nil
}

func newestFirst(a, b *domain.Voucher) bool {
	return a.CreatedAt.After(b.CreatedAt)
}

func (r *VoucherStore) filter(keep func(*domain.Voucher) bool, less func(a, b *domain.Voucher) bool, limit int) []domain.Voucher {
	r.s.mu.RLock()
	out := make([]domain.Voucher, 0)
	for _, v := range r.s.vouchers {
		if keep(&v) {
			out = append(out, v)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return less(&out[i], &out[j]) })
	return limitSlice(out, limit)
}
