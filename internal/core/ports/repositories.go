package ports

import (
	"context"
	"time"

	"voucher-trade-engine/internal/core/domain"

	"github.com/google/uuid"
)

// InventoryStore defines persistence and atomic status control for vouchers.
// Status changes are compare-and-set: they succeed only if the stored status
// equals the expected one and the step is allowed by the voucher status machine.
type InventoryStore interface {
	Create(ctx context.Context, voucher *domain.Voucher) error
	GetVoucher(ctx context.Context, id uuid.UUID) (*domain.Voucher, error)
	// ListActiveByCategory returns verified or active vouchers not past expiry,
	// matching category case-insensitively, newest first.
	ListActiveByCategory(ctx context.Context, category string, asOf time.Time) ([]domain.Voucher, error)
	// ListAvailable returns verified or active vouchers not past expiry.
	// An empty brand matches every brand.
	ListAvailable(ctx context.Context, brand string, asOf time.Time, limit int) ([]domain.Voucher, error)
	// ListExpired returns non-terminal vouchers whose expiry has passed.
	ListExpired(ctx context.Context, asOf time.Time, limit int) ([]domain.Voucher, error)
	// ListExpiring returns verified or active vouchers expiring in [from, to),
	// soonest first.
	ListExpiring(ctx context.Context, from, to time.Time) ([]domain.Voucher, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next domain.VoucherStatus) error
	// CompareAndSetStatuses applies every change in order or none of them.
	CompareAndSetStatuses(ctx context.Context, changes []domain.StatusChange) error
	// UpdatePrice rejects terminal vouchers with ErrStatusConflict.
	UpdatePrice(ctx context.Context, id uuid.UUID, price int64, discount float64) (*domain.Voucher, error)
	IncrementViews(ctx context.Context, id uuid.UUID) error
}

// TradeRepository defines persistence for trades.
type TradeRepository interface {
	// CreateExclusive inserts a pending trade unless an open trade already
	// references one of its vouchers, in which case it returns ErrVoucherClaimed.
	CreateExclusive(ctx context.Context, trade *domain.Trade) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Trade, error)
	// CompareAndSetStatus returns the updated trade, or ErrStatusConflict if
	// the stored status is not tr.From.
	CompareAndSetStatus(ctx context.Context, tr domain.TradeTransition) (*domain.Trade, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status *domain.TradeStatus) ([]domain.Trade, error)
	// ListStuckAccepted returns trades left in accepted since before the cutoff.
	ListStuckAccepted(ctx context.Context, before time.Time, limit int) ([]domain.Trade, error)
}

// WishlistRepository defines persistence for wishlist items.
type WishlistRepository interface {
	Create(ctx context.Context, item *domain.WishlistItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WishlistItem, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.WishlistItem, error)
	// ListByBrand matches brand case-insensitively.
	ListByBrand(ctx context.Context, brand string) ([]domain.WishlistItem, error)
	SetNotify(ctx context.Context, id uuid.UUID, notify bool) (*domain.WishlistItem, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MatchEventRepository defines persistence for match events.
type MatchEventRepository interface {
	// Record inserts the event unless one with the same dedup key exists.
	// It reports whether a new row was written. On a duplicate the stored
	// row is copied into event, so callers see its id and delivery state.
	Record(ctx context.Context, event *domain.MatchEvent) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.MatchEvent, error)
	// ListUndelivered returns events created at or after since that have not
	// been delivered, oldest first.
	ListUndelivered(ctx context.Context, since time.Time, limit int) ([]domain.MatchEvent, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
}
