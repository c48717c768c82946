package service

import (
	"context"
	"time"

	"voucher-trade-engine/internal/core/domain"
	"voucher-trade-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// itemScanLimit caps how much inventory a new wishlist item is matched against.
	itemScanLimit = 500
	// matchListLimit caps the events read back for GET wishlist-matches.
	matchListLimit = 100
)

// WishlistMatcherImpl implements ports.WishlistMatcher.
type WishlistMatcherImpl struct {
	inventory  ports.InventoryService
	vouchers   ports.InventoryStore
	wishlists  ports.WishlistRepository
	matches    ports.MatchEventRepository
	scorer     *Scorer
	dispatcher ports.NotificationDispatcher
	threshold  int
	policy     StorePolicy
	now        func() time.Time
	log        zerolog.Logger
}

// NewWishlistMatcher creates a new WishlistMatcherImpl. Pairs scoring below
// threshold produce no event.
func NewWishlistMatcher(
	inventory ports.InventoryService,
	vouchers ports.InventoryStore,
	wishlists ports.WishlistRepository,
	matches ports.MatchEventRepository,
	scorer *Scorer,
	dispatcher ports.NotificationDispatcher,
	threshold int,
	policy StorePolicy,
	log zerolog.Logger,
) *WishlistMatcherImpl {
	return &WishlistMatcherImpl{
		inventory:  inventory,
		vouchers:   vouchers,
		wishlists:  wishlists,
		matches:    matches,
		scorer:     scorer,
		dispatcher: dispatcher,
		threshold:  threshold,
		policy:     policy,
		now:        time.Now,
		log:        log,
	}
}

// Rescan scores the voucher against every wishlist item for its brand and
// records the pairs that qualify. It returns how many new events were recorded;
// running it again for an unchanged voucher records none.
func (m *WishlistMatcherImpl) Rescan(ctx context.Context, voucherID uuid.UUID) (int, error) {
	v, err := m.inventory.GetVoucher(ctx, voucherID)
	if err != nil {
		return 0, err
	}
	now := m.now().UTC()
	if !v.IsAvailableAt(now) {
		return 0, nil
	}

	items, err := readStore(ctx, m.policy, m.log, "list_wishlist_by_brand", func(ctx context.Context) ([]domain.WishlistItem, error) {
		return m.wishlists.ListByBrand(ctx, v.BrandName)
	})
	if err != nil {
		return 0, err
	}

	recorded := 0
	for i := range items {
		ok, err := m.match(ctx, v, &items[i], now)
		if err != nil {
			return recorded, err
		}
		if ok {
			recorded++
		}
	}

	m.log.Debug().
		Str("voucher_id", voucherID.String()).
		Int("candidates", len(items)).
		Int("recorded", recorded).
		Msg("voucher rescanned")
	return recorded, nil
}

// MatchItem scores a new wishlist item against the inventory currently on offer.
func (m *WishlistMatcherImpl) MatchItem(ctx context.Context, item *domain.WishlistItem) (int, error) {
	now := m.now().UTC()
	vouchers, err := readStore(ctx, m.policy, m.log, "list_available", func(ctx context.Context) ([]domain.Voucher, error) {
		return m.vouchers.ListAvailable(ctx, item.BrandName, now, itemScanLimit)
	})
	if err != nil {
		return 0, err
	}

	recorded := 0
	for i := range vouchers {
		ok, err := m.match(ctx, &vouchers[i], item, now)
		if err != nil {
			return recorded, err
		}
		if ok {
			recorded++
		}
	}
	return recorded, nil
}

// ListMatches returns the user's match events whose voucher is still available
// at the price the event was scored on, newest first.
func (m *WishlistMatcherImpl) ListMatches(ctx context.Context, userID uuid.UUID) ([]domain.MatchEvent, error) {
	events, err := readStore(ctx, m.policy, m.log, "list_match_events", func(ctx context.Context) ([]domain.MatchEvent, error) {
		return m.matches.ListByUser(ctx, userID, matchListLimit)
	})
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	current := make(map[uuid.UUID]*domain.Voucher)
	out := make([]domain.MatchEvent, 0, len(events))
	for _, e := range events {
		v, seen := current[e.VoucherID]
		if !seen {
			v, err = readStore(ctx, m.policy, m.log, "get_voucher", func(ctx context.Context) (*domain.Voucher, error) {
				return m.vouchers.GetVoucher(ctx, e.VoucherID)
			})
			if err != nil && !domain.IsNotFound(err) {
				return nil, err
			}
			current[e.VoucherID] = v
		}
		if v == nil || !v.IsAvailableAt(now) || v.SellingPrice != e.PriceSnapshot {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// RedeliverPending hands undelivered events created since the cutoff back to
// the dispatcher. It returns how many were delivered.
func (m *WishlistMatcherImpl) RedeliverPending(ctx context.Context, since time.Time, limit int) (int, error) {
	events, err := readStore(ctx, m.policy, m.log, "list_undelivered", func(ctx context.Context) ([]domain.MatchEvent, error) {
		return m.matches.ListUndelivered(ctx, since, limit)
	})
	if err != nil {
		return 0, err
	}

	delivered := 0
	for i := range events {
		if m.deliver(ctx, &events[i]) {
			delivered++
		}
	}
	if delivered > 0 {
		m.log.Info().Int("pending", len(events)).Int("delivered", delivered).Msg("match notifications redelivered")
	}
	return delivered, nil
}

// match records the (voucher, item) pair if it qualifies and hands the event
// to the dispatcher unless it was delivered already. It reports whether a new
// event was recorded. A failed delivery leaves the event undelivered for the
// next rescan or sweep.
func (m *WishlistMatcherImpl) match(ctx context.Context, v *domain.Voucher, item *domain.WishlistItem, now time.Time) (bool, error) {
	if item.UserID == v.SellerID {
		return false, nil
	}
	score := m.scorer.ScoreWishlist(v, item, now)
	if score == 0 || score < m.threshold {
		return false, nil
	}

	event := &domain.MatchEvent{
		ID:             uuid.New(),
		WishlistItemID: item.ID,
		UserID:         item.UserID,
		VoucherID:      v.ID,
		Score:          score,
		PriceSnapshot:  v.SellingPrice,
		DedupKey:       domain.BuildMatchDedupKey(item.ID, v.ID, v.SellingPrice, v.Availability(now)),
		CreatedAt:      now,
	}
	inserted, err := mutateStore(ctx, m.policy, func(ctx context.Context) (bool, error) {
		return m.matches.Record(ctx, event)
	})
	if err != nil {
		return false, err
	}
	if event.IsDelivered() {
		return inserted, nil
	}

	m.deliver(ctx, event)
	return inserted, nil
}

// deliver reports whether the event's notification went out.
func (m *WishlistMatcherImpl) deliver(ctx context.Context, event *domain.MatchEvent) bool {
	outcome, err := m.dispatcher.Deliver(ctx, event)
	if err != nil {
		m.log.Warn().Err(err).
			Str("match_event_id", event.ID.String()).
			Str("wishlist_item_id", event.WishlistItemID.String()).
			Msg("match notification not delivered")
		return false
	}
	m.log.Info().
		Str("match_event_id", event.ID.String()).
		Str("voucher_id", event.VoucherID.String()).
		Int("score", event.Score).
		Str("delivery", string(outcome.Status)).
		Str("reason", string(outcome.Reason)).
		Msg("wishlist match dispatched")
	return outcome.Status == ports.DeliveryDelivered
}
