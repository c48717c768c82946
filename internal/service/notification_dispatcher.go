package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"voucher-trade-engine/internal/core/domain"
	"voucher-trade-engine/internal/core/ports"

	"github.com/rs/zerolog"
)

// NotificationDispatcherImpl implements ports.NotificationDispatcher.
// A notification goes out only if its subject is still current and the
// delivery ledger grants the dedup key for the cooldown window.
type NotificationDispatcherImpl struct {
	wishlists ports.WishlistRepository
	vouchers  ports.InventoryStore
	matches   ports.MatchEventRepository
	ledger    ports.DeliveryLedger
	notifier  ports.Notifier
	cooldown  time.Duration
	policy    StorePolicy
	now       func() time.Time
	log       zerolog.Logger
}

// NewNotificationDispatcher creates a new NotificationDispatcherImpl.
func NewNotificationDispatcher(
	wishlists ports.WishlistRepository,
	vouchers ports.InventoryStore,
	matches ports.MatchEventRepository,
	ledger ports.DeliveryLedger,
	notifier ports.Notifier,
	cooldown time.Duration,
	policy StorePolicy,
	log zerolog.Logger,
) *NotificationDispatcherImpl {
	return &NotificationDispatcherImpl{
		wishlists: wishlists,
		vouchers:  vouchers,
		matches:   matches,
		ledger:    ledger,
		notifier:  notifier,
		cooldown:  cooldown,
		policy:    policy,
		now:       time.Now,
		log:       log,
	}
}

// Deliver notifies the wishlist owner about a match event.
func (d *NotificationDispatcherImpl) Deliver(ctx context.Context, event *domain.MatchEvent) (ports.DeliveryOutcome, error) {
	item, err := readStore(ctx, d.policy, d.log, "get_wishlist_item", func(ctx context.Context) (*domain.WishlistItem, error) {
		return d.wishlists.GetByID(ctx, event.WishlistItemID)
	})
	if domain.IsNotFound(err) {
		return d.skip(event.DedupKey, ports.SkipWishlistItemGone), nil
	}
	if err != nil {
		return ports.DeliveryOutcome{}, err
	}
	if !item.Notify {
		return d.skip(event.DedupKey, ports.SkipNotifyDisabled), nil
	}

	v, err := readStore(ctx, d.policy, d.log, "get_voucher", func(ctx context.Context) (*domain.Voucher, error) {
		return d.vouchers.GetVoucher(ctx, event.VoucherID)
	})
	if domain.IsNotFound(err) {
		return d.skip(event.DedupKey, ports.SkipVoucherUnavailable), nil
	}
	if err != nil {
		return ports.DeliveryOutcome{}, err
	}
	if !v.IsAvailableAt(d.now().UTC()) {
		return d.skip(event.DedupKey, ports.SkipVoucherUnavailable), nil
	}
	if v.SellingPrice != event.PriceSnapshot || item.PriceDisqualifies(v.SellingPrice) {
		return d.skip(event.DedupKey, ports.SkipStaleSnapshot), nil
	}

	notification := ports.Notification{
		Kind:     NotificationMatch,
		UserID:   item.UserID,
		DedupKey: event.DedupKey,
		Subject:  fmt.Sprintf("A %s voucher matches your wishlist", v.BrandName),
		Data: map[string]string{
			"match_event_id":   event.ID.String(),
			"wishlist_item_id": item.ID.String(),
			"voucher_id":       v.ID.String(),
			"brand_name":       v.BrandName,
			"selling_price":    strconv.FormatInt(v.SellingPrice, 10),
			"score":            strconv.Itoa(event.Score),
		},
		CreatedAt: d.now().UTC(),
	}

	sent, err := d.send(ctx, event.DedupKey, notification)
	if err != nil {
		return ports.DeliveryOutcome{}, err
	}
	if !sent {
		return d.skip(event.DedupKey, ports.SkipDuplicate), nil
	}

	if err := execStore(ctx, d.policy, func(ctx context.Context) error {
		return d.matches.MarkDelivered(ctx, event.ID, notification.CreatedAt)
	}); err != nil {
		d.log.Warn().Err(err).Str("match_event_id", event.ID.String()).Msg("failed to mark match event delivered")
	}
	return ports.Delivered(), nil
}

// DeliverTradeUpdate tells the users affected by a trade's current status.
// Each (trade, status, user) is delivered at most once per cooldown.
func (d *NotificationDispatcherImpl) DeliverTradeUpdate(ctx context.Context, trade *domain.Trade) (ports.DeliveryOutcome, error) {
	key := domain.BuildTradeNotificationKey(trade.ID, trade.Status)

	delivered := false
	for _, userID := range trade.NotifyTargets() {
		data := map[string]string{
			"trade_id":     trade.ID.String(),
			"status":       string(trade.Status),
			"counterparty": trade.Counterparty(userID).String(),
			"match_score":  strconv.Itoa(trade.MatchScore),
		}
		if trade.CancelReason != nil {
			data["cancel_reason"] = string(*trade.CancelReason)
		}

		sent, err := d.send(ctx, key+":"+userID.String(), ports.Notification{
			Kind:      NotificationTrade,
			UserID:    userID,
			DedupKey:  key,
			Subject:   fmt.Sprintf("Trade %s", trade.Status),
			Data:      data,
			CreatedAt: d.now().UTC(),
		})
		if err != nil {
			return ports.DeliveryOutcome{}, err
		}
		delivered = delivered || sent
	}

	if !delivered {
		return d.skip(key, ports.SkipDuplicate), nil
	}
	return ports.Delivered(), nil
}

// send reserves ledgerKey and hands the notification to the notifier.
// It reports false when the key is still cooling down. A failed send frees
// the reservation so the next attempt can deliver.
func (d *NotificationDispatcherImpl) send(ctx context.Context, ledgerKey string, n ports.Notification) (bool, error) {
	reserved, err := d.ledger.Reserve(ctx, ledgerKey, d.cooldown)
	if err != nil {
		return false, fmt.Errorf("reserve delivery: %w", err)
	}
	if !reserved {
		return false, nil
	}

	if err := d.notifier.Send(ctx, n); err != nil {
		if relErr := d.ledger.Release(context.WithoutCancel(ctx), ledgerKey); relErr != nil {
			d.log.Error().Err(relErr).Str("dedup_key", n.DedupKey).Msg("failed to release delivery reservation")
		}
		return false, fmt.Errorf("%s notifier: %w", d.notifier.Name(), err)
	}

	d.log.Debug().
		Str("kind", n.Kind).
		Str("user_id", n.UserID.String()).
		Str("notifier", d.notifier.Name()).
		Msg("notification delivered")
	return true, nil
}

func (d *NotificationDispatcherImpl) skip(key string, reason ports.SkipReason) ports.DeliveryOutcome {
	d.log.Debug().Str("dedup_key", key).Str("reason", string(reason)).Msg("notification skipped")
	return ports.Skipped(reason)
}
