package domain

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// MatchEvent pairs a wishlist item with a voucher that qualified for it.
type MatchEvent struct {
	ID             uuid.UUID  `json:"id"`
	WishlistItemID uuid.UUID  `json:"wishlist_item_id"`
	UserID         uuid.UUID  `json:"user_id"` // Wishlist owner
	VoucherID      uuid.UUID  `json:"voucher_id"`
	Score          int        `json:"score"`
	PriceSnapshot  int64      `json:"price_snapshot"`
	DedupKey       string     `json:"-"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// IsDelivered returns true once the dispatcher has sent the notification.
func (e *MatchEvent) IsDelivered() bool {
	return e.DeliveredAt != nil
}

// BuildMatchDedupKey fingerprints a (wishlist item, voucher state) pair.
// The same item, voucher, price and availability always yield the same key.
func BuildMatchDedupKey(wishlistItemID, voucherID uuid.UUID, price int64, availability string) string {
	return fingerprint("match", wishlistItemID.String(), voucherID.String(),
		strconv.FormatInt(price, 10), availability)
}

// BuildTradeNotificationKey fingerprints a trade status change.
func BuildTradeNotificationKey(tradeID uuid.UUID, status TradeStatus) string {
	return fingerprint("trade", tradeID.String(), string(status))
}

func fingerprint(parts ...string) string {
	sum := blake2b.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
