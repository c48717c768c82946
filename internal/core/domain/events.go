package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies what changed.
type EventType string

const (
	EventVoucherVerified     EventType = "VOUCHER_VERIFIED"
	EventVoucherActivated    EventType = "VOUCHER_ACTIVATED"
	EventVoucherPriceChanged EventType = "VOUCHER_PRICE_CHANGED"
	EventTradeChanged        EventType = "TRADE_CHANGED"
	EventWishlistItemAdded   EventType = "WISHLIST_ITEM_ADDED"
)

// IsVoucherEvent returns true for events the wishlist matcher consumes.
func (t EventType) IsVoucherEvent() bool {
	switch t {
	case EventVoucherVerified, EventVoucherActivated, EventVoucherPriceChanged:
		return true
	}
	return false
}

// Event is a unit of asynchronous work published by the write path.
type Event struct {
	Type       EventType
	VoucherID  uuid.UUID
	Trade      *Trade        // Set for EventTradeChanged; a snapshot, not a live row
	Item       *WishlistItem // Set for EventWishlistItemAdded
	OccurredAt time.Time
}

// NewVoucherEvent builds a voucher change event.
func NewVoucherEvent(t EventType, voucherID uuid.UUID, at time.Time) Event {
	return Event{Type: t, VoucherID: voucherID, OccurredAt: at}
}

// NewTradeEvent builds a trade change event carrying a copy of the trade.
func NewTradeEvent(t *Trade, at time.Time) Event {
	snapshot := *t
	return Event{Type: EventTradeChanged, Trade: &snapshot, OccurredAt: at}
}

// NewWishlistItemEvent builds the event that matches a new item against inventory.
func NewWishlistItemEvent(item *WishlistItem, at time.Time) Event {
	snapshot := *item
	return Event{Type: EventWishlistItemAdded, Item: &snapshot, OccurredAt: at}
}
