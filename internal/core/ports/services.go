package ports

import (
	"context"
	"time"

	"voucher-trade-engine/internal/core/domain"

	"github.com/google/uuid"
)

// Signer produces and checks the HMAC signatures exchanged with the
// verification service and the match webhook.
type Signer interface {
	Sign(secret string, payload []byte) string
	Verify(secret string, payload []byte, signature string) bool
	SignRequest(secret string, req domain.SignedRequest) string
	VerifyRequest(secret string, req domain.SignedRequest, signature string) bool
}

// TokenService validates user JWTs issued by the external auth service.
// Generate exists for local tooling and tests.
type TokenService interface {
	Generate(userID uuid.UUID, ttl time.Duration) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID uuid.UUID
}

// NonceStore manages nonce uniqueness for replay attack prevention.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, clientID string, nonce string, ttl time.Duration) (bool, error)
}

// DeliveryLedger enforces the notification cooldown per dedup key.
type DeliveryLedger interface {
	// Reserve claims key for ttl. Returns false if it is already held.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release drops a reservation so a later attempt may deliver.
	Release(ctx context.Context, key string) error
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// Notification is what the engine hands to an external channel.
type Notification struct {
	Kind      string            `json:"kind"` // MATCH or TRADE
	UserID    uuid.UUID         `json:"user_id"`
	DedupKey  string            `json:"dedup_key"`
	Subject   string            `json:"subject"`
	Data      map[string]string `json:"data"`
	CreatedAt time.Time         `json:"created_at"`
}

// Notifier sends notifications to users through an external channel.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	Name() string
}

// EventPublisher accepts asynchronous work without blocking the caller.
type EventPublisher interface {
	Publish(event domain.Event)
}

// --- Service Ports (Business Logic) ---

// InventoryService manages voucher listings and their lifecycle.
type InventoryService interface {
	CreateListing(ctx context.Context, req CreateVoucherRequest) (*domain.Voucher, error)
	GetVoucher(ctx context.Context, id uuid.UUID) (*domain.Voucher, error)
	// ViewVoucher returns the voucher and counts the view.
	ViewVoucher(ctx context.Context, id uuid.UUID) (*domain.Voucher, error)
	ListActiveByCategory(ctx context.Context, category string) ([]domain.Voucher, error)
	MarkVerified(ctx context.Context, id uuid.UUID) (*domain.Voucher, error)
	Activate(ctx context.Context, id uuid.UUID, sellerID uuid.UUID) (*domain.Voucher, error)
	UpdatePrice(ctx context.Context, id uuid.UUID, sellerID uuid.UUID, price int64) (*domain.Voucher, error)
	// ExpireOverdue moves up to limit overdue vouchers to expired.
	ExpireOverdue(ctx context.Context, limit int) (int, error)
	// ExpiryInsights summarizes tradable vouchers expiring in [from, to).
	ExpiryInsights(ctx context.Context, from, to time.Time) (*domain.ExpiryInsights, error)
}

// CreateVoucherRequest holds validated input for a new listing.
type CreateVoucherRequest struct {
	SellerID      uuid.UUID
	BrandName     string
	Category      string
	OriginalValue int64 // Minor units
	SellingPrice  int64 // Minor units
	ExpiryDate    time.Time
}

// TradeService arbitrates trades between users.
type TradeService interface {
	ProposeTrade(ctx context.Context, req ProposeTradeRequest) (*domain.Trade, error)
	RespondToTrade(ctx context.Context, tradeID uuid.UUID, actorID uuid.UUID, accept bool) (*domain.Trade, error)
	CancelTrade(ctx context.Context, tradeID uuid.UUID, byUserID uuid.UUID) (*domain.Trade, error)
	GetTrade(ctx context.Context, tradeID uuid.UUID, actorID uuid.UUID) (*domain.Trade, error)
	ListTrades(ctx context.Context, userID uuid.UUID, status *domain.TradeStatus) ([]domain.Trade, error)
	// ReconcileAccepted settles trades left in accepted for longer than olderThan.
	ReconcileAccepted(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// ProposeTradeRequest holds validated input for a trade proposal.
type ProposeTradeRequest struct {
	InitiatorID        uuid.UUID
	RecipientID        uuid.UUID
	InitiatorVoucherID uuid.UUID
	RecipientVoucherID *uuid.UUID
}

// WishlistService manages a user's wishlist items.
type WishlistService interface {
	AddItem(ctx context.Context, req CreateWishlistItemRequest) (*domain.WishlistItem, error)
	ListItems(ctx context.Context, userID uuid.UUID) ([]domain.WishlistItem, error)
	SetNotify(ctx context.Context, id uuid.UUID, userID uuid.UUID, notify bool) (*domain.WishlistItem, error)
	RemoveItem(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
}

// CreateWishlistItemRequest holds validated input for a wishlist item.
type CreateWishlistItemRequest struct {
	UserID    uuid.UUID
	BrandName string
	Category  string
	MaxPrice  *int64
	Notify    bool
}

// WishlistMatcher pairs vouchers with wishlist items.
type WishlistMatcher interface {
	// Rescan scores one voucher against candidate items. It is idempotent.
	Rescan(ctx context.Context, voucherID uuid.UUID) (int, error)
	// MatchItem scores a newly added item against current inventory.
	MatchItem(ctx context.Context, item *domain.WishlistItem) (int, error)
	// ListMatches returns the user's matches that are still current.
	ListMatches(ctx context.Context, userID uuid.UUID) ([]domain.MatchEvent, error)
	// RedeliverPending retries undelivered events created since the cutoff.
	RedeliverPending(ctx context.Context, since time.Time, limit int) (int, error)
}

// DeliveryStatus is the result of a delivery attempt.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliverySkipped   DeliveryStatus = "SKIPPED"
)

// SkipReason explains why a notification was not sent.
type SkipReason string

const (
	SkipNotifyDisabled     SkipReason = "NOTIFY_DISABLED"
	SkipWishlistItemGone   SkipReason = "WISHLIST_ITEM_GONE"
	SkipVoucherUnavailable SkipReason = "VOUCHER_UNAVAILABLE"
	SkipStaleSnapshot      SkipReason = "STALE_SNAPSHOT"
	SkipDuplicate          SkipReason = "DUPLICATE"
)

// DeliveryOutcome reports what the dispatcher did with an event.
type DeliveryOutcome struct {
	Status DeliveryStatus
	Reason SkipReason
}

// Delivered returns a delivered outcome.
func Delivered() DeliveryOutcome {
	return DeliveryOutcome{Status: DeliveryDelivered}
}

// Skipped returns a skipped outcome with reason.
func Skipped(reason SkipReason) DeliveryOutcome {
	return DeliveryOutcome{Status: DeliverySkipped, Reason: reason}
}

// NotificationDispatcher delivers match and trade events to users.
type NotificationDispatcher interface {
	Deliver(ctx context.Context, event *domain.MatchEvent) (DeliveryOutcome, error)
	DeliverTradeUpdate(ctx context.Context, trade *domain.Trade) (DeliveryOutcome, error)
}
