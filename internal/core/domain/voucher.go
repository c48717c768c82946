package domain

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// VoucherStatus represents the lifecycle state of a listed voucher.
type VoucherStatus string

const (
	VoucherStatusPendingVerification VoucherStatus = "pending_verification"
	VoucherStatusVerified            VoucherStatus = "verified"
	VoucherStatusActive              VoucherStatus = "active"
	VoucherStatusSold                VoucherStatus = "sold"
	VoucherStatusExpired             VoucherStatus = "expired"
)

// AvailabilityAvailable is the availability class shared by verified and active vouchers.
const AvailabilityAvailable = "available"

// voucherTransitions lists the forward edges of the voucher status machine.
var voucherTransitions = map[VoucherStatus][]VoucherStatus{
	VoucherStatusPendingVerification: {VoucherStatusVerified},
	VoucherStatusVerified:            {VoucherStatusActive, VoucherStatusExpired},
	VoucherStatusActive:              {VoucherStatusSold, VoucherStatusExpired},
}

// IsValid reports whether s is a known voucher status.
func (s VoucherStatus) IsValid() bool {
	switch s {
	case VoucherStatusPendingVerification, VoucherStatusVerified, VoucherStatusActive,
		VoucherStatusSold, VoucherStatusExpired:
		return true
	}
	return false
}

// IsTerminal returns true for sold and expired.
func (s VoucherStatus) IsTerminal() bool {
	return s == VoucherStatusSold || s == VoucherStatusExpired
}

// IsTradable returns true for the statuses a voucher may be offered in.
func (s VoucherStatus) IsTradable() bool {
	return s == VoucherStatusVerified || s == VoucherStatusActive
}

// CanTransitionTo reports whether next is a legal forward step from s.
func (s VoucherStatus) CanTransitionTo(next VoucherStatus) bool {
	for _, allowed := range voucherTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Voucher is a tradable claim listed by its seller.
// Money fields are in minor units.
type Voucher struct {
	ID                 uuid.UUID     `json:"id"`
	SellerID           uuid.UUID     `json:"seller_id"`
	BrandName          string        `json:"brand_name"`
	Category           string        `json:"category"`
	OriginalValue      int64         `json:"original_value"`
	SellingPrice       int64         `json:"selling_price"`
	DiscountPercentage float64       `json:"discount_percentage"`
	ExpiryDate         time.Time     `json:"expiry_date"`
	Status             VoucherStatus `json:"status"`
	IsVerified         bool          `json:"is_verified"`
	Views              int64         `json:"views"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// IsOwnedBy returns true if userID is the seller.
func (v *Voucher) IsOwnedBy(userID uuid.UUID) bool {
	return v.SellerID == userID
}

// IsExpiredAt returns true once asOf is past the expiry instant.
func (v *Voucher) IsExpiredAt(asOf time.Time) bool {
	return asOf.After(v.ExpiryDate)
}

// NeedsLazyExpiry returns true if the voucher is still tradable on record
// but its expiry date has already passed.
func (v *Voucher) NeedsLazyExpiry(asOf time.Time) bool {
	return v.Status.IsTradable() && v.IsExpiredAt(asOf)
}

// IsAvailableAt returns true if the voucher can be traded or matched at asOf.
func (v *Voucher) IsAvailableAt(asOf time.Time) bool {
	return v.Status.IsTradable() && !v.IsExpiredAt(asOf)
}

// Availability collapses the status into the class used for notification
// dedup: verified and active are the same thing to a buyer.
func (v *Voucher) Availability(asOf time.Time) string {
	if v.IsAvailableAt(asOf) {
		return AvailabilityAvailable
	}
	if v.NeedsLazyExpiry(asOf) {
		return string(VoucherStatusExpired)
	}
	return string(v.Status)
}

// Validate checks the listing invariants.
func (v *Voucher) Validate() error {
	if strings.TrimSpace(v.BrandName) == "" {
		return errors.New("brand_name is required")
	}
	if strings.TrimSpace(v.Category) == "" {
		return errors.New("category is required")
	}
	if v.OriginalValue <= 0 {
		return errors.New("original_value must be positive")
	}
	if v.SellingPrice <= 0 {
		return errors.New("selling_price must be positive")
	}
	if v.SellingPrice > v.OriginalValue {
		return errors.New("selling_price must not exceed original_value")
	}
	if v.ExpiryDate.IsZero() {
		return errors.New("expiry_date is required")
	}
	return nil
}

// ComputeDiscount returns the discount percentage rounded to two decimals.
func ComputeDiscount(originalValue, sellingPrice int64) float64 {
	if originalValue <= 0 {
		return 0
	}
	pct := float64(originalValue-sellingPrice) / float64(originalValue) * 100
	return math.Round(pct*100) / 100
}

// StatusChange is one step of a voucher compare-and-set.
type StatusChange struct {
	VoucherID uuid.UUID
	From      VoucherStatus
	To        VoucherStatus
}

// ClaimChanges returns the steps needed to move a tradable voucher to sold.
// A verified voucher is activated in the same batch.
func ClaimChanges(v *Voucher) []StatusChange {
	if v.Status == VoucherStatusVerified {
		return []StatusChange{
			{VoucherID: v.ID, From: VoucherStatusVerified, To: VoucherStatusActive},
			{VoucherID: v.ID, From: VoucherStatusActive, To: VoucherStatusSold},
		}
	}
	return []StatusChange{{VoucherID: v.ID, From: v.Status, To: VoucherStatusSold}}
}

// NormalizeKey lowercases and trims a brand or category for comparison.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
