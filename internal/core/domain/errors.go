package domain

import "errors"

// Sentinel errors returned by the store ports. Adapters wrap them with
// context using %w so callers match with errors.Is.
var (
	ErrVoucherNotFound      = errors.New("voucher not found")
	ErrTradeNotFound        = errors.New("trade not found")
	ErrWishlistItemNotFound = errors.New("wishlist item not found")
	ErrStatusConflict       = errors.New("status conflict")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrVoucherClaimed       = errors.New("voucher already referenced by an open trade")
)

// IsNotFound returns true for any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrVoucherNotFound) ||
		errors.Is(err, ErrTradeNotFound) ||
		errors.Is(err, ErrWishlistItemNotFound)
}
