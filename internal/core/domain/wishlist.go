package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WishlistItem is a user's standing interest in a brand, optionally capped by price.
type WishlistItem struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	BrandName string    `json:"brand_name"`
	Category  string    `json:"category"`
	MaxPrice  *int64    `json:"max_price,omitempty"` // Minor units
	Notify    bool      `json:"notify"`
	CreatedAt time.Time `json:"created_at"`
}

// WantsBrand returns true if brand names match ignoring case and padding.
func (w *WishlistItem) WantsBrand(brand string) bool {
	return NormalizeKey(w.BrandName) == NormalizeKey(brand)
}

// PriceDisqualifies returns true if price is above the item's ceiling.
func (w *WishlistItem) PriceDisqualifies(price int64) bool {
	return w.MaxPrice != nil && price > *w.MaxPrice
}

// Validate checks the fields the owner must provide.
func (w *WishlistItem) Validate() error {
	if strings.TrimSpace(w.BrandName) == "" {
		return errors.New("brand_name is required")
	}
	if strings.TrimSpace(w.Category) == "" {
		return errors.New("category is required")
	}
	if w.MaxPrice != nil && *w.MaxPrice <= 0 {
		return errors.New("max_price must be positive")
	}
	return nil
}
