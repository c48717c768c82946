package dto

import (
	"errors"
	"time"

	"voucher-trade-engine/internal/core/domain"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of voucher expiry dates.
const DateLayout = "2006-01-02"

// --- Vouchers ---

// CreateVoucherRequest is the request body for listing a voucher.
// Money is given in major units with at most two decimals.
type CreateVoucherRequest struct {
	BrandName     string           `json:"brand_name" binding:"required,max=100,safe_text"`
	Category      string           `json:"category" binding:"required,max=50,safe_text"`
	OriginalValue *decimal.Decimal `json:"original_value" binding:"required"`
	SellingPrice  *decimal.Decimal `json:"selling_price" binding:"required"`
	ExpiryDate    string           `json:"expiry_date" binding:"required,datetime=2006-01-02"`
}

// UpdatePriceRequest is the request body for repricing a voucher.
type UpdatePriceRequest struct {
	SellingPrice *decimal.Decimal `json:"selling_price" binding:"required"`
}

// VoucherResponse is the public view of a voucher.
type VoucherResponse struct {
	ID                 string  `json:"id"`
	SellerID           string  `json:"seller_id"`
	BrandName          string  `json:"brand_name"`
	Category           string  `json:"category"`
	OriginalValue      string  `json:"original_value"`
	SellingPrice       string  `json:"selling_price"`
	DiscountPercentage float64 `json:"discount_percentage"`
	ExpiryDate         string  `json:"expiry_date"`
	Status             string  `json:"status"`
	IsVerified         bool    `json:"is_verified"`
	Views              int64   `json:"views"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

// ExpiryInsightsResponse summarizes vouchers expiring between From and To,
// both inclusive calendar dates.
type ExpiryInsightsResponse struct {
	From       string              `json:"from"`
	To         string              `json:"to"`
	Total      int                 `json:"total"`
	TotalValue string              `json:"total_value"`
	Days       []ExpiryDayResponse `json:"days"`
}

// ExpiryDayResponse is one calendar day of an expiry summary.
type ExpiryDayResponse struct {
	Date     string                    `json:"date"`
	Count    int                       `json:"count"`
	Value    string                    `json:"value"`
	Vouchers []ExpiringVoucherResponse `json:"vouchers"`
}

// ExpiringVoucherResponse is the short voucher view used in expiry summaries.
type ExpiringVoucherResponse struct {
	ID            string `json:"id"`
	BrandName     string `json:"brand_name"`
	Category      string `json:"category"`
	OriginalValue string `json:"original_value"`
	SellingPrice  string `json:"selling_price"`
}

// --- Trades ---

// ProposeTradeRequest is the request body for proposing a trade.
type ProposeTradeRequest struct {
	RecipientID        string  `json:"recipient_id" binding:"required,uuid"`
	InitiatorVoucherID string  `json:"initiator_voucher_id" binding:"required,uuid"`
	RecipientVoucherID *string `json:"recipient_voucher_id,omitempty" binding:"omitempty,uuid"`
}

// RespondTradeRequest is the request body for accepting or rejecting a trade.
type RespondTradeRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

// TradeResponse is the public view of a trade.
type TradeResponse struct {
	ID                 string  `json:"id"`
	InitiatorID        string  `json:"initiator_id"`
	RecipientID        string  `json:"recipient_id"`
	InitiatorVoucherID string  `json:"initiator_voucher_id"`
	RecipientVoucherID *string `json:"recipient_voucher_id,omitempty"`
	Status             string  `json:"status"`
	MatchScore         int     `json:"match_score"`
	CancelReason       *string `json:"cancel_reason,omitempty"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
	CompletedAt        *string `json:"completed_at,omitempty"`
}

// --- Wishlist ---

// CreateWishlistItemRequest is the request body for a new wishlist item.
// Notify defaults to true.
type CreateWishlistItemRequest struct {
	BrandName string           `json:"brand_name" binding:"required,max=100,safe_text"`
	Category  string           `json:"category" binding:"required,max=50,safe_text"`
	MaxPrice  *decimal.Decimal `json:"max_price,omitempty"`
	Notify    *bool            `json:"notify,omitempty"`
}

// UpdateWishlistItemRequest is the request body for toggling notifications.
type UpdateWishlistItemRequest struct {
	Notify *bool `json:"notify" binding:"required"`
}

// WishlistItemResponse is the public view of a wishlist item.
type WishlistItemResponse struct {
	ID        string  `json:"id"`
	BrandName string  `json:"brand_name"`
	Category  string  `json:"category"`
	MaxPrice  *string `json:"max_price,omitempty"`
	Notify    bool    `json:"notify"`
	CreatedAt string  `json:"created_at"`
}

// MatchEventResponse is the public view of a wishlist match.
type MatchEventResponse struct {
	ID             string  `json:"id"`
	WishlistItemID string  `json:"wishlist_item_id"`
	VoucherID      string  `json:"voucher_id"`
	Score          int     `json:"score"`
	Price          string  `json:"price"`
	DeliveredAt    *string `json:"delivered_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

// --- Conversions ---

// ToMinorUnits converts a major-unit amount to minor units. Amounts must be
// positive and carry at most two decimals.
func ToMinorUnits(d decimal.Decimal) (int64, error) {
	if !d.IsPositive() {
		return 0, errors.New("amount must be positive")
	}
	if !d.Equal(d.Round(2)) {
		return 0, errors.New("amount has more than two decimals")
	}
	return d.Shift(2).IntPart(), nil
}

// FormatMinorUnits renders minor units as a fixed two-decimal string.
func FormatMinorUnits(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// ParseExpiryDate maps a calendar date to the last second of that day in UTC.
func ParseExpiryDate(s string) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(24*time.Hour - time.Second), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// NewVoucherResponse converts a domain voucher to its response.
func NewVoucherResponse(v *domain.Voucher) VoucherResponse {
	return VoucherResponse{
		ID:                 v.ID.String(),
		SellerID:           v.SellerID.String(),
		BrandName:          v.BrandName,
		Category:           v.Category,
		OriginalValue:      FormatMinorUnits(v.OriginalValue),
		SellingPrice:       FormatMinorUnits(v.SellingPrice),
		DiscountPercentage: v.DiscountPercentage,
		ExpiryDate:         v.ExpiryDate.UTC().Format(DateLayout),
		Status:             string(v.Status),
		IsVerified:         v.IsVerified,
		Views:              v.Views,
		CreatedAt:          formatTime(v.CreatedAt),
		UpdatedAt:          formatTime(v.UpdatedAt),
	}
}

// NewVoucherList converts vouchers, never returning nil.
func NewVoucherList(vs []domain.Voucher) []VoucherResponse {
	out := make([]VoucherResponse, 0, len(vs))
	for i := range vs {
		out = append(out, NewVoucherResponse(&vs[i]))
	}
	return out
}

// NewExpiryInsightsResponse converts an expiry summary. The exclusive end
// of the domain window is reported as the last included day.
func NewExpiryInsightsResponse(in *domain.ExpiryInsights) ExpiryInsightsResponse {
	resp := ExpiryInsightsResponse{
		From:       in.From.UTC().Format(DateLayout),
		To:         in.To.UTC().Add(-time.Second).Format(DateLayout),
		Total:      in.Total,
		TotalValue: FormatMinorUnits(in.TotalValue),
		Days:       make([]ExpiryDayResponse, 0, len(in.Days)),
	}
	for _, d := range in.Days {
		day := ExpiryDayResponse{
			Date:     d.Date.Format(DateLayout),
			Count:    d.Count,
			Value:    FormatMinorUnits(d.Value),
			Vouchers: make([]ExpiringVoucherResponse, 0, len(d.Vouchers)),
		}
		for _, v := range d.Vouchers {
			day.Vouchers = append(day.Vouchers, ExpiringVoucherResponse{
				ID:            v.ID.String(),
				BrandName:     v.BrandName,
				Category:      v.Category,
				OriginalValue: FormatMinorUnits(v.OriginalValue),
				SellingPrice:  FormatMinorUnits(v.SellingPrice),
			})
		}
		resp.Days = append(resp.Days, day)
	}
	return resp
}

// NewTradeResponse converts a domain trade to its response.
func NewTradeResponse(t *domain.Trade) TradeResponse {
	resp := TradeResponse{
		ID:                 t.ID.String(),
		InitiatorID:        t.InitiatorID.String(),
		RecipientID:        t.RecipientID.String(),
		InitiatorVoucherID: t.InitiatorVoucherID.String(),
		Status:             string(t.Status),
		MatchScore:         t.MatchScore,
		CreatedAt:          formatTime(t.CreatedAt),
		UpdatedAt:          formatTime(t.UpdatedAt),
		CompletedAt:        formatTimePtr(t.CompletedAt),
	}
	if t.RecipientVoucherID != nil {
		s := t.RecipientVoucherID.String()
		resp.RecipientVoucherID = &s
	}
	if t.CancelReason != nil {
		s := string(*t.CancelReason)
		resp.CancelReason = &s
	}
	return resp
}

// NewTradeList converts trades, never returning nil.
func NewTradeList(ts []domain.Trade) []TradeResponse {
	out := make([]TradeResponse, 0, len(ts))
	for i := range ts {
		out = append(out, NewTradeResponse(&ts[i]))
	}
	return out
}

// NewWishlistItemResponse converts a domain wishlist item to its response.
func NewWishlistItemResponse(w *domain.WishlistItem) WishlistItemResponse {
	resp := WishlistItemResponse{
		ID:        w.ID.String(),
		BrandName: w.BrandName,
		Category:  w.Category,
		Notify:    w.Notify,
		CreatedAt: formatTime(w.CreatedAt),
	}
	if w.MaxPrice != nil {
		s := FormatMinorUnits(*w.MaxPrice)
		resp.MaxPrice = &s
	}
	return resp
}

// NewWishlistList converts wishlist items, never returning nil.
func NewWishlistList(items []domain.WishlistItem) []WishlistItemResponse {
	out := make([]WishlistItemResponse, 0, len(items))
	for i := range items {
		out = append(out, NewWishlistItemResponse(&items[i]))
	}
	return out
}

// NewMatchList converts match events, never returning nil.
func NewMatchList(events []domain.MatchEvent) []MatchEventResponse {
	out := make([]MatchEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, MatchEventResponse{
			ID:             e.ID.String(),
			WishlistItemID: e.WishlistItemID.String(),
			VoucherID:      e.VoucherID.String(),
			Score:          e.Score,
			Price:          FormatMinorUnits(e.PriceSnapshot),
			DeliveredAt:    formatTimePtr(e.DeliveredAt),
			CreatedAt:      formatTime(e.CreatedAt),
		})
	}
	return out
}
