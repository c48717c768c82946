package dto

import (
	"testing"
	"time"

	"voucher-trade-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := CreateVoucherRequest{
		BrandName:  "  Amazon  ",
		Category:   " Shopping ",
		ExpiryDate: " 2026-12-31 ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "Amazon", req.BrandName)
	assert.Equal(t, "Shopping", req.Category)
	assert.Equal(t, "2026-12-31", req.ExpiryDate)
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	req := CreateWishlistItemRequest{BrandName: "<script>alert('x')</script>", Category: "tech"}
	SanitizeStruct(&req)

	assert.Contains(t, req.BrandName, "&lt;script&gt;")
	assert.NotContains(t, req.BrandName, "<script>")
}

func TestSanitizeStruct_HandlesPointerString(t *testing.T) {
	id := "  " + uuid.NewString() + "  "
	req := ProposeTradeRequest{RecipientVoucherID: &id}
	SanitizeStruct(&req)

	assert.Len(t, *req.RecipientVoucherID, 36)
}

func TestSanitizeStruct_NilPointerIsNoOp(t *testing.T) {
	req := ProposeTradeRequest{RecipientID: "x"}
	SanitizeStruct(&req)
	assert.Nil(t, req.RecipientVoucherID)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	s := "hello"
	SanitizeStruct(s) // should not panic
}

// --- Custom Validator tests ---

func TestSafeText(t *testing.T) {
	valid := []string{"Amazon", "Ben & Jerry's", "Café Nero", "7-Eleven", "tech_gadgets", "H.M"}
	for _, tc := range valid {
		assert.True(t, safeTextRe.MatchString(tc), "expected valid: %s", tc)
	}

	invalid := []string{"", "brand<b>", "a;DROP", "line\nbreak", "50%"}
	for _, tc := range invalid {
		assert.False(t, safeTextRe.MatchString(tc), "expected invalid: %q", tc)
	}
}

// --- Conversion tests ---

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"85", 8500, false},
		{"85.5", 8550, false},
		{"0.01", 1, false},
		{"85.123", 0, true},
		{"0", 0, true},
		{"-3", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ToMinorUnits(decimal.RequireFromString(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatMinorUnits(t *testing.T) {
	assert.Equal(t, "85.00", FormatMinorUnits(8500))
	assert.Equal(t, "0.05", FormatMinorUnits(5))
}

func TestParseExpiryDate_EndOfDayUTC(t *testing.T) {
	got, err := ParseExpiryDate("2025-12-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC), got)

	_, err = ParseExpiryDate("31/12/2025")
	assert.Error(t, err)
}

func TestNewTradeResponse(t *testing.T) {
	recipientVoucher := uuid.New()
	reason := domain.CancelReasonVoucherNoLongerAvailable
	tr := &domain.Trade{
		ID:                 uuid.New(),
		InitiatorID:        uuid.New(),
		RecipientID:        uuid.New(),
		InitiatorVoucherID: uuid.New(),
		RecipientVoucherID: &recipientVoucher,
		Status:             domain.TradeStatusCancelled,
		MatchScore:         72,
		CancelReason:       &reason,
	}

	resp := NewTradeResponse(tr)
	require.NotNil(t, resp.RecipientVoucherID)
	assert.Equal(t, recipientVoucher.String(), *resp.RecipientVoucherID)
	require.NotNil(t, resp.CancelReason)
	assert.Equal(t, "VOUCHER_NO_LONGER_AVAILABLE", *resp.CancelReason)
	assert.Nil(t, resp.CompletedAt)
}

func TestNewLists_NeverNil(t *testing.T) {
	assert.NotNil(t, NewVoucherList(nil))
	assert.NotNil(t, NewTradeList(nil))
	assert.NotNil(t, NewWishlistList(nil))
	assert.NotNil(t, NewMatchList(nil))
}
