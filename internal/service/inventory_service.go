package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voucher-trade-engine/internal/core/domain"
	"voucher-trade-engine/internal/core/ports"
	"voucher-trade-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// InventoryServiceImpl implements ports.InventoryService.
type InventoryServiceImpl struct {
	store  ports.InventoryStore
	events ports.EventPublisher
	policy StorePolicy
	now    func() time.Time
	log    zerolog.Logger
}

// NewInventoryService creates a new InventoryServiceImpl.
func NewInventoryService(
	store ports.InventoryStore,
	events ports.EventPublisher,
	policy StorePolicy,
	log zerolog.Logger,
) *InventoryServiceImpl {
	return &InventoryServiceImpl{
		store:  store,
		events: events,
		policy: policy,
		now:    time.Now,
		log:    log,
	}
}

// CreateListing stores a new voucher awaiting verification.
func (s *InventoryServiceImpl) CreateListing(ctx context.Context, req ports.CreateVoucherRequest) (*domain.Voucher, error) {
	now := s.now().UTC()
	v := &domain.Voucher{
		ID:                 uuid.New(),
		SellerID:           req.SellerID,
		BrandName:          strings.TrimSpace(req.BrandName),
		Category:           strings.TrimSpace(req.Category),
		OriginalValue:      req.OriginalValue,
		SellingPrice:       req.SellingPrice,
		DiscountPercentage: domain.ComputeDiscount(req.OriginalValue, req.SellingPrice),
		ExpiryDate:         req.ExpiryDate.UTC(),
		Status:             domain.VoucherStatusPendingVerification,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := v.Validate(); err != nil {
		return nil, apperror.Validation(err.Error())
	}
	if v.IsExpiredAt(now) {
		return nil, apperror.Validation("expiry_date must be in the future")
	}

	if err := execStore(ctx, s.policy, func(ctx context.Context) error {
		return s.store.Create(ctx, v)
	}); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("voucher_id", v.ID.String()).
		Str("seller_id", v.SellerID.String()).
		Str("brand", v.BrandName).
		Int64("price", v.SellingPrice).
		Msg("voucher listed")

	return v, nil
}

// GetVoucher returns the voucher, applying lazy expiry first.
func (s *InventoryServiceImpl) GetVoucher(ctx context.Context, id uuid.UUID) (*domain.Voucher, error) {
	v, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.expireIfOverdue(ctx, v)
}

// ViewVoucher returns the voucher and counts the view. A failed counter
// update never fails the read.
func (s *InventoryServiceImpl) ViewVoucher(ctx context.Context, id uuid.UUID) (*domain.Voucher, error) {
	v, err := s.GetVoucher(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := execStore(ctx, s.policy, func(ctx context.Context) error {
		return s.store.IncrementViews(ctx, id)
	}); err != nil {
		s.log.Warn().Err(err).Str("voucher_id", id.String()).Msg("failed to count voucher view")
		return v, nil
	}
	v.Views++
	return v, nil
}

// ListActiveByCategory returns tradable vouchers in a category, newest first.
func (s *InventoryServiceImpl) ListActiveByCategory(ctx context.Context, category string) ([]domain.Voucher, error) {
	if strings.TrimSpace(category) == "" {
		return nil, apperror.Validation("category is required")
	}
	asOf := s.now().UTC()
	vouchers, err := readStore(ctx, s.policy, s.log, "list_active_by_category", func(ctx context.Context) ([]domain.Voucher, error) {
		return s.store.ListActiveByCategory(ctx, strings.TrimSpace(category), asOf)
	})
	if err != nil {
		return nil, err
	}
	if vouchers == nil {
		vouchers = []domain.Voucher{}
	}
	return vouchers, nil
}

// MarkVerified records the verification collaborator's approval.
// Verifying an already verified or active voucher is a no-op.
func (s *InventoryServiceImpl) MarkVerified(ctx context.Context, id uuid.UUID) (*domain.Voucher, error) {
	v, err := s.GetVoucher(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.Status.IsTradable() {
		return v, nil
	}
	if v.Status != domain.VoucherStatusPendingVerification {
		return nil, apperror.ErrInvalidStatus(fmt.Sprintf("voucher is %s and cannot be verified", v.Status))
	}

	v, err = s.transition(ctx, v, domain.VoucherStatusVerified)
	if err != nil {
		return nil, err
	}
	s.events.Publish(domain.NewVoucherEvent(domain.EventVoucherVerified, v.ID, s.now().UTC()))
	return v, nil
}

// Activate makes a verified voucher visible for sale. Only the seller may do it.
func (s *InventoryServiceImpl) Activate(ctx context.Context, id uuid.UUID, sellerID uuid.UUID) (*domain.Voucher, error) {
	v, err := s.GetVoucher(ctx, id)
	if err != nil {
		return nil, err
	}
	if !v.IsOwnedBy(sellerID) {
		return nil, apperror.ErrInvalidOwnership()
	}
	switch v.Status {
	case domain.VoucherStatusActive:
		return v, nil
	case domain.VoucherStatusVerified:
	default:
		return nil, apperror.ErrInvalidStatus(fmt.Sprintf("voucher is %s, only verified vouchers can be activated", v.Status))
	}

	v, err = s.transition(ctx, v, domain.VoucherStatusActive)
	if err != nil {
		return nil, err
	}
	s.events.Publish(domain.NewVoucherEvent(domain.EventVoucherActivated, v.ID, s.now().UTC()))
	return v, nil
}

// UpdatePrice changes the selling price of a live listing.
func (s *InventoryServiceImpl) UpdatePrice(ctx context.Context, id uuid.UUID, sellerID uuid.UUID, price int64) (*domain.Voucher, error) {
	v, err := s.GetVoucher(ctx, id)
	if err != nil {
		return nil, err
	}
	if !v.IsOwnedBy(sellerID) {
		return nil, apperror.ErrInvalidOwnership()
	}
	if v.Status.IsTerminal() {
		return nil, apperror.ErrInvalidStatus(fmt.Sprintf("voucher is %s", v.Status))
	}
	if price <= 0 {
		return nil, apperror.Validation("selling_price must be positive")
	}
	if price > v.OriginalValue {
		return nil, apperror.Validation("selling_price must not exceed original_value")
	}
	if price == v.SellingPrice {
		return v, nil
	}

	discount := domain.ComputeDiscount(v.OriginalValue, price)
	updated, err := mutateStore(ctx, s.policy, func(ctx context.Context) (*domain.Voucher, error) {
		return s.store.UpdatePrice(ctx, id, price, discount)
	})
	if err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			return nil, apperror.ErrInvalidStatus("voucher left the market while the price was being changed")
		}
		return nil, mapVoucherErr(err)
	}

	s.log.Info().
		Str("voucher_id", id.String()).
		Int64("old_price", v.SellingPrice).
		Int64("new_price", price).
		Msg("voucher price changed")

	if updated.IsAvailableAt(s.now().UTC()) {
		s.events.Publish(domain.NewVoucherEvent(domain.EventVoucherPriceChanged, id, s.now().UTC()))
	}
	return updated, nil
}

// ExpireOverdue moves up to limit overdue vouchers to expired. Vouchers that
// changed status in the meantime are skipped.
func (s *InventoryServiceImpl) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	asOf := s.now().UTC()
	overdue, err := readStore(ctx, s.policy, s.log, "list_expired", func(ctx context.Context) ([]domain.Voucher, error) {
		return s.store.ListExpired(ctx, asOf, limit)
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range overdue {
		v := &overdue[i]
		if !v.Status.CanTransitionTo(domain.VoucherStatusExpired) {
			continue
		}
		err := execStore(ctx, s.policy, func(ctx context.Context) error {
			return s.store.CompareAndSetStatus(ctx, v.ID, v.Status, domain.VoucherStatusExpired)
		})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, domain.ErrStatusConflict), domain.IsNotFound(err):
		default:
			return expired, err
		}
	}

	if expired > 0 {
		s.log.Info().Int("count", expired).Msg("expired overdue vouchers")
	}
	return expired, nil
}

// maxInsightsSpan bounds the window of an expiry summary.
const maxInsightsSpan = 366 * 24 * time.Hour

// ExpiryInsights summarizes the tradable vouchers expiring in [from, to).
// Vouchers already past expiry are never counted, even when from lies in the past.
func (s *InventoryServiceImpl) ExpiryInsights(ctx context.Context, from, to time.Time) (*domain.ExpiryInsights, error) {
	from, to = from.UTC(), to.UTC()
	if !to.After(from) {
		return nil, apperror.Validation("to must be after from")
	}
	if to.Sub(from) > maxInsightsSpan {
		return nil, apperror.Validation("range must not exceed 366 days")
	}

	start := from
	if now := s.now().UTC(); now.After(start) {
		start = now
	}
	var vouchers []domain.Voucher
	if to.After(start) {
		var err error
		vouchers, err = readStore(ctx, s.policy, s.log, "list_expiring", func(ctx context.Context) ([]domain.Voucher, error) {
			return s.store.ListExpiring(ctx, start, to)
		})
		if err != nil {
			return nil, err
		}
	}

	insights := domain.SummarizeExpiry(vouchers, from, to)
	return &insights, nil
}

func (s *InventoryServiceImpl) load(ctx context.Context, id uuid.UUID) (*domain.Voucher, error) {
	v, err := readStore(ctx, s.policy, s.log, "get_voucher", func(ctx context.Context) (*domain.Voucher, error) {
		return s.store.GetVoucher(ctx, id)
	})
	if err != nil {
		return nil, mapVoucherErr(err)
	}
	return v, nil
}

// expireIfOverdue moves a tradable voucher past its expiry to expired.
func (s *InventoryServiceImpl) expireIfOverdue(ctx context.Context, v *domain.Voucher) (*domain.Voucher, error) {
	if !v.NeedsLazyExpiry(s.now().UTC()) {
		return v, nil
	}
	expired, err := s.transition(ctx, v, domain.VoucherStatusExpired)
	if err != nil {
		if errors.Is(err, apperror.ErrInvalidStatus("")) {
			// Someone else moved it first; report whatever it is now.
			return s.load(ctx, v.ID)
		}
		return nil, err
	}
	s.log.Info().Str("voucher_id", v.ID.String()).Msg("voucher expired on read")
	return expired, nil
}

// transition performs a single CAS from v.Status to next. When the write
// fails or conflicts, the voucher is re-read and a voucher already in next
// counts as success.
func (s *InventoryServiceImpl) transition(ctx context.Context, v *domain.Voucher, next domain.VoucherStatus) (*domain.Voucher, error) {
	from := v.Status
	err := execStore(ctx, s.policy, func(ctx context.Context) error {
		return s.store.CompareAndSetStatus(ctx, v.ID, from, next)
	})
	if err == nil {
		out := *v
		out.Status = next
		if next == domain.VoucherStatusVerified {
			out.IsVerified = true
		}
		out.UpdatedAt = s.now().UTC()
		return &out, nil
	}
	if domain.IsNotFound(err) {
		return nil, mapVoucherErr(err)
	}

	current, readErr := s.load(ctx, v.ID)
	if readErr != nil {
		return nil, readErr
	}
	if current.Status == next {
		return current, nil
	}
	if errors.Is(err, domain.ErrStatusConflict) {
		return nil, apperror.ErrInvalidStatus(fmt.Sprintf("voucher is %s", current.Status))
	}
	return nil, err
}

func mapVoucherErr(err error) error {
	if errors.Is(err, domain.ErrVoucherNotFound) {
		return apperror.ErrNotFound("voucher")
	}
	return err
}
