package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"voucher-trade-engine/internal/core/domain"
	"voucher-trade-engine/internal/core/ports"
	"voucher-trade-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WishlistServiceImpl implements ports.WishlistService.
type WishlistServiceImpl struct {
	repo   ports.WishlistRepository
	events ports.EventPublisher
	policy StorePolicy
	now    func() time.Time
	log    zerolog.Logger
}

// NewWishlistService creates a new WishlistServiceImpl.
func NewWishlistService(repo ports.WishlistRepository, events ports.EventPublisher, policy StorePolicy, log zerolog.Logger) *WishlistServiceImpl {
	return &WishlistServiceImpl{
		repo:   repo,
		events: events,
		policy: policy,
		now:    time.Now,
		log:    log,
	}
}

// AddItem stores a wishlist item and queues a scan of current inventory for it.
func (s *WishlistServiceImpl) AddItem(ctx context.Context, req ports.CreateWishlistItemRequest) (*domain.WishlistItem, error) {
	item := &domain.WishlistItem{
		ID:        uuid.New(),
		UserID:    req.UserID,
		BrandName: strings.TrimSpace(req.BrandName),
		Category:  strings.TrimSpace(req.Category),
		MaxPrice:  req.MaxPrice,
		Notify:    req.Notify,
		CreatedAt: s.now().UTC(),
	}
	if err := item.Validate(); err != nil {
		return nil, apperror.Validation(err.Error())
	}

	if err := execStore(ctx, s.policy, func(ctx context.Context) error {
		return s.repo.Create(ctx, item)
	}); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("item_id", item.ID.String()).
		Str("user_id", item.UserID.String()).
		Str("brand", item.BrandName).
		Msg("wishlist item added")

	s.events.Publish(domain.NewWishlistItemEvent(item, item.CreatedAt))
	return item, nil
}

// ListItems returns the user's wishlist, newest first.
func (s *WishlistServiceImpl) ListItems(ctx context.Context, userID uuid.UUID) ([]domain.WishlistItem, error) {
	items, err := readStore(ctx, s.policy, s.log, "list_wishlist", func(ctx context.Context) ([]domain.WishlistItem, error) {
		return s.repo.ListByUser(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.WishlistItem{}
	}
	return items, nil
}

// SetNotify turns match notifications for one item on or off.
func (s *WishlistServiceImpl) SetNotify(ctx context.Context, id uuid.UUID, userID uuid.UUID, notify bool) (*domain.WishlistItem, error) {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return nil, err
	}
	item, err := mutateStore(ctx, s.policy, func(ctx context.Context) (*domain.WishlistItem, error) {
		return s.repo.SetNotify(ctx, id, notify)
	})
	if err != nil {
		return nil, mapWishlistErr(err)
	}
	return item, nil
}

// RemoveItem deletes one of the user's wishlist items.
func (s *WishlistServiceImpl) RemoveItem(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return err
	}
	if err := execStore(ctx, s.policy, func(ctx context.Context) error {
		return s.repo.Delete(ctx, id)
	}); err != nil {
		return mapWishlistErr(err)
	}
	s.log.Info().Str("item_id", id.String()).Msg("wishlist item removed")
	return nil
}

func (s *WishlistServiceImpl) owned(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*domain.WishlistItem, error) {
	item, err := readStore(ctx, s.policy, s.log, "get_wishlist_item", func(ctx context.Context) (*domain.WishlistItem, error) {
		return s.repo.GetByID(ctx, id)
	})
	if err != nil {
		return nil, mapWishlistErr(err)
	}
	if item.UserID != userID {
		return nil, apperror.ErrForbidden()
	}
	return item, nil
}

func mapWishlistErr(err error) error {
	if errors.Is(err, domain.ErrWishlistItemNotFound) {
		return apperror.ErrNotFound("wishlist item")
	}
	return err
}
