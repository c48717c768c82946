package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voucher-trade-engine/internal/core/domain"
	"voucher-trade-engine/internal/core/ports"
	"voucher-trade-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TradeServiceImpl implements ports.TradeService. It is the only writer of
// trade status and the only path that sells vouchers.
type TradeServiceImpl struct {
	inventory ports.InventoryService
	vouchers  ports.InventoryStore
	trades    ports.TradeRepository
	wishlists ports.WishlistRepository
	scorer    *Scorer
	events    ports.EventPublisher
	policy    StorePolicy
	now       func() time.Time
	log       zerolog.Logger
}

// NewTradeService creates a new TradeServiceImpl.
func NewTradeService(
	inventory ports.InventoryService,
	vouchers ports.InventoryStore,
	trades ports.TradeRepository,
	wishlists ports.WishlistRepository,
	scorer *Scorer,
	events ports.EventPublisher,
	policy StorePolicy,
	log zerolog.Logger,
) *TradeServiceImpl {
	return &TradeServiceImpl{
		inventory: inventory,
		vouchers:  vouchers,
		trades:    trades,
		wishlists: wishlists,
		scorer:    scorer,
		events:    events,
		policy:    policy,
		now:       time.Now,
		log:       log,
	}
}

// ProposeTrade opens a pending trade. Each referenced voucher must belong to
// its side and be tradable, and no other open trade may reference it.
func (s *TradeServiceImpl) ProposeTrade(ctx context.Context, req ports.ProposeTradeRequest) (*domain.Trade, error) {
	if req.InitiatorID == req.RecipientID {
		return nil, apperror.Validation("cannot propose a trade to yourself")
	}
	if req.RecipientVoucherID != nil && *req.RecipientVoucherID == req.InitiatorVoucherID {
		return nil, apperror.Validation("initiator and recipient vouchers must differ")
	}

	offered, err := s.tradableVoucher(ctx, req.InitiatorVoucherID, req.InitiatorID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var score int
	if req.RecipientVoucherID != nil {
		wanted, err := s.tradableVoucher(ctx, *req.RecipientVoucherID, req.RecipientID)
		if err != nil {
			return nil, err
		}
		score = s.scorer.Score(offered, wanted, now)
	} else {
		score, err = s.bestWishlistScore(ctx, offered, req.RecipientID, now)
		if err != nil {
			return nil, err
		}
	}

	trade := &domain.Trade{
		ID:                 uuid.New(),
		InitiatorID:        req.InitiatorID,
		RecipientID:        req.RecipientID,
		InitiatorVoucherID: req.InitiatorVoucherID,
		RecipientVoucherID: req.RecipientVoucherID,
		Status:             domain.TradeStatusPending,
		MatchScore:         score,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = execStore(ctx, s.policy, func(ctx context.Context) error {
		return s.trades.CreateExclusive(ctx, trade)
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrVoucherClaimed):
		return nil, apperror.ErrAlreadyClaimed()
	case errors.Is(err, domain.ErrVoucherNotFound):
		return nil, apperror.ErrNotFound("voucher")
	case errors.Is(err, domain.ErrStatusConflict):
		return nil, apperror.ErrInvalidStatus("voucher is no longer available for trade")
	default:
		// The insert may have landed before the failure surfaced.
		if _, readErr := s.loadTrade(ctx, trade.ID); readErr != nil {
			return nil, err
		}
	}

	s.log.Info().
		Str("trade_id", trade.ID.String()).
		Str("initiator_id", trade.InitiatorID.String()).
		Str("recipient_id", trade.RecipientID.String()).
		Int("match_score", score).
		Msg("trade proposed")

	s.events.Publish(domain.NewTradeEvent(trade, now))
	return trade, nil
}

// RespondToTrade lets the recipient accept or reject a pending trade.
// An accepted trade is settled at once: either every voucher is sold and the
// trade completes, or the trade is cancelled because a voucher is gone.
func (s *TradeServiceImpl) RespondToTrade(ctx context.Context, tradeID uuid.UUID, actorID uuid.UUID, accept bool) (*domain.Trade, error) {
	trade, err := s.loadTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade.RecipientID != actorID {
		return nil, apperror.ErrForbidden()
	}
	if trade.Status != domain.TradeStatusPending {
		return nil, apperror.ErrInvalidState(fmt.Sprintf("trade is %s", trade.Status))
	}

	if !accept {
		rejected, err := s.moveTrade(ctx, trade, domain.TradeStatusRejected, nil)
		if err != nil {
			return nil, err
		}
		s.log.Info().Str("trade_id", tradeID.String()).Msg("trade rejected")
		s.events.Publish(domain.NewTradeEvent(rejected, s.now().UTC()))
		return rejected, nil
	}

	accepted, err := s.moveTrade(ctx, trade, domain.TradeStatusAccepted, nil)
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, accepted)
}

// CancelTrade withdraws a pending trade. Either party may cancel.
func (s *TradeServiceImpl) CancelTrade(ctx context.Context, tradeID uuid.UUID, byUserID uuid.UUID) (*domain.Trade, error) {
	trade, err := s.loadTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !trade.IsParty(byUserID) {
		return nil, apperror.ErrForbidden()
	}
	if trade.Status != domain.TradeStatusPending {
		return nil, apperror.ErrInvalidState(fmt.Sprintf("trade is %s", trade.Status))
	}

	reason := domain.CancelReasonByRecipient
	if byUserID == trade.InitiatorID {
		reason = domain.CancelReasonByInitiator
	}
	cancelled, err := s.moveTrade(ctx, trade, domain.TradeStatusCancelled, &reason)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("trade_id", tradeID.String()).
		Str("reason", string(reason)).
		Msg("trade cancelled")
	s.events.Publish(domain.NewTradeEvent(cancelled, s.now().UTC()))
	return cancelled, nil
}

// GetTrade returns a trade to one of its parties.
func (s *TradeServiceImpl) GetTrade(ctx context.Context, tradeID uuid.UUID, actorID uuid.UUID) (*domain.Trade, error) {
	trade, err := s.loadTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !trade.IsParty(actorID) {
		return nil, apperror.ErrForbidden()
	}
	return trade, nil
}

// ListTrades returns the user's trades, newest first, optionally filtered by status.
func (s *TradeServiceImpl) ListTrades(ctx context.Context, userID uuid.UUID, status *domain.TradeStatus) ([]domain.Trade, error) {
	if status != nil && !status.IsValid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown trade status %q", *status))
	}
	trades, err := readStore(ctx, s.policy, s.log, "list_trades", func(ctx context.Context) ([]domain.Trade, error) {
		return s.trades.ListByUser(ctx, userID, status)
	})
	if err != nil {
		return nil, err
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	return trades, nil
}

// ReconcileAccepted settles trades left in accepted by a crash between the
// voucher claim and the final status write. A trade whose vouchers are all
// sold completes; any other is cancelled. No other open trade can reference
// those vouchers, so their status reflects this trade alone.
func (s *TradeServiceImpl) ReconcileAccepted(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	stuck, err := readStore(ctx, s.policy, s.log, "list_stuck_accepted", func(ctx context.Context) ([]domain.Trade, error) {
		return s.trades.ListStuckAccepted(ctx, cutoff, limit)
	})
	if err != nil {
		return 0, err
	}

	settled := 0
	for i := range stuck {
		trade := &stuck[i]
		allSold, err := s.allSold(ctx, trade)
		if err != nil {
			s.log.Warn().Err(err).Str("trade_id", trade.ID.String()).Msg("reconcile: voucher read failed")
			continue
		}

		var final *domain.Trade
		if allSold {
			final, err = s.complete(ctx, trade)
		} else {
			final, err = s.cancelUnavailable(ctx, trade)
		}
		if err != nil {
			s.log.Warn().Err(err).Str("trade_id", trade.ID.String()).Msg("reconcile: settle failed")
			continue
		}
		settled++
		s.log.Info().
			Str("trade_id", trade.ID.String()).
			Str("status", string(final.Status)).
			Msg("reconciled accepted trade")
	}
	return settled, nil
}

// settle claims every voucher of an accepted trade in one atomic batch.
func (s *TradeServiceImpl) settle(ctx context.Context, trade *domain.Trade) (*domain.Trade, error) {
	var changes []domain.StatusChange
	for _, id := range trade.VoucherIDs() {
		v, err := s.inventory.GetVoucher(ctx, id)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound("voucher")) {
				return s.cancelUnavailable(ctx, trade)
			}
			return nil, err
		}
		if !v.IsAvailableAt(s.now().UTC()) {
			return s.cancelUnavailable(ctx, trade)
		}
		changes = append(changes, domain.ClaimChanges(v)...)
	}

	err := execStore(ctx, s.policy, func(ctx context.Context) error {
		return s.vouchers.CompareAndSetStatuses(ctx, changes)
	})
	switch {
	case err == nil:
		return s.complete(ctx, trade)
	case errors.Is(err, domain.ErrStatusConflict),
		errors.Is(err, domain.ErrVoucherNotFound),
		errors.Is(err, domain.ErrInvalidTransition):
		s.log.Info().Err(err).Str("trade_id", trade.ID.String()).Msg("voucher claim lost")
		return s.cancelUnavailable(ctx, trade)
	}

	// The batch may have committed before the failure surfaced.
	if sold, readErr := s.allSold(ctx, trade); readErr == nil && sold {
		return s.complete(ctx, trade)
	}
	s.log.Error().Err(err).Str("trade_id", trade.ID.String()).Msg("voucher claim failed, trade left accepted for reconciliation")
	return nil, err
}

func (s *TradeServiceImpl) complete(ctx context.Context, trade *domain.Trade) (*domain.Trade, error) {
	completed, err := s.moveTrade(ctx, trade, domain.TradeStatusCompleted, nil)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("trade_id", trade.ID.String()).
		Int("vouchers", len(trade.VoucherIDs())).
		Msg("trade completed")
	s.events.Publish(domain.NewTradeEvent(completed, s.now().UTC()))
	return completed, nil
}

func (s *TradeServiceImpl) cancelUnavailable(ctx context.Context, trade *domain.Trade) (*domain.Trade, error) {
	reason := domain.CancelReasonVoucherNoLongerAvailable
	cancelled, err := s.moveTrade(ctx, trade, domain.TradeStatusCancelled, &reason)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("trade_id", trade.ID.String()).
		Str("reason", string(reason)).
		Msg("trade cancelled")
	s.events.Publish(domain.NewTradeEvent(cancelled, s.now().UTC()))
	return cancelled, nil
}

// moveTrade compare-and-sets the trade from its current status to next.
// A lost race is InvalidState. After an ambiguous store failure the trade is
// re-read and finding it already in next counts as success.
func (s *TradeServiceImpl) moveTrade(ctx context.Context, trade *domain.Trade, next domain.TradeStatus, reason *domain.CancelReason) (*domain.Trade, error) {
	now := s.now().UTC()
	tr := domain.TradeTransition{
		TradeID: trade.ID,
		From:    trade.Status,
		To:      next,
		Reason:  reason,
		At:      now,
	}
	if next == domain.TradeStatusCompleted {
		tr.CompletedAt = &now
	}

	updated, err := mutateStore(ctx, s.policy, func(ctx context.Context) (*domain.Trade, error) {
		return s.trades.CompareAndSetStatus(ctx, tr)
	})
	if err == nil {
		return updated, nil
	}
	if errors.Is(err, domain.ErrTradeNotFound) {
		return nil, apperror.ErrNotFound("trade")
	}
	if errors.Is(err, domain.ErrInvalidTransition) {
		return nil, apperror.ErrInvalidState(fmt.Sprintf("trade cannot move from %s to %s", tr.From, tr.To))
	}

	current, readErr := s.loadTrade(ctx, trade.ID)
	if errors.Is(err, domain.ErrStatusConflict) {
		// Another caller moved the trade first, even if to the same status.
		if readErr != nil {
			return nil, readErr
		}
		return nil, apperror.ErrInvalidState(fmt.Sprintf("trade is %s", current.Status))
	}
	if readErr == nil && current.Status == next {
		return current, nil
	}
	return nil, err
}

func (s *TradeServiceImpl) loadTrade(ctx context.Context, id uuid.UUID) (*domain.Trade, error) {
	trade, err := readStore(ctx, s.policy, s.log, "get_trade", func(ctx context.Context) (*domain.Trade, error) {
		return s.trades.GetByID(ctx, id)
	})
	if errors.Is(err, domain.ErrTradeNotFound) {
		return nil, apperror.ErrNotFound("trade")
	}
	return trade, err
}

// tradableVoucher loads a voucher for a proposal and checks who owns it
// and that it can still change hands.
func (s *TradeServiceImpl) tradableVoucher(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*domain.Voucher, error) {
	v, err := s.inventory.GetVoucher(ctx, id)
	if err != nil {
		return nil, err
	}
	if !v.IsOwnedBy(ownerID) {
		return nil, apperror.ErrInvalidOwnership()
	}
	if !v.IsAvailableAt(s.now().UTC()) {
		return nil, apperror.ErrInvalidStatus(fmt.Sprintf("voucher %s is %s", id, v.Status))
	}
	return v, nil
}

func (s *TradeServiceImpl) bestWishlistScore(ctx context.Context, v *domain.Voucher, userID uuid.UUID, asOf time.Time) (int, error) {
	items, err := readStore(ctx, s.policy, s.log, "list_wishlist", func(ctx context.Context) ([]domain.WishlistItem, error) {
		return s.wishlists.ListByUser(ctx, userID)
	})
	if err != nil {
		return 0, err
	}
	best := 0
	for i := range items {
		if score := s.scorer.ScoreWishlist(v, &items[i], asOf); score > best {
			best = score
		}
	}
	return best, nil
}

func (s *TradeServiceImpl) allSold(ctx context.Context, trade *domain.Trade) (bool, error) {
	for _, id := range trade.VoucherIDs() {
		v, err := readStore(ctx, s.policy, s.log, "get_voucher", func(ctx context.Context) (*domain.Voucher, error) {
			return s.vouchers.GetVoucher(ctx, id)
		})
		if domain.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if v.Status != domain.VoucherStatusSold {
			return false, nil
		}
	}
	return true, nil
}
