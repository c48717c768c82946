package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voucher-trade-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const tradeColumns = `id, initiator_id, recipient_id, initiator_voucher_id, recipient_voucher_id,
	status, match_score, cancel_reason, created_at, updated_at, completed_at`

// TradeRepo implements ports.TradeRepository.
type TradeRepo struct {
	pool Pool
}

// NewTradeRepo creates a new TradeRepo.
func NewTradeRepo(pool Pool) *TradeRepo {
	return &TradeRepo{pool: pool}
}

// CreateExclusive inserts a pending trade while holding row locks on every
// referenced voucher, so two proposals on the same voucher serialize and the
// second one sees the first as an open trade. Under the locks every voucher
// must still be verified or active and unexpired.
func (r *TradeRepo) CreateExclusive(ctx context.Context, t *domain.Trade) error {
	ids := sortedIDs(t.VoucherIDs()...)

	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		found, err := lockVouchers(ctx, tx, ids)
		if err != nil {
			return err
		}
		if found != int64(len(ids)) {
			return fmt.Errorf("%w: trade references a missing voucher", domain.ErrVoucherNotFound)
		}

		var tradable int64
		err = tx.QueryRow(ctx, `SELECT count(*) FROM vouchers
			WHERE id = ANY($1::uuid[]) AND status IN ('verified', 'active') AND expiry_date > $2`,
			ids, t.CreatedAt).Scan(&tradable)
		if err != nil {
			return fmt.Errorf("check voucher status: %w", err)
		}
		if tradable != found {
			return fmt.Errorf("%w: trade references a voucher that is no longer tradable", domain.ErrStatusConflict)
		}

		var claimed bool
		err = tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM trades
			WHERE status IN ('pending', 'accepted')
			AND (initiator_voucher_id = ANY($1::uuid[]) OR recipient_voucher_id = ANY($1::uuid[])))`, ids).Scan(&claimed)
		if err != nil {
			return fmt.Errorf("check open trades: %w", err)
		}
		if claimed {
			return domain.ErrVoucherClaimed
		}

		query := `INSERT INTO trades (` + tradeColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
		_, err = tx.Exec(ctx, query,
			t.ID, t.InitiatorID, t.RecipientID, t.InitiatorVoucherID, t.RecipientVoucherID,
			t.Status, t.MatchScore, reasonString(t.CancelReason), t.CreatedAt, t.UpdatedAt, t.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
		return nil
	})
}

// GetByID fetches a trade by UUID.
func (r *TradeRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = $1`

	t, err := scanTrade(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTradeNotFound, id)
	}
	return t, err
}

// CompareAndSetStatus moves a trade from tr.From to tr.To and returns the new row.
func (r *TradeRepo) CompareAndSetStatus(ctx context.Context, tr domain.TradeTransition) (*domain.Trade, error) {
	if !tr.From.CanTransitionTo(tr.To) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, tr.From, tr.To)
	}

	query := `UPDATE trades SET status = $1, cancel_reason = COALESCE($2, cancel_reason),
		completed_at = COALESCE($3, completed_at), updated_at = $4
		WHERE id = $5 AND status = $6
		RETURNING ` + tradeColumns

	t, err := scanTrade(r.pool.QueryRow(ctx, query,
		tr.To, reasonString(tr.Reason), tr.CompletedAt, tr.At, tr.TradeID, tr.From))
	if !errors.Is(err, pgx.ErrNoRows) {
		return t, err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM trades WHERE id = $1)`, tr.TradeID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check trade exists: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrTradeNotFound, tr.TradeID)
	}
	return nil, fmt.Errorf("%w: trade %s is not %s", domain.ErrStatusConflict, tr.TradeID, tr.From)
}

// ListByUser returns trades where the user is either party, newest first.
func (r *TradeRepo) ListByUser(ctx context.Context, userID uuid.UUID, status *domain.TradeStatus) ([]domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE (initiator_id = $1 OR recipient_id = $1)`
	args := []any{userID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	return r.list(ctx, query, args...)
}

// ListStuckAccepted returns trades that have sat in accepted since before the cutoff.
func (r *TradeRepo) ListStuckAccepted(ctx context.Context, before time.Time, limit int) ([]domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades
		WHERE status = 'accepted' AND updated_at < $1
		ORDER BY updated_at LIMIT $2`

	return r.list(ctx, query, before, limit)
}

func (r *TradeRepo) list(ctx context.Context, query string, args ...any) ([]domain.Trade, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return trades, nil
}

func scanTrade(row pgx.Row) (*domain.Trade, error) {
	t := &domain.Trade{}
	var reason *string
	err := row.Scan(
		&t.ID, &t.InitiatorID, &t.RecipientID, &t.InitiatorVoucherID, &t.RecipientVoucherID,
		&t.Status, &t.MatchScore, &reason, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan trade: %w", err)
	}
	if reason != nil {
		cr := domain.CancelReason(*reason)
		t.CancelReason = &cr
	}
	return t, nil
}

func reasonString(r *domain.CancelReason) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}
