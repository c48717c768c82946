package postgres

import (
	"context"
	"fmt"
	"time"

	"voucher-trade-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const matchEventColumns = `id, wishlist_item_id, user_id, voucher_id, score, price_snapshot,
	dedup_key, delivered_at, created_at`

// MatchEventRepo implements ports.MatchEventRepository.
type MatchEventRepo struct {
	pool Pool
}

// NewMatchEventRepo creates a new MatchEventRepo.
func NewMatchEventRepo(pool Pool) *MatchEventRepo {
	return &MatchEventRepo{pool: pool}
}

// Record inserts the event unless its dedup key is already stored. On a
// duplicate the stored row is read back into e.
func (r *MatchEventRepo) Record(ctx context.Context, e *domain.MatchEvent) (bool, error) {
	query := `INSERT INTO match_events (` + matchEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (dedup_key) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		e.ID, e.WishlistItemID, e.UserID, e.VoucherID, e.Score, e.PriceSnapshot,
		e.DedupKey, e.DeliveredAt, e.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert match event: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	stored, err := scanMatchEvent(r.pool.QueryRow(ctx,
		`SELECT `+matchEventColumns+` FROM match_events WHERE dedup_key = $1`, e.DedupKey))
	if err != nil {
		return false, fmt.Errorf("load recorded match event: %w", err)
	}
	*e = *stored
	return false, nil
}

// ListByUser returns the user's match events, newest first.
func (r *MatchEventRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.MatchEvent, error) {
	query := `SELECT ` + matchEventColumns + ` FROM match_events
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	return r.list(ctx, query, userID, limit)
}

// ListUndelivered returns undelivered events created since the cutoff, oldest first.
func (r *MatchEventRepo) ListUndelivered(ctx context.Context, since time.Time, limit int) ([]domain.MatchEvent, error) {
	query := `SELECT ` + matchEventColumns + ` FROM match_events
		WHERE delivered_at IS NULL AND created_at >= $1
		ORDER BY created_at ASC LIMIT $2`

	return r.list(ctx, query, since, limit)
}

// MarkDelivered stamps delivered_at once; later calls are no-ops.
func (r *MatchEventRepo) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE match_events SET delivered_at = $1 WHERE id = $2 AND delivered_at IS NULL`, at, id)
	if err != nil {
		return fmt.Errorf("mark match event delivered: %w", err)
	}
	return nil
}

func (r *MatchEventRepo) list(ctx context.Context, query string, args ...any) ([]domain.MatchEvent, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list match events: %w", err)
	}
	defer rows.Close()

	var events []domain.MatchEvent
	for rows.Next() {
		e, err := scanMatchEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate match event rows: %w", err)
	}
	return events, nil
}

func scanMatchEvent(row pgx.Row) (*domain.MatchEvent, error) {
	var e domain.MatchEvent
	err := row.Scan(
		&e.ID, &e.WishlistItemID, &e.UserID, &e.VoucherID, &e.Score, &e.PriceSnapshot,
		&e.DedupKey, &e.DeliveredAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan match event: %w", err)
	}
	return &e, nil
}
