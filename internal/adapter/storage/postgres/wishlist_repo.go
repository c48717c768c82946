package postgres

import (
	"context"
	"errors"
	"fmt"

	"voucher-trade-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const wishlistColumns = `id, user_id, brand_name, category, max_price, notify, created_at`

// WishlistRepo implements ports.WishlistRepository.
type WishlistRepo struct {
	pool Pool
}

// NewWishlistRepo creates a new WishlistRepo.
func NewWishlistRepo(pool Pool) *WishlistRepo {
	return &WishlistRepo{pool: pool}
}

func (r *WishlistRepo) Create(ctx context.Context, w *domain.WishlistItem) error {
	query := `INSERT INTO wishlists (` + wishlistColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query, w.ID, w.UserID, w.BrandName, w.Category, w.MaxPrice, w.Notify, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert wishlist item: %w", err)
	}
	return nil
}

func (r *WishlistRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WishlistItem, error) {
	query := `SELECT ` + wishlistColumns + ` FROM wishlists WHERE id = $1`
	return r.one(r.pool.QueryRow(ctx, query, id), id)
}

func (r *WishlistRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.WishlistItem, error) {
	query := `SELECT ` + wishlistColumns + ` FROM wishlists WHERE user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

// ListByBrand uses the lower(brand_name), lower(category) index.
func (r *WishlistRepo) ListByBrand(ctx context.Context, brand string) ([]domain.WishlistItem, error) {
	query := `SELECT ` + wishlistColumns + ` FROM wishlists WHERE lower(brand_name) = lower($1)`
	return r.list(ctx, query, brand)
}

func (r *WishlistRepo) SetNotify(ctx context.Context, id uuid.UUID, notify bool) (*domain.WishlistItem, error) {
	query := `UPDATE wishlists SET notify = $1 WHERE id = $2 RETURNING ` + wishlistColumns
	return r.one(r.pool.QueryRow(ctx, query, notify, id), id)
}

func (r *WishlistRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM wishlists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete wishlist item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrWishlistItemNotFound, id)
	}
	return nil
}

func (r *WishlistRepo) one(row pgx.Row, id uuid.UUID) (*domain.WishlistItem, error) {
	w, err := scanWishlistItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrWishlistItemNotFound, id)
	}
	return w, err
}

func (r *WishlistRepo) list(ctx context.Context, query string, args ...any) ([]domain.WishlistItem, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list wishlist items: %w", err)
	}
	defer rows.Close()

	var items []domain.WishlistItem
	for rows.Next() {
		w, err := scanWishlistItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wishlist rows: %w", err)
	}
	return items, nil
}

func scanWishlistItem(row pgx.Row) (*domain.WishlistItem, error) {
	w := &domain.WishlistItem{}
	err := row.Scan(&w.ID, &w.UserID, &w.BrandName, &w.Category, &w.MaxPrice, &w.Notify, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan wishlist item: %w", err)
	}
	return w, nil
}
