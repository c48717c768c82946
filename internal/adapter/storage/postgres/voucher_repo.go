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

const voucherColumns = `id, seller_id, brand_name, category, original_value, selling_price,
	discount_percentage, expiry_date, status, is_verified, views, created_at, updated_at`

// VoucherRepo implements ports.InventoryStore.
type VoucherRepo struct {
	pool Pool
}

// NewVoucherRepo creates a new VoucherRepo.
func NewVoucherRepo(pool Pool) *VoucherRepo {
	return &VoucherRepo{pool: pool}
}

// Create inserts a new voucher.
func (r *VoucherRepo) Create(ctx context.Context, v *domain.Voucher) error {
	query := `INSERT INTO vouchers (` + voucherColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.pool.Exec(ctx, query,
		v.ID, v.SellerID, v.BrandName, v.Category, v.OriginalValue, v.SellingPrice,
		v.DiscountPercentage, v.ExpiryDate, v.Status, v.IsVerified, v.Views, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert voucher: %w", err)
	}
	return nil
}

// GetVoucher fetches a voucher by UUID.
func (r *VoucherRepo) GetVoucher(ctx context.Context, id uuid.UUID) (*domain.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE id = $1`

	v, err := scanVoucher(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrVoucherNotFound, id)
	}
	return v, err
}

// ListActiveByCategory returns tradable vouchers in a category, newest first.
func (r *VoucherRepo) ListActiveByCategory(ctx context.Context, category string, asOf time.Time) ([]domain.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers
		WHERE lower(category) = lower($1) AND status IN ('verified', 'active') AND expiry_date >= $2
		ORDER BY created_at DESC`

	return r.list(ctx, query, category, asOf)
}

// ListAvailable returns tradable vouchers, optionally for one brand.
func (r *VoucherRepo) ListAvailable(ctx context.Context, brand string, asOf time.Time, limit int) ([]domain.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers
		WHERE ($1 = '' OR lower(brand_name) = lower($1)) AND status IN ('verified', 'active') AND expiry_date >= $2
		ORDER BY created_at DESC LIMIT $3`

	return r.list(ctx, query, brand, asOf, limit)
}

// ListExpired returns tradable vouchers whose expiry date has passed.
func (r *VoucherRepo) ListExpired(ctx context.Context, asOf time.Time, limit int) ([]domain.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers
		WHERE status IN ('verified', 'active') AND expiry_date < $1
		ORDER BY expiry_date LIMIT $2`

	return r.list(ctx, query, asOf, limit)
}

// ListExpiring returns tradable vouchers expiring in [from, to).
func (r *VoucherRepo) ListExpiring(ctx context.Context, from, to time.Time) ([]domain.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers
		WHERE status IN ('verified', 'active') AND expiry_date >= $1 AND expiry_date < $2
		ORDER BY expiry_date`

	return r.list(ctx, query, from, to)
}

// CompareAndSetStatus moves one voucher from expected to next.
func (r *VoucherRepo) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next domain.VoucherStatus) error {
	return casVoucherStatus(ctx, r.pool, domain.StatusChange{VoucherID: id, From: expected, To: next})
}

// CompareAndSetStatuses applies all changes in one transaction. The affected
// rows are locked up front in id order.
func (r *VoucherRepo) CompareAndSetStatuses(ctx context.Context, changes []domain.StatusChange) error {
	if len(changes) == 0 {
		return nil
	}
	for _, c := range changes {
		if !c.From.CanTransitionTo(c.To) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, c.From, c.To)
		}
	}

	ids := make([]uuid.UUID, 0, len(changes))
	for _, c := range changes {
		ids = append(ids, c.VoucherID)
	}
	locked := sortedIDs(ids...)

	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		found, err := lockVouchers(ctx, tx, locked)
		if err != nil {
			return err
		}
		if found != int64(len(locked)) {
			return fmt.Errorf("%w: batch references a missing voucher", domain.ErrVoucherNotFound)
		}
		for _, c := range changes {
			if err := casVoucherStatus(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdatePrice changes the selling price of a non-terminal voucher.
func (r *VoucherRepo) UpdatePrice(ctx context.Context, id uuid.UUID, price int64, discount float64) (*domain.Voucher, error) {
	query := `UPDATE vouchers SET selling_price = $1, discount_percentage = $2, updated_at = now()
		WHERE id = $3 AND status IN ('pending_verification', 'verified', 'active')
		RETURNING ` + voucherColumns

	v, err := scanVoucher(r.pool.QueryRow(ctx, query, price, discount, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, missingOrConflict(ctx, r.pool, id)
	}
	return v, err
}

// IncrementViews bumps the view counter.
func (r *VoucherRepo) IncrementViews(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE vouchers SET views = views + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrVoucherNotFound, id)
	}
	return nil
}

func (r *VoucherRepo) list(ctx context.Context, query string, args ...any) ([]domain.Voucher, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []domain.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		vouchers = append(vouchers, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate voucher rows: %w", err)
	}
	return vouchers, nil
}

// casVoucherStatus is the single-row compare-and-set shared by the pool and
// transaction paths. Reaching verified also sets is_verified.
func casVoucherStatus(ctx context.Context, q querier, c domain.StatusChange) error {
	if !c.From.CanTransitionTo(c.To) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, c.From, c.To)
	}

	query := `UPDATE vouchers SET status = $1, is_verified = (is_verified OR $2), updated_at = now()
		WHERE id = $3 AND status = $4`

	tag, err := q.Exec(ctx, query, c.To, c.To == domain.VoucherStatusVerified, c.VoucherID, c.From)
	if err != nil {
		return fmt.Errorf("update voucher status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOrConflict(ctx, q, c.VoucherID)
	}
	return nil
}

// missingOrConflict tells a missing voucher apart from one in another status.
func missingOrConflict(ctx context.Context, q querier, id uuid.UUID) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM vouchers WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check voucher exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrVoucherNotFound, id)
	}
	return fmt.Errorf("%w: voucher %s", domain.ErrStatusConflict, id)
}

func scanVoucher(row pgx.Row) (*domain.Voucher, error) {
	v := &domain.Voucher{}
	err := row.Scan(
		&v.ID, &v.SellerID, &v.BrandName, &v.Category, &v.OriginalValue, &v.SellingPrice,
		&v.DiscountPercentage, &v.ExpiryDate, &v.Status, &v.IsVerified, &v.Views, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan voucher: %w", err)
	}
	return v, nil
}
