package postgres

import (
	"context"
	"testing"
	"time"

	"voucher-trade-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func newTestWishlistItem() *domain.WishlistItem {
	return &domain.WishlistItem{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		BrandName: "Starbucks",
		Category:  "Food",
		MaxPrice:  int64Ptr(2500),
		Notify:    true,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func wishlistRows(items ...*domain.WishlistItem) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"id", "user_id", "brand_name", "category", "max_price", "notify", "created_at"})
	for _, w := range items {
		rows.AddRow(w.ID, w.UserID, w.BrandName, w.Category, w.MaxPrice, w.Notify, w.CreatedAt)
	}
	return rows
}

func TestWishlistRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWishlistRepo(mock)
	w := newTestWishlistItem()

	mock.ExpectExec("INSERT INTO wishlists").
		WithArgs(w.ID, w.UserID, w.BrandName, w.Category, w.MaxPrice, w.Notify, w.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), w))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWishlistRepo_ListByBrand(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWishlistRepo(mock)
	w := newTestWishlistItem()

	mock.ExpectQuery("SELECT .+ FROM wishlists WHERE lower\\(brand_name\\)").
		WithArgs("starbucks").
		WillReturnRows(wishlistRows(w))

	got, err := repo.ListByBrand(context.Background(), "starbucks")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].MaxPrice)
	assert.Equal(t, int64(2500), *got[0].MaxPrice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWishlistRepo_SetNotify(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWishlistRepo(mock)
	w := newTestWishlistItem()
	w.Notify = false

	mock.ExpectQuery("UPDATE wishlists SET notify").
		WithArgs(false, w.ID).
		WillReturnRows(wishlistRows(w))

	got, err := repo.SetNotify(context.Background(), w.ID, false)
	require.NoError(t, err)
	assert.False(t, got.Notify)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWishlistRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWishlistRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM wishlists WHERE id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(wishlistRows())

	_, err = repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrWishlistItemNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWishlistRepo_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWishlistRepo(mock)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM wishlists").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM wishlists").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.Delete(context.Background(), id))
	assert.ErrorIs(t, repo.Delete(context.Background(), id), domain.ErrWishlistItemNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
