package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arafims/backend/internal/domain"
	"arafims/backend/internal/store"
)

func newProduct(t *testing.T, s *Store, qty int) *domain.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), domain.Product{
		Name:      "Zobo",
		Price:     decimal.RequireFromString("500"),
		CostPrice: decimal.RequireFromString("300"),
		Quantity:  qty,
	})
	require.NoError(t, err)
	return p
}

func TestWithinTxDiscardsWorkOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := newProduct(t, s, 5)

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.DecrementStock(ctx, p.ID, 3))
		require.NoError(t, tx.InsertOrder(ctx, domain.Order{
			ID:    "calm_red_101",
			Items: []domain.OrderItem{{ProductID: p.ID, Quantity: 1}},
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity)
	_, err = s.GetOrder(ctx, "calm_red_101")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithinTxCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := newProduct(t, s, 5)

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.ReserveStock(ctx, p.ID, 2); err != nil {
			return err
		}
		return tx.CommitStock(ctx, p.ID, 2)
	})
	require.NoError(t, err)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Quantity)
	assert.Equal(t, 0, got.Reserved)
}

func TestConditionalStockMovesRespectReservations(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := newProduct(t, s, 4)

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.ReserveStock(ctx, p.ID, 3))
		assert.ErrorIs(t, tx.ReserveStock(ctx, p.ID, 2), store.ErrInsufficientStock)
		assert.ErrorIs(t, tx.DecrementStock(ctx, p.ID, 2), store.ErrInsufficientStock)
		assert.ErrorIs(t, tx.DecrementStock(ctx, "missing", 1), store.ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Quantity)
	assert.Equal(t, 3, got.Reserved)
	assert.Equal(t, 1, got.Available())
}

func TestTokenLookups(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := newProduct(t, s, 5)
	expires := time.Now().Add(time.Hour).UTC()

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		for i, id := range []string{"calm_red_101", "bold_blue_202"} {
			created := time.Now().Add(time.Duration(i) * time.Minute).UTC()
			if err := tx.InsertOrder(ctx, domain.Order{
				ID:             id,
				Status:         domain.OrderStatusAwaitingPayment,
				AccessToken:    "tok-" + id,
				TokenExpiresAt: &expires,
				CreatedAt:      created,
				Items:          []domain.OrderItem{{ProductID: p.ID, Quantity: 1}},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	order, err := s.FindOrderByToken(ctx, "tok-calm_red_101")
	require.NoError(t, err)
	assert.Equal(t, "calm_red_101", order.ID)

	at, err := s.TokenExpiry(ctx, "tok-bold_blue_202")
	require.NoError(t, err)
	assert.True(t, at.Equal(expires))

	orders, err := s.FindOrdersByTokens(ctx, []string{"tok-calm_red_101", "nope", "tok-bold_blue_202", "tok-calm_red_101"})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "bold_blue_202", orders[0].ID)

	_, err = s.FindOrderByToken(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProductInUseTracksOpenWork(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := newProduct(t, s, 5)

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.InsertQuickShop(ctx, domain.QuickShop{
			ID:     "qs-1",
			Status: domain.QuickShopStatusOpen,
			Items:  []domain.QuickShopItem{{ProductID: p.ID, Quantity: 1}},
		})
	})
	require.NoError(t, err)

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		inUse, err := tx.ProductInUse(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, inUse)

		qs, err := tx.GetQuickShopForUpdate(ctx, "qs-1")
		require.NoError(t, err)
		qs.Status = domain.QuickShopStatusClosed
		require.NoError(t, tx.CloseQuickShop(ctx, *qs))

		inUse, err = tx.ProductInUse(ctx, p.ID)
		require.NoError(t, err)
		assert.False(t, inUse)
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteCategoryUnlinksProducts(t *testing.T) {
	ctx := context.Background()
	s := New()
	cat, err := s.CreateCategory(ctx, domain.Category{Name: "Drinks"})
	require.NoError(t, err)
	_, err = s.CreateCategory(ctx, domain.Category{Name: "drinks"})
	assert.ErrorIs(t, err, store.ErrConflict)

	p, err := s.CreateProduct(ctx, domain.Product{Name: "Kunu", Quantity: 1, CategoryID: cat.ID})
	require.NoError(t, err)

	require.NoError(t, s.DeleteCategory(ctx, cat.ID))
	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.CategoryID)
}

func TestSeededStoreHasAdmin(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "seed-password-1")
	s := NewSeeded(nil)

	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, domain.RoleAdmin, users[0].Role)
	assert.NotEqual(t, "seed-password-1", users[0].Password)

	products, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, products)
}
