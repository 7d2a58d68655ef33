package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arafims/backend/internal/domain"
	"arafims/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("ARAFIMS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set ARAFIMS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestReserveAndCancelKeepsOnHandQuantity(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-it-%d", stamp)
	orderID := fmt.Sprintf("it_order_%d", stamp)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	_, err := s.CreateProduct(ctx, domain.Product{
		ID:        productID,
		Name:      "Integration Zobo",
		Price:     decimal.RequireFromString("500"),
		CostPrice: decimal.RequireFromString("300"),
		Quantity:  10,
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	expires := now.Add(time.Hour)
	err = s.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.ReserveStock(ctx, productID, 4); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, domain.Order{
			ID:             orderID,
			Status:         domain.OrderStatusAwaitingPayment,
			Source:         domain.OrderSourceStorefront,
			TotalAmount:    decimal.RequireFromString("2000"),
			AccessToken:    orderID + "-token",
			TokenExpiresAt: &expires,
			CreatedAt:      now,
			UpdatedAt:      now,
			Items: []domain.OrderItem{{
				ProductID:   productID,
				ProductName: "Integration Zobo",
				Quantity:    4,
				UnitPrice:   decimal.RequireFromString("500"),
				UnitCost:    decimal.RequireFromString("300"),
			}},
		})
	})
	require.NoError(t, err)

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.ReserveStock(ctx, productID, 7)
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.ReleaseStock(ctx, productID, 4); err != nil {
			return err
		}
		return tx.UpdateOrderStatus(ctx, orderID, domain.OrderStatusCancelled, "integration cancel", time.Now().UTC())
	})
	require.NoError(t, err)

	product, err := s.GetProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 10, product.Quantity)
	assert.Equal(t, 0, product.Reserved)

	order, err := s.FindOrderByToken(ctx, orderID+"-token")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, order.Status)
	assert.Equal(t, "integration cancel", order.CancellationReason)
	require.Len(t, order.Items, 1)
	assert.True(t, order.Items[0].UnitPrice.Equal(decimal.RequireFromString("500")))
}

func TestFailedTransactionRollsBack(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	productID := fmt.Sprintf("prod-it-rb-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})
	_, err := s.CreateProduct(ctx, domain.Product{
		ID:       productID,
		Name:     "Rollback Kunu",
		Price:    decimal.RequireFromString("450"),
		Quantity: 3,
	})
	require.NoError(t, err)

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.DecrementStock(ctx, productID, 2); err != nil {
			return err
		}
		return tx.DecrementStock(ctx, productID, 2)
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	product, err := s.GetProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 3, product.Quantity)
}
