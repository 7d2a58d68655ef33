package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arafims/backend/internal/domain"
	"arafims/backend/internal/ledger"
	"arafims/backend/internal/store"
	"arafims/backend/internal/store/memory"
)

func seed(t *testing.T, s *memory.Store, id string, qty int) {
	t.Helper()
	_, err := s.CreateProduct(context.Background(), domain.Product{ID: id, Name: id, Quantity: qty})
	require.NoError(t, err)
}

func quantity(t *testing.T, s *memory.Store, id string) (int, int) {
	t.Helper()
	p, err := s.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Quantity, p.Reserved
}

func TestDecrementLeavesStockWhenShort(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seed(t, s, "a", 2)
	l := ledger.New(nil)

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return l.Decrement(ctx, tx, "a", 3)
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	qty, _ := quantity(t, s, "a")
	assert.Equal(t, 2, qty)
}

func TestRejectsNonPositiveQuantity(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seed(t, s, "a", 2)
	l := ledger.New(nil)

	for _, n := range []int{0, -1} {
		err := s.WithinTx(ctx, func(tx store.Tx) error {
			return l.Increment(ctx, tx, "a", n)
		})
		assert.ErrorIs(t, err, store.ErrInvalidInput)
	}
}

func TestReserveReleaseCommitCycle(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seed(t, s, "a", 10)
	l := ledger.New(nil)

	require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error {
		return l.Reserve(ctx, tx, "a", 4)
	}))
	qty, reserved := quantity(t, s, "a")
	assert.Equal(t, 10, qty)
	assert.Equal(t, 4, reserved)

	require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error {
		return l.Release(ctx, tx, "a", 1)
	}))
	require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error {
		return l.Commit(ctx, tx, "a", 3)
	}))
	qty, reserved = quantity(t, s, "a")
	assert.Equal(t, 7, qty)
	assert.Equal(t, 0, reserved)
}

func TestLinesAreAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seed(t, s, "a", 5)
	seed(t, s, "b", 1)
	l := ledger.New(nil)

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return l.DecrementLines(ctx, tx, []ledger.Line{
			{ProductID: "b", Qty: 2},
			{ProductID: "a", Qty: 3},
		})
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	a, _ := quantity(t, s, "a")
	b, _ := quantity(t, s, "b")
	assert.Equal(t, 5, a)
	assert.Equal(t, 1, b)

	require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error {
		return l.IncrementLines(ctx, tx, []ledger.Line{{ProductID: "a", Qty: 1}, {ProductID: "b", Qty: 4}})
	}))
	a, _ = quantity(t, s, "a")
	b, _ = quantity(t, s, "b")
	assert.Equal(t, 6, a)
	assert.Equal(t, 5, b)
}
