// Package ledger moves stock between available, reserved and sold. Every
// call takes the caller's store.Tx so a stock movement commits or rolls back
// together with the write it belongs to.
package ledger

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"arafims/backend/internal/store"
)

// Line is a quantity of one product.
type Line struct {
	ProductID string
	Qty       int
}

type Ledger struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{logger: logger.Named("ledger")}
}

// Decrement removes qty from on-hand stock. It fails with
// store.ErrInsufficientStock, leaving the quantity untouched, when fewer than
// qty units are available.
func (l *Ledger) Decrement(ctx context.Context, tx store.Tx, productID string, qty int) error {
	return l.apply(ctx, "decrement", tx.DecrementStock, productID, qty)
}

// Increment returns qty units to on-hand stock. There is no upper bound.
func (l *Ledger) Increment(ctx context.Context, tx store.Tx, productID string, qty int) error {
	return l.apply(ctx, "increment", tx.IncrementStock, productID, qty)
}

// Reserve promises qty available units to an order without removing them
// from the shelf.
func (l *Ledger) Reserve(ctx context.Context, tx store.Tx, productID string, qty int) error {
	return l.apply(ctx, "reserve", tx.ReserveStock, productID, qty)
}

// Release gives a reservation back to available stock.
func (l *Ledger) Release(ctx context.Context, tx store.Tx, productID string, qty int) error {
	return l.apply(ctx, "release", tx.ReleaseStock, productID, qty)
}

// Commit turns a reservation into a sale: on-hand and reserved both drop by qty.
func (l *Ledger) Commit(ctx context.Context, tx store.Tx, productID string, qty int) error {
	return l.apply(ctx, "commit", tx.CommitStock, productID, qty)
}

func (l *Ledger) DecrementLines(ctx context.Context, tx store.Tx, lines []Line) error {
	return l.applyLines(ctx, tx, lines, l.Decrement)
}

func (l *Ledger) IncrementLines(ctx context.Context, tx store.Tx, lines []Line) error {
	return l.applyLines(ctx, tx, lines, l.Increment)
}

func (l *Ledger) ReserveLines(ctx context.Context, tx store.Tx, lines []Line) error {
	return l.applyLines(ctx, tx, lines, l.Reserve)
}

func (l *Ledger) ReleaseLines(ctx context.Context, tx store.Tx, lines []Line) error {
	return l.applyLines(ctx, tx, lines, l.Release)
}

func (l *Ledger) CommitLines(ctx context.Context, tx store.Tx, lines []Line) error {
	return l.applyLines(ctx, tx, lines, l.Commit)
}

// applyLines touches products in id order so two transactions locking the
// same rows always lock them in the same sequence.
func (l *Ledger) applyLines(
	ctx context.Context,
	tx store.Tx,
	lines []Line,
	op func(context.Context, store.Tx, string, int) error,
) error {
	sorted := make([]Line, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ProductID < sorted[j].ProductID
	})
	for _, line := range sorted {
		if err := op(ctx, tx, line.ProductID, line.Qty); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) apply(
	ctx context.Context,
	action string,
	move func(context.Context, string, int) error,
	productID string,
	qty int,
) error {
	if productID == "" || qty < 1 {
		return fmt.Errorf("%s product %q qty %d: %w", action, productID, qty, store.ErrInvalidInput)
	}
	if err := move(ctx, productID, qty); err != nil {
		return fmt.Errorf("%s product %s qty %d: %w", action, productID, qty, err)
	}
	l.logger.Debug("stock moved",
		zap.String("action", action),
		zap.String("product_id", productID),
		zap.Int("qty", qty),
	)
	return nil
}
