package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"arafims/backend/internal/domain"
	"arafims/backend/internal/store"
)

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetProductForUpdate(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(t.tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := t.tx.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (t *pgTx) UpdateProduct(ctx context.Context, product domain.Product) error {
	if product.Name == "" || product.Quantity < 0 {
		return store.ErrInvalidInput
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, cost_price = $4, quantity = $5, category_id = $6, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Price, product.CostPrice, product.Quantity, nullIfEmpty(product.CategoryID))
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return fmt.Errorf("category %s: %w", product.CategoryID, store.ErrNotFound)
		case isCheckViolation(err):
			return store.ErrInvalidInput
		}
		return err
	}
	return expectAffected(res)
}

func (t *pgTx) DeleteProduct(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (t *pgTx) ProductInUse(ctx context.Context, id string) (bool, error) {
	var inUse bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM order_items oi
			JOIN orders o ON o.id = oi.order_id
			WHERE oi.product_id = $1 AND o.status NOT IN ('complete', 'cancelled')
		) OR EXISTS (
			SELECT 1 FROM quick_shop_items qi
			JOIN quick_shops q ON q.id = qi.quick_shop_id
			WHERE qi.product_id = $1 AND q.status = 'open'
		)
	`, id).Scan(&inUse)
	return inUse, err
}

// Each stock movement is one UPDATE whose WHERE clause carries the guard, so
// the row lock and the check happen in the same statement.

func (t *pgTx) DecrementStock(ctx context.Context, productID string, qty int) error {
	return t.moveStock(ctx, productID, `
		UPDATE products SET quantity = quantity - $2, updated_at = now()
		WHERE id = $1 AND quantity - reserved >= $2
		RETURNING quantity
	`, qty)
}

func (t *pgTx) IncrementStock(ctx context.Context, productID string, qty int) error {
	return t.moveStock(ctx, productID, `
		UPDATE products SET quantity = quantity + $2, updated_at = now()
		WHERE id = $1
		RETURNING quantity
	`, qty)
}

func (t *pgTx) ReserveStock(ctx context.Context, productID string, qty int) error {
	return t.moveStock(ctx, productID, `
		UPDATE products SET reserved = reserved + $2, updated_at = now()
		WHERE id = $1 AND quantity - reserved >= $2
		RETURNING quantity
	`, qty)
}

func (t *pgTx) ReleaseStock(ctx context.Context, productID string, qty int) error {
	return t.moveStock(ctx, productID, `
		UPDATE products SET reserved = GREATEST(reserved - $2, 0), updated_at = now()
		WHERE id = $1
		RETURNING quantity
	`, qty)
}

func (t *pgTx) CommitStock(ctx context.Context, productID string, qty int) error {
	return t.moveStock(ctx, productID, `
		UPDATE products
		SET quantity = quantity - $2, reserved = GREATEST(reserved - $2, 0), updated_at = now()
		WHERE id = $1 AND quantity >= $2
		RETURNING quantity
	`, qty)
}

func (t *pgTx) moveStock(ctx context.Context, productID string, query string, qty int) error {
	var quantity int
	err := t.tx.QueryRowContext(ctx, query, productID, qty).Scan(&quantity)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	var exists bool
	if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrInsufficientStock
}

func (t *pgTx) OrderExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (t *pgTx) InsertOrder(ctx context.Context, order domain.Order) error {
	if order.ID == "" || len(order.Items) == 0 {
		return store.ErrInvalidInput
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, status, source, quick_shop_id, total_amount, cancellation_reason,
			access_token, token_expires_at, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		order.ID, string(order.Status), order.Source, nullIfEmpty(order.QuickShopID), order.TotalAmount,
		order.CancellationReason, nullIfEmpty(order.AccessToken), nullTime(order.TokenExpiresAt),
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}

	for i, item := range order.Items {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, line_no, product_id, product_name, quantity, unit_price, unit_cost)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, order.ID, i, nullIfEmpty(item.ProductID), item.ProductName, item.Quantity, item.UnitPrice, item.UnitCost)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	orders, err := queryOrders(ctx, t.tx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, store.ErrNotFound
	}
	return &orders[0], nil
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, reason string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2,
			cancellation_reason = CASE WHEN $3 = '' THEN cancellation_reason ELSE $3 END,
			updated_at = $4
		WHERE id = $1
	`, id, string(status), reason, at)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (t *pgTx) DeleteOrder(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (t *pgTx) InsertQuickShop(ctx context.Context, qs domain.QuickShop) error {
	if qs.ID == "" || len(qs.Items) == 0 {
		return store.ErrInvalidInput
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO quick_shops (id, name, status, final_sales, profit, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, qs.ID, qs.Name, qs.Status, qs.FinalSales, qs.Profit, qs.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}

	for i, item := range qs.Items {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO quick_shop_items (quick_shop_id, line_no, product_id, product_name, quantity, unit_price, unit_cost)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, qs.ID, i, nullIfEmpty(item.ProductID), item.ProductName, item.Quantity, item.UnitPrice, item.UnitCost)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) GetQuickShopForUpdate(ctx context.Context, id string) (*domain.QuickShop, error) {
	shops, err := queryQuickShops(ctx, t.tx, `SELECT `+quickShopColumns+` FROM quick_shops WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}
	if len(shops) == 0 {
		return nil, store.ErrNotFound
	}
	return &shops[0], nil
}

// CloseQuickShop writes the closing figures. Items are matched by position,
// so qs.Items must keep the order it was read in.
func (t *pgTx) CloseQuickShop(ctx context.Context, qs domain.QuickShop) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE quick_shops
		SET status = $2, final_sales = $3, profit = $4, order_id = $5, closed_at = $6
		WHERE id = $1 AND status = 'open'
	`, qs.ID, qs.Status, qs.FinalSales, qs.Profit, nullIfEmpty(qs.OrderID), nullTime(qs.ClosedAt))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrConflict
	}

	for i, item := range qs.Items {
		_, err := t.tx.ExecContext(ctx, `
			UPDATE quick_shop_items SET returned = $3, sold = $4
			WHERE quick_shop_id = $1 AND line_no = $2
		`, qs.ID, i, item.Returned, item.Sold)
		if err != nil {
			return err
		}
	}
	return nil
}
