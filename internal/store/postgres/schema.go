package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS categories_name_lower_idx ON categories (lower(name))`,
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price NUMERIC(12,2) NOT NULL CHECK (price > 0),
		cost_price NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (cost_price >= 0),
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		reserved INTEGER NOT NULL DEFAULT 0 CHECK (reserved >= 0),
		category_id TEXT REFERENCES categories(id) ON DELETE SET NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'storefront',
		quick_shop_id TEXT,
		total_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
		cancellation_reason TEXT NOT NULL DEFAULT '',
		access_token TEXT UNIQUE,
		token_expires_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS orders_status_idx ON orders (status, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		line_no INTEGER NOT NULL,
		product_id TEXT REFERENCES products(id) ON DELETE SET NULL,
		product_name TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC(12,2) NOT NULL,
		unit_cost NUMERIC(12,2) NOT NULL DEFAULT 0,
		PRIMARY KEY (order_id, line_no)
	)`,
	`CREATE INDEX IF NOT EXISTS order_items_product_idx ON order_items (product_id)`,
	`CREATE TABLE IF NOT EXISTS quick_shops (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		final_sales NUMERIC(12,2) NOT NULL DEFAULT 0,
		profit NUMERIC(12,2) NOT NULL DEFAULT 0,
		order_id TEXT REFERENCES orders(id) ON DELETE SET NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		closed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS quick_shop_items (
		quick_shop_id TEXT NOT NULL REFERENCES quick_shops(id) ON DELETE CASCADE,
		line_no INTEGER NOT NULL,
		product_id TEXT REFERENCES products(id) ON DELETE SET NULL,
		product_name TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC(12,2) NOT NULL,
		unit_cost NUMERIC(12,2) NOT NULL DEFAULT 0,
		returned INTEGER NOT NULL DEFAULT 0 CHECK (returned >= 0),
		sold INTEGER NOT NULL DEFAULT 0 CHECK (sold >= 0),
		PRIMARY KEY (quick_shop_id, line_no)
	)`,
	`CREATE TABLE IF NOT EXISTS app_users (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		role TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates any missing tables and indexes. Every statement is
// idempotent so it is safe to run on each start.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	s.logger.Info("schema ready", zap.Int("statements", len(schema)))
	return nil
}
