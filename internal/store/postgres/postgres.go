package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"arafims/backend/internal/domain"
	"arafims/backend/internal/store"
	"arafims/backend/internal/xid"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func New(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger.Named("postgres-store")}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithinTx runs fn in one database transaction. The transaction commits only
// when fn returns nil; every other path rolls back.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

const productColumns = `id, name, price, cost_price, quantity, reserved, category_id, created_at, updated_at`

func scanProduct(row interface{ Scan(dest ...any) error }) (domain.Product, error) {
	var p domain.Product
	var categoryID sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.CostPrice, &p.Quantity, &p.Reserved, &categoryID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	p.CategoryID = categoryID.String
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY lower(name), id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}

	created, err := scanProduct(s.db.QueryRowContext(ctx, `
		INSERT INTO products (id, name, price, cost_price, quantity, reserved, category_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,0,$6,now(),now())
		RETURNING `+productColumns,
		product.ID, product.Name, product.Price, product.CostPrice, product.Quantity, nullIfEmpty(product.CategoryID),
	))
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return nil, store.ErrConflict
		case isForeignKeyViolation(err):
			return nil, fmt.Errorf("category %s: %w", product.CategoryID, store.ErrNotFound)
		case isCheckViolation(err):
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	return &created, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM categories ORDER BY lower(name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	var c domain.Category
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM categories WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, created_at) VALUES ($1,$2,$3)
	`, category.ID, category.Name, category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := category
	return &created, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

const orderColumns = `id, status, source, quick_shop_id, total_amount, cancellation_reason, access_token, token_expires_at, created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var status string
	var quickShopID, accessToken sql.NullString
	var expiresAt sql.NullTime
	if err := row.Scan(&o.ID, &status, &o.Source, &quickShopID, &o.TotalAmount, &o.CancellationReason, &accessToken, &expiresAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	o.QuickShopID = quickShopID.String
	o.AccessToken = accessToken.String
	if expiresAt.Valid {
		at := expiresAt.Time.UTC()
		o.TokenExpiresAt = &at
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

// queryOrders runs an order query and attaches the items of every returned
// order with a single follow-up query.
func queryOrders(ctx context.Context, q querier, query string, args ...any) ([]domain.Order, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, 16)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(orders) == 0 {
		return orders, nil
	}
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := loadOrderItems(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func loadOrderItems(ctx context.Context, q querier, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, quantity, unit_price, unit_cost
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, line_no
	`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var orderID string
		var productID sql.NullString
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &productID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.UnitCost); err != nil {
			return nil, err
		}
		item.ProductID = productID.String
		items[orderID] = append(items[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListOrders(ctx context.Context, filter store.OrderFilter) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	args := make([]any, 0, 2)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return queryOrders(ctx, s.db, query, args...)
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.getOrder(ctx, s.db, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (s *Store) FindOrderByToken(ctx context.Context, token string) (*domain.Order, error) {
	if token == "" {
		return nil, store.ErrNotFound
	}
	return s.getOrder(ctx, s.db, `SELECT `+orderColumns+` FROM orders WHERE access_token = $1`, token)
}

func (s *Store) getOrder(ctx context.Context, q querier, query string, arg string) (*domain.Order, error) {
	orders, err := queryOrders(ctx, q, query, arg)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, store.ErrNotFound
	}
	return &orders[0], nil
}

func (s *Store) FindOrdersByTokens(ctx context.Context, tokens []string) ([]domain.Order, error) {
	if len(tokens) == 0 {
		return []domain.Order{}, nil
	}
	return queryOrders(ctx, s.db, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE access_token = ANY($1)
		ORDER BY created_at DESC, id
	`, tokens)
}

func (s *Store) TokenExpiry(ctx context.Context, token string) (time.Time, error) {
	var expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT token_expires_at FROM orders WHERE access_token = $1`, token).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, store.ErrNotFound
		}
		return time.Time{}, err
	}
	if !expiresAt.Valid {
		return time.Time{}, store.ErrNotFound
	}
	return expiresAt.Time.UTC(), nil
}

const quickShopColumns = `id, name, status, final_sales, profit, order_id, created_at, closed_at`

func scanQuickShop(row interface{ Scan(dest ...any) error }) (domain.QuickShop, error) {
	var qs domain.QuickShop
	var orderID sql.NullString
	var closedAt sql.NullTime
	if err := row.Scan(&qs.ID, &qs.Name, &qs.Status, &qs.FinalSales, &qs.Profit, &orderID, &qs.CreatedAt, &closedAt); err != nil {
		return domain.QuickShop{}, err
	}
	qs.OrderID = orderID.String
	qs.CreatedAt = qs.CreatedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		qs.ClosedAt = &at
	}
	return qs, nil
}

func queryQuickShops(ctx context.Context, q querier, query string, args ...any) ([]domain.QuickShop, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	shops := make([]domain.QuickShop, 0, 8)
	for rows.Next() {
		qs, err := scanQuickShop(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		shops = append(shops, qs)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(shops) == 0 {
		return shops, nil
	}
	ids := make([]string, len(shops))
	for i, qs := range shops {
		ids[i] = qs.ID
	}

	itemRows, err := q.QueryContext(ctx, `
		SELECT quick_shop_id, product_id, product_name, quantity, unit_price, unit_cost, returned, sold
		FROM quick_shop_items
		WHERE quick_shop_id = ANY($1)
		ORDER BY quick_shop_id, line_no
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	items := make(map[string][]domain.QuickShopItem, len(ids))
	for itemRows.Next() {
		var shopID string
		var productID sql.NullString
		var item domain.QuickShopItem
		if err := itemRows.Scan(&shopID, &productID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.UnitCost, &item.Returned, &item.Sold); err != nil {
			return nil, err
		}
		item.ProductID = productID.String
		items[shopID] = append(items[shopID], item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	for i := range shops {
		shops[i].Items = items[shops[i].ID]
	}
	return shops, nil
}

func (s *Store) ListQuickShops(ctx context.Context) ([]domain.QuickShop, error) {
	return queryQuickShops(ctx, s.db, `SELECT `+quickShopColumns+` FROM quick_shops ORDER BY created_at DESC, id`)
}

func (s *Store) GetQuickShop(ctx context.Context, id string) (*domain.QuickShop, error) {
	shops, err := queryQuickShops(ctx, s.db, `SELECT `+quickShopColumns+` FROM quick_shops WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(shops) == 0 {
		return nil, store.ErrNotFound
	}
	return &shops[0], nil
}

func (s *Store) GetDashboard(ctx context.Context, lowStockThreshold int) (domain.Dashboard, error) {
	var dash domain.Dashboard
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM products),
			(SELECT count(*) FROM products WHERE quantity - reserved <= $1),
			(SELECT count(*) FROM orders WHERE status NOT IN ('complete', 'cancelled')),
			(SELECT count(*) FROM orders WHERE status = 'complete'),
			(SELECT count(*) FROM quick_shops WHERE status = 'open')
	`, lowStockThreshold).Scan(&dash.TotalProducts, &dash.LowStock, &dash.ActiveOrders, &dash.CompletedOrders, &dash.OpenQuickShops)
	if err != nil {
		return domain.Dashboard{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(oi.unit_price * oi.quantity), 0),
			COALESCE(SUM((oi.unit_price - oi.unit_cost) * oi.quantity), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.status = 'complete'
	`).Scan(&dash.Revenue, &dash.Profit)
	if err != nil {
		return domain.Dashboard{}, err
	}
	return dash, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleAdmin
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 4)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return hasCode(err, "23505")
}

func isForeignKeyViolation(err error) bool {
	return hasCode(err, "23503")
}

func isCheckViolation(err error) bool {
	return hasCode(err, "23514")
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
