package store

import (
	"context"
	"errors"
	"time"

	"arafims/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("validation failed")
	ErrConflict          = errors.New("conflict")
)

// Tx is a unit of work. Every method runs inside one all-or-nothing storage
// transaction; nothing is visible to other callers until the function passed
// to Repository.WithinTx returns nil.
type Tx interface {
	// GetProductForUpdate reads a product and holds its row until the
	// transaction ends.
	GetProductForUpdate(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) error
	DeleteProduct(ctx context.Context, id string) error
	ProductInUse(ctx context.Context, id string) (bool, error)

	// Stock movements. Conditional movements check and write in one step so
	// concurrent callers can never both pass the check.
	DecrementStock(ctx context.Context, productID string, qty int) error // quantity-reserved >= qty
	IncrementStock(ctx context.Context, productID string, qty int) error
	ReserveStock(ctx context.Context, productID string, qty int) error // quantity-reserved >= qty
	ReleaseStock(ctx context.Context, productID string, qty int) error
	CommitStock(ctx context.Context, productID string, qty int) error // quantity >= qty

	OrderExists(ctx context.Context, id string) (bool, error)
	InsertOrder(ctx context.Context, order domain.Order) error
	GetOrderForUpdate(ctx context.Context, id string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, reason string, at time.Time) error
	DeleteOrder(ctx context.Context, id string) error

	InsertQuickShop(ctx context.Context, qs domain.QuickShop) error
	GetQuickShopForUpdate(ctx context.Context, id string) (*domain.QuickShop, error)
	CloseQuickShop(ctx context.Context, qs domain.QuickShop) error
}

type OrderFilter struct {
	Status domain.OrderStatus
	Limit  int
}

type Repository interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	FindOrderByToken(ctx context.Context, token string) (*domain.Order, error)
	FindOrdersByTokens(ctx context.Context, tokens []string) ([]domain.Order, error)
	TokenExpiry(ctx context.Context, token string) (time.Time, error)

	ListQuickShops(ctx context.Context) ([]domain.QuickShop, error)
	GetQuickShop(ctx context.Context, id string) (*domain.QuickShop, error)

	GetDashboard(ctx context.Context, lowStockThreshold int) (domain.Dashboard, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
