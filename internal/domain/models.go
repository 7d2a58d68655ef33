package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type CategoryCreateRequest struct {
	Name string `json:"name"`
}

type Product struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	CostPrice  decimal.Decimal `json:"cost_price"`
	Quantity   int             `json:"quantity"`
	Reserved   int             `json:"reserved"`
	CategoryID string          `json:"category_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Available is the on-hand quantity not yet promised to an open order.
func (p Product) Available() int {
	if p.Quantity <= p.Reserved {
		return 0
	}
	return p.Quantity - p.Reserved
}

type ProductCreateRequest struct {
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	CostPrice  decimal.Decimal `json:"cost_price"`
	Quantity   int             `json:"quantity"`
	CategoryID string          `json:"category_id,omitempty"`
}

type ProductUpdateRequest struct {
	Name       *string          `json:"name,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	CostPrice  *decimal.Decimal `json:"cost_price,omitempty"`
	Quantity   *int             `json:"quantity,omitempty"`
	CategoryID *string          `json:"category_id,omitempty"`
}

// CatalogItem is the public view of a product; cost and reservations stay internal.
type CatalogItem struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Available    int             `json:"available"`
	CategoryID   string          `json:"category_id,omitempty"`
	CategoryName string          `json:"category_name,omitempty"`
}

type CartItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type OrderCreateRequest struct {
	CartItems []CartItem `json:"cart_items"`
}

type OrderItem struct {
	ProductID   string          `json:"product_id,omitempty"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// LineTotal is the snapshot price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID                 string          `json:"id"`
	Status             OrderStatus     `json:"status"`
	Source             string          `json:"source"`
	QuickShopID        string          `json:"quick_shop_id,omitempty"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
	AccessToken        string          `json:"-"`
	TokenExpiresAt     *time.Time      `json:"token_expires_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Items              []OrderItem     `json:"items"`
}

const (
	OrderSourceStorefront = "storefront"
	OrderSourceQuickShop  = "quick_shop"
)

// OrderReceipt is handed back to the customer who placed an order. The
// access token is the only credential that can read the order later.
type OrderReceipt struct {
	OrderID        string          `json:"order_id"`
	AccessToken    string          `json:"access_token"`
	TokenExpiresAt time.Time       `json:"token_expires_at"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Items          []OrderItem     `json:"items"`
	DroppedItems   []CartItem      `json:"dropped_items,omitempty"`
}

type OrderStatusRequest struct {
	Status string `json:"status"`
}

type OrderCancelRequest struct {
	Reason string `json:"reason"`
}

type OrderListResponse struct {
	Orders []Order `json:"orders"`
}

type QuickShopItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Returned    int             `json:"returned"`
	Sold        int             `json:"sold"`
}

type QuickShop struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	ClosedAt   *time.Time      `json:"closed_at,omitempty"`
	FinalSales decimal.Decimal `json:"final_sales"`
	Profit     decimal.Decimal `json:"profit"`
	OrderID    string          `json:"order_id,omitempty"`
	Items      []QuickShopItem `json:"items"`
}

const (
	QuickShopStatusOpen   = "open"
	QuickShopStatusClosed = "closed"
)

type QuickShopOpenRequest struct {
	Name  string     `json:"name"`
	Items []CartItem `json:"items"`
}

type QuickShopCloseRequest struct {
	Returned map[string]int `json:"returned"`
}

type QuickShopListResponse struct {
	QuickShops []QuickShop `json:"quick_shops"`
}

type Dashboard struct {
	TotalProducts   int             `json:"total_products"`
	LowStock        int             `json:"low_stock"`
	ActiveOrders    int             `json:"active_orders"`
	OpenQuickShops  int             `json:"open_quick_shops"`
	CompletedOrders int             `json:"completed_orders"`
	Revenue         decimal.Decimal `json:"revenue"`
	Profit          decimal.Decimal `json:"profit"`
}

type PackProfitRequest struct {
	PackCost  decimal.Decimal `json:"pack_cost"`
	PackQty   int             `json:"pack_qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type PackProfit struct {
	UnitCost      decimal.Decimal `json:"unit_cost"`
	UnitProfit    decimal.Decimal `json:"unit_profit"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
	MarginPercent decimal.Decimal `json:"margin_percent"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

const RoleAdmin = "admin"

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
