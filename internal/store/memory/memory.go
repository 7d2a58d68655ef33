package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"arafims/backend/internal/domain"
	"arafims/backend/internal/store"
	"arafims/backend/internal/xid"
)

type state struct {
	products     map[string]domain.Product
	categories   map[string]domain.Category
	orders       map[string]domain.Order
	orderByToken map[string]string
	quickShops   map[string]domain.QuickShop
	users        map[string]domain.UserAccount
}

func newState() *state {
	return &state{
		products:     make(map[string]domain.Product),
		categories:   make(map[string]domain.Category),
		orders:       make(map[string]domain.Order),
		orderByToken: make(map[string]string),
		quickShops:   make(map[string]domain.QuickShop),
		users:        make(map[string]domain.UserAccount),
	}
}

func (s *state) clone() *state {
	dup := &state{
		products:     make(map[string]domain.Product, len(s.products)),
		categories:   make(map[string]domain.Category, len(s.categories)),
		orders:       make(map[string]domain.Order, len(s.orders)),
		orderByToken: make(map[string]string, len(s.orderByToken)),
		quickShops:   make(map[string]domain.QuickShop, len(s.quickShops)),
		users:        make(map[string]domain.UserAccount, len(s.users)),
	}
	for k, v := range s.products {
		dup.products[k] = v
	}
	for k, v := range s.categories {
		dup.categories[k] = v
	}
	for k, v := range s.orders {
		dup.orders[k] = cloneOrder(v)
	}
	for k, v := range s.orderByToken {
		dup.orderByToken[k] = v
	}
	for k, v := range s.quickShops {
		dup.quickShops[k] = cloneQuickShop(v)
	}
	for k, v := range s.users {
		dup.users[k] = v
	}
	return dup
}

// Store keeps everything in process memory. Transactions run against a
// private copy of the state that replaces the live state only on success, so
// a failed unit of work leaves nothing behind.
type Store struct {
	mu     sync.RWMutex
	st     *state
	logger *zap.Logger
}

func New() *Store {
	return &Store{st: newState(), logger: zap.NewNop()}
}

// NewSeeded returns a store with a demo catalog and an admin account for
// dev mode.
func NewSeeded(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{st: newState(), logger: logger.Named("memory-store")}
	now := time.Now().UTC()

	categories := []domain.Category{
		{ID: "cat-snacks", Name: "Snacks", CreatedAt: now},
		{ID: "cat-drinks", Name: "Drinks", CreatedAt: now},
		{ID: "cat-beauty", Name: "Beauty", CreatedAt: now},
	}
	for _, c := range categories {
		s.st.categories[c.ID] = c
	}

	products := []domain.Product{
		{ID: "prod-chin-chin", Name: "Chin Chin 500g", Price: decimal.RequireFromString("1500"), CostPrice: decimal.RequireFromString("1100"), Quantity: 40, CategoryID: "cat-snacks"},
		{ID: "prod-plantain", Name: "Plantain Chips", Price: decimal.RequireFromString("800"), CostPrice: decimal.RequireFromString("550"), Quantity: 60, CategoryID: "cat-snacks"},
		{ID: "prod-zobo", Name: "Zobo 50cl", Price: decimal.RequireFromString("500"), CostPrice: decimal.RequireFromString("300"), Quantity: 24, CategoryID: "cat-drinks"},
		{ID: "prod-kunu", Name: "Kunu 50cl", Price: decimal.RequireFromString("450"), CostPrice: decimal.RequireFromString("280"), Quantity: 4, CategoryID: "cat-drinks"},
		{ID: "prod-shea", Name: "Shea Butter 250g", Price: decimal.RequireFromString("2500"), CostPrice: decimal.RequireFromString("1600"), Quantity: 15, CategoryID: "cat-beauty"},
	}
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.st.products[p.ID] = p
	}

	s.st.users = s.seedUsers(now)
	return s
}

// seedUsers builds the dev admin account. The password comes from
// SEED_ADMIN_PASSWORD; the fallback is only meant for local runs.
func (s *Store) seedUsers(now time.Time) map[string]domain.UserAccount {
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		password = "admin12345"
		s.logger.Warn("using default dev admin credentials, set SEED_ADMIN_PASSWORD to override")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Fatal("hash seed password", zap.Error(err))
	}
	return map[string]domain.UserAccount{
		"admin": {Username: "admin", Password: string(hash), Role: domain.RoleAdmin, Active: true, CreatedAt: now},
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.st.products))
	for _, p := range s.st.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.st.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.CategoryID != "" {
		if _, ok := s.st.categories[product.CategoryID]; !ok {
			return nil, fmt.Errorf("category %s: %w", product.CategoryID, store.ErrNotFound)
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.st.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	now := time.Now().UTC()
	product.Reserved = 0
	product.CreatedAt = now
	product.UpdatedAt = now
	s.st.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.st.categories))
	for _, c := range s.st.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return categories, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.st.categories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.st.categories {
		if strings.EqualFold(existing.Name, category.Name) {
			return nil, store.ErrConflict
		}
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	s.st.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.categories[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.st.categories, id)
	for pid, p := range s.st.products {
		if p.CategoryID == id {
			p.CategoryID = ""
			s.st.products[pid] = p
		}
	}
	return nil
}

func (s *Store) ListOrders(_ context.Context, filter store.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.st.orders))
	for _, o := range s.st.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		orders = append(orders, cloneOrder(o))
	}
	sortOrdersNewestFirst(orders)
	if filter.Limit > 0 && len(orders) > filter.Limit {
		orders = orders[:filter.Limit]
	}
	return orders, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.st.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneOrder(o)
	return &dup, nil
}

func (s *Store) FindOrderByToken(_ context.Context, token string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.st.orderByToken[token]
	if !ok || token == "" {
		return nil, store.ErrNotFound
	}
	dup := cloneOrder(s.st.orders[id])
	return &dup, nil
}

func (s *Store) FindOrdersByTokens(_ context.Context, tokens []string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(tokens))
	orders := make([]domain.Order, 0, len(tokens))
	for _, token := range tokens {
		id, ok := s.st.orderByToken[token]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		orders = append(orders, cloneOrder(s.st.orders[id]))
	}
	sortOrdersNewestFirst(orders)
	return orders, nil
}

func (s *Store) TokenExpiry(_ context.Context, token string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.st.orderByToken[token]
	if !ok {
		return time.Time{}, store.ErrNotFound
	}
	o := s.st.orders[id]
	if o.TokenExpiresAt == nil {
		return time.Time{}, store.ErrNotFound
	}
	return *o.TokenExpiresAt, nil
}

func (s *Store) ListQuickShops(_ context.Context) ([]domain.QuickShop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shops := make([]domain.QuickShop, 0, len(s.st.quickShops))
	for _, qs := range s.st.quickShops {
		shops = append(shops, cloneQuickShop(qs))
	}
	slices.SortFunc(shops, func(a, b domain.QuickShop) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return shops, nil
}

func (s *Store) GetQuickShop(_ context.Context, id string) (*domain.QuickShop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	qs, ok := s.st.quickShops[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneQuickShop(qs)
	return &dup, nil
}

func (s *Store) GetDashboard(_ context.Context, lowStockThreshold int) (domain.Dashboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dash := domain.Dashboard{
		TotalProducts: len(s.st.products),
		Revenue:       decimal.Zero,
		Profit:        decimal.Zero,
	}
	for _, p := range s.st.products {
		if p.Available() <= lowStockThreshold {
			dash.LowStock++
		}
	}
	for _, o := range s.st.orders {
		switch o.Status {
		case domain.OrderStatusComplete:
			dash.CompletedOrders++
			for _, item := range o.Items {
				qty := decimal.NewFromInt(int64(item.Quantity))
				dash.Revenue = dash.Revenue.Add(item.UnitPrice.Mul(qty))
				dash.Profit = dash.Profit.Add(item.UnitPrice.Sub(item.UnitCost).Mul(qty))
			}
		case domain.OrderStatusCancelled:
		default:
			dash.ActiveOrders++
		}
	}
	for _, qs := range s.st.quickShops {
		if qs.Status == domain.QuickShopStatusOpen {
			dash.OpenQuickShops++
		}
	}
	return dash, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.st.users[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.st.users[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.st.users))
	for _, u := range s.st.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	user, ok := s.st.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.st.users[username] = user
	return nil
}

func sortOrdersNewestFirst(orders []domain.Order) {
	slices.SortFunc(orders, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func cloneOrder(src domain.Order) domain.Order {
	dup := src
	dup.Items = slices.Clone(src.Items)
	if src.TokenExpiresAt != nil {
		at := *src.TokenExpiresAt
		dup.TokenExpiresAt = &at
	}
	return dup
}

func cloneQuickShop(src domain.QuickShop) domain.QuickShop {
	dup := src
	dup.Items = slices.Clone(src.Items)
	if src.ClosedAt != nil {
		at := *src.ClosedAt
		dup.ClosedAt = &at
	}
	return dup
}
