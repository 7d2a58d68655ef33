package memory

import (
	"context"
	"fmt"
	"time"

	"arafims/backend/internal/domain"
	"arafims/backend/internal/store"
)

// memTx mutates a private copy of the store state.
type memTx struct {
	st *state
}

func (t *memTx) GetProductForUpdate(_ context.Context, id string) (*domain.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (t *memTx) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.st.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (t *memTx) UpdateProduct(_ context.Context, product domain.Product) error {
	existing, ok := t.st.products[product.ID]
	if !ok {
		return store.ErrNotFound
	}
	if product.Name == "" || product.Quantity < 0 {
		return store.ErrInvalidInput
	}
	if product.CategoryID != "" {
		if _, ok := t.st.categories[product.CategoryID]; !ok {
			return fmt.Errorf("category %s: %w", product.CategoryID, store.ErrNotFound)
		}
	}
	product.Reserved = existing.Reserved
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	t.st.products[product.ID] = product
	return nil
}

func (t *memTx) DeleteProduct(_ context.Context, id string) error {
	if _, ok := t.st.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.st.products, id)
	for oid, o := range t.st.orders {
		changed := false
		for i := range o.Items {
			if o.Items[i].ProductID == id {
				o.Items[i].ProductID = ""
				changed = true
			}
		}
		if changed {
			t.st.orders[oid] = o
		}
	}
	for qid, qs := range t.st.quickShops {
		for i := range qs.Items {
			if qs.Items[i].ProductID == id {
				qs.Items[i].ProductID = ""
			}
		}
		t.st.quickShops[qid] = qs
	}
	return nil
}

func (t *memTx) ProductInUse(_ context.Context, id string) (bool, error) {
	for _, o := range t.st.orders {
		if o.Status.Terminal() {
			continue
		}
		for _, item := range o.Items {
			if item.ProductID == id {
				return true, nil
			}
		}
	}
	for _, qs := range t.st.quickShops {
		if qs.Status != domain.QuickShopStatusOpen {
			continue
		}
		for _, item := range qs.Items {
			if item.ProductID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func (t *memTx) DecrementStock(_ context.Context, productID string, qty int) error {
	return t.move(productID, func(p *domain.Product) error {
		if p.Quantity-p.Reserved < qty {
			return store.ErrInsufficientStock
		}
		p.Quantity -= qty
		return nil
	})
}

func (t *memTx) IncrementStock(_ context.Context, productID string, qty int) error {
	return t.move(productID, func(p *domain.Product) error {
		p.Quantity += qty
		return nil
	})
}

func (t *memTx) ReserveStock(_ context.Context, productID string, qty int) error {
	return t.move(productID, func(p *domain.Product) error {
		if p.Quantity-p.Reserved < qty {
			return store.ErrInsufficientStock
		}
		p.Reserved += qty
		return nil
	})
}

func (t *memTx) ReleaseStock(_ context.Context, productID string, qty int) error {
	return t.move(productID, func(p *domain.Product) error {
		p.Reserved = max(p.Reserved-qty, 0)
		return nil
	})
}

func (t *memTx) CommitStock(_ context.Context, productID string, qty int) error {
	return t.move(productID, func(p *domain.Product) error {
		if p.Quantity < qty {
			return store.ErrInsufficientStock
		}
		p.Quantity -= qty
		p.Reserved = max(p.Reserved-qty, 0)
		return nil
	})
}

func (t *memTx) move(productID string, fn func(p *domain.Product) error) error {
	p, ok := t.st.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	if err := fn(&p); err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UTC()
	t.st.products[productID] = p
	return nil
}

func (t *memTx) OrderExists(_ context.Context, id string) (bool, error) {
	_, ok := t.st.orders[id]
	return ok, nil
}

func (t *memTx) InsertOrder(_ context.Context, order domain.Order) error {
	if order.ID == "" || len(order.Items) == 0 {
		return store.ErrInvalidInput
	}
	if _, exists := t.st.orders[order.ID]; exists {
		return store.ErrConflict
	}
	if order.AccessToken != "" {
		if _, exists := t.st.orderByToken[order.AccessToken]; exists {
			return store.ErrConflict
		}
		t.st.orderByToken[order.AccessToken] = order.ID
	}
	t.st.orders[order.ID] = cloneOrder(order)
	return nil
}

func (t *memTx) GetOrderForUpdate(_ context.Context, id string) (*domain.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneOrder(o)
	return &dup, nil
}

func (t *memTx) UpdateOrderStatus(_ context.Context, id string, status domain.OrderStatus, reason string, at time.Time) error {
	o, ok := t.st.orders[id]
	if !ok {
		return store.ErrNotFound
	}
	o.Status = status
	if reason != "" {
		o.CancellationReason = reason
	}
	o.UpdatedAt = at
	t.st.orders[id] = o
	return nil
}

func (t *memTx) DeleteOrder(_ context.Context, id string) error {
	o, ok := t.st.orders[id]
	if !ok {
		return store.ErrNotFound
	}
	if o.AccessToken != "" {
		delete(t.st.orderByToken, o.AccessToken)
	}
	delete(t.st.orders, id)
	return nil
}

func (t *memTx) InsertQuickShop(_ context.Context, qs domain.QuickShop) error {
	if qs.ID == "" || len(qs.Items) == 0 {
		return store.ErrInvalidInput
	}
	if _, exists := t.st.quickShops[qs.ID]; exists {
		return store.ErrConflict
	}
	t.st.quickShops[qs.ID] = cloneQuickShop(qs)
	return nil
}

func (t *memTx) GetQuickShopForUpdate(_ context.Context, id string) (*domain.QuickShop, error) {
	qs, ok := t.st.quickShops[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneQuickShop(qs)
	return &dup, nil
}

func (t *memTx) CloseQuickShop(_ context.Context, qs domain.QuickShop) error {
	existing, ok := t.st.quickShops[qs.ID]
	if !ok {
		return store.ErrNotFound
	}
	if existing.Status != domain.QuickShopStatusOpen {
		return store.ErrConflict
	}
	t.st.quickShops[qs.ID] = cloneQuickShop(qs)
	return nil
}
