package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arafims/backend/internal/domain"
	"arafims/backend/internal/money"
	"arafims/backend/internal/store"
)

// ListCatalog is the public storefront listing: products with stock left,
// joined with their category names. It is served from cache when possible.
func (s *Service) ListCatalog(ctx context.Context) ([]domain.CatalogItem, error) {
	if items, ok, err := s.catalog.Get(ctx); err != nil {
		s.logger.Warn("catalog cache read failed", zap.Error(err))
	} else if ok {
		return items, nil
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, s.fail("list products", err)
	}
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, s.fail("list categories", err)
	}
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	items := make([]domain.CatalogItem, 0, len(products))
	for _, p := range products {
		if p.Available() < 1 {
			continue
		}
		items = append(items, domain.CatalogItem{
			ID:           p.ID,
			Name:         p.Name,
			Price:        p.Price,
			Available:    p.Available(),
			CategoryID:   p.CategoryID,
			CategoryName: names[p.CategoryID],
		})
	}

	if err := s.catalog.Set(ctx, items, s.catalogTTL); err != nil {
		s.logger.Warn("catalog cache write failed", zap.Error(err))
	}
	return items, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, s.fail("list products", err)
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, s.fail("get product", err)
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		Name:       strings.TrimSpace(req.Name),
		Price:      req.Price,
		CostPrice:  req.CostPrice,
		Quantity:   req.Quantity,
		CategoryID: strings.TrimSpace(req.CategoryID),
	}
	if err := validateProduct(product); err != nil {
		return domain.Product{}, err
	}
	if err := s.checkCategory(ctx, product.CategoryID); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, s.fail("create product", err)
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("product created", zap.String("product_id", created.ID), s.actorField(ctx))
	return *created, nil
}

// UpdateProduct applies the non-nil fields of req. Quantity can be corrected
// freely but never below what open orders have reserved.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if req.CategoryID != nil {
		if err := s.checkCategory(ctx, strings.TrimSpace(*req.CategoryID)); err != nil {
			return domain.Product{}, err
		}
	}

	var result domain.Product
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		existing, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return err
		}

		updated := *existing
		if req.Name != nil {
			updated.Name = strings.TrimSpace(*req.Name)
		}
		if req.Price != nil {
			updated.Price = *req.Price
		}
		if req.CostPrice != nil {
			updated.CostPrice = *req.CostPrice
		}
		if req.Quantity != nil {
			updated.Quantity = *req.Quantity
		}
		if req.CategoryID != nil {
			updated.CategoryID = strings.TrimSpace(*req.CategoryID)
		}

		if err := validateProduct(updated); err != nil {
			return err
		}
		if updated.Quantity < existing.Reserved {
			return fmt.Errorf("quantity %d is below %d reserved: %w", updated.Quantity, existing.Reserved, store.ErrInvalidInput)
		}
		if err := tx.UpdateProduct(ctx, updated); err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return domain.Product{}, s.fail("update product", err)
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("product updated", zap.String("product_id", result.ID), s.actorField(ctx))
	return result, nil
}

// DeleteProduct refuses while an open quick shop or a non-terminal order
// still references the product. Finished orders keep the name snapshot.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetProductForUpdate(ctx, id); err != nil {
			return err
		}
		inUse, err := tx.ProductInUse(ctx, id)
		if err != nil {
			return err
		}
		if inUse {
			return ErrProductInUse
		}
		return tx.DeleteProduct(ctx, id)
	})
	if err != nil {
		return s.fail("delete product", err)
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("product deleted", zap.String("product_id", id), s.actorField(ctx))
	return nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, s.fail("list categories", err)
	}
	return categories, nil
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, fmt.Errorf("category name required: %w", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{Name: name, CreatedAt: s.tokens.Now()})
	if err != nil {
		return domain.Category{}, s.fail("create category", err)
	}
	s.logger.Info("category created", zap.String("category_id", created.ID), s.actorField(ctx))
	return *created, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return s.fail("delete category", err)
	}
	s.invalidateCatalog(ctx)
	return nil
}

func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Dashboard{}, err
	}
	dash, err := s.repo.GetDashboard(ctx, LowStockThreshold)
	if err != nil {
		return domain.Dashboard{}, s.fail("dashboard", err)
	}
	dash.Revenue = money.Round(dash.Revenue)
	dash.Profit = money.Round(dash.Profit)
	return dash, nil
}

// CalculatePackProfit splits a pack's cost across its units and prices one
// unit at req.UnitPrice.
func (s *Service) CalculatePackProfit(req domain.PackProfitRequest) (domain.PackProfit, error) {
	if req.PackQty < 1 {
		return domain.PackProfit{}, fmt.Errorf("pack quantity must be at least 1: %w", store.ErrInvalidInput)
	}
	if req.PackCost.IsNegative() || req.UnitPrice.IsNegative() {
		return domain.PackProfit{}, fmt.Errorf("amounts cannot be negative: %w", store.ErrInvalidInput)
	}

	qty := decimal.NewFromInt(int64(req.PackQty))
	unitCost := req.PackCost.Div(qty)
	unitProfit := req.UnitPrice.Sub(unitCost)
	return domain.PackProfit{
		UnitCost:      money.Round(unitCost),
		UnitProfit:    money.Round(unitProfit),
		TotalProfit:   money.Round(unitProfit.Mul(qty)),
		MarginPercent: money.MarginPercent(unitProfit, req.UnitPrice),
	}, nil
}

func validateProduct(p domain.Product) error {
	switch {
	case p.Name == "":
		return fmt.Errorf("product name required: %w", store.ErrInvalidInput)
	case !p.Price.IsPositive():
		return fmt.Errorf("price must be positive: %w", store.ErrInvalidInput)
	case p.CostPrice.IsNegative():
		return fmt.Errorf("cost price cannot be negative: %w", store.ErrInvalidInput)
	case money.HasMoreThanPlaces(p.Price) || money.HasMoreThanPlaces(p.CostPrice):
		return fmt.Errorf("amounts have at most %d decimal places: %w", money.Places, store.ErrInvalidInput)
	case p.Quantity < 0:
		return fmt.Errorf("quantity cannot be negative: %w", store.ErrInvalidInput)
	}
	return nil
}

func (s *Service) checkCategory(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := s.repo.GetCategory(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("category %s does not exist: %w", id, store.ErrInvalidInput)
		}
		return s.fail("get category", err)
	}
	return nil
}
