package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arafims/backend/internal/domain"
	"arafims/backend/internal/ledger"
	"arafims/backend/internal/money"
	"arafims/backend/internal/store"
	"arafims/backend/internal/xid"
)

// OpenQuickShop takes stock off the shelf for an off-site sale. Unlike an
// order there is no reservation: the goods physically leave.
func (s *Service) OpenQuickShop(ctx context.Context, req domain.QuickShopOpenRequest) (domain.QuickShop, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.QuickShop{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.QuickShop{}, fmt.Errorf("quick shop name required: %w", store.ErrInvalidInput)
	}
	items := normalizeItems(req.Items)
	if len(items) == 0 {
		return domain.QuickShop{}, fmt.Errorf("quick shop needs at least one item: %w", store.ErrInvalidInput)
	}

	now := s.tokens.Now()
	var result domain.QuickShop
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		products, err := tx.GetProductsByIDs(ctx, cartProductIDs(items))
		if err != nil {
			return err
		}

		taken := make([]domain.QuickShopItem, 0, len(items))
		lines := make([]ledger.Line, 0, len(items))
		for _, item := range items {
			product, ok := products[item.ProductID]
			if !ok {
				return fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
			}
			taken = append(taken, domain.QuickShopItem{
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    item.Qty,
				UnitPrice:   product.Price,
				UnitCost:    product.CostPrice,
			})
			lines = append(lines, ledger.Line{ProductID: product.ID, Qty: item.Qty})
		}

		if err := s.ledger.DecrementLines(ctx, tx, lines); err != nil {
			return err
		}

		qs := domain.QuickShop{
			ID:         xid.New("qs"),
			Name:       name,
			Status:     domain.QuickShopStatusOpen,
			CreatedAt:  now,
			FinalSales: decimal.Zero,
			Profit:     decimal.Zero,
			Items:      taken,
		}
		if err := tx.InsertQuickShop(ctx, qs); err != nil {
			return err
		}
		result = qs
		return nil
	})
	if err != nil {
		return domain.QuickShop{}, s.fail("open quick shop", err)
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("quick shop opened",
		zap.String("quick_shop_id", result.ID),
		zap.Int("lines", len(result.Items)),
		s.actorField(ctx),
	)
	return result, nil
}

// CloseQuickShop books what came back and what sold. Returned units go back
// on the shelf; sold units become one complete order so they count toward
// revenue like any other sale.
func (s *Service) CloseQuickShop(ctx context.Context, id string, req domain.QuickShopCloseRequest) (domain.QuickShop, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.QuickShop{}, err
	}

	now := s.tokens.Now()
	var result domain.QuickShop
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		qs, err := tx.GetQuickShopForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if qs.Status != domain.QuickShopStatusOpen {
			return fmt.Errorf("quick shop %s is %s: %w", qs.ID, qs.Status, ErrIllegalTransition)
		}

		known := make(map[string]struct{}, len(qs.Items))
		for _, item := range qs.Items {
			known[item.ProductID] = struct{}{}
		}
		for productID := range req.Returned {
			if _, ok := known[productID]; !ok {
				return fmt.Errorf("product %s was not taken: %w", productID, store.ErrInvalidInput)
			}
		}

		returns := make([]ledger.Line, 0, len(qs.Items))
		sold := make([]domain.OrderItem, 0, len(qs.Items))
		finalSales := decimal.Zero
		profit := decimal.Zero
		for i := range qs.Items {
			item := &qs.Items[i]
			returned := req.Returned[item.ProductID]
			if returned < 0 || returned > item.Quantity {
				return fmt.Errorf("returned %d of %d for product %s: %w", returned, item.Quantity, item.ProductID, store.ErrInvalidInput)
			}
			item.Returned = returned
			item.Sold = item.Quantity - returned

			if returned > 0 {
				returns = append(returns, ledger.Line{ProductID: item.ProductID, Qty: returned})
			}
			if item.Sold > 0 {
				finalSales = finalSales.Add(money.Line(item.UnitPrice, item.Sold))
				profit = profit.Add(money.Profit(item.UnitPrice, item.UnitCost, item.Sold))
				sold = append(sold, domain.OrderItem{
					ProductID:   item.ProductID,
					ProductName: item.ProductName,
					Quantity:    item.Sold,
					UnitPrice:   item.UnitPrice,
					UnitCost:    item.UnitCost,
				})
			}
		}

		if err := s.ledger.IncrementLines(ctx, tx, returns); err != nil {
			return err
		}

		if len(sold) > 0 {
			orderID, err := s.allocateOrderID(ctx, tx)
			if err != nil {
				return err
			}
			if err := tx.InsertOrder(ctx, domain.Order{
				ID:          orderID,
				Status:      domain.OrderStatusComplete,
				Source:      domain.OrderSourceQuickShop,
				QuickShopID: qs.ID,
				TotalAmount: money.Round(finalSales),
				CreatedAt:   now,
				UpdatedAt:   now,
				Items:       sold,
			}); err != nil {
				return err
			}
			qs.OrderID = orderID
		}

		closedAt := now
		qs.Status = domain.QuickShopStatusClosed
		qs.ClosedAt = &closedAt
		qs.FinalSales = money.Round(finalSales)
		qs.Profit = money.Round(profit)
		if err := tx.CloseQuickShop(ctx, *qs); err != nil {
			return err
		}
		result = *qs
		return nil
	})
	if err != nil {
		return domain.QuickShop{}, s.fail("close quick shop", err)
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("quick shop closed",
		zap.String("quick_shop_id", result.ID),
		zap.String("order_id", result.OrderID),
		zap.String("final_sales", result.FinalSales.StringFixed(money.Places)),
		s.actorField(ctx),
	)
	return result, nil
}

func (s *Service) ListQuickShops(ctx context.Context) ([]domain.QuickShop, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	shops, err := s.repo.ListQuickShops(ctx)
	if err != nil {
		return nil, s.fail("list quick shops", err)
	}
	return shops, nil
}

func (s *Service) GetQuickShop(ctx context.Context, id string) (domain.QuickShop, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.QuickShop{}, err
	}
	qs, err := s.repo.GetQuickShop(ctx, id)
	if err != nil {
		return domain.QuickShop{}, s.fail("get quick shop", err)
	}
	return *qs, nil
}
