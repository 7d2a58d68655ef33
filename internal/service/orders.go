package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arafims/backend/internal/accesstoken"
	"arafims/backend/internal/domain"
	"arafims/backend/internal/money"
	"arafims/backend/internal/store"
)

const maxTrackedTokens = 50

// CreateOrder places a storefront order. Lines for products that no longer
// exist are dropped and reported; the rest reserve stock, so on-hand
// quantity only moves when the order completes.
func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.OrderReceipt, error) {
	items := normalizeItems(req.CartItems)
	if len(items) == 0 {
		return domain.OrderReceipt{}, ErrEmptyCart
	}

	token, err := s.tokens.Issue()
	if err != nil {
		return domain.OrderReceipt{}, s.fail("issue access token", err)
	}
	now := s.tokens.Now()

	var receipt domain.OrderReceipt
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		products, err := tx.GetProductsByIDs(ctx, cartProductIDs(items))
		if err != nil {
			return err
		}

		lines := make([]domain.OrderItem, 0, len(items))
		dropped := make([]domain.CartItem, 0)
		total := decimal.Zero
		for _, item := range items {
			product, ok := products[item.ProductID]
			if !ok {
				dropped = append(dropped, item)
				continue
			}
			line := domain.OrderItem{
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    item.Qty,
				UnitPrice:   product.Price,
				UnitCost:    product.CostPrice,
			}
			total = total.Add(line.LineTotal())
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		if err := s.ledger.ReserveLines(ctx, tx, orderLines(lines)); err != nil {
			return err
		}

		id, err := s.allocateOrderID(ctx, tx)
		if err != nil {
			return err
		}

		expiresAt := token.ExpiresAt
		order := domain.Order{
			ID:             id,
			Status:         domain.OrderStatusAwaitingPayment,
			Source:         domain.OrderSourceStorefront,
			TotalAmount:    money.Round(total),
			AccessToken:    token.Value,
			TokenExpiresAt: &expiresAt,
			CreatedAt:      now,
			UpdatedAt:      now,
			Items:          lines,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		receipt = domain.OrderReceipt{
			OrderID:        order.ID,
			AccessToken:    token.Value,
			TokenExpiresAt: token.ExpiresAt,
			TotalAmount:    order.TotalAmount,
			Items:          lines,
		}
		if len(dropped) > 0 {
			receipt.DroppedItems = dropped
		}
		return nil
	})
	if err != nil {
		return domain.OrderReceipt{}, s.fail("create order", err)
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("order created",
		zap.String("order_id", receipt.OrderID),
		zap.Int("lines", len(receipt.Items)),
		zap.Int("dropped", len(receipt.DroppedItems)),
		zap.String("total", receipt.TotalAmount.StringFixed(money.Places)),
	)
	return receipt, nil
}

// TransitionOrder moves an order along the status table. Completing an order
// turns its reservations into sold stock in the same transaction as the
// status write. Cancelling goes through CancelOrder.
func (s *Service) TransitionOrder(ctx context.Context, id string, rawStatus string) (domain.Order, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Order{}, err
	}

	next, err := domain.ParseOrderStatus(rawStatus)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%v: %w", err, store.ErrInvalidInput)
	}
	if next == domain.OrderStatusCancelled {
		return domain.Order{}, fmt.Errorf("cancel requires a reason: %w", ErrIllegalTransition)
	}

	now := s.tokens.Now()
	var result domain.Order
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status == next {
			result = *order
			return nil
		}
		if !order.Status.CanTransition(next) {
			return fmt.Errorf("%s to %s: %w", order.Status, next, ErrIllegalTransition)
		}

		if next == domain.OrderStatusComplete {
			if err := s.ledger.CommitLines(ctx, tx, orderLines(order.Items)); err != nil {
				return err
			}
		}
		if err := tx.UpdateOrderStatus(ctx, order.ID, next, "", now); err != nil {
			return err
		}

		order.Status = next
		order.UpdatedAt = now
		result = *order
		return nil
	})
	if err != nil {
		return domain.Order{}, s.fail("transition order", err)
	}

	s.logger.Info("order status changed",
		zap.String("order_id", result.ID),
		zap.String("status", string(result.Status)),
		s.actorField(ctx),
	)
	return result, nil
}

// CancelOrder releases the order's reservations and records the reason.
// Complete and cancelled orders cannot be cancelled.
func (s *Service) CancelOrder(ctx context.Context, id string, reason string) (domain.Order, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Order{}, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Order{}, fmt.Errorf("cancellation reason required: %w", store.ErrInvalidInput)
	}

	now := s.tokens.Now()
	var result domain.Order
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !order.Status.CanTransition(domain.OrderStatusCancelled) {
			return fmt.Errorf("%s to %s: %w", order.Status, domain.OrderStatusCancelled, ErrIllegalTransition)
		}

		if err := s.ledger.ReleaseLines(ctx, tx, orderLines(order.Items)); err != nil {
			return err
		}
		if err := tx.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusCancelled, reason, now); err != nil {
			return err
		}

		order.Status = domain.OrderStatusCancelled
		order.CancellationReason = reason
		order.UpdatedAt = now
		result = *order
		return nil
	})
	if err != nil {
		return domain.Order{}, s.fail("cancel order", err)
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("order cancelled", zap.String("order_id", result.ID), s.actorField(ctx))
	return result, nil
}

// GetOrderByToken is the customer's read path: the token is the credential.
func (s *Service) GetOrderByToken(ctx context.Context, token string) (domain.Order, error) {
	status, err := s.tokens.Validate(ctx, tokenFinder{repo: s.repo}, token)
	if err != nil {
		return domain.Order{}, s.fail("validate access token", err)
	}
	switch status {
	case accesstoken.NotFound:
		return domain.Order{}, store.ErrNotFound
	case accesstoken.Expired:
		return domain.Order{}, ErrTokenExpired
	}

	order, err := s.repo.FindOrderByToken(ctx, token)
	if err != nil {
		return domain.Order{}, s.fail("find order by token", err)
	}
	return *order, nil
}

// ListOrdersByTokens backs the "my orders" view. Unknown and expired tokens
// are skipped rather than reported.
func (s *Service) ListOrdersByTokens(ctx context.Context, tokens []string) ([]domain.Order, error) {
	seen := make(map[string]struct{}, len(tokens))
	cleaned := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		cleaned = append(cleaned, token)
		if len(cleaned) == maxTrackedTokens {
			break
		}
	}
	if len(cleaned) == 0 {
		return []domain.Order{}, nil
	}

	orders, err := s.repo.FindOrdersByTokens(ctx, cleaned)
	if err != nil {
		return nil, s.fail("find orders by tokens", err)
	}

	live := make([]domain.Order, 0, len(orders))
	for _, order := range orders {
		if order.TokenExpiresAt == nil || s.tokens.Check(*order.TokenExpiresAt) != accesstoken.Valid {
			continue
		}
		live = append(live, order)
	}
	return live, nil
}

func (s *Service) ListOrders(ctx context.Context, rawStatus string, limit int) ([]domain.Order, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	filter := store.OrderFilter{Limit: limit}
	if strings.TrimSpace(rawStatus) != "" {
		status, err := domain.ParseOrderStatus(rawStatus)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, store.ErrInvalidInput)
		}
		filter.Status = status
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 200
	}

	orders, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, s.fail("list orders", err)
	}
	return orders, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Order{}, err
	}

	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, s.fail("get order", err)
	}
	return *order, nil
}

// DeleteOrder removes an order. Reservations held by an order that never
// reached a terminal status go back to available stock first.
func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !order.Status.Terminal() {
			if err := s.ledger.ReleaseLines(ctx, tx, orderLines(order.Items)); err != nil {
				return err
			}
		}
		return tx.DeleteOrder(ctx, order.ID)
	})
	if err != nil {
		return s.fail("delete order", err)
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("order deleted", zap.String("order_id", id), s.actorField(ctx))
	return nil
}
