package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"arafims/backend/internal/accesstoken"
	"arafims/backend/internal/cache"
	"arafims/backend/internal/domain"
	"arafims/backend/internal/ledger"
	"arafims/backend/internal/store"
	"arafims/backend/internal/xid"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrTokenExpired      = errors.New("access token expired")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrUnauthorized      = errors.New("admin role required")
	ErrProductInUse      = errors.New("product is referenced by an open order or quick shop")
	ErrTransactionFailed = errors.New("transaction failed")
)

// LowStockThreshold is the available quantity at or below which the
// dashboard flags a product.
const LowStockThreshold = 5

const maxOrderIDAttempts = 16

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	ledger     *ledger.Ledger
	tokens     *accesstoken.Issuer
	catalog    cache.CatalogCache
	catalogTTL time.Duration
	logger     *zap.Logger
	orderIDs   func() (string, error)
}

func New(repo store.Repository, catalog cache.CatalogCache, catalogTTL time.Duration, tokenTTL time.Duration, logger *zap.Logger) *Service {
	if catalog == nil {
		catalog = cache.NoopCatalogCache{}
	}
	if catalogTTL <= 0 {
		catalogTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:       repo,
		ledger:     ledger.New(logger),
		tokens:     accesstoken.NewIssuer(tokenTTL),
		catalog:    catalog,
		catalogTTL: catalogTTL,
		logger:     logger.Named("service"),
		orderIDs:   xid.OrderID,
	}
}

// WithClock returns a copy of the service whose token issuing and expiry
// checks read time from now.
func (s *Service) WithClock(now func() time.Time) *Service {
	dup := *s
	dup.tokens = s.tokens.WithClock(now)
	return &dup
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrUnauthorized
	}
	return nil
}

// fail passes domain errors through untouched. Anything else came from the
// storage engine: it is logged here and reduced to ErrTransactionFailed so
// callers never see driver details.
func (s *Service) fail(op string, err error) error {
	for _, known := range []error{
		store.ErrNotFound,
		store.ErrInsufficientStock,
		store.ErrInvalidInput,
		store.ErrConflict,
		ErrEmptyCart,
		ErrTokenExpired,
		ErrIllegalTransition,
		ErrUnauthorized,
		ErrProductInUse,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	s.logger.Error("storage failure", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, ErrTransactionFailed)
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if err := s.catalog.Invalidate(ctx); err != nil {
		s.logger.Warn("catalog cache invalidate failed", zap.Error(err))
	}
}

func (s *Service) actorField(ctx context.Context) zap.Field {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return zap.String("actor", "anonymous")
	}
	return zap.String("actor", actor.Username)
}

// allocateOrderID draws order ids until one is unused. The id space is small,
// so the check runs inside the caller's transaction.
func (s *Service) allocateOrderID(ctx context.Context, tx store.Tx) (string, error) {
	for attempt := 0; attempt < maxOrderIDAttempts; attempt++ {
		id, err := s.orderIDs()
		if err != nil {
			return "", err
		}
		exists, err := tx.OrderExists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("no free order id after %d attempts: %w", maxOrderIDAttempts, store.ErrConflict)
}

// normalizeItems merges duplicate products and drops lines with qty < 1,
// keeping the order in which products first appear.
func normalizeItems(items []domain.CartItem) []domain.CartItem {
	index := make(map[string]int, len(items))
	normalized := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Qty < 1 {
			continue
		}
		if i, ok := index[item.ProductID]; ok {
			normalized[i].Qty += item.Qty
			continue
		}
		index[item.ProductID] = len(normalized)
		normalized = append(normalized, item)
	}
	return normalized
}

func cartProductIDs(items []domain.CartItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	return ids
}

func orderLines(items []domain.OrderItem) []ledger.Line {
	lines := make([]ledger.Line, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		lines = append(lines, ledger.Line{ProductID: item.ProductID, Qty: item.Quantity})
	}
	return lines
}

// tokenFinder adapts the repository to accesstoken.Finder.
type tokenFinder struct {
	repo store.Repository
}

func (f tokenFinder) TokenExpiry(ctx context.Context, token string) (time.Time, error) {
	at, err := f.repo.TokenExpiry(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, accesstoken.ErrUnknownToken
	}
	return at, err
}
