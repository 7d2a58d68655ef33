package cache

import (
	"context"
	"time"

	"arafims/backend/internal/domain"
)

// CatalogCache holds the public catalog listing. Writers invalidate it after
// every stock or product change.
type CatalogCache interface {
	Get(ctx context.Context) ([]domain.CatalogItem, bool, error)
	Set(ctx context.Context, items []domain.CatalogItem, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) Get(_ context.Context) ([]domain.CatalogItem, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) Set(_ context.Context, _ []domain.CatalogItem, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) Invalidate(_ context.Context) error {
	return nil
}

// AttemptLimiter counts attempts per key inside a fixed window.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}
