// Package cache holds the product-catalog read cache. Catalog reads vastly
// outnumber writes on a busy register, so the product list is cached with a
// short TTL and invalidated on every catalog mutation.
package cache

import (
	"context"
	"time"

	"frentedecaixa/backend/internal/domain"
)

type CatalogCache interface {
	GetProducts(ctx context.Context) ([]domain.Product, bool, error)
	SetProducts(ctx context.Context, products []domain.Product, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) GetProducts(_ context.Context) ([]domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) SetProducts(_ context.Context, _ []domain.Product, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) Invalidate(_ context.Context) error {
	return nil
}
