package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
	"github.com/jerealeksanteri/skilta-piikki/internal/infra/observability"
	"github.com/jerealeksanteri/skilta-piikki/internal/port"
)

var catalogTracer = otel.Tracer("service/catalog")

const productsCacheKey = "products"

// CatalogService manages the purchasable price list.
type CatalogService struct {
	store   port.ProductStore
	cache   port.Cache[[]domain.Product]
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(store port.ProductStore, cache port.Cache[[]domain.Product], metrics *observability.Metrics, logger *zap.Logger) *CatalogService {
	return &CatalogService{store: store, cache: cache, metrics: metrics, logger: logger}
}

// ListProducts returns the active price list members order from. Served from
// a short-lived cache; catalog mutations invalidate it.
func (s *CatalogService) ListProducts(ctx context.Context, actor *domain.Member) ([]domain.Product, error) {
	if err := requireActive(actor, "list products"); err != nil {
		return nil, err
	}
	if cached, ok := s.cache.Get(productsCacheKey); ok {
		s.metrics.IncrCacheHit(productsCacheKey)
		return cached, nil
	}
	s.metrics.IncrCacheMiss(productsCacheKey)

	products, err := s.store.ListActiveProducts(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(productsCacheKey, products)
	return products, nil
}

// ListAllProducts includes retired products, for the admin catalog page.
func (s *CatalogService) ListAllProducts(ctx context.Context, actor *domain.Member) ([]domain.Product, error) {
	if err := requireAdmin(actor, "list all products"); err != nil {
		return nil, err
	}
	return s.store.ListAllProducts(ctx)
}

func (s *CatalogService) CreateProduct(ctx context.Context, actor *domain.Member, in *domain.NewProductInput) (*domain.Product, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.CreateProduct")
	defer span.End()

	if err := requireAdmin(actor, "create product"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "name must not be empty"}
	}
	if !in.Price.IsPositive() {
		return nil, &domain.ErrValidation{Field: "price", Message: "price must be positive"}
	}

	product, err := s.store.CreateProduct(ctx, in)
	if err != nil {
		return nil, err
	}
	s.cache.Delete(productsCacheKey)
	s.logger.Info("product created",
		zap.Int64("product_id", product.ID),
		zap.String("name", product.Name),
		zap.String("price", product.Price.String()),
	)
	return product, nil
}

// UpdateProduct applies a partial update. Price changes affect future
// purchases only; recorded transactions keep their captured unit price.
func (s *CatalogService) UpdateProduct(ctx context.Context, actor *domain.Member, id int64, patch *domain.ProductPatch) (*domain.Product, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.UpdateProduct")
	defer span.End()

	if err := requireAdmin(actor, "update product"); err != nil {
		return nil, err
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "name must not be empty"}
	}
	if patch.Price != nil && !patch.Price.IsPositive() {
		return nil, &domain.ErrValidation{Field: "price", Message: "price must be positive"}
	}

	product, err := s.store.UpdateProduct(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.cache.Delete(productsCacheKey)
	s.logger.Info("product updated", zap.Int64("product_id", id))
	return product, nil
}

// DeleteProduct retires the product from the active list. History keeps
// referencing it.
func (s *CatalogService) DeleteProduct(ctx context.Context, actor *domain.Member, id int64) error {
	if err := requireAdmin(actor, "delete product"); err != nil {
		return err
	}
	if err := s.store.SoftDeleteProduct(ctx, id); err != nil {
		return err
	}
	s.cache.Delete(productsCacheKey)
	s.logger.Info("product retired", zap.Int64("product_id", id))
	return nil
}
