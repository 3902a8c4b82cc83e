package service

import (
	"context"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
)

// CatalogService is the read-only public catalog.
type CatalogService struct {
	repo *repository.CatalogRepository
}

func NewCatalogService(repo *repository.CatalogRepository) *CatalogService {
	return &CatalogService{repo: repo}
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]*models.Category, error) {
	return s.repo.ListActiveCategories(ctx)
}

// ListProducts returns active products, optionally limited to one category
// slug.
func (s *CatalogService) ListProducts(ctx context.Context, categorySlug string) ([]*models.Product, error) {
	return s.repo.ListActiveProducts(ctx, categorySlug)
}

func (s *CatalogService) GetProduct(ctx context.Context, slug string) (*models.Product, error) {
	return s.repo.GetActiveProductBySlug(ctx, slug)
}
