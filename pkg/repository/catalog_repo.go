package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/storefront/pkg/models"
	"gorm.io/gorm"
)

type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) ListActiveCategories(ctx context.Context) ([]*models.Category, error) {
	var list []*models.Category
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// ListActiveProducts returns active products, optionally narrowed to one
// category slug.
func (r *CatalogRepository) ListActiveProducts(ctx context.Context, categorySlug string) ([]*models.Product, error) {
	query := r.db.WithContext(ctx).
		Preload("Category").
		Where("products.is_active = ?", true)
	if categorySlug != "" {
		query = query.
			Joins("JOIN categories ON categories.id = products.category_id").
			Where("categories.slug = ?", categorySlug)
	}

	var list []*models.Product
	if err := query.Order("products.name ASC").Order("products.id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *CatalogRepository) GetActiveProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var p models.Product
	if err := r.db.WithContext(ctx).
		Preload("Category").
		Where("slug = ? AND is_active = ?", slug, true).
		First(&p).Error; err != nil {
		return nil, translate(err, "product")
	}
	return &p, nil
}

// GetProductsByIDs loads products (active or not) keyed by id.
func (r *CatalogRepository) GetProductsByIDs(ctx context.Context, ids []uint) (map[uint]*models.Product, error) {
	out := make(map[uint]*models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var list []*models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	for _, p := range list {
		out[p.ID] = p
	}
	return out, nil
}

// FirstInStockProduct returns the lowest-id product that still has stock.
func (r *CatalogRepository) FirstInStockProduct(ctx context.Context) (*models.Product, error) {
	var p models.Product
	if err := r.db.WithContext(ctx).Where("stock > 0").Order("id ASC").First(&p).Error; err != nil {
		return nil, translate(err, "product with stock")
	}
	return &p, nil
}

// DeactivateAll flags every category and product inactive.
func (r *CatalogRepository) DeactivateAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Category{}).Where("1 = 1").Update("is_active", false).Error; err != nil {
			return fmt.Errorf("failed to deactivate categories: %w", err)
		}
		if err := tx.Model(&models.Product{}).Where("1 = 1").Update("is_active", false).Error; err != nil {
			return fmt.Errorf("failed to deactivate products: %w", err)
		}
		return nil
	})
}

// UpsertCategory inserts c or updates the existing row with the same slug.
// On return c.ID is set.
func (r *CatalogRepository) UpsertCategory(ctx context.Context, c *models.Category) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Category
		err := tx.Where("slug = ?", c.Slug).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(c).Error
		}
		if err != nil {
			return err
		}
		c.ID = existing.ID
		return tx.Model(&existing).Updates(map[string]interface{}{
			"name":        c.Name,
			"description": c.Description,
			"is_active":   c.IsActive,
		}).Error
	})
}

// UpsertProduct inserts p or updates the existing row with the same slug.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, p *models.Product) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Product
		err := tx.Where("slug = ?", p.Slug).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(p).Error
		}
		if err != nil {
			return err
		}
		p.ID = existing.ID
		return tx.Model(&existing).Updates(map[string]interface{}{
			"category_id": p.CategoryID,
			"name":        p.Name,
			"description": p.Description,
			"price":       p.Price,
			"stock":       p.Stock,
			"is_active":   p.IsActive,
			"image_url":   p.ImageURL,
		}).Error
	})
}
