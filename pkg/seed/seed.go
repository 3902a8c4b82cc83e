// Package seed loads the demo catalog.
package seed

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

type Category struct {
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
}

type Product struct {
	Name        string          `yaml:"name"`
	Slug        string          `yaml:"slug"`
	Category    string          `yaml:"category"`
	Description string          `yaml:"description"`
	Price       decimal.Decimal `yaml:"price"`
	Stock       int             `yaml:"stock"`
	ImageURL    string          `yaml:"image_url"`
}

type Catalog struct {
	Categories []Category `yaml:"categories"`
	Products   []Product  `yaml:"products"`
}

// Default returns the bundled catalog.
func Default() (*Catalog, error) {
	return Parse(catalogYAML)
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &c, nil
}

type Result struct {
	Categories int
	Products   int
}

// Apply deactivates everything, then upserts the catalog by slug, so running
// it twice leaves the same rows behind.
func Apply(ctx context.Context, repo *repository.CatalogRepository, c *Catalog) (*Result, error) {
	if err := repo.DeactivateAll(ctx); err != nil {
		return nil, err
	}

	ids := make(map[string]uint, len(c.Categories))
	for _, in := range c.Categories {
		cat := &models.Category{
			Name:        in.Name,
			Slug:        in.Slug,
			Description: in.Description,
			IsActive:    true,
		}
		if err := repo.UpsertCategory(ctx, cat); err != nil {
			return nil, fmt.Errorf("category %s: %w", in.Slug, err)
		}
		ids[in.Slug] = cat.ID
	}

	for _, in := range c.Products {
		categoryID, ok := ids[in.Category]
		if !ok {
			return nil, fmt.Errorf("product %s: unknown category %q", in.Slug, in.Category)
		}
		p := &models.Product{
			CategoryID:  categoryID,
			Name:        in.Name,
			Slug:        in.Slug,
			Description: in.Description,
			Price:       in.Price,
			Stock:       in.Stock,
			IsActive:    true,
			ImageURL:    in.ImageURL,
		}
		if err := repo.UpsertProduct(ctx, p); err != nil {
			return nil, fmt.Errorf("product %s: %w", in.Slug, err)
		}
	}

	return &Result{Categories: len(c.Categories), Products: len(c.Products)}, nil
}
