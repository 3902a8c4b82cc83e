package repository

import (
	"context"
	"testing"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository/repotest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListActiveOnly(t *testing.T) {
	db := repotest.NewDB(t)
	repo := NewCatalogRepository(db)
	ctx := context.Background()

	dates := repotest.SeedCategory(t, db, "dattes")
	choc := repotest.SeedCategory(t, db, "chocolat")
	hidden := repotest.SeedCategory(t, db, "archive")
	require.NoError(t, db.Model(hidden).Update("is_active", false).Error)

	repotest.SeedProduct(t, db, dates, "medjool", "9.90", 10)
	repotest.SeedProduct(t, db, choc, "truffes", "12.00", 5)
	old := repotest.SeedProduct(t, db, choc, "ancien", "1.00", 5)
	require.NoError(t, db.Model(old).Update("is_active", false).Error)

	cats, err := repo.ListActiveCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "chocolat", cats[0].Slug)
	assert.Equal(t, "dattes", cats[1].Slug)

	products, err := repo.ListActiveProducts(ctx, "")
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "medjool", products[0].Slug)
	require.NotNil(t, products[0].Category)
	assert.Equal(t, "dattes", products[0].Category.Slug)

	filtered, err := repo.ListActiveProducts(ctx, "chocolat")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "truffes", filtered[0].Slug)
}

func TestGetActiveProductBySlug(t *testing.T) {
	db := repotest.NewDB(t)
	repo := NewCatalogRepository(db)
	cat := repotest.SeedCategory(t, db, "jus")
	p := repotest.SeedProduct(t, db, cat, "citron-menthe", "4.50", 8)

	got, err := repo.GetActiveProductBySlug(context.Background(), "citron-menthe")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.True(t, decimal.RequireFromString("4.50").Equal(got.Price))

	require.NoError(t, db.Model(p).Update("is_active", false).Error)
	_, err = repo.GetActiveProductBySlug(context.Background(), "citron-menthe")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = repo.GetActiveProductBySlug(context.Background(), "nope")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUpsertBySlugIsIdempotent(t *testing.T) {
	db := repotest.NewDB(t)
	repo := NewCatalogRepository(db)
	ctx := context.Background()

	c := &models.Category{Name: "Dattes", Slug: "dattes", IsActive: true}
	require.NoError(t, repo.UpsertCategory(ctx, c))
	firstID := c.ID

	p := &models.Product{CategoryID: c.ID, Name: "Medjool", Slug: "medjool", Price: decimal.NewFromInt(9), Stock: 10, IsActive: true}
	require.NoError(t, repo.UpsertProduct(ctx, p))

	require.NoError(t, repo.DeactivateAll(ctx))

	again := &models.Category{Name: "Dattes & noix", Slug: "dattes", IsActive: true}
	require.NoError(t, repo.UpsertCategory(ctx, again))
	assert.Equal(t, firstID, again.ID)

	p2 := &models.Product{CategoryID: again.ID, Name: "Medjool premium", Slug: "medjool", Price: decimal.NewFromInt(11), Stock: 12, IsActive: true}
	require.NoError(t, repo.UpsertProduct(ctx, p2))
	assert.Equal(t, p.ID, p2.ID)

	var count int64
	require.NoError(t, db.Model(&models.Product{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	got, err := repo.GetActiveProductBySlug(ctx, "medjool")
	require.NoError(t, err)
	assert.Equal(t, "Medjool premium", got.Name)
	assert.Equal(t, 12, got.Stock)
}

func TestUserRepositoryDuplicateEmail(t *testing.T) {
	db := repotest.NewDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.User{Email: "x@example.com", Password: "h", IsActive: true}))
	err := repo.Create(ctx, &models.User{Email: "x@example.com", Password: "h", IsActive: true})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	exists, err := repo.ExistsByEmail(ctx, "x@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = repo.GetByEmail(ctx, "missing@example.com")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
