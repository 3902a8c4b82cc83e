// Package repotest opens throwaway SQLite databases with the storefront
// schema for tests.
package repotest

import (
	"fmt"
	"testing"

	"github.com/example/storefront/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated in-memory database private to t. A single
// connection serializes transactions the way row locks would on MySQL.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// SeedCategory inserts an active category.
func SeedCategory(t testing.TB, db *gorm.DB, slug string) *models.Category {
	t.Helper()
	c := &models.Category{Name: slug, Slug: slug, IsActive: true}
	require.NoError(t, db.Create(c).Error)
	return c
}

// SeedProduct inserts an active product in category c.
func SeedProduct(t testing.TB, db *gorm.DB, c *models.Category, slug, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		CategoryID: c.ID,
		Name:       slug,
		Slug:       slug,
		Price:      decimal.RequireFromString(price),
		Stock:      stock,
		IsActive:   true,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// SeedUser inserts an active user with an unusable password hash.
func SeedUser(t testing.TB, db *gorm.DB, email string) *models.User {
	t.Helper()
	u := &models.User{Email: email, Password: "!", IsActive: true}
	require.NoError(t, db.Create(u).Error)
	return u
}
