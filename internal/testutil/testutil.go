// Package testutil holds the shared database fixture for service tests.
package testutil

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/velmart/backend/internal/database"
	"github.com/velmart/backend/internal/models"
	"github.com/velmart/backend/internal/repo"
)

// OpenDB returns a migrated in-memory database. The in-memory store lives and
// dies with its single connection, so the pool is pinned to one.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

// SeedProduct creates an active product with the given price and stock level.
func SeedProduct(t *testing.T, r *repo.GormRepo, name, sku, price string, stock int) *models.Product {
	t.Helper()

	p := &models.Product{
		Name:   name,
		SKU:    sku,
		Price:  decimal.RequireFromString(price),
		Active: true,
	}
	require.NoError(t, r.CreateProduct(context.Background(), p))
	require.NoError(t, r.UpsertStock(context.Background(), p.ID, stock))
	return p
}
