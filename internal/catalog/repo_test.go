package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lifecart/orderflow-backend/pkg/db/models"
	"github.com/lifecart/orderflow-backend/pkg/enums"
	pkgerrors "github.com/lifecart/orderflow-backend/pkg/errors"
)

func setupCatalogTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:catalog_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	products := `
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  price NUMERIC NOT NULL,
  inventory_count INTEGER NOT NULL DEFAULT 0,
  category TEXT NOT NULL,
  lifecycle_stage TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(products).Error)
	return conn
}

func seedProduct(t *testing.T, repo Repository, name string, price float64, stock int, category enums.ProductCategory) *models.Product {
	t.Helper()
	product, err := repo.Create(context.Background(), &models.Product{
		Name:           name,
		Price:          decimal.NewFromFloat(price),
		InventoryCount: stock,
		Category:       category,
	})
	require.NoError(t, err)
	return product
}

func TestFindByIDAndList(t *testing.T) {
	conn := setupCatalogTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	powder := seedProduct(t, repo, "Protein Powder", 29.99, 5, enums.CategorySupplements)
	seedProduct(t, repo, "Yoga Mat", 19.99, 0, enums.CategoryFitness)

	found, err := repo.FindByID(ctx, powder.ID)
	require.NoError(t, err)
	assert.Equal(t, "Protein Powder", found.Name)
	assert.True(t, found.Price.Equal(decimal.NewFromFloat(29.99)))

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	all, err := repo.List(ctx, ProductFilters{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	inStock, err := repo.List(ctx, ProductFilters{InStock: true})
	require.NoError(t, err)
	require.Len(t, inStock, 1)
	assert.Equal(t, powder.ID, inStock[0].ID)

	category := enums.CategorySupplements
	supplements, err := repo.List(ctx, ProductFilters{Category: &category})
	require.NoError(t, err)
	require.Len(t, supplements, 1)
	assert.Equal(t, powder.ID, supplements[0].ID)
}

func TestFindByIDs(t *testing.T) {
	conn := setupCatalogTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	a := seedProduct(t, repo, "A", 10, 1, enums.CategorySupplements)
	b := seedProduct(t, repo, "B", 20, 1, enums.CategoryWellness)

	products, err := repo.FindByIDs(ctx, []uuid.UUID{a.ID, b.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, products, 2)

	none, err := repo.FindByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDecrementInventoryFloorCheck(t *testing.T) {
	conn := setupCatalogTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	product := seedProduct(t, repo, "Protein Powder", 29.99, 3, enums.CategorySupplements)

	require.NoError(t, repo.DecrementInventory(ctx, product.ID, 2))

	err := repo.DecrementInventory(ctx, product.ID, 2)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInventoryShortfall, typed.Code())
	assert.True(t, pkgerrors.IsRetryable(err))

	found, err := repo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, found.InventoryCount, "failed decrement must not change stock")

	require.NoError(t, repo.DecrementInventory(ctx, product.ID, 1))
	found, err = repo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, found.InventoryCount)
}

func TestDecrementInventoryNeverGoesNegative(t *testing.T) {
	conn := setupCatalogTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	product := seedProduct(t, repo, "Resistance Bands", 15.00, 5, enums.CategoryFitness)

	// Ten competing orders of 1 unit each against 5 units of stock: exactly
	// five succeed, the rest report a shortfall.
	succeeded := 0
	for i := 0; i < 10; i++ {
		if err := repo.DecrementInventory(ctx, product.ID, 1); err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 5, succeeded)

	found, err := repo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, found.InventoryCount)
}

func TestDecrementInventoryRejectsNonPositiveQuantity(t *testing.T) {
	conn := setupCatalogTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	product := seedProduct(t, repo, "A", 10, 5, enums.CategorySupplements)

	err := repo.DecrementInventory(ctx, product.ID, 0)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}
