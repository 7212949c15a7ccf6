package cart

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lifecart/orderflow-backend/internal/catalog"
	"github.com/lifecart/orderflow-backend/pkg/db/models"
	"github.com/lifecart/orderflow-backend/pkg/enums"
	pkgerrors "github.com/lifecart/orderflow-backend/pkg/errors"
	"github.com/lifecart/orderflow-backend/pkg/logger"
)

func setupCartTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:cart_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  price NUMERIC NOT NULL,
  inventory_count INTEGER NOT NULL DEFAULT 0,
  category TEXT NOT NULL,
  lifecycle_stage TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_carts_session_id ON carts(session_id);`,
		`CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_cart_items_cart_product ON cart_items(cart_id, product_id);`,
	} {
		require.NoError(t, conn.Exec(ddl).Error)
	}
	return conn
}

func newCartService(t *testing.T, conn *gorm.DB) (Service, catalog.Repository) {
	t.Helper()
	catalogRepo := catalog.NewRepository(conn)
	svc, err := NewService(NewRepository(conn), catalogRepo, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	require.NoError(t, err)
	return svc, catalogRepo
}

func seedCartProduct(t *testing.T, repo catalog.Repository, name string, price float64, stock int) *models.Product {
	t.Helper()
	product, err := repo.Create(context.Background(), &models.Product{
		Name:           name,
		Price:          decimal.NewFromFloat(price),
		InventoryCount: stock,
		Category:       enums.CategoryFitness,
	})
	require.NoError(t, err)
	return product
}

func TestGetBySessionCreatesLazily(t *testing.T) {
	conn := setupCartTestDB(t)
	svc, _ := newCartService(t, conn)
	ctx := context.Background()

	first, err := svc.GetBySession(ctx, "session-1")
	require.NoError(t, err)
	assert.True(t, first.Empty())

	second, err := svc.GetBySession(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "same session must reuse the cart")

	other, err := svc.GetBySession(ctx, "session-2")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestAddItemMergesExistingLine(t *testing.T) {
	conn := setupCartTestDB(t)
	svc, catalogRepo := newCartService(t, conn)
	ctx := context.Background()

	product := seedCartProduct(t, catalogRepo, "Protein Powder", 29.99, 10)

	cart, err := svc.AddItem(ctx, AddItemInput{SessionID: "s1", ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	cart, err = svc.AddItem(ctx, AddItemInput{SessionID: "s1", ProductID: product.ID, Quantity: 3})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1, "same product must merge into one line")
	assert.Equal(t, 5, cart.Items[0].Quantity)
	assert.True(t, cart.Total().Equal(decimal.NewFromFloat(149.95)))
}

func TestAddItemRejectsNonPositiveQuantity(t *testing.T) {
	conn := setupCartTestDB(t)
	svc, catalogRepo := newCartService(t, conn)
	ctx := context.Background()

	product := seedCartProduct(t, catalogRepo, "Yoga Mat", 19.99, 5)

	for _, qty := range []int{0, -1} {
		_, err := svc.AddItem(ctx, AddItemInput{SessionID: "s1", ProductID: product.ID, Quantity: qty})
		require.Error(t, err)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
		assert.Contains(t, typed.Message(), "greater than 0")
	}

	cart, err := svc.GetBySession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, cart.Empty(), "failed add must leave the cart unchanged")
}

func TestAddItemUnknownProduct(t *testing.T) {
	conn := setupCartTestDB(t)
	svc, _ := newCartService(t, conn)

	_, err := svc.AddItem(context.Background(), AddItemInput{SessionID: "s1", ProductID: uuid.New(), Quantity: 1})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestAddItemBoundedByInventory(t *testing.T) {
	conn := setupCartTestDB(t)
	svc, catalogRepo := newCartService(t, conn)
	ctx := context.Background()

	product := seedCartProduct(t, catalogRepo, "Resistance Bands", 15.00, 3)

	cart, err := svc.AddItem(ctx, AddItemInput{SessionID: "s1", ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)

	// 2 in cart + 2 requested exceeds the 3 in stock.
	_, err = svc.AddItem(ctx, AddItemInput{SessionID: "s1", ProductID: product.ID, Quantity: 2})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientInventory, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3, details["available"])
	assert.Equal(t, 4, details["requested"])

	cart, err = svc.GetBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity, "failed add must not change the line")
}

func TestSetItemQuantityOverwrites(t *testing.T) {
	conn := setupCartTestDB(t)
	svc, catalogRepo := newCartService(t, conn)
	ctx := context.Background()

	product := seedCartProduct(t, catalogRepo, "Protein Powder", 29.99, 10)
	cart, err := svc.AddItem(ctx, AddItemInput{SessionID: "s1", ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)

	cart, err = svc.SetItemQuantity(ctx, SetItemQuantityInput{SessionID: "s1", CartItemID: cart.Items[0].ID, Quantity: 7})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 7, cart.Items[0].Quantity)
}

func TestSetItemQuantityZeroRemovesLine(t *testing.T) {
	conn := setupCartTestDB(t)
	svc, catalogRepo := newCartService(t, conn)
	ctx := context.Background()

	product := seedCartProduct(t, catalogRepo, "Yoga Mat", 19.99, 5)
	cart, err := svc.AddItem(ctx, AddItemInput{SessionID: "s1", ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)

	cart, err = svc.SetItemQuantity(ctx, SetItemQuantityInput{SessionID: "s1", CartItemID: cart.Items[0].ID, Quantity: 0})
	require.NoError(t, err, "quantity zero is a removal, not an error")
	assert.True(t, cart.Empty())
}

func TestSetItemQuantityBoundedByInventory(t *testing.T) {
	conn := setupCartTestDB(t)
	svc, catalogRepo := newCartService(t, conn)
	ctx := context.Background()

	product := seedCartProduct(t, catalogRepo, "Resistance Bands", 15.00, 3)
	cart, err := svc.AddItem(ctx, AddItemInput{SessionID: "s1", ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = svc.SetItemQuantity(ctx, SetItemQuantityInput{SessionID: "s1", CartItemID: cart.Items[0].ID, Quantity: 4})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientInventory, typed.Code())

	cart, err = svc.GetBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, cart.Items[0].Quantity)
}

func TestSetItemQuantityDeletedProduct(t *testing.T) {
	conn := setupCartTestDB(t)
	svc, catalogRepo := newCartService(t, conn)
	ctx := context.Background()

	product := seedCartProduct(t, catalogRepo, "Foam Roller", 24.99, 5)
	cart, err := svc.AddItem(ctx, AddItemInput{SessionID: "s1", ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)

	// The product disappears after the line was added, so the preload comes
	// back empty and the stock bound has nothing to check against.
	require.NoError(t, conn.Exec(`DELETE FROM products WHERE id = ?`, product.ID).Error)

	_, err = svc.SetItemQuantity(ctx, SetItemQuantityInput{SessionID: "s1", CartItemID: cart.Items[0].ID, Quantity: 4})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())

	cart, err = svc.GetBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity, "failed update must not change the line")
}

func TestSetItemQuantityRejectsForeignLine(t *testing.T) {
	conn := setupCartTestDB(t)
	svc, catalogRepo := newCartService(t, conn)
	ctx := context.Background()

	product := seedCartProduct(t, catalogRepo, "Protein Powder", 29.99, 10)
	cart, err := svc.AddItem(ctx, AddItemInput{SessionID: "owner", ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = svc.GetBySession(ctx, "intruder")
	require.NoError(t, err)

	_, err = svc.SetItemQuantity(ctx, SetItemQuantityInput{SessionID: "intruder", CartItemID: cart.Items[0].ID, Quantity: 5})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}
