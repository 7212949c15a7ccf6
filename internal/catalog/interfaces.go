package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lifecart/orderflow-backend/pkg/db/models"
	"github.com/lifecart/orderflow-backend/pkg/enums"
)

// Repository defines persistence operations for the product catalog and its
// inventory counts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, product *models.Product) (*models.Product, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	List(ctx context.Context, filters ProductFilters) ([]models.Product, error)
	DecrementInventory(ctx context.Context, productID uuid.UUID, quantity int) error
}

// ProductFilters narrows catalog listings.
type ProductFilters struct {
	Category *enums.ProductCategory
	InStock  bool
}
