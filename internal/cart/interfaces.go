package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lifecart/orderflow-backend/pkg/db/models"
)

// Repository defines persistence operations for carts and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindBySession(ctx context.Context, sessionID string) (*models.Cart, error)
	FindOrCreateBySession(ctx context.Context, sessionID string) (*models.Cart, error)
	FindItemByID(ctx context.Context, itemID uuid.UUID) (*models.CartItem, error)
	FindItem(ctx context.Context, cartID, productID uuid.UUID) (*models.CartItem, error)
	CreateItem(ctx context.Context, item *models.CartItem) error
	UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	ClearItems(ctx context.Context, cartID uuid.UUID) error
}

// Service exposes the cart mutations the checkout surface calls.
type Service interface {
	GetBySession(ctx context.Context, sessionID string) (*models.Cart, error)
	AddItem(ctx context.Context, input AddItemInput) (*models.Cart, error)
	SetItemQuantity(ctx context.Context, input SetItemQuantityInput) (*models.Cart, error)
}

// AddItemInput carries an add-to-cart request.
type AddItemInput struct {
	SessionID string
	ProductID uuid.UUID
	Quantity  int
}

// SetItemQuantityInput carries a line-quantity overwrite. Zero or negative
// quantity removes the line.
type SetItemQuantityInput struct {
	SessionID  string
	CartItemID uuid.UUID
	Quantity   int
}
