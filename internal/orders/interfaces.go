package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lifecart/orderflow-backend/pkg/db/models"
)

// Repository defines persistence operations for orders and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateItems(ctx context.Context, items []models.OrderItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filters ListFilters) ([]models.Order, error)
	TransitionStatus(ctx context.Context, orderID uuid.UUID, from, target StatusPair) error
	MarkInventoryAdjusted(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// ListFilters narrows order listings.
type ListFilters struct {
	UserEmail string
	Limit     int
}

// Service exposes the checkout operation and order reads.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, filters ListFilters) ([]models.Order, error)
}

// CreateOrderInput carries a checkout request.
type CreateOrderInput struct {
	SessionID        string
	Email            string
	PaymentMethodRef string
}
