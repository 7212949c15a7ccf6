package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lifecart/orderflow-backend/pkg/enums"
)

// Order is the immutable record assembled from a cart at checkout. Status and
// PaymentStatus are the only mutable fields and are written exclusively by the
// fulfillment pipeline stages.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserEmail        string              `gorm:"column:user_email;not null"`
	PaymentMethodRef string              `gorm:"column:payment_method_ref;not null"`
	Status           enums.OrderStatus   `gorm:"column:status;not null;default:'pending'"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;not null;default:'pending'"`
	TotalAmount      decimal.Decimal     `gorm:"column:total_amount;type:numeric(10,2);not null"`
	// InventoryAdjustedAt guards the stock debit: set exactly once by the
	// fulfillment inventory stage so a redelivered job cannot decrement twice.
	InventoryAdjustedAt *time.Time  `gorm:"column:inventory_adjusted_at"`
	Items               []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

// ItemCount sums the quantities of all loaded line items.
func (o Order) ItemCount() int {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}
	return count
}
