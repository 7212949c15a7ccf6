package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lifecart/orderflow-backend/pkg/enums"
)

// Product is the canonical catalog listing. InventoryCount is the single
// source of truth for availability; only the fulfillment inventory stage
// writes it.
type Product struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name           string                `gorm:"column:name;not null"`
	Price          decimal.Decimal       `gorm:"column:price;type:numeric(10,2);not null"`
	InventoryCount int                   `gorm:"column:inventory_count;not null;default:0"`
	Category       enums.ProductCategory `gorm:"column:category;not null"`
	LifecycleStage *enums.LifecycleStage `gorm:"column:lifecycle_stage"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

const lowStockThreshold = 10

// InStock reports whether any units remain.
func (p Product) InStock() bool {
	return p.InventoryCount > 0
}

// LowStock reports whether the remaining units are at or under the low-stock
// threshold.
func (p Product) LowStock() bool {
	return p.InventoryCount > 0 && p.InventoryCount <= lowStockThreshold
}
