package cart

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/lifecart/orderflow-backend/pkg/db/models"
)

// CleanupRepository serves the scheduled abandoned-cart sweep. It is kept
// separate from Repository so request handlers never see bulk deletes.
type CleanupRepository struct {
	db *gorm.DB
}

func NewCleanupRepository(db *gorm.DB) *CleanupRepository {
	return &CleanupRepository{db: db}
}

// DeleteAbandonedBefore removes carts untouched since the cutoff. Cart items
// go with them through the foreign key cascade.
func (r *CleanupRepository) DeleteAbandonedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	result := conn.WithContext(ctx).
		Where("updated_at < ?", cutoff).
		Delete(&models.Cart{})
	return result.RowsAffected, result.Error
}
