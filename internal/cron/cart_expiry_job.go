package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/lifecart/orderflow-backend/pkg/logger"
)

const cartExpiryDays = 7

type CartExpiryJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository cartExpiryRepo
	TTLDays    int
}

type cartExpiryRepo interface {
	DeleteAbandonedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewCartExpiryJob builds the job that drops session carts nobody has
// touched inside the TTL window. Checkout already empties converted carts,
// so everything this deletes was abandoned.
func NewCartExpiryJob(params CartExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	ttl := params.TTLDays
	if ttl <= 0 {
		ttl = cartExpiryDays
	}
	return &cartExpiryJob{
		logg: params.Logger,
		db:   params.DB,
		repo: params.Repository,
		ttl:  ttl,
		now:  time.Now,
	}, nil
}

type cartExpiryJob struct {
	logg *logger.Logger
	db   txRunner
	repo cartExpiryRepo
	ttl  int
	now  func() time.Time
}

func (j *cartExpiryJob) Name() string { return "cart-expiry" }

func (j *cartExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.ttl) * 24 * time.Hour)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeleteAbandonedBefore(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("cart expiry: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":        cutoff,
		"ttl_days":      j.ttl,
		"carts_deleted": deleted,
	})
	j.logg.Info(logCtx, "abandoned cart cleanup complete")
	return nil
}
