package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/lifecart/orderflow-backend/internal/catalog"
	"github.com/lifecart/orderflow-backend/internal/orders"
	"github.com/lifecart/orderflow-backend/pkg/enums"
	pkgerrors "github.com/lifecart/orderflow-backend/pkg/errors"
	"github.com/lifecart/orderflow-backend/pkg/logger"
	"github.com/lifecart/orderflow-backend/pkg/queue"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// InventoryStage debits stock for every line of a paid order in one
// transaction. A shortfall aborts the whole transaction and re-queues the job
// so an operator can restock; the order keeps its confirmed/paid state.
type InventoryStage struct {
	orders  orders.Repository
	catalog catalog.Repository
	tx      txRunner
	logg    *logger.Logger
}

// NewInventoryStage builds the stock-decrement handler.
func NewInventoryStage(ordersRepo orders.Repository, catalogRepo catalog.Repository, tx txRunner, logg *logger.Logger) (*InventoryStage, error) {
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &InventoryStage{orders: ordersRepo, catalog: catalogRepo, tx: tx, logg: logg}, nil
}

func (s *InventoryStage) Handle(ctx context.Context, job queue.Job) error {
	var payload InventoryPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding inventory payload")
	}
	ctx = s.logg.WithOrderID(s.logg.WithJobID(ctx, job.ID.String()), payload.OrderID.String())

	order, err := s.orders.FindByID(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order vanished before inventory adjustment")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading order")
	}
	if order.Status != enums.OrderStatusConfirmed {
		// Only paid orders debit stock. A failed order never reaches this
		// stage through the chain, so this covers stray redeliveries.
		s.logg.Warn(ctx, "inventory stage skipped, order not confirmed")
		return nil
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)
		catalogRepo := s.catalog.WithTx(tx)

		claimed, err := ordersRepo.MarkInventoryAdjusted(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claiming inventory adjustment")
		}
		if !claimed {
			s.logg.Info(ctx, "inventory already adjusted for order")
			return nil
		}

		for _, item := range order.Items {
			if err := catalogRepo.DecrementInventory(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		s.logg.Info(ctx, "inventory adjusted for order")
		return nil
	})
}
