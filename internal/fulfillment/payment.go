package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lifecart/orderflow-backend/internal/orders"
	pkgerrors "github.com/lifecart/orderflow-backend/pkg/errors"
	"github.com/lifecart/orderflow-backend/pkg/logger"
	"github.com/lifecart/orderflow-backend/pkg/payment"
	"github.com/lifecart/orderflow-backend/pkg/queue"
)

type enqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) error
}

// PaymentStage charges the order and, on approval, chains the inventory and
// notification stages. A decline terminates the order; only transport errors
// are retried.
type PaymentStage struct {
	orders  orders.Repository
	gateway payment.Gateway
	queue   enqueuer
	logg    *logger.Logger
}

// NewPaymentStage builds the payment handler.
func NewPaymentStage(ordersRepo orders.Repository, gateway payment.Gateway, q enqueuer, logg *logger.Logger) (*PaymentStage, error) {
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if q == nil {
		return nil, fmt.Errorf("queue required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &PaymentStage{orders: ordersRepo, gateway: gateway, queue: q, logg: logg}, nil
}

func (s *PaymentStage) Handle(ctx context.Context, job queue.Job) error {
	var payload PaymentPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding payment payload")
	}
	ctx = s.logg.WithOrderID(s.logg.WithJobID(ctx, job.ID.String()), payload.OrderID.String())

	order, err := s.orders.FindByID(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order vanished before payment")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading order")
	}

	state := orders.StatusPair{Status: order.Status, PaymentStatus: order.PaymentStatus}
	switch state {
	case orders.StatePending:
		// First delivery: charge below.
	case orders.StateConfirmed:
		// Redelivered after the charge committed. The follow-up enqueues may
		// not have happened, so repeat them; both later stages carry their
		// own once-only guards.
		s.logg.Warn(ctx, "payment already captured, re-chaining follow-up stages")
		return s.enqueueFollowUps(ctx, payload.OrderID)
	default:
		// failed/failed or a later shipping state: nothing left for this
		// stage to do.
		s.logg.Info(ctx, "payment stage skipped, order already settled")
		return nil
	}

	receipt, err := s.gateway.Charge(ctx, payment.Charge{
		OrderID:          order.ID.String(),
		PaymentMethodRef: order.PaymentMethodRef,
		Amount:           order.TotalAmount,
	})
	if err != nil {
		if payment.IsDeclined(err) {
			// Terminal business outcome: the order fails and the chain stops.
			// Returning nil acks the job so the decline is never retried.
			if txErr := s.orders.TransitionStatus(ctx, order.ID, orders.StatePending, orders.StateFailed); txErr != nil {
				return txErr
			}
			s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "payment declined, order failed")
			return nil
		}
		return err
	}

	if err := s.orders.TransitionStatus(ctx, order.ID, orders.StatePending, orders.StateConfirmed); err != nil {
		return err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"transaction_id": receipt.TransactionID}), "payment captured")

	return s.enqueueFollowUps(ctx, order.ID)
}

func (s *PaymentStage) enqueueFollowUps(ctx context.Context, orderID uuid.UUID) error {
	inventory, err := NewInventoryJob(orderID)
	if err != nil {
		return err
	}
	if err := s.queue.Enqueue(ctx, inventory); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueueing inventory stage")
	}
	notification, err := NewNotificationJob(orderID)
	if err != nil {
		return err
	}
	if err := s.queue.Enqueue(ctx, notification); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueueing notification stage")
	}
	return nil
}
