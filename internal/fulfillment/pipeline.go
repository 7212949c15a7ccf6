package fulfillment

import (
	"github.com/lifecart/orderflow-backend/pkg/queue"
)

// Stages bundles the three pipeline handlers for worker registration.
type Stages struct {
	Payment      *PaymentStage
	Inventory    *InventoryStage
	Notification *NotificationStage
}

// Register binds every stage to its job type on the worker.
func (s Stages) Register(worker *queue.Worker) error {
	if err := worker.Register(JobTypePayment, s.Payment.Handle); err != nil {
		return err
	}
	if err := worker.Register(JobTypeInventory, s.Inventory.Handle); err != nil {
		return err
	}
	return worker.Register(JobTypeNotification, s.Notification.Handle)
}
