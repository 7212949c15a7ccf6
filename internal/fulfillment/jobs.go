package fulfillment

import (
	"github.com/google/uuid"

	"github.com/lifecart/orderflow-backend/pkg/queue"
)

// Job types for the three pipeline stages.
const (
	JobTypePayment      = "order.payment"
	JobTypeInventory    = "order.inventory"
	JobTypeNotification = "order.notification"
)

// Retry budgets per stage. Payment retries cover transport errors only;
// business declines terminate without retry.
const (
	PaymentRetryBudget      = 3
	InventoryRetryBudget    = 5
	NotificationRetryBudget = 3
)

// PaymentPayload drives the payment stage.
type PaymentPayload struct {
	OrderID          uuid.UUID `json:"orderId"`
	PaymentMethodRef string    `json:"paymentMethodRef"`
}

// InventoryPayload drives the inventory stage.
type InventoryPayload struct {
	OrderID uuid.UUID `json:"orderId"`
}

// NotificationPayload drives the notification stage.
type NotificationPayload struct {
	OrderID uuid.UUID `json:"orderId"`
}

// NewPaymentJob builds the critical-lane job that starts an order's pipeline.
func NewPaymentJob(orderID uuid.UUID, paymentMethodRef string) (queue.Job, error) {
	return queue.NewJob(JobTypePayment, queue.LaneCritical, PaymentPayload{
		OrderID:          orderID,
		PaymentMethodRef: paymentMethodRef,
	}, PaymentRetryBudget)
}

// NewInventoryJob builds the default-lane stock-decrement job.
func NewInventoryJob(orderID uuid.UUID) (queue.Job, error) {
	return queue.NewJob(JobTypeInventory, queue.LaneDefault, InventoryPayload{OrderID: orderID}, InventoryRetryBudget)
}

// NewNotificationJob builds the low-lane confirmation-email job.
func NewNotificationJob(orderID uuid.UUID) (queue.Job, error) {
	return queue.NewJob(JobTypeNotification, queue.LaneLow, NotificationPayload{OrderID: orderID}, NotificationRetryBudget)
}
