package orders

import (
	"fmt"

	"github.com/lifecart/orderflow-backend/pkg/enums"
	pkgerrors "github.com/lifecart/orderflow-backend/pkg/errors"
)

// StatusPair is the combined (status, payment_status) state of an order. The
// pair only moves forward; no transition revives a terminated order.
type StatusPair struct {
	Status        enums.OrderStatus
	PaymentStatus enums.PaymentStatus
}

func (p StatusPair) String() string {
	return fmt.Sprintf("%s/%s", p.Status, p.PaymentStatus)
}

var (
	StatePending   = StatusPair{enums.OrderStatusPending, enums.PaymentStatusPending}
	StateConfirmed = StatusPair{enums.OrderStatusConfirmed, enums.PaymentStatusPaid}
	StateFailed    = StatusPair{enums.OrderStatusFailed, enums.PaymentStatusFailed}
	StateShipped   = StatusPair{enums.OrderStatusShipped, enums.PaymentStatusPaid}
	StateDelivered = StatusPair{enums.OrderStatusDelivered, enums.PaymentStatusPaid}
)

// transitions enumerates every legal forward move. Shipping progression past
// confirmed/paid belongs to out-of-band processes but is enumerated here so
// the machine covers the full order lifecycle.
var transitions = map[StatusPair][]StatusPair{
	StatePending:   {StateConfirmed, StateFailed},
	StateConfirmed: {StateShipped},
	StateShipped:   {StateDelivered},
}

// CanTransition reports whether from may move to target.
func CanTransition(from, target StatusPair) bool {
	for _, allowed := range transitions[from] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ValidateTransition returns a state-conflict error for illegal moves.
func ValidateTransition(from, target StatusPair) error {
	if !CanTransition(from, target) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order cannot move from %s to %s", from, target)).
			WithDetails(map[string]any{
				"from": from.String(),
				"to":   target.String(),
			})
	}
	return nil
}
