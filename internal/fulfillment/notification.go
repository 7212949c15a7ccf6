package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/lifecart/orderflow-backend/internal/orders"
	"github.com/lifecart/orderflow-backend/pkg/config"
	pkgerrors "github.com/lifecart/orderflow-backend/pkg/errors"
	"github.com/lifecart/orderflow-backend/pkg/logger"
	"github.com/lifecart/orderflow-backend/pkg/mailer"
	"github.com/lifecart/orderflow-backend/pkg/queue"
)

// NotificationStage renders and delivers the order confirmation email.
// Delivery failures retry up to the budget; exhaustion never affects the
// order's state.
type NotificationStage struct {
	orders orders.Repository
	mailer mailer.Mailer
	email  config.EmailConfig
	logg   *logger.Logger
}

// NewNotificationStage builds the confirmation-email handler.
func NewNotificationStage(ordersRepo orders.Repository, m mailer.Mailer, email config.EmailConfig, logg *logger.Logger) (*NotificationStage, error) {
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if m == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &NotificationStage{orders: ordersRepo, mailer: m, email: email, logg: logg}, nil
}

func (s *NotificationStage) Handle(ctx context.Context, job queue.Job) error {
	var payload NotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding notification payload")
	}
	ctx = s.logg.WithOrderID(s.logg.WithJobID(ctx, job.ID.String()), payload.OrderID.String())

	order, err := s.orders.FindByID(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order vanished before notification")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading order")
	}

	lines := make([]mailer.ConfirmationLine, 0, len(order.Items))
	for _, item := range order.Items {
		name := item.ProductID.String()
		if item.Product != nil {
			name = item.Product.Name
		}
		lines = append(lines, mailer.ConfirmationLine{
			ProductName: name,
			Quantity:    item.Quantity,
			LineTotal:   item.LineTotal(),
		})
	}

	msg := mailer.ConfirmationMessage(s.email, mailer.Confirmation{
		OrderID:     order.ID.String(),
		UserEmail:   order.UserEmail,
		Lines:       lines,
		TotalAmount: order.TotalAmount,
		Status:      order.Status.String(),
	})
	if err := s.mailer.Send(ctx, msg); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delivering confirmation email")
	}

	s.logg.Info(s.logg.WithField(ctx, "to", order.UserEmail), "confirmation email sent")
	return nil
}
