package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lifecart/orderflow-backend/pkg/config"
	"github.com/lifecart/orderflow-backend/pkg/logger"
)

var errLoggerRequired = errors.New("mailer logger is required")

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	From    string
	Subject string
	Body    string
}

// Mailer delivers rendered messages. The logging implementation writes them
// to the service log; a real provider integration satisfies the same
// interface.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// ConfirmationLine is one order line in the confirmation email.
type ConfirmationLine struct {
	ProductName string
	Quantity    int
	LineTotal   decimal.Decimal
}

// Confirmation carries everything the confirmation template needs.
type Confirmation struct {
	OrderID     string
	UserEmail   string
	Lines       []ConfirmationLine
	TotalAmount decimal.Decimal
	Status      string
}

// RenderConfirmation produces the plain-text order confirmation body.
func RenderConfirmation(c Confirmation) string {
	var items strings.Builder
	for _, line := range c.Lines {
		fmt.Fprintf(&items, "- %s x%d - $%s\n", line.ProductName, line.Quantity, line.LineTotal.StringFixed(2))
	}

	return fmt.Sprintf(`========================================
Order Confirmation - Order #%s
========================================

Dear Customer,

Thank you for your order! Your wellness products are being prepared.

Order Details:
%s
Total: $%s
Status: %s

We'll send you another email when your order ships.

Questions? Reply to this email or visit our support center.

Best regards,
The Lifecart Team
========================================
`, c.OrderID, items.String(), c.TotalAmount.StringFixed(2), titleize(c.Status))
}

// ConfirmationMessage renders the full message for a confirmation.
func ConfirmationMessage(cfg config.EmailConfig, c Confirmation) Message {
	return Message{
		To:      c.UserEmail,
		From:    fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress),
		Subject: fmt.Sprintf("Order Confirmation - Order #%s", c.OrderID),
		Body:    RenderConfirmation(c),
	}
}

func titleize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Logging writes messages to the structured log instead of delivering them.
type Logging struct {
	logger *logger.Logger
}

// NewLogging builds the log-only mailer.
func NewLogging(logg *logger.Logger) (*Logging, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	return &Logging{logger: logg}, nil
}

func (l *Logging) Send(ctx context.Context, msg Message) error {
	ctx = l.logger.WithFields(ctx, map[string]any{
		"to":      msg.To,
		"subject": msg.Subject,
	})
	l.logger.Info(ctx, "email delivered\n"+msg.Body)
	return nil
}
