package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lifecart/orderflow-backend/pkg/config"
	pkgerrors "github.com/lifecart/orderflow-backend/pkg/errors"
	"github.com/lifecart/orderflow-backend/pkg/logger"
)

const (
	ModeSimulated = "simulated"

	// DeclineReasonCardDeclined is the only decline the simulated gateway
	// produces. Real processors return richer reason codes.
	DeclineReasonCardDeclined = "card_declined"
)

var (
	errLoggerRequired = errors.New("payment logger is required")
	errInvalidMode    = fmt.Errorf("payment mode must be %q", ModeSimulated)
	errInvalidRate    = errors.New("payment approve rate must be within [0, 1]")
)

// Charge is a request to capture funds for an order.
type Charge struct {
	OrderID          string
	PaymentMethodRef string
	Amount           decimal.Decimal
	Currency         string
}

// Receipt is the processor's answer for an approved charge.
type Receipt struct {
	TransactionID string
	AmountCharged decimal.Decimal
}

// Gateway captures funds. Declines surface as a CodePaymentDeclined error
// so callers can tell a terminal business outcome from a transient
// processor failure.
type Gateway interface {
	Charge(ctx context.Context, charge Charge) (Receipt, error)
}

// Declined wraps a processor decline with its reason code.
func Declined(reason string) error {
	return pkgerrors.New(pkgerrors.CodePaymentDeclined, "payment declined").
		WithDetails(map[string]any{"reason": reason})
}

// IsDeclined reports whether err is a processor decline.
func IsDeclined(err error) bool {
	var domainErr *pkgerrors.Error
	return errors.As(err, &domainErr) && domainErr.Code() == pkgerrors.CodePaymentDeclined
}

// NewTransactionID returns a processor-style transaction reference.
func NewTransactionID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		panic(fmt.Sprintf("payment: transaction id entropy unavailable: %v", err))
	}
	return "txn_" + hex.EncodeToString(buf)
}

// NewGateway builds the gateway named by cfg.Mode.
func NewGateway(cfg config.PaymentConfig, logg *logger.Logger) (Gateway, error) {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = ModeSimulated
	}
	if mode != ModeSimulated {
		return nil, errInvalidMode
	}
	return NewSimulated(cfg.ApproveRate, logg)
}
