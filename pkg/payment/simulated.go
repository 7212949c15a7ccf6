package payment

import (
	"context"
	"hash/fnv"

	"github.com/lifecart/orderflow-backend/pkg/logger"
)

const defaultApproveRate = 0.9

// Simulated approves a configurable fraction of charges and declines the
// rest. It stands in for a real processor in development and staging. The
// roll is a hash of the order id and payment method, so the same charge
// always resolves the same way: a redelivered payment job cannot flip an
// earlier decline into an approval.
type Simulated struct {
	approveRate float64
	logger      *logger.Logger

	roll func(charge Charge) float64
}

// NewSimulated builds a simulated gateway approving approveRate of charges.
// A zero rate declines everything; pass a negative rate for the default.
func NewSimulated(approveRate float64, logg *logger.Logger) (*Simulated, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	if approveRate < 0 {
		approveRate = defaultApproveRate
	}
	if approveRate > 1 {
		return nil, errInvalidRate
	}
	return &Simulated{
		approveRate: approveRate,
		logger:      logg,
		roll:        hashRoll,
	}, nil
}

// Charge approves or declines based on the charge's roll against the rate.
func (s *Simulated) Charge(ctx context.Context, charge Charge) (Receipt, error) {
	roll := s.roll(charge)

	ctx = s.logger.WithFields(ctx, map[string]any{
		"order_id": charge.OrderID,
		"amount":   charge.Amount.StringFixed(2),
	})

	if roll >= s.approveRate {
		s.logger.Info(ctx, "simulated charge declined")
		return Receipt{}, Declined(DeclineReasonCardDeclined)
	}

	receipt := Receipt{
		TransactionID: NewTransactionID(),
		AmountCharged: charge.Amount,
	}
	s.logger.Info(s.logger.WithFields(ctx, map[string]any{"transaction_id": receipt.TransactionID}), "simulated charge approved")
	return receipt, nil
}

// hashRoll maps the charge identity onto [0, 1) via FNV-1a.
func hashRoll(charge Charge) float64 {
	h := fnv.New64a()
	h.Write([]byte(charge.OrderID))
	h.Write([]byte{'|'})
	h.Write([]byte(charge.PaymentMethodRef))
	return float64(h.Sum64()>>11) / float64(uint64(1)<<53)
}
