package payment

import (
	"context"

	pkgerrors "github.com/lifecart/orderflow-backend/pkg/errors"
)

// Static is a deterministic gateway for tests and local demos.
type Static struct {
	// Outcome selects the gateway's behavior.
	Outcome StaticOutcome
	// Calls counts charges attempted against this gateway.
	Calls int
}

type StaticOutcome int

const (
	// AlwaysApprove approves every charge.
	AlwaysApprove StaticOutcome = iota
	// AlwaysDecline declines every charge.
	AlwaysDecline
	// AlwaysError fails every charge with a retryable dependency error.
	AlwaysError
)

func (s *Static) Charge(ctx context.Context, charge Charge) (Receipt, error) {
	s.Calls++
	switch s.Outcome {
	case AlwaysDecline:
		return Receipt{}, Declined(DeclineReasonCardDeclined)
	case AlwaysError:
		return Receipt{}, pkgerrors.New(pkgerrors.CodeDependency, "payment processor unreachable")
	default:
		return Receipt{TransactionID: NewTransactionID(), AmountCharged: charge.Amount}, nil
	}
}
