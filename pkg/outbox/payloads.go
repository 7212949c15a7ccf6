package outbox

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderCreatedData is the order.created event payload. The dispatcher turns
// it into a payment job; the fields mirror what the fulfillment stages need
// without a database round trip.
type OrderCreatedData struct {
	OrderID          string          `json:"orderId"`
	UserEmail        string          `json:"userEmail"`
	PaymentMethodRef string          `json:"paymentMethodRef"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	ItemCount        int             `json:"itemCount"`
}

// DecodeOrderCreated unwraps an envelope carrying order.created data.
func DecodeOrderCreated(payload json.RawMessage) (PayloadEnvelope, OrderCreatedData, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return PayloadEnvelope{}, OrderCreatedData{}, fmt.Errorf("decoding outbox envelope: %w", err)
	}
	var data OrderCreatedData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return PayloadEnvelope{}, OrderCreatedData{}, fmt.Errorf("decoding order.created payload: %w", err)
	}
	return envelope, data, nil
}
