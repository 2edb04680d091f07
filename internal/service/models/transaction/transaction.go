package transaction

import (
	"time"

	"github.com/google/uuid"

	"github.com/corray333/backend-labs/payment/internal/service/models/currency"
)

// Status of a recorded payment event.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusProcessing Status = "processing"
	StatusCanceled   Status = "canceled"
)

func (s Status) String() string {
	return string(s)
}

// Record is one row of the append-only payment ledger. Rows are written
// once and never updated or deleted; the (OrderID, PaymentID, Status)
// triple is unique, which makes duplicate webhook deliveries idempotent.
type Record struct {
	ID          int64             `json:"id"`
	OrderID     uuid.UUID         `json:"orderId"`
	PaymentID   string            `json:"paymentId"`
	Method      string            `json:"method"`
	AmountCents int64             `json:"amountCents"`
	Currency    currency.Currency `json:"currency"`
	Status      Status            `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
}
