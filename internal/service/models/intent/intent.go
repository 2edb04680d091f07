package intent

// Status is a payment intent status as reported by the gateway. The set is
// open: values outside the ones named here are treated as still processing.
type Status string

const (
	StatusSucceeded             Status = "SUCCEEDED"
	StatusRequiresPaymentMethod Status = "REQUIRES_PAYMENT_METHOD"
	StatusRequiresCapture       Status = "REQUIRES_CAPTURE"
	StatusCancelled             Status = "CANCELLED"
	StatusPending               Status = "PENDING"
)

func (s Status) String() string {
	return string(s)
}

// PaymentIntent is the local mirror of the gateway-owned payment intent.
// The gateway is the only source of truth for Status; this struct carries
// whatever the last authoritative read returned.
type PaymentIntent struct {
	ID              string `json:"id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Status          Status `json:"status"`
	ClientSecret    string `json:"client_secret,omitempty"`
	MerchantOrderID string `json:"merchant_order_id,omitempty"`
}
