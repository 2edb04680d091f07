package order

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/corray333/backend-labs/payment/internal/service/models/money"
	"github.com/corray333/backend-labs/payment/internal/service/models/orderitem"
)

// Status is the fulfillment status of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) Value() (driver.Value, error) {
	return s.String(), nil
}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown order status %q", s)
	}
}

// allowedTransitions is the authoritative transition table. CANCELLED is
// terminal; DELIVERED permits only cancellation (post-delivery returns).
var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered, StatusCancelled},
	StatusDelivered: {StatusCancelled},
	StatusCancelled: {},
}

// CanTransition reports whether the transition from -> to is allowed.
// It is a pure function of the two statuses.
func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}

	return false
}

// PaymentStatus tracks the payment leg of an order, independent of the
// fulfillment status.
type PaymentStatus string

const (
	PaymentStatusAwaiting   PaymentStatus = "awaiting_payment"
	PaymentStatusPaid       PaymentStatus = "paid"
	PaymentStatusFailed     PaymentStatus = "payment_failed"
	PaymentStatusProcessing PaymentStatus = "payment_processing"
	PaymentStatusCanceled   PaymentStatus = "payment_canceled"
)

func (s PaymentStatus) String() string {
	return string(s)
}

// Order represents a purchase and its payment/fulfillment state.
// Total is fixed at creation from the item price snapshots and is never
// recomputed afterwards.
type Order struct {
	ID              uuid.UUID             `json:"id"`
	UserID          uuid.UUID             `json:"userId"`
	Status          Status                `json:"status"`
	PaymentStatus   PaymentStatus         `json:"paymentStatus"`
	Total           money.Money           `json:"total"`
	PaymentIntentID string                `json:"paymentIntentId,omitempty"`
	PaymentInfo     []byte                `json:"-"`
	TrackingNumber  string                `json:"trackingNumber,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
	Items           []orderitem.OrderItem `json:"items"`
}

// New assembles a PENDING order from item snapshots, computing the total.
func New(userID uuid.UUID, items []orderitem.OrderItem) (*Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("order must contain at least one item")
	}

	total := money.Money{}
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item %d: quantity must be greater than 0", i)
		}

		subtotal, err := item.Price.Mul(int64(item.Quantity))
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}

		if i == 0 {
			total = subtotal
			continue
		}
		total, err = total.Add(subtotal)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}

	return &Order{
		ID:            uuid.New(),
		UserID:        userID,
		Status:        StatusPending,
		PaymentStatus: PaymentStatusAwaiting,
		Total:         total,
		Items:         items,
	}, nil
}
