package iorderrepo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/corray333/backend-labs/payment/internal/service/models/order"
)

var (
	// ErrNotFound is returned when no order exists with the given id.
	ErrNotFound = errors.New("order not found")
	// ErrConflict is returned when a compare-and-swap status update
	// matched no row, i.e. the order changed underneath the caller.
	ErrConflict = errors.New("order status changed concurrently")
)

// StatusUpdate is a compare-and-swap status change. The update applies only
// if the stored status still equals From. Zero-valued optional fields are
// left unchanged.
type StatusUpdate struct {
	From          order.Status
	To            order.Status
	PaymentStatus order.PaymentStatus
	PaymentInfo   []byte
}

// IOrderRepository is an interface for the order postgres repository.
type IOrderRepository interface {
	Insert(ctx context.Context, o *order.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error)

	// UpdateStatus applies a CAS status change; ErrConflict when the
	// observed status no longer matches.
	UpdateStatus(ctx context.Context, id uuid.UUID, upd StatusUpdate) error

	// SetPaymentIntent records the gateway intent id and a provisional
	// payment status without touching the order status.
	SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string, ps order.PaymentStatus) error

	// SetPaymentStatus updates only the payment leg of the order.
	SetPaymentStatus(ctx context.Context, id uuid.UUID, ps order.PaymentStatus) error

	// ListStalePending returns PENDING orders with an intent attached whose
	// last update is older than the cutoff, for the reconciliation sweep.
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]order.Order, error)
}
