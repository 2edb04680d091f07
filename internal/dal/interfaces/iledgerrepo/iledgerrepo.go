package iledgerrepo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/corray333/backend-labs/payment/internal/service/models/transaction"
)

// ErrDuplicate is returned when a record with the same
// (order_id, payment_id, status) triple already exists. Callers treat it as
// a successful idempotent replay.
var ErrDuplicate = errors.New("transaction already recorded")

// ILedgerRepository is an interface for the append-only payment ledger.
type ILedgerRepository interface {
	// Append inserts a record; ErrDuplicate on uniqueness violation.
	Append(ctx context.Context, rec transaction.Record) (transaction.Record, error)

	// Exists reports whether a record with the triple is present.
	Exists(ctx context.Context, orderID uuid.UUID, paymentID string, status transaction.Status) (bool, error)

	// Query returns all records for an order ordered by creation time.
	Query(ctx context.Context, orderID uuid.UUID) ([]transaction.Record, error)
}
