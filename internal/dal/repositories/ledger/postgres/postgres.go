package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/iledgerrepo"
	"github.com/corray333/backend-labs/payment/internal/dal/postgres"
	"github.com/corray333/backend-labs/payment/internal/service/models/currency"
	"github.com/corray333/backend-labs/payment/internal/service/models/transaction"
)

const uniqueViolationCode = "23505"

// PostgresLedgerRepository is the append-only payment ledger. Rows are
// inserted once and never updated or deleted; the unique index on
// (order_id, payment_id, status) turns duplicate webhook deliveries into
// ErrDuplicate instead of double rows.
type PostgresLedgerRepository struct {
	conn postgres.Querier
}

func NewPostgresLedgerRepository(conn postgres.Querier) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{
		conn: conn,
	}
}

// Append inserts a transaction record.
func (r *PostgresLedgerRepository) Append(ctx context.Context, rec transaction.Record) (transaction.Record, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query, args, err := sq.Insert("payment_transactions").
		Columns(
			"order_id",
			"payment_id",
			"method",
			"amount_cents",
			"currency",
			"status",
			"created_at",
		).
		Values(
			rec.OrderID,
			rec.PaymentID,
			rec.Method,
			rec.AmountCents,
			rec.Currency.String(),
			rec.Status.String(),
			rec.CreatedAt,
		).
		Suffix("RETURNING id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return transaction.Record{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	if err := r.conn.QueryRow(ctx, query, args...).Scan(&rec.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return transaction.Record{}, iledgerrepo.ErrDuplicate
		}

		return transaction.Record{}, fmt.Errorf("failed to insert transaction record: %w", err)
	}

	return rec, nil
}

// Exists reports whether a record with the triple is already present.
func (r *PostgresLedgerRepository) Exists(
	ctx context.Context,
	orderID uuid.UUID,
	paymentID string,
	status transaction.Status,
) (bool, error) {
	query, args, err := sq.Select("1").
		From("payment_transactions").
		Where(sq.Eq{
			"order_id":   orderID,
			"payment_id": paymentID,
			"status":     status.String(),
		}).
		Limit(1).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build select query: %w", err)
	}

	var one int
	if err := r.conn.QueryRow(ctx, query, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}

		return false, fmt.Errorf("failed to query transaction record: %w", err)
	}

	return true, nil
}

// Query returns all records for an order ordered by creation time.
func (r *PostgresLedgerRepository) Query(ctx context.Context, orderID uuid.UUID) ([]transaction.Record, error) {
	query, args, err := sq.Select(
		"id",
		"order_id",
		"payment_id",
		"method",
		"amount_cents",
		"currency",
		"status",
		"created_at",
	).
		From("payment_transactions").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("created_at ASC", "id ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction records: %w", err)
	}
	defer rows.Close()

	var records []transaction.Record
	for rows.Next() {
		var (
			rec    transaction.Record
			curStr string
			status string
		)
		err := rows.Scan(
			&rec.ID,
			&rec.OrderID,
			&rec.PaymentID,
			&rec.Method,
			&rec.AmountCents,
			&curStr,
			&status,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction record: %w", err)
		}

		cur, err := currency.ParseCurrency(curStr)
		if err != nil {
			return nil, err
		}
		rec.Currency = cur
		rec.Status = transaction.Status(status)

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}
