package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/payment/internal/dal/postgres"
	"github.com/corray333/backend-labs/payment/internal/service/models/currency"
	"github.com/corray333/backend-labs/payment/internal/service/models/money"
	"github.com/corray333/backend-labs/payment/internal/service/models/order"
	"github.com/corray333/backend-labs/payment/internal/service/models/orderitem"
)

// OrderDal represents the order data access layer model.
type OrderDal struct {
	Id              uuid.UUID
	UserId          uuid.UUID
	Status          string
	PaymentStatus   string
	TotalCents      int64
	TotalCurrency   string
	PaymentIntentId *string
	PaymentInfo     []byte
	TrackingNumber  *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ToModel converts OrderDal to the service layer Order model.
func (o *OrderDal) ToModel() (*order.Order, error) {
	cur, err := currency.ParseCurrency(o.TotalCurrency)
	if err != nil {
		return nil, err
	}
	status, err := order.ParseStatus(o.Status)
	if err != nil {
		return nil, err
	}
	total, err := money.New(o.TotalCents, cur)
	if err != nil {
		return nil, err
	}

	model := &order.Order{
		ID:            o.Id,
		UserID:        o.UserId,
		Status:        status,
		PaymentStatus: order.PaymentStatus(o.PaymentStatus),
		Total:         total,
		PaymentInfo:   o.PaymentInfo,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		Items:         []orderitem.OrderItem{},
	}
	if o.PaymentIntentId != nil {
		model.PaymentIntentID = *o.PaymentIntentId
	}
	if o.TrackingNumber != nil {
		model.TrackingNumber = *o.TrackingNumber
	}

	return model, nil
}

type PostgresOrderRepository struct {
	conn postgres.Querier
}

func NewPostgresOrderRepository(conn postgres.Querier) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		conn: conn,
	}
}

var orderColumns = []string{
	"id",
	"user_id",
	"status",
	"payment_status",
	"total_cents",
	"total_currency",
	"payment_intent_id",
	"payment_info",
	"tracking_number",
	"created_at",
	"updated_at",
}

// Insert stores a new order together with its item snapshots.
func (r *PostgresOrderRepository) Insert(ctx context.Context, o *order.Order) error {
	query, args, err := sq.Insert("orders").
		Columns(
			"id",
			"user_id",
			"status",
			"payment_status",
			"total_cents",
			"total_currency",
			"created_at",
			"updated_at",
		).
		Values(
			o.ID,
			o.UserID,
			o.Status.String(),
			o.PaymentStatus.String(),
			o.Total.Amount(),
			o.Total.Currency().String(),
			o.CreatedAt,
			o.UpdatedAt,
		).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range o.Items {
		o.Items[i].OrderID = o.ID
		if o.Items[i].ID == uuid.Nil {
			o.Items[i].ID = uuid.New()
		}

		query, args, err := sq.Insert("order_items").
			Columns("id", "order_id", "product_id", "quantity", "price_cents", "price_currency").
			Values(
				o.Items[i].ID,
				o.Items[i].OrderID,
				o.Items[i].ProductID,
				o.Items[i].Quantity,
				o.Items[i].Price.Amount(),
				o.Items[i].Price.Currency().String(),
			).
			PlaceholderFormat(sq.Dollar).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build insert query: %w", err)
		}

		if _, err := r.conn.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return nil
}

// GetByID loads an order and its items.
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	query, args, err := sq.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var dal OrderDal
	err = r.conn.QueryRow(ctx, query, args...).Scan(
		&dal.Id,
		&dal.UserId,
		&dal.Status,
		&dal.PaymentStatus,
		&dal.TotalCents,
		&dal.TotalCurrency,
		&dal.PaymentIntentId,
		&dal.PaymentInfo,
		&dal.TrackingNumber,
		&dal.CreatedAt,
		&dal.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, iorderrepo.ErrNotFound
		}

		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	model, err := dal.ToModel()
	if err != nil {
		return nil, fmt.Errorf("failed to convert order dal to model: %w", err)
	}

	items, err := r.queryItems(ctx, id)
	if err != nil {
		return nil, err
	}
	model.Items = items

	return model, nil
}

func (r *PostgresOrderRepository) queryItems(ctx context.Context, orderID uuid.UUID) ([]orderitem.OrderItem, error) {
	query, args, err := sq.Select("id", "order_id", "product_id", "quantity", "price_cents", "price_currency").
		From("order_items").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("id ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	items := []orderitem.OrderItem{}
	for rows.Next() {
		var (
			item        orderitem.OrderItem
			priceCents  int64
			priceCurStr string
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &priceCents, &priceCurStr); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}

		cur, err := currency.ParseCurrency(priceCurStr)
		if err != nil {
			return nil, err
		}
		item.Price, err = money.New(priceCents, cur)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return items, nil
}

// UpdateStatus applies a compare-and-swap status change. The WHERE clause
// pins the previously observed status, so of two concurrent writers only
// one can win; the loser gets ErrConflict.
func (r *PostgresOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, upd iorderrepo.StatusUpdate) error {
	builder := sq.Update("orders").
		Set("status", upd.To.String()).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id, "status": upd.From.String()})

	if upd.PaymentStatus != "" {
		builder = builder.Set("payment_status", upd.PaymentStatus.String())
	}
	if upd.PaymentInfo != nil {
		builder = builder.Set("payment_info", upd.PaymentInfo)
	}

	query, args, err := builder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return iorderrepo.ErrConflict
	}

	return nil
}

// SetPaymentIntent records the gateway intent id on the order.
func (r *PostgresOrderRepository) SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string, ps order.PaymentStatus) error {
	query, args, err := sq.Update("orders").
		Set("payment_intent_id", intentID).
		Set("payment_status", ps.String()).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to set payment intent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return iorderrepo.ErrNotFound
	}

	return nil
}

// SetPaymentStatus updates the payment leg only; the order status stays
// untouched.
func (r *PostgresOrderRepository) SetPaymentStatus(ctx context.Context, id uuid.UUID, ps order.PaymentStatus) error {
	query, args, err := sq.Update("orders").
		Set("payment_status", ps.String()).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to set payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return iorderrepo.ErrNotFound
	}

	return nil
}

// ListStalePending returns PENDING orders that have an intent attached and
// were last touched before the cutoff.
func (r *PostgresOrderRepository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]order.Order, error) {
	query, args, err := sq.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"status": order.StatusPending.String()}).
		Where(sq.Eq{"payment_status": []string{
			order.PaymentStatusAwaiting.String(),
			order.PaymentStatusProcessing.String(),
		}}).
		Where(sq.NotEq{"payment_intent_id": nil}).
		Where(sq.LtOrEq{"updated_at": olderThan}).
		OrderBy("updated_at ASC").
		Limit(uint64(limit)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale orders: %w", err)
	}
	defer rows.Close()

	var result []order.Order
	for rows.Next() {
		var dal OrderDal
		err := rows.Scan(
			&dal.Id,
			&dal.UserId,
			&dal.Status,
			&dal.PaymentStatus,
			&dal.TotalCents,
			&dal.TotalCurrency,
			&dal.PaymentIntentId,
			&dal.PaymentInfo,
			&dal.TrackingNumber,
			&dal.CreatedAt,
			&dal.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		model, err := dal.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to convert order dal to model: %w", err)
		}
		result = append(result, *model)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}
