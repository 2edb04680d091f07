package paymentsvc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/iledgerrepo"
	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/iuserrepo"
	"github.com/corray333/backend-labs/payment/internal/dal/postgres"
	userrepo "github.com/corray333/backend-labs/payment/internal/dal/repositories/user/postgres"
	"github.com/corray333/backend-labs/payment/internal/dal/uow"
	"github.com/corray333/backend-labs/payment/internal/gateway/airwallex"
	"github.com/corray333/backend-labs/payment/internal/service/apperrors"
	"github.com/corray333/backend-labs/payment/internal/service/models/intent"
	"github.com/corray333/backend-labs/payment/internal/service/models/order"
	"github.com/corray333/backend-labs/payment/internal/service/models/outbox"
	"github.com/corray333/backend-labs/payment/internal/service/models/transaction"
)

// PaymentMethod is the gateway identifier recorded in the ledger.
const PaymentMethod = "airwallex"

const paidQueue = "payments.order.paid"

// gateway is the interface to the external payment provider.
type gateway interface {
	CreateIntent(ctx context.Context, req airwallex.CreateIntentRequest) (intent.PaymentIntent, error)
	ConfirmIntent(ctx context.Context, intentID string, payload json.RawMessage) (json.RawMessage, error)
	GetIntent(ctx context.Context, intentID string) (intent.PaymentIntent, error)
}

type unitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	OrderRepository() iorderrepo.IOrderRepository
	LedgerRepository() iledgerrepo.ILedgerRepository
	OutboxRepository() ioutboxrepo
}

type ioutboxrepo interface {
	Insert(ctx context.Context, msg outbox.OutboxMessage) error
}

// PaymentService coordinates the payment gateway, the order state machine
// and the transaction ledger.
type PaymentService struct {
	pgClient   *postgres.Client
	gw         gateway
	uowFactory func() unitOfWork
	orderRepo  iorderrepo.IOrderRepository
	ledgerRepo iledgerrepo.ILedgerRepository
	userRepo   iuserrepo.IUserRepository
}

// option is a function that configures the PaymentService.
type option func(*PaymentService)

// MustNewPaymentService creates a new PaymentService.
func MustNewPaymentService(opts ...option) *PaymentService {
	s := &PaymentService{}
	for _, opt := range opts {
		opt(s)
	}

	if s.gw == nil {
		panic("paymentsvc: gateway is not configured")
	}
	if s.uowFactory == nil {
		if s.pgClient == nil {
			panic("paymentsvc: postgres client is not configured")
		}
		s.uowFactory = func() unitOfWork {
			return pgUnitOfWork{uow.NewUnitOfWork(s.pgClient)}
		}
	}
	if s.orderRepo == nil || s.ledgerRepo == nil {
		work := s.uowFactory()
		if s.orderRepo == nil {
			s.orderRepo = work.OrderRepository()
		}
		if s.ledgerRepo == nil {
			s.ledgerRepo = work.LedgerRepository()
		}
	}
	if s.userRepo == nil {
		if s.pgClient == nil {
			panic("paymentsvc: user repository is not configured")
		}
		s.userRepo = userrepo.NewPostgresUserRepository(s.pgClient.Pool())
	}

	return s
}

// pgUnitOfWork adapts *uow.UnitOfWork to the local interface.
type pgUnitOfWork struct {
	*uow.UnitOfWork
}

func (w pgUnitOfWork) OutboxRepository() ioutboxrepo {
	return w.UnitOfWork.OutboxRepository()
}

// WithPostgresClient sets the Postgres client for the PaymentService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *PaymentService) {
		s.pgClient = pgClient
	}
}

// WithGateway sets the payment gateway client.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithGateway(gw gateway) option {
	return func(s *PaymentService) {
		s.gw = gw
	}
}

// WithUnitOfWorkFactory overrides the unit-of-work factory, used in tests.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithUnitOfWorkFactory(factory func() unitOfWork) option {
	return func(s *PaymentService) {
		s.uowFactory = factory
	}
}

// WithUserRepository overrides the user repository, used in tests.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithUserRepository(repo iuserrepo.IUserRepository) option {
	return func(s *PaymentService) {
		s.userRepo = repo
	}
}

// CreateIntent creates a payment intent at the gateway for a PENDING order
// and records the intent id locally. The order status is not changed; only
// the payment leg moves to awaiting_payment.
func (s *PaymentService) CreateIntent(
	ctx context.Context,
	orderID uuid.UUID,
	returnURL string,
) (intent.PaymentIntent, error) {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return intent.PaymentIntent{}, err
	}

	if o.Status != order.StatusPending {
		return intent.PaymentIntent{}, apperrors.Newf(
			apperrors.KindValidation,
			"cannot create payment intent for order in status %s", o.Status,
		)
	}

	u, err := s.userRepo.GetByID(ctx, o.UserID)
	if err != nil {
		if errors.Is(err, iuserrepo.ErrNotFound) {
			return intent.PaymentIntent{}, apperrors.Newf(apperrors.KindNotFound, "user %s not found", o.UserID)
		}

		return intent.PaymentIntent{}, err
	}

	pi, err := s.gw.CreateIntent(ctx, airwallex.CreateIntentRequest{
		AmountCents: o.Total.Amount(),
		Currency:    o.Total.Currency().String(),
		OrderID:     o.ID.String(),
		Customer: airwallex.Customer{
			Email: u.Email,
			Name:  u.Name,
			Phone: u.Phone,
		},
		ReturnURL: returnURL,
	})
	if err != nil {
		return intent.PaymentIntent{}, err
	}

	if err := s.orderRepo.SetPaymentIntent(ctx, o.ID, pi.ID, order.PaymentStatusAwaiting); err != nil {
		return intent.PaymentIntent{}, err
	}

	return pi, nil
}

// ConfirmIntent forwards confirmation details to the gateway. The order
// status is decided later by reconciliation, never here.
func (s *PaymentService) ConfirmIntent(
	ctx context.Context,
	intentID string,
	payload json.RawMessage,
) (json.RawMessage, error) {
	return s.gw.ConfirmIntent(ctx, intentID, payload)
}

// ListTransactions returns the ledger entries for an order for audit.
func (s *PaymentService) ListTransactions(ctx context.Context, orderID uuid.UUID) ([]transaction.Record, error) {
	if _, err := s.getOrder(ctx, orderID); err != nil {
		return nil, err
	}

	return s.ledgerRepo.Query(ctx, orderID)
}

// Reconcile aligns local order state with the authoritative gateway-side
// payment state. It is invoked once per inbound payment notification and is
// safe to call any number of times for the same delivery: the ledger's
// uniqueness invariant and the CAS status update make replays no-ops.
//
// Transport-supplied status values are never trusted; the intent status is
// always re-read from the gateway.
func (s *PaymentService) Reconcile(
	ctx context.Context,
	orderID uuid.UUID,
	intentID string,
) (order.Status, error) {
	ctx, span := otel.Tracer("paymentsvc").Start(ctx, "PaymentService.Reconcile")
	defer span.End()

	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return "", err
	}

	// An order is only reconcilable against the intent it created. Without
	// a stored intent id there is nothing to match the notification to, so
	// it is rejected rather than taken on faith.
	if o.PaymentIntentID == "" || o.PaymentIntentID != intentID {
		return "", apperrors.Newf(
			apperrors.KindValidation,
			"payment intent %s does not belong to order %s", intentID, orderID,
		)
	}

	// Gateway unreachable leaves order and ledger untouched; the caller
	// surfaces the error so the gateway redelivers.
	pi, err := s.gw.GetIntent(ctx, intentID)
	if err != nil {
		return "", err
	}

	switch pi.Status {
	case intent.StatusSucceeded:
		return s.applyPaid(ctx, o, pi)
	case intent.StatusRequiresPaymentMethod:
		return s.applyOutcome(ctx, o, pi, order.PaymentStatusFailed, transaction.StatusFailed)
	case intent.StatusCancelled:
		return s.applyCancelled(ctx, o, pi)
	default:
		return s.applyOutcome(ctx, o, pi, order.PaymentStatusProcessing, transaction.StatusProcessing)
	}
}

func (s *PaymentService) getOrder(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	o, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, iorderrepo.ErrNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "order %s not found", orderID)
		}

		return nil, err
	}

	return o, nil
}

// applyPaid applies the successful payment outcome exactly once. The PAID
// transition, the ledger row and the staged event commit in one
// transaction, so a cancelled request either changes nothing or everything.
func (s *PaymentService) applyPaid(
	ctx context.Context,
	o *order.Order,
	pi intent.PaymentIntent,
) (order.Status, error) {
	exists, err := s.ledgerRepo.Exists(ctx, o.ID, pi.ID, transaction.StatusSuccess)
	if err != nil {
		return "", err
	}
	if exists {
		// Duplicate delivery: effects were already applied.
		slog.InfoContext(ctx, "duplicate payment notification ignored",
			"order_id", o.ID, "payment_intent_id", pi.ID)

		return order.StatusPaid, nil
	}

	if pi.Amount != o.Total.Amount() {
		return "", apperrors.Newf(
			apperrors.KindValidation,
			"payment intent amount %d does not match order total %d", pi.Amount, o.Total.Amount(),
		)
	}

	if !order.CanTransition(o.Status, order.StatusPaid) {
		return "", apperrors.Newf(
			apperrors.KindInvalidTransition,
			"transition from %s to %s is not allowed", o.Status, order.StatusPaid,
		)
	}

	paymentInfo, err := json.Marshal(map[string]any{
		"paymentIntentId": pi.ID,
		"paymentMethod":   PaymentMethod,
		"amountCents":     pi.Amount,
		"currency":        pi.Currency,
		"timestamp":       time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}

	work := s.uowFactory()
	if err := work.Begin(ctx); err != nil {
		return "", err
	}
	defer func() { _ = work.Rollback(ctx) }()

	err = work.OrderRepository().UpdateStatus(ctx, o.ID, iorderrepo.StatusUpdate{
		From:          o.Status,
		To:            order.StatusPaid,
		PaymentStatus: order.PaymentStatusPaid,
		PaymentInfo:   paymentInfo,
	})
	if err != nil {
		if errors.Is(err, iorderrepo.ErrConflict) {
			// A concurrent reconciliation won the race. If it recorded the
			// success this delivery is a duplicate, otherwise report the
			// conflict so the delivery is retried.
			exists, checkErr := s.ledgerRepo.Exists(ctx, o.ID, pi.ID, transaction.StatusSuccess)
			if checkErr == nil && exists {
				return order.StatusPaid, nil
			}

			return "", apperrors.Wrap(apperrors.KindConflict, "order changed concurrently, retry", err)
		}

		return "", err
	}

	if _, err := work.LedgerRepository().Append(ctx, transaction.Record{
		OrderID:     o.ID,
		PaymentID:   pi.ID,
		Method:      PaymentMethod,
		AmountCents: pi.Amount,
		Currency:    o.Total.Currency(),
		Status:      transaction.StatusSuccess,
	}); err != nil {
		if errors.Is(err, iledgerrepo.ErrDuplicate) {
			// Idempotent replay, not a failure.
			return order.StatusPaid, nil
		}

		return "", err
	}

	payload, err := json.Marshal(map[string]any{
		"orderId":         o.ID,
		"paymentIntentId": pi.ID,
		"amountCents":     pi.Amount,
		"currency":        pi.Currency,
	})
	if err != nil {
		return "", err
	}

	now := time.Now()
	if err := work.OutboxRepository().Insert(ctx, outbox.OutboxMessage{
		QueueName:   paidQueue,
		RoutingKey:  paidQueue,
		Payload:     payload,
		ContentType: "application/json",
		MaxRetries:  10,
		CreatedAt:   now,
		UpdatedAt:   now,
		NextRetryAt: now,
	}); err != nil {
		return "", err
	}

	if err := work.Commit(ctx); err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "order marked paid",
		"order_id", o.ID, "payment_intent_id", pi.ID, "amount_cents", pi.Amount)

	return order.StatusPaid, nil
}

// applyOutcome records a non-terminal payment outcome: the order stays
// PENDING, the payment leg and the ledger reflect the gateway status.
func (s *PaymentService) applyOutcome(
	ctx context.Context,
	o *order.Order,
	pi intent.PaymentIntent,
	ps order.PaymentStatus,
	ts transaction.Status,
) (order.Status, error) {
	if err := s.orderRepo.SetPaymentStatus(ctx, o.ID, ps); err != nil {
		return "", err
	}

	if _, err := s.ledgerRepo.Append(ctx, transaction.Record{
		OrderID:     o.ID,
		PaymentID:   pi.ID,
		Method:      PaymentMethod,
		AmountCents: pi.Amount,
		Currency:    o.Total.Currency(),
		Status:      ts,
	}); err != nil && !errors.Is(err, iledgerrepo.ErrDuplicate) {
		return "", err
	}

	return o.Status, nil
}

// applyCancelled handles a payment the customer abandoned at the gateway.
func (s *PaymentService) applyCancelled(
	ctx context.Context,
	o *order.Order,
	pi intent.PaymentIntent,
) (order.Status, error) {
	if o.Status == order.StatusCancelled {
		return o.Status, nil
	}

	err := s.orderRepo.UpdateStatus(ctx, o.ID, iorderrepo.StatusUpdate{
		From:          o.Status,
		To:            order.StatusCancelled,
		PaymentStatus: order.PaymentStatusCanceled,
	})
	if err != nil {
		if errors.Is(err, iorderrepo.ErrConflict) {
			return "", apperrors.Wrap(apperrors.KindConflict, "order changed concurrently, retry", err)
		}

		return "", err
	}

	if _, err := s.ledgerRepo.Append(ctx, transaction.Record{
		OrderID:     o.ID,
		PaymentID:   pi.ID,
		Method:      PaymentMethod,
		AmountCents: pi.Amount,
		Currency:    o.Total.Currency(),
		Status:      transaction.StatusCanceled,
	}); err != nil && !errors.Is(err, iledgerrepo.ErrDuplicate) {
		return "", err
	}

	return order.StatusCancelled, nil
}

// ReconcileStale sweeps orders stuck in PENDING with an intent attached and
// replays reconciliation for each. Orders the gateway never resolved stay
// visibly processing instead of silently failing.
func (s *PaymentService) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) error {
	ctx, span := otel.Tracer("paymentsvc").Start(ctx, "PaymentService.ReconcileStale")
	defer span.End()

	cutoff := time.Now().Add(-olderThan)
	stale, err := s.orderRepo.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "reconciling stale orders", "count", len(stale))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)

	for _, o := range stale {
		g.Go(func() error {
			status, err := s.Reconcile(gctx, o.ID, o.PaymentIntentID)
			if err != nil {
				slog.ErrorContext(gctx, "stale order reconciliation failed",
					"order_id", o.ID, "error", err)

				return nil
			}

			slog.InfoContext(gctx, "stale order reconciled", "order_id", o.ID, "status", status)

			return nil
		})
	}

	return g.Wait()
}
