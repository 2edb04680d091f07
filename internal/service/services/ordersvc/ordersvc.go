package ordersvc

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/payment/internal/dal/postgres"
	"github.com/corray333/backend-labs/payment/internal/dal/uow"
	"github.com/corray333/backend-labs/payment/internal/service/apperrors"
	"github.com/corray333/backend-labs/payment/internal/service/models/order"
	"github.com/corray333/backend-labs/payment/internal/service/models/orderitem"
)

// OrderService owns the order lifecycle. Every status change goes through
// Transition; nothing else writes orders.status.
type OrderService struct {
	pgClient   *postgres.Client
	uowFactory func() unitOfWork
	orderRepo  iorderrepo.IOrderRepository
}

type unitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	OrderRepository() iorderrepo.IOrderRepository
}

func (s *OrderService) newUOW() unitOfWork {
	return s.uowFactory()
}

// option is a function that configures the OrderService.
type option func(*OrderService)

// MustNewOrderService creates a new OrderService.
func MustNewOrderService(opts ...option) *OrderService {
	s := &OrderService{}
	for _, opt := range opts {
		opt(s)
	}

	if s.uowFactory == nil {
		if s.pgClient == nil {
			panic("ordersvc: postgres client is not configured")
		}
		s.uowFactory = func() unitOfWork {
			return uow.NewUnitOfWork(s.pgClient)
		}
	}
	if s.orderRepo == nil {
		s.orderRepo = s.uowFactory().OrderRepository()
	}

	return s
}

// WithPostgresClient sets the Postgres client for the OrderService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *OrderService) {
		s.pgClient = pgClient
	}
}

// WithUnitOfWorkFactory overrides the unit-of-work factory, used in tests.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithUnitOfWorkFactory(factory func() unitOfWork) option {
	return func(s *OrderService) {
		s.uowFactory = factory
	}
}

// WithOrderRepository overrides the order repository, used in tests.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderRepository(repo iorderrepo.IOrderRepository) option {
	return func(s *OrderService) {
		s.orderRepo = repo
	}
}

// CreateOrder performs checkout: it assembles a PENDING order from the item
// snapshots, fixing the total once, and persists it with its items.
func (s *OrderService) CreateOrder(
	ctx context.Context,
	userID uuid.UUID,
	items []orderitem.OrderItem,
) (*order.Order, error) {
	o, err := order.New(userID, items)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "invalid order", err)
	}

	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now

	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = work.Rollback(ctx) }()

	if err := work.OrderRepository().Insert(ctx, o); err != nil {
		return nil, err
	}

	if err := work.Commit(ctx); err != nil {
		return nil, err
	}

	return o, nil
}

// GetOrder loads an order with its items.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	o, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, iorderrepo.ErrNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "order %s not found", id)
		}

		return nil, err
	}

	return o, nil
}

// Transition requests an explicit status change. The transition table is
// checked first; an illegal request fails without touching the order. The
// persisted update is a compare-and-swap on the observed status, so two
// concurrent transitions from the same state cannot both apply.
func (s *OrderService) Transition(ctx context.Context, id uuid.UUID, to order.Status) (*order.Order, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	if !order.CanTransition(o.Status, to) {
		return nil, apperrors.Newf(
			apperrors.KindInvalidTransition,
			"transition from %s to %s is not allowed", o.Status, to,
		)
	}

	err = s.orderRepo.UpdateStatus(ctx, id, iorderrepo.StatusUpdate{
		From: o.Status,
		To:   to,
	})
	if err != nil {
		if errors.Is(err, iorderrepo.ErrConflict) {
			return nil, apperrors.Wrap(apperrors.KindConflict, "order changed concurrently, retry", err)
		}

		return nil, err
	}

	o.Status = to
	o.UpdatedAt = time.Now()

	return o, nil
}
