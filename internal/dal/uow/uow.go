package uow

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/iledgerrepo"
	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/ioutboxrepo"
	"github.com/corray333/backend-labs/payment/internal/dal/postgres"
	ledgerrepo "github.com/corray333/backend-labs/payment/internal/dal/repositories/ledger/postgres"
	orderrepo "github.com/corray333/backend-labs/payment/internal/dal/repositories/order/postgres"
	outboxrepo "github.com/corray333/backend-labs/payment/internal/dal/repositories/outbox/postgres"
)

// UnitOfWork binds the order, ledger and outbox repositories to a single
// transaction so a status transition, its ledger row and the staged event
// commit or roll back together.
type UnitOfWork struct {
	client     *postgres.Client
	tx         pgx.Tx
	orderRepo  iorderrepo.IOrderRepository
	ledgerRepo iledgerrepo.ILedgerRepository
	outboxRepo ioutboxrepo.IOutboxRepository
}

func NewUnitOfWork(client *postgres.Client) *UnitOfWork {
	return &UnitOfWork{
		client:     client,
		orderRepo:  orderrepo.NewPostgresOrderRepository(client.Pool()),
		ledgerRepo: ledgerrepo.NewPostgresLedgerRepository(client.Pool()),
		outboxRepo: outboxrepo.NewOutboxRepository(client.Pool()),
	}
}

func (u *UnitOfWork) OrderRepository() iorderrepo.IOrderRepository {
	return u.orderRepo
}

func (u *UnitOfWork) LedgerRepository() iledgerrepo.ILedgerRepository {
	return u.ledgerRepo
}

func (u *UnitOfWork) OutboxRepository() ioutboxrepo.IOutboxRepository {
	return u.outboxRepo
}

func (u *UnitOfWork) Begin(ctx context.Context) error {
	tx, err := u.client.Pool().Begin(ctx)
	if err != nil {
		return err
	}

	u.tx = tx
	u.orderRepo = orderrepo.NewPostgresOrderRepository(tx)
	u.ledgerRepo = ledgerrepo.NewPostgresLedgerRepository(tx)
	u.outboxRepo = outboxrepo.NewOutboxRepository(tx)

	return nil
}

func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	return u.tx.Commit(ctx)
}

func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	return u.tx.Rollback(ctx)
}
