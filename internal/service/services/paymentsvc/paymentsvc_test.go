package paymentsvc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/iledgerrepo"
	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/payment/internal/gateway/airwallex"
	"github.com/corray333/backend-labs/payment/internal/service/apperrors"
	"github.com/corray333/backend-labs/payment/internal/service/models/currency"
	"github.com/corray333/backend-labs/payment/internal/service/models/intent"
	"github.com/corray333/backend-labs/payment/internal/service/models/money"
	"github.com/corray333/backend-labs/payment/internal/service/models/order"
	"github.com/corray333/backend-labs/payment/internal/service/models/outbox"
	"github.com/corray333/backend-labs/payment/internal/service/models/transaction"
	"github.com/corray333/backend-labs/payment/internal/service/models/user"
)

type fakeOrderRepo struct {
	orders map[uuid.UUID]*order.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[uuid.UUID]*order.Order{}}
}

func (r *fakeOrderRepo) Insert(_ context.Context, o *order.Order) error {
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, iorderrepo.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *fakeOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, upd iorderrepo.StatusUpdate) error {
	o, ok := r.orders[id]
	if !ok || o.Status != upd.From {
		return iorderrepo.ErrConflict
	}
	o.Status = upd.To
	if upd.PaymentStatus != "" {
		o.PaymentStatus = upd.PaymentStatus
	}
	if upd.PaymentInfo != nil {
		o.PaymentInfo = upd.PaymentInfo
	}
	return nil
}

func (r *fakeOrderRepo) SetPaymentIntent(_ context.Context, id uuid.UUID, intentID string, ps order.PaymentStatus) error {
	o, ok := r.orders[id]
	if !ok {
		return iorderrepo.ErrNotFound
	}
	o.PaymentIntentID = intentID
	o.PaymentStatus = ps
	return nil
}

func (r *fakeOrderRepo) SetPaymentStatus(_ context.Context, id uuid.UUID, ps order.PaymentStatus) error {
	o, ok := r.orders[id]
	if !ok {
		return iorderrepo.ErrNotFound
	}
	o.PaymentStatus = ps
	return nil
}

func (r *fakeOrderRepo) ListStalePending(_ context.Context, olderThan time.Time, limit int) ([]order.Order, error) {
	var result []order.Order
	for _, o := range r.orders {
		if len(result) == limit {
			break
		}
		if o.Status == order.StatusPending && o.PaymentIntentID != "" && !o.UpdatedAt.After(olderThan) {
			result = append(result, *o)
		}
	}
	return result, nil
}

type ledgerKey struct {
	orderID   uuid.UUID
	paymentID string
	status    transaction.Status
}

type fakeLedger struct {
	records []transaction.Record
	seen    map[ledgerKey]bool
	nextID  int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{seen: map[ledgerKey]bool{}}
}

func (l *fakeLedger) Append(_ context.Context, rec transaction.Record) (transaction.Record, error) {
	key := ledgerKey{rec.OrderID, rec.PaymentID, rec.Status}
	if l.seen[key] {
		return transaction.Record{}, iledgerrepo.ErrDuplicate
	}
	l.seen[key] = true
	l.nextID++
	rec.ID = l.nextID
	rec.CreatedAt = time.Now()
	l.records = append(l.records, rec)
	return rec, nil
}

func (l *fakeLedger) Exists(_ context.Context, orderID uuid.UUID, paymentID string, status transaction.Status) (bool, error) {
	return l.seen[ledgerKey{orderID, paymentID, status}], nil
}

func (l *fakeLedger) Query(_ context.Context, orderID uuid.UUID) ([]transaction.Record, error) {
	var out []transaction.Record
	for _, rec := range l.records {
		if rec.OrderID == orderID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (l *fakeLedger) countWithStatus(orderID uuid.UUID, status transaction.Status) int {
	n := 0
	for _, rec := range l.records {
		if rec.OrderID == orderID && rec.Status == status {
			n++
		}
	}
	return n
}

type fakeOutbox struct {
	messages []outbox.OutboxMessage
}

func (b *fakeOutbox) Insert(_ context.Context, msg outbox.OutboxMessage) error {
	b.messages = append(b.messages, msg)
	return nil
}

type fakeUOW struct {
	orders *fakeOrderRepo
	ledger *fakeLedger
	outbox *fakeOutbox
}

func (u *fakeUOW) Begin(context.Context) error    { return nil }
func (u *fakeUOW) Commit(context.Context) error   { return nil }
func (u *fakeUOW) Rollback(context.Context) error { return nil }

func (u *fakeUOW) OrderRepository() iorderrepo.IOrderRepository    { return u.orders }
func (u *fakeUOW) LedgerRepository() iledgerrepo.ILedgerRepository { return u.ledger }
func (u *fakeUOW) OutboxRepository() ioutboxrepo                   { return u.outbox }

type fakeGateway struct {
	intents   map[string]intent.PaymentIntent
	getErr    error
	getCalls  int
	created   []airwallex.CreateIntentRequest
	confirmed []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: map[string]intent.PaymentIntent{}}
}

func (g *fakeGateway) CreateIntent(_ context.Context, req airwallex.CreateIntentRequest) (intent.PaymentIntent, error) {
	g.created = append(g.created, req)
	pi := intent.PaymentIntent{
		ID:              "int_" + uuid.NewString(),
		Amount:          req.AmountCents,
		Currency:        req.Currency,
		Status:          intent.StatusPending,
		ClientSecret:    "secret",
		MerchantOrderID: req.OrderID,
	}
	g.intents[pi.ID] = pi
	return pi, nil
}

func (g *fakeGateway) ConfirmIntent(_ context.Context, intentID string, payload json.RawMessage) (json.RawMessage, error) {
	g.confirmed = append(g.confirmed, intentID)
	return payload, nil
}

func (g *fakeGateway) GetIntent(_ context.Context, intentID string) (intent.PaymentIntent, error) {
	g.getCalls++
	if g.getErr != nil {
		return intent.PaymentIntent{}, g.getErr
	}
	pi, ok := g.intents[intentID]
	if !ok {
		return intent.PaymentIntent{}, apperrors.Newf(apperrors.KindNotFound, "payment intent %s not found", intentID)
	}
	return pi, nil
}

type fakeUserRepo struct {
	users map[uuid.UUID]*user.User
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "user %s not found", id)
	}
	return u, nil
}

type fixture struct {
	svc    *PaymentService
	orders *fakeOrderRepo
	ledger *fakeLedger
	outbox *fakeOutbox
	gw     *fakeGateway
}

func newFixture() *fixture {
	orders := newFakeOrderRepo()
	ledger := newFakeLedger()
	ob := &fakeOutbox{}
	gw := newFakeGateway()
	userRepo := &fakeUserRepo{users: map[uuid.UUID]*user.User{}}

	svc := MustNewPaymentService(
		WithGateway(gw),
		WithUnitOfWorkFactory(func() unitOfWork {
			return &fakeUOW{orders: orders, ledger: ledger, outbox: ob}
		}),
		WithUserRepository(userRepo),
	)

	return &fixture{svc: svc, orders: orders, ledger: ledger, outbox: ob, gw: gw}
}

func (f *fixture) seedOrder(status order.Status, intentID string) *order.Order {
	o := &order.Order{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Status:          status,
		PaymentStatus:   order.PaymentStatusAwaiting,
		PaymentIntentID: intentID,
		Total:           money.MustNew(29997, currency.CurrencyUSD),
	}
	f.orders.orders[o.ID] = o
	f.svc.userRepo.(*fakeUserRepo).users[o.UserID] = &user.User{
		ID:    o.UserID,
		Email: "buyer@example.com",
		Name:  "Buyer",
	}
	return o
}

func (f *fixture) seedIntent(status intent.Status) intent.PaymentIntent {
	pi := intent.PaymentIntent{
		ID:       "int_" + uuid.NewString(),
		Amount:   29997,
		Currency: "USD",
		Status:   status,
	}
	f.gw.intents[pi.ID] = pi
	return pi
}

func TestReconcileSucceededMarksPaidOnce(t *testing.T) {
	f := newFixture()
	pi := f.seedIntent(intent.StatusSucceeded)
	o := f.seedOrder(order.StatusPending, pi.ID)

	// The gateway redelivers the same notification three times.
	for i := 0; i < 3; i++ {
		status, err := f.svc.Reconcile(context.Background(), o.ID, pi.ID)
		if err != nil {
			t.Fatalf("delivery %d: unexpected error: %v", i+1, err)
		}
		if status != order.StatusPaid {
			t.Fatalf("delivery %d: expected PAID, got %s", i+1, status)
		}
	}

	stored, _ := f.orders.GetByID(context.Background(), o.ID)
	if stored.Status != order.StatusPaid {
		t.Errorf("expected stored status PAID, got %s", stored.Status)
	}
	if stored.PaymentStatus != order.PaymentStatusPaid {
		t.Errorf("expected payment status paid, got %s", stored.PaymentStatus)
	}
	if stored.PaymentInfo == nil {
		t.Error("expected payment info to be recorded")
	}

	if n := f.ledger.countWithStatus(o.ID, transaction.StatusSuccess); n != 1 {
		t.Errorf("expected exactly one success record, got %d", n)
	}
	if len(f.outbox.messages) != 1 {
		t.Errorf("expected exactly one staged event, got %d", len(f.outbox.messages))
	}
}

func TestReconcileFailedKeepsOrderPending(t *testing.T) {
	f := newFixture()
	pi := f.seedIntent(intent.StatusRequiresPaymentMethod)
	o := f.seedOrder(order.StatusPending, pi.ID)

	status, err := f.svc.Reconcile(context.Background(), o.ID, pi.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != order.StatusPending {
		t.Fatalf("expected PENDING, got %s", status)
	}

	stored, _ := f.orders.GetByID(context.Background(), o.ID)
	if stored.Status != order.StatusPending {
		t.Errorf("failed payment must not change order status, got %s", stored.Status)
	}
	if stored.PaymentStatus != order.PaymentStatusFailed {
		t.Errorf("expected payment status failed, got %s", stored.PaymentStatus)
	}

	if n := f.ledger.countWithStatus(o.ID, transaction.StatusSuccess); n != 0 {
		t.Errorf("failed payment must not write a success record, got %d", n)
	}
	if n := f.ledger.countWithStatus(o.ID, transaction.StatusFailed); n != 1 {
		t.Errorf("expected one failed record, got %d", n)
	}
	if len(f.outbox.messages) != 0 {
		t.Errorf("failed payment must not stage events, got %d", len(f.outbox.messages))
	}
}

func TestReconcileCancelledCancelsOrder(t *testing.T) {
	f := newFixture()
	pi := f.seedIntent(intent.StatusCancelled)
	o := f.seedOrder(order.StatusPending, pi.ID)

	status, err := f.svc.Reconcile(context.Background(), o.ID, pi.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != order.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", status)
	}

	if n := f.ledger.countWithStatus(o.ID, transaction.StatusCanceled); n != 1 {
		t.Errorf("expected one canceled record, got %d", n)
	}
}

func TestReconcileUnknownStatusStaysProcessing(t *testing.T) {
	f := newFixture()
	pi := f.seedIntent(intent.Status("REQUIRES_CUSTOMER_ACTION"))
	o := f.seedOrder(order.StatusPending, pi.ID)

	status, err := f.svc.Reconcile(context.Background(), o.ID, pi.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != order.StatusPending {
		t.Fatalf("expected PENDING, got %s", status)
	}

	stored, _ := f.orders.GetByID(context.Background(), o.ID)
	if stored.PaymentStatus != order.PaymentStatusProcessing {
		t.Errorf("expected payment status processing, got %s", stored.PaymentStatus)
	}
}

func TestReconcileGatewayDownLeavesStateUntouched(t *testing.T) {
	f := newFixture()
	pi := f.seedIntent(intent.StatusSucceeded)
	o := f.seedOrder(order.StatusPending, pi.ID)
	f.gw.getErr = apperrors.New(apperrors.KindGateway, "gateway unavailable")

	_, err := f.svc.Reconcile(context.Background(), o.ID, pi.ID)
	if !apperrors.IsKind(err, apperrors.KindGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}

	stored, _ := f.orders.GetByID(context.Background(), o.ID)
	if stored.Status != order.StatusPending {
		t.Errorf("gateway failure must not change order status, got %s", stored.Status)
	}
	if len(f.ledger.records) != 0 {
		t.Errorf("gateway failure must not write ledger records, got %d", len(f.ledger.records))
	}
}

func TestReconcileIgnoresTransportStatus(t *testing.T) {
	// The intent the gateway reports as failed must stay failed no matter
	// what the callback claimed; the gateway read is the only input.
	f := newFixture()
	pi := f.seedIntent(intent.StatusRequiresPaymentMethod)
	o := f.seedOrder(order.StatusPending, pi.ID)

	status, err := f.svc.Reconcile(context.Background(), o.ID, pi.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status == order.StatusPaid {
		t.Fatal("order marked paid without gateway confirmation")
	}
	if f.gw.getCalls != 1 {
		t.Errorf("expected one authoritative gateway read, got %d", f.gw.getCalls)
	}
}

func TestReconcileForeignIntentRejected(t *testing.T) {
	f := newFixture()
	pi := f.seedIntent(intent.StatusSucceeded)
	o := f.seedOrder(order.StatusPending, "int_other")

	_, err := f.svc.Reconcile(context.Background(), o.ID, pi.ID)
	if !apperrors.IsKind(err, apperrors.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReconcileOrderWithoutIntentRejected(t *testing.T) {
	// An order that never created an intent cannot be paid by someone
	// else's succeeded intent arriving in a callback.
	f := newFixture()
	pi := f.seedIntent(intent.StatusSucceeded)
	o := f.seedOrder(order.StatusPending, "")

	_, err := f.svc.Reconcile(context.Background(), o.ID, pi.ID)
	if !apperrors.IsKind(err, apperrors.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	stored, _ := f.orders.GetByID(context.Background(), o.ID)
	if stored.Status != order.StatusPending {
		t.Errorf("order paid by a foreign intent, got status %s", stored.Status)
	}
	if len(f.ledger.records) != 0 {
		t.Errorf("rejected reconciliation must not write ledger records, got %d", len(f.ledger.records))
	}
	if len(f.outbox.messages) != 0 {
		t.Errorf("rejected reconciliation must not stage events, got %d", len(f.outbox.messages))
	}
}

func TestReconcileAmountMismatchRejected(t *testing.T) {
	f := newFixture()
	pi := intent.PaymentIntent{
		ID:       "int_" + uuid.NewString(),
		Amount:   100,
		Currency: "USD",
		Status:   intent.StatusSucceeded,
	}
	f.gw.intents[pi.ID] = pi
	o := f.seedOrder(order.StatusPending, pi.ID)

	_, err := f.svc.Reconcile(context.Background(), o.ID, pi.ID)
	if !apperrors.IsKind(err, apperrors.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	stored, _ := f.orders.GetByID(context.Background(), o.ID)
	if stored.Status != order.StatusPending {
		t.Errorf("underpaid intent must not mark the order paid, got %s", stored.Status)
	}
}

func TestReconcileUnknownOrder(t *testing.T) {
	f := newFixture()
	pi := f.seedIntent(intent.StatusSucceeded)

	_, err := f.svc.Reconcile(context.Background(), uuid.New(), pi.ID)
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestCreateIntentAttachesIntentToOrder(t *testing.T) {
	f := newFixture()
	o := f.seedOrder(order.StatusPending, "")

	pi, err := f.svc.CreateIntent(context.Background(), o.ID, "https://shop.example/checkout/done")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pi.Amount != 29997 {
		t.Errorf("expected intent amount 29997, got %d", pi.Amount)
	}

	stored, _ := f.orders.GetByID(context.Background(), o.ID)
	if stored.PaymentIntentID != pi.ID {
		t.Errorf("intent id not attached to order")
	}
	if stored.PaymentStatus != order.PaymentStatusAwaiting {
		t.Errorf("expected payment status awaiting_payment, got %s", stored.PaymentStatus)
	}

	if len(f.gw.created) != 1 {
		t.Fatalf("expected one gateway create call, got %d", len(f.gw.created))
	}
	if f.gw.created[0].Customer.Email != "buyer@example.com" {
		t.Errorf("customer contact not forwarded to gateway")
	}
}

func TestCreateIntentRejectsNonPendingOrder(t *testing.T) {
	f := newFixture()
	o := f.seedOrder(order.StatusPaid, "")

	_, err := f.svc.CreateIntent(context.Background(), o.ID, "https://shop.example/checkout/done")
	if !apperrors.IsKind(err, apperrors.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListTransactionsUnknownOrder(t *testing.T) {
	f := newFixture()

	_, err := f.svc.ListTransactions(context.Background(), uuid.New())
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestReconcileStaleSweepsPendingOrders(t *testing.T) {
	f := newFixture()
	pi := f.seedIntent(intent.StatusSucceeded)
	o := f.seedOrder(order.StatusPending, pi.ID)
	o.UpdatedAt = time.Now().Add(-time.Hour)
	f.orders.orders[o.ID].UpdatedAt = o.UpdatedAt

	if err := f.svc.ReconcileStale(context.Background(), 15*time.Minute, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := f.orders.GetByID(context.Background(), o.ID)
	if stored.Status != order.StatusPaid {
		t.Errorf("expected swept order to be PAID, got %s", stored.Status)
	}
}
