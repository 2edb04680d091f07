package order

import (
	"testing"

	"github.com/google/uuid"

	"github.com/corray333/backend-labs/payment/internal/service/models/currency"
	"github.com/corray333/backend-labs/payment/internal/service/models/money"
	"github.com/corray333/backend-labs/payment/internal/service/models/orderitem"
)

// TestCanTransitionTable checks every ordered pair of the five statuses
// against the transition table.
func TestCanTransitionTable(t *testing.T) {
	statuses := []Status{StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled}

	allowed := map[Status]map[Status]bool{
		StatusPending:   {StatusPaid: true, StatusCancelled: true},
		StatusPaid:      {StatusShipped: true, StatusCancelled: true},
		StatusShipped:   {StatusDelivered: true, StatusCancelled: true},
		StatusDelivered: {StatusCancelled: true},
		StatusCancelled: {},
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[from][to]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestNewComputesTotal(t *testing.T) {
	items := []orderitem.OrderItem{
		{ProductID: uuid.New(), Quantity: 3, Price: money.MustNew(9999, currency.CurrencyUSD)},
	}

	o, err := New(uuid.New(), items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if o.Total.Amount() != 29997 {
		t.Errorf("expected total 29997, got %d", o.Total.Amount())
	}
	if o.Status != StatusPending {
		t.Errorf("expected status %s, got %s", StatusPending, o.Status)
	}
	if o.PaymentStatus != PaymentStatusAwaiting {
		t.Errorf("expected payment status %s, got %s", PaymentStatusAwaiting, o.PaymentStatus)
	}
}

func TestNewSumsMultipleItems(t *testing.T) {
	items := []orderitem.OrderItem{
		{ProductID: uuid.New(), Quantity: 2, Price: money.MustNew(1000, currency.CurrencyUSD)},
		{ProductID: uuid.New(), Quantity: 1, Price: money.MustNew(550, currency.CurrencyUSD)},
	}

	o, err := New(uuid.New(), items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Total.Amount() != 2550 {
		t.Errorf("expected total 2550, got %d", o.Total.Amount())
	}
}

func TestNewRejectsInvalidItems(t *testing.T) {
	tests := []struct {
		name  string
		items []orderitem.OrderItem
	}{
		{name: "no items", items: nil},
		{
			name: "zero quantity",
			items: []orderitem.OrderItem{
				{ProductID: uuid.New(), Quantity: 0, Price: money.MustNew(100, currency.CurrencyUSD)},
			},
		},
		{
			name: "negative quantity",
			items: []orderitem.OrderItem{
				{ProductID: uuid.New(), Quantity: -2, Price: money.MustNew(100, currency.CurrencyUSD)},
			},
		},
		{
			name: "mixed currencies",
			items: []orderitem.OrderItem{
				{ProductID: uuid.New(), Quantity: 1, Price: money.MustNew(100, currency.CurrencyUSD)},
				{ProductID: uuid.New(), Quantity: 1, Price: money.MustNew(100, currency.CurrencyCNY)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(uuid.New(), tt.items); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"pending", "paid", "shipped", "delivered", "cancelled"} {
		if _, err := ParseStatus(s); err != nil {
			t.Errorf("ParseStatus(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseStatus("refunded"); err == nil {
		t.Error("expected error for unknown status")
	}
}
