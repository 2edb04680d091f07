package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/corray333/backend-labs/payment/internal/service/models/currency"
)

var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrAmountOverflow   = errors.New("amount overflows")
)

// Money holds an amount in minor units (cents). $10.50 is stored as 1050.
// The zero value is 0 of an empty currency; instances are immutable, all
// arithmetic returns a new value.
type Money struct {
	amount   int64
	currency currency.Currency
}

// New creates a Money value. Negative amounts are rejected.
func New(amount int64, cur currency.Currency) (Money, error) {
	if amount < 0 {
		return Money{}, ErrNegativeAmount
	}

	return Money{amount: amount, currency: cur}, nil
}

// MustNew is New that panics on error, for constants and tests.
func MustNew(amount int64, cur currency.Currency) Money {
	m, err := New(amount, cur)
	if err != nil {
		panic(err)
	}

	return m
}

func (m Money) Amount() int64 {
	return m.amount
}

func (m Money) Currency() currency.Currency {
	return m.currency
}

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d %s", m.amount/100, m.amount%100, m.currency)
}

type moneyJSON struct {
	AmountCents int64             `json:"amountCents"`
	Currency    currency.Currency `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{AmountCents: m.amount, Currency: m.currency})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	parsed, err := New(raw.AmountCents, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed

	return nil
}

// Add returns m + other, failing on currency mismatch.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: cannot add %s to %s", ErrCurrencyMismatch, other.currency, m.currency)
	}

	// Amounts are never negative, so a sum below either operand means the
	// addition wrapped around.
	sum := m.amount + other.amount
	if sum < m.amount {
		return Money{}, ErrAmountOverflow
	}

	return Money{amount: sum, currency: m.currency}, nil
}

// Sub returns m - other, failing on currency mismatch or a negative result.
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: cannot subtract %s from %s", ErrCurrencyMismatch, other.currency, m.currency)
	}
	if m.amount < other.amount {
		return Money{}, ErrNegativeAmount
	}

	return Money{amount: m.amount - other.amount, currency: m.currency}, nil
}

// Mul returns m multiplied by a non-negative factor.
func (m Money) Mul(factor int64) (Money, error) {
	if factor < 0 {
		return Money{}, ErrNegativeAmount
	}
	if factor != 0 && m.amount > math.MaxInt64/factor {
		return Money{}, ErrAmountOverflow
	}

	return Money{amount: m.amount * factor, currency: m.currency}, nil
}
