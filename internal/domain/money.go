package domain

import (
	"fmt"
	"iter"
	"math"
	"math/bits"
	"strings"
)

// Currency is an ISO 4217 currency code.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
	CAD Currency = "CAD"
	AUD Currency = "AUD"
	CHF Currency = "CHF"
	CNY Currency = "CNY"
	INR Currency = "INR"
	MXN Currency = "MXN"
)

var currencySymbols = map[Currency]string{
	USD: "$",
	EUR: "€",
	GBP: "£",
	JPY: "¥",
	CAD: "CA$",
	AUD: "A$",
	CHF: "CHF",
	CNY: "¥",
	INR: "₹",
	MXN: "MX$",
}

// ParseCurrency parses a currency code, ignoring case and surrounding spaces.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return c, nil
}

func (c Currency) Valid() bool {
	_, ok := currencySymbols[c]
	return ok
}

func (c Currency) Symbol() string {
	if s, ok := currencySymbols[c]; ok {
		return s
	}
	return string(c)
}

// DecimalPlaces is the number of minor-unit digits (2 for cents, 0 for yen).
func (c Currency) DecimalPlaces() int32 {
	if c == JPY {
		return 0
	}
	return 2
}

func (c Currency) String() string {
	return string(c)
}

// Money is an amount in the minor unit of its currency. It is a value type;
// every operation returns a new Money.
type Money struct {
	Amount   int64    `json:"amount"`
	Currency Currency `json:"currency"`
}

func NewMoney(amount int64, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

func Zero(currency Currency) Money {
	return Money{Currency: currency}
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

func (m Money) IsNegative() bool {
	return m.Amount < 0
}

// Negate returns -m. math.MinInt64 has no positive counterpart and reports ErrOverflow.
func (m Money) Negate() (Money, error) {
	if m.Amount == math.MinInt64 {
		return Money{}, ErrOverflow
	}
	return Money{Amount: -m.Amount, Currency: m.Currency}, nil
}

// TryMultiply multiplies the amount by quantity, failing with ErrOverflow
// when the product does not fit in an int64.
func (m Money) TryMultiply(quantity uint64) (Money, error) {
	amount, ok := mulInt64Uint64(m.Amount, quantity)
	if !ok {
		return Money{}, fmt.Errorf("%w: %d x %d", ErrOverflow, m.Amount, quantity)
	}
	return Money{Amount: amount, Currency: m.Currency}, nil
}

// Multiply is TryMultiply for callers that have already bounded the inputs.
// It panics on overflow.
func (m Money) Multiply(quantity uint64) Money {
	res, err := m.TryMultiply(quantity)
	if err != nil {
		panic(err)
	}
	return res
}

func (m Money) TryAdd(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, mismatch(m.Currency, other.Currency)
	}
	sum := m.Amount + other.Amount
	// overflow iff both operands share a sign that the result does not
	if (m.Amount^sum)&(other.Amount^sum) < 0 {
		return Money{}, fmt.Errorf("%w: %d + %d", ErrOverflow, m.Amount, other.Amount)
	}
	return Money{Amount: sum, Currency: m.Currency}, nil
}

// TrySubtract returns m - other. Negative results are allowed.
func (m Money) TrySubtract(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, mismatch(m.Currency, other.Currency)
	}
	diff := m.Amount - other.Amount
	if (m.Amount^other.Amount)&(m.Amount^diff) < 0 {
		return Money{}, fmt.Errorf("%w: %d - %d", ErrOverflow, m.Amount, other.Amount)
	}
	return Money{Amount: diff, Currency: m.Currency}, nil
}

// TrySum adds up values in the given currency and stops at the first error.
// An empty sequence sums to zero.
func TrySum(values iter.Seq[Money], currency Currency) (Money, error) {
	total := Zero(currency)
	for v := range values {
		var err error
		if total, err = total.TryAdd(v); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

// String formats the amount for display, e.g. "$49.99" or "-¥100".
func (m Money) String() string {
	places := m.Currency.DecimalPlaces()
	sign := ""
	abs := uint64(m.Amount)
	if m.Amount < 0 {
		sign = "-"
		abs = -abs
	}
	if places == 0 {
		return fmt.Sprintf("%s%s%d", sign, m.Currency.Symbol(), abs)
	}
	div := uint64(1)
	for range places {
		div *= 10
	}
	return fmt.Sprintf("%s%s%d.%0*d", sign, m.Currency.Symbol(), abs/div, int(places), abs%div)
}

func mismatch(expected, got Currency) error {
	return fmt.Errorf("%w: expected %s, got %s", ErrCurrencyMismatch, expected, got)
}

func mulInt64Uint64(a int64, q uint64) (int64, bool) {
	if a == 0 || q == 0 {
		return 0, true
	}
	abs := uint64(a)
	if a < 0 {
		abs = -abs
	}
	hi, lo := bits.Mul64(abs, q)
	if hi != 0 {
		return 0, false
	}
	if a > 0 {
		if lo > math.MaxInt64 {
			return 0, false
		}
		return int64(lo), true
	}
	if lo > 1<<63 {
		return 0, false
	}
	// lo == 1<<63 wraps to MinInt64, which is the correct result
	return -int64(lo), true
}
