package domain

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency("usd")
	require.NoError(t, err)
	assert.Equal(t, USD, c)

	c, err = ParseCurrency(" EUR ")
	require.NoError(t, err)
	assert.Equal(t, EUR, c)

	_, err = ParseCurrency("XXX")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestMoney_CurrencyMismatch(t *testing.T) {
	usd := NewMoney(1000, USD)
	eur := NewMoney(1000, EUR)

	_, err := usd.TryAdd(eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = usd.TrySubtract(eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = eur.TryAdd(usd)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestMoney_TryAdd(t *testing.T) {
	sum, err := NewMoney(1000, USD).TryAdd(NewMoney(500, USD))
	require.NoError(t, err)
	assert.Equal(t, NewMoney(1500, USD), sum)

	_, err = NewMoney(math.MaxInt64, USD).TryAdd(NewMoney(1, USD))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = NewMoney(math.MinInt64, USD).TryAdd(NewMoney(-1, USD))
	assert.ErrorIs(t, err, ErrOverflow)

	sum, err = NewMoney(math.MaxInt64, USD).TryAdd(NewMoney(math.MinInt64, USD))
	require.NoError(t, err)
	assert.Equal(t, int64(-1), sum.Amount)
}

func TestMoney_TrySubtract(t *testing.T) {
	diff, err := NewMoney(1000, USD).TrySubtract(NewMoney(300, USD))
	require.NoError(t, err)
	assert.Equal(t, int64(700), diff.Amount)

	// negative results are allowed
	diff, err = NewMoney(300, USD).TrySubtract(NewMoney(1000, USD))
	require.NoError(t, err)
	assert.Equal(t, int64(-700), diff.Amount)

	_, err = NewMoney(math.MinInt64, USD).TrySubtract(NewMoney(1, USD))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = NewMoney(0, USD).TrySubtract(NewMoney(math.MinInt64, USD))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMoney_TryMultiply(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		quantity uint64
		want     int64
		overflow bool
	}{
		{name: "simple", amount: 1000, quantity: 2, want: 2000},
		{name: "zero quantity", amount: 1000, quantity: 0, want: 0},
		{name: "zero amount huge quantity", amount: 0, quantity: math.MaxUint64, want: 0},
		{name: "max fits", amount: math.MaxInt64, quantity: 1, want: math.MaxInt64},
		{name: "just over", amount: math.MaxInt64/2 + 1, quantity: 2, overflow: true},
		{name: "quantity beyond int64", amount: 1, quantity: math.MaxInt64 + 1, overflow: true},
		{name: "negative fits min", amount: -1, quantity: 1 << 63, want: math.MinInt64},
		{name: "negative overflow", amount: -2, quantity: 1 << 62 + 1, overflow: true},
		{name: "high word overflow", amount: math.MaxInt64, quantity: math.MaxUint64, overflow: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewMoney(tt.amount, USD).TryMultiply(tt.quantity)
			if tt.overflow {
				assert.ErrorIs(t, err, ErrOverflow)
				assert.Panics(t, func() { NewMoney(tt.amount, USD).Multiply(tt.quantity) })
				return
			}
			require.NoError(t, err)
			assert.Equal(t, NewMoney(tt.want, USD), got)
			assert.Equal(t, got, NewMoney(tt.amount, USD).Multiply(tt.quantity))
		})
	}
}

func TestTrySum(t *testing.T) {
	sum, err := TrySum(slices.Values([]Money{}), EUR)
	require.NoError(t, err)
	assert.Equal(t, Zero(EUR), sum)

	sum, err = TrySum(slices.Values([]Money{NewMoney(100, USD), NewMoney(250, USD)}), USD)
	require.NoError(t, err)
	assert.Equal(t, NewMoney(350, USD), sum)

	_, err = TrySum(slices.Values([]Money{NewMoney(100, USD), NewMoney(250, EUR)}), USD)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	// values in a currency other than the declared one are rejected
	_, err = TrySum(slices.Values([]Money{NewMoney(100, EUR)}), USD)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = TrySum(slices.Values([]Money{NewMoney(math.MaxInt64, USD), NewMoney(1, USD)}), USD)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestTrySum_ShortCircuits(t *testing.T) {
	pulled := 0
	seq := func(yield func(Money) bool) {
		for _, m := range []Money{NewMoney(1, EUR), NewMoney(2, USD), NewMoney(3, USD)} {
			pulled++
			if !yield(m) {
				return
			}
		}
	}
	_, err := TrySum(seq, USD)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
	assert.Equal(t, 1, pulled)
}

func TestMoney_Negate(t *testing.T) {
	n, err := NewMoney(500, USD).Negate()
	require.NoError(t, err)
	assert.Equal(t, int64(-500), n.Amount)

	_, err = NewMoney(math.MinInt64, USD).Negate()
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMoney_String(t *testing.T) {
	assert.Equal(t, "$49.99", NewMoney(4999, USD).String())
	assert.Equal(t, "$0.05", NewMoney(5, USD).String())
	assert.Equal(t, "-€12.00", NewMoney(-1200, EUR).String())
	assert.Equal(t, "¥100", NewMoney(100, JPY).String())
}
