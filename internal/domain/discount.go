package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Discount turns a subtotal into the amount to take off it.
type Discount interface {
	Amount(subtotal Money) (Money, error)
}

// FixedDiscount takes a fixed amount off, never more than the subtotal.
type FixedDiscount struct {
	Value Money
}

func (d FixedDiscount) Amount(subtotal Money) (Money, error) {
	if d.Value.Currency != subtotal.Currency {
		return Money{}, mismatch(subtotal.Currency, d.Value.Currency)
	}
	if d.Value.IsNegative() {
		return Money{}, fmt.Errorf("%w: negative discount %s", ErrInvalidAmount, d.Value)
	}
	if subtotal.Amount <= 0 {
		return Zero(subtotal.Currency), nil
	}
	if d.Value.Amount > subtotal.Amount {
		return subtotal, nil
	}
	return d.Value, nil
}

var hundred = decimal.NewFromInt(100)

// PercentageDiscount takes Percent (0 to 100) of the subtotal, rounded down
// to the minor unit.
type PercentageDiscount struct {
	Percent decimal.Decimal
}

func (d PercentageDiscount) Amount(subtotal Money) (Money, error) {
	if d.Percent.IsNegative() || d.Percent.GreaterThan(hundred) {
		return Money{}, fmt.Errorf("%w: discount percentage %s", ErrInvalidAmount, d.Percent)
	}
	if subtotal.Amount <= 0 {
		return Zero(subtotal.Currency), nil
	}
	// at most 100% of an int64, so IntPart cannot overflow
	off := decimal.NewFromInt(subtotal.Amount).Mul(d.Percent).Div(hundred).Floor()
	return NewMoney(off.IntPart(), subtotal.Currency), nil
}
