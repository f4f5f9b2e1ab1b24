package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// DiscountPolicy decides what happens when a discount exceeds the subtotal.
type DiscountPolicy int

const (
	// DiscountClampToZero floors the discounted subtotal at zero.
	DiscountClampToZero DiscountPolicy = iota
	// DiscountAllowNegative keeps a negative discounted subtotal; no tax is charged on it.
	DiscountAllowNegative
)

// RoundingMode decides how fractional minor units of tax are rounded.
type RoundingMode int

const (
	// RoundDown drops any fraction of a minor unit.
	RoundDown RoundingMode = iota
	// RoundHalfUp rounds fractions of one half or more up to the next minor unit.
	RoundHalfUp
)

type PricingPolicy struct {
	Discount DiscountPolicy
	Rounding RoundingMode
}

// PricingCalculator derives CartPricing from a cart snapshot.
type PricingCalculator struct {
	Policy PricingPolicy
}

// DefaultPricingCalculator clamps discounts at zero and rounds tax down.
var DefaultPricingCalculator = PricingCalculator{}

var maxAmount = decimal.NewFromInt(math.MaxInt64)

type LinePricing struct {
	LineItemID LineItemID `json:"line_item_id"`
	UnitPrice  Money      `json:"unit_price"`
	Quantity   uint32     `json:"quantity"`
	Subtotal   Money      `json:"subtotal"`
}

// CartPricing is derived from a cart and never stored as the source of truth.
// Discount is the amount actually taken off, which is less than the requested
// discount when DiscountClampToZero applies.
type CartPricing struct {
	Subtotal Money         `json:"subtotal"`
	Discount Money         `json:"discount"`
	Tax      Money         `json:"tax"`
	Total    Money         `json:"total"`
	Lines    []LinePricing `json:"lines"`
}

// Calculate prices cart: subtotal, minus discount, plus tax on the discounted
// subtotal. taxRate is a fraction (0.08 for 8%). Any failure returns no pricing.
func (p PricingCalculator) Calculate(cart *Cart, taxRate decimal.Decimal, discount Money) (CartPricing, error) {
	if cart == nil {
		return CartPricing{}, fmt.Errorf("%w: nil cart", ErrInvalidCart)
	}
	if taxRate.IsNegative() {
		return CartPricing{}, fmt.Errorf("%w: negative tax rate %s", ErrInvalidAmount, taxRate)
	}
	if discount.Currency != cart.Currency {
		return CartPricing{}, mismatch(cart.Currency, discount.Currency)
	}
	if discount.IsNegative() {
		return CartPricing{}, fmt.Errorf("%w: negative discount %s", ErrInvalidAmount, discount)
	}

	lines := make([]LinePricing, 0, len(cart.Items))
	for _, item := range cart.Items {
		lineTotal, err := item.UnitPrice.TryMultiply(uint64(item.Quantity))
		if err != nil {
			return CartPricing{}, err
		}
		lines = append(lines, LinePricing{
			LineItemID: item.ID,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
			Subtotal:   lineTotal,
		})
	}

	subtotal, err := TrySum(func(yield func(Money) bool) {
		for _, l := range lines {
			if !yield(l.Subtotal) {
				return
			}
		}
	}, cart.Currency)
	if err != nil {
		return CartPricing{}, err
	}

	discounted, err := subtotal.TrySubtract(discount)
	if err != nil {
		return CartPricing{}, err
	}
	if p.Policy.Discount == DiscountClampToZero && discounted.IsNegative() {
		discounted = Zero(cart.Currency)
	}
	applied, err := subtotal.TrySubtract(discounted)
	if err != nil {
		return CartPricing{}, err
	}

	tax, err := p.tax(discounted, taxRate)
	if err != nil {
		return CartPricing{}, err
	}
	total, err := discounted.TryAdd(tax)
	if err != nil {
		return CartPricing{}, err
	}

	return CartPricing{
		Subtotal: subtotal,
		Discount: applied,
		Tax:      tax,
		Total:    total,
		Lines:    lines,
	}, nil
}

func (p PricingCalculator) tax(base Money, rate decimal.Decimal) (Money, error) {
	if base.Amount <= 0 || rate.IsZero() {
		return Zero(base.Currency), nil
	}
	exact := decimal.NewFromInt(base.Amount).Mul(rate)
	var rounded decimal.Decimal
	switch p.Policy.Rounding {
	case RoundHalfUp:
		rounded = exact.Round(0)
	default:
		rounded = exact.Floor()
	}
	if rounded.GreaterThan(maxAmount) {
		return Money{}, fmt.Errorf("%w: tax %s on %d", ErrOverflow, rate, base.Amount)
	}
	return NewMoney(rounded.IntPart(), base.Currency), nil
}
