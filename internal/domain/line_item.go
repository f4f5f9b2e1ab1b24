package domain

import (
	"fmt"

	"github.com/google/uuid"
)

type LineItemID string

func NewLineItemID() LineItemID {
	return LineItemID(uuid.NewString())
}

// LineItem is one cart entry. Quantity is at least 1 for as long as the
// item exists and UnitPrice*Quantity always fits in an int64.
type LineItem struct {
	ID          LineItemID `json:"id"`
	VariantID   string     `json:"variant_id"`
	ProductID   string     `json:"product_id"`
	DisplayName string     `json:"display_name"`
	Quantity    uint32     `json:"quantity"`
	UnitPrice   Money      `json:"unit_price"`
}

func NewLineItem(variantID, productID, displayName string, quantity uint32, unitPrice Money) (LineItem, error) {
	item := LineItem{
		ID:          NewLineItemID(),
		VariantID:   variantID,
		ProductID:   productID,
		DisplayName: displayName,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
	}
	if err := item.validate(); err != nil {
		return LineItem{}, err
	}
	return item, nil
}

// LineTotal is UnitPrice * Quantity. Items built by NewLineItem or mutated
// through Cart never overflow here.
func (li LineItem) LineTotal() Money {
	return li.UnitPrice.Multiply(uint64(li.Quantity))
}

// withQuantity returns a copy with a new quantity, re-checking the line total.
func (li LineItem) withQuantity(quantity uint32) (LineItem, error) {
	li.Quantity = quantity
	if err := li.validate(); err != nil {
		return LineItem{}, err
	}
	return li, nil
}

func (li LineItem) validate() error {
	if li.Quantity == 0 {
		return fmt.Errorf("%w: quantity must be at least 1 for variant %s", ErrInvalidQuantity, li.VariantID)
	}
	if _, err := li.UnitPrice.TryMultiply(uint64(li.Quantity)); err != nil {
		return err
	}
	return nil
}

// addQuantity sums two quantities, failing with ErrOverflow past math.MaxUint32.
func addQuantity(a, b uint32) (uint32, error) {
	sum := a + b
	if sum < a {
		return 0, fmt.Errorf("%w: quantity %d + %d", ErrOverflow, a, b)
	}
	return sum, nil
}
