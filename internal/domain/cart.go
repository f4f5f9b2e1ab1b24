package domain

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// Cart is the line items of one session, in insertion order. Every item is
// priced in the cart currency and each variant appears at most once.
type Cart struct {
	SessionID string     `json:"session_id"`
	Currency  Currency   `json:"currency"`
	Items     []LineItem `json:"items"`
}

func NewCart(sessionID string, currency Currency) *Cart {
	return &Cart{
		SessionID: sessionID,
		Currency:  currency,
		Items:     []LineItem{},
	}
}

// AddItem adds quantity of a variant. An existing entry for the variant keeps
// its id and price and has its quantity increased; otherwise a new entry is appended.
func (c *Cart) AddItem(variantID, productID, displayName string, quantity uint32, unitPrice Money) (LineItemID, error) {
	if quantity == 0 {
		return "", fmt.Errorf("%w: cannot add zero of variant %s", ErrInvalidQuantity, variantID)
	}
	if unitPrice.Currency != c.Currency {
		return "", mismatch(c.Currency, unitPrice.Currency)
	}

	if i := c.indexOfVariant(variantID); i >= 0 {
		q, err := addQuantity(c.Items[i].Quantity, quantity)
		if err != nil {
			return "", err
		}
		updated, err := c.Items[i].withQuantity(q)
		if err != nil {
			return "", err
		}
		c.Items[i] = updated
		return updated.ID, nil
	}

	item, err := NewLineItem(variantID, productID, displayName, quantity, unitPrice)
	if err != nil {
		return "", err
	}
	c.Items = append(c.Items, item)
	return item.ID, nil
}

// UpdateQuantity sets the quantity of an item. It reports false when no item
// has the id; a quantity of zero removes the item.
func (c *Cart) UpdateQuantity(id LineItemID, quantity uint32) (bool, error) {
	i := c.indexOfID(id)
	if i < 0 {
		return false, nil
	}
	if quantity == 0 {
		c.Items = slices.Delete(c.Items, i, i+1)
		return true, nil
	}
	updated, err := c.Items[i].withQuantity(quantity)
	if err != nil {
		return false, err
	}
	c.Items[i] = updated
	return true, nil
}

func (c *Cart) RemoveItem(id LineItemID) bool {
	i := c.indexOfID(id)
	if i < 0 {
		return false
	}
	c.Items = slices.Delete(c.Items, i, i+1)
	return true
}

func (c *Cart) Clear() {
	c.Items = []LineItem{}
}

// Merge folds other into c, typically a guest cart into a signed-in user's cart.
// Shared variants have their quantities summed; new variants keep their id
// unless it is already used in c. On error c is left exactly as it was.
func (c *Cart) Merge(other *Cart) error {
	if other == nil {
		return nil
	}
	if other.Currency != c.Currency {
		return mismatch(c.Currency, other.Currency)
	}

	merged := slices.Clone(c.Items)
	byVariant := make(map[string]int, len(merged))
	ids := make(map[LineItemID]struct{}, len(merged)+len(other.Items))
	for i, item := range merged {
		byVariant[item.VariantID] = i
		ids[item.ID] = struct{}{}
	}

	for _, item := range other.Items {
		if i, ok := byVariant[item.VariantID]; ok {
			q, err := addQuantity(merged[i].Quantity, item.Quantity)
			if err != nil {
				return err
			}
			updated, err := merged[i].withQuantity(q)
			if err != nil {
				return err
			}
			merged[i] = updated
			continue
		}

		if item.UnitPrice.Currency != c.Currency {
			return mismatch(c.Currency, item.UnitPrice.Currency)
		}
		if err := item.validate(); err != nil {
			return err
		}
		if _, taken := ids[item.ID]; taken || item.ID == "" {
			item.ID = NewLineItemID()
		}
		ids[item.ID] = struct{}{}
		byVariant[item.VariantID] = len(merged)
		merged = append(merged, item)
	}

	c.Items = merged
	return nil
}

// CalculatePricing prices the cart with the default policy.
func (c *Cart) CalculatePricing(taxRate decimal.Decimal, discount Money) (CartPricing, error) {
	return DefaultPricingCalculator.Calculate(c, taxRate, discount)
}

// CalculatePricingWithDiscount resolves d against the cart subtotal and prices
// the cart with the default policy.
func (c *Cart) CalculatePricingWithDiscount(taxRate decimal.Decimal, d Discount) (CartPricing, error) {
	subtotal, err := c.Subtotal()
	if err != nil {
		return CartPricing{}, err
	}
	amount, err := d.Amount(subtotal)
	if err != nil {
		return CartPricing{}, err
	}
	return DefaultPricingCalculator.Calculate(c, taxRate, amount)
}

// Subtotal is the sum of all line totals.
func (c *Cart) Subtotal() (Money, error) {
	return TrySum(func(yield func(Money) bool) {
		for _, item := range c.Items {
			if !yield(item.LineTotal()) {
				return
			}
		}
	}, c.Currency)
}

// Item returns the item with the given id or ErrNotFound.
func (c *Cart) Item(id LineItemID) (LineItem, error) {
	i := c.indexOfID(id)
	if i < 0 {
		return LineItem{}, fmt.Errorf("%w: line item %s", ErrNotFound, id)
	}
	return c.Items[i], nil
}

func (c *Cart) ItemByVariant(variantID string) (LineItem, bool) {
	i := c.indexOfVariant(variantID)
	if i < 0 {
		return LineItem{}, false
	}
	return c.Items[i], true
}

func (c *Cart) Len() int {
	return len(c.Items)
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// TotalQuantity sums the item quantities.
func (c *Cart) TotalQuantity() uint64 {
	var n uint64
	for _, item := range c.Items {
		n += uint64(item.Quantity)
	}
	return n
}

// ProductQuantity sums the quantities of every variant of productID.
func (c *Cart) ProductQuantity(productID string) uint64 {
	var n uint64
	for _, item := range c.Items {
		if item.ProductID == productID {
			n += uint64(item.Quantity)
		}
	}
	return n
}

func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = slices.Clone(c.Items)
	if cp.Items == nil {
		cp.Items = []LineItem{}
	}
	return &cp
}

// Validate checks every cart invariant. Carts decoded from storage bypass the
// mutators and must be validated before use.
func (c *Cart) Validate() error {
	if !c.Currency.Valid() {
		return fmt.Errorf("%w: %w %q", ErrInvalidCart, ErrUnknownCurrency, c.Currency)
	}
	variants := make(map[string]struct{}, len(c.Items))
	ids := make(map[LineItemID]struct{}, len(c.Items))
	for _, item := range c.Items {
		if item.ID == "" {
			return fmt.Errorf("%w: item for variant %s has no id", ErrInvalidCart, item.VariantID)
		}
		if _, dup := ids[item.ID]; dup {
			return fmt.Errorf("%w: duplicate line item id %s", ErrInvalidCart, item.ID)
		}
		if _, dup := variants[item.VariantID]; dup {
			return fmt.Errorf("%w: duplicate variant %s", ErrInvalidCart, item.VariantID)
		}
		if item.UnitPrice.Currency != c.Currency {
			return fmt.Errorf("%w: %w", ErrInvalidCart, mismatch(c.Currency, item.UnitPrice.Currency))
		}
		if err := item.validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCart, err)
		}
		ids[item.ID] = struct{}{}
		variants[item.VariantID] = struct{}{}
	}
	return nil
}

func (c *Cart) indexOfID(id LineItemID) int {
	return slices.IndexFunc(c.Items, func(item LineItem) bool { return item.ID == id })
}

func (c *Cart) indexOfVariant(variantID string) int {
	return slices.IndexFunc(c.Items, func(item LineItem) bool { return item.VariantID == variantID })
}
