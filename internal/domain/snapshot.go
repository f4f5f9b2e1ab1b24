package domain

import (
	"fmt"
	"time"
)

type SnapshotItem struct {
	LineItemID  LineItemID `json:"line_item_id"`
	VariantID   string     `json:"variant_id"`
	ProductID   string     `json:"product_id"`
	ProductName string     `json:"product_name"`
	Quantity    uint32     `json:"quantity"`
	UnitPrice   Money      `json:"unit_price"`
	Subtotal    Money      `json:"subtotal"`
}

// Snapshot represents the full cart state at checkout time
type Snapshot struct {
	SessionID  string         `json:"session_id"`
	Items      []SnapshotItem `json:"items"`
	Pricing    CartPricing    `json:"pricing"`
	Currency   Currency       `json:"currency"`
	CapturedAt time.Time      `json:"captured_at"`
}

// NewSnapshot pairs a cart with pricing already calculated from it. Pricing
// whose lines do not match the cart items fails with ErrInvalidCart.
func NewSnapshot(cart *Cart, pricing CartPricing, capturedAt time.Time) (Snapshot, error) {
	if cart == nil {
		return Snapshot{}, fmt.Errorf("%w: nil cart", ErrInvalidCart)
	}
	if len(pricing.Lines) != len(cart.Items) {
		return Snapshot{}, fmt.Errorf("%w: pricing has %d lines for %d items", ErrInvalidCart, len(pricing.Lines), len(cart.Items))
	}
	items := make([]SnapshotItem, len(cart.Items))
	for i, item := range cart.Items {
		if pricing.Lines[i].LineItemID != item.ID {
			return Snapshot{}, fmt.Errorf("%w: pricing line %d is for item %s, not %s", ErrInvalidCart, i, pricing.Lines[i].LineItemID, item.ID)
		}
		items[i] = SnapshotItem{
			LineItemID:  item.ID,
			VariantID:   item.VariantID,
			ProductID:   item.ProductID,
			ProductName: item.DisplayName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    pricing.Lines[i].Subtotal,
		}
	}
	return Snapshot{
		SessionID:  cart.SessionID,
		Items:      items,
		Pricing:    pricing,
		Currency:   cart.Currency,
		CapturedAt: capturedAt,
	}, nil
}
