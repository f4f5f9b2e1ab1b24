package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshot(t *testing.T) {
	cart := NewCart("sess-1", USD)
	id, err := cart.AddItem("v1", "p1", "Mug", 3, NewMoney(1250, USD))
	require.NoError(t, err)

	pricing, err := cart.CalculatePricing(decimal.RequireFromString("0.1"), NewMoney(250, USD))
	require.NoError(t, err)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	snap, err := NewSnapshot(cart, pricing, at)
	require.NoError(t, err)

	assert.Equal(t, "sess-1", snap.SessionID)
	assert.Equal(t, USD, snap.Currency)
	assert.Equal(t, at, snap.CapturedAt)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, id, snap.Items[0].LineItemID)
	assert.Equal(t, "Mug", snap.Items[0].ProductName)
	assert.Equal(t, NewMoney(3750, USD), snap.Items[0].Subtotal)
	assert.Equal(t, NewMoney(350, USD), snap.Pricing.Tax)
	assert.Equal(t, NewMoney(3850, USD), snap.Pricing.Total)
}

func TestNewSnapshot_PricingFromAnotherCart(t *testing.T) {
	cart := NewCart("sess-1", USD)
	_, err := cart.AddItem("v1", "p1", "Mug", 1, NewMoney(1250, USD))
	require.NoError(t, err)

	other := NewCart("sess-2", USD)
	_, err = other.AddItem("v1", "p1", "Mug", 1, NewMoney(1250, USD))
	require.NoError(t, err)
	_, err = other.AddItem("v2", "p2", "Pen", 1, NewMoney(100, USD))
	require.NoError(t, err)

	otherPricing, err := other.CalculatePricing(decimal.Zero, Zero(USD))
	require.NoError(t, err)
	_, err = NewSnapshot(cart, otherPricing, time.Now())
	assert.ErrorIs(t, err, ErrInvalidCart)

	// same length, different items
	single := NewCart("sess-3", USD)
	_, err = single.AddItem("v9", "p9", "Lamp", 1, NewMoney(900, USD))
	require.NoError(t, err)
	singlePricing, err := single.CalculatePricing(decimal.Zero, Zero(USD))
	require.NoError(t, err)
	_, err = NewSnapshot(cart, singlePricing, time.Now())
	assert.ErrorIs(t, err, ErrInvalidCart)

	_, err = NewSnapshot(cart, CartPricing{}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidCart)
}
