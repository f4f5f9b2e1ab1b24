package domain

import "errors"

var (
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrOverflow         = errors.New("arithmetic overflow in money calculation")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrNotFound         = errors.New("not found")
	ErrUnknownCurrency  = errors.New("unknown currency")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidCart      = errors.New("invalid cart")
	ErrEmptyCart        = errors.New("cart is empty")
)
