package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/commerce-engine/internal/domain"
)

var ErrProductNotFound = fmt.Errorf("product %w", domain.ErrNotFound)

// Product is the catalog view the cart needs: what to call it, what it
// costs and how many are left.
type Product struct {
	ID          string
	Name        string
	Description string
	PriceMinor  int64
	Currency    domain.Currency
	Category    string
	Stock       int64
}

func (p *Product) Price() domain.Money {
	return domain.NewMoney(p.PriceMinor, p.Currency)
}

// Lookup resolves products by id.
type Lookup interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound)
}
