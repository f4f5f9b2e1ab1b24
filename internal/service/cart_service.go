package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/commerce-engine/internal/catalog"
	"github.com/fjod/commerce-engine/internal/domain"
	"github.com/fjod/commerce-engine/internal/session"
	"github.com/fjod/commerce-engine/pkg/logger"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrSessionNotFound   = fmt.Errorf("session %w", domain.ErrNotFound)
)

var tracer = otel.Tracer("cart-service")

// SessionStore is the versioned cart storage the service reads and writes.
type SessionStore interface {
	Load(ctx context.Context, id string) (*session.Data[domain.Cart], error)
	Save(ctx context.Context, id string, expectedVersion uint64, cart domain.Cart) (uint64, error)
	Delete(ctx context.Context, id string) error
	DeleteAt(ctx context.Context, id string, version uint64) error
}

// Result is the cart after an operation and the version it is stored at.
// Changed is false when the operation had nothing to do and nothing was written.
type Result struct {
	Cart    *domain.Cart
	Version uint64
	Changed bool
}

// CartService runs each request as one read-modify-write against the session
// store. A concurrent writer makes the save fail with session.ErrVersionConflict;
// the caller decides whether to retry.
type CartService struct {
	store    SessionStore
	products catalog.Lookup
	log      *logger.Logger
	currency domain.Currency
	pricing  domain.PricingCalculator
	now      func() time.Time
	maxQty   uint32 // 0 means no per-line cap
	sfg      singleflight.Group // Prevents read stampede on a hot session
}

type Option func(*CartService)

func WithPricingCalculator(p domain.PricingCalculator) Option {
	return func(s *CartService) { s.pricing = p }
}

// WithMaxQuantity caps the quantity a single line can reach through AddItem
// and UpdateQuantity. Larger requests fail with domain.ErrInvalidQuantity.
func WithMaxQuantity(limit uint32) Option {
	return func(s *CartService) { s.maxQty = limit }
}

func WithClock(now func() time.Time) Option {
	return func(s *CartService) { s.now = now }
}

// NewCartService creates carts in currency for sessions that have none yet.
func NewCartService(store SessionStore, products catalog.Lookup, log *logger.Logger, currency domain.Currency, opts ...Option) *CartService {
	s := &CartService{
		store:    store,
		products: products,
		log:      log,
		currency: currency,
		pricing:  domain.DefaultPricingCalculator,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetCart returns the session's cart, or an empty one at version 0 when the
// session has never been written.
func (s *CartService) GetCart(ctx context.Context, sessionID string) (Result, error) {
	ctx, span := startSpan(ctx, "GetCart", sessionID)
	defer span.End()

	type loaded struct {
		cart    *domain.Cart
		version uint64
	}
	v, err, _ := s.sfg.Do(sessionID, func() (interface{}, error) {
		cart, version, err := s.load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return loaded{cart: cart, version: version}, nil
	})
	if err != nil {
		return Result{}, fail(span, err)
	}

	l := v.(loaded)
	// callers sharing the flight must not share the cart
	return Result{Cart: l.cart.Clone(), Version: l.version}, nil
}

// AddItem prices the product from the catalog and adds quantity of variantID.
// An empty variantID means the product has no variants.
func (s *CartService) AddItem(ctx context.Context, sessionID, productID, variantID string, quantity uint32) (Result, error) {
	ctx, span := startSpan(ctx, "AddItem", sessionID)
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int64("quantity", int64(quantity)))

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return Result{}, fail(span, err)
	}
	if variantID == "" {
		variantID = product.ID
	}

	res, err := s.mutate(ctx, sessionID, func(cart *domain.Cart) (bool, error) {
		line := uint64(quantity)
		if existing, ok := cart.ItemByVariant(variantID); ok {
			line += uint64(existing.Quantity)
		}
		if err := s.checkLimit(variantID, line); err != nil {
			return false, err
		}
		// stock is per product, shared by all its variants
		if err := checkStock(product, cart.ProductQuantity(product.ID)+uint64(quantity)); err != nil {
			return false, err
		}
		if _, err := cart.AddItem(variantID, product.ID, product.Name, quantity, product.Price()); err != nil {
			return false, err
		}
		return true, nil
	})
	return res, fail(span, err)
}

// UpdateQuantity sets an item's quantity; zero removes it. Changed is false
// when the cart has no such item.
func (s *CartService) UpdateQuantity(ctx context.Context, sessionID string, itemID domain.LineItemID, quantity uint32) (Result, error) {
	ctx, span := startSpan(ctx, "UpdateQuantity", sessionID)
	defer span.End()

	res, err := s.mutate(ctx, sessionID, func(cart *domain.Cart) (bool, error) {
		if quantity > 0 {
			item, err := cart.Item(itemID)
			if errors.Is(err, domain.ErrNotFound) {
				return false, nil
			}
			if err := s.checkLimit(item.VariantID, uint64(quantity)); err != nil {
				return false, err
			}
			product, err := s.products.GetProduct(ctx, item.ProductID)
			if err != nil {
				return false, err
			}
			others := cart.ProductQuantity(item.ProductID) - uint64(item.Quantity)
			if err := checkStock(product, others+uint64(quantity)); err != nil {
				return false, err
			}
		}
		return cart.UpdateQuantity(itemID, quantity)
	})
	return res, fail(span, err)
}

func (s *CartService) RemoveItem(ctx context.Context, sessionID string, itemID domain.LineItemID) (Result, error) {
	ctx, span := startSpan(ctx, "RemoveItem", sessionID)
	defer span.End()

	res, err := s.mutate(ctx, sessionID, func(cart *domain.Cart) (bool, error) {
		return cart.RemoveItem(itemID), nil
	})
	return res, fail(span, err)
}

func (s *CartService) ClearCart(ctx context.Context, sessionID string) (Result, error) {
	ctx, span := startSpan(ctx, "ClearCart", sessionID)
	defer span.End()

	res, err := s.mutate(ctx, sessionID, func(cart *domain.Cart) (bool, error) {
		if cart.IsEmpty() {
			return false, nil
		}
		cart.Clear()
		return true, nil
	})
	return res, fail(span, err)
}

// MergeCarts folds the guest session's cart into the user's, typically on
// sign-in. The guest session is deleted once the merged cart is saved, but
// only if it is still at the version that was merged. A guest write that
// lands in between keeps the guest session alive.
func (s *CartService) MergeCarts(ctx context.Context, guestID, userID string) (Result, error) {
	ctx, span := startSpan(ctx, "MergeCarts", userID)
	defer span.End()
	span.SetAttributes(attribute.String("guest.session.id", guestID))

	if guestID == userID {
		cart, version, err := s.load(ctx, userID)
		if err != nil {
			return Result{}, fail(span, err)
		}
		return Result{Cart: cart, Version: version}, nil
	}

	guest, guestVersion, err := s.load(ctx, guestID)
	if err != nil {
		return Result{}, fail(span, err)
	}

	res, err := s.mutate(ctx, userID, func(cart *domain.Cart) (bool, error) {
		if guest.IsEmpty() {
			return false, nil
		}
		if err := cart.Merge(guest); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return Result{}, fail(span, err)
	}

	if res.Changed {
		err := s.store.DeleteAt(ctx, guestID, guestVersion)
		switch {
		case errors.Is(err, session.ErrVersionConflict):
			s.log.WithContext(ctx).Warn("guest session changed during merge, keeping it",
				"guest_session_id", guestID, "merged_version", guestVersion)
		case err != nil:
			s.log.WithContext(ctx).Warn("guest session delete failed", "guest_session_id", guestID, "error", err)
		}
	}
	return res, nil
}

// Pricing prices the session's cart. A session that was never written prices
// as an empty cart.
func (s *CartService) Pricing(ctx context.Context, sessionID string, taxRate decimal.Decimal, discount domain.Money) (domain.CartPricing, error) {
	ctx, span := startSpan(ctx, "Pricing", sessionID)
	defer span.End()

	cart, _, err := s.load(ctx, sessionID)
	if err != nil {
		return domain.CartPricing{}, fail(span, err)
	}
	pricing, err := s.pricing.Calculate(cart, taxRate, discount)
	return pricing, fail(span, err)
}

// Snapshot captures the cart and its pricing for checkout.
func (s *CartService) Snapshot(ctx context.Context, sessionID string, taxRate decimal.Decimal, discount domain.Money) (domain.Snapshot, error) {
	ctx, span := startSpan(ctx, "Snapshot", sessionID)
	defer span.End()

	data, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, fail(span, err)
	}
	if data == nil {
		return domain.Snapshot{}, fail(span, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID))
	}
	cart := &data.Payload
	if err := cart.Validate(); err != nil {
		return domain.Snapshot{}, fail(span, err)
	}
	if cart.IsEmpty() {
		return domain.Snapshot{}, fail(span, fmt.Errorf("%w: session %s", domain.ErrEmptyCart, sessionID))
	}

	pricing, err := s.pricing.Calculate(cart, taxRate, discount)
	if err != nil {
		return domain.Snapshot{}, fail(span, err)
	}
	snap, err := domain.NewSnapshot(cart, pricing, s.now().UTC())
	return snap, fail(span, err)
}

// DeleteSession drops the session and its cart.
func (s *CartService) DeleteSession(ctx context.Context, sessionID string) error {
	ctx, span := startSpan(ctx, "DeleteSession", sessionID)
	defer span.End()

	return fail(span, s.store.Delete(ctx, sessionID))
}

// mutate loads the cart, applies fn and saves only if fn reports a change.
// fn leaves the cart untouched when it fails.
func (s *CartService) mutate(ctx context.Context, sessionID string, fn func(cart *domain.Cart) (bool, error)) (Result, error) {
	cart, version, err := s.load(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}

	changed, err := fn(cart)
	if err != nil {
		return Result{}, err
	}
	if !changed {
		return Result{Cart: cart, Version: version}, nil
	}

	newVersion, err := s.store.Save(ctx, sessionID, version, *cart)
	if errors.Is(err, session.ErrVersionConflict) {
		s.log.WithContext(ctx).Debug("cart save lost a race", "session_id", sessionID, "version", version)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Cart: cart, Version: newVersion, Changed: true}, nil
}

func (s *CartService) load(ctx context.Context, sessionID string) (*domain.Cart, uint64, error) {
	data, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if data == nil {
		return domain.NewCart(sessionID, s.currency), 0, nil
	}

	cart := &data.Payload
	if cart.Items == nil {
		cart.Items = []domain.LineItem{}
	}
	if err := cart.Validate(); err != nil {
		return nil, 0, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return cart, data.Version, nil
}

func (s *CartService) checkLimit(variantID string, quantity uint64) error {
	if s.maxQty > 0 && quantity > uint64(s.maxQty) {
		return fmt.Errorf("%w: %d of variant %s exceeds the limit of %d", domain.ErrInvalidQuantity, quantity, variantID, s.maxQty)
	}
	return nil
}

func checkStock(p *catalog.Product, want uint64) error {
	if p.Stock < 0 || want > uint64(p.Stock) {
		return fmt.Errorf("%w: product %s has %d, requested %d", ErrInsufficientStock, p.ID, p.Stock, want)
	}
	return nil
}

func startSpan(ctx context.Context, op, sessionID string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "CartService."+op)
	span.SetAttributes(attribute.String("session.id", sessionID))
	return ctx, span
}

// fail records err on span and returns it unchanged.
func fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
