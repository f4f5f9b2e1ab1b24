package catalog

import (
	"context"

	"github.com/fjod/commerce-engine/pkg/circuitbreaker"
	"github.com/fjod/commerce-engine/pkg/logger"
	"github.com/sony/gobreaker/v2"
)

// BreakerLookup stops calling a failing catalog until it recovers. A product
// that does not exist is an answer, not a failure.
type BreakerLookup struct {
	next Lookup
	cb   *gobreaker.CircuitBreaker[*Product]
}

func NewBreakerLookup(next Lookup, settings circuitbreaker.Settings, log *logger.Logger) *BreakerLookup {
	settings.IsSuccessful = func(err error) bool {
		return err == nil || isNotFound(err)
	}
	settings.OnStateChange = func(name, from, to string) {
		log.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
	}
	return &BreakerLookup{
		next: next,
		cb:   circuitbreaker.New[*Product](settings),
	}
}

func (b *BreakerLookup) GetProduct(ctx context.Context, id string) (*Product, error) {
	return b.cb.Execute(func() (*Product, error) {
		return b.next.GetProduct(ctx, id)
	})
}
