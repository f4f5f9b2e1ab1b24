package grpc

import (
	"context"
	"errors"

	"github.com/fjod/commerce-engine/internal/domain"
	"github.com/fjod/commerce-engine/internal/service"
	"github.com/fjod/commerce-engine/internal/session"
	"github.com/fjod/commerce-engine/pkg/circuitbreaker"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StatusFromError maps service and domain errors onto gRPC status codes.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeOf(err), err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, session.ErrVersionConflict):
		return codes.Aborted
	case errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, domain.ErrEmptyCart):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrOverflow),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrUnknownCurrency):
		return codes.InvalidArgument
	case errors.Is(err, circuitbreaker.ErrOpenState),
		errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
