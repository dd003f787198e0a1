package processor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/dmehra2102/Trust-Settlement-System/internal/payment/application"
)

// Breaker stops calling a processor that keeps failing. While open, calls
// fail at once with a permanent error so the orchestrator does not retry.
type Breaker struct {
	next application.Processor
	cb   *gobreaker.CircuitBreaker
}

func WithBreaker(log *slog.Logger, name string, next application.Processor, failures uint32, openFor time.Duration) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "processor-" + name,
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) Process(ctx context.Context, req application.ProcessorRequest) (bool, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.next.Process(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false, backoff.Permanent(err)
	}
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}
