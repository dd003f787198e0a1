// Package ledger asks the order ledger whether an order belongs to a company,
// over gRPC or HTTP. Each client has its own timeout and circuit breaker.
package ledger

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

type BreakerOptions struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenFor is how long the breaker stays open before probing again.
	OpenFor time.Duration
}

func DefaultBreakerOptions() BreakerOptions {
	return BreakerOptions{ConsecutiveFailures: 5, OpenFor: 30 * time.Second}
}

func NewBreaker(log *slog.Logger, name string, opts BreakerOptions) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     opts.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= opts.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

func execute(cb *gobreaker.CircuitBreaker, fn func() (bool, error)) (bool, error) {
	v, err := cb.Execute(func() (any, error) { return fn() })
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}
