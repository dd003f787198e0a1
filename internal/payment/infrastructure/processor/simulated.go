// Package processor holds the external payment processors the orchestrator
// routes to.
package processor

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dmehra2102/Trust-Settlement-System/internal/payment/application"
)

// Simulated approves a random share of payments. It stands in for a real
// provider in local and test deployments.
type Simulated struct {
	log          *slog.Logger
	name         string
	approvalRate float64
	latency      time.Duration

	mu   sync.Mutex
	rand *rand.Rand
}

func NewSimulated(log *slog.Logger, name string, approvalRate float64, latency time.Duration, seed uint64) *Simulated {
	return &Simulated{
		log:          log,
		name:         name,
		approvalRate: approvalRate,
		latency:      latency,
		rand:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (s *Simulated) Process(ctx context.Context, req application.ProcessorRequest) (bool, error) {
	if s.latency > 0 {
		t := time.NewTimer(s.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-t.C:
		}
	}
	s.mu.Lock()
	approved := s.rand.Float64() < s.approvalRate
	s.mu.Unlock()
	s.log.Debug("simulated processor decision", "processor", s.name, "order_id", req.OrderID, "approved", approved)
	return approved, nil
}
