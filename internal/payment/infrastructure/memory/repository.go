// Package memory keeps payments and their outbox in process memory. It backs
// the payment service when no database is configured and serves as the relay
// store in that mode.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmehra2102/Trust-Settlement-System/internal/payment/domain"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/outbox"
)

type leased struct {
	event      outbox.Event
	leaseUntil time.Time
}

type Repository struct {
	mu       sync.Mutex
	payments map[string]domain.Payment
	order    []string
	outbox   []*leased
	nextID   int64
	now      func() time.Time
}

func NewRepository() *Repository {
	return &Repository{payments: map[string]domain.Payment{}, now: time.Now}
}

func (r *Repository) SaveWithOutbox(ctx context.Context, p domain.Payment, e outbox.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.ID]; ok {
		return fmt.Errorf("%w: payment %s already stored", apperr.ErrConflict, p.ID)
	}
	r.payments[p.ID] = p
	r.order = append(r.order, p.ID)

	r.nextID++
	e.ID = r.nextID
	e.Status = outbox.StatusPending
	e.CreatedAt = r.now()
	r.outbox = append(r.outbox, &leased{event: e})
	return nil
}

func (r *Repository) Get(_ context.Context, id string) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return domain.Payment{}, fmt.Errorf("%w: payment %s", apperr.ErrNotFound, id)
	}
	return p, nil
}

func (r *Repository) List(context.Context) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Payment, 0, len(r.order))
	for _, id := range slices.Backward(r.order) {
		out = append(out, r.payments[id])
	}
	return out, nil
}

func (r *Repository) LockBatch(_ context.Context, _ string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var out []outbox.Event
	for _, l := range r.outbox {
		if len(out) == batchSize {
			break
		}
		reclaim := l.event.Status == outbox.StatusInProgress && now.After(l.leaseUntil)
		if l.event.Status != outbox.StatusPending && !reclaim {
			continue
		}
		l.event.Status = outbox.StatusInProgress
		l.leaseUntil = now.Add(lease)
		out = append(out, l.event)
	}
	return out, nil
}

func (r *Repository) MarkSent(_ context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.outbox {
		if slices.Contains(ids, l.event.ID) {
			l.event.Status = outbox.StatusSent
		}
	}
	// Sent events are no longer needed.
	r.outbox = slices.DeleteFunc(r.outbox, func(l *leased) bool { return l.event.Status == outbox.StatusSent })
	return nil
}

func (r *Repository) MarkFailed(_ context.Context, id int64, errMsg string, maxAttempts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.outbox {
		if l.event.ID != id {
			continue
		}
		l.event.RetryCount++
		l.event.LastError = &errMsg
		if l.event.RetryCount >= maxAttempts {
			l.event.Status = outbox.StatusFailed
		} else {
			l.event.Status = outbox.StatusPending
		}
	}
	return nil
}

// Pending returns outbox events not yet sent, oldest first.
func (r *Repository) Pending() []outbox.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]outbox.Event, 0, len(r.outbox))
	for _, l := range r.outbox {
		out = append(out, l.event)
	}
	return out
}
