package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/events"
)

// Reconciler applies payment outcomes to orders. It is safe under
// at-least-once delivery: an order leaves created exactly once and repeated
// events are no-ops.
type Reconciler struct {
	log  *slog.Logger
	repo OrderRepository
}

func NewReconciler(log *slog.Logger, repo OrderRepository) *Reconciler {
	return &Reconciler{log: log, repo: repo}
}

// Handle returns an error only when the event should be redelivered.
func (r *Reconciler) Handle(ctx context.Context, ev events.PaymentProcessed) error {
	log := r.log.With("order_id", ev.OrderID, "event_id", ev.EventID, "payment_status", ev.Status)
	log.Info("payment outcome received")

	o, err := r.repo.Get(ctx, ev.OrderID)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Warn("order not found, dropping event")
		return nil
	}
	if err != nil {
		return err
	}

	if o.Status.Terminal() {
		log.Info("order already final, duplicate event ignored", "status", o.Status)
		return nil
	}

	if ev.Status == events.PaymentCompleted {
		err = o.MarkCompleted()
	} else {
		err = o.MarkRejected()
	}
	if err != nil {
		return err
	}

	updated, err := r.repo.UpdateStatus(ctx, o.ID, o.Status)
	if err != nil {
		return err
	}
	if !updated {
		log.Info("order finalized concurrently, duplicate event ignored")
		return nil
	}
	log.Info("order status updated", "status", o.Status)
	return nil
}
