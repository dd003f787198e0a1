package outbox

import (
	"context"
	"log/slog"
	"time"
)

type Store interface {
	// LockBatch leases up to batchSize pending events to relayID.
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	// MarkFailed records a dispatch failure. The event returns to pending
	// until it has failed maxAttempts times.
	MarkFailed(ctx context.Context, id int64, errMsg string, maxAttempts int) error
}

type RelayOptions struct {
	BatchSize   int
	Interval    time.Duration
	Lease       time.Duration
	MaxAttempts int
}

func DefaultRelayOptions() RelayOptions {
	return RelayOptions{
		BatchSize:   100,
		Interval:    500 * time.Millisecond,
		Lease:       5 * time.Second,
		MaxAttempts: 10,
	}
}

type Relay struct {
	log      *slog.Logger
	store    Store
	dispatch *Dispatcher
	relayID  string
	opts     RelayOptions
}

func NewRelay(log *slog.Logger, store Store, dispatch *Dispatcher, relayID string, opts RelayOptions) *Relay {
	return &Relay{
		log:      log,
		store:    store,
		dispatch: dispatch,
		relayID:  relayID,
		opts:     opts,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.opts.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping", "relay_id", r.relayID)
			return nil
		case <-t.C:
			if _, err := r.Flush(ctx); err != nil {
				r.log.Error("relay flush error", "relay_id", r.relayID, "err", err)
			}
		}
	}
}

// Flush dispatches one leased batch and returns how many events were sent.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.store.LockBatch(ctx, r.relayID, r.opts.BatchSize, r.opts.Lease)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(events))
	for _, e := range events {
		if err := r.dispatch.Dispatch(ctx, e); err != nil {
			if ferr := r.store.MarkFailed(ctx, e.ID, err.Error(), r.opts.MaxAttempts); ferr != nil {
				r.log.Error("relay mark failed error", "id", e.ID, "err", ferr)
			}
			continue
		}
		ids = append(ids, e.ID)
	}
	if len(ids) > 0 {
		if err := r.store.MarkSent(ctx, ids); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}
