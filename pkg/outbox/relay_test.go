package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Trust-Settlement-System/pkg/logging"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/tracing"
)

type memStore struct {
	mu     sync.Mutex
	events map[int64]*Event
}

func newMemStore(events ...Event) *memStore {
	s := &memStore{events: map[int64]*Event{}}
	for i := range events {
		e := events[i]
		e.Status = StatusPending
		s.events[e.ID] = &e
	}
	return s
}

func (s *memStore) LockBatch(_ context.Context, _ string, batchSize int, _ time.Duration) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for id := int64(1); id <= int64(len(s.events)) && len(out) < batchSize; id++ {
		e, ok := s.events[id]
		if !ok || e.Status != StatusPending {
			continue
		}
		e.Status = StatusInProgress
		out = append(out, *e)
	}
	return out, nil
}

func (s *memStore) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.events[id].Status = StatusSent
	}
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, id int64, errMsg string, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.events[id]
	e.RetryCount++
	e.LastError = &errMsg
	if e.RetryCount >= maxAttempts {
		e.Status = StatusFailed
	} else {
		e.Status = StatusPending
	}
	return nil
}

func (s *memStore) status(id int64) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[id].Status
}

type fakeProducer struct {
	mu   sync.Mutex
	msgs []kafka.Message
	fail map[string]bool
}

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if p.fail[string(m.Key)] {
			return errors.New("broker unavailable")
		}
		p.msgs = append(p.msgs, m)
	}
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestFlushDispatchesAndMarksSent(t *testing.T) {
	store := newMemStore(
		Event{ID: 1, EventID: "e1", AggregateID: "order-1", Type: "PaymentProcessed", Payload: []byte(`{}`), Traceparent: testTraceparent},
		Event{ID: 2, EventID: "e2", AggregateID: "order-2", Type: "PaymentProcessed", Payload: []byte(`{}`)},
	)
	prod := &fakeProducer{}
	relay := NewRelay(logging.Discard(), store, NewDispatcher(logging.Discard(), prod, "payment.events"), "r1", DefaultRelayOptions())

	n, err := relay.Flush(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("sent = %d", n)
	}
	if store.status(1) != StatusSent || store.status(2) != StatusSent {
		t.Fatal("events not marked sent")
	}

	m := prod.msgs[0]
	if m.Topic != "payment.events" || string(m.Key) != "order-1" {
		t.Fatalf("message = %+v", m)
	}
	if header(m, HeaderEventType) != "PaymentProcessed" || header(m, HeaderEventID) != "e1" {
		t.Fatalf("headers = %v", m.Headers)
	}
	if header(m, tracing.TraceparentHeader) != testTraceparent {
		t.Fatal("traceparent not propagated")
	}
	if header(prod.msgs[1], tracing.TraceparentHeader) != "" {
		t.Fatal("traceparent invented for an untraced event")
	}
}

const testTraceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func TestDispatchCarriesTraceContextAndBaggage(t *testing.T) {
	member, err := baggage.NewMember("tenant", "acme")
	if err != nil {
		t.Fatal(err)
	}
	bag, err := baggage.New(member)
	if err != nil {
		t.Fatal(err)
	}
	ctx := baggage.ContextWithBaggage(context.Background(), bag)

	prod := &fakeProducer{}
	d := NewDispatcher(logging.Discard(), prod, "payment.events")
	events := []Event{
		{EventID: "e1", AggregateID: "order-1", Type: "PaymentProcessed", Traceparent: testTraceparent},
		{EventID: "e2", AggregateID: "order-2", Type: "PaymentProcessed", Traceparent: "garbage"},
	}
	for _, e := range events {
		if err := d.Dispatch(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	if got := header(prod.msgs[0], tracing.TraceparentHeader); got != testTraceparent {
		t.Fatalf("traceparent = %q", got)
	}
	if got := header(prod.msgs[0], "baggage"); got != "tenant=acme" {
		t.Fatalf("baggage = %q", got)
	}
	if got := header(prod.msgs[1], tracing.TraceparentHeader); got != "" {
		t.Fatalf("malformed traceparent forwarded: %q", got)
	}

	out := tracing.ExtractKafkaHeaders(context.Background(), prod.msgs[0].Headers)
	if sc := trace.SpanContextFromContext(out); sc.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("trace id = %s", sc.TraceID())
	}
}

func TestFailedDispatchReturnsToPendingUntilMaxAttempts(t *testing.T) {
	store := newMemStore(Event{ID: 1, EventID: "e1", AggregateID: "order-1", Type: "PaymentProcessed"})
	prod := &fakeProducer{fail: map[string]bool{"order-1": true}}
	opts := DefaultRelayOptions()
	opts.MaxAttempts = 2
	relay := NewRelay(logging.Discard(), store, NewDispatcher(logging.Discard(), prod, "payment.events"), "r1", opts)

	if _, err := relay.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if store.status(1) != StatusPending {
		t.Fatalf("after first failure status = %s", store.status(1))
	}

	if _, err := relay.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if store.status(1) != StatusFailed {
		t.Fatalf("after max attempts status = %s", store.status(1))
	}

	prod.mu.Lock()
	prod.fail = nil
	prod.mu.Unlock()
	if n, _ := relay.Flush(context.Background()); n != 0 {
		t.Fatal("failed event dispatched again")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := newMemStore(Event{ID: 1, EventID: "e1", AggregateID: "order-1"})
	prod := &fakeProducer{}
	opts := DefaultRelayOptions()
	opts.Interval = 5 * time.Millisecond
	relay := NewRelay(logging.Discard(), store, NewDispatcher(logging.Discard(), prod, "t"), "r1", opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for store.status(1) != StatusSent {
		select {
		case <-deadline:
			t.Fatal("event never relayed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}
