package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	json "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/Trust-Settlement-System/pkg/config"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/events"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/tracing"
)

const (
	HeaderDLQError       = "dlq-error"
	HeaderDLQSourceTopic = "dlq-source-topic"
	HeaderDLQAttempts    = "dlq-attempts"
)

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Handler interface {
	Handle(ctx context.Context, ev events.PaymentProcessed) error
}

// ProcessedStore skips events already applied by this consumer group.
type ProcessedStore interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type Options struct {
	ConcurrentMessageLimit int
	RetryCount             int
	RetryInterval          time.Duration
	RetryIncrement         time.Duration
	DeadLetterTopic        string
	// BatchLinger bounds how long a batch waits to fill once it has one
	// message.
	BatchLinger time.Duration
}

func OptionsFrom(cfg config.Broker) Options {
	return Options{
		ConcurrentMessageLimit: cfg.ConcurrentMessageLimit,
		RetryCount:             cfg.RetryCount,
		RetryInterval:          cfg.RetryInterval,
		RetryIncrement:         cfg.RetryIncrement,
		DeadLetterTopic:        cfg.DeadLetterTopic,
		BatchLinger:            50 * time.Millisecond,
	}
}

type Consumer struct {
	log     *slog.Logger
	reader  Reader
	dlq     Writer
	handler Handler
	idem    ProcessedStore
	opts    Options
	tracer  trace.Tracer
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewConsumer wires a consumer. idem may be nil.
func NewConsumer(log *slog.Logger, reader Reader, dlq Writer, handler Handler, idem ProcessedStore, opts Options) *Consumer {
	if opts.ConcurrentMessageLimit < 1 {
		opts.ConcurrentMessageLimit = 1
	}
	return &Consumer{
		log:     log,
		reader:  reader,
		dlq:     dlq,
		handler: handler,
		idem:    idem,
		opts:    opts,
		tracer:  otel.Tracer("order-consumer"),
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		batch, fetchErr := c.fetchBatch(ctx)
		if len(batch) > 0 {
			if err := c.processBatch(ctx, batch); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if err := c.reader.CommitMessages(ctx, batch...); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("commit: %w", err)
			}
		}
		if fetchErr != nil {
			if ctx.Err() != nil {
				c.log.Info("consumer stopping")
				return nil
			}
			return fetchErr
		}
	}
}

// fetchBatch blocks for the first message, then takes whatever else arrives
// within the linger window, up to the concurrency limit.
func (c *Consumer) fetchBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	batch := []kafka.Message{first}
	if c.opts.ConcurrentMessageLimit == 1 || c.opts.BatchLinger <= 0 {
		return batch, nil
	}

	lctx, cancel := context.WithTimeout(ctx, c.opts.BatchLinger)
	defer cancel()
	for len(batch) < c.opts.ConcurrentMessageLimit {
		msg, err := c.reader.FetchMessage(lctx)
		if err != nil {
			if lctx.Err() != nil && ctx.Err() == nil {
				return batch, nil
			}
			return batch, err
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

// processBatch runs messages concurrently, keeping messages with the same key
// in order. It fails only when ctx ends or the dead-letter topic is down.
func (c *Consumer) processBatch(ctx context.Context, batch []kafka.Message) error {
	var order []string
	groups := map[string][]kafka.Message{}
	for _, m := range batch {
		k := string(m.Key)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], m)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.ConcurrentMessageLimit)
	for _, k := range order {
		msgs := groups[k]
		g.Go(func() error {
			for _, m := range msgs {
				if err := c.process(gctx, m); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumePaymentProcessed")
	defer span.End()

	var ev events.PaymentProcessed
	if err := json.Unmarshal(msg.Value, &ev); err != nil || ev.OrderID == "" {
		if err == nil {
			err = errors.New("event without order id")
		}
		c.log.Error("undecodable payment event", "offset", msg.Offset, "err", err)
		span.SetStatus(codes.Error, "decode")
		return c.deadLetter(ctx, msg, err, 0)
	}
	span.SetAttributes(attribute.String("order.id", ev.OrderID), attribute.String("event.id", ev.EventID))
	log := c.log.With("order_id", ev.OrderID, "event_id", ev.EventID)

	if c.idem != nil && ev.EventID != "" {
		seen, err := c.idem.Seen(msgCtx, ev.EventID)
		if err != nil {
			log.Warn("idempotency check failed", "err", err)
		} else if seen {
			log.Info("duplicate event skipped")
			return nil
		}
	}

	for attempt := 0; ; attempt++ {
		err := c.handler.Handle(msgCtx, ev)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= c.opts.RetryCount {
			log.Error("payment event failed, dead-lettering", "attempts", attempt+1, "err", err)
			span.SetStatus(codes.Error, err.Error())
			return c.deadLetter(ctx, msg, err, attempt+1)
		}
		wait := c.opts.RetryInterval + time.Duration(attempt)*c.opts.RetryIncrement
		log.Warn("payment event failed, retrying", "attempt", attempt+1, "wait", wait, "err", err)
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}

	if c.idem != nil && ev.EventID != "" {
		if err := c.idem.Mark(msgCtx, ev.EventID); err != nil {
			log.Warn("mark event processed failed", "err", err)
		}
	}
	return nil
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error, attempts int) error {
	headers := append([]kafka.Header{}, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderDLQError, Value: []byte(cause.Error())},
		kafka.Header{Key: HeaderDLQSourceTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: HeaderDLQAttempts, Value: []byte(strconv.Itoa(attempts))},
	)
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.opts.DeadLetterTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("dead-letter offset %d: %w", msg.Offset, err)
	}
	return nil
}
