package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Trust-Settlement-System/internal/payment/domain"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/events"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/outbox"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/tracing"
)

const AggregateType = "payment"

type Options struct {
	// ProcessorTimeout bounds each processor attempt.
	ProcessorTimeout     time.Duration
	ProcessorRetries     int
	RetryInitialInterval time.Duration
	EventSource          string
}

func DefaultOptions() Options {
	return Options{
		ProcessorTimeout:     5 * time.Second,
		ProcessorRetries:     2,
		RetryInitialInterval: 200 * time.Millisecond,
		EventSource:          "payment-service",
	}
}

type PaymentRequest struct {
	OrderID    string
	CompanyID  string
	CardNumber string
	ExpiryDate time.Time
}

type Service struct {
	log       *slog.Logger
	ownership OrderOwnership
	router    *Router
	repo      PaymentRepository
	opts      Options
	tracer    trace.Tracer
	now       func() time.Time
}

func NewService(log *slog.Logger, ownership OrderOwnership, router *Router, repo PaymentRepository, opts Options) *Service {
	if opts.ProcessorTimeout <= 0 {
		opts.ProcessorTimeout = DefaultOptions().ProcessorTimeout
	}
	if opts.EventSource == "" {
		opts.EventSource = DefaultOptions().EventSource
	}
	return &Service{
		log:       log,
		ownership: ownership,
		router:    router,
		repo:      repo,
		opts:      opts,
		tracer:    otel.Tracer("payment-service"),
		now:       time.Now,
	}
}

// ProcessPayment verifies ownership, settles the card and records the outcome
// together with its PaymentProcessed event. Ownership failures return before
// anything is written; processor failures finalize the payment as rejected.
func (s *Service) ProcessPayment(ctx context.Context, req PaymentRequest) (domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "ProcessPayment")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", req.OrderID))

	if req.CompanyID == "" {
		return domain.Payment{}, fmt.Errorf("%w: missing company", apperr.ErrUnauthorized)
	}
	p, err := domain.NewPayment(req.OrderID, req.CompanyID, req.CardNumber, req.ExpiryDate, s.now())
	if err != nil {
		return domain.Payment{}, err
	}
	log := s.log.With("payment_id", p.ID, "order_id", p.OrderID, "company_id", p.CompanyID)

	exists, err := s.ownership.OrderExists(ctx, p.OrderID, p.CompanyID)
	if err != nil {
		log.Error("order ownership check failed", "err", err)
		return domain.Payment{}, fmt.Errorf("%w: order ledger: %v", apperr.ErrValidationUnavailable, err)
	}
	if !exists {
		log.Warn("payment for unknown or foreign order refused")
		return domain.Payment{}, fmt.Errorf("%w: order %s is not a valid order", apperr.ErrNotFound, p.OrderID)
	}

	var finalized error
	if p.Expired(s.now()) {
		finalized = p.Reject("", domain.ReasonCardExpired)
		log.Info("card expired, payment rejected")
	} else {
		route := s.router.Route(p.CardNumber)
		span.SetAttributes(attribute.String("payment.processor", route.Name))
		approved, err := s.settle(ctx, log, route, p)
		switch {
		case ctx.Err() != nil:
			return domain.Payment{}, ctx.Err()
		case err != nil:
			log.Error("processor failed, payment rejected", "processor", route.Name, "err", err)
			finalized = p.Reject(route.Name, domain.ReasonProcessorError)
		case approved:
			finalized = p.Complete(route.Name)
		default:
			finalized = p.Reject(route.Name, domain.ReasonDeclined)
		}
	}
	if finalized != nil {
		return domain.Payment{}, finalized
	}

	if err := ctx.Err(); err != nil {
		return domain.Payment{}, err
	}
	event, err := s.outboxEvent(ctx, *p)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := s.repo.SaveWithOutbox(ctx, *p, event); err != nil {
		return domain.Payment{}, fmt.Errorf("save payment: %w", err)
	}
	span.SetAttributes(attribute.String("payment.status", string(p.Status)))
	log.Info("payment finalized", "status", p.Status, "processor", p.Processor)
	return *p, nil
}

func (s *Service) settle(ctx context.Context, log *slog.Logger, route Route, p *domain.Payment) (bool, error) {
	req := ProcessorRequest{
		PaymentID:  p.ID,
		OrderID:    p.OrderID,
		CardNumber: p.CardNumber,
		ExpiryDate: p.ExpiryDate,
	}
	var approved bool
	op := func() error {
		actx, cancel := context.WithTimeout(ctx, s.opts.ProcessorTimeout)
		defer cancel()
		ok, err := route.Processor.Process(actx, req)
		if err != nil {
			return err
		}
		approved = ok
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryInitialInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(s.opts.ProcessorRetries, 0))), ctx)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		log.Warn("processor call failed, retrying", "processor", route.Name, "wait", wait, "err", err)
	})
	return approved, err
}

func (s *Service) outboxEvent(ctx context.Context, p domain.Payment) (outbox.Event, error) {
	ev := events.NewPaymentProcessed(p.ID, p.OrderID, events.PaymentStatus(p.Status), s.opts.EventSource)
	payload, err := json.Marshal(ev)
	if err != nil {
		return outbox.Event{}, fmt.Errorf("encode event: %w", err)
	}
	return outbox.Event{
		EventID:       ev.EventID,
		AggregateType: AggregateType,
		AggregateID:   p.OrderID,
		Type:          events.TypePaymentProcessed,
		Payload:       payload,
		Headers:       map[string]string{"source": s.opts.EventSource},
		Traceparent:   tracing.Traceparent(ctx),
	}, nil
}

func (s *Service) GetPayment(ctx context.Context, id string) (domain.Payment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	return s.repo.List(ctx)
}
