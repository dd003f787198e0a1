package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Trust-Settlement-System/internal/payment/application"
	"github.com/dmehra2102/Trust-Settlement-System/internal/payment/domain"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/credentials"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/httpx"
)

type Handler struct {
	log       *slog.Logger
	service   *application.Service
	validator credentials.Validator
	tracer    trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, validator credentials.Validator) *Handler {
	return &Handler{
		log:       log,
		service:   service,
		validator: validator,
		tracer:    otel.Tracer("payment-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/payments", h.processPayment)
	r.Get("/payments/{id}", h.getPayment)
	r.Get("/payments", h.listPayments)
	return r
}

// expiryDate accepts RFC 3339 timestamps, plain dates and card-style MM/YY.
// MM/YY means the card is valid until the end of that month.
type expiryDate time.Time

func (e *expiryDate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		*e = expiryDate(t)
		return nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		*e = expiryDate(t)
		return nil
	}
	if t, err := time.Parse("01/06", s); err == nil {
		*e = expiryDate(t.AddDate(0, 1, 0).Add(-time.Nanosecond))
		return nil
	}
	return fmt.Errorf("expiryDate %q is not a date", s)
}

type processPaymentReq struct {
	OrderID    string     `json:"orderId"`
	CardNumber string     `json:"cardNumber"`
	ExpiryDate expiryDate `json:"expiryDate"`
}

type processedResp struct {
	PaymentID string    `json:"paymentId"`
	OrderID   string    `json:"orderId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type paymentResp struct {
	PaymentID     string    `json:"paymentId"`
	OrderID       string    `json:"orderId"`
	CardNumber    string    `json:"cardNumber"`
	ExpiryDate    time.Time `json:"expiryDate"`
	Status        string    `json:"status"`
	Processor     string    `json:"processor,omitempty"`
	FailureReason string    `json:"failureReason,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toResp(p domain.Payment) paymentResp {
	return paymentResp{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		CardNumber:    p.MaskedCard(),
		ExpiryDate:    p.ExpiryDate,
		Status:        string(p.Status),
		Processor:     p.Processor,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
	}
}

func badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	httpx.WriteProblem(w, httpx.Problem{Status: http.StatusBadRequest, Detail: detail, Instance: r.URL.Path})
}

func (h *Handler) processPayment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ProcessPayment")
	defer span.End()

	companyID, err := credentials.Authenticate(h.validator, r.WithContext(ctx), "")
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	span.SetAttributes(attribute.String("company.id", companyID))

	var req processPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid body: "+err.Error())
		return
	}

	p, err := h.service.ProcessPayment(ctx, application.PaymentRequest{
		OrderID:    req.OrderID,
		CompanyID:  companyID,
		CardNumber: req.CardNumber,
		ExpiryDate: time.Time(req.ExpiryDate),
	})
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	if p.Status == domain.StatusRejected {
		httpx.WriteProblem(w, httpx.Problem{
			Title:    "Payment was rejected.",
			Status:   http.StatusBadRequest,
			Detail:   p.FailureReason,
			Instance: r.URL.Path,
			Extra:    map[string]any{"paymentId": p.ID},
		})
		return
	}
	httpx.JSON(w, http.StatusOK, processedResp{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
	})
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if uuid.Validate(id) != nil {
		badRequest(w, r, "invalid payment id")
		return
	}
	p, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResp(p))
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListPayments(r.Context())
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	out := make([]paymentResp, 0, len(payments))
	for _, p := range payments {
		out = append(out, toResp(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}
