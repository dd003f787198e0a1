package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Trust-Settlement-System/internal/order/application"
	"github.com/dmehra2102/Trust-Settlement-System/internal/order/domain"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
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
		tracer:    otel.Tracer("order-http"),
	}
}

// Guards wrap routes with admission control; nil guards are skipped.
// Ownership wraps the ownership check, which the settlement service makes
// for many companies from one host. Default wraps everything else.
type Guards struct {
	Default   func(http.Handler) http.Handler
	Ownership func(http.Handler) http.Handler
}

func (h *Handler) Routes(g Guards) http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		if g.Ownership != nil {
			r.Use(g.Ownership)
		}
		r.Get("/orders/{id}/exists", h.orderExists)
	})
	r.Group(func(r chi.Router) {
		if g.Default != nil {
			r.Use(g.Default)
		}
		r.Post("/orders", h.createOrder)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/company/{companyId}", h.listByCompany)
		r.Get("/orders/compute/{companyId}", h.computeTotal)
	})
	return r
}

// OwnershipKey partitions ownership checks by the company they are made for.
func OwnershipKey(r *http.Request) (string, bool) {
	if id := r.URL.Query().Get("companyId"); id != "" {
		return id, true
	}
	return "", false
}

type createOrderReq struct {
	CompanyID string          `json:"companyId"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

type orderResp struct {
	ID        string          `json:"orderId"`
	CompanyID string          `json:"companyId"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

func toResp(o domain.Order) orderResp {
	return orderResp{
		ID:        o.ID,
		CompanyID: o.CompanyID,
		Amount:    o.Amount,
		Currency:  o.Currency,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
	}
}

func badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	httpx.WriteProblem(w, httpx.Problem{Status: http.StatusBadRequest, Detail: detail, Instance: r.URL.Path})
}

func validID(id string) bool {
	u, err := uuid.Parse(id)
	return err == nil && u != uuid.Nil
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid body")
		return
	}
	if !validID(req.CompanyID) {
		badRequest(w, r, "companyId is missing or invalid")
		return
	}
	span.SetAttributes(attribute.String("company.id", req.CompanyID))

	// The credentials must belong to the company the order is placed for.
	companyID, err := credentials.Authenticate(h.validator, r.WithContext(ctx), req.CompanyID)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	o, err := h.service.CreateOrder(ctx, companyID, req.Amount, req.Currency)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	w.Header().Set("Location", "/api/orders/"+o.ID)
	httpx.JSON(w, http.StatusCreated, toResp(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validID(id) {
		badRequest(w, r, "invalid order id")
		return
	}
	o, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResp(o))
}

func (h *Handler) listByCompany(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyId")
	if !validID(companyID) {
		badRequest(w, r, "invalid company id")
		return
	}
	orders, err := h.service.ListOrdersByCompany(r.Context(), companyID)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	if len(orders) == 0 {
		httpx.Error(w, r, h.log, apperr.ErrNotFound)
		return
	}
	out := make([]orderResp, 0, len(orders))
	for _, o := range orders {
		out = append(out, toResp(o))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) computeTotal(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyId")
	if !validID(companyID) {
		badRequest(w, r, "invalid company id")
		return
	}
	total, err := h.service.CompletedTotalToday(r.Context(), companyID)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]decimal.Decimal{"total": total})
}

func (h *Handler) orderExists(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	companyID := r.URL.Query().Get("companyId")
	if !validID(orderID) || !validID(companyID) {
		badRequest(w, r, "orderId or companyId is missing or invalid")
		return
	}
	ok, err := h.service.OrderExists(r.Context(), orderID, companyID)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"exists": ok})
}
