package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Trust-Settlement-System/internal/authority/application"
	"github.com/dmehra2102/Trust-Settlement-System/internal/authority/domain"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/httpx"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("authority-http"),
	}
}

// Routes serves the company API. guard wraps every route except validate,
// which the other services call on behalf of their own clients and which
// would otherwise share one per-host partition.
func (h *Handler) Routes(guard ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/companies/validate", h.validate)
	r.Group(func(r chi.Router) {
		r.Use(guard...)
		r.Post("/companies", h.registerCompany)
		r.Get("/companies", h.listCompanies)
		r.Get("/companies/{id}", h.getCompany)
	})
	return r
}

type registerCompanyReq struct {
	Name string `json:"name"`
}

// registeredCompany is the only response that carries the secret.
type registeredCompany struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"apiKey"`
	APISecret string    `json:"apiSecret"`
	CreatedAt time.Time `json:"createdAt"`
}

type companyResp struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"apiKey"`
	CreatedAt time.Time `json:"createdAt"`
}

func toResp(c domain.Company) companyResp {
	return companyResp{ID: c.ID, Name: c.Name, APIKey: c.APIKey, CreatedAt: c.CreatedAt}
}

func (h *Handler) registerCompany(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RegisterCompany")
	defer span.End()

	var req registerCompanyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, r, h.log, apperr.ErrInvalid)
		return
	}
	c, err := h.service.RegisterCompany(ctx, req.Name)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	w.Header().Set("Location", "/api/companies/"+c.ID)
	httpx.JSON(w, http.StatusCreated, registeredCompany{
		ID:        c.ID,
		Name:      c.Name,
		APIKey:    c.APIKey,
		APISecret: c.APISecret,
		CreatedAt: c.CreatedAt,
	})
}

func (h *Handler) getCompany(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if parsed, err := uuid.Parse(id); err != nil || parsed == uuid.Nil {
		httpx.WriteProblem(w, httpx.Problem{Status: http.StatusBadRequest, Detail: "invalid company id", Instance: r.URL.Path})
		return
	}
	c, err := h.service.GetCompany(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResp(c))
}

func (h *Handler) listCompanies(w http.ResponseWriter, r *http.Request) {
	page, err1 := intParam(r, "page", 1)
	size, err2 := intParam(r, "pageSize", 10)
	if err1 != nil || err2 != nil {
		httpx.WriteProblem(w, httpx.Problem{Status: http.StatusBadRequest, Detail: "page and pageSize must be integers", Instance: r.URL.Path})
		return
	}
	companies, err := h.service.ListCompanies(r.Context(), page, size)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	out := make([]companyResp, 0, len(companies))
	for _, c := range companies {
		out = append(out, toResp(c))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

type validateReq struct {
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
	CompanyID string `json:"companyId,omitempty"`
}

type validateResp struct {
	CompanyID   string     `json:"companyId"`
	AccessToken string     `json:"accessToken,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ValidateCredentials")
	defer span.End()

	var req validateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, r, h.log, apperr.ErrInvalid)
		return
	}
	creds, err := h.service.Validate(ctx, req.APIKey, req.APISecret, req.CompanyID)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	resp := validateResp{CompanyID: creds.CompanyID, AccessToken: creds.AccessToken}
	if creds.AccessToken != "" {
		resp.ExpiresAt = &creds.ExpiresAt
	}
	httpx.JSON(w, http.StatusOK, resp)
}
