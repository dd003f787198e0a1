package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Trust-Settlement-System/internal/order/application"
	"github.com/dmehra2102/Trust-Settlement-System/internal/order/domain"
	"github.com/dmehra2102/Trust-Settlement-System/internal/order/infrastructure/memory"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/admission"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/config"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/credentials"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/logging"
)

// keyValidator accepts key "k" with secret "s" for one company.
type keyValidator struct{ companyID string }

func (v keyValidator) Validate(_ context.Context, key, secret, scope string) (credentials.Result, error) {
	if key != "k" || secret != "s" || (scope != "" && scope != v.companyID) {
		return credentials.Result{}, nil
	}
	return credentials.Result{Valid: true, CompanyID: v.companyID}, nil
}

type fixture struct {
	srv     *httptest.Server
	repo    *memory.Repository
	company string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newGuardedFixture(t, Guards{})
}

func newGuardedFixture(t *testing.T, g Guards) fixture {
	t.Helper()
	company := uuid.NewString()
	repo := memory.NewRepository()
	svc := application.NewService(logging.Discard(), repo, domain.DefaultDailyLimit)
	r := chi.NewRouter()
	r.Mount("/api", NewHandler(logging.Discard(), svc, keyValidator{companyID: company}).Routes(g))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return fixture{srv: srv, repo: repo, company: company}
}

func (f fixture) create(t *testing.T, companyID, amount, key string) *http.Response {
	t.Helper()
	body := []byte(`{"companyId":"` + companyID + `","amount":` + amount + `,"currency":"USD"}`)
	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/api/orders", bytes.NewReader(body))
	req.Header.Set(credentials.HeaderAPIKey, key)
	req.Header.Set(credentials.HeaderAPISecret, "s")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestCreateAndFetchOrder(t *testing.T) {
	f := newFixture(t)
	resp := f.create(t, f.company, "125.50", "k")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var o orderResp
	_ = json.NewDecoder(resp.Body).Decode(&o)
	if o.Status != "created" || !o.Amount.Equal(decimal.RequireFromString("125.5")) {
		t.Fatalf("order = %+v", o)
	}

	get, err := http.Get(f.srv.URL + "/api/orders/" + o.ID)
	if err != nil {
		t.Fatal(err)
	}
	get.Body.Close()
	if get.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", get.StatusCode)
	}
}

func TestCreateOrderAuthFailures(t *testing.T) {
	f := newFixture(t)

	cases := map[string]struct {
		company, key string
		want         int
	}{
		"bad key":       {f.company, "wrong", http.StatusUnauthorized},
		"other company": {uuid.NewString(), "k", http.StatusUnauthorized},
		"bad company":   {"nope", "k", http.StatusBadRequest},
	}
	for name, tc := range cases {
		resp := f.create(t, tc.company, "10", tc.key)
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Errorf("%s: status = %d, want %d", name, resp.StatusCode, tc.want)
		}
	}
}

func TestCreateOrderDailyLimit(t *testing.T) {
	f := newFixture(t)
	seed, _ := domain.NewOrder(f.company, decimal.NewFromInt(9970), "USD")
	seed.Status = domain.StatusCompleted
	f.repo.Put(seed)

	resp := f.create(t, f.company, "50", "k")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	total, err := http.Get(f.srv.URL + "/api/orders/compute/" + f.company)
	if err != nil {
		t.Fatal(err)
	}
	defer total.Body.Close()
	var body struct {
		Total decimal.Decimal `json:"total"`
	}
	_ = json.NewDecoder(total.Body).Decode(&body)
	if !body.Total.Equal(decimal.NewFromInt(9970)) {
		t.Fatalf("total = %s", body.Total)
	}
}

func TestOrderExistsEndpoint(t *testing.T) {
	f := newFixture(t)
	resp := f.create(t, f.company, "10", "k")
	var o orderResp
	_ = json.NewDecoder(resp.Body).Decode(&o)
	resp.Body.Close()

	check := func(orderID, companyID string) (int, bool) {
		r, err := http.Get(f.srv.URL + "/api/orders/" + orderID + "/exists?companyId=" + companyID)
		if err != nil {
			t.Fatal(err)
		}
		defer r.Body.Close()
		var out struct {
			Exists bool `json:"exists"`
		}
		_ = json.NewDecoder(r.Body).Decode(&out)
		return r.StatusCode, out.Exists
	}

	if code, ok := check(o.ID, f.company); code != http.StatusOK || !ok {
		t.Fatalf("own order: %d %v", code, ok)
	}
	if code, ok := check(o.ID, uuid.NewString()); code != http.StatusOK || ok {
		t.Fatalf("foreign company: %d %v", code, ok)
	}
	if code, _ := check(o.ID, ""); code != http.StatusBadRequest {
		t.Fatalf("missing company: %d", code)
	}
}

func TestListByCompanyEmptyIsNotFound(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/api/orders/company/" + uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

// The settlement service checks ownership for many companies from one host;
// those checks are partitioned per company while other routes stay per host.
func TestOwnershipChecksPartitionedByCompany(t *testing.T) {
	limiter := admission.New(config.RateLimiter{
		AnonymousKey:               "anonymous",
		AuthenticatedPermitLimit:   100,
		UnauthenticatedPermitLimit: 1,
		Window:                     time.Minute,
	}, logging.Discard())
	f := newGuardedFixture(t, Guards{
		Default:   limiter.Middleware,
		Ownership: limiter.MiddlewareFunc(OwnershipKey),
	})

	for i := range 15 {
		resp, err := http.Get(f.srv.URL + "/api/orders/" + uuid.NewString() + "/exists?companyId=" + uuid.NewString())
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("check %d: status = %d", i+1, resp.StatusCode)
		}
	}

	codes := make([]int, 0, 2)
	for range 2 {
		resp, err := http.Get(f.srv.URL + "/api/orders/" + uuid.NewString())
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != http.StatusNotFound || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("statuses = %v", codes)
	}
}
