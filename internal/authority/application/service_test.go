package application

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmehra2102/Trust-Settlement-System/internal/authority/domain"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/identity"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/logging"
)

type memRepo struct {
	mu        sync.Mutex
	companies []domain.Company
}

func (m *memRepo) Add(_ context.Context, c domain.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.companies {
		if e.Name == c.Name || e.APIKey == c.APIKey {
			return apperr.ErrConflict
		}
	}
	// Stores keep only the digest.
	c.APISecret = ""
	m.companies = append(m.companies, c)
	return nil
}

func (m *memRepo) find(match func(domain.Company) bool) (domain.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.companies {
		if match(c) {
			return c, nil
		}
	}
	return domain.Company{}, apperr.ErrNotFound
}

func (m *memRepo) GetByID(_ context.Context, id string) (domain.Company, error) {
	return m.find(func(c domain.Company) bool { return c.ID == id })
}

func (m *memRepo) GetByName(_ context.Context, name string) (domain.Company, error) {
	return m.find(func(c domain.Company) bool { return c.Name == name })
}

func (m *memRepo) GetByAPIKey(_ context.Context, key string) (domain.Company, error) {
	return m.find(func(c domain.Company) bool { return c.APIKey == key })
}

func (m *memRepo) List(_ context.Context, offset, limit int) ([]domain.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := slices.Clone(m.companies)
	slices.SortFunc(all, func(a, b domain.Company) int { return strings.Compare(a.Name, b.Name) })
	if offset >= len(all) {
		return nil, nil
	}
	return all[offset:min(offset+limit, len(all))], nil
}

func newService() *Service {
	return NewService(logging.Discard(), &memRepo{}, nil)
}

func TestRegisterCompanyRejectsDuplicateName(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	c, err := svc.RegisterCompany(ctx, "Acme")
	if err != nil {
		t.Fatal(err)
	}
	if c.APIKey == "" || c.APISecret == "" {
		t.Fatalf("missing credentials: %+v", c)
	}
	if _, err := svc.RegisterCompany(ctx, "Acme"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("second registration err = %v", err)
	}
	if _, err := svc.RegisterCompany(ctx, "acme"); err != nil {
		t.Fatalf("names are case sensitive: %v", err)
	}
}

func TestRegisterCompanyInvalidName(t *testing.T) {
	if _, err := newService().RegisterCompany(context.Background(), " "); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	acme, _ := svc.RegisterCompany(ctx, "Acme")
	globex, _ := svc.RegisterCompany(ctx, "Globex")

	got, err := svc.Validate(ctx, acme.APIKey, acme.APISecret, "")
	if err != nil {
		t.Fatal(err)
	}
	if got.CompanyID != acme.ID || got.AccessToken != "" {
		t.Fatalf("credentials = %+v", got)
	}

	if _, err := svc.Validate(ctx, acme.APIKey, acme.APISecret, acme.ID); err != nil {
		t.Fatalf("own company scope: %v", err)
	}

	cases := []struct {
		name, key, secret, company string
	}{
		{"wrong secret", acme.APIKey, globex.APISecret, ""},
		{"unknown key", "nope", acme.APISecret, ""},
		{"empty key", "", "", ""},
		{"other company", acme.APIKey, acme.APISecret, globex.ID},
	}
	for _, tc := range cases {
		if _, err := svc.Validate(ctx, tc.key, tc.secret, tc.company); !errors.Is(err, apperr.ErrUnauthorized) {
			t.Errorf("%s: err = %v", tc.name, err)
		}
	}
}

func TestValidateIssuesAccessToken(t *testing.T) {
	svc := NewService(logging.Discard(), &memRepo{}, identity.NewIssuer("k", time.Minute))
	ctx := context.Background()
	acme, _ := svc.RegisterCompany(ctx, "Acme")

	got, err := svc.Validate(ctx, acme.APIKey, acme.APISecret, "")
	if err != nil {
		t.Fatal(err)
	}
	sub, err := identity.NewVerifier("k").Verify(got.AccessToken)
	if err != nil || sub != acme.ID {
		t.Fatalf("token subject = %q, err = %v", sub, err)
	}
}

func TestListCompaniesPaging(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	for _, n := range []string{"Cyberdyne", "Acme", "Globex"} {
		if _, err := svc.RegisterCompany(ctx, n); err != nil {
			t.Fatal(err)
		}
	}

	page, err := svc.ListCompanies(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Name != "Acme" || page[1].Name != "Cyberdyne" {
		t.Fatalf("page 1 = %+v", page)
	}
	page, _ = svc.ListCompanies(ctx, 2, 2)
	if len(page) != 1 || page[0].Name != "Globex" {
		t.Fatalf("page 2 = %+v", page)
	}

	if _, err := svc.ListCompanies(ctx, 0, 2); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("page 0 err = %v", err)
	}
	if _, err := svc.ListCompanies(ctx, 1, 0); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("size 0 err = %v", err)
	}
}
