package application

import (
	"context"
	"time"

	"github.com/dmehra2102/Trust-Settlement-System/internal/authority/domain"
)

// CompanyRepository returns apperr.ErrNotFound for missing companies and
// apperr.ErrConflict when a name or API key is already taken.
type CompanyRepository interface {
	Add(ctx context.Context, c domain.Company) error
	GetByID(ctx context.Context, id string) (domain.Company, error)
	GetByName(ctx context.Context, name string) (domain.Company, error)
	GetByAPIKey(ctx context.Context, apiKey string) (domain.Company, error)
	// List returns companies ordered by name.
	List(ctx context.Context, offset, limit int) ([]domain.Company, error)
}

type TokenIssuer interface {
	Issue(companyID string) (string, time.Time, error)
}
