package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/Trust-Settlement-System/internal/authority/domain"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
)

type Service struct {
	log    *slog.Logger
	repo   CompanyRepository
	tokens TokenIssuer
}

// NewService builds the authority. tokens may be nil, in which case
// validation never issues access tokens.
func NewService(log *slog.Logger, repo CompanyRepository, tokens TokenIssuer) *Service {
	return &Service{log: log, repo: repo, tokens: tokens}
}

func (s *Service) RegisterCompany(ctx context.Context, name string) (domain.Company, error) {
	if err := domain.ValidateName(name); err != nil {
		s.log.Warn("invalid company name", "err", err)
		return domain.Company{}, err
	}

	_, err := s.repo.GetByName(ctx, name)
	switch {
	case err == nil:
		s.log.Warn("company already exists", "name", name)
		return domain.Company{}, fmt.Errorf("%w: a company named %q already exists", apperr.ErrConflict, name)
	case !errors.Is(err, apperr.ErrNotFound):
		return domain.Company{}, err
	}

	c, err := domain.NewCompany(name)
	if err != nil {
		return domain.Company{}, err
	}
	if err := s.repo.Add(ctx, c); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			s.log.Warn("company registration lost a race", "name", name)
		} else {
			s.log.Error("register company failed", "name", name, "err", err)
		}
		return domain.Company{}, err
	}
	s.log.Info("company registered", "company_id", c.ID)
	return c, nil
}

func (s *Service) GetCompany(ctx context.Context, id string) (domain.Company, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListCompanies(ctx context.Context, page, pageSize int) ([]domain.Company, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: page must be greater than 0", apperr.ErrInvalid)
	}
	if pageSize < 1 {
		return nil, fmt.Errorf("%w: page size must be greater than 0", apperr.ErrInvalid)
	}
	return s.repo.List(ctx, (page-1)*pageSize, pageSize)
}

// Credentials is the answer to a successful validation. AccessToken is empty
// when no issuer is configured.
type Credentials struct {
	CompanyID   string
	AccessToken string
	ExpiresAt   time.Time
}

var errBadCredentials = fmt.Errorf("%w: invalid API key or secret", apperr.ErrUnauthorized)

// Validate checks apiKey/apiSecret and, when companyID is set, that the key
// belongs to that company. Every failure looks the same to the caller.
func (s *Service) Validate(ctx context.Context, apiKey, apiSecret, companyID string) (Credentials, error) {
	var owner *domain.Company
	if apiKey != "" {
		c, err := s.repo.GetByAPIKey(ctx, apiKey)
		switch {
		case err == nil:
			owner = &c
		case !errors.Is(err, apperr.ErrNotFound):
			return Credentials{}, err
		}
	}

	if !domain.SecretMatches(owner, apiSecret) {
		s.log.Warn("credential validation failed")
		return Credentials{}, errBadCredentials
	}
	if companyID != "" && companyID != owner.ID {
		s.log.Warn("credentials used for another company", "company_id", companyID)
		return Credentials{}, errBadCredentials
	}

	out := Credentials{CompanyID: owner.ID}
	if s.tokens != nil {
		tok, exp, err := s.tokens.Issue(owner.ID)
		if err != nil {
			return Credentials{}, fmt.Errorf("issue access token: %w", err)
		}
		out.AccessToken, out.ExpiresAt = tok, exp
	}
	return out, nil
}
