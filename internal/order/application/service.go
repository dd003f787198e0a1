package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Trust-Settlement-System/internal/order/domain"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
)

type Service struct {
	log        *slog.Logger
	repo       OrderRepository
	dailyLimit decimal.Decimal
	now        func() time.Time
}

func NewService(log *slog.Logger, repo OrderRepository, dailyLimit decimal.Decimal) *Service {
	if !dailyLimit.IsPositive() {
		dailyLimit = domain.DefaultDailyLimit
	}
	return &Service{log: log, repo: repo, dailyLimit: dailyLimit, now: time.Now}
}

func (s *Service) CreateOrder(ctx context.Context, companyID string, amount decimal.Decimal, currency string) (domain.Order, error) {
	o, err := domain.NewOrder(companyID, amount, currency)
	if err != nil {
		return domain.Order{}, err
	}

	guard := func(exposure decimal.Decimal) error {
		if err := domain.CheckDailyLimit(exposure, amount, s.dailyLimit); err != nil {
			s.log.Warn("daily limit exceeded",
				"company_id", companyID,
				"exposure", exposure.String(),
				"amount", amount.String(),
			)
			return err
		}
		return nil
	}
	if err := s.repo.Create(ctx, o, guard); err != nil {
		return domain.Order{}, err
	}
	s.log.Info("order created", "order_id", o.ID, "company_id", companyID)
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListOrdersByCompany(ctx context.Context, companyID string) ([]domain.Order, error) {
	return s.repo.ListByCompany(ctx, companyID)
}

// CompletedTotalToday sums the company's completed orders created this UTC day.
func (s *Service) CompletedTotalToday(ctx context.Context, companyID string) (decimal.Decimal, error) {
	from, to := domain.DayBounds(s.now())
	return s.repo.Total(ctx, companyID, from, to, domain.StatusCompleted)
}

// OrderExists reports whether orderID exists and belongs to companyID.
func (s *Service) OrderExists(ctx context.Context, orderID, companyID string) (bool, error) {
	o, err := s.repo.Get(ctx, orderID)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return o.CompanyID == companyID, nil
}
