package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Trust-Settlement-System/internal/order/domain"
)

// LimitGuard inspects the company's exposure for the day of the new order,
// the sum of its completed and still open orders, before the order is
// inserted. A non-nil error aborts the insert.
type LimitGuard func(exposure decimal.Decimal) error

type OrderRepository interface {
	// Create runs guard and inserts o atomically with respect to other
	// Creates for the same company.
	Create(ctx context.Context, o domain.Order, guard LimitGuard) error
	Get(ctx context.Context, id string) (domain.Order, error)
	ListByCompany(ctx context.Context, companyID string) ([]domain.Order, error)
	// Total sums the amounts of the company's orders created in [from, to)
	// whose status is one of statuses.
	Total(ctx context.Context, companyID string, from, to time.Time, statuses ...domain.OrderStatus) (decimal.Decimal, error)
	// UpdateStatus moves a created order to status. It reports false when the
	// order had already left created.
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (bool, error)
}
