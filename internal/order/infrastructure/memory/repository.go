// Package memory is an in-process order store for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Trust-Settlement-System/internal/order/application"
	"github.com/dmehra2102/Trust-Settlement-System/internal/order/domain"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
)

type Repository struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
	// companies serializes Create per company, like the advisory lock of the
	// postgres store.
	companies sync.Map // string -> *sync.Mutex
}

var _ application.OrderRepository = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{orders: map[string]domain.Order{}}
}

func (r *Repository) companyLock(id string) *sync.Mutex {
	v, _ := r.companies.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (r *Repository) Create(ctx context.Context, o domain.Order, guard application.LimitGuard) error {
	l := r.companyLock(o.CompanyID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	from, to := domain.DayBounds(o.CreatedAt)
	total, err := r.Total(ctx, o.CompanyID, from, to, domain.LimitStatuses...)
	if err != nil {
		return err
	}
	if guard != nil {
		if err := guard(total); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return fmt.Errorf("%w: order %s exists", apperr.ErrConflict, o.ID)
	}
	r.orders[o.ID] = o
	return nil
}

func (r *Repository) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: order %s", apperr.ErrNotFound, id)
	}
	return o, nil
}

func (r *Repository) ListByCompany(_ context.Context, companyID string) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Order
	for _, o := range r.orders {
		if o.CompanyID == companyID {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b domain.Order) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r *Repository) Total(_ context.Context, companyID string, from, to time.Time, statuses ...domain.OrderStatus) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := decimal.Zero
	for _, o := range r.orders {
		if o.CompanyID == companyID && slices.Contains(statuses, o.Status) &&
			!o.CreatedAt.Before(from) && o.CreatedAt.Before(to) {
			total = total.Add(o.Amount)
		}
	}
	return total, nil
}

func (r *Repository) UpdateStatus(_ context.Context, id string, status domain.OrderStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return false, fmt.Errorf("%w: order %s", apperr.ErrNotFound, id)
	}
	if o.Status != domain.StatusCreated {
		return false, nil
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	r.orders[id] = o
	return true, nil
}

// Put stores o as is. Tests use it to seed history.
func (r *Repository) Put(o domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
}
