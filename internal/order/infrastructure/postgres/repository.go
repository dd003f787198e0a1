package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Trust-Settlement-System/internal/order/application"
	"github.com/dmehra2102/Trust-Settlement-System/internal/order/domain"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
)

const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id         UUID PRIMARY KEY,
	company_id UUID NOT NULL,
	amount     NUMERIC(18,2) NOT NULL CHECK (amount > 0),
	currency   VARCHAR(10) NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_company_day_idx ON orders (company_id, created_at);
`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

var _ application.OrderRepository = (*Repository)(nil)

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, Schema)
	return err
}

// Create holds a transaction-scoped advisory lock on the company while it
// reads the day's total and inserts, so concurrent creates are serialized.
func (r *Repository) Create(ctx context.Context, o domain.Order, guard application.LimitGuard) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, o.CompanyID); err != nil {
		return fmt.Errorf("lock company: %w", err)
	}

	from, to := domain.DayBounds(o.CreatedAt)
	total, err := total(ctx, tx, o.CompanyID, from, to, domain.LimitStatuses)
	if err != nil {
		return err
	}
	if guard != nil {
		if err := guard(total); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, company_id, amount, currency, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		o.ID, o.CompanyID, o.Amount, o.Currency, o.Status, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func total(ctx context.Context, q querier, companyID string, from, to time.Time, statuses []domain.OrderStatus) (decimal.Decimal, error) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	var sum decimal.Decimal
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM orders
		WHERE company_id = $1 AND created_at >= $2 AND created_at < $3 AND status = ANY($4)`,
		companyID, from, to, names).Scan(&sum)
	return sum, err
}

func (r *Repository) Total(ctx context.Context, companyID string, from, to time.Time, statuses ...domain.OrderStatus) (decimal.Decimal, error) {
	return total(ctx, r.pool, companyID, from, to, statuses)
}

const selectOrder = `SELECT id::text, company_id::text, amount, currency, status, created_at, updated_at FROM orders`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.CompanyID, &o.Amount, &o.Currency, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	if uuid.Validate(id) != nil {
		return domain.Order{}, fmt.Errorf("%w: order %s", apperr.ErrNotFound, id)
	}
	o, err := scanOrder(r.pool.QueryRow(ctx, selectOrder+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("%w: order %s", apperr.ErrNotFound, id)
	}
	return o, err
}

func (r *Repository) ListByCompany(ctx context.Context, companyID string) ([]domain.Order, error) {
	if uuid.Validate(companyID) != nil {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, selectOrder+` WHERE company_id = $1 ORDER BY created_at`, companyID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		return scanOrder(row)
	})
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (bool, error) {
	if uuid.Validate(id) != nil {
		return false, fmt.Errorf("%w: order %s", apperr.ErrNotFound, id)
	}
	ct, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`,
		id, status, domain.StatusCreated)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
