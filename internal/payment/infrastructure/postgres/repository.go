package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/Trust-Settlement-System/internal/payment/application"
	"github.com/dmehra2102/Trust-Settlement-System/internal/payment/domain"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/outbox"
)

const Schema = `
CREATE TABLE IF NOT EXISTS payments (
	id             UUID PRIMARY KEY,
	order_id       UUID NOT NULL,
	company_id     UUID NOT NULL,
	card_number    TEXT NOT NULL,
	expiry_date    TIMESTAMPTZ NOT NULL,
	status         TEXT NOT NULL,
	processor      TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS payments_order_idx ON payments (order_id);
`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

var _ application.PaymentRepository = (*Repository)(nil)

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// Migrate creates the payment and outbox tables.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, outbox.Schema)
	return err
}

func (r *Repository) SaveWithOutbox(ctx context.Context, p domain.Payment, e outbox.Event) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO payments (id, order_id, company_id, card_number, expiry_date, status, processor, failure_reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.OrderID, p.CompanyID, p.CardNumber, p.ExpiryDate, p.Status, p.Processor, p.FailureReason, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	if err := outbox.Insert(ctx, tx, e); err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return tx.Commit(ctx)
}

const selectPayment = `
	SELECT id::text, order_id::text, company_id::text, card_number, expiry_date, status, processor, failure_reason, created_at
	FROM payments`

func scanPayment(row pgx.CollectableRow) (domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.CompanyID, &p.CardNumber, &p.ExpiryDate, &p.Status, &p.Processor, &p.FailureReason, &p.CreatedAt)
	return p, err
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Payment, error) {
	if uuid.Validate(id) != nil {
		return domain.Payment{}, fmt.Errorf("%w: payment %s", apperr.ErrNotFound, id)
	}
	rows, err := r.pool.Query(ctx, selectPayment+` WHERE id = $1`, id)
	if err != nil {
		return domain.Payment{}, err
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, fmt.Errorf("%w: payment %s", apperr.ErrNotFound, id)
	}
	return p, err
}

func (r *Repository) List(ctx context.Context) ([]domain.Payment, error) {
	rows, err := r.pool.Query(ctx, selectPayment+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPayment)
}
