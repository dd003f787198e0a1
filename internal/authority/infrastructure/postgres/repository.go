package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/Trust-Settlement-System/internal/authority/domain"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
)

const Schema = `
CREATE TABLE IF NOT EXISTS companies (
	id         UUID PRIMARY KEY,
	name       VARCHAR(100) NOT NULL UNIQUE,
	api_key    VARCHAR(64) NOT NULL UNIQUE,
	api_secret_digest CHAR(64) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const uniqueViolation = "23505"

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, Schema)
	return err
}

func (r *Repository) Add(ctx context.Context, c domain.Company) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO companies (id, name, api_key, api_secret_digest, created_at) VALUES ($1,$2,$3,$4,$5)`,
		c.ID, c.Name, c.APIKey, c.SecretDigest, c.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", apperr.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

const selectCompany = `SELECT id::text, name, api_key, api_secret_digest, created_at FROM companies`

func (r *Repository) get(ctx context.Context, where string, arg any) (domain.Company, error) {
	var c domain.Company
	err := r.pool.QueryRow(ctx, selectCompany+" WHERE "+where+" = $1", arg).
		Scan(&c.ID, &c.Name, &c.APIKey, &c.SecretDigest, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Company{}, fmt.Errorf("%w: company", apperr.ErrNotFound)
	}
	return c, err
}

func (r *Repository) GetByID(ctx context.Context, id string) (domain.Company, error) {
	if uuid.Validate(id) != nil {
		return domain.Company{}, fmt.Errorf("%w: company", apperr.ErrNotFound)
	}
	return r.get(ctx, "id", id)
}

func (r *Repository) GetByName(ctx context.Context, name string) (domain.Company, error) {
	return r.get(ctx, "name", name)
}

func (r *Repository) GetByAPIKey(ctx context.Context, apiKey string) (domain.Company, error) {
	return r.get(ctx, "api_key", apiKey)
}

func (r *Repository) List(ctx context.Context, offset, limit int) ([]domain.Company, error) {
	rows, err := r.pool.Query(ctx, selectCompany+` ORDER BY name OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Company, error) {
		var c domain.Company
		err := row.Scan(&c.ID, &c.Name, &c.APIKey, &c.SecretDigest, &c.CreatedAt)
		return c, err
	})
}
