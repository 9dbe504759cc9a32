package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apgms/apgms/internal/platform/httpx"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Token, error)
	Create(ctx context.Context, token Token) error
	Revoke(ctx context.Context, orgID, id string, at time.Time) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByID fetches a token record by its public identifier.
func (r *PGRepository) FindByID(ctx context.Context, id string) (*Token, error) {
	var t Token
	err := r.pool.QueryRow(ctx, `SELECT id, org_id, name, secret_hash, revoked_at IS NULL, created_at, revoked_at
FROM api_tokens WHERE id=$1`, id).
		Scan(&t.ID, &t.OrgID, &t.Name, &t.SecretHash, &t.IsActive, &t.CreatedAt, &t.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Create persists a freshly issued token.
func (r *PGRepository) Create(ctx context.Context, token Token) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO api_tokens (id, org_id, name, secret_hash, created_at)
VALUES ($1,$2,$3,$4,$5)`, token.ID, token.OrgID, token.Name, token.SecretHash, token.CreatedAt)
	return err
}

// Revoke marks a token unusable from the given time.
func (r *PGRepository) Revoke(ctx context.Context, orgID, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE api_tokens SET revoked_at=$3 WHERE org_id=$1 AND id=$2 AND revoked_at IS NULL`, orgID, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
