package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists idempotency entries.
type Repository interface {
	// TryBegin claims the key by inserting a pending row. It reports false
	// when a row for (org, scope, key) already exists.
	TryBegin(ctx context.Context, e Entry) (bool, error)
	Get(ctx context.Context, orgID, scope, key string) (Entry, bool, error)
	Complete(ctx context.Context, orgID, scope, key string, responseStatus int, responseBody []byte) error
	// Abandon removes a pending row so the client may retry after a server
	// side failure.
	Abandon(ctx context.Context, orgID, scope, key string) error
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) TryBegin(ctx context.Context, e Entry) (bool, error) {
	tag, err := r.db.Exec(ctx, `INSERT INTO idempotency_entries (org_id, scope, key, payload_hash, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (org_id, scope, key) DO NOTHING`,
		e.OrgID, e.Scope, e.Key, e.PayloadHash, StatusPending, time.Now())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) Get(ctx context.Context, orgID, scope, key string) (Entry, bool, error) {
	var e Entry
	err := r.db.QueryRow(ctx, `SELECT key, org_id, scope, payload_hash, status, COALESCE(response_status, 0), COALESCE(response_body, ''), created_at
FROM idempotency_entries WHERE org_id=$1 AND scope=$2 AND key=$3`, orgID, scope, key).
		Scan(&e.Key, &e.OrgID, &e.Scope, &e.PayloadHash, &e.Status, &e.ResponseStatus, &e.ResponseBody, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return e, true, nil
}

func (r *repository) Complete(ctx context.Context, orgID, scope, key string, responseStatus int, responseBody []byte) error {
	_, err := r.db.Exec(ctx, `UPDATE idempotency_entries SET status=$4, response_status=$5, response_body=$6
WHERE org_id=$1 AND scope=$2 AND key=$3`, orgID, scope, key, StatusComplete, responseStatus, responseBody)
	return err
}

func (r *repository) Abandon(ctx context.Context, orgID, scope, key string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM idempotency_entries WHERE org_id=$1 AND scope=$2 AND key=$3 AND status=$4`,
		orgID, scope, key, StatusPending)
	return err
}

func (r *repository) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM idempotency_entries WHERE created_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
