package audit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists audit entries. Appends go through Insert, which
// relies on the unique (org_id, seq) index to detect lost races.
type Repository interface {
	Insert(ctx context.Context, e Entry) error
	LastEntry(ctx context.Context, orgID string) (Entry, bool, error)
	ListAsc(ctx context.Context, orgID string) ([]Entry, error)
	ListDesc(ctx context.Context, orgID string, limit int) ([]Entry, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, e Entry) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO audit_entries (id, org_id, seq, actor_id, action, metadata, created_at, prev_hash, hash)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.OrgID, e.Seq, e.ActorID, e.Action, metadata, e.CreatedAt, e.PrevHash, e.Hash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSeqConflict
		}
		return err
	}
	return nil
}

func (r *repository) LastEntry(ctx context.Context, orgID string) (Entry, bool, error) {
	e, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM audit_entries
WHERE org_id=$1 ORDER BY seq DESC LIMIT 1`, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return e, true, nil
}

func (r *repository) ListAsc(ctx context.Context, orgID string) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM audit_entries WHERE org_id=$1 ORDER BY seq ASC`, orgID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r *repository) ListDesc(ctx context.Context, orgID string, limit int) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM audit_entries WHERE org_id=$1 ORDER BY seq DESC LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

const entryColumns = `id, org_id, seq, actor_id, action, metadata, created_at, prev_hash, hash`

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e        Entry
		metadata []byte
	)
	if err := row.Scan(&e.ID, &e.OrgID, &e.Seq, &e.ActorID, &e.Action, &metadata, &e.CreatedAt, &e.PrevHash, &e.Hash); err != nil {
		return Entry{}, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return Entry{}, err
		}
	}
	return e, nil
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
