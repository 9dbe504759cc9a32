package obligation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apgms/apgms/internal/taxconfig"
)

// ErrPeriodNotFound indicates an unknown BAS period.
var ErrPeriodNotFound = errors.New("obligation: bas period not found")

// Repository reads obligations and BAS periods.
type Repository interface {
	ListForPeriod(ctx context.Context, orgID, basPeriodID string) ([]Obligation, error)
	AmountFor(ctx context.Context, orgID, basPeriodID string, taxType taxconfig.TaxType) (int64, error)
	GetPeriod(ctx context.Context, orgID, basPeriodID string) (Period, error)
	// DuePeriods returns unlodged periods whose due date falls on or before
	// the cutoff, across all orgs. The reminder scan runs it daily.
	DuePeriods(ctx context.Context, cutoff time.Time) ([]Period, error)
	MarkLodged(ctx context.Context, orgID, basPeriodID string, at time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) ListForPeriod(ctx context.Context, orgID, basPeriodID string) ([]Obligation, error) {
	rows, err := r.db.Query(ctx, `SELECT id, org_id, bas_period_id, type, amount_cents, updated_at
FROM tax_obligations WHERE org_id=$1 AND bas_period_id=$2 ORDER BY type ASC`, orgID, basPeriodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Obligation
	for rows.Next() {
		var o Obligation
		if err := rows.Scan(&o.ID, &o.OrgID, &o.BasPeriodID, &o.Type, &o.AmountCents, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *repository) AmountFor(ctx context.Context, orgID, basPeriodID string, taxType taxconfig.TaxType) (int64, error) {
	var amount int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount_cents), 0) FROM tax_obligations
WHERE org_id=$1 AND bas_period_id=$2 AND type=$3`, orgID, basPeriodID, taxType).Scan(&amount)
	return amount, err
}

func (r *repository) GetPeriod(ctx context.Context, orgID, basPeriodID string) (Period, error) {
	var p Period
	err := r.db.QueryRow(ctx, `SELECT id, org_id, label, starts_on, ends_on, due_at, lodged_at
FROM bas_periods WHERE org_id=$1 AND id=$2`, orgID, basPeriodID).
		Scan(&p.ID, &p.OrgID, &p.Label, &p.StartsOn, &p.EndsOn, &p.DueAt, &p.LodgedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) DuePeriods(ctx context.Context, cutoff time.Time) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT id, org_id, label, starts_on, ends_on, due_at, lodged_at
FROM bas_periods WHERE lodged_at IS NULL AND due_at <= $1 ORDER BY due_at ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Label, &p.StartsOn, &p.EndsOn, &p.DueAt, &p.LodgedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) MarkLodged(ctx context.Context, orgID, basPeriodID string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE bas_periods SET lodged_at=$3 WHERE org_id=$1 AND id=$2 AND lodged_at IS NULL`, orgID, basPeriodID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}
