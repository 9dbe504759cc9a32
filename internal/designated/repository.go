package designated

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apgms/apgms/internal/taxconfig"
)

// Repository encapsulates DB operations for designated accounts and mappings.
type Repository interface {
	GetAccount(ctx context.Context, id string) (Account, error)
	ListAccounts(ctx context.Context, orgID string) ([]Account, error)
	UpdateLifecycle(ctx context.Context, id string, from, to Lifecycle) error
	GetMapping(ctx context.Context, orgID string, taxType taxconfig.TaxType) (Mapping, error)
	SetMapping(ctx context.Context, m Mapping) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, org_id, type, lifecycle, banking_provider_account_id, ledger_account_id, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.OrgID, &a.Type, &a.Lifecycle, &a.BankingProviderAccountID, &a.LedgerAccountID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) GetAccount(ctx context.Context, id string) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM designated_accounts WHERE id=$1`, id))
}

func (r *repository) ListAccounts(ctx context.Context, orgID string) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM designated_accounts WHERE org_id=$1 ORDER BY created_at ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.OrgID, &a.Type, &a.Lifecycle, &a.BankingProviderAccountID, &a.LedgerAccountID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// UpdateLifecycle applies an optimistic compare-and-set on the lifecycle
// column; a concurrent transition makes the WHERE miss and surfaces as
// ErrInvalidTransition rather than silently overwriting.
func (r *repository) UpdateLifecycle(ctx context.Context, id string, from, to Lifecycle) error {
	cmd, err := r.db.Exec(ctx, `UPDATE designated_accounts SET lifecycle=$3, updated_at=$4 WHERE id=$1 AND lifecycle=$2`, id, from, to, time.Now())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *repository) GetMapping(ctx context.Context, orgID string, taxType taxconfig.TaxType) (Mapping, error) {
	var m Mapping
	err := r.db.QueryRow(ctx, `SELECT org_id, tax_type, designated_account_id FROM designated_account_mappings WHERE org_id=$1 AND tax_type=$2`, orgID, string(taxType)).
		Scan(&m.OrgID, &m.TaxType, &m.DesignatedAccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Mapping{}, ErrMappingNotFound
		}
		return Mapping{}, err
	}
	return m, nil
}

func (r *repository) SetMapping(ctx context.Context, m Mapping) error {
	_, err := r.db.Exec(ctx, `INSERT INTO designated_account_mappings (org_id, tax_type, designated_account_id)
VALUES ($1,$2,$3)
ON CONFLICT (org_id, tax_type) DO UPDATE SET designated_account_id=EXCLUDED.designated_account_id`,
		m.OrgID, string(m.TaxType), m.DesignatedAccountID)
	return err
}
