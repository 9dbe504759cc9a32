package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apgms/apgms/internal/designated"
	"github.com/apgms/apgms/internal/platform/db"
)

// Repository encapsulates DB operations for the ledger.
type Repository interface {
	ListJournals(ctx context.Context, orgID string, filter JournalFilter) ([]Journal, error)
	GetJournal(ctx context.Context, orgID, journalID string) (Journal, error)
	// CreditBalance reads the credit balance of an account outside any
	// transaction; reconciliation uses it for its read-only report.
	CreditBalance(ctx context.Context, accountID int64, basPeriodID *string) (int64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations available within one ledger
// transaction. Designated-account reads are duplicated here so guard checks
// and journal writes share a transaction context.
type TxRepository interface {
	InsertJournal(ctx context.Context, in WriteInput) (Journal, error)
	InsertPostings(ctx context.Context, journalID uuid.UUID, orgID string, postings []PostingInput) error
	MissingAccounts(ctx context.Context, orgID string, ids []int64) ([]int64, error)
	GetAccountByCode(ctx context.Context, orgID, code string) (Account, error)
	GetJournalWithPostings(ctx context.Context, orgID, journalID string) (Journal, error)
	GetDesignatedForUpdate(ctx context.Context, id string) (designated.Account, error)
	GetMapping(ctx context.Context, orgID, taxType string) (designated.Mapping, error)
	CreditBalance(ctx context.Context, accountID int64, basPeriodID *string) (int64, error)
	ObligationAmount(ctx context.Context, orgID, basPeriodID, taxType string) (int64, error)
	AccrueObligation(ctx context.Context, orgID, basPeriodID, taxType string, amountCents int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a pgx-backed ledger repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const journalColumns = `id, org_id, bas_period_id, type, occurred_at, source, description, meta, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJournal(row rowScanner) (Journal, error) {
	var (
		j    Journal
		meta []byte
	)
	if err := row.Scan(&j.ID, &j.OrgID, &j.BasPeriodID, &j.Type, &j.OccurredAt, &j.Source, &j.Description, &meta, &j.CreatedAt); err != nil {
		return Journal{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &j.Meta); err != nil {
			return Journal{}, err
		}
	}
	return j, nil
}

func (r *repository) ListJournals(ctx context.Context, orgID string, filter JournalFilter) ([]Journal, error) {
	query := `SELECT ` + journalColumns + ` FROM journals WHERE org_id=$1`
	args := []any{orgID}
	if filter.BasPeriodID != "" {
		args = append(args, filter.BasPeriodID)
		query += ` AND bas_period_id=$2`
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += ` AND type=$` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var journals []Journal
	for rows.Next() {
		j, err := scanJournal(rows)
		if err != nil {
			return nil, err
		}
		journals = append(journals, j)
	}
	return journals, rows.Err()
}

func (r *repository) GetJournal(ctx context.Context, orgID, journalID string) (Journal, error) {
	j, err := scanJournal(r.db.QueryRow(ctx, `SELECT `+journalColumns+` FROM journals WHERE org_id=$1 AND id=$2`, orgID, journalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Journal{}, ErrJournalNotFound
		}
		return Journal{}, err
	}
	postings, err := queryPostings(ctx, r.db, j.ID)
	if err != nil {
		return Journal{}, err
	}
	j.Postings = postings
	return j, nil
}

func (r *repository) CreditBalance(ctx context.Context, accountID int64, basPeriodID *string) (int64, error) {
	return creditBalance(ctx, r.db, accountID, basPeriodID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func queryPostings(ctx context.Context, q querier, journalID uuid.UUID) ([]Posting, error) {
	rows, err := q.Query(ctx, `SELECT id, journal_id, account_id, amount_cents, memo FROM postings WHERE journal_id=$1 ORDER BY id ASC`, journalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var postings []Posting
	for rows.Next() {
		var p Posting
		if err := rows.Scan(&p.ID, &p.JournalID, &p.AccountID, &p.AmountCents, &p.Memo); err != nil {
			return nil, err
		}
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

// creditBalance negates the signed posting sum: liability buffers accrue
// credits, so a healthy designated account reports positive here.
func creditBalance(ctx context.Context, q querier, accountID int64, basPeriodID *string) (int64, error) {
	var balance int64
	var err error
	if basPeriodID != nil {
		err = q.QueryRow(ctx, `SELECT COALESCE(-SUM(p.amount_cents), 0) FROM postings p
JOIN journals j ON j.id = p.journal_id
WHERE p.account_id=$1 AND j.bas_period_id=$2`, accountID, *basPeriodID).Scan(&balance)
	} else {
		err = q.QueryRow(ctx, `SELECT COALESCE(-SUM(amount_cents), 0) FROM postings WHERE account_id=$1`, accountID).Scan(&balance)
	}
	return balance, err
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertJournal(ctx context.Context, in WriteInput) (Journal, error) {
	meta, err := json.Marshal(in.Meta)
	if err != nil {
		return Journal{}, err
	}
	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	id := uuid.New()
	var createdAt time.Time
	err = r.tx.QueryRow(ctx, `INSERT INTO journals (id, org_id, bas_period_id, type, occurred_at, source, description, meta)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING created_at`,
		id, in.OrgID, in.BasPeriodID, in.Type, occurredAt, in.Source, in.Description, meta).
		Scan(&createdAt)
	if err != nil {
		return Journal{}, err
	}
	return Journal{
		ID:          id,
		OrgID:       in.OrgID,
		BasPeriodID: in.BasPeriodID,
		Type:        in.Type,
		OccurredAt:  occurredAt,
		Source:      in.Source,
		Description: in.Description,
		Meta:        in.Meta,
		CreatedAt:   createdAt,
	}, nil
}

func (r *txRepository) InsertPostings(ctx context.Context, journalID uuid.UUID, orgID string, postings []PostingInput) error {
	for _, p := range postings {
		if _, err := r.tx.Exec(ctx, `INSERT INTO postings (journal_id, org_id, account_id, amount_cents, memo)
VALUES ($1,$2,$3,$4,$5)`, journalID, orgID, p.AccountID, p.AmountCents, p.Memo); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) MissingAccounts(ctx context.Context, orgID string, ids []int64) ([]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT wanted.id FROM unnest($2::bigint[]) AS wanted(id)
WHERE NOT EXISTS (SELECT 1 FROM accounts a WHERE a.org_id=$1 AND a.id=wanted.id)`, orgID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var missing []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		missing = append(missing, id)
	}
	return missing, rows.Err()
}

func (r *txRepository) GetAccountByCode(ctx context.Context, orgID, code string) (Account, error) {
	var a Account
	err := r.tx.QueryRow(ctx, `SELECT id, org_id, code, name, type, subtype, created_at FROM accounts WHERE org_id=$1 AND code=$2`, orgID, code).
		Scan(&a.ID, &a.OrgID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) GetJournalWithPostings(ctx context.Context, orgID, journalID string) (Journal, error) {
	j, err := scanJournal(r.tx.QueryRow(ctx, `SELECT `+journalColumns+` FROM journals WHERE org_id=$1 AND id=$2`, orgID, journalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Journal{}, ErrJournalNotFound
		}
		return Journal{}, err
	}
	postings, err := queryPostings(ctx, r.tx, j.ID)
	if err != nil {
		return Journal{}, err
	}
	j.Postings = postings
	return j, nil
}

// GetDesignatedForUpdate locks the designated-account row so lifecycle
// checks hold until the surrounding transaction commits.
func (r *txRepository) GetDesignatedForUpdate(ctx context.Context, id string) (designated.Account, error) {
	var a designated.Account
	err := r.tx.QueryRow(ctx, `SELECT id, org_id, type, lifecycle, banking_provider_account_id, ledger_account_id, created_at, updated_at
FROM designated_accounts WHERE id=$1 FOR UPDATE`, id).
		Scan(&a.ID, &a.OrgID, &a.Type, &a.Lifecycle, &a.BankingProviderAccountID, &a.LedgerAccountID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return designated.Account{}, designated.ErrAccountNotFound
		}
		return designated.Account{}, err
	}
	return a, nil
}

func (r *txRepository) GetMapping(ctx context.Context, orgID, taxType string) (designated.Mapping, error) {
	var m designated.Mapping
	err := r.tx.QueryRow(ctx, `SELECT org_id, tax_type, designated_account_id FROM designated_account_mappings WHERE org_id=$1 AND tax_type=$2`, orgID, taxType).
		Scan(&m.OrgID, &m.TaxType, &m.DesignatedAccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return designated.Mapping{}, designated.ErrMappingNotFound
		}
		return designated.Mapping{}, err
	}
	return m, nil
}

func (r *txRepository) CreditBalance(ctx context.Context, accountID int64, basPeriodID *string) (int64, error) {
	return creditBalance(ctx, r.tx, accountID, basPeriodID)
}

func (r *txRepository) ObligationAmount(ctx context.Context, orgID, basPeriodID, taxType string) (int64, error) {
	var amount int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount_cents), 0) FROM tax_obligations
WHERE org_id=$1 AND bas_period_id=$2 AND type=$3`, orgID, basPeriodID, taxType).Scan(&amount)
	return amount, err
}

func (r *txRepository) AccrueObligation(ctx context.Context, orgID, basPeriodID, taxType string, amountCents int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO tax_obligations (id, org_id, bas_period_id, type, amount_cents)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (org_id, bas_period_id, type) DO UPDATE SET amount_cents = tax_obligations.amount_cents + EXCLUDED.amount_cents, updated_at = now()`,
		uuid.NewString(), orgID, basPeriodID, taxType, amountCents)
	return err
}
