package lodgment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apgms/apgms/internal/designated"
	"github.com/apgms/apgms/internal/ledger"
	"github.com/apgms/apgms/internal/obligation"
	"github.com/apgms/apgms/internal/reconcile"
	"github.com/apgms/apgms/internal/shared"
	"github.com/apgms/apgms/internal/taxconfig"
)

// Locker serializes lodgments per org across processes.
type Locker interface {
	Acquire(ctx context.Context, orgID string) error
	Release(ctx context.Context, orgID string) error
}

// ReportSource builds the reconciliation gate.
type ReportSource interface {
	Report(ctx context.Context, orgID, basPeriodID string) (reconcile.Report, error)
}

// PeriodStore reads and closes BAS periods.
type PeriodStore interface {
	GetPeriod(ctx context.Context, orgID, basPeriodID string) (obligation.Period, error)
	MarkLodged(ctx context.Context, orgID, basPeriodID string, at time.Time) error
}

// AuditPort records lodgment actions on the org's audit chain.
type AuditPort interface {
	Record(ctx context.Context, orgID, actorID, action string, metadata map[string]any) error
}

// MetricsPort counts lodgment attempts by outcome.
type MetricsPort interface {
	ObserveLodgment(outcome string)
}

// lodgedTypes fixes the tax types a lodgment drains, in posting order.
var lodgedTypes = []taxconfig.TaxType{taxconfig.TaxTypePAYGW, taxconfig.TaxTypeGST}

// Service executes atomic lodgments.
type Service struct {
	locks   Locker
	recon   ReportSource
	periods PeriodStore
	ledger  ledger.Repository
	audit   AuditPort
	metrics MetricsPort
	now     func() time.Time
}

func NewService(locks Locker, recon ReportSource, periods PeriodStore, ledgerRepo ledger.Repository, audit AuditPort, metrics MetricsPort) *Service {
	return &Service{
		locks:   locks,
		recon:   recon,
		periods: periods,
		ledger:  ledgerRepo,
		audit:   audit,
		metrics: metrics,
		now:     time.Now,
	}
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveLodgment(outcome)
	}
}

// Lodge drains every funded buffer for the period into its ATO clearing
// account with one journal. The per-org lock keeps concurrent lodgments
// out; the in-transaction balance recheck keeps a racing settlement or
// reversal from breaking the drain invariant between gate and write.
func (s *Service) Lodge(ctx context.Context, orgID, actorID, basPeriodID string) (Result, error) {
	if err := s.locks.Acquire(ctx, orgID); err != nil {
		if errors.Is(err, shared.ErrLockHeld) {
			return Result{}, ErrLocked
		}
		return Result{}, err
	}
	defer func() { _ = s.locks.Release(ctx, orgID) }()

	period, err := s.periods.GetPeriod(ctx, orgID, basPeriodID)
	if err != nil {
		return Result{}, err
	}
	if period.LodgedAt != nil {
		return Result{}, fmt.Errorf("%w: at %s", ErrAlreadyLodged, period.LodgedAt.Format(time.RFC3339))
	}

	report, err := s.recon.Report(ctx, orgID, basPeriodID)
	if err != nil {
		return Result{}, err
	}
	if report.HasShortfall() {
		s.observe("shortfall")
		return Result{}, &ShortfallError{Report: report}
	}

	result := Result{OrgID: orgID, BasPeriodID: basPeriodID}
	err = s.ledger.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		var postings []ledger.PostingInput
		for _, taxType := range lodgedTypes {
			mapping, err := tx.GetMapping(ctx, orgID, string(taxType))
			if err != nil {
				if errors.Is(err, designated.ErrMappingNotFound) {
					continue
				}
				return err
			}
			account, err := tx.GetDesignatedForUpdate(ctx, mapping.DesignatedAccountID)
			if err != nil {
				return err
			}
			if account.OrgID != orgID {
				return designated.ErrAccountNotFound
			}
			if account.Lifecycle != designated.LifecycleActive && account.Lifecycle != designated.LifecycleSunsetting {
				return fmt.Errorf("lodgment: designated account %s is %s", account.ID, account.Lifecycle)
			}
			owed, err := tx.ObligationAmount(ctx, orgID, basPeriodID, string(taxType))
			if err != nil {
				return err
			}
			balance, err := tx.CreditBalance(ctx, account.LedgerAccountID, &basPeriodID)
			if err != nil {
				return err
			}
			if balance < owed {
				return &ShortfallError{Report: report}
			}
			if balance <= 0 {
				continue
			}
			// Lodgment sweeps the whole buffer, not just the owed amount.
			// Anything settled beyond the obligation is trapped behind the
			// one-way guard otherwise.
			clearingCode := ClearingAccountCode(taxType)
			clearing, err := tx.GetAccountByCode(ctx, orgID, clearingCode)
			if err != nil {
				return err
			}
			postings = append(postings,
				ledger.PostingInput{AccountID: account.LedgerAccountID, AmountCents: balance, Memo: string(taxType) + " lodgment"},
				ledger.PostingInput{AccountID: clearing.ID, AmountCents: -balance, Memo: string(taxType) + " lodgment"},
			)
			result.Lines = append(result.Lines, Line{
				TaxType:             taxType,
				AmountCents:         balance,
				DesignatedAccountID: account.ID,
				ClearingAccountCode: clearingCode,
			})
		}
		if len(postings) == 0 {
			// Nothing owed and nothing held. The period closes without a
			// journal.
			return nil
		}
		journal, err := ledger.WriteTx(ctx, tx, ledger.WriteInput{
			OrgID:       orgID,
			BasPeriodID: &basPeriodID,
			Type:        ledger.JournalTypeBasLodgment,
			Source:      "lodgment",
			Description: fmt.Sprintf("BAS lodgment for period %s", period.Label),
			Meta:        map[string]any{"basPeriodId": basPeriodID},
			Postings:    postings,
		})
		if err != nil {
			return err
		}
		result.JournalID = journal.ID.String()
		return nil
	})
	if err != nil {
		var shortfall *ShortfallError
		if errors.As(err, &shortfall) {
			s.observe("shortfall")
		}
		return Result{}, err
	}

	result.LodgedAt = s.now().UTC()
	if err := s.periods.MarkLodged(ctx, orgID, basPeriodID, result.LodgedAt); err != nil {
		return Result{}, err
	}
	_ = s.audit.Record(ctx, orgID, actorID, "lodgment.bas", map[string]any{
		"basPeriodId": basPeriodID,
		"journalId":   result.JournalID,
		"lines":       len(result.Lines),
	})
	s.observe("lodged")
	return result, nil
}
