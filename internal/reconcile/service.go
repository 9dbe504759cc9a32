package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apgms/apgms/internal/designated"
	"github.com/apgms/apgms/internal/taxconfig"
)

// MappingSource resolves which designated account buffers a tax type.
type MappingSource interface {
	GetMapping(ctx context.Context, orgID string, taxType taxconfig.TaxType) (designated.Mapping, error)
	GetAccount(ctx context.Context, id string) (designated.Account, error)
}

// ObligationSource reads accrued amounts per period and tax type.
type ObligationSource interface {
	AmountFor(ctx context.Context, orgID, basPeriodID string, taxType taxconfig.TaxType) (int64, error)
}

// BalanceSource reads the credit balance of a ledger account, optionally
// scoped to the journals of one BAS period.
type BalanceSource interface {
	CreditBalance(ctx context.Context, accountID int64, basPeriodID *string) (int64, error)
}

// reconciledTypes fixes which tax types a report covers, in output order.
var reconciledTypes = []taxconfig.TaxType{taxconfig.TaxTypePAYGW, taxconfig.TaxTypeGST}

// Service builds reconciliation reports.
type Service struct {
	mappings    MappingSource
	obligations ObligationSource
	balances    BalanceSource
	now         func() time.Time
}

func NewService(mappings MappingSource, obligations ObligationSource, balances BalanceSource) *Service {
	return &Service{mappings: mappings, obligations: obligations, balances: balances, now: time.Now}
}

// Report reconciles every covered tax type for the period. A tax type with
// neither an obligation nor a mapping is omitted; an obligation with no
// mapped buffer reconciles as fully short.
func (s *Service) Report(ctx context.Context, orgID, basPeriodID string) (Report, error) {
	report := Report{
		OrgID:       orgID,
		BasPeriodID: basPeriodID,
		GeneratedAt: s.now().UTC(),
		Status:      StatusMatched,
	}
	for _, taxType := range reconciledTypes {
		expected, err := s.obligations.AmountFor(ctx, orgID, basPeriodID, taxType)
		if err != nil {
			return Report{}, fmt.Errorf("reconcile %s: %w", taxType, err)
		}
		line := Line{TaxType: taxType, ExpectedCents: expected}

		mapping, err := s.mappings.GetMapping(ctx, orgID, taxType)
		switch {
		case err == nil:
			account, err := s.mappings.GetAccount(ctx, mapping.DesignatedAccountID)
			if err != nil {
				return Report{}, fmt.Errorf("reconcile %s: %w", taxType, err)
			}
			line.DesignatedAccountID = account.ID
			line.LedgerAccountID = account.LedgerAccountID
			line.ActualCents, err = s.balances.CreditBalance(ctx, account.LedgerAccountID, &basPeriodID)
			if err != nil {
				return Report{}, fmt.Errorf("reconcile %s: %w", taxType, err)
			}
		case errors.Is(err, designated.ErrMappingNotFound):
			if expected == 0 {
				continue
			}
			// An obligation with no account to fund it cannot be lodged.
			// Reporting it as a shortfall line, rather than omitting it,
			// keeps the gate closed until the mapping is fixed.
			line.Detail = "no designated account mapped"
		default:
			return Report{}, fmt.Errorf("reconcile %s: %w", taxType, err)
		}

		line.VarianceCents = line.ActualCents - line.ExpectedCents
		switch {
		case line.VarianceCents < 0:
			line.Status = StatusShortfall
			line.Detail = joinDetail(line.Detail, "short by "+FormatAUD(-line.VarianceCents))
		case line.VarianceCents > 0:
			line.Status = StatusSurplus
			line.Detail = joinDetail(line.Detail, "over by "+FormatAUD(line.VarianceCents))
		default:
			line.Status = StatusMatched
		}
		report.Lines = append(report.Lines, line)
	}

	for _, line := range report.Lines {
		if line.Status == StatusShortfall {
			report.Status = StatusShortfall
			break
		}
		if line.Status == StatusSurplus {
			report.Status = StatusSurplus
		}
	}
	return report, nil
}

func joinDetail(existing, extra string) string {
	if existing == "" {
		return extra
	}
	return existing + "; " + extra
}
