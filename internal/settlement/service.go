package settlement

import (
	"context"
	"fmt"

	"github.com/apgms/apgms/internal/designated"
	"github.com/apgms/apgms/internal/ledger"
	"github.com/apgms/apgms/internal/tax"
	"github.com/apgms/apgms/internal/taxconfig"
)

// MappingSource resolves the designated account for a tax type.
type MappingSource interface {
	GetMapping(ctx context.Context, orgID string, taxType taxconfig.TaxType) (designated.Mapping, error)
}

// AuditPort records settlement actions on the org's audit chain.
type AuditPort interface {
	Record(ctx context.Context, orgID, actorID, action string, metadata map[string]any) error
}

// MetricsPort counts completed settlements per tax type.
type MetricsPort interface {
	ObserveSettlement(taxType string)
}

// Service settles batches into designated buffers.
type Service struct {
	paygw        *tax.PaygwEngine
	gst          *tax.GstEngine
	mappings     MappingSource
	ledger       ledger.Repository
	audit        AuditPort
	metrics      MetricsPort
	jurisdiction taxconfig.Jurisdiction
}

func NewService(paygw *tax.PaygwEngine, gst *tax.GstEngine, mappings MappingSource, ledgerRepo ledger.Repository, audit AuditPort, metrics MetricsPort) *Service {
	return &Service{
		paygw:        paygw,
		gst:          gst,
		mappings:     mappings,
		ledger:       ledgerRepo,
		audit:        audit,
		metrics:      metrics,
		jurisdiction: taxconfig.JurisdictionAUCommonwealth,
	}
}

func (s *Service) observe(taxType taxconfig.TaxType) {
	if s.metrics != nil {
		s.metrics.ObserveSettlement(string(taxType))
	}
}

// SettlePaygw computes withholding for every line of the payroll run and
// deposits the total into the PAYGW buffer.
func (s *Service) SettlePaygw(ctx context.Context, actorID string, batch PayrollBatch) (Result, error) {
	var total int64
	var parameterSetID string
	for _, line := range batch.Lines {
		res, err := s.paygw.Calculate(ctx, tax.PaygwInput{
			Jurisdiction: s.jurisdiction,
			OnDate:       batch.PaidOn,
			GrossCents:   line.GrossCents,
			PayPeriod:    batch.PayPeriod,
		})
		if err != nil {
			return Result{}, fmt.Errorf("settle paygw line %s: %w", line.EmployeeRef, err)
		}
		total += res.WithholdingCents
		parameterSetID = res.ParameterSetID
	}

	result := Result{
		TaxType:        taxconfig.TaxTypePAYGW,
		BasPeriodID:    batch.BasPeriodID,
		AmountCents:    total,
		ParameterSetID: parameterSetID,
	}
	journalID, accountID, err := s.deposit(ctx, depositInput{
		orgID:       batch.OrgID,
		basPeriodID: batch.BasPeriodID,
		taxType:     taxconfig.TaxTypePAYGW,
		amountCents: total,
		journalType: ledger.JournalTypePaygwSettlement,
		source:      "settlement.paygw",
		description: fmt.Sprintf("PAYGW settlement for payroll batch %s", batch.BatchRef),
		meta: map[string]any{
			"batchRef":       batch.BatchRef,
			"parameterSetId": parameterSetID,
			"lineCount":      len(batch.Lines),
		},
	})
	if err != nil {
		return Result{}, err
	}
	result.JournalID = journalID
	result.DesignatedAccountID = accountID

	_ = s.audit.Record(ctx, batch.OrgID, actorID, "settlement.paygw", map[string]any{
		"batchRef":    batch.BatchRef,
		"basPeriodId": batch.BasPeriodID,
		"amountCents": total,
		"journalId":   journalID,
	})
	s.observe(taxconfig.TaxTypePAYGW)
	return result, nil
}

// SettleGst nets the batch's classified lines. A positive net deposits into
// the GST buffer; a refund position accrues on the obligation without
// moving money.
func (s *Service) SettleGst(ctx context.Context, actorID string, batch PosBatch) (Result, error) {
	net, err := s.gst.CalculateNet(ctx, tax.GstNetInput{
		Jurisdiction: s.jurisdiction,
		OnDate:       batch.TradedOn,
		Sales:        batch.Sales,
		Purchases:    batch.Purchases,
		Adjustments:  batch.Adjustments,
	})
	if err != nil {
		return Result{}, fmt.Errorf("settle gst batch %s: %w", batch.BatchRef, err)
	}

	result := Result{
		TaxType:            taxconfig.TaxTypeGST,
		BasPeriodID:        batch.BasPeriodID,
		AmountCents:        net.NetGstCents,
		ParameterSetID:     net.ParameterSetID,
		RefundDue:          net.RefundDue,
		UnmappedCategories: net.UnmappedCategories,
	}
	if net.RefundDue {
		err := s.ledger.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
			return tx.AccrueObligation(ctx, batch.OrgID, batch.BasPeriodID, string(taxconfig.TaxTypeGST), net.NetGstCents)
		})
		if err != nil {
			return Result{}, err
		}
		_ = s.audit.Record(ctx, batch.OrgID, actorID, "settlement.gst", map[string]any{
			"batchRef":    batch.BatchRef,
			"basPeriodId": batch.BasPeriodID,
			"amountCents": net.NetGstCents,
			"refundDue":   true,
		})
		s.observe(taxconfig.TaxTypeGST)
		return result, nil
	}

	journalID, accountID, err := s.deposit(ctx, depositInput{
		orgID:       batch.OrgID,
		basPeriodID: batch.BasPeriodID,
		taxType:     taxconfig.TaxTypeGST,
		amountCents: net.NetGstCents,
		journalType: ledger.JournalTypeGstSettlement,
		source:      "settlement.gst",
		description: fmt.Sprintf("GST settlement for POS batch %s", batch.BatchRef),
		meta: map[string]any{
			"batchRef":         batch.BatchRef,
			"parameterSetId":   net.ParameterSetID,
			"taxableBaseCents": net.TaxableBaseCents,
		},
	})
	if err != nil {
		return Result{}, err
	}
	result.JournalID = journalID
	result.DesignatedAccountID = accountID

	_ = s.audit.Record(ctx, batch.OrgID, actorID, "settlement.gst", map[string]any{
		"batchRef":    batch.BatchRef,
		"basPeriodId": batch.BasPeriodID,
		"amountCents": net.NetGstCents,
		"journalId":   journalID,
	})
	s.observe(taxconfig.TaxTypeGST)
	return result, nil
}

type depositInput struct {
	orgID       string
	basPeriodID string
	taxType     taxconfig.TaxType
	amountCents int64
	journalType string
	source      string
	description string
	meta        map[string]any
}

// deposit runs the guard check, the journal write and the obligation accrual
// under one repeatable-read transaction. The designated row is locked first
// so a concurrent lifecycle change cannot slip between check and write.
func (s *Service) deposit(ctx context.Context, in depositInput) (journalID, designatedID string, err error) {
	mapping, err := s.mappings.GetMapping(ctx, in.orgID, in.taxType)
	if err != nil {
		return "", "", err
	}
	err = s.ledger.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		account, err := tx.GetDesignatedForUpdate(ctx, mapping.DesignatedAccountID)
		if err != nil {
			return err
		}
		if account.OrgID != in.orgID {
			return designated.ErrAccountNotFound
		}
		if err := designated.AssertMovementAllowed(account, designated.OperationDeposit, in.amountCents); err != nil {
			return err
		}
		operating, err := tx.GetAccountByCode(ctx, in.orgID, ledger.OperatingAccountCode)
		if err != nil {
			return err
		}
		journal, err := ledger.WriteTx(ctx, tx, ledger.WriteInput{
			OrgID:       in.orgID,
			BasPeriodID: &in.basPeriodID,
			Type:        in.journalType,
			Source:      in.source,
			Description: in.description,
			Meta:        in.meta,
			Postings: []ledger.PostingInput{
				{AccountID: operating.ID, AmountCents: in.amountCents, Memo: in.description},
				{AccountID: account.LedgerAccountID, AmountCents: -in.amountCents, Memo: in.description},
			},
		})
		if err != nil {
			return err
		}
		journalID = journal.ID.String()
		designatedID = account.ID
		return tx.AccrueObligation(ctx, in.orgID, in.basPeriodID, string(in.taxType), in.amountCents)
	})
	if err != nil {
		return "", "", err
	}
	return journalID, designatedID, nil
}
