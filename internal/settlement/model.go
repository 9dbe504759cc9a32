// Package settlement turns ingested payroll and POS batches into designated
// account deposits. Each settlement computes the statutory amount, checks
// the buffer's lifecycle, writes one balanced journal and accrues the
// period's obligation, all in a single transaction.
package settlement

import (
	"time"

	"github.com/apgms/apgms/internal/tax"
	"github.com/apgms/apgms/internal/taxconfig"
)

// PayrollLine is one employee payment in a batch.
type PayrollLine struct {
	EmployeeRef string `json:"employeeRef" validate:"required"`
	GrossCents  int64  `json:"grossCents" validate:"gte=0"`
}

// PayrollBatch is a payroll run to settle for PAYGW.
type PayrollBatch struct {
	OrgID       string
	BasPeriodID string
	BatchRef    string
	PaidOn      time.Time
	PayPeriod   string
	Lines       []PayrollLine
}

// PosBatch is a period's classified POS activity to settle for GST.
type PosBatch struct {
	OrgID       string
	BasPeriodID string
	BatchRef    string
	TradedOn    time.Time
	Sales       []tax.GstLine
	Purchases   []tax.GstLine
	Adjustments []tax.GstLine
}

// Result reports one settlement.
type Result struct {
	JournalID           string            `json:"journalId,omitempty"`
	TaxType             taxconfig.TaxType `json:"taxType"`
	BasPeriodID         string            `json:"basPeriodId"`
	AmountCents         int64             `json:"amountCents"`
	ParameterSetID      string            `json:"parameterSetId"`
	DesignatedAccountID string            `json:"designatedAccountId,omitempty"`
	// RefundDue marks a GST position that nets negative; no deposit is
	// made, the refund is carried on the obligation.
	RefundDue bool `json:"refundDue,omitempty"`
	// UnmappedCategories surfaces POS categories the active parameter set
	// does not classify.
	UnmappedCategories []string `json:"unmappedCategories,omitempty"`
}
