// Package reconcile compares accrued tax obligations against the money
// actually sitting in designated buffers. Lodgment refuses to move funds
// until the period reconciles without shortfall.
package reconcile

import (
	"time"

	"github.com/apgms/apgms/internal/taxconfig"
)

// Status classifies a line or a whole report.
type Status string

const (
	StatusMatched   Status = "MATCHED"
	StatusShortfall Status = "SHORTFALL"
	StatusSurplus   Status = "SURPLUS"
)

// Line compares one tax type for the period. VarianceCents is actual minus
// expected, so a shortfall is negative.
type Line struct {
	TaxType             taxconfig.TaxType `json:"taxType"`
	DesignatedAccountID string            `json:"designatedAccountId,omitempty"`
	LedgerAccountID     int64             `json:"ledgerAccountId,omitempty"`
	ExpectedCents       int64             `json:"expectedCents"`
	ActualCents         int64             `json:"actualCents"`
	VarianceCents       int64             `json:"varianceCents"`
	Status              Status            `json:"status"`
	Detail              string            `json:"detail,omitempty"`
}

// Report is the reconciliation outcome for one BAS period.
type Report struct {
	OrgID       string    `json:"orgId"`
	BasPeriodID string    `json:"basPeriodId"`
	GeneratedAt time.Time `json:"generatedAt"`
	Lines       []Line    `json:"lines"`
	Status      Status    `json:"status"`
}

// HasShortfall reports whether any line is short.
func (r Report) HasShortfall() bool {
	for _, line := range r.Lines {
		if line.Status == StatusShortfall {
			return true
		}
	}
	return false
}
