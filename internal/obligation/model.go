// Package obligation tracks accrued tax liabilities per BAS period.
// Settlement accrues into it inside the same transaction as the journal
// write; reconciliation and lodgment read it back.
package obligation

import (
	"time"

	"github.com/apgms/apgms/internal/taxconfig"
)

// Obligation is the running amount owed for one (org, period, tax type).
type Obligation struct {
	ID          string            `json:"id"`
	OrgID       string            `json:"orgId"`
	BasPeriodID string            `json:"basPeriodId"`
	Type        taxconfig.TaxType `json:"type"`
	AmountCents int64             `json:"amountCents"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Period is a BAS reporting window. DueAt drives the lodgment reminder scan.
type Period struct {
	ID       string     `json:"id"`
	OrgID    string     `json:"orgId"`
	Label    string     `json:"label"`
	StartsOn time.Time  `json:"startsOn"`
	EndsOn   time.Time  `json:"endsOn"`
	DueAt    time.Time  `json:"dueAt"`
	LodgedAt *time.Time `json:"lodgedAt,omitempty"`
}
