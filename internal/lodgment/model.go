// Package lodgment drains designated buffers into ATO clearing accounts
// when a BAS period is lodged. It is the only sanctioned outflow from a
// designated account, and it refuses to run while the period reconciles
// short.
package lodgment

import (
	"errors"
	"fmt"
	"time"

	"github.com/apgms/apgms/internal/reconcile"
	"github.com/apgms/apgms/internal/taxconfig"
)

var (
	// ErrShortfall indicates the period reconciles short of its
	// obligations.
	ErrShortfall = errors.New("lodgment: designated balances short of obligations")
	// ErrLocked indicates another lodgment for the org is in progress.
	ErrLocked = errors.New("lodgment: another lodgment in progress for org")
	// ErrAlreadyLodged indicates the period was lodged before.
	ErrAlreadyLodged = errors.New("lodgment: period already lodged")
)

// ShortfallError carries the reconciliation report that blocked the
// lodgment so callers can show exactly what is missing.
type ShortfallError struct {
	Report reconcile.Report
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("lodgment: period %s reconciles short", e.Report.BasPeriodID)
}

func (e *ShortfallError) Unwrap() error { return ErrShortfall }

// ClearingAccountCode names the ledger clearing account funds drain into
// for a tax type.
func ClearingAccountCode(taxType taxconfig.TaxType) string {
	return fmt.Sprintf("ATO_%s_CLEARING", taxType)
}

// Line is one tax type drained by the lodgment.
type Line struct {
	TaxType             taxconfig.TaxType `json:"taxType"`
	AmountCents         int64             `json:"amountCents"`
	DesignatedAccountID string            `json:"designatedAccountId"`
	ClearingAccountCode string            `json:"clearingAccountCode"`
}

// Result reports a completed lodgment. JournalID is empty when no buffer
// held funds to drain.
type Result struct {
	OrgID       string    `json:"orgId"`
	BasPeriodID string    `json:"basPeriodId"`
	JournalID   string    `json:"journalId,omitempty"`
	Lines       []Line    `json:"lines"`
	LodgedAt    time.Time `json:"lodgedAt"`
}
