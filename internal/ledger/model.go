// Package ledger is the double-entry core. Every balance-affecting operation
// in the system passes through its journal writer; no other component may
// create postings.
package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// AccountType enumerates ledger account classes.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// AccountSubtype refines an account's role in the chart.
type AccountSubtype string

const (
	SubtypeBank        AccountSubtype = "BANK"
	SubtypePaygwBuffer AccountSubtype = "PAYGW_BUFFER"
	SubtypeGstBuffer   AccountSubtype = "GST_BUFFER"
	SubtypeClearing    AccountSubtype = "CLEARING"
	SubtypeSuspense    AccountSubtype = "SUSPENSE"
)

// OperatingAccountCode names the org's working bank account in the chart.
// Settlement journals debit it when funds move into a designated buffer.
const OperatingAccountCode = "OPERATING"

// Account is a ledger account identified by (org, code). Identity is
// immutable; the balance is always derived by summing postings.
type Account struct {
	ID        int64
	OrgID     string
	Code      string
	Name      string
	Type      AccountType
	Subtype   AccountSubtype
	CreatedAt time.Time
}

// Journal is a write-once record owning a balanced set of postings.
// Corrections are made by writing a reversing journal, never by mutation.
type Journal struct {
	ID          uuid.UUID
	OrgID       string
	BasPeriodID *string
	Type        string
	OccurredAt  time.Time
	Source      string
	Description string
	Meta        map[string]any
	CreatedAt   time.Time
	Postings    []Posting
}

// Posting moves signed cents against one account: debit positive, credit
// negative. A journal's postings always net to zero.
type Posting struct {
	ID          int64
	JournalID   uuid.UUID
	AccountID   int64
	AmountCents int64
	Memo        string
}

// Journal types written by the core services.
const (
	JournalTypePaygwSettlement = "PAYGW_SETTLEMENT"
	JournalTypeGstSettlement   = "GST_SETTLEMENT"
	JournalTypeBasLodgment     = "BAS_LODGMENT"
	JournalTypeReversal        = "REVERSAL"
)

var (
	// ErrEmptyJournal indicates a journal with no postings.
	ErrEmptyJournal = errors.New("ledger: journal requires at least one posting")
	// ErrUnbalanced indicates postings that do not net to zero.
	ErrUnbalanced = errors.New("ledger: journal postings must balance to zero")
	// ErrUnknownAccount indicates a posting against an account that does
	// not exist for the org.
	ErrUnknownAccount = errors.New("ledger: posting references unknown account")
	// ErrJournalNotFound indicates a missing journal.
	ErrJournalNotFound = errors.New("ledger: journal not found")
	// ErrAccountNotFound indicates a missing chart account.
	ErrAccountNotFound = errors.New("ledger: account not found")
)
