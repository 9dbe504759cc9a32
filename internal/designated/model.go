// Package designated models the restricted one-way holding accounts that
// secure withheld tax funds, their lifecycle, and the org/tax-type mapping
// that settlement and lodgment resolve against.
package designated

import (
	"errors"
	"time"

	"github.com/apgms/apgms/internal/taxconfig"
)

// Type enumerates what obligation a designated account secures.
type Type string

const (
	TypePAYGW Type = "PAYGW"
	TypeGST   Type = "GST"
	TypePAYGI Type = "PAYGI"
	TypeFBT   Type = "FBT"
	TypeOther Type = "OTHER"
)

// Lifecycle enumerates designated account states. Transitions run strictly
// forward; CLOSED is terminal.
type Lifecycle string

const (
	LifecyclePendingActivation Lifecycle = "PENDING_ACTIVATION"
	LifecycleActive            Lifecycle = "ACTIVE"
	LifecycleSunsetting        Lifecycle = "SUNSETTING"
	LifecycleClosed            Lifecycle = "CLOSED"
)

// Operation enumerates movement kinds validated by the guard.
type Operation string

const (
	OperationDeposit          Operation = "DEPOSIT"
	OperationWithdrawal       Operation = "WITHDRAWAL"
	OperationInternalTransfer Operation = "INTERNAL_TRANSFER"
)

// Account is a restricted holding account. LedgerAccountID names the ledger
// account its postings land on; BankingProviderAccountID names the real-world
// account at the banking partner.
type Account struct {
	ID                       string
	OrgID                    string
	Type                     Type
	Lifecycle                Lifecycle
	BankingProviderAccountID string
	LedgerAccountID          int64
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// Mapping binds an org's obligation type to the designated account that
// captures it. Every settlement and lodgment resolves one of these first.
type Mapping struct {
	OrgID               string
	TaxType             taxconfig.TaxType
	DesignatedAccountID string
}

var (
	// ErrMappingNotFound indicates no designated account is configured for
	// the org and tax type.
	ErrMappingNotFound = errors.New("designated: no designated account mapped for org and tax type")
	// ErrAccountNotFound indicates the designated account does not exist.
	ErrAccountNotFound = errors.New("designated: account not found")
	// ErrInvalidTransition indicates a lifecycle change that would run
	// backwards or reopen a closed account.
	ErrInvalidTransition = errors.New("designated: invalid lifecycle transition")
)

var lifecycleOrder = map[Lifecycle]int{
	LifecyclePendingActivation: 0,
	LifecycleActive:            1,
	LifecycleSunsetting:        2,
	LifecycleClosed:            3,
}

// CanTransition reports whether the lifecycle may move from one state to the
// next. Only strict forward moves are permitted; CLOSED never reopens.
func CanTransition(from, to Lifecycle) bool {
	fromOrder, ok := lifecycleOrder[from]
	if !ok {
		return false
	}
	toOrder, ok := lifecycleOrder[to]
	if !ok {
		return false
	}
	return toOrder > fromOrder
}
