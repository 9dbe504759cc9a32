package designated

import (
	"errors"
	"fmt"
)

// ErrMovementNotAllowed is the single error kind for every guard rejection;
// the wrapped message carries the human-readable reason.
var ErrMovementNotAllowed = errors.New("designated: movement not allowed")

// AssertMovementAllowed validates a proposed movement against the account's
// current lifecycle. Pure validation, no side effects. Callers must run this
// inside the same transaction as the ledger write, against a row read under
// lock, or a lifecycle change can slip between check and persist.
//
// Designated accounts are one-way: even ACTIVE accounts accept deposits only.
// Outbound movement happens solely through lodgment clearing journals, which
// debit the ledger account directly under controlled release and never pass
// through this guard.
func AssertMovementAllowed(account Account, op Operation, amountCents int64) error {
	if amountCents <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", ErrMovementNotAllowed, amountCents)
	}
	switch account.Lifecycle {
	case LifecyclePendingActivation:
		return fmt.Errorf("%w: account %s is not yet activated", ErrMovementNotAllowed, account.ID)
	case LifecycleClosed:
		return fmt.Errorf("%w: account %s is closed", ErrMovementNotAllowed, account.ID)
	case LifecycleActive, LifecycleSunsetting:
		if op != OperationDeposit {
			return fmt.Errorf("%w: %s accounts accept deposits only, got %s", ErrMovementNotAllowed, account.Lifecycle, op)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown lifecycle %q", ErrMovementNotAllowed, account.Lifecycle)
	}
}
