/*
errors.go - Centralized error types for the lease engine

ERROR CATEGORIES:
  1. Not-found errors - missing contract/penalty/leave rows, fatal to the
     single operation, surfaced to the caller, no retry.
  2. Validation errors - business rule violations; the operation is rejected
     with no state change (every operation is one Store transaction).
  3. Conflict errors - uniqueness races; expected under concurrent
     re-invocation of the scheduler and treated as no-ops there.

USAGE:
  if errors.Is(err, lease.ErrDailyCapExceeded) { ... }
*/
package lease

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrContractNotFound is returned when the referenced contract does not
	// exist or is not active.
	ErrContractNotFound = errors.New("contract not found")

	// ErrPenaltyNotFound is returned when the referenced penalty does not exist.
	ErrPenaltyNotFound = errors.New("penalty not found")

	// ErrLeaveNotFound is returned when the referenced leave request does not exist.
	ErrLeaveNotFound = errors.New("leave request not found")

	// ErrAssociationNotFound is returned when a contract has no driver/vehicle link.
	ErrAssociationNotFound = errors.New("association not found")

	// ErrDailyCapExceeded is returned when a contract already has the maximum
	// number of payments recorded for the current calendar day. The caller
	// may retry the next day.
	ErrDailyCapExceeded = errors.New("daily payment cap exceeded")

	// ErrInvalidAmount is returned when an amount is non-positive or exceeds
	// what remains to be paid.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidTransition is returned when a state change is not allowed
	// from the current status (cancelling a non-unpaid penalty, approving a
	// rejected leave, suspending a terminated contract, ...).
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrEmptyJustification is returned when a penalty cancellation carries
	// no justification.
	ErrEmptyJustification = errors.New("cancellation requires a justification")

	// ErrPenaltyExists is returned by stores when the unique key
	// (contract, missed date, type) already has a row. Scheduler runs treat
	// this as "unchanged".
	ErrPenaltyExists = errors.New("penalty already exists for this day")

	// ErrInsufficientLeaveDays is returned when a leave request asks for
	// more days than the contract has left.
	ErrInsufficientLeaveDays = errors.New("not enough leave days remaining")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidAmountError explains why an amount was rejected.
type InvalidAmountError struct {
	Requested decimal.Decimal
	Remaining decimal.Decimal
	Reason    string // "non_positive" or "exceeds_remaining"
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %s (%s, remaining %s)",
		e.Requested, e.Reason, e.Remaining)
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

// TransitionError explains a rejected status change.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
