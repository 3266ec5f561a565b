/*
ledger.go - Contract window and balance mutations

PURPOSE:
  Owns the contract's running due-date window (DateConcerned/DateLimit) and
  its derived balances. These are pure in-memory mutations; callers persist
  the contract inside their own Store transaction.

WINDOW INVARIANT:
  DateConcerned is the next day owed. DateLimit trails it by one business
  day (skip-Sunday). Every successful payment advances the window by one
  step regardless of whether the payment covers the full per-period amount;
  sufficiency is only judged later, by the scheduler's compliance check.
*/
package lease

import "github.com/shopspring/decimal"

// AdvanceWindow applies a payment to the contract: balances absorb the
// amount and the due-date window moves one business day forward.
func AdvanceWindow(c *Contract, amount decimal.Decimal) {
	c.PaidAmount = c.PaidAmount.Add(amount)
	c.DateConcerned = NextWorkingDay(c.DateConcerned)
	c.DateLimit = NextWorkingDay(c.DateConcerned)
	c.RecomputeBalance()
}

// ApplyLeaveShift pushes the window forward by n business days when a leave
// request is approved.
func ApplyLeaveShift(c *Contract, n int) {
	c.DateConcerned = AddDaysSkipSunday(c.DateConcerned, n)
	c.DateLimit = AddDaysSkipSunday(c.DateLimit, n)
}

// RevertLeaveShift is the inverse of ApplyLeaveShift, used when an approved
// request is cancelled or rejected.
func RevertLeaveShift(c *Contract, n int) {
	c.DateConcerned = SubtractDaysSkipSunday(c.DateConcerned, n)
	c.DateLimit = SubtractDaysSkipSunday(c.DateLimit, n)
}

// =============================================================================
// CONTRACT STATUS TRANSITIONS
// =============================================================================

// Suspend pauses an active contract.
func (c *Contract) Suspend() error {
	if c.Status != ContractActive {
		return &TransitionError{Entity: "contract", From: string(c.Status), To: string(ContractSuspended)}
	}
	c.Status = ContractSuspended
	return nil
}

// Resume reactivates a suspended contract.
func (c *Contract) Resume() error {
	if c.Status != ContractSuspended {
		return &TransitionError{Entity: "contract", From: string(c.Status), To: string(ContractActive)}
	}
	c.Status = ContractActive
	return nil
}

// Terminate ends an active or suspended contract early.
func (c *Contract) Terminate() error {
	if c.Status != ContractActive && c.Status != ContractSuspended {
		return &TransitionError{Entity: "contract", From: string(c.Status), To: string(ContractTerminated)}
	}
	c.Status = ContractTerminated
	return nil
}

// Complete closes a contract whose remaining amount reached zero.
func (c *Contract) Complete() error {
	if !c.RemainingAmount.IsZero() {
		return &TransitionError{Entity: "contract", From: string(c.Status), To: string(ContractCompleted)}
	}
	c.Status = ContractCompleted
	return nil
}
