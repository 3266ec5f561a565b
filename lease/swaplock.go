/*
swaplock.go - Swap-lock reconciler

PURPOSE:
  Recomputes the Association.SwapLocked flag from aggregate penalty state.
  The recomputation is total: it ignores the flag's prior value and derives
  it fresh every time, so the flag converges even if an intermediate
  payment or cancellation event was missed.

WHO CALLS IT:
  The payment recorder and the penalty ledger, inside their own Store
  transaction, after every mutation that can change overdue-penalty state.
  The scheduler does not call it; reconciliation happens on payment and
  cancellation events.
*/
package lease

import (
	"context"
	"time"
)

// ReconcileSwapLock sets the contract association's SwapLocked flag to
// whether an unsettled penalty is past its payment due instant. Contracts
// without an association are a no-op.
func ReconcileSwapLock(ctx context.Context, store Store, c *Contract, now time.Time) error {
	if c.AssociationID == nil {
		return nil
	}

	overdue, err := store.HasOverduePenalty(ctx, c.ID, now)
	if err != nil {
		return err
	}

	assoc, err := store.GetAssociation(ctx, *c.AssociationID)
	if err != nil {
		return err
	}

	assoc.SwapLocked = overdue
	assoc.UpdatedAt = now
	return store.SaveAssociation(ctx, assoc)
}
