/*
store.go - Persistence interface for the lease engine

PURPOSE:
  Defines the interface between the domain logic and the database. The
  services in this package only ever talk to Store/TxStore, so business
  rules are testable against the in-memory implementation and run unchanged
  on SQLite (or any SQL store with the same shape).

TRANSACTIONS AND LOCKING:
  Every mutating operation (record payment, pay/cancel penalty, one
  contract's slice of a scheduler pass, leave transitions) runs inside a
  single WithTx call. Implementations serialize WithTx bodies, which is the
  engine's equivalent of the row-level SELECT ... FOR UPDATE the operations
  need: concurrent attempts on the same contract cannot interleave.

UNIQUENESS:
  CreatePenalty enforces the (contract_id, missed_date) unique key and
  returns ErrPenaltyExists on violation. This is what makes scheduler runs
  idempotent under overlapping invocation.

IMPLEMENTATIONS:
  - lease/store (memory.go): in-memory, snapshot-rollback WithTx
  - store/sqlite: production SQLite
*/
package lease

import (
	"context"
	"time"
)

// Store is the persistence surface of the engine. Reads return copies;
// mutations are only visible to other callers once the enclosing WithTx
// commits.
type Store interface {
	// --- contracts ---

	// GetContract returns ErrContractNotFound when the id is unknown.
	GetContract(ctx context.Context, id ContractID) (*Contract, error)
	SaveContract(ctx context.Context, c *Contract) error
	// ListActiveContractIDs returns the ids of all active contracts, for
	// the scheduler's noon pass.
	ListActiveContractIDs(ctx context.Context) ([]ContractID, error)

	GetBatteryContract(ctx context.Context, id BatteryContractID) (*BatteryContract, error)
	SaveBatteryContract(ctx context.Context, b *BatteryContract) error

	// --- payments ---

	CreatePayment(ctx context.Context, p *PaymentRecord) error
	// CountPaymentsInRange counts records for the contract created in
	// [from, to), for the daily cap.
	CountPaymentsInRange(ctx context.Context, id ContractID, from, to time.Time) (int, error)
	// ListPaymentsForDay returns records whose DateConcerned equals day.
	ListPaymentsForDay(ctx context.Context, id ContractID, day Day) ([]PaymentRecord, error)

	// --- penalties ---

	// GetPenalty returns ErrPenaltyNotFound when the id is unknown.
	GetPenalty(ctx context.Context, id PenaltyID) (*Penalty, error)
	// GetPenaltyForDay looks up the contract's penalty for the missed day,
	// regardless of type or status (an escalated or cancelled row still
	// suppresses re-creation); ErrPenaltyNotFound when absent.
	GetPenaltyForDay(ctx context.Context, id ContractID, day Day) (*Penalty, error)
	// CreatePenalty returns ErrPenaltyExists when the unique key is taken.
	CreatePenalty(ctx context.Context, p *Penalty) error
	SavePenalty(ctx context.Context, p *Penalty) error
	// ListPenaltiesByMissedDate returns penalties of the given type whose
	// MissedDate equals day, for the afternoon escalation pass.
	ListPenaltiesByMissedDate(ctx context.Context, day Day, typ PenaltyType) ([]Penalty, error)
	ListPenaltiesByContract(ctx context.Context, id ContractID) ([]Penalty, error)
	// HasOverduePenalty reports whether the contract has a penalty in
	// {unpaid, partially_paid} with PaymentDueAt before asOf.
	HasOverduePenalty(ctx context.Context, id ContractID, asOf time.Time) (bool, error)

	CreatePenaltyPayment(ctx context.Context, p *PenaltyPayment) error

	// --- leave ---

	GetLeaveRequest(ctx context.Context, id LeaveRequestID) (*LeaveRequest, error)
	CreateLeaveRequest(ctx context.Context, l *LeaveRequest) error
	SaveLeaveRequest(ctx context.Context, l *LeaveRequest) error
	// HasApprovedLeave reports whether an approved request of the contract
	// covers day (inclusive, day-level comparison).
	HasApprovedLeave(ctx context.Context, id ContractID, day Day) (bool, error)

	// --- associations ---

	GetAssociation(ctx context.Context, id AssociationID) (*Association, error)
	SaveAssociation(ctx context.Context, a *Association) error
}

// TxStore adds transactional execution. If fn returns an error the
// transaction rolls back and no partial state survives.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
