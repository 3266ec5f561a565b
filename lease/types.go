/*
Package lease provides the lease payment compliance and penalty escalation
engine.

PURPOSE:
  This package contains the domain types and transactional operations for
  motorcycle/battery lease contracts with recurring (typically daily) payment
  obligations. It decides, per contract, whether each calendar day's
  obligation was met, backfills missed days idempotently, escalates unpaid
  penalties through two time-bounded severity windows, honors approved-leave
  exemptions, and reconciles the derived swap-lock flag that gates a driver's
  ability to exchange equipment.

KEY CONCEPTS IN THIS FILE (types.go):
  - Contract: the lease agreement with its running due-date window
  - PaymentRecord: an immutable payment snapshot against the window
  - Penalty: a light/severe sanction for a missed day
  - LeaveRequest: an approved absence exempts the covered days
  - Association: the driver<->vehicle link carrying the swap-lock flag

DESIGN PRINCIPLES:
  1. Entities are plain structs; every mutation goes through an explicit
     service operation running in one Store transaction.
  2. Precision: decimal.Decimal for all monetary amounts.
  3. Determinism: services never read the wall clock implicitly; the current
     instant is injected (Clock field or explicit parameter).
  4. Idempotence: penalty creation is keyed (contract, missed day, type) and
     safe under concurrent re-invocation.

SEE ALSO:
  - calendar.go: skip-Sunday date arithmetic
  - payments.go: the payment recorder
  - scheduler.go: the two-window penalty scheduler
  - penalties.go: manual penalty payments and cancellations
  - swaplock.go: the swap-lock reconciler
*/
package lease

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ContractID string
type BatteryContractID string
type PaymentID string
type PenaltyID string
type PenaltyPaymentID string
type LeaveRequestID string
type AssociationID string

// =============================================================================
// CONTRACT - Lease agreement with a running due-date window
// =============================================================================

type ContractStatus string

const (
	ContractActive     ContractStatus = "active"
	ContractSuspended  ContractStatus = "suspended"
	ContractTerminated ContractStatus = "terminated"
	ContractCompleted  ContractStatus = "completed"
)

// Contract is a driver lease. DateConcerned is the next day owed and
// DateLimit the deadline day (normally DateConcerned plus one business day).
// RemainingAmount is always derived, never set independently.
type Contract struct {
	ID        ContractID
	Reference string // CC-YYYYMM-XXXXX

	TotalAmount      decimal.Decimal
	PaidAmount       decimal.Decimal
	RemainingAmount  decimal.Decimal
	PerPaymentAmount decimal.Decimal

	DateConcerned Day
	DateLimit     Day

	Status ContractStatus

	// Optional battery sub-contract whose balances mirror the battery
	// portion of each payment.
	BatteryContractID *BatteryContractID

	// Driver<->vehicle link carrying the swap-lock flag. Nil for contracts
	// not yet associated to a vehicle.
	AssociationID *AssociationID

	// Leave-day bookkeeping, consumed by the leave workflow.
	LeaveDaysTotal     int
	LeaveDaysUsed      int
	LeaveDaysRemaining int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecomputeBalance derives RemainingAmount and the leave counter. Floored at
// zero on both.
func (c *Contract) RecomputeBalance() {
	c.RemainingAmount = decimal.Max(c.TotalAmount.Sub(c.PaidAmount), decimal.Zero)
	c.LeaveDaysRemaining = c.LeaveDaysTotal - c.LeaveDaysUsed
	if c.LeaveDaysRemaining < 0 {
		c.LeaveDaysRemaining = 0
	}
}

// BatteryContract is the optional battery sub-contract. Only its balances
// participate in the engine; its own window is managed elsewhere.
type BatteryContract struct {
	ID        BatteryContractID
	Reference string

	TotalAmount     decimal.Decimal
	PaidAmount      decimal.Decimal
	RemainingAmount decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (b *BatteryContract) RecomputeBalance() {
	b.RemainingAmount = decimal.Max(b.TotalAmount.Sub(b.PaidAmount), decimal.Zero)
}

// =============================================================================
// PAYMENT RECORD - Immutable once created
// =============================================================================

type PaymentStatus string

const (
	PaymentPaid   PaymentStatus = "paid"
	PaymentUnpaid PaymentStatus = "unpaid"
)

// PaymentRecord snapshots the contract window at the time of payment.
// DateConcerned is the day this payment covers.
type PaymentRecord struct {
	ID         PaymentID
	Reference  string // PL-YYYYMMDD-HHMMSS-XXXXX
	ContractID ContractID

	AmountMoto    decimal.Decimal
	AmountBattery decimal.Decimal
	AmountTotal   decimal.Decimal

	DateConcerned Day
	DateLimit     Day

	Method         string
	TransactionRef string
	Status         PaymentStatus
	RecordedBy     string

	CreatedAt time.Time
}

// =============================================================================
// PENALTY
// =============================================================================

type PenaltyType string

const (
	PenaltyLight  PenaltyType = "light"
	PenaltySevere PenaltyType = "severe"
)

type PenaltyStatus string

const (
	PenaltyUnpaid        PenaltyStatus = "unpaid"
	PenaltyPartiallyPaid PenaltyStatus = "partially_paid"
	PenaltyPaid          PenaltyStatus = "paid"
	PenaltyCancelled     PenaltyStatus = "cancelled"
)

// Penalty sanctions a missed day. At most one light and one severe penalty
// exist per (contract, missed day); escalation upgrades the light row in
// place rather than creating a second one.
type Penalty struct {
	ID         PenaltyID
	ContractID ContractID

	Type   PenaltyType
	Status PenaltyStatus

	Amount          decimal.Decimal
	PaidAmount      decimal.Decimal
	RemainingAmount decimal.Decimal

	// The calendar day whose obligation was not met.
	MissedDate Day
	// Snapshot of the contract's DateLimit at creation.
	ReferenceDeadline Day
	// Instant after which an unsettled penalty locks the swap. Nil once
	// cancelled.
	PaymentDueAt *time.Time

	Motive      string
	Description string

	CancelJustification string
	CancelledBy         string
	CancelledAt         *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Settled reports whether nothing is left to collect.
func (p *Penalty) Settled() bool {
	return p.Status == PenaltyPaid || !p.RemainingAmount.IsPositive()
}

// PenaltyPayment records a manual payment against a penalty. Immutable.
type PenaltyPayment struct {
	ID        PenaltyPaymentID
	Reference string
	PenaltyID PenaltyID

	Amount         decimal.Decimal
	Method         string
	TransactionRef string
	PaidBy         string

	CreatedAt time.Time
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type LeaveStatus string

const (
	LeavePending   LeaveStatus = "pending"
	LeaveApproved  LeaveStatus = "approved"
	LeaveRejected  LeaveStatus = "rejected"
	LeaveCancelled LeaveStatus = "cancelled"
	LeaveCompleted LeaveStatus = "completed"
)

// LeaveRequest covers the inclusive day range [StartDate, EndDate]. Only
// approved requests exempt days from penalty.
type LeaveRequest struct {
	ID         LeaveRequestID
	ContractID ContractID

	StartDate Day
	EndDate   Day
	DayCount  int

	Status LeaveStatus
	Motive string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Covers reports whether day falls inside the request's range, inclusive on
// both ends, at day granularity.
func (l *LeaveRequest) Covers(day Day) bool {
	return !day.Before(l.StartDate) && !day.After(l.EndDate)
}

// =============================================================================
// ASSOCIATION - driver<->vehicle link
// =============================================================================

// Association links a driver to a vehicle. SwapLocked is owned by the
// swap-lock reconciler: true means the driver may not exchange equipment.
type Association struct {
	ID         AssociationID
	ContractID ContractID
	DriverID   string
	VehicleID  string

	SwapLocked bool

	UpdatedAt time.Time
}
