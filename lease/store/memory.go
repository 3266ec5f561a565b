// Package store provides an in-memory lease.Store implementation for tests
// and development. WithTx is simulated with a snapshot and rollback under a
// single mutex, which also gives the serialization the engine's operations
// rely on.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/warp/lease-engine/lease"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type penaltyDayKey struct {
	Contract lease.ContractID
	Day      string
}

type Memory struct {
	mu sync.RWMutex

	contracts       map[lease.ContractID]lease.Contract
	batteries       map[lease.BatteryContractID]lease.BatteryContract
	payments        []lease.PaymentRecord
	penalties       map[lease.PenaltyID]lease.Penalty
	penaltyByDay    map[penaltyDayKey]lease.PenaltyID
	penaltyPayments []lease.PenaltyPayment
	leaves          map[lease.LeaveRequestID]lease.LeaveRequest
	associations    map[lease.AssociationID]lease.Association
}

func NewMemory() *Memory {
	return &Memory{
		contracts:    make(map[lease.ContractID]lease.Contract),
		batteries:    make(map[lease.BatteryContractID]lease.BatteryContract),
		penalties:    make(map[lease.PenaltyID]lease.Penalty),
		penaltyByDay: make(map[penaltyDayKey]lease.PenaltyID),
		leaves:       make(map[lease.LeaveRequestID]lease.LeaveRequest),
		associations: make(map[lease.AssociationID]lease.Association),
	}
}

// Seed helpers for tests: insert without transition checks.

func (m *Memory) PutContract(c lease.Contract) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[c.ID] = c
}

func (m *Memory) PutBatteryContract(b lease.BatteryContract) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batteries[b.ID] = b
}

func (m *Memory) PutAssociation(a lease.Association) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.associations[a.ID] = a
}

func (m *Memory) PutLeaveRequest(l lease.LeaveRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves[l.ID] = l
}

// =============================================================================
// lease.Store - contracts
// =============================================================================

func (m *Memory) GetContract(_ context.Context, id lease.ContractID) (*lease.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getContractLocked(id)
}

func (m *Memory) getContractLocked(id lease.ContractID) (*lease.Contract, error) {
	c, ok := m.contracts[id]
	if !ok {
		return nil, lease.ErrContractNotFound
	}
	out := c
	return &out, nil
}

func (m *Memory) SaveContract(_ context.Context, c *lease.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveContractLocked(c)
}

func (m *Memory) saveContractLocked(c *lease.Contract) error {
	m.contracts[c.ID] = *c
	return nil
}

func (m *Memory) ListActiveContractIDs(_ context.Context) ([]lease.ContractID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listActiveContractIDsLocked()
}

func (m *Memory) listActiveContractIDsLocked() ([]lease.ContractID, error) {
	var ids []lease.ContractID
	for id, c := range m.contracts {
		if c.Status == lease.ContractActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *Memory) GetBatteryContract(_ context.Context, id lease.BatteryContractID) (*lease.BatteryContract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBatteryLocked(id)
}

func (m *Memory) getBatteryLocked(id lease.BatteryContractID) (*lease.BatteryContract, error) {
	b, ok := m.batteries[id]
	if !ok {
		return nil, lease.ErrContractNotFound
	}
	out := b
	return &out, nil
}

func (m *Memory) SaveBatteryContract(_ context.Context, b *lease.BatteryContract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batteries[b.ID] = *b
	return nil
}

// =============================================================================
// lease.Store - payments
// =============================================================================

func (m *Memory) CreatePayment(_ context.Context, p *lease.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPaymentLocked(p)
}

func (m *Memory) createPaymentLocked(p *lease.PaymentRecord) error {
	m.payments = append(m.payments, *p)
	return nil
}

func (m *Memory) CountPaymentsInRange(_ context.Context, id lease.ContractID, from, to time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countPaymentsInRangeLocked(id, from, to)
}

func (m *Memory) countPaymentsInRangeLocked(id lease.ContractID, from, to time.Time) (int, error) {
	count := 0
	for _, p := range m.payments {
		if p.ContractID == id && !p.CreatedAt.Before(from) && p.CreatedAt.Before(to) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) ListPaymentsForDay(_ context.Context, id lease.ContractID, day lease.Day) ([]lease.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPaymentsForDayLocked(id, day)
}

func (m *Memory) listPaymentsForDayLocked(id lease.ContractID, day lease.Day) ([]lease.PaymentRecord, error) {
	var out []lease.PaymentRecord
	for _, p := range m.payments {
		if p.ContractID == id && p.DateConcerned.Equal(day) {
			out = append(out, p)
		}
	}
	return out, nil
}

// =============================================================================
// lease.Store - penalties
// =============================================================================

func (m *Memory) GetPenalty(_ context.Context, id lease.PenaltyID) (*lease.Penalty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPenaltyLocked(id)
}

func (m *Memory) getPenaltyLocked(id lease.PenaltyID) (*lease.Penalty, error) {
	p, ok := m.penalties[id]
	if !ok {
		return nil, lease.ErrPenaltyNotFound
	}
	out := clonePenalty(p)
	return &out, nil
}

func (m *Memory) GetPenaltyForDay(_ context.Context, id lease.ContractID, day lease.Day) (*lease.Penalty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPenaltyForDayLocked(id, day)
}

func (m *Memory) getPenaltyForDayLocked(id lease.ContractID, day lease.Day) (*lease.Penalty, error) {
	penID, ok := m.penaltyByDay[penaltyDayKey{Contract: id, Day: day.String()}]
	if !ok {
		return nil, lease.ErrPenaltyNotFound
	}
	return m.getPenaltyLocked(penID)
}

func (m *Memory) CreatePenalty(_ context.Context, p *lease.Penalty) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPenaltyLocked(p)
}

func (m *Memory) createPenaltyLocked(p *lease.Penalty) error {
	key := penaltyDayKey{Contract: p.ContractID, Day: p.MissedDate.String()}
	if _, exists := m.penaltyByDay[key]; exists {
		return lease.ErrPenaltyExists
	}
	m.penalties[p.ID] = clonePenalty(*p)
	m.penaltyByDay[key] = p.ID
	return nil
}

func (m *Memory) SavePenalty(_ context.Context, p *lease.Penalty) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.savePenaltyLocked(p)
}

func (m *Memory) savePenaltyLocked(p *lease.Penalty) error {
	if _, ok := m.penalties[p.ID]; !ok {
		return lease.ErrPenaltyNotFound
	}
	m.penalties[p.ID] = clonePenalty(*p)
	return nil
}

func (m *Memory) ListPenaltiesByMissedDate(_ context.Context, day lease.Day, typ lease.PenaltyType) ([]lease.Penalty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPenaltiesByMissedDateLocked(day, typ)
}

func (m *Memory) listPenaltiesByMissedDateLocked(day lease.Day, typ lease.PenaltyType) ([]lease.Penalty, error) {
	var out []lease.Penalty
	for _, p := range m.penalties {
		if p.MissedDate.Equal(day) && p.Type == typ {
			out = append(out, clonePenalty(p))
		}
	}
	return out, nil
}

func (m *Memory) ListPenaltiesByContract(_ context.Context, id lease.ContractID) ([]lease.Penalty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPenaltiesByContractLocked(id)
}

func (m *Memory) listPenaltiesByContractLocked(id lease.ContractID) ([]lease.Penalty, error) {
	var out []lease.Penalty
	for _, p := range m.penalties {
		if p.ContractID == id {
			out = append(out, clonePenalty(p))
		}
	}
	return out, nil
}

func (m *Memory) HasOverduePenalty(_ context.Context, id lease.ContractID, asOf time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasOverduePenaltyLocked(id, asOf)
}

func (m *Memory) hasOverduePenaltyLocked(id lease.ContractID, asOf time.Time) (bool, error) {
	for _, p := range m.penalties {
		if p.ContractID != id {
			continue
		}
		if p.Status != lease.PenaltyUnpaid && p.Status != lease.PenaltyPartiallyPaid {
			continue
		}
		if p.PaymentDueAt != nil && p.PaymentDueAt.Before(asOf) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) CreatePenaltyPayment(_ context.Context, p *lease.PenaltyPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.penaltyPayments = append(m.penaltyPayments, *p)
	return nil
}

// =============================================================================
// lease.Store - leave
// =============================================================================

func (m *Memory) GetLeaveRequest(_ context.Context, id lease.LeaveRequestID) (*lease.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLeaveLocked(id)
}

func (m *Memory) getLeaveLocked(id lease.LeaveRequestID) (*lease.LeaveRequest, error) {
	l, ok := m.leaves[id]
	if !ok {
		return nil, lease.ErrLeaveNotFound
	}
	out := l
	return &out, nil
}

func (m *Memory) CreateLeaveRequest(_ context.Context, l *lease.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves[l.ID] = *l
	return nil
}

func (m *Memory) SaveLeaveRequest(_ context.Context, l *lease.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.leaves[l.ID]; !ok {
		return lease.ErrLeaveNotFound
	}
	m.leaves[l.ID] = *l
	return nil
}

func (m *Memory) HasApprovedLeave(_ context.Context, id lease.ContractID, day lease.Day) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasApprovedLeaveLocked(id, day)
}

func (m *Memory) hasApprovedLeaveLocked(id lease.ContractID, day lease.Day) (bool, error) {
	for _, l := range m.leaves {
		if l.ContractID == id && l.Status == lease.LeaveApproved && l.Covers(day) {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// lease.Store - associations
// =============================================================================

func (m *Memory) GetAssociation(_ context.Context, id lease.AssociationID) (*lease.Association, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAssociationLocked(id)
}

func (m *Memory) getAssociationLocked(id lease.AssociationID) (*lease.Association, error) {
	a, ok := m.associations[id]
	if !ok {
		return nil, lease.ErrAssociationNotFound
	}
	out := a
	return &out, nil
}

func (m *Memory) SaveAssociation(_ context.Context, a *lease.Association) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveAssociationLocked(a)
}

func (m *Memory) saveAssociationLocked(a *lease.Association) error {
	m.associations[a.ID] = *a
	return nil
}

// =============================================================================
// TRANSACTIONS - snapshot + rollback under the store mutex
// =============================================================================

// WithTx serializes transactional bodies with the store mutex and restores
// a snapshot when fn fails, so no partial state survives.
func (m *Memory) WithTx(_ context.Context, fn func(lease.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	contracts       map[lease.ContractID]lease.Contract
	batteries       map[lease.BatteryContractID]lease.BatteryContract
	payments        []lease.PaymentRecord
	penalties       map[lease.PenaltyID]lease.Penalty
	penaltyByDay    map[penaltyDayKey]lease.PenaltyID
	penaltyPayments []lease.PenaltyPayment
	leaves          map[lease.LeaveRequestID]lease.LeaveRequest
	associations    map[lease.AssociationID]lease.Association
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		contracts:       make(map[lease.ContractID]lease.Contract, len(m.contracts)),
		batteries:       make(map[lease.BatteryContractID]lease.BatteryContract, len(m.batteries)),
		payments:        append([]lease.PaymentRecord{}, m.payments...),
		penalties:       make(map[lease.PenaltyID]lease.Penalty, len(m.penalties)),
		penaltyByDay:    make(map[penaltyDayKey]lease.PenaltyID, len(m.penaltyByDay)),
		penaltyPayments: append([]lease.PenaltyPayment{}, m.penaltyPayments...),
		leaves:          make(map[lease.LeaveRequestID]lease.LeaveRequest, len(m.leaves)),
		associations:    make(map[lease.AssociationID]lease.Association, len(m.associations)),
	}
	for k, v := range m.contracts {
		s.contracts[k] = v
	}
	for k, v := range m.batteries {
		s.batteries[k] = v
	}
	for k, v := range m.penalties {
		s.penalties[k] = clonePenalty(v)
	}
	for k, v := range m.penaltyByDay {
		s.penaltyByDay[k] = v
	}
	for k, v := range m.leaves {
		s.leaves[k] = v
	}
	for k, v := range m.associations {
		s.associations[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.contracts = s.contracts
	m.batteries = s.batteries
	m.payments = s.payments
	m.penalties = s.penalties
	m.penaltyByDay = s.penaltyByDay
	m.penaltyPayments = s.penaltyPayments
	m.leaves = s.leaves
	m.associations = s.associations
}

// clonePenalty deep-copies the pointer fields so stored rows are immune to
// later caller mutation.
func clonePenalty(p lease.Penalty) lease.Penalty {
	if p.PaymentDueAt != nil {
		due := *p.PaymentDueAt
		p.PaymentDueAt = &due
	}
	if p.CancelledAt != nil {
		at := *p.CancelledAt
		p.CancelledAt = &at
	}
	return p
}

// txView routes Store calls to the parent's locked internals. The parent
// mutex is held for the whole WithTx body.
type txView struct {
	parent *Memory
}

func (tv *txView) GetContract(_ context.Context, id lease.ContractID) (*lease.Contract, error) {
	return tv.parent.getContractLocked(id)
}

func (tv *txView) SaveContract(_ context.Context, c *lease.Contract) error {
	return tv.parent.saveContractLocked(c)
}

func (tv *txView) ListActiveContractIDs(_ context.Context) ([]lease.ContractID, error) {
	return tv.parent.listActiveContractIDsLocked()
}

func (tv *txView) GetBatteryContract(_ context.Context, id lease.BatteryContractID) (*lease.BatteryContract, error) {
	return tv.parent.getBatteryLocked(id)
}

func (tv *txView) SaveBatteryContract(_ context.Context, b *lease.BatteryContract) error {
	tv.parent.batteries[b.ID] = *b
	return nil
}

func (tv *txView) CreatePayment(_ context.Context, p *lease.PaymentRecord) error {
	return tv.parent.createPaymentLocked(p)
}

func (tv *txView) CountPaymentsInRange(_ context.Context, id lease.ContractID, from, to time.Time) (int, error) {
	return tv.parent.countPaymentsInRangeLocked(id, from, to)
}

func (tv *txView) ListPaymentsForDay(_ context.Context, id lease.ContractID, day lease.Day) ([]lease.PaymentRecord, error) {
	return tv.parent.listPaymentsForDayLocked(id, day)
}

func (tv *txView) GetPenalty(_ context.Context, id lease.PenaltyID) (*lease.Penalty, error) {
	return tv.parent.getPenaltyLocked(id)
}

func (tv *txView) GetPenaltyForDay(_ context.Context, id lease.ContractID, day lease.Day) (*lease.Penalty, error) {
	return tv.parent.getPenaltyForDayLocked(id, day)
}

func (tv *txView) CreatePenalty(_ context.Context, p *lease.Penalty) error {
	return tv.parent.createPenaltyLocked(p)
}

func (tv *txView) SavePenalty(_ context.Context, p *lease.Penalty) error {
	return tv.parent.savePenaltyLocked(p)
}

func (tv *txView) ListPenaltiesByMissedDate(_ context.Context, day lease.Day, typ lease.PenaltyType) ([]lease.Penalty, error) {
	return tv.parent.listPenaltiesByMissedDateLocked(day, typ)
}

func (tv *txView) ListPenaltiesByContract(_ context.Context, id lease.ContractID) ([]lease.Penalty, error) {
	return tv.parent.listPenaltiesByContractLocked(id)
}

func (tv *txView) HasOverduePenalty(_ context.Context, id lease.ContractID, asOf time.Time) (bool, error) {
	return tv.parent.hasOverduePenaltyLocked(id, asOf)
}

func (tv *txView) CreatePenaltyPayment(_ context.Context, p *lease.PenaltyPayment) error {
	tv.parent.penaltyPayments = append(tv.parent.penaltyPayments, *p)
	return nil
}

func (tv *txView) GetLeaveRequest(_ context.Context, id lease.LeaveRequestID) (*lease.LeaveRequest, error) {
	return tv.parent.getLeaveLocked(id)
}

func (tv *txView) CreateLeaveRequest(_ context.Context, l *lease.LeaveRequest) error {
	tv.parent.leaves[l.ID] = *l
	return nil
}

func (tv *txView) SaveLeaveRequest(_ context.Context, l *lease.LeaveRequest) error {
	if _, ok := tv.parent.leaves[l.ID]; !ok {
		return lease.ErrLeaveNotFound
	}
	tv.parent.leaves[l.ID] = *l
	return nil
}

func (tv *txView) HasApprovedLeave(_ context.Context, id lease.ContractID, day lease.Day) (bool, error) {
	return tv.parent.hasApprovedLeaveLocked(id, day)
}

func (tv *txView) GetAssociation(_ context.Context, id lease.AssociationID) (*lease.Association, error) {
	return tv.parent.getAssociationLocked(id)
}

func (tv *txView) SaveAssociation(_ context.Context, a *lease.Association) error {
	return tv.parent.saveAssociationLocked(a)
}
