/*
leave.go - Leave exemption checks and request lifecycle

PURPOSE:
  Approved leave exempts a contract from its daily obligation and shifts
  the due-date window forward by the leave's day count. This file owns the
  exemption check the scheduler consumes, plus the request lifecycle:

    pending ──approve──▶ approved ──cancel/reject──▶ window shifted back
       │
       ├─reject──▶ rejected   (terminal toward approved)
       └─cancel──▶ cancelled  (terminal toward approved)

TRANSITION GUARDS:
  - a cancelled or rejected request can never become approved
  - a request cannot flip directly between cancelled and rejected
  - completing is only meaningful for approved requests

WINDOW SHIFTS:
  Approval applies AddDaysSkipSunday(window, DayCount); reverting an
  approved request applies the exact mirror, so approve-then-cancel leaves
  the contract window where it started.
*/
package lease

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// IsOnLeave reports whether an approved leave request of the contract
// covers the given day.
func IsOnLeave(ctx context.Context, store Store, id ContractID, day Day) (bool, error) {
	return store.HasApprovedLeave(ctx, id, day)
}

// LeaveService manages leave requests and their effect on the contract
// window and leave-day counters.
type LeaveService struct {
	Store TxStore
	Log   *logrus.Logger

	Now func() time.Time
}

func NewLeaveService(store TxStore, log *logrus.Logger) *LeaveService {
	return &LeaveService{Store: store, Log: log, Now: time.Now}
}

// CreateLeaveInput describes a new request. EndDate is derived:
// StartDate + (DayCount - 1) calendar days, inclusive.
type CreateLeaveInput struct {
	ContractID ContractID
	StartDate  Day
	DayCount   int
	Motive     string
}

// CreateRequest files a pending request and consumes the contract's leave
// day counters.
func (s *LeaveService) CreateRequest(ctx context.Context, in CreateLeaveInput) (*LeaveRequest, error) {
	if in.DayCount <= 0 {
		return nil, ErrInsufficientLeaveDays
	}
	now := s.Now()

	var req *LeaveRequest
	err := s.Store.WithTx(ctx, func(tx Store) error {
		contract, err := tx.GetContract(ctx, in.ContractID)
		if err != nil {
			return err
		}
		if in.DayCount > contract.LeaveDaysRemaining {
			return ErrInsufficientLeaveDays
		}

		req = &LeaveRequest{
			ID:         LeaveRequestID(NewID()),
			ContractID: contract.ID,
			StartDate:  in.StartDate,
			EndDate:    in.StartDate.AddDays(in.DayCount - 1),
			DayCount:   in.DayCount,
			Status:     LeavePending,
			Motive:     in.Motive,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.CreateLeaveRequest(ctx, req); err != nil {
			return err
		}

		contract.LeaveDaysUsed += in.DayCount
		contract.RecomputeBalance()
		contract.UpdatedAt = now
		return tx.SaveContract(ctx, contract)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Approve moves a pending request to approved and shifts the contract
// window forward by the request's day count.
func (s *LeaveService) Approve(ctx context.Context, id LeaveRequestID) (*LeaveRequest, error) {
	now := s.Now()

	var req *LeaveRequest
	err := s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		req, err = tx.GetLeaveRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != LeavePending {
			return &TransitionError{Entity: "leave", From: string(req.Status), To: string(LeaveApproved)}
		}

		contract, err := tx.GetContract(ctx, req.ContractID)
		if err != nil {
			return err
		}
		ApplyLeaveShift(contract, req.DayCount)
		contract.UpdatedAt = now
		if err := tx.SaveContract(ctx, contract); err != nil {
			return err
		}

		req.Status = LeaveApproved
		req.UpdatedAt = now
		return tx.SaveLeaveRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{"leave": id, "days": req.DayCount}).Info("leave approved, contract window shifted")
	}
	return req, nil
}

// Reject declines a request. Rejecting an approved request shifts the
// contract window back and restores the leave counters.
func (s *LeaveService) Reject(ctx context.Context, id LeaveRequestID) (*LeaveRequest, error) {
	return s.revoke(ctx, id, LeaveRejected)
}

// Cancel withdraws a request. Cancelling an approved request shifts the
// contract window back and restores the leave counters.
func (s *LeaveService) Cancel(ctx context.Context, id LeaveRequestID) (*LeaveRequest, error) {
	return s.revoke(ctx, id, LeaveCancelled)
}

// Complete marks an approved request as served.
func (s *LeaveService) Complete(ctx context.Context, id LeaveRequestID) (*LeaveRequest, error) {
	now := s.Now()

	var req *LeaveRequest
	err := s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		req, err = tx.GetLeaveRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != LeaveApproved {
			return &TransitionError{Entity: "leave", From: string(req.Status), To: string(LeaveCompleted)}
		}
		req.Status = LeaveCompleted
		req.UpdatedAt = now
		return tx.SaveLeaveRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *LeaveService) revoke(ctx context.Context, id LeaveRequestID, to LeaveStatus) (*LeaveRequest, error) {
	now := s.Now()

	var req *LeaveRequest
	err := s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		req, err = tx.GetLeaveRequest(ctx, id)
		if err != nil {
			return err
		}

		switch req.Status {
		case LeavePending, LeaveApproved:
			// allowed
		default:
			// Cancelled and rejected cannot flip into each other, and
			// completed requests are history.
			return &TransitionError{Entity: "leave", From: string(req.Status), To: string(to)}
		}

		contract, err := tx.GetContract(ctx, req.ContractID)
		if err != nil {
			return err
		}

		if req.Status == LeaveApproved {
			RevertLeaveShift(contract, req.DayCount)
		}
		contract.LeaveDaysUsed -= req.DayCount
		if contract.LeaveDaysUsed < 0 {
			contract.LeaveDaysUsed = 0
		}
		contract.RecomputeBalance()
		contract.UpdatedAt = now
		if err := tx.SaveContract(ctx, contract); err != nil {
			return err
		}

		req.Status = to
		req.UpdatedAt = now
		return tx.SaveLeaveRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}
