/*
scheduler.go - Two-window penalty scheduler

PURPOSE:
  The batch process that creates and escalates penalties. It runs in one of
  two windows:

  Noon catch-up    - for every active contract, walk every day from the
                     contract's DateConcerned up to today and create a light
                     penalty for each day whose obligation was missed once
                     its grace instant has passed. A single run backfills an
                     arbitrary backlog.
  Afternoon        - escalate yesterday's still-unpaid light penalties to
                     severe, unless a late payment landed before the second
                     cutoff or the contract was on leave.

WINDOW SELECTION:
  The current instant and the window are explicit parameters; the engine
  never reads the system clock. WindowForTime implements the operational
  rule (local hour < 14 means noon) for callers that want it.

  The grace instant is literally 04:00 local on the following day, not
  12:00, despite the window's name. The reference system behaves this way
  and operators depend on it; the hour is configurable but defaults to 4.

IDEMPOTENCE:
  Penalty creation is get-or-create on (contract, missed day); the store's
  unique key backstops races between overlapping runs. Escalating an
  already-severe or already-settled penalty is a no-op. Re-running either
  window any number of times yields the same rows.

FAILURE ISOLATION:
  Each contract (noon) and each penalty (afternoon) is processed in its own
  Store transaction. One failure is counted and logged; the run continues
  with the next unit.
*/
package lease

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Window names the two scheduler passes.
type Window string

const (
	WindowNoon      Window = "noon"
	WindowAfternoon Window = "afternoon"
)

// WindowForTime applies the operational wall-clock rule: before 14:00 local
// the noon catch-up runs, after it the afternoon escalation.
func WindowForTime(at time.Time, loc *time.Location) Window {
	if at.In(loc).Hour() < 14 {
		return WindowNoon
	}
	return WindowAfternoon
}

// RunReport aggregates one scheduler pass for observability.
type RunReport struct {
	Window       Window `json:"window"`
	Created      int    `json:"created"`
	Escalated    int    `json:"escalated"`
	Unchanged    int    `json:"unchanged"`
	PaidSkipped  int    `json:"paid_skipped"`
	LeaveSkipped int    `json:"leave_skipped"`
	Failed       int    `json:"failed"`
}

// PenaltyScheduler creates and escalates penalties.
type PenaltyScheduler struct {
	Store  TxStore
	Config Config
	Log    *logrus.Logger
}

func NewPenaltyScheduler(store TxStore, cfg Config, log *logrus.Logger) *PenaltyScheduler {
	return &PenaltyScheduler{Store: store, Config: cfg, Log: log}
}

// Run executes one pass of the given window as of the given instant.
// Safe under concurrent and overlapping invocation.
func (s *PenaltyScheduler) Run(ctx context.Context, window Window, now time.Time) (RunReport, error) {
	report := RunReport{Window: window}

	var err error
	switch window {
	case WindowNoon:
		err = s.runNoon(ctx, now, &report)
	case WindowAfternoon:
		err = s.runAfternoon(ctx, now, &report)
	default:
		// Fall back to the wall-clock rule for callers passing "".
		return s.Run(ctx, WindowForTime(now, s.Config.Location), now)
	}
	if err != nil {
		return report, err
	}

	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{
			"window":        report.Window,
			"created":       report.Created,
			"escalated":     report.Escalated,
			"unchanged":     report.Unchanged,
			"paid_skipped":  report.PaidSkipped,
			"leave_skipped": report.LeaveSkipped,
			"failed":        report.Failed,
		}).Info("penalty scheduler pass completed")
	}
	return report, nil
}

// =============================================================================
// NOON CATCH-UP
// =============================================================================

func (s *PenaltyScheduler) runNoon(ctx context.Context, now time.Time, report *RunReport) error {
	ids, err := s.Store.ListActiveContractIDs(ctx)
	if err != nil {
		return err
	}

	today := DayOf(now, s.Config.Location)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.Store.WithTx(ctx, func(tx Store) error {
			return s.catchUpContract(ctx, tx, id, today, now, report)
		})
		if err != nil {
			report.Failed++
			if s.Log != nil {
				s.Log.WithError(err).WithField("contract", id).Error("noon catch-up failed for contract")
			}
		}
	}
	return nil
}

// catchUpContract walks the contract's missed days from DateConcerned to
// today. The loop is bounded by today - DateConcerned.
func (s *PenaltyScheduler) catchUpContract(ctx context.Context, tx Store, id ContractID, today Day, now time.Time, report *RunReport) error {
	contract, err := tx.GetContract(ctx, id)
	if err != nil {
		return err
	}
	if contract.Status != ContractActive {
		return nil
	}

	day := contract.DateConcerned
	if day.IsZero() {
		day = today
	}

	for day.BeforeOrEqual(today) {
		deadline := s.Config.GraceDeadline(day)
		if now.Before(deadline) {
			// Too early to judge this day.
			break
		}

		onLeave, err := tx.HasApprovedLeave(ctx, contract.ID, day)
		if err != nil {
			return err
		}
		if onLeave {
			report.LeaveSkipped++
			day = day.AddDays(1)
			continue
		}

		paid, err := s.hasCompliantPayment(ctx, tx, contract, day)
		if err != nil {
			return err
		}
		if paid {
			report.PaidSkipped++
			day = day.AddDays(1)
			continue
		}

		created, err := s.getOrCreateLightPenalty(ctx, tx, contract, day, now)
		if err != nil {
			return err
		}
		if created {
			report.Created++
		} else {
			report.Unchanged++
		}
		day = day.AddDays(1)
	}
	return nil
}

func (s *PenaltyScheduler) getOrCreateLightPenalty(ctx context.Context, tx Store, contract *Contract, day Day, now time.Time) (bool, error) {
	if _, err := tx.GetPenaltyForDay(ctx, contract.ID, day); err == nil {
		return false, nil
	} else if err != ErrPenaltyNotFound {
		return false, err
	}

	dueAt := now.Add(s.Config.PenaltyGracePeriod)
	pen := &Penalty{
		ID:                PenaltyID(NewID()),
		ContractID:        contract.ID,
		Type:              PenaltyLight,
		Status:            PenaltyUnpaid,
		Amount:            s.Config.LightAmount,
		PaidAmount:        decimal.Zero,
		RemainingAmount:   s.Config.LightAmount,
		MissedDate:        day,
		ReferenceDeadline: contract.DateLimit,
		PaymentDueAt:      &dueAt,
		Motive:            "payment not received before the grace deadline",
		Description:       "automatic light penalty for " + day.String(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := tx.CreatePenalty(ctx, pen); err != nil {
		if err == ErrPenaltyExists {
			// Lost the race against an overlapping run.
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// =============================================================================
// AFTERNOON ESCALATION
// =============================================================================

func (s *PenaltyScheduler) runAfternoon(ctx context.Context, now time.Time, report *RunReport) error {
	target := DayOf(now, s.Config.Location).AddDays(-1)

	pens, err := s.Store.ListPenaltiesByMissedDate(ctx, target, PenaltyLight)
	if err != nil {
		return err
	}

	for _, pen := range pens {
		if err := ctx.Err(); err != nil {
			return err
		}
		penID := pen.ID
		err := s.Store.WithTx(ctx, func(tx Store) error {
			return s.escalatePenalty(ctx, tx, penID, target, now, report)
		})
		if err != nil {
			report.Failed++
			if s.Log != nil {
				s.Log.WithError(err).WithField("penalty", penID).Error("escalation failed for penalty")
			}
		}
	}
	return nil
}

func (s *PenaltyScheduler) escalatePenalty(ctx context.Context, tx Store, id PenaltyID, day Day, now time.Time, report *RunReport) error {
	pen, err := tx.GetPenalty(ctx, id)
	if err != nil {
		return err
	}
	if pen.Type != PenaltyLight || pen.Status == PenaltyCancelled {
		// Already escalated by an overlapping run, or voided.
		report.Unchanged++
		return nil
	}

	contract, err := tx.GetContract(ctx, pen.ContractID)
	if err != nil {
		return err
	}

	onLeave, err := tx.HasApprovedLeave(ctx, contract.ID, day)
	if err != nil {
		return err
	}
	if onLeave {
		report.LeaveSkipped++
		return nil
	}

	// Paid on time (at or before the grace instant): nothing to escalate.
	paid, err := s.hasCompliantPayment(ctx, tx, contract, day)
	if err != nil {
		return err
	}
	if paid {
		report.PaidSkipped++
		return nil
	}

	// Paid late but before the second cutoff: forgiven at the light tier.
	late, err := s.hasLatePayment(ctx, tx, contract, day)
	if err != nil {
		return err
	}
	if late {
		report.Unchanged++
		return nil
	}

	// Never upgrade a settled penalty.
	if pen.Settled() {
		report.Unchanged++
		return nil
	}

	// One-shot irreversible upgrade; there is no tier beyond severe.
	pen.Type = PenaltySevere
	pen.Amount = s.Config.SevereAmount
	pen.RemainingAmount = decimal.Max(pen.Amount.Sub(pen.PaidAmount), decimal.Zero)
	pen.Motive = "lease payment not received before the afternoon cutoff"
	note := "automatically escalated to severe on " + now.Format("2006-01-02 15:04")
	if pen.Description != "" {
		pen.Description += " | " + note
	} else {
		pen.Description = note
	}
	pen.UpdatedAt = now
	if err := tx.SavePenalty(ctx, pen); err != nil {
		return err
	}

	report.Escalated++
	return nil
}

// =============================================================================
// COMPLIANCE CHECKS
// =============================================================================

// hasCompliantPayment reports whether a successful payment covering day was
// created at or before the grace instant for at least the contract's
// per-payment amount.
func (s *PenaltyScheduler) hasCompliantPayment(ctx context.Context, tx Store, contract *Contract, day Day) (bool, error) {
	payments, err := tx.ListPaymentsForDay(ctx, contract.ID, day)
	if err != nil {
		return false, err
	}
	deadline := s.Config.GraceDeadline(day)
	for _, p := range payments {
		if p.Status == PaymentPaid &&
			!p.CreatedAt.After(deadline) &&
			p.AmountTotal.GreaterThanOrEqual(contract.PerPaymentAmount) {
			return true, nil
		}
	}
	return false, nil
}

// hasLatePayment reports whether a successful payment for day landed
// strictly after the grace instant but at or before the second cutoff.
// Amount sufficiency is not checked at this tier.
func (s *PenaltyScheduler) hasLatePayment(ctx context.Context, tx Store, contract *Contract, day Day) (bool, error) {
	payments, err := tx.ListPaymentsForDay(ctx, contract.ID, day)
	if err != nil {
		return false, err
	}
	deadline := s.Config.GraceDeadline(day)
	cutoff := s.Config.LateCutoff(day)
	for _, p := range payments {
		if p.Status == PaymentPaid &&
			p.CreatedAt.After(deadline) &&
			!p.CreatedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}
