/*
penalties.go - Manual penalty payments and cancellations

PURPOSE:
  The penalty ledger: records manual payments against a penalty (partial
  payments allowed, never over the remaining amount) and cancels unpaid
  light penalties with a mandatory justification. Both operations run in
  one Store transaction and finish by reconciling the swap-lock flag.

RULES:
  PayPenalty    - rejected when status is paid or cancelled; amount must be
                  positive and at most RemainingAmount. Status moves to
                  partially_paid, then paid once remaining hits zero.
  CancelPenalty - only unpaid penalties can be cancelled, and only light
                  ones (an escalated penalty is past forgiveness). Cancelling
                  zeroes the remaining amount, clears PaymentDueAt and
                  records justification, actor and instant.
*/
package lease

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PenaltyService mutates penalties on behalf of operators.
type PenaltyService struct {
	Store  TxStore
	Config Config
	Log    *logrus.Logger

	Now func() time.Time
}

func NewPenaltyService(store TxStore, cfg Config, log *logrus.Logger) *PenaltyService {
	return &PenaltyService{Store: store, Config: cfg, Log: log, Now: time.Now}
}

// PayPenaltyInput carries one manual penalty payment.
type PayPenaltyInput struct {
	PenaltyID      PenaltyID
	Amount         decimal.Decimal
	Method         string
	TransactionRef string
	Actor          string
}

// PayPenalty records a payment and updates the penalty's status.
func (s *PenaltyService) PayPenalty(ctx context.Context, in PayPenaltyInput) (*Penalty, error) {
	now := s.Now()

	var updated *Penalty
	err := s.Store.WithTx(ctx, func(tx Store) error {
		pen, err := tx.GetPenalty(ctx, in.PenaltyID)
		if err != nil {
			return err
		}

		if pen.Status == PenaltyPaid || pen.Status == PenaltyCancelled {
			return &TransitionError{Entity: "penalty", From: string(pen.Status), To: string(PenaltyPaid)}
		}
		if !in.Amount.IsPositive() {
			return &InvalidAmountError{Requested: in.Amount, Remaining: pen.RemainingAmount, Reason: "non_positive"}
		}
		if in.Amount.GreaterThan(pen.RemainingAmount) {
			return &InvalidAmountError{Requested: in.Amount, Remaining: pen.RemainingAmount, Reason: "exceeds_remaining"}
		}

		if err := tx.CreatePenaltyPayment(ctx, &PenaltyPayment{
			ID:             PenaltyPaymentID(NewID()),
			Reference:      NewPenaltyPaymentReference(now),
			PenaltyID:      pen.ID,
			Amount:         in.Amount,
			Method:         in.Method,
			TransactionRef: in.TransactionRef,
			PaidBy:         in.Actor,
			CreatedAt:      now,
		}); err != nil {
			return err
		}

		pen.PaidAmount = pen.PaidAmount.Add(in.Amount)
		pen.RemainingAmount = decimal.Max(pen.Amount.Sub(pen.PaidAmount), decimal.Zero)
		if pen.RemainingAmount.IsZero() {
			pen.Status = PenaltyPaid
		} else {
			pen.Status = PenaltyPartiallyPaid
		}
		pen.UpdatedAt = now
		if err := tx.SavePenalty(ctx, pen); err != nil {
			return err
		}

		contract, err := tx.GetContract(ctx, pen.ContractID)
		if err != nil {
			return err
		}
		if err := ReconcileSwapLock(ctx, tx, contract, now); err != nil {
			return err
		}

		updated = pen
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{
			"penalty": in.PenaltyID,
			"amount":  in.Amount.String(),
			"status":  updated.Status,
			"actor":   in.Actor,
		}).Info("penalty payment recorded")
	}
	return updated, nil
}

// CancelPenalty voids an unpaid light penalty.
func (s *PenaltyService) CancelPenalty(ctx context.Context, id PenaltyID, justification, actor string) (*Penalty, error) {
	if strings.TrimSpace(justification) == "" {
		return nil, ErrEmptyJustification
	}
	now := s.Now()

	var updated *Penalty
	err := s.Store.WithTx(ctx, func(tx Store) error {
		pen, err := tx.GetPenalty(ctx, id)
		if err != nil {
			return err
		}

		if pen.Status != PenaltyUnpaid {
			return &TransitionError{Entity: "penalty", From: string(pen.Status), To: string(PenaltyCancelled)}
		}
		if pen.Type != PenaltyLight {
			return &TransitionError{Entity: "penalty", From: string(pen.Type), To: string(PenaltyCancelled)}
		}

		pen.Status = PenaltyCancelled
		pen.PaidAmount = decimal.Zero
		pen.RemainingAmount = decimal.Zero
		pen.PaymentDueAt = nil
		pen.CancelJustification = strings.TrimSpace(justification)
		pen.CancelledBy = actor
		cancelledAt := now
		pen.CancelledAt = &cancelledAt
		pen.UpdatedAt = now
		if err := tx.SavePenalty(ctx, pen); err != nil {
			return err
		}

		contract, err := tx.GetContract(ctx, pen.ContractID)
		if err != nil {
			return err
		}
		if err := ReconcileSwapLock(ctx, tx, contract, now); err != nil {
			return err
		}

		updated = pen
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{
			"penalty": id,
			"actor":   actor,
		}).Info("penalty cancelled")
	}
	return updated, nil
}
