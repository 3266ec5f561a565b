/*
payments.go - Lease payment recorder

PURPOSE:
  Records a payment against a contract's ledger: snapshots the current
  due-date window, updates balances, advances the window one business day,
  mirrors the battery portion into the battery sub-contract, and reconciles
  the swap-lock flag. The whole operation is one Store transaction; a
  rejected payment leaves no state behind.

DAILY CAP:
  At most Config.DailyPaymentCap payments per contract per local calendar
  day. The count is taken over records created within [00:00, 24:00) of the
  current local day.

SUFFICIENCY:
  The recorder does not verify that the amount covers the per-period amount;
  the window advances unconditionally on success. Compliance against the
  per-payment amount is judged later by the penalty scheduler.
*/
package lease

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// RecordPaymentInput carries one payment to record. Amounts default to zero
// when the driver pays only one of the two legs.
type RecordPaymentInput struct {
	ContractID     ContractID
	AmountMoto     decimal.Decimal
	AmountBattery  decimal.Decimal
	Method         string
	TransactionRef string
	RecordedBy     string
}

// PaymentService records lease payments.
type PaymentService struct {
	Store  TxStore
	Config Config
	Log    *logrus.Logger

	// Now is injected so tests control the clock. Defaults to time.Now.
	Now func() time.Time
}

func NewPaymentService(store TxStore, cfg Config, log *logrus.Logger) *PaymentService {
	return &PaymentService{Store: store, Config: cfg, Log: log, Now: time.Now}
}

// RecordPayment applies in one transaction. Fails with ErrContractNotFound
// when the contract is missing or not active, ErrDailyCapExceeded when the
// cap is hit; in both cases nothing is written.
func (s *PaymentService) RecordPayment(ctx context.Context, in RecordPaymentInput) (*PaymentRecord, error) {
	now := s.Now()

	var record *PaymentRecord
	err := s.Store.WithTx(ctx, func(tx Store) error {
		contract, err := tx.GetContract(ctx, in.ContractID)
		if err != nil {
			return err
		}
		if contract.Status != ContractActive {
			return ErrContractNotFound
		}

		// Daily cap over the current local calendar day.
		dayStart := DayOf(now, s.Config.Location).At(0, s.Config.Location)
		count, err := tx.CountPaymentsInRange(ctx, contract.ID, dayStart, dayStart.Add(24*time.Hour))
		if err != nil {
			return err
		}
		if count >= s.Config.DailyPaymentCap {
			return ErrDailyCapExceeded
		}

		total := in.AmountMoto.Add(in.AmountBattery)
		status := PaymentPaid
		if !total.IsPositive() {
			status = PaymentUnpaid
		}

		record = &PaymentRecord{
			ID:             PaymentID(NewID()),
			Reference:      NewPaymentReference(now),
			ContractID:     contract.ID,
			AmountMoto:     in.AmountMoto,
			AmountBattery:  in.AmountBattery,
			AmountTotal:    total,
			DateConcerned:  contract.DateConcerned,
			DateLimit:      contract.DateLimit,
			Method:         in.Method,
			TransactionRef: in.TransactionRef,
			Status:         status,
			RecordedBy:     in.RecordedBy,
			CreatedAt:      now,
		}
		if err := tx.CreatePayment(ctx, record); err != nil {
			return err
		}

		// The contract balance absorbs the full payment; the battery leg is
		// additionally mirrored to the battery sub-contract below.
		AdvanceWindow(contract, total)
		contract.UpdatedAt = now
		if err := tx.SaveContract(ctx, contract); err != nil {
			return err
		}

		if contract.BatteryContractID != nil {
			batt, err := tx.GetBatteryContract(ctx, *contract.BatteryContractID)
			if err != nil {
				return err
			}
			batt.PaidAmount = batt.PaidAmount.Add(in.AmountBattery)
			batt.RecomputeBalance()
			batt.UpdatedAt = now
			if err := tx.SaveBatteryContract(ctx, batt); err != nil {
				return err
			}
		}

		return ReconcileSwapLock(ctx, tx, contract, now)
	})
	if err != nil {
		return nil, err
	}

	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{
			"contract":  in.ContractID,
			"reference": record.Reference,
			"amount":    record.AmountTotal.String(),
			"covers":    record.DateConcerned.String(),
		}).Info("lease payment recorded")
	}
	return record, nil
}
