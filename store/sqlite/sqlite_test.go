/*
sqlite_test.go - SQLite store semantics the engine relies on

Runs against :memory: databases. The assertions mirror the in-memory
store's tests where behavior must match: round trips, the penalty
unique key, overdue detection, and transactional rollback.
*/
package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lease-engine/lease"
	"github.com/warp/lease-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedSQLContract(t *testing.T, st *sqlite.Store) lease.Contract {
	t.Helper()
	c := lease.Contract{
		ID:               "c1",
		Reference:        "CC-202401-SQL01",
		TotalAmount:      decimal.NewFromInt(450000),
		PerPaymentAmount: decimal.NewFromInt(3500),
		DateConcerned:    lease.NewDay(2024, time.January, 5),
		DateLimit:        lease.NewDay(2024, time.January, 6),
		Status:           lease.ContractActive,
		LeaveDaysTotal:   12,
		CreatedAt:        time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC),
		UpdatedAt:        time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC),
	}
	c.RecomputeBalance()
	require.NoError(t, st.SaveContract(context.Background(), &c))
	return c
}

func TestSQLite_Contract_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	c := seedSQLContract(t, st)

	got, err := st.GetContract(context.Background(), c.ID)
	require.NoError(t, err)

	assert.Equal(t, c.Reference, got.Reference)
	assert.True(t, got.TotalAmount.Equal(c.TotalAmount))
	assert.True(t, got.RemainingAmount.Equal(c.TotalAmount))
	assert.True(t, got.DateConcerned.Equal(c.DateConcerned))
	assert.Equal(t, lease.ContractActive, got.Status)
	assert.Equal(t, 12, got.LeaveDaysRemaining)
	assert.True(t, got.CreatedAt.Equal(c.CreatedAt))

	_, err = st.GetContract(context.Background(), "missing")
	assert.ErrorIs(t, err, lease.ErrContractNotFound)
}

func TestSQLite_Contract_SaveIsUpsert(t *testing.T) {
	st := newTestStore(t)
	c := seedSQLContract(t, st)

	c.PaidAmount = decimal.NewFromInt(7000)
	c.RecomputeBalance()
	require.NoError(t, st.SaveContract(context.Background(), &c))

	got, err := st.GetContract(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.Equal(decimal.NewFromInt(7000)))
	assert.True(t, got.RemainingAmount.Equal(decimal.NewFromInt(443000)))
}

func TestSQLite_ListActiveContractIDs_FiltersStatus(t *testing.T) {
	st := newTestStore(t)
	c := seedSQLContract(t, st)

	other := c
	other.ID = "c2"
	other.Reference = "CC-202401-SQL02"
	other.Status = lease.ContractSuspended
	require.NoError(t, st.SaveContract(context.Background(), &other))

	ids, err := st.ListActiveContractIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []lease.ContractID{"c1"}, ids)
}

func TestSQLite_Penalty_UniquePerMissedDay(t *testing.T) {
	st := newTestStore(t)
	c := seedSQLContract(t, st)
	day := lease.NewDay(2024, time.January, 5)

	due := time.Date(2024, time.January, 6, 5, 0, 0, 0, time.UTC).Add(72 * time.Hour)
	pen := lease.Penalty{
		ID:              "p1",
		ContractID:      c.ID,
		Type:            lease.PenaltyLight,
		Status:          lease.PenaltyUnpaid,
		Amount:          decimal.NewFromInt(2000),
		RemainingAmount: decimal.NewFromInt(2000),
		MissedDate:      day,
		PaymentDueAt:    &due,
		Motive:          "payment not received before the grace deadline",
	}
	require.NoError(t, st.CreatePenalty(context.Background(), &pen))

	dup := pen
	dup.ID = "p2"
	err := st.CreatePenalty(context.Background(), &dup)
	assert.ErrorIs(t, err, lease.ErrPenaltyExists)

	got, err := st.GetPenaltyForDay(context.Background(), c.ID, day)
	require.NoError(t, err)
	assert.Equal(t, lease.PenaltyID("p1"), got.ID)
	require.NotNil(t, got.PaymentDueAt)
	assert.True(t, got.PaymentDueAt.Equal(due))
}

func TestSQLite_Penalty_SaveUpdatesInPlace(t *testing.T) {
	st := newTestStore(t)
	c := seedSQLContract(t, st)

	pen := lease.Penalty{
		ID:              "p1",
		ContractID:      c.ID,
		Type:            lease.PenaltyLight,
		Status:          lease.PenaltyUnpaid,
		Amount:          decimal.NewFromInt(2000),
		RemainingAmount: decimal.NewFromInt(2000),
		MissedDate:      lease.NewDay(2024, time.January, 5),
	}
	require.NoError(t, st.CreatePenalty(context.Background(), &pen))

	pen.Type = lease.PenaltySevere
	pen.Amount = decimal.NewFromInt(5000)
	pen.RemainingAmount = decimal.NewFromInt(5000)
	require.NoError(t, st.SavePenalty(context.Background(), &pen))

	pens, err := st.ListPenaltiesByContract(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, pens, 1)
	assert.Equal(t, lease.PenaltySevere, pens[0].Type)

	unknown := pen
	unknown.ID = "ghost"
	assert.ErrorIs(t, st.SavePenalty(context.Background(), &unknown), lease.ErrPenaltyNotFound)
}

func TestSQLite_ListPenaltiesByMissedDate_FiltersDayAndType(t *testing.T) {
	st := newTestStore(t)
	c := seedSQLContract(t, st)
	day := lease.NewDay(2024, time.January, 5)

	require.NoError(t, st.CreatePenalty(context.Background(), &lease.Penalty{
		ID: "p1", ContractID: c.ID, Type: lease.PenaltyLight,
		Status: lease.PenaltyUnpaid, MissedDate: day,
	}))
	require.NoError(t, st.CreatePenalty(context.Background(), &lease.Penalty{
		ID: "p2", ContractID: c.ID, Type: lease.PenaltySevere,
		Status: lease.PenaltyUnpaid, MissedDate: day.AddDays(-1),
	}))

	light, err := st.ListPenaltiesByMissedDate(context.Background(), day, lease.PenaltyLight)
	require.NoError(t, err)
	require.Len(t, light, 1)
	assert.Equal(t, lease.PenaltyID("p1"), light[0].ID)

	none, err := st.ListPenaltiesByMissedDate(context.Background(), day, lease.PenaltySevere)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_HasOverduePenalty(t *testing.T) {
	st := newTestStore(t)
	c := seedSQLContract(t, st)
	due := time.Date(2024, time.January, 9, 5, 0, 0, 0, time.UTC)

	require.NoError(t, st.CreatePenalty(context.Background(), &lease.Penalty{
		ID: "p1", ContractID: c.ID, Type: lease.PenaltyLight,
		Status:          lease.PenaltyPartiallyPaid,
		Amount:          decimal.NewFromInt(2000),
		PaidAmount:      decimal.NewFromInt(500),
		RemainingAmount: decimal.NewFromInt(1500),
		MissedDate:      lease.NewDay(2024, time.January, 5),
		PaymentDueAt:    &due,
	}))

	before, err := st.HasOverduePenalty(context.Background(), c.ID, due.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, before)

	after, err := st.HasOverduePenalty(context.Background(), c.ID, due.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, after)
}

func TestSQLite_Payments_CountAndListForDay(t *testing.T) {
	st := newTestStore(t)
	c := seedSQLContract(t, st)
	day := lease.NewDay(2024, time.January, 5)

	for i, hour := range []int{9, 17} {
		require.NoError(t, st.CreatePayment(context.Background(), &lease.PaymentRecord{
			ID:            lease.PaymentID(string(rune('a' + i))),
			Reference:     fmt.Sprintf("PL-test-%d", i),
			ContractID:    c.ID,
			AmountMoto:    decimal.NewFromInt(3500),
			AmountTotal:   decimal.NewFromInt(3500),
			DateConcerned: day,
			DateLimit:     lease.NextWorkingDay(day),
			Status:        lease.PaymentPaid,
			CreatedAt:     day.At(hour, time.UTC),
		}))
	}

	count, err := st.CountPaymentsInRange(context.Background(), c.ID,
		day.At(0, time.UTC), day.AddDays(1).At(0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Range excludes the upper bound.
	count, err = st.CountPaymentsInRange(context.Background(), c.ID,
		day.At(0, time.UTC), day.At(17, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	recs, err := st.ListPaymentsForDay(context.Background(), c.ID, day)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].CreatedAt.Equal(day.At(9, time.UTC)))
}

func TestSQLite_Payments_SubSecondInstantsSurviveRoundTrip(t *testing.T) {
	// GIVEN: a payment created half a second after the 04:00 grace instant
	// WHEN: it is stored and read back
	// THEN: the fraction survives, so the record still sorts after the
	//       deadline in both Go comparisons and TEXT range queries

	st := newTestStore(t)
	c := seedSQLContract(t, st)
	day := lease.NewDay(2024, time.January, 5)
	deadline := day.AddDays(1).At(4, time.UTC)
	created := deadline.Add(500 * time.Millisecond)

	require.NoError(t, st.CreatePayment(context.Background(), &lease.PaymentRecord{
		ID:            "p-late",
		Reference:     "PL-test",
		ContractID:    c.ID,
		AmountMoto:    decimal.NewFromInt(3500),
		AmountTotal:   decimal.NewFromInt(3500),
		DateConcerned: day,
		DateLimit:     lease.NextWorkingDay(day),
		Status:        lease.PaymentPaid,
		CreatedAt:     created,
	}))

	recs, err := st.ListPaymentsForDay(context.Background(), c.ID, day)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].CreatedAt.Equal(created), "got %s", recs[0].CreatedAt)
	assert.True(t, recs[0].CreatedAt.After(deadline))

	// The TEXT encoding keeps whole-second and fractional instants in
	// chronological order, so a range ending at the deadline excludes it.
	count, err := st.CountPaymentsInRange(context.Background(), c.ID,
		day.At(0, time.UTC), deadline)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = st.CountPaymentsInRange(context.Background(), c.ID,
		day.At(0, time.UTC), deadline.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLite_LeaveRequest_RoundTripAndCoverage(t *testing.T) {
	st := newTestStore(t)
	c := seedSQLContract(t, st)

	l := lease.LeaveRequest{
		ID:         "l1",
		ContractID: c.ID,
		StartDate:  lease.NewDay(2024, time.January, 10),
		EndDate:    lease.NewDay(2024, time.January, 12),
		DayCount:   3,
		Status:     lease.LeavePending,
		Motive:     "family event",
	}
	require.NoError(t, st.CreateLeaveRequest(context.Background(), &l))

	// Pending leave does not cover.
	covered, err := st.HasApprovedLeave(context.Background(), c.ID, lease.NewDay(2024, time.January, 11))
	require.NoError(t, err)
	assert.False(t, covered)

	l.Status = lease.LeaveApproved
	require.NoError(t, st.SaveLeaveRequest(context.Background(), &l))

	covered, err = st.HasApprovedLeave(context.Background(), c.ID, lease.NewDay(2024, time.January, 11))
	require.NoError(t, err)
	assert.True(t, covered)

	outside, err := st.HasApprovedLeave(context.Background(), c.ID, lease.NewDay(2024, time.January, 13))
	require.NoError(t, err)
	assert.False(t, outside)
}

func TestSQLite_Association_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	c := seedSQLContract(t, st)

	a := lease.Association{
		ID:         "a1",
		ContractID: c.ID,
		DriverID:   "d1",
		VehicleID:  "v1",
		SwapLocked: true,
		UpdatedAt:  time.Date(2024, time.January, 6, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.SaveAssociation(context.Background(), &a))

	got, err := st.GetAssociation(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, got.SwapLocked)
	assert.Equal(t, "v1", got.VehicleID)
}

func TestSQLite_WithTx_RollsBackOnError(t *testing.T) {
	st := newTestStore(t)
	c := seedSQLContract(t, st)
	boom := errors.New("boom")

	err := st.WithTx(context.Background(), func(tx lease.Store) error {
		got, err := tx.GetContract(context.Background(), c.ID)
		if err != nil {
			return err
		}
		got.PaidAmount = decimal.NewFromInt(999)
		got.RecomputeBalance()
		if err := tx.SaveContract(context.Background(), got); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := st.GetContract(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.IsZero())
}

func TestSQLite_WithTx_Commits(t *testing.T) {
	st := newTestStore(t)
	c := seedSQLContract(t, st)

	err := st.WithTx(context.Background(), func(tx lease.Store) error {
		got, err := tx.GetContract(context.Background(), c.ID)
		if err != nil {
			return err
		}
		got.PaidAmount = decimal.NewFromInt(3500)
		got.RecomputeBalance()
		return tx.SaveContract(context.Background(), got)
	})
	require.NoError(t, err)

	got, err := st.GetContract(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.Equal(decimal.NewFromInt(3500)))
}
