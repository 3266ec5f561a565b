/*
memory_test.go - In-memory store semantics the engine relies on
*/
package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lease-engine/lease"
	store "github.com/warp/lease-engine/lease/store"
)

func seedMemContract(st *store.Memory) lease.Contract {
	c := lease.Contract{
		ID:               "c1",
		Reference:        "CC-202401-MEM01",
		TotalAmount:      decimal.NewFromInt(1000),
		PerPaymentAmount: decimal.NewFromInt(100),
		DateConcerned:    lease.NewDay(2024, time.January, 5),
		DateLimit:        lease.NewDay(2024, time.January, 6),
		Status:           lease.ContractActive,
	}
	c.RecomputeBalance()
	st.PutContract(c)
	return c
}

func TestMemory_CreatePenalty_DuplicateDay_Conflicts(t *testing.T) {
	st := store.NewMemory()
	c := seedMemContract(st)
	day := lease.NewDay(2024, time.January, 5)

	require.NoError(t, st.CreatePenalty(context.Background(), &lease.Penalty{
		ID: "p1", ContractID: c.ID, Type: lease.PenaltyLight,
		Status: lease.PenaltyUnpaid, MissedDate: day,
	}))

	err := st.CreatePenalty(context.Background(), &lease.Penalty{
		ID: "p2", ContractID: c.ID, Type: lease.PenaltyLight,
		Status: lease.PenaltyUnpaid, MissedDate: day,
	})
	assert.ErrorIs(t, err, lease.ErrPenaltyExists)

	// A different day is fine.
	assert.NoError(t, st.CreatePenalty(context.Background(), &lease.Penalty{
		ID: "p3", ContractID: c.ID, Type: lease.PenaltyLight,
		Status: lease.PenaltyUnpaid, MissedDate: day.AddDays(1),
	}))
}

func TestMemory_WithTx_ErrorRollsBackEverything(t *testing.T) {
	// GIVEN: a committed contract
	// WHEN: a transaction mutates it, creates a penalty, then fails
	// THEN: neither mutation survives

	st := store.NewMemory()
	c := seedMemContract(st)
	boom := errors.New("boom")

	err := st.WithTx(context.Background(), func(tx lease.Store) error {
		got, err := tx.GetContract(context.Background(), c.ID)
		require.NoError(t, err)
		got.PaidAmount = decimal.NewFromInt(500)
		got.RecomputeBalance()
		require.NoError(t, tx.SaveContract(context.Background(), got))

		require.NoError(t, tx.CreatePenalty(context.Background(), &lease.Penalty{
			ID: "p1", ContractID: c.ID, Type: lease.PenaltyLight,
			Status: lease.PenaltyUnpaid, MissedDate: lease.NewDay(2024, time.January, 5),
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := st.GetContract(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.IsZero())

	_, err = st.GetPenalty(context.Background(), "p1")
	assert.ErrorIs(t, err, lease.ErrPenaltyNotFound)

	// The unique-day slot must be free again after rollback.
	assert.NoError(t, st.CreatePenalty(context.Background(), &lease.Penalty{
		ID: "p1", ContractID: c.ID, Type: lease.PenaltyLight,
		Status: lease.PenaltyUnpaid, MissedDate: lease.NewDay(2024, time.January, 5),
	}))
}

func TestMemory_WithTx_CommitIsVisible(t *testing.T) {
	st := store.NewMemory()
	c := seedMemContract(st)

	err := st.WithTx(context.Background(), func(tx lease.Store) error {
		got, err := tx.GetContract(context.Background(), c.ID)
		if err != nil {
			return err
		}
		got.PaidAmount = decimal.NewFromInt(300)
		got.RecomputeBalance()
		return tx.SaveContract(context.Background(), got)
	})
	require.NoError(t, err)

	got, err := st.GetContract(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.Equal(decimal.NewFromInt(300)))
}

func TestMemory_Reads_ReturnCopies(t *testing.T) {
	// Mutating a read result must not leak into the store.
	st := store.NewMemory()
	c := seedMemContract(st)

	got, err := st.GetContract(context.Background(), c.ID)
	require.NoError(t, err)
	got.PaidAmount = decimal.NewFromInt(999)

	again, err := st.GetContract(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, again.PaidAmount.IsZero())
}

func TestMemory_HasOverduePenalty(t *testing.T) {
	st := store.NewMemory()
	c := seedMemContract(st)
	due := time.Date(2024, time.January, 8, 5, 0, 0, 0, time.UTC)

	require.NoError(t, st.CreatePenalty(context.Background(), &lease.Penalty{
		ID: "p1", ContractID: c.ID, Type: lease.PenaltyLight,
		Status:          lease.PenaltyUnpaid,
		Amount:          decimal.NewFromInt(2000),
		RemainingAmount: decimal.NewFromInt(2000),
		MissedDate:      lease.NewDay(2024, time.January, 5),
		PaymentDueAt:    &due,
	}))

	before, err := st.HasOverduePenalty(context.Background(), c.ID, due.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, before, "not yet past due")

	after, err := st.HasOverduePenalty(context.Background(), c.ID, due.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, after)
}

func TestMemory_GetPenaltyForDay_SeesAnyStatus(t *testing.T) {
	// A cancelled row still occupies the day slot so the scheduler never
	// re-penalizes a voided day.
	st := store.NewMemory()
	c := seedMemContract(st)
	day := lease.NewDay(2024, time.January, 5)

	require.NoError(t, st.CreatePenalty(context.Background(), &lease.Penalty{
		ID: "p1", ContractID: c.ID, Type: lease.PenaltyLight,
		Status: lease.PenaltyCancelled, MissedDate: day,
	}))

	pen, err := st.GetPenaltyForDay(context.Background(), c.ID, day)
	require.NoError(t, err)
	assert.Equal(t, lease.PenaltyCancelled, pen.Status)
}
