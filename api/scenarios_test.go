/*
scenarios_test.go - Unit tests for demo scenarios

Each scenario must leave the database in the state its description
promises: the right contracts, payments, penalties, and leave requests.
*/
package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lease-engine/lease"
)

func TestScenario_OnTimeDriver_NoPenalties(t *testing.T) {
	// GIVEN: the on-time-driver scenario
	// WHEN: it loads
	// THEN: the contract is current through yesterday with no penalties

	h, _ := setupTestHandler(t)
	ctx := context.Background()

	ids, err := h.loadOnTimeDriverScenario(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	c, err := h.Store.GetContract(ctx, ids[0])
	require.NoError(t, err)
	today := lease.DayOf(testNow, h.Config.Location)
	assert.True(t, c.DateConcerned.Equal(today), "owes %s, want %s", c.DateConcerned, today)
	assert.True(t, c.PaidAmount.IsPositive())

	pens, err := h.Store.ListPenaltiesByContract(ctx, ids[0])
	require.NoError(t, err)
	assert.Empty(t, pens)

	// Every noon pass over the seeded history skips the paid days.
	report, err := h.Scheduler.Run(ctx, lease.WindowNoon, testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
}

func TestScenario_MissedWeek_BackfillsPenalties(t *testing.T) {
	h, _ := setupTestHandler(t)
	ctx := context.Background()

	ids, err := h.loadMissedWeekScenario(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	pens, err := h.Store.ListPenaltiesByContract(ctx, ids[0])
	require.NoError(t, err)
	assert.NotEmpty(t, pens)
	for _, p := range pens {
		assert.Equal(t, lease.PenaltyLight, p.Type)
		assert.Equal(t, lease.PenaltyUnpaid, p.Status)
	}
}

func TestScenario_EscalatedPenalty_EndsSevere(t *testing.T) {
	h, _ := setupTestHandler(t)
	ctx := context.Background()

	ids, err := h.loadEscalatedPenaltyScenario(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	pens, err := h.Store.ListPenaltiesByContract(ctx, ids[0])
	require.NoError(t, err)
	require.Len(t, pens, 1)
	assert.Equal(t, lease.PenaltySevere, pens[0].Type)
	assert.Equal(t, lease.PenaltyUnpaid, pens[0].Status)
}

func TestScenario_LeaveCovered_ExemptsDays(t *testing.T) {
	h, _ := setupTestHandler(t)
	ctx := context.Background()

	ids, err := h.loadLeaveCoveredScenario(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	today := lease.DayOf(testNow, h.Config.Location)
	covered, err := h.Store.HasApprovedLeave(ctx, ids[0], today)
	require.NoError(t, err)
	assert.True(t, covered)

	// Approval shifted the window past the leave, so running the noon
	// pass after the covered days creates nothing.
	report, err := h.Scheduler.Run(ctx, lease.WindowNoon, today.AddDays(1).At(5, h.Config.Location))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)

	c, err := h.Store.GetContract(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, c.DateConcerned.After(today.AddDays(2)), "window shifted past the leave, owes %s", c.DateConcerned)
}
