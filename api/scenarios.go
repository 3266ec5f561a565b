/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates contracts, payments,
	penalties, and leave requests that demonstrate a specific engine
	behavior.

AVAILABLE SCENARIOS:

	on-time-driver:    Six business days of compliant daily payments
	missed-week:       A backlog of missed days penalized by the noon pass
	escalated-penalty: A missed day escalated to severe by the afternoon pass
	leave-covered:     Approved leave exempting the days ahead

HOW SCENARIOS WORK:
 1. Create an active contract
 2. Seed payment history with crafted timestamps
 3. Run the scheduler with crafted instants to produce penalties

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "missed-week"}

ADDING NEW SCENARIOS:
 1. Add to the 'scenarios' slice with ID, name, description
 2. Create a loader function: loadXxxScenario(ctx)
 3. Add a case to the LoadScenario switch

NOTE:

	Scenarios do not reset the database; each load adds a fresh contract.
	Start from an empty database for a pristine demo. Only use in
	development/demo environments.

SEE ALSO:
  - handlers.go: the handler context these loaders extend
  - lease/scheduler.go: the passes the scenarios exercise
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/lease-engine/lease"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "on-time-driver",
		Name:        "On-Time Driver",
		Description: "Six business days of compliant payments, no penalties",
		Category:    "payments",
	},
	{
		ID:          "missed-week",
		Name:        "Missed Week",
		Description: "Five missed days backfilled with light penalties by the noon pass",
		Category:    "penalties",
	},
	{
		ID:          "escalated-penalty",
		Name:        "Escalated Penalty",
		Description: "Yesterday's missed day escalated to severe by the afternoon pass",
		Category:    "penalties",
	},
	{
		ID:          "leave-covered",
		Name:        "Leave Covered",
		Description: "Approved 3-day leave exempting the contract from penalties",
		Category:    "leave",
	},
}

// ScenarioResult reports what a load created.
type ScenarioResult struct {
	Scenario    ScenarioDTO        `json:"scenario"`
	ContractIDs []lease.ContractID `json:"contract_ids"`
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: h.currentScenario, Name: h.currentScenario})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	var (
		ids []lease.ContractID
		err error
	)
	switch req.ScenarioID {
	case "on-time-driver":
		ids, err = h.loadOnTimeDriverScenario(ctx)
	case "missed-week":
		ids, err = h.loadMissedWeekScenario(ctx)
	case "escalated-penalty":
		ids, err = h.loadEscalatedPenaltyScenario(ctx)
	case "leave-covered":
		ids, err = h.loadLeaveCoveredScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario_id", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID

	var loaded ScenarioDTO
	for _, s := range scenarios {
		if s.ID == req.ScenarioID {
			loaded = s
			break
		}
	}
	writeJSON(w, http.StatusOK, ScenarioResult{Scenario: loaded, ContractIDs: ids})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// demoContract builds an active contract owing firstDue next.
func (h *Handler) demoContract(firstDue lease.Day) *lease.Contract {
	now := h.Now()
	c := &lease.Contract{
		ID:               lease.ContractID(lease.NewID()),
		Reference:        lease.NewContractReference(now),
		TotalAmount:      decimal.NewFromInt(450000),
		PerPaymentAmount: decimal.NewFromInt(3500),
		DateConcerned:    firstDue,
		DateLimit:        lease.NextWorkingDay(firstDue),
		Status:           lease.ContractActive,
		LeaveDaysTotal:   12,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	c.RecomputeBalance()
	return c
}

// loadOnTimeDriverScenario seeds six business days of compliant payments
// ending yesterday, leaving the contract current.
func (h *Handler) loadOnTimeDriverScenario(ctx context.Context) ([]lease.ContractID, error) {
	today := lease.DayOf(h.Now(), h.Config.Location)
	start := lease.SubtractDaysSkipSunday(today, 6)
	c := h.demoContract(start)

	err := h.Store.WithTx(ctx, func(tx lease.Store) error {
		if err := tx.SaveContract(ctx, c); err != nil {
			return err
		}
		for day := start; day.Before(today); day = lease.NextWorkingDay(day) {
			paidAt := day.At(9, h.Config.Location)
			rec := &lease.PaymentRecord{
				ID:            lease.PaymentID(lease.NewID()),
				Reference:     lease.NewPaymentReference(paidAt),
				ContractID:    c.ID,
				AmountMoto:    c.PerPaymentAmount,
				AmountTotal:   c.PerPaymentAmount,
				DateConcerned: day,
				DateLimit:     lease.NextWorkingDay(day),
				Method:        "mobile_money",
				Status:        lease.PaymentPaid,
				RecordedBy:    "demo",
				CreatedAt:     paidAt,
			}
			if err := tx.CreatePayment(ctx, rec); err != nil {
				return err
			}
			lease.AdvanceWindow(c, c.PerPaymentAmount)
		}
		return tx.SaveContract(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return []lease.ContractID{c.ID}, nil
}

// loadMissedWeekScenario seeds a contract that paid nothing for five
// business days and runs the noon pass to backfill its penalties.
func (h *Handler) loadMissedWeekScenario(ctx context.Context) ([]lease.ContractID, error) {
	today := lease.DayOf(h.Now(), h.Config.Location)
	start := lease.SubtractDaysSkipSunday(today, 5)
	c := h.demoContract(start)

	if err := h.Store.SaveContract(ctx, c); err != nil {
		return nil, err
	}

	// 05:00 today: every day through yesterday is past its grace instant.
	if _, err := h.Scheduler.Run(ctx, lease.WindowNoon, today.At(5, h.Config.Location)); err != nil {
		return nil, err
	}
	return []lease.ContractID{c.ID}, nil
}

// loadEscalatedPenaltyScenario seeds a contract that missed yesterday and
// drives both passes so the penalty ends up severe.
func (h *Handler) loadEscalatedPenaltyScenario(ctx context.Context) ([]lease.ContractID, error) {
	today := lease.DayOf(h.Now(), h.Config.Location)
	missed := today.AddDays(-1)
	if missed.IsSunday() {
		today = today.AddDays(-1)
		missed = missed.AddDays(-1)
	}
	c := h.demoContract(missed)

	if err := h.Store.SaveContract(ctx, c); err != nil {
		return nil, err
	}

	if _, err := h.Scheduler.Run(ctx, lease.WindowNoon, today.At(5, h.Config.Location)); err != nil {
		return nil, err
	}
	if _, err := h.Scheduler.Run(ctx, lease.WindowAfternoon, today.At(15, h.Config.Location)); err != nil {
		return nil, err
	}
	return []lease.ContractID{c.ID}, nil
}

// loadLeaveCoveredScenario seeds a contract with an approved 3-day leave
// starting today.
func (h *Handler) loadLeaveCoveredScenario(ctx context.Context) ([]lease.ContractID, error) {
	today := lease.DayOf(h.Now(), h.Config.Location)
	c := h.demoContract(today)

	if err := h.Store.SaveContract(ctx, c); err != nil {
		return nil, err
	}

	req, err := h.Leaves.CreateRequest(ctx, lease.CreateLeaveInput{
		ContractID: c.ID,
		StartDate:  today,
		DayCount:   3,
		Motive:     "demo leave",
	})
	if err != nil {
		return nil, err
	}
	if _, err := h.Leaves.Approve(ctx, req.ID); err != nil {
		return nil, err
	}
	return []lease.ContractID{c.ID}, nil
}
