/*
handlers.go - HTTP API handlers for the lease compliance engine

PURPOSE:
  Exposes the lease engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Contracts:
    POST   /api/contracts                 Create contract
    GET    /api/contracts/{id}            Get contract details
    POST   /api/contracts/{id}/status     Lifecycle transition
    POST   /api/contracts/{id}/payments   Record a lease payment
    GET    /api/contracts/{id}/penalties  List the contract's penalties

  Penalties:
    GET    /api/penalties                 List by contract_id (+ status)
    POST   /api/penalties/{id}/payments   Pay (fully or partially)
    POST   /api/penalties/{id}/cancel     Void a light, untouched penalty

  Leaves:
    POST   /api/leaves                    File a leave request
    GET    /api/leaves/{id}               Get a leave request
    POST   /api/leaves/{id}/approve       Approve (shifts the window)
    POST   /api/leaves/{id}/reject        Reject
    POST   /api/leaves/{id}/cancel        Cancel
    POST   /api/leaves/{id}/complete      Mark completed

  Admin:
    POST   /api/admin/penalties/run       Trigger one scheduler pass
    GET    /api/health                    Liveness probe

  Scenarios (development/demo only, see scenarios.go):
    GET    /api/scenarios                 List available demo scenarios
    GET    /api/scenarios/current         Most recently loaded scenario
    POST   /api/scenarios/load            Load a demo scenario

ACTOR IDENTITY:
  Mutating endpoints read the X-Actor header for attribution (who recorded
  the payment, who cancelled the penalty). Empty is allowed.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, cap exceeded, invalid amount or transition
  - 404: Contract/penalty/leave not found
  - 409: Duplicate penalty for a (contract, missed day)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/warp/lease-engine/lease"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     lease.TxStore
	Payments  *lease.PaymentService
	Penalties *lease.PenaltyService
	Leaves    *lease.LeaveService
	Scheduler *lease.PenaltyScheduler
	Config    lease.Config
	Log       *logrus.Logger

	// Now is injected so tests control the clock. Defaults to time.Now.
	Now func() time.Time

	// Most recently loaded demo scenario, see scenarios.go.
	currentScenario string
}

// NewHandler wires a handler and its services over the given store.
func NewHandler(store lease.TxStore, cfg lease.Config, log *logrus.Logger) *Handler {
	return &Handler{
		Store:     store,
		Payments:  lease.NewPaymentService(store, cfg, log),
		Penalties: lease.NewPenaltyService(store, cfg, log),
		Leaves:    lease.NewLeaveService(store, log),
		Scheduler: lease.NewPenaltyScheduler(store, cfg, log),
		Config:    cfg,
		Log:       log,
		Now:       time.Now,
	}
}

func actor(r *http.Request) string {
	return r.Header.Get("X-Actor")
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

// CreateContract creates a contract, plus the optional battery sub-contract
// and driver<->vehicle association, in one transaction.
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req CreateContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	total, err := parseDecimal(req.TotalAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid total_amount", err)
		return
	}
	perPayment, err := parseDecimal(req.PerPaymentAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid per_payment_amount", err)
		return
	}
	firstDue, err := lease.ParseDay(req.FirstDueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid first_due_date (use YYYY-MM-DD)", err)
		return
	}

	now := h.Now()
	contract := &lease.Contract{
		ID:               lease.ContractID(lease.NewID()),
		Reference:        lease.NewContractReference(now),
		TotalAmount:      total,
		PerPaymentAmount: perPayment,
		DateConcerned:    firstDue,
		DateLimit:        lease.NextWorkingDay(firstDue),
		Status:           lease.ContractActive,
		LeaveDaysTotal:   req.LeaveDaysTotal,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	contract.RecomputeBalance()

	err = h.Store.WithTx(r.Context(), func(tx lease.Store) error {
		if req.BatteryTotalAmount != "" {
			batteryTotal, err := parseDecimal(req.BatteryTotalAmount)
			if err != nil {
				return err
			}
			battery := &lease.BatteryContract{
				ID:          lease.BatteryContractID(lease.NewID()),
				Reference:   contract.Reference + "-BAT",
				TotalAmount: batteryTotal,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			battery.RecomputeBalance()
			if err := tx.SaveBatteryContract(r.Context(), battery); err != nil {
				return err
			}
			contract.BatteryContractID = &battery.ID
		}

		if req.DriverID != "" || req.VehicleID != "" {
			assoc := &lease.Association{
				ID:         lease.AssociationID(lease.NewID()),
				ContractID: contract.ID,
				DriverID:   req.DriverID,
				VehicleID:  req.VehicleID,
				UpdatedAt:  now,
			}
			if err := tx.SaveAssociation(r.Context(), assoc); err != nil {
				return err
			}
			contract.AssociationID = &assoc.ID
		}

		return tx.SaveContract(r.Context(), contract)
	})
	if err != nil {
		writeError(w, statusForError(err), "Failed to create contract", err)
		return
	}

	writeJSON(w, http.StatusCreated, toContractDTO(contract))
}

// GetContract returns a single contract.
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	id := lease.ContractID(chi.URLParam(r, "id"))

	contract, err := h.Store.GetContract(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), "Failed to get contract", err)
		return
	}

	writeJSON(w, http.StatusOK, toContractDTO(contract))
}

// TransitionContract applies a lifecycle transition.
func (h *Handler) TransitionContract(w http.ResponseWriter, r *http.Request) {
	id := lease.ContractID(chi.URLParam(r, "id"))

	var req ContractStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	var contract *lease.Contract
	err := h.Store.WithTx(r.Context(), func(tx lease.Store) error {
		c, err := tx.GetContract(r.Context(), id)
		if err != nil {
			return err
		}

		switch lease.ContractStatus(req.Status) {
		case lease.ContractSuspended:
			err = c.Suspend()
		case lease.ContractActive:
			err = c.Resume()
		case lease.ContractTerminated:
			err = c.Terminate()
		case lease.ContractCompleted:
			err = c.Complete()
		default:
			err = lease.ErrInvalidTransition
		}
		if err != nil {
			return err
		}

		c.UpdatedAt = h.Now()
		contract = c
		return tx.SaveContract(r.Context(), c)
	})
	if err != nil {
		writeError(w, statusForError(err), "Failed to transition contract", err)
		return
	}

	writeJSON(w, http.StatusOK, toContractDTO(contract))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// RecordPayment records a lease payment and advances the contract's window.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id := lease.ContractID(chi.URLParam(r, "id"))

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	moto, err := parseDecimal(req.AmountMoto)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount_moto", err)
		return
	}
	battery, err := parseDecimal(req.AmountBattery)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount_battery", err)
		return
	}

	payment, err := h.Payments.RecordPayment(r.Context(), lease.RecordPaymentInput{
		ContractID:     id,
		AmountMoto:     moto,
		AmountBattery:  battery,
		Method:         req.Method,
		TransactionRef: req.TransactionRef,
		RecordedBy:     actor(r),
	})
	if err != nil {
		writeError(w, statusForError(err), "Failed to record payment", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPaymentDTO(payment))
}

// =============================================================================
// PENALTY HANDLERS
// =============================================================================

// ListPenalties returns penalties filtered by contract_id and optional status.
func (h *Handler) ListPenalties(w http.ResponseWriter, r *http.Request) {
	contractID := r.URL.Query().Get("contract_id")
	if contractID == "" {
		writeError(w, http.StatusBadRequest, "contract_id query parameter is required", nil)
		return
	}
	status := r.URL.Query().Get("status")

	penalties, err := h.Store.ListPenaltiesByContract(r.Context(), lease.ContractID(contractID))
	if err != nil {
		writeError(w, statusForError(err), "Failed to list penalties", err)
		return
	}

	if status != "" {
		filtered := penalties[:0]
		for _, p := range penalties {
			if p.Status == lease.PenaltyStatus(status) {
				filtered = append(filtered, p)
			}
		}
		penalties = filtered
	}

	writeJSON(w, http.StatusOK, toPenaltyDTOs(penalties))
}

// ListContractPenalties is ListPenalties keyed off the path instead.
func (h *Handler) ListContractPenalties(w http.ResponseWriter, r *http.Request) {
	id := lease.ContractID(chi.URLParam(r, "id"))

	penalties, err := h.Store.ListPenaltiesByContract(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), "Failed to list penalties", err)
		return
	}

	writeJSON(w, http.StatusOK, toPenaltyDTOs(penalties))
}

// PayPenalty records a manual payment against a penalty.
func (h *Handler) PayPenalty(w http.ResponseWriter, r *http.Request) {
	id := lease.PenaltyID(chi.URLParam(r, "id"))

	var req PayPenaltyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	amount, err := parseDecimal(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	penalty, err := h.Penalties.PayPenalty(r.Context(), lease.PayPenaltyInput{
		PenaltyID:      id,
		Amount:         amount,
		Method:         req.Method,
		TransactionRef: req.TransactionRef,
		Actor:          actor(r),
	})
	if err != nil {
		writeError(w, statusForError(err), "Failed to pay penalty", err)
		return
	}

	writeJSON(w, http.StatusOK, toPenaltyDTO(penalty))
}

// CancelPenalty voids a light penalty that has seen no payment.
func (h *Handler) CancelPenalty(w http.ResponseWriter, r *http.Request) {
	id := lease.PenaltyID(chi.URLParam(r, "id"))

	var req CancelPenaltyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	penalty, err := h.Penalties.CancelPenalty(r.Context(), id, req.Justification, actor(r))
	if err != nil {
		writeError(w, statusForError(err), "Failed to cancel penalty", err)
		return
	}

	writeJSON(w, http.StatusOK, toPenaltyDTO(penalty))
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// CreateLeave files a leave request.
func (h *Handler) CreateLeave(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	start, err := lease.ParseDay(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date (use YYYY-MM-DD)", err)
		return
	}

	leaveReq, err := h.Leaves.CreateRequest(r.Context(), lease.CreateLeaveInput{
		ContractID: lease.ContractID(req.ContractID),
		StartDate:  start,
		DayCount:   req.DayCount,
		Motive:     req.Motive,
	})
	if err != nil {
		writeError(w, statusForError(err), "Failed to create leave request", err)
		return
	}

	writeJSON(w, http.StatusCreated, toLeaveDTO(leaveReq))
}

// GetLeave returns a single leave request.
func (h *Handler) GetLeave(w http.ResponseWriter, r *http.Request) {
	id := lease.LeaveRequestID(chi.URLParam(r, "id"))

	leaveReq, err := h.Store.GetLeaveRequest(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), "Failed to get leave request", err)
		return
	}

	writeJSON(w, http.StatusOK, toLeaveDTO(leaveReq))
}

// ApproveLeave approves a pending request and shifts the contract's window
// past the covered days.
func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	h.transitionLeave(w, r, h.Leaves.Approve)
}

// RejectLeave rejects a request and restores the contract's leave counters.
func (h *Handler) RejectLeave(w http.ResponseWriter, r *http.Request) {
	h.transitionLeave(w, r, h.Leaves.Reject)
}

// CancelLeave cancels a request; an approved one has its window shift undone.
func (h *Handler) CancelLeave(w http.ResponseWriter, r *http.Request) {
	h.transitionLeave(w, r, h.Leaves.Cancel)
}

// CompleteLeave marks an approved request as consumed.
func (h *Handler) CompleteLeave(w http.ResponseWriter, r *http.Request) {
	h.transitionLeave(w, r, h.Leaves.Complete)
}

func (h *Handler) transitionLeave(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, id lease.LeaveRequestID) (*lease.LeaveRequest, error),
) {
	id := lease.LeaveRequestID(chi.URLParam(r, "id"))

	leaveReq, err := fn(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), "Failed to transition leave request", err)
		return
	}

	writeJSON(w, http.StatusOK, toLeaveDTO(leaveReq))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunScheduler triggers one scheduler pass. Body is optional; window and now
// both default from the wall clock.
func (h *Handler) RunScheduler(w http.ResponseWriter, r *http.Request) {
	var req RunSchedulerRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "Validation failed", err)
			return
		}
	}

	now := h.Now()
	if req.Now != "" {
		parsed, err := time.Parse(time.RFC3339, req.Now)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid now (use RFC3339)", err)
			return
		}
		now = parsed
	}

	window := lease.Window(req.Window)
	if window == "" {
		window = lease.WindowForTime(now, h.Config.Location)
	}

	report, err := h.Scheduler.Run(r.Context(), window, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Scheduler run failed", err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
