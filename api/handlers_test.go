/*
handlers_test.go - HTTP-level tests for the lease API

Exercises the full router with the in-memory store: request decoding,
validation, status mapping, and the JSON shapes clients depend on.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lease-engine/lease"
	store "github.com/warp/lease-engine/lease/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// testNow is a Saturday morning; the contracts the tests create owe the
// previous day (Friday 2024-01-05).
var testNow = time.Date(2024, time.January, 6, 9, 0, 0, 0, time.UTC)

func setupTestHandler(t *testing.T) (*Handler, http.Handler) {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := lease.DefaultConfig()
	cfg.Location = time.UTC

	h := NewHandler(store.NewMemory(), cfg, log)
	h.Now = func() time.Time { return testNow }
	h.Payments.Now = h.Now
	h.Penalties.Now = h.Now
	h.Leaves.Now = h.Now

	return h, NewRouter(h)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "test-operator")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

// createTestContract POSTs a contract owing Friday 2024-01-05 and returns it.
func createTestContract(t *testing.T, router http.Handler) ContractDTO {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/contracts", CreateContractRequest{
		TotalAmount:      "450000",
		PerPaymentAmount: "3500",
		FirstDueDate:     "2024-01-05",
		LeaveDaysTotal:   12,
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	return decodeBody[ContractDTO](t, rec)
}

// =============================================================================
// CONTRACTS
// =============================================================================

func TestAPI_CreateContract_ReturnsCreated(t *testing.T) {
	_, router := setupTestHandler(t)

	dto := createTestContract(t, router)

	assert.NotEmpty(t, dto.ID)
	assert.NotEmpty(t, dto.Reference)
	assert.Equal(t, "active", dto.Status)
	assert.Equal(t, "450000", dto.RemainingAmount)
	assert.Equal(t, "2024-01-05", dto.DateConcerned)
	assert.Equal(t, "2024-01-06", dto.DateLimit)
	assert.Equal(t, 12, dto.LeaveDaysRemaining)
}

func TestAPI_CreateContract_WithBatteryAndAssociation(t *testing.T) {
	h, router := setupTestHandler(t)

	rec := doJSON(t, router, http.MethodPost, "/api/contracts", CreateContractRequest{
		TotalAmount:        "450000",
		PerPaymentAmount:   "3500",
		FirstDueDate:       "2024-01-05",
		BatteryTotalAmount: "90000",
		DriverID:           "driver-9",
		VehicleID:          "moto-42",
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	dto := decodeBody[ContractDTO](t, rec)

	assert.NotEmpty(t, dto.BatteryContractID)
	assert.NotEmpty(t, dto.AssociationID)

	assoc, err := h.Store.GetAssociation(context.Background(), lease.AssociationID(dto.AssociationID))
	require.NoError(t, err)
	assert.Equal(t, "driver-9", assoc.DriverID)
	assert.False(t, assoc.SwapLocked)
}

func TestAPI_CreateContract_MissingAmount_BadRequest(t *testing.T) {
	_, router := setupTestHandler(t)

	rec := doJSON(t, router, http.MethodPost, "/api/contracts", map[string]any{
		"per_payment_amount": "3500",
		"first_due_date":     "2024-01-05",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_GetContract_Unknown_NotFound(t *testing.T) {
	_, router := setupTestHandler(t)

	rec := doJSON(t, router, http.MethodGet, "/api/contracts/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_TransitionContract_SuspendAndResume(t *testing.T) {
	_, router := setupTestHandler(t)
	c := createTestContract(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/contracts/"+c.ID+"/status", ContractStatusRequest{Status: "suspended"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "suspended", decodeBody[ContractDTO](t, rec).Status)

	rec = doJSON(t, router, http.MethodPost, "/api/contracts/"+c.ID+"/status", ContractStatusRequest{Status: "active"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Completing with an outstanding balance is an invalid transition.
	rec = doJSON(t, router, http.MethodPost, "/api/contracts/"+c.ID+"/status", ContractStatusRequest{Status: "completed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestAPI_RecordPayment_AdvancesWindow(t *testing.T) {
	_, router := setupTestHandler(t)
	c := createTestContract(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/contracts/"+c.ID+"/payments", RecordPaymentRequest{AmountMoto: "3500"})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	payment := decodeBody[PaymentDTO](t, rec)

	assert.Equal(t, "2024-01-05", payment.DateConcerned)
	assert.Equal(t, "test-operator", payment.RecordedBy)

	rec = doJSON(t, router, http.MethodGet, "/api/contracts/"+c.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[ContractDTO](t, rec)
	assert.Equal(t, "2024-01-06", got.DateConcerned)
	assert.Equal(t, "446500", got.RemainingAmount)
}

func TestAPI_RecordPayment_OverDailyCap_BadRequest(t *testing.T) {
	_, router := setupTestHandler(t)
	c := createTestContract(t, router)

	for i := 0; i < 2; i++ {
		rec := doJSON(t, router, http.MethodPost, "/api/contracts/"+c.ID+"/payments", RecordPaymentRequest{AmountMoto: "3500"})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, router, http.MethodPost, "/api/contracts/"+c.ID+"/payments", RecordPaymentRequest{AmountMoto: "3500"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SCHEDULER + PENALTIES
// =============================================================================

// runNoonPass triggers the noon pass at 05:00 the day after the contract's
// missed Friday.
func runNoonPass(t *testing.T, router http.Handler) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/admin/penalties/run", RunSchedulerRequest{
		Window: "noon",
		Now:    "2024-01-06T05:00:00Z",
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
}

func TestAPI_RunScheduler_ReportsCreatedPenalty(t *testing.T) {
	_, router := setupTestHandler(t)
	c := createTestContract(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/admin/penalties/run", RunSchedulerRequest{
		Window: "noon",
		Now:    "2024-01-06T05:00:00Z",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[lease.RunReport](t, rec)
	assert.Equal(t, lease.WindowNoon, report.Window)
	assert.Equal(t, 1, report.Created)

	rec = doJSON(t, router, http.MethodGet, "/api/penalties?contract_id="+c.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pens := decodeBody[[]PenaltyDTO](t, rec)
	require.Len(t, pens, 1)
	assert.Equal(t, "light", pens[0].Type)
	assert.Equal(t, "unpaid", pens[0].Status)
	assert.Equal(t, "2024-01-05", pens[0].MissedDate)
}

func TestAPI_RunScheduler_InvalidWindow_BadRequest(t *testing.T) {
	_, router := setupTestHandler(t)

	rec := doJSON(t, router, http.MethodPost, "/api/admin/penalties/run", map[string]string{"window": "midnight"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ListPenalties_RequiresContractID(t *testing.T) {
	_, router := setupTestHandler(t)

	rec := doJSON(t, router, http.MethodGet, "/api/penalties", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_PayPenalty_FullAmount_Settles(t *testing.T) {
	_, router := setupTestHandler(t)
	c := createTestContract(t, router)
	runNoonPass(t, router)

	rec := doJSON(t, router, http.MethodGet, "/api/contracts/"+c.ID+"/penalties", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pens := decodeBody[[]PenaltyDTO](t, rec)
	require.Len(t, pens, 1)

	rec = doJSON(t, router, http.MethodPost, "/api/penalties/"+pens[0].ID+"/payments", PayPenaltyRequest{Amount: "2000"})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	paid := decodeBody[PenaltyDTO](t, rec)
	assert.Equal(t, "paid", paid.Status)
	assert.Equal(t, "0", paid.RemainingAmount)
}

func TestAPI_PayPenalty_Overpayment_BadRequest(t *testing.T) {
	_, router := setupTestHandler(t)
	c := createTestContract(t, router)
	runNoonPass(t, router)

	rec := doJSON(t, router, http.MethodGet, "/api/contracts/"+c.ID+"/penalties", nil)
	pens := decodeBody[[]PenaltyDTO](t, rec)
	require.Len(t, pens, 1)

	rec = doJSON(t, router, http.MethodPost, "/api/penalties/"+pens[0].ID+"/payments", PayPenaltyRequest{Amount: "99999"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_CancelPenalty_RequiresJustification(t *testing.T) {
	_, router := setupTestHandler(t)
	c := createTestContract(t, router)
	runNoonPass(t, router)

	rec := doJSON(t, router, http.MethodGet, "/api/contracts/"+c.ID+"/penalties", nil)
	pens := decodeBody[[]PenaltyDTO](t, rec)
	require.Len(t, pens, 1)

	rec = doJSON(t, router, http.MethodPost, "/api/penalties/"+pens[0].ID+"/cancel", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/penalties/"+pens[0].ID+"/cancel", CancelPenaltyRequest{Justification: "vehicle in workshop"})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	cancelled := decodeBody[PenaltyDTO](t, rec)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, "test-operator", cancelled.CancelledBy)
}

func TestAPI_PayPenalty_Unknown_NotFound(t *testing.T) {
	_, router := setupTestHandler(t)

	rec := doJSON(t, router, http.MethodPost, "/api/penalties/nope/payments", PayPenaltyRequest{Amount: "100"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// LEAVES
// =============================================================================

func TestAPI_LeaveLifecycle(t *testing.T) {
	_, router := setupTestHandler(t)
	c := createTestContract(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/leaves", CreateLeaveRequest{
		ContractID: c.ID,
		StartDate:  "2024-01-10",
		DayCount:   3,
		Motive:     "family event",
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	leaveDTO := decodeBody[LeaveDTO](t, rec)
	assert.Equal(t, "pending", leaveDTO.Status)
	assert.Equal(t, "2024-01-12", leaveDTO.EndDate)

	rec = doJSON(t, router, http.MethodPost, "/api/leaves/"+leaveDTO.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "approved", decodeBody[LeaveDTO](t, rec).Status)

	// Approved -> rejected is still allowed (revocation); rejected -> cancelled is not.
	rec = doJSON(t, router, http.MethodPost, "/api/leaves/"+leaveDTO.ID+"/reject", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, http.MethodPost, "/api/leaves/"+leaveDTO.ID+"/cancel", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_CreateLeave_TooManyDays_BadRequest(t *testing.T) {
	_, router := setupTestHandler(t)
	c := createTestContract(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/leaves", CreateLeaveRequest{
		ContractID: c.ID,
		StartDate:  "2024-01-10",
		DayCount:   30,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// MISC
// =============================================================================

func TestAPI_Health(t *testing.T) {
	_, router := setupTestHandler(t)

	rec := doJSON(t, router, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, rec)["status"])
}
