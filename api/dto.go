/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts cross the wire as JSON strings ("2000") and are parsed with
  shopspring/decimal, so nothing is ever rounded through a float64.

VALIDATION:
  Request types carry go-playground/validator tags; handlers run them
  through the shared validate instance before touching domain logic.

SEE ALSO:
  - handlers.go: Uses these types
  - lease/types.go: The domain model these map to
*/
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/lease-engine/lease"
)

var validate = validator.New()

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateContractRequest creates a lease contract, optionally with a battery
// sub-contract and a driver<->vehicle association.
type CreateContractRequest struct {
	TotalAmount      string `json:"total_amount" validate:"required"`
	PerPaymentAmount string `json:"per_payment_amount" validate:"required"`
	FirstDueDate     string `json:"first_due_date" validate:"required"`
	LeaveDaysTotal   int    `json:"leave_days_total" validate:"gte=0"`

	BatteryTotalAmount string `json:"battery_total_amount,omitempty"`

	DriverID  string `json:"driver_id,omitempty"`
	VehicleID string `json:"vehicle_id,omitempty"`
}

// ContractStatusRequest transitions a contract's lifecycle status.
type ContractStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended terminated completed"`
}

// RecordPaymentRequest records one lease payment against the contract's
// current due-date window.
type RecordPaymentRequest struct {
	AmountMoto     string `json:"amount_moto" validate:"required"`
	AmountBattery  string `json:"amount_battery,omitempty"`
	Method         string `json:"method,omitempty"`
	TransactionRef string `json:"transaction_ref,omitempty"`
}

// PayPenaltyRequest records a manual payment against a penalty.
type PayPenaltyRequest struct {
	Amount         string `json:"amount" validate:"required"`
	Method         string `json:"method,omitempty"`
	TransactionRef string `json:"transaction_ref,omitempty"`
}

// CancelPenaltyRequest voids a light, untouched penalty.
type CancelPenaltyRequest struct {
	Justification string `json:"justification" validate:"required"`
}

// CreateLeaveRequest files an absence request starting at start_date for
// day_count consecutive calendar days.
type CreateLeaveRequest struct {
	ContractID string `json:"contract_id" validate:"required"`
	StartDate  string `json:"start_date" validate:"required"`
	DayCount   int    `json:"day_count" validate:"required,gt=0"`
	Motive     string `json:"motive,omitempty"`
}

// RunSchedulerRequest triggers one scheduler pass. Window defaults to the
// one the wall clock implies; now (RFC3339) defaults to the current instant.
type RunSchedulerRequest struct {
	Window string `json:"window,omitempty" validate:"omitempty,oneof=noon afternoon"`
	Now    string `json:"now,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ContractDTO represents a contract in API responses.
type ContractDTO struct {
	ID               string `json:"id"`
	Reference        string `json:"reference"`
	TotalAmount      string `json:"total_amount"`
	PaidAmount       string `json:"paid_amount"`
	RemainingAmount  string `json:"remaining_amount"`
	PerPaymentAmount string `json:"per_payment_amount"`
	DateConcerned    string `json:"date_concerned,omitempty"`
	DateLimit        string `json:"date_limit,omitempty"`
	Status           string `json:"status"`

	BatteryContractID string `json:"battery_contract_id,omitempty"`
	AssociationID     string `json:"association_id,omitempty"`

	LeaveDaysTotal     int `json:"leave_days_total"`
	LeaveDaysUsed      int `json:"leave_days_used"`
	LeaveDaysRemaining int `json:"leave_days_remaining"`

	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// PaymentDTO represents a recorded payment.
type PaymentDTO struct {
	ID            string `json:"id"`
	Reference     string `json:"reference"`
	ContractID    string `json:"contract_id"`
	AmountMoto    string `json:"amount_moto"`
	AmountBattery string `json:"amount_battery"`
	AmountTotal   string `json:"amount_total"`
	DateConcerned string `json:"date_concerned"`
	DateLimit     string `json:"date_limit"`
	Method        string `json:"method,omitempty"`
	RecordedBy    string `json:"recorded_by,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// PenaltyDTO represents a penalty.
type PenaltyDTO struct {
	ID              string `json:"id"`
	ContractID      string `json:"contract_id"`
	Type            string `json:"type"`
	Status          string `json:"status"`
	Amount          string `json:"amount"`
	PaidAmount      string `json:"paid_amount"`
	RemainingAmount string `json:"remaining_amount"`
	MissedDate      string `json:"missed_date"`
	PaymentDueAt    string `json:"payment_due_at,omitempty"`
	Motive          string `json:"motive,omitempty"`
	Description     string `json:"description,omitempty"`
	CancelledBy     string `json:"cancelled_by,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

// LeaveDTO represents a leave request.
type LeaveDTO struct {
	ID         string `json:"id"`
	ContractID string `json:"contract_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	DayCount   int    `json:"day_count"`
	Status     string `json:"status"`
	Motive     string `json:"motive,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toContractDTO(c *lease.Contract) ContractDTO {
	dto := ContractDTO{
		ID:                 string(c.ID),
		Reference:          c.Reference,
		TotalAmount:        c.TotalAmount.String(),
		PaidAmount:         c.PaidAmount.String(),
		RemainingAmount:    c.RemainingAmount.String(),
		PerPaymentAmount:   c.PerPaymentAmount.String(),
		Status:             string(c.Status),
		LeaveDaysTotal:     c.LeaveDaysTotal,
		LeaveDaysUsed:      c.LeaveDaysUsed,
		LeaveDaysRemaining: c.LeaveDaysRemaining,
		CreatedAt:          c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          c.UpdatedAt.Format(time.RFC3339),
	}
	if !c.DateConcerned.IsZero() {
		dto.DateConcerned = c.DateConcerned.String()
	}
	if !c.DateLimit.IsZero() {
		dto.DateLimit = c.DateLimit.String()
	}
	if c.BatteryContractID != nil {
		dto.BatteryContractID = string(*c.BatteryContractID)
	}
	if c.AssociationID != nil {
		dto.AssociationID = string(*c.AssociationID)
	}
	return dto
}

func toPaymentDTO(p *lease.PaymentRecord) PaymentDTO {
	return PaymentDTO{
		ID:            string(p.ID),
		Reference:     p.Reference,
		ContractID:    string(p.ContractID),
		AmountMoto:    p.AmountMoto.String(),
		AmountBattery: p.AmountBattery.String(),
		AmountTotal:   p.AmountTotal.String(),
		DateConcerned: p.DateConcerned.String(),
		DateLimit:     p.DateLimit.String(),
		Method:        p.Method,
		RecordedBy:    p.RecordedBy,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
	}
}

func toPenaltyDTO(p *lease.Penalty) PenaltyDTO {
	dto := PenaltyDTO{
		ID:              string(p.ID),
		ContractID:      string(p.ContractID),
		Type:            string(p.Type),
		Status:          string(p.Status),
		Amount:          p.Amount.String(),
		PaidAmount:      p.PaidAmount.String(),
		RemainingAmount: p.RemainingAmount.String(),
		MissedDate:      p.MissedDate.String(),
		Motive:          p.Motive,
		Description:     p.Description,
		CancelledBy:     p.CancelledBy,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       p.UpdatedAt.Format(time.RFC3339),
	}
	if p.PaymentDueAt != nil {
		dto.PaymentDueAt = p.PaymentDueAt.Format(time.RFC3339)
	}
	return dto
}

func toPenaltyDTOs(penalties []lease.Penalty) []PenaltyDTO {
	dtos := make([]PenaltyDTO, len(penalties))
	for i := range penalties {
		dtos[i] = toPenaltyDTO(&penalties[i])
	}
	return dtos
}

func toLeaveDTO(l *lease.LeaveRequest) LeaveDTO {
	return LeaveDTO{
		ID:         string(l.ID),
		ContractID: string(l.ContractID),
		StartDate:  l.StartDate.String(),
		EndDate:    l.EndDate.String(),
		DayCount:   l.DayCount,
		Status:     string(l.Status),
		Motive:     l.Motive,
		CreatedAt:  l.CreatedAt.Format(time.RFC3339),
	}
}

// parseDecimal parses a JSON string amount, tolerating the empty string as
// zero for optional fields.
func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// statusForError maps domain errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, lease.ErrContractNotFound),
		errors.Is(err, lease.ErrPenaltyNotFound),
		errors.Is(err, lease.ErrLeaveNotFound),
		errors.Is(err, lease.ErrAssociationNotFound):
		return http.StatusNotFound
	case errors.Is(err, lease.ErrPenaltyExists):
		return http.StatusConflict
	case errors.Is(err, lease.ErrDailyCapExceeded),
		errors.Is(err, lease.ErrInvalidAmount),
		errors.Is(err, lease.ErrInvalidTransition),
		errors.Is(err, lease.ErrEmptyJustification),
		errors.Is(err, lease.ErrInsufficientLeaveDays):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
