package lease

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config carries the business constants the scheduler and services depend
// on. Injected everywhere so tests can vary them; nothing in the engine
// reads package-level globals.
type Config struct {
	// Penalty amounts per tier.
	LightAmount  decimal.Decimal
	SevereAmount decimal.Decimal

	// GraceHour is the local hour on day+1 before which a payment for day
	// still counts as on time. The reference system fixes this at 04:00
	// even though the window is named "noon" - keep the literal instant.
	GraceHour int

	// LateCutoffHour is the local hour on day+1 up to which a late payment
	// keeps the penalty at the light tier instead of escalating.
	LateCutoffHour int

	// DailyPaymentCap is the maximum number of payments a contract may
	// record within one local calendar day.
	DailyPaymentCap int

	// PenaltyGracePeriod is how long after creation an unsettled penalty
	// starts locking the swap.
	PenaltyGracePeriod time.Duration

	// Location resolves "local" for calendar days, deadlines and window
	// selection.
	Location *time.Location
}

// DefaultConfig returns the production constants of the reference system.
func DefaultConfig() Config {
	return Config{
		LightAmount:        decimal.NewFromInt(2000),
		SevereAmount:       decimal.NewFromInt(5000),
		GraceHour:          4,
		LateCutoffHour:     14,
		DailyPaymentCap:    2,
		PenaltyGracePeriod: 72 * time.Hour,
		Location:           time.Local,
	}
}

// GraceDeadline is the instant by which day's obligation must have been
// paid: day+1 at GraceHour local.
func (c Config) GraceDeadline(day Day) time.Time {
	return day.AddDays(1).At(c.GraceHour, c.Location)
}

// LateCutoff is the second chance instant: day+1 at LateCutoffHour local.
// Payments landing in (GraceDeadline, LateCutoff] keep the penalty light.
func (c Config) LateCutoff(day Day) time.Time {
	return day.AddDays(1).At(c.LateCutoffHour, c.Location)
}
