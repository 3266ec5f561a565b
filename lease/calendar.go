package lease

import (
	"fmt"
	"time"
)

// =============================================================================
// DAY - Civil date at day granularity
// =============================================================================

// Day is a calendar date with no time-of-day component. The zero value is
// the zero date. Days are stored normalized to midnight UTC so equality and
// map keys behave.
type Day struct {
	t time.Time
}

// NewDay builds a Day from a civil date.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf extracts the calendar date of an instant in the given location.
func DayOf(at time.Time, loc *time.Location) Day {
	y, m, d := at.In(loc).Date()
	return NewDay(y, m, d)
}

// ParseDay parses "2006-01-02".
func ParseDay(s string) (Day, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return Day{t: t}, nil
}

// At returns the instant at the given local hour on this day.
func (d Day) At(hour int, loc *time.Location) time.Time {
	return time.Date(d.t.Year(), d.t.Month(), d.t.Day(), hour, 0, 0, 0, loc)
}

func (d Day) AddDays(n int) Day          { return Day{t: d.t.AddDate(0, 0, n)} }
func (d Day) Before(other Day) bool      { return d.t.Before(other.t) }
func (d Day) After(other Day) bool       { return d.t.After(other.t) }
func (d Day) Equal(other Day) bool       { return d.t.Equal(other.t) }
func (d Day) BeforeOrEqual(o Day) bool   { return !d.After(o) }
func (d Day) AfterOrEqual(o Day) bool    { return !d.Before(o) }
func (d Day) Weekday() time.Weekday      { return d.t.Weekday() }
func (d Day) IsSunday() bool             { return d.t.Weekday() == time.Sunday }
func (d Day) IsZero() bool               { return d.t.IsZero() }
func (d Day) Time() time.Time            { return d.t }
func (d Day) String() string             { return d.t.Format("2006-01-02") }

// DaysBetween returns to - from in whole days.
func DaysBetween(from, to Day) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}

// =============================================================================
// SKIP-SUNDAY ARITHMETIC
// =============================================================================
// Sunday is never a valid business day: obligations fall on every other
// weekday, Saturdays included.

// NextWorkingDay returns the day after d, skipping Sundays.
func NextWorkingDay(d Day) Day {
	next := d.AddDays(1)
	for next.IsSunday() {
		next = next.AddDays(1)
	}
	return next
}

// AddDaysSkipSunday advances d by n non-Sunday days, one calendar day at a
// time, re-advancing past any Sunday.
func AddDaysSkipSunday(d Day, n int) Day {
	result := d
	for i := 0; i < n; i++ {
		result = result.AddDays(1)
		for result.IsSunday() {
			result = result.AddDays(1)
		}
	}
	return result
}

// SubtractDaysSkipSunday is the exact mirror of AddDaysSkipSunday: stepping
// n forward then n backward returns the original date.
func SubtractDaysSkipSunday(d Day, n int) Day {
	result := d
	for i := 0; i < n; i++ {
		result = result.AddDays(-1)
		for result.IsSunday() {
			result = result.AddDays(-1)
		}
	}
	return result
}
