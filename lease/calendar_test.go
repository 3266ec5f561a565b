/*
calendar_test.go - Day type and skip-Sunday arithmetic
*/
package lease_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lease-engine/lease"
)

func TestCalendar_NextWorkingDay_SkipsSunday(t *testing.T) {
	saturday := lease.NewDay(2024, time.January, 6)
	monday := lease.NewDay(2024, time.January, 8)

	next := lease.NextWorkingDay(saturday)
	assert.True(t, next.Equal(monday), "got %s", next)

	// Friday -> Saturday: Saturday is a business day.
	friday := lease.NewDay(2024, time.January, 5)
	assert.True(t, lease.NextWorkingDay(friday).Equal(saturday))
}

func TestCalendar_NextWorkingDay_NeverLandsOnSunday(t *testing.T) {
	day := lease.NewDay(2024, time.January, 1)
	for i := 0; i < 60; i++ {
		day = lease.NextWorkingDay(day)
		assert.False(t, day.IsSunday(), "%s is a Sunday", day)
	}
}

func TestCalendar_AddSubtractSkipSunday_RoundTrips(t *testing.T) {
	// Stepping n business days forward then n back must return the exact
	// starting date, whatever the weekday; leave approval and revocation
	// rely on this.
	start := lease.NewDay(2024, time.January, 1)
	for offset := 0; offset < 7; offset++ {
		from := start.AddDays(offset)
		if from.IsSunday() {
			continue
		}
		for n := 1; n <= 15; n++ {
			shifted := lease.AddDaysSkipSunday(from, n)
			assert.False(t, shifted.IsSunday())
			back := lease.SubtractDaysSkipSunday(shifted, n)
			assert.True(t, back.Equal(from), "from=%s n=%d shifted=%s back=%s", from, n, shifted, back)
		}
	}
}

func TestCalendar_AddDaysSkipSunday_CountsBusinessDays(t *testing.T) {
	// Friday + 2 business days: Saturday, then Monday (Sunday skipped).
	friday := lease.NewDay(2024, time.January, 5)
	got := lease.AddDaysSkipSunday(friday, 2)
	assert.True(t, got.Equal(lease.NewDay(2024, time.January, 8)), "got %s", got)
}

func TestCalendar_ParseDay_RoundTrips(t *testing.T) {
	day, err := lease.ParseDay("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", day.String())

	_, err = lease.ParseDay("29/02/2024")
	assert.Error(t, err)
}

func TestCalendar_DayOf_UsesLocation(t *testing.T) {
	// 01:00 UTC on Jan 6 is still Jan 5 in a UTC-3 location.
	loc := time.FixedZone("UTC-3", -3*60*60)
	instant := time.Date(2024, time.January, 6, 1, 0, 0, 0, time.UTC)

	assert.Equal(t, "2024-01-05", lease.DayOf(instant, loc).String())
	assert.Equal(t, "2024-01-06", lease.DayOf(instant, time.UTC).String())
}

func TestCalendar_DaysBetween(t *testing.T) {
	from := lease.NewDay(2024, time.January, 2)
	to := lease.NewDay(2024, time.January, 6)
	assert.Equal(t, 4, lease.DaysBetween(from, to))
	assert.Equal(t, -4, lease.DaysBetween(to, from))
}
