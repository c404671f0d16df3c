package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Fixed reference point: Tuesday 2025-03-11 10:30:00 local
var parseNow = time.Date(2025, 3, 11, 10, 30, 0, 0, time.UTC)

func TestParseInNMinutes(t *testing.T) {
	p := Parse("in 5 minutes", parseNow)

	assert.Equal(t, ScheduleOnce, p.Type)
	assert.Empty(t, p.Rule)
	assert.Equal(t, parseNow.Add(5*time.Minute), p.NextRun)
}

func TestParseInSingularUnit(t *testing.T) {
	p := Parse("in 1 hour", parseNow)

	assert.Equal(t, ScheduleOnce, p.Type)
	assert.Equal(t, parseNow.Add(time.Hour), p.NextRun)
}

func TestParseInNDays(t *testing.T) {
	p := Parse("in 2 days", parseNow)

	assert.Equal(t, ScheduleOnce, p.Type)
	assert.Equal(t, parseNow.Add(48*time.Hour), p.NextRun)
}

func TestParseAtTimeStillAhead(t *testing.T) {
	// 14:00 is later today relative to 10:30
	p := Parse("at 14:00", parseNow)

	assert.Equal(t, ScheduleOnce, p.Type)
	assert.Equal(t, time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC), p.NextRun)
}

func TestParseAtTimeAlreadyPassedRollsToTomorrow(t *testing.T) {
	// 08:00 already passed at 10:30, so tomorrow
	p := Parse("at 08:00", parseNow)

	assert.Equal(t, ScheduleOnce, p.Type)
	assert.Equal(t, time.Date(2025, 3, 12, 8, 0, 0, 0, time.UTC), p.NextRun)
}

func TestParseDailyAt(t *testing.T) {
	p := Parse("daily at 09:00", parseNow)

	assert.Equal(t, ScheduleRecurring, p.Type)
	assert.Equal(t, "0 9 * * *", p.Rule)
	// 09:00 already passed, first run is tomorrow
	assert.Equal(t, time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC), p.NextRun)
}

func TestParseHourly(t *testing.T) {
	p := Parse("hourly", parseNow)

	assert.Equal(t, ScheduleRecurring, p.Type)
	assert.Equal(t, "0 * * * *", p.Rule)
	assert.Equal(t, time.Date(2025, 3, 11, 11, 0, 0, 0, time.UTC), p.NextRun)
}

func TestParseEveryNMinutes(t *testing.T) {
	p := Parse("every 15 minutes", parseNow)

	assert.Equal(t, ScheduleRecurring, p.Type)
	assert.Equal(t, "*/15 * * * *", p.Rule)
	assert.Equal(t, parseNow.Add(15*time.Minute), p.NextRun)
}

func TestParseEveryNHours(t *testing.T) {
	p := Parse("every 6 hours", parseNow)

	assert.Equal(t, ScheduleRecurring, p.Type)
	assert.Equal(t, "0 */6 * * *", p.Rule)
	assert.Equal(t, parseNow.Add(6*time.Hour), p.NextRun)
}

func TestParseRawExpressionStoredVerbatim(t *testing.T) {
	p := Parse("30 2 * * *", parseNow)

	assert.Equal(t, ScheduleRecurring, p.Type)
	assert.Equal(t, "30 2 * * *", p.Rule)
	assert.Equal(t, parseNow.Add(time.Minute), p.NextRun)
}

func TestParseCaseAndWhitespaceInsensitive(t *testing.T) {
	p := Parse("  Every 10 Minutes  ", parseNow)

	assert.Equal(t, ScheduleRecurring, p.Type)
	assert.Equal(t, "*/10 * * * *", p.Rule)
}

func TestParseUnrecognizedFallsBackToOneShot(t *testing.T) {
	for _, text := range []string{
		"whenever you feel like it",
		"at 99:99",
		"every 0 minutes",
		"",
	} {
		p := Parse(text, parseNow)

		assert.Equal(t, ScheduleOnce, p.Type, "phrase %q", text)
		assert.Empty(t, p.Rule, "phrase %q", text)
		assert.Equal(t, parseNow.Add(time.Minute), p.NextRun, "phrase %q", text)
	}
}
