package sched

import (
	"strconv"
	"strings"
	"time"
)

// NextAfter computes the next due time for a recurrence rule after now.
// Pure and deterministic given (rule, now).
//
// Supported field patterns:
//
//	minute */N (hour *)        next minute boundary divisible by N, or top of next hour
//	hour */N (minute literal)  next hour boundary divisible by N within the day, or midnight tomorrow
//	minute and hour literal    daily fixed-time job
//
// Everything else (day/month/weekday constraints, lists, ranges, bare-* hour
// with literal minute) falls back to now + 1 hour. This is a documented
// coverage limit of the original grammar, not a bug: extending it means
// adding patterns here, never changing the fallback.
func NextAfter(recurrenceRule string, now time.Time) time.Time {
	fields := strings.Fields(recurrenceRule)
	if len(fields) != 5 {
		return now.Add(time.Hour)
	}

	minuteField, hourField := fields[0], fields[1]
	// Day-of-month, month, and weekday constraints are not evaluated
	if fields[2] != "*" || fields[3] != "*" || fields[4] != "*" {
		return now.Add(time.Hour)
	}

	if n, ok := stepOf(minuteField); ok && hourField == "*" {
		return nextMinuteBoundary(now, n)
	}

	if n, ok := stepOf(hourField); ok {
		minute := 0
		if m, err := strconv.Atoi(minuteField); err == nil && m >= 0 && m <= 59 {
			minute = m
		} else if minuteField != "*" {
			return now.Add(time.Hour)
		}
		return nextHourBoundary(now, n, minute)
	}

	if minute, err := strconv.Atoi(minuteField); err == nil && minute >= 0 && minute <= 59 {
		if hour, err := strconv.Atoi(hourField); err == nil && hour >= 0 && hour <= 23 {
			return nextDailyTime(now, hour, minute)
		}
	}

	return now.Add(time.Hour)
}

// stepOf extracts N from a "*/N" field
func stepOf(field string) (int, bool) {
	rest, ok := strings.CutPrefix(field, "*/")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// nextMinuteBoundary finds the next minute in the current hour that is a
// multiple of n, rolling to the top of the next hour when none remains
func nextMinuteBoundary(now time.Time, n int) time.Time {
	base := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	for m := now.Minute() + 1; m <= 59; m++ {
		if m%n == 0 {
			return base.Add(time.Duration(m) * time.Minute)
		}
	}
	return base.Add(time.Hour)
}

// nextHourBoundary finds the next hour today that is a multiple of n, at the
// given minute, rolling to midnight of the next day when none remains
func nextHourBoundary(now time.Time, n int, minute int) time.Time {
	for h := now.Hour(); h <= 23; h++ {
		if h%n != 0 {
			continue
		}
		candidate := time.Date(now.Year(), now.Month(), now.Day(), h, minute, 0, 0, now.Location())
		if candidate.After(now) {
			return candidate
		}
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, minute, 0, 0, now.Location())
	return midnight.AddDate(0, 0, 1)
}

// nextDailyTime returns today at hour:minute if still in the future, else
// tomorrow at that time
func nextDailyTime(now time.Time, hour, minute int) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if candidate.After(now) {
		return candidate
	}
	return candidate.AddDate(0, 0, 1)
}
