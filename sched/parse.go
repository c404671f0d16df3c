package sched

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Parsed is the normalized result of parsing a schedule phrase
type Parsed struct {
	Type    ScheduleType
	Rule    string // 5-field recurrence expression, empty for one-shot jobs
	NextRun time.Time
}

var (
	reIn          = regexp.MustCompile(`^in (\d+) (minute|hour|day)s?$`)
	reAt          = regexp.MustCompile(`^at (\d{1,2}):(\d{2})$`)
	reDailyAt     = regexp.MustCompile(`^daily at (\d{1,2}):(\d{2})$`)
	reEveryNMin   = regexp.MustCompile(`^every (\d+) minutes?$`)
	reEveryNHour  = regexp.MustCompile(`^every (\d+) hours?$`)
	reRawCronExpr = regexp.MustCompile(`^[\d*/,-]+( [\d*/,-]+){4}$`)
)

// Parse converts a free-form schedule phrase into a normalized schedule.
//
// Recognized forms, first match wins:
//
//	in N minute(s)|hour(s)|day(s)   one-shot at now + N units
//	at HH:MM                        one-shot today, rolling to tomorrow if passed
//	daily at HH:MM                  recurring "MM HH * * *"
//	hourly                          recurring "0 * * * *", next run at top of next hour
//	every N minutes                 recurring "*/N * * * *"
//	every N hours                   recurring "0 */N * * *"
//	raw 5-field expression          recurring, stored verbatim
//
// Anything unrecognized becomes a one-shot job due in one minute. Parsing
// never fails: an unparseable phrase defaults to the soonest schedule rather
// than dropping the job.
func Parse(scheduleText string, now time.Time) Parsed {
	text := strings.ToLower(strings.TrimSpace(scheduleText))

	if m := reIn.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		var unit time.Duration
		switch m[2] {
		case "minute":
			unit = time.Minute
		case "hour":
			unit = time.Hour
		case "day":
			unit = 24 * time.Hour
		}
		return Parsed{Type: ScheduleOnce, NextRun: now.Add(time.Duration(n) * unit)}
	}

	if m := reAt.FindStringSubmatch(text); m != nil {
		if next, ok := nextClockTime(m[1], m[2], now); ok {
			return Parsed{Type: ScheduleOnce, NextRun: next}
		}
	}

	if m := reDailyAt.FindStringSubmatch(text); m != nil {
		if next, ok := nextClockTime(m[1], m[2], now); ok {
			hour, _ := strconv.Atoi(m[1])
			minute, _ := strconv.Atoi(m[2])
			rule := strconv.Itoa(minute) + " " + strconv.Itoa(hour) + " * * *"
			return Parsed{Type: ScheduleRecurring, Rule: rule, NextRun: next}
		}
	}

	if text == "hourly" {
		next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location()).Add(time.Hour)
		return Parsed{Type: ScheduleRecurring, Rule: "0 * * * *", NextRun: next}
	}

	if m := reEveryNMin.FindStringSubmatch(text); m != nil {
		if n, _ := strconv.Atoi(m[1]); n > 0 {
			return Parsed{
				Type:    ScheduleRecurring,
				Rule:    "*/" + m[1] + " * * * *",
				NextRun: now.Add(time.Duration(n) * time.Minute),
			}
		}
	}

	if m := reEveryNHour.FindStringSubmatch(text); m != nil {
		if n, _ := strconv.Atoi(m[1]); n > 0 {
			return Parsed{
				Type:    ScheduleRecurring,
				Rule:    "0 */" + m[1] + " * * *",
				NextRun: now.Add(time.Duration(n) * time.Hour),
			}
		}
	}

	// Raw 5-field expression: stored verbatim, first run in one minute.
	// Exact recurrence evaluation happens in NextAfter after the first run.
	if reRawCronExpr.MatchString(text) {
		return Parsed{Type: ScheduleRecurring, Rule: text, NextRun: now.Add(time.Minute)}
	}

	// Unrecognized: one-shot in one minute so the job is never silently dropped
	return Parsed{Type: ScheduleOnce, NextRun: now.Add(time.Minute)}
}

// nextClockTime returns the next occurrence of HH:MM after now, rolling to
// tomorrow if the time has already passed today. Returns false for out-of-range
// values so the caller can fall through to the next parse form.
func nextClockTime(hourStr, minuteStr string, now time.Time) (time.Time, bool) {
	hour, _ := strconv.Atoi(hourStr)
	minute, _ := strconv.Atoi(minuteStr)
	if hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, true
}
