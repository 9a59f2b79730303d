// Package timeparse extracts date/time expressions from natural language
// message text, resolving them forward from a reference instant. It is the
// default implementation of the date extraction capability used by the
// intent classifier; the classifier only depends on the interface, so a
// different extractor can be swapped in.
//
// Supported expressions:
//   - "in N minutes/hours/seconds"
//   - "tomorrow [at H[:MM][am|pm]]"
//   - "today [at H[:MM][am|pm]]"
//   - "[on] <weekday> [at H[:MM][am|pm]]"
//   - "at H:MM[am|pm]" / "at Ham|pm" (today if still ahead, else tomorrow)
package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Match is one extracted time expression.
type Match struct {
	// Text is the matched span, exactly as it appears in the input.
	// Callers strip it from the message to recover the payload text.
	Text string

	// Time is the resolved fire time in the reference location.
	Time time.Time

	// HasClockTime reports whether the expression carried an explicit
	// clock time. Day-only expressions ("tomorrow") resolve to midnight
	// and leave this false.
	HasClockTime bool
}

// clock matches "9", "9am", "9:30", "9:30pm", "14:30".
const clock = `\d{1,2}(?::\d{2})?\s*(?:am|pm)?`

var (
	reInDuration = regexp.MustCompile(`(?i)\bin\s+(\d+)\s+(second|minute|hour|sec|min|hr)s?\b`)
	reTimeFirst  = regexp.MustCompile(`(?i)\bat\s+(` + clock + `)\s+(tomorrow|today)\b`)
	reDayAt      = regexp.MustCompile(`(?i)\b(tomorrow|today)(?:\s+at\s+(` + clock + `))?\b`)
	reWeekdayAt  = regexp.MustCompile(`(?i)\b(?:on\s+)?(sunday|monday|tuesday|wednesday|thursday|friday|saturday|sun|mon|tue|wed|thu|fri|sat)(?:\s+at\s+(` + clock + `))?\b`)
	reAtTime     = regexp.MustCompile(`(?i)\bat\s+(\d{1,2}:\d{2}\s*(?:am|pm)?|\d{1,2}\s*(?:am|pm))\b`)
)

// Parse extracts time expressions from text relative to ref. Rules are tried
// in priority order and the first match wins; at most one Match is returned.
// An empty slice means no expression was found.
func Parse(text string, ref time.Time) []Match {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	// "in N minutes"
	if m := reInDuration.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		if d := durationUnit(m[2]); n > 0 && d > 0 {
			return []Match{{
				Text:         m[0],
				Time:         ref.Add(time.Duration(n) * d),
				HasClockTime: true,
			}}
		}
	}

	// "at 3pm tomorrow" (time before the day qualifier)
	if m := reTimeFirst.FindStringSubmatch(text); m != nil {
		if hour, minute := parseClock(m[1]); hour >= 0 {
			day := dayOffset(m[2], ref)
			return []Match{{
				Text:         m[0],
				Time:         atClock(day, hour, minute),
				HasClockTime: true,
			}}
		}
	}

	// "tomorrow [at 3pm]", "today [at 3pm]"
	if m := reDayAt.FindStringSubmatch(text); m != nil {
		day := dayOffset(m[1], ref)
		if m[2] == "" {
			return []Match{{Text: m[0], Time: atClock(day, 0, 0)}}
		}
		if hour, minute := parseClock(m[2]); hour >= 0 {
			return []Match{{
				Text:         m[0],
				Time:         atClock(day, hour, minute),
				HasClockTime: true,
			}}
		}
	}

	// "[on] friday [at 3pm]"
	if m := reWeekdayAt.FindStringSubmatch(text); m != nil {
		if dow := parseDayOfWeek(m[1]); dow >= 0 {
			if m[2] == "" {
				return []Match{{Text: m[0], Time: nextWeekday(ref, time.Weekday(dow), 0, 0)}}
			}
			if hour, minute := parseClock(m[2]); hour >= 0 {
				return []Match{{
					Text:         m[0],
					Time:         nextWeekday(ref, time.Weekday(dow), hour, minute),
					HasClockTime: true,
				}}
			}
		}
	}

	// bare "at 3pm" — soonest future occurrence of that clock time.
	if m := reAtTime.FindStringSubmatch(text); m != nil {
		if hour, minute := parseClock(m[1]); hour >= 0 {
			target := atClock(ref, hour, minute)
			if !target.After(ref) {
				target = target.AddDate(0, 0, 1)
			}
			return []Match{{Text: m[0], Time: target, HasClockTime: true}}
		}
	}

	return nil
}

// ---------- Helpers ----------

// durationUnit maps a unit word to its time.Duration base.
func durationUnit(unit string) time.Duration {
	switch strings.TrimSuffix(strings.ToLower(unit), "s") {
	case "second", "sec":
		return time.Second
	case "minute", "min":
		return time.Minute
	case "hour", "hr":
		return time.Hour
	default:
		return 0
	}
}

// parseClock parses "9", "9am", "9:30", "3:30pm", "14:30".
// Returns hour (0-23) and minute, or (-1, 0) on failure.
// A bare hour with "pm" adds 12 unless already >= 12; "12am" maps to 0.
func parseClock(s string) (int, int) {
	s = strings.TrimSpace(strings.ToLower(s))

	isPM := strings.HasSuffix(s, "pm")
	isAM := strings.HasSuffix(s, "am")
	if isPM || isAM {
		s = strings.TrimSpace(s[:len(s)-2])
	}

	parts := strings.SplitN(s, ":", 2)
	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || hour < 0 || hour > 23 {
		return -1, 0
	}

	minute := 0
	if len(parts) == 2 {
		minute, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || minute < 0 || minute > 59 {
			return -1, 0
		}
	}

	if isPM && hour < 12 {
		hour += 12
	}
	if isAM && hour == 12 {
		hour = 0
	}

	return hour, minute
}

// parseDayOfWeek converts a day name to time.Weekday numbering (0=Sunday).
func parseDayOfWeek(day string) int {
	switch strings.ToLower(day) {
	case "sunday", "sun":
		return 0
	case "monday", "mon":
		return 1
	case "tuesday", "tue":
		return 2
	case "wednesday", "wed":
		return 3
	case "thursday", "thu":
		return 4
	case "friday", "fri":
		return 5
	case "saturday", "sat":
		return 6
	default:
		return -1
	}
}

// dayOffset returns ref shifted to the named relative day.
func dayOffset(word string, ref time.Time) time.Time {
	if strings.EqualFold(word, "tomorrow") {
		return ref.AddDate(0, 0, 1)
	}
	return ref
}

// atClock returns day's date at the given clock time, in day's location.
func atClock(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

// nextWeekday resolves the soonest occurrence of dow at the given clock
// time, at or after ref (next week if today's occurrence already passed).
func nextWeekday(ref time.Time, dow time.Weekday, hour, minute int) time.Time {
	days := (int(dow) - int(ref.Weekday()) + 7) % 7
	target := atClock(ref.AddDate(0, 0, days), hour, minute)
	if !target.After(ref) {
		target = target.AddDate(0, 0, 7)
	}
	return target
}
