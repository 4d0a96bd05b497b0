// Package dose derives today's dose groups, their status and adherence
// aggregates from medications, schedules and logs. Every function is pure:
// the caller supplies now, and local calendar math happens in now.Location().
package dose

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gmsas95/dosewise/internal/health"
)

// Context is a coarse proximity category for a scheduled time.
type Context string

const (
	ContextNow   Context = "now"
	ContextNext  Context = "next"
	ContextLater Context = "later"
)

// Time of day labels attached to dose groups.
const (
	Morning   = "Morning"
	Afternoon = "Afternoon"
	Evening   = "Evening"
)

// ParseClock splits a zero-padded HH:MM string.
func ParseClock(s string) (hour, minute int, err error) {
	if !health.IsClock(s) {
		return 0, 0, fmt.Errorf("invalid clock time %q", s)
	}
	hour, _ = strconv.Atoi(s[:2])
	minute, _ = strconv.Atoi(s[3:])
	return hour, minute, nil
}

// ClockMinutes returns minutes since midnight for an HH:MM string.
func ClockMinutes(s string) (int, bool) {
	h, m, err := ParseClock(s)
	if err != nil {
		return 0, false
	}
	return h*60 + m, true
}

// TimeOfDayLabel classifies a clock time by its hour alone.
func TimeOfDayLabel(clock string) string {
	h, _, err := ParseClock(clock)
	switch {
	case err != nil:
		return ""
	case h < 12:
		return Morning
	case h < 17:
		return Afternoon
	default:
		return Evening
	}
}

// deltaMinutes is the signed wall-clock distance from now to clock on now's
// date, rounded to the nearest minute. It compares local clock readings, so a
// DST shift between the two does not change the result.
func deltaMinutes(clock string, now time.Time) (int, bool) {
	h, m, err := ParseClock(clock)
	if err != nil {
		return 0, false
	}
	elapsed := float64(now.Hour()*3600+now.Minute()*60+now.Second()) + float64(now.Nanosecond())/1e9
	return int(math.Round((float64((h*60+m)*60) - elapsed) / 60)), true
}

// RelativeTime renders how far clock is from now, e.g. "in 15 min" or "2 hours ago".
// Malformed clock strings render as "".
func RelativeTime(clock string, now time.Time) string {
	delta, ok := deltaMinutes(clock, now)
	if !ok {
		return ""
	}

	switch {
	case delta < -60:
		return pluralHours(-delta/60) + " ago"
	case delta < -5:
		return fmt.Sprintf("%d min ago", -delta)
	case delta < 0:
		return "just now"
	case delta <= 5:
		return "due now"
	case delta <= 30:
		return fmt.Sprintf("in %d min", delta)
	case delta < 60:
		return "soon"
	}

	hours, rem := delta/60, delta%60
	if rem != 0 && hours == 1 {
		return fmt.Sprintf("in 1h %dm", rem)
	}
	return "in " + pluralHours(hours)
}

func pluralHours(n int) string {
	if n == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", n)
}

// TimeContext buckets clock relative to now: [-5, 30] is now, (30, 120] is
// next, anything else (including malformed input) is later.
func TimeContext(clock string, now time.Time) Context {
	delta, ok := deltaMinutes(clock, now)
	switch {
	case !ok:
		return ContextLater
	case delta >= -5 && delta <= 30:
		return ContextNow
	case delta > 30 && delta <= 120:
		return ContextNext
	default:
		return ContextLater
	}
}
