package dose

import (
	"math"
	"time"

	"github.com/gmsas95/dosewise/internal/health"
)

// DefaultStreakLookback bounds how far back Streak walks.
const DefaultStreakLookback = 90

// DailyStats is today's progress across individual schedules.
type DailyStats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Remaining  int `json:"remaining"`
	Percentage int `json:"percentage"`
}

// Adherence is the expected/taken ratio over a window.
type Adherence struct {
	Expected   int `json:"expected"`
	Taken      int `json:"taken"`
	Percentage int `json:"percentage"`
}

// DayAdherence is one calendar day of a breakdown.
type DayAdherence struct {
	Date    string         `json:"date"`
	Weekday health.Weekday `json:"weekday"`
	Adherence
}

// WeeklyAdherence carries the window total and its per-day breakdown.
type WeeklyAdherence struct {
	Adherence
	Days []DayAdherence `json:"days"`
}

// Patterns summarises when taken logs tend to happen.
type Patterns struct {
	BestTime   string                 `json:"best_time"`
	BestDay    health.Weekday         `json:"best_day"`
	TimeCounts map[string]int         `json:"time_counts"`
	DayCounts  map[health.Weekday]int `json:"day_counts"`
}

// Pattern buckets, in tie-break order.
const (
	BucketMorning   = "morning"
	BucketAfternoon = "afternoon"
	BucketEvening   = "evening"
	BucketNight     = "night"
)

var patternBuckets = []string{BucketMorning, BucketAfternoon, BucketEvening, BucketNight}

func percent(n, d int) int {
	if d <= 0 {
		return 0
	}
	p := int(math.Round(float64(n) / float64(d) * 100))
	if p > 100 {
		return 100
	}
	return p
}

type dayKey struct {
	year  int
	month time.Month
	day   int
}

func keyOf(t time.Time) dayKey {
	y, m, d := t.Date()
	return dayKey{y, m, d}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func activeOn(schedules []health.Schedule, day health.Weekday) map[string]struct{} {
	active := make(map[string]struct{})
	for _, s := range schedules {
		if s.ActiveOn(day) {
			active[s.ID] = struct{}{}
		}
	}
	return active
}

// takenByDay indexes taken logs by local calendar day.
func takenByDay(logs []health.MedicationLog, loc *time.Location) map[dayKey][]health.MedicationLog {
	out := make(map[dayKey][]health.MedicationLog)
	for _, l := range logs {
		if l.Status != health.StatusTaken {
			continue
		}
		k := keyOf(l.TakenAt.In(loc))
		out[k] = append(out[k], l)
	}
	return out
}

// Daily counts today's active schedules and how many have a taken log.
func Daily(schedules []health.Schedule, takenLogsToday []health.MedicationLog, now time.Time) DailyStats {
	today := health.WeekdayOf(now.Weekday())
	logged := make(map[string]struct{}, len(takenLogsToday))
	for _, l := range takenLogsToday {
		logged[l.ScheduleID] = struct{}{}
	}

	var stats DailyStats
	for _, s := range schedules {
		if !s.ActiveOn(today) {
			continue
		}
		stats.Total++
		if _, ok := logged[s.ID]; ok {
			stats.Completed++
		}
	}
	stats.Remaining = stats.Total - stats.Completed
	stats.Percentage = percent(stats.Completed, stats.Total)
	return stats
}

// Breakdown returns one entry per calendar day from start through
// min(end, now). Days after now are never included.
func Breakdown(logs []health.MedicationLog, schedules []health.Schedule, start, end, now time.Time) []DayAdherence {
	loc := now.Location()
	last := midnight(now)
	if e := midnight(end.In(loc)); e.Before(last) {
		last = e
	}

	byDay := takenByDay(logs, loc)
	days := make([]DayAdherence, 0)

	for d := midnight(start.In(loc)); !d.After(last); d = time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, loc) {
		weekday := health.WeekdayOf(d.Weekday())
		active := activeOn(schedules, weekday)

		taken := 0
		for _, l := range byDay[keyOf(d)] {
			if _, ok := active[l.ScheduleID]; ok {
				taken++
			}
		}

		days = append(days, DayAdherence{
			Date:    d.Format("2006-01-02"),
			Weekday: weekday,
			Adherence: Adherence{
				Expected:   len(active),
				Taken:      taken,
				Percentage: percent(taken, len(active)),
			},
		})
	}
	return days
}

func sum(days []DayAdherence) Adherence {
	var a Adherence
	for _, d := range days {
		a.Expected += d.Expected
		a.Taken += d.Taken
	}
	a.Percentage = percent(a.Taken, a.Expected)
	return a
}

// Window aggregates adherence over [start, end] with future days excluded.
func Window(logs []health.MedicationLog, schedules []health.Schedule, start, end, now time.Time) Adherence {
	return sum(Breakdown(logs, schedules, start, end, now))
}

// Monthly aggregates adherence for a calendar month in now's location.
func Monthly(logs []health.MedicationLog, schedules []health.Schedule, year int, month time.Month, now time.Time) Adherence {
	start := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 1, -1)
	return Window(logs, schedules, start, end, now)
}

// Weekly aggregates the seven days starting at weekStart and keeps the per-day breakdown.
func Weekly(logs []health.MedicationLog, schedules []health.Schedule, weekStart, now time.Time) WeeklyAdherence {
	start := midnight(weekStart.In(now.Location()))
	days := Breakdown(logs, schedules, start, start.AddDate(0, 0, 6), now)
	return WeeklyAdherence{Adherence: sum(days), Days: days}
}

// Streak counts consecutive fully adherent days walking back from now.
// Days without active schedules are skipped. An unfinished today neither
// extends nor breaks the streak; any earlier incomplete day ends it.
func Streak(logs []health.MedicationLog, schedules []health.Schedule, now time.Time, maxLookbackDays int) int {
	if maxLookbackDays <= 0 {
		maxLookbackDays = DefaultStreakLookback
	}
	loc := now.Location()
	byDay := takenByDay(logs, loc)
	today := midnight(now)

	streak := 0
	for back := 0; back <= maxLookbackDays; back++ {
		day := time.Date(today.Year(), today.Month(), today.Day()-back, 0, 0, 0, 0, loc)
		active := activeOn(schedules, health.WeekdayOf(day.Weekday()))
		if len(active) == 0 {
			continue
		}

		taken := make(map[string]struct{}, len(active))
		for _, l := range byDay[keyOf(day)] {
			if _, ok := active[l.ScheduleID]; ok {
				taken[l.ScheduleID] = struct{}{}
			}
		}

		if len(taken) == len(active) {
			streak++
			continue
		}
		if back == 0 {
			continue
		}
		break
	}
	return streak
}

func patternBucket(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return BucketMorning
	case hour >= 12 && hour < 17:
		return BucketAfternoon
	case hour >= 17 && hour < 21:
		return BucketEvening
	default:
		return BucketNight
	}
}

// FindPatterns finds the most common time bucket and weekday among taken logs,
// read in loc. Ties go to the earlier of morning, afternoon, evening, night
// and of mon through sun.
func FindPatterns(takenLogs []health.MedicationLog, loc *time.Location) Patterns {
	p := Patterns{
		TimeCounts: make(map[string]int, len(patternBuckets)),
		DayCounts:  make(map[health.Weekday]int, len(health.AllWeekdays)),
	}
	for _, b := range patternBuckets {
		p.TimeCounts[b] = 0
	}
	for _, d := range health.AllWeekdays {
		p.DayCounts[d] = 0
	}

	for _, l := range takenLogs {
		local := l.TakenAt.In(loc)
		p.TimeCounts[patternBucket(local.Hour())]++
		p.DayCounts[health.WeekdayOf(local.Weekday())]++
	}

	best := 0
	for _, b := range patternBuckets {
		if p.TimeCounts[b] > best {
			best = p.TimeCounts[b]
			p.BestTime = b
		}
	}
	best = 0
	for _, d := range health.AllWeekdays {
		if p.DayCounts[d] > best {
			best = p.DayCounts[d]
			p.BestDay = d
		}
	}
	return p
}

// OnTimePercentage is the share of completed groups whose latest taken log
// landed within the grace window of the scheduled time on that log's date.
// With no completed groups it is 100.
func OnTimePercentage(completed []DoseGroup, takenLogs []health.MedicationLog, now time.Time) int {
	if len(completed) == 0 {
		return 100
	}
	loc := now.Location()

	onTime := 0
	for _, g := range completed {
		h, m, err := ParseClock(g.Time)
		if err != nil {
			continue
		}
		ids := make(map[string]struct{}, len(g.Doses))
		for _, id := range g.ScheduleIDs() {
			ids[id] = struct{}{}
		}

		var latest *health.MedicationLog
		for i := range takenLogs {
			l := &takenLogs[i]
			if _, ok := ids[l.ScheduleID]; !ok {
				continue
			}
			if latest == nil || l.TakenAt.After(latest.TakenAt) {
				latest = l
			}
		}
		if latest == nil {
			continue
		}

		at := latest.TakenAt.In(loc)
		scheduled := time.Date(at.Year(), at.Month(), at.Day(), h, m, 0, 0, loc)
		diff := at.Sub(scheduled)
		if diff < 0 {
			diff = -diff
		}
		if diff <= GraceMinutes*time.Minute {
			onTime++
		}
	}
	return percent(onTime, len(completed))
}
