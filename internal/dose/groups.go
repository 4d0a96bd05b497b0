package dose

import (
	"sort"
	"time"

	"github.com/gmsas95/dosewise/internal/health"
)

// DoseStatus is the per-group state for today.
type DoseStatus string

const (
	StatusCompleted DoseStatus = "completed"
	StatusCurrent   DoseStatus = "current"
	StatusUpcoming  DoseStatus = "upcoming"
	StatusMissed    DoseStatus = "missed"
)

// GraceMinutes is the half-width of the window in which a dose counts as current.
const GraceMinutes = 30

// ScheduledDose pairs a schedule with its resolved medication.
type ScheduledDose struct {
	Schedule   health.Schedule   `json:"schedule"`
	Medication health.Medication `json:"medication"`
}

// DoseGroup collects every schedule active today at the same clock time.
// Groups are view models; their identity is Time.
type DoseGroup struct {
	Time      string          `json:"time"`
	TimeOfDay string          `json:"time_of_day"`
	Doses     []ScheduledDose `json:"doses"`
}

// ScheduleIDs lists the schedules in the group, in dose order.
func (g DoseGroup) ScheduleIDs() []string {
	ids := make([]string, len(g.Doses))
	for i, d := range g.Doses {
		ids[i] = d.Schedule.ID
	}
	return ids
}

// GroupSchedulesForToday builds the dose groups for now's local weekday,
// sorted by time. Schedules whose medication is unknown or whose time is
// malformed are dropped.
func GroupSchedulesForToday(meds []health.Medication, schedules []health.Schedule, now time.Time) []DoseGroup {
	byID := make(map[string]health.Medication, len(meds))
	for _, m := range meds {
		byID[m.ID] = m
	}

	today := health.WeekdayOf(now.Weekday())
	index := make(map[string]int)
	groups := make([]DoseGroup, 0)

	for _, s := range schedules {
		if !s.ActiveOn(today) || !health.IsClock(s.TimeToTake) {
			continue
		}
		med, ok := byID[s.MedicationID]
		if !ok {
			continue
		}

		i, seen := index[s.TimeToTake]
		if !seen {
			i = len(groups)
			index[s.TimeToTake] = i
			groups = append(groups, DoseGroup{
				Time:      s.TimeToTake,
				TimeOfDay: TimeOfDayLabel(s.TimeToTake),
			})
		}
		groups[i].Doses = append(groups[i].Doses, ScheduledDose{Schedule: s, Medication: med})
	}

	// HH:MM is zero padded so string order is time order
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].Time < groups[b].Time })
	return groups
}

// allTaken reports whether every schedule id has at least one log.
func allTaken(scheduleIDs []string, takenLogs []health.MedicationLog) bool {
	logged := make(map[string]struct{}, len(takenLogs))
	for _, l := range takenLogs {
		logged[l.ScheduleID] = struct{}{}
	}
	for _, id := range scheduleIDs {
		if _, ok := logged[id]; !ok {
			return false
		}
	}
	return true
}

// Status computes the state of the dose at doseTime. takenLogs is expected to
// hold today's taken logs; presence of any log for every schedule id
// completes the dose.
func Status(doseTime string, scheduleIDs []string, takenLogs []health.MedicationLog, now time.Time) DoseStatus {
	if allTaken(scheduleIDs, takenLogs) {
		return StatusCompleted
	}

	doseMinutes, ok := ClockMinutes(doseTime)
	if !ok {
		return StatusUpcoming
	}
	nowMinutes := now.Hour()*60 + now.Minute()

	switch {
	case nowMinutes > doseMinutes+GraceMinutes:
		return StatusMissed
	case nowMinutes >= doseMinutes-GraceMinutes:
		return StatusCurrent
	default:
		return StatusUpcoming
	}
}

// NextDose picks the single group to foreground: the latest overdue group,
// otherwise the first group not yet past, otherwise none.
func NextDose(meds []health.Medication, schedules []health.Schedule, takenLogs []health.MedicationLog, now time.Time) (DoseGroup, bool) {
	return NextOf(GroupSchedulesForToday(meds, schedules, now), takenLogs, now)
}

// NextOf applies the NextDose selection to groups that were already built.
func NextOf(groups []DoseGroup, takenLogs []health.MedicationLog, now time.Time) (DoseGroup, bool) {
	nowClock := now.Format("15:04")

	var overdue, upcoming []DoseGroup
	for _, g := range groups {
		ids := g.ScheduleIDs()
		if allTaken(ids, takenLogs) {
			continue
		}
		if Status(g.Time, ids, takenLogs, now) == StatusMissed {
			overdue = append(overdue, g)
		}
		if g.Time >= nowClock {
			upcoming = append(upcoming, g)
		}
	}

	if len(overdue) > 0 {
		return overdue[len(overdue)-1], true
	}
	if len(upcoming) > 0 {
		return upcoming[0], true
	}
	return DoseGroup{}, false
}
