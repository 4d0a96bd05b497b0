package dose

import (
	"time"

	"github.com/gmsas95/dosewise/internal/health"
)

// est keeps local calendar days apart from UTC ones.
var est = time.FixedZone("EST", -5*3600)

// at builds a local instant; 2024-03-11 is a Monday.
func at(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2024, month, day, hour, minute, 0, 0, est)
}

func med(id, name string) health.Medication {
	return health.Medication{ID: id, UserID: "u1", Name: name, Dosage: "10mg"}
}

func sched(id, medID, clock string, days ...health.Weekday) health.Schedule {
	if len(days) == 0 {
		days = health.AllWeekdays
	}
	return health.Schedule{ID: id, MedicationID: medID, UserID: "u1", TimeToTake: clock, DaysOfWeek: days}
}

func taken(scheduleID string, t time.Time) health.MedicationLog {
	return health.MedicationLog{ScheduleID: scheduleID, UserID: "u1", TakenAt: t, Status: health.StatusTaken}
}

func groupTimes(groups []DoseGroup) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.Time
	}
	return out
}
