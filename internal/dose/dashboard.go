package dose

import (
	"time"

	"github.com/gmsas95/dosewise/internal/health"
)

// DashboardStats are today's headline numbers. Dose counts are per schedule.
type DashboardStats struct {
	TotalDoses       int `json:"total_doses"`
	TakenDoses       int `json:"taken_doses"`
	RemainingDoses   int `json:"remaining_doses"`
	MissedDoses      int `json:"missed_doses"`
	CompletedGroups  int `json:"completed_groups"`
	OnTimePercentage int `json:"on_time_percentage"`
}

// CompletedGroups keeps the groups whose status is completed.
func CompletedGroups(groups []DoseGroup, takenLogs []health.MedicationLog, now time.Time) []DoseGroup {
	done := make([]DoseGroup, 0)
	for _, g := range groups {
		if Status(g.Time, g.ScheduleIDs(), takenLogs, now) == StatusCompleted {
			done = append(done, g)
		}
	}
	return done
}

// Dashboard summarises today's groups.
func Dashboard(groups []DoseGroup, takenLogs []health.MedicationLog, now time.Time) DashboardStats {
	logged := make(map[string]struct{}, len(takenLogs))
	for _, l := range takenLogs {
		logged[l.ScheduleID] = struct{}{}
	}

	var stats DashboardStats
	completed := make([]DoseGroup, 0)
	for _, g := range groups {
		status := Status(g.Time, g.ScheduleIDs(), takenLogs, now)
		if status == StatusCompleted {
			completed = append(completed, g)
		}
		for _, d := range g.Doses {
			stats.TotalDoses++
			if _, ok := logged[d.Schedule.ID]; ok {
				stats.TakenDoses++
			} else if status == StatusMissed {
				stats.MissedDoses++
			}
		}
	}

	stats.RemainingDoses = stats.TotalDoses - stats.TakenDoses
	stats.CompletedGroups = len(completed)
	stats.OnTimePercentage = OnTimePercentage(completed, takenLogs, now)
	return stats
}

// TrailingWeek is adherence over the seven days ending today.
func TrailingWeek(logs []health.MedicationLog, schedules []health.Schedule, now time.Time) WeeklyAdherence {
	today := midnight(now)
	return Weekly(logs, schedules, time.Date(today.Year(), today.Month(), today.Day()-6, 0, 0, 0, 0, now.Location()), now)
}
