package dose

import (
	"testing"
	"time"

	"github.com/gmsas95/dosewise/internal/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboard(t *testing.T) {
	meds := []health.Medication{med("m1", "Lisinopril"), med("m2", "Metformin")}
	schedules := []health.Schedule{
		sched("sA", "m1", "08:00"),
		sched("sC", "m2", "08:00"),
		sched("sD", "m2", "13:00"),
		sched("sB", "m1", "20:00"),
	}
	logs := []health.MedicationLog{
		taken("sA", at(time.March, 11, 8, 10)),
		taken("sC", at(time.March, 11, 8, 20)),
	}
	now := at(time.March, 11, 20, 20)

	groups := GroupSchedulesForToday(meds, schedules, now)
	require.Len(t, groups, 3)

	assert.Equal(t, []string{"08:00"}, groupTimes(CompletedGroups(groups, logs, now)))
	assert.Equal(t, DashboardStats{
		TotalDoses:       4,
		TakenDoses:       2,
		RemainingDoses:   2,
		MissedDoses:      1,
		CompletedGroups:  1,
		OnTimePercentage: 100,
	}, Dashboard(groups, logs, now))
}

func TestDashboardEmpty(t *testing.T) {
	stats := Dashboard(nil, nil, at(time.March, 11, 12, 0))
	assert.Equal(t, DashboardStats{OnTimePercentage: 100}, stats)
}

func TestTrailingWeek(t *testing.T) {
	schedules, logs := adherenceFixture()
	now := at(time.March, 13, 12, 0)

	week := TrailingWeek(logs, schedules, now)
	require.Len(t, week.Days, 7)
	assert.Equal(t, "2024-03-07", week.Days[0].Date)
	assert.Equal(t, "2024-03-13", week.Days[6].Date)

	// Mar 7-13: seven daily doses plus fri, mon, wed evenings
	assert.Equal(t, 10, week.Expected)
	assert.Equal(t, 4, week.Taken)
	assert.Equal(t, 40, week.Percentage)
}
