package tracker

import (
	"context"
	"time"

	"github.com/gmsas95/dosewise/internal/dose"
	"github.com/gmsas95/dosewise/internal/health"
)

// GroupView is a dose group decorated for display.
type GroupView struct {
	dose.DoseGroup
	Status   dose.DoseStatus `json:"status"`
	Relative string          `json:"relative"`
	Context  dose.Context    `json:"context"`
}

// TodayView is everything a dashboard needs for one user at one instant.
type TodayView struct {
	Date      string               `json:"date"`
	Now       time.Time            `json:"now"`
	Groups    []GroupView          `json:"groups"`
	Buckets   dose.Buckets         `json:"buckets"`
	Next      *GroupView           `json:"next,omitempty"`
	Daily     dose.DailyStats      `json:"daily"`
	Dashboard dose.DashboardStats  `json:"dashboard"`
	Week      dose.WeeklyAdherence `json:"week"`
}

func decorate(g dose.DoseGroup, takenLogs []health.MedicationLog, now time.Time) GroupView {
	return GroupView{
		DoseGroup: g,
		Status:    dose.Status(g.Time, g.ScheduleIDs(), takenLogs, now),
		Relative:  dose.RelativeTime(g.Time, now),
		Context:   dose.TimeContext(g.Time, now),
	}
}

// Today builds the view for the tracker's current instant.
func (t *Tracker) Today(ctx context.Context, userID string) (*TodayView, error) {
	return t.TodayAt(ctx, userID, t.Now())
}

// TodayAt builds the view as of now. The cache only serves the tracker's
// own today; other dates read straight from the store.
func (t *Tracker) TodayAt(ctx context.Context, userID string, now time.Time) (*TodayView, error) {
	now = now.In(t.loc)

	meds, schedules, err := t.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	var takenLogs []health.MedicationLog
	if now.Format("2006-01-02") == t.Now().Format("2006-01-02") {
		takenLogs, err = t.todayLogs(ctx, userID, now)
	} else {
		start, end := dayBounds(now)
		takenLogs, err = t.repo.ListLogs(ctx, userID, start, end, health.StatusTaken)
	}
	if err != nil {
		return nil, err
	}

	start, end := dayBounds(now)
	weekLogs, err := t.repo.ListLogs(ctx, userID, start.AddDate(0, 0, -6), end, health.StatusTaken)
	if err != nil {
		return nil, err
	}

	groups := dose.GroupSchedulesForToday(meds, schedules, now)
	view := &TodayView{
		Date:      now.Format("2006-01-02"),
		Now:       now,
		Groups:    make([]GroupView, 0, len(groups)),
		Buckets:   dose.BucketByProximity(groups, takenLogs, now),
		Daily:     dose.Daily(schedules, takenLogs, now),
		Dashboard: dose.Dashboard(groups, takenLogs, now),
		Week:      dose.TrailingWeek(weekLogs, schedules, now),
	}
	for _, g := range groups {
		view.Groups = append(view.Groups, decorate(g, takenLogs, now))
	}
	if next, ok := dose.NextOf(groups, takenLogs, now); ok {
		gv := decorate(next, takenLogs, now)
		view.Next = &gv
	}
	return view, nil
}
