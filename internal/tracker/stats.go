package tracker

import (
	"context"
	"time"

	"github.com/gmsas95/dosewise/internal/dose"
	apperrors "github.com/gmsas95/dosewise/internal/errors"
	"github.com/gmsas95/dosewise/internal/health"
)

// Monthly is adherence for a calendar month, up to today.
func (t *Tracker) Monthly(ctx context.Context, userID string, year int, month time.Month) (dose.Adherence, error) {
	if month < time.January || month > time.December {
		return dose.Adherence{}, apperrors.New(apperrors.ErrBadRequest.Code, "month must be 1-12")
	}
	now := t.Now()
	schedules, err := t.repo.ListSchedules(ctx, userID)
	if err != nil {
		return dose.Adherence{}, err
	}

	start := time.Date(year, month, 1, 0, 0, 0, 0, t.loc)
	logs, err := t.repo.ListLogs(ctx, userID, start, start.AddDate(0, 1, 0), health.StatusTaken)
	if err != nil {
		return dose.Adherence{}, err
	}
	return dose.Monthly(logs, schedules, year, month, now), nil
}

// Weekly is adherence for the seven days from weekStart. A zero weekStart
// means the Monday of the current week.
func (t *Tracker) Weekly(ctx context.Context, userID string, weekStart time.Time) (dose.WeeklyAdherence, error) {
	now := t.Now()
	if weekStart.IsZero() {
		weekStart = MondayOf(now)
	}
	start, _ := dayBounds(weekStart.In(t.loc))

	schedules, err := t.repo.ListSchedules(ctx, userID)
	if err != nil {
		return dose.WeeklyAdherence{}, err
	}
	logs, err := t.repo.ListLogs(ctx, userID, start, start.AddDate(0, 0, 7), health.StatusTaken)
	if err != nil {
		return dose.WeeklyAdherence{}, err
	}
	return dose.Weekly(logs, schedules, start, now), nil
}

// Streak is the current perfect-day streak.
func (t *Tracker) Streak(ctx context.Context, userID string) (int, error) {
	return t.StreakWithin(ctx, userID, t.lookback)
}

// StreakWithin is Streak with a caller-chosen lookback.
func (t *Tracker) StreakWithin(ctx context.Context, userID string, lookback int) (int, error) {
	if lookback <= 0 {
		lookback = t.lookback
	}
	now := t.Now()
	schedules, err := t.repo.ListSchedules(ctx, userID)
	if err != nil {
		return 0, err
	}

	today, tomorrow := dayBounds(now)
	logs, err := t.repo.ListLogs(ctx, userID, today.AddDate(0, 0, -lookback), tomorrow, health.StatusTaken)
	if err != nil {
		return 0, err
	}
	return dose.Streak(logs, schedules, now, lookback), nil
}

// Patterns looks at taken logs over the last days days, today included.
func (t *Tracker) Patterns(ctx context.Context, userID string, days int) (dose.Patterns, error) {
	if days <= 0 {
		days = 30
	}
	today, tomorrow := dayBounds(t.Now())
	logs, err := t.repo.ListLogs(ctx, userID, today.AddDate(0, 0, 1-days), tomorrow, health.StatusTaken)
	if err != nil {
		return dose.Patterns{}, err
	}
	return dose.FindPatterns(logs, t.loc), nil
}

// HistoryEntry is a log joined with what it was logged against.
type HistoryEntry struct {
	Log        health.MedicationLog `json:"log"`
	Schedule   health.Schedule      `json:"schedule"`
	Medication health.Medication    `json:"medication"`
}

// History lists every log in [from, to) with its schedule and medication.
// Logs whose schedule no longer resolves are left out.
func (t *Tracker) History(ctx context.Context, userID string, from, to time.Time) ([]HistoryEntry, error) {
	meds, schedules, err := t.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	logs, err := t.repo.ListLogs(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	medByID := make(map[string]health.Medication, len(meds))
	for _, m := range meds {
		medByID[m.ID] = m
	}
	schedByID := make(map[string]health.Schedule, len(schedules))
	for _, s := range schedules {
		schedByID[s.ID] = s
	}

	entries := make([]HistoryEntry, 0, len(logs))
	for _, l := range logs {
		s, ok := schedByID[l.ScheduleID]
		if !ok {
			continue
		}
		l.TakenAt = l.TakenAt.In(t.loc)
		entries = append(entries, HistoryEntry{Log: l, Schedule: s, Medication: medByID[s.MedicationID]})
	}
	return entries, nil
}

// MondayOf returns midnight of the Monday on or before t.
func MondayOf(t time.Time) time.Time {
	start, _ := dayBounds(t)
	offset := (int(start.Weekday()) + 6) % 7
	return start.AddDate(0, 0, -offset)
}
