package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/gmsas95/dosewise/internal/dose"
	apperrors "github.com/gmsas95/dosewise/internal/errors"
	"github.com/gmsas95/dosewise/internal/health"
	"go.uber.org/zap"
)

// MarkResult reports what a MarkTaken call wrote.
type MarkResult struct {
	Time    string                 `json:"time"`
	Logged  []health.MedicationLog `json:"logged"`
	Already []string               `json:"already_taken"`
}

// MarkTaken logs every schedule of today's group at doseTime that has no
// taken log yet. Calling it again for the same group writes nothing.
//
// The cached view is updated before the write and reverted if the write
// fails, so concurrent readers see the dose as taken immediately.
func (t *Tracker) MarkTaken(ctx context.Context, userID, doseTime, notes string) (*MarkResult, error) {
	if !health.IsClock(doseTime) {
		return nil, apperrors.New(apperrors.ErrBadRequest.Code, "dose time must be HH:MM")
	}
	now := t.Now()

	meds, schedules, err := t.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	var group *dose.DoseGroup
	for _, g := range dose.GroupSchedulesForToday(meds, schedules, now) {
		if g.Time == doseTime {
			group = &g
			break
		}
	}
	if group == nil {
		return nil, apperrors.ErrNoDoseAtTime
	}

	loaded, err := t.todayLogs(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	result := &MarkResult{Time: doseTime, Logged: []health.MedicationLog{}, Already: []string{}}
	pending, already := t.claim(userID, now, loaded, group.ScheduleIDs(), now, notes)
	for _, l := range already {
		result.Already = append(result.Already, l.ScheduleID)
	}
	if len(pending) == 0 {
		return result, nil
	}

	created, err := t.write(ctx, pending)
	if err != nil {
		t.rollback(userID, pending)
		t.metrics.RecordRollback()
		t.logger.Warn("Dose write failed, rolled back",
			zap.String("user_id", userID),
			zap.String("time", doseTime),
			zap.Int("doses", len(pending)),
			zap.Error(err))
		return nil, err
	}

	t.reconcile(userID, created)
	t.metrics.RecordDosesLogged(string(health.StatusTaken), len(created))
	t.logger.Info("Doses marked taken",
		zap.String("user_id", userID),
		zap.String("time", doseTime),
		zap.Int("doses", len(created)))

	result.Logged = created
	return result, nil
}

// claim appends optimistic logs for the schedules not yet taken and
// returns them along with the entries that already cover the rest. Holding
// the lock across the check and the append keeps concurrent calls from
// logging the same schedule twice. loaded reseeds the cache if it was
// invalidated in the meantime.
func (t *Tracker) claim(userID string, now time.Time, loaded []health.MedicationLog, scheduleIDs []string, takenAt time.Time, notes string) (pending, already []health.MedicationLog) {
	t.mu.Lock()
	defer t.mu.Unlock()

	date := now.Format("2006-01-02")
	entry, ok := t.today[userID]
	if !ok || entry.date != date {
		entry = &dayLogs{date: date, logs: loaded}
		t.today[userID] = entry
	}
	logged := make(map[string]health.MedicationLog, len(entry.logs))
	for _, l := range entry.logs {
		logged[l.ScheduleID] = l
	}

	for _, id := range scheduleIDs {
		if l, ok := logged[id]; ok {
			already = append(already, l)
			continue
		}
		pending = append(pending, health.MedicationLog{
			ID:         newLogID(),
			ScheduleID: id,
			UserID:     userID,
			TakenAt:    takenAt,
			Status:     health.StatusTaken,
			Notes:      notes,
		})
	}
	entry.logs = append(entry.logs, pending...)
	return pending, already
}

// rollback removes the optimistic entries again.
func (t *Tracker) rollback(userID string, optimistic []health.MedicationLog) {
	drop := make(map[string]struct{}, len(optimistic))
	for _, l := range optimistic {
		drop[l.ID] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.today[userID]
	if !ok {
		return
	}
	kept := entry.logs[:0]
	for _, l := range entry.logs {
		if _, ok := drop[l.ID]; !ok {
			kept = append(kept, l)
		}
	}
	entry.logs = kept
}

// reconcile swaps optimistic entries for the rows the store returned.
func (t *Tracker) reconcile(userID string, persisted []health.MedicationLog) {
	byID := make(map[string]health.MedicationLog, len(persisted))
	for _, l := range persisted {
		byID[l.ID] = l
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.today[userID]
	if !ok {
		return
	}
	for i, l := range entry.logs {
		if p, ok := byID[l.ID]; ok {
			entry.logs[i] = p
		}
	}
}

// RecordLog writes a single log for any status. A second taken log for the
// same schedule on the same local day is not written; the existing one is
// returned instead.
func (t *Tracker) RecordLog(ctx context.Context, userID, scheduleID string, status health.LogStatus, takenAt time.Time, notes string) (*health.MedicationLog, error) {
	now := t.Now()
	if takenAt.IsZero() {
		takenAt = now
	}
	takenAt = takenAt.In(t.loc)
	if takenAt.After(now.Add(time.Minute)) {
		return nil, apperrors.New(apperrors.ErrLogInvalid.Code, "taken_at cannot be in the future")
	}

	if _, err := t.repo.GetSchedule(ctx, userID, scheduleID); err != nil {
		return nil, err
	}

	if status == health.StatusTaken && takenAt.Format("2006-01-02") == now.Format("2006-01-02") {
		return t.recordTakenToday(ctx, userID, scheduleID, now, takenAt, notes)
	}

	if status == health.StatusTaken {
		if existing, err := t.findTaken(ctx, userID, scheduleID, takenAt); err != nil || existing != nil {
			return existing, err
		}
	}

	created, err := t.write(ctx, []health.MedicationLog{{
		ID:         newLogID(),
		ScheduleID: scheduleID,
		UserID:     userID,
		TakenAt:    takenAt,
		Status:     status,
		Notes:      notes,
	}})
	if errors.Is(err, apperrors.ErrDoseAlreadyTaken) {
		// lost the race to another writer
		if existing, ferr := t.findTaken(ctx, userID, scheduleID, takenAt); ferr == nil && existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, err
	}
	saved := created[0]

	t.metrics.RecordDosesLogged(string(status), 1)
	return &saved, nil
}

// recordTakenToday claims the schedule in the cached day view, the same way
// MarkTaken does, so the two cannot both log it.
func (t *Tracker) recordTakenToday(ctx context.Context, userID, scheduleID string, now, takenAt time.Time, notes string) (*health.MedicationLog, error) {
	loaded, err := t.todayLogs(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	pending, already := t.claim(userID, now, loaded, []string{scheduleID}, takenAt, notes)
	if len(already) > 0 {
		existing := already[0]
		return &existing, nil
	}

	created, err := t.write(ctx, pending)
	if err != nil {
		t.rollback(userID, pending)
		t.metrics.RecordRollback()
		t.logger.Warn("Dose write failed, rolled back",
			zap.String("user_id", userID),
			zap.String("schedule_id", scheduleID),
			zap.Error(err))
		return nil, err
	}

	t.reconcile(userID, created)
	t.metrics.RecordDosesLogged(string(health.StatusTaken), 1)
	saved := created[0]
	return &saved, nil
}

func (t *Tracker) findTaken(ctx context.Context, userID, scheduleID string, takenAt time.Time) (*health.MedicationLog, error) {
	start, end := dayBounds(takenAt)
	existing, err := t.repo.ListLogs(ctx, userID, start, end, health.StatusTaken)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if existing[i].ScheduleID == scheduleID {
			return &existing[i], nil
		}
	}
	return nil, nil
}
