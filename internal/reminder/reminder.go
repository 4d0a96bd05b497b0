// Package reminder sweeps every user's today view on a cron schedule and
// notifies about doses that are due or overdue.
package reminder

import (
	"context"
	"fmt"
	"strings"

	"github.com/gmsas95/dosewise/internal/dose"
	"go.uber.org/zap"
)

type Kind string

const (
	KindDue     Kind = "due"
	KindOverdue Kind = "overdue"
)

// Reminder is one notification about one dose group.
type Reminder struct {
	UserID      string   `json:"user_id"`
	Date        string   `json:"date"`
	Time        string   `json:"time"`
	Kind        Kind     `json:"kind"`
	Medications []string `json:"medications"`
	Relative    string   `json:"relative"`
}

func newReminder(userID, date string, kind Kind, g dose.DoseGroup, relative string) Reminder {
	meds := make([]string, 0, len(g.Doses))
	for _, d := range g.Doses {
		name := d.Medication.Name
		if d.Medication.Dosage != "" {
			name += " " + d.Medication.Dosage
		}
		meds = append(meds, name)
	}
	return Reminder{UserID: userID, Date: date, Time: g.Time, Kind: kind, Medications: meds, Relative: relative}
}

// Text renders the reminder for chat delivery.
func (r Reminder) Text() string {
	meds := strings.Join(r.Medications, ", ")
	if r.Kind == KindOverdue {
		return fmt.Sprintf("Missed %s dose (%s): %s", r.Time, r.Relative, meds)
	}
	return fmt.Sprintf("Time for your %s dose (%s): %s", r.Time, r.Relative, meds)
}

// Notifier delivers reminders.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// LogNotifier writes reminders to the log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, r Reminder) error {
	n.logger.Info("Dose reminder",
		zap.String("user_id", r.UserID),
		zap.String("time", r.Time),
		zap.String("kind", string(r.Kind)),
		zap.Strings("medications", r.Medications))
	return nil
}

// MultiNotifier fans a reminder out to several notifiers and returns the
// first error after trying all of them.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, r Reminder) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, r); err != nil && first == nil {
			first = err
		}
	}
	return first
}
