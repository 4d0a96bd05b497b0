// Package cli implements the dosewise terminal commands. Every command
// writes to Env.Out so the same code serves a terminal and a test buffer.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gmsas95/dosewise/internal/config"
	"github.com/gmsas95/dosewise/internal/dose"
	"github.com/gmsas95/dosewise/internal/export"
	"github.com/gmsas95/dosewise/internal/health"
	"github.com/gmsas95/dosewise/internal/prefs"
	"github.com/gmsas95/dosewise/internal/tracker"
)

var Version = "dev"

// ErrUnknownCommand is returned by Run for commands it does not handle.
var ErrUnknownCommand = errors.New("unknown command")

// PrefsSource reads a user's display preferences.
type PrefsSource interface {
	Get(userID string) (prefs.Preferences, error)
}

// Catalog lists what a user has configured.
type Catalog interface {
	ListMedications(ctx context.Context, userID string) ([]health.Medication, error)
	ListSchedules(ctx context.Context, userID string) ([]health.Schedule, error)
}

// Env carries what the commands need.
type Env struct {
	Tracker  *tracker.Tracker
	Prefs    PrefsSource
	Catalog  Catalog
	Config   *config.Config
	UserID   string
	Out      io.Writer
	Decorate bool
}

// IsCommand reports whether name is handled by Run.
func IsCommand(name string) bool {
	switch name {
	case "today", "next", "take", "stats", "streak", "export", "status", "help", "version":
		return true
	}
	return false
}

// Run dispatches args[0] with the remaining args.
func Run(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 {
		PrintHelp(env.Out)
		return nil
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "help", "-h", "--help":
		PrintHelp(env.Out)
		return nil
	case "version":
		fmt.Fprintf(env.Out, "dosewise %s\n", Version)
		return nil
	case "today":
		return HandleTodayCommand(ctx, env)
	case "next":
		return HandleNextCommand(ctx, env)
	case "take":
		return HandleTakeCommand(ctx, env, rest)
	case "stats":
		return HandleStatsCommand(ctx, env, rest)
	case "streak":
		return HandleStreakCommand(ctx, env)
	case "export":
		return HandleExportCommand(ctx, env, rest)
	case "status":
		return HandleStatusCommand(ctx, env)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
}

func (env *Env) preferences() prefs.Preferences {
	if env.Prefs == nil {
		return prefs.Defaults()
	}
	p, err := env.Prefs.Get(env.UserID)
	if err != nil {
		return prefs.Defaults()
	}
	return p
}

func HandleTodayCommand(ctx context.Context, env *Env) error {
	view, err := env.Tracker.Today(ctx, env.UserID)
	if err != nil {
		return err
	}
	p := env.preferences()
	pal := newPalette(env.Out, env.Decorate)

	fmt.Fprintf(env.Out, "%s  %s\n\n", pal.paint(pal.title, "Today"), view.Now.Format("Monday, January 2"))
	if len(view.Groups) == 0 {
		fmt.Fprintln(env.Out, "No doses scheduled today.")
		return nil
	}

	hidden := 0
	for _, g := range view.Groups {
		if !p.ShowCompleted && g.Status == dose.StatusCompleted {
			hidden++
			continue
		}
		fmt.Fprintf(env.Out, "  %s %-8s %-9s %s  %s\n",
			pal.marker(g.Status),
			formatClock(g.Time, p.Use24Hour),
			g.TimeOfDay,
			medicationList(g),
			pal.paint(pal.dim, "("+groupDetail(g)+")"))
	}
	if hidden > 0 {
		fmt.Fprintf(env.Out, "  %s\n", pal.paint(pal.dim, fmt.Sprintf("%d completed hidden", hidden)))
	}

	fmt.Fprintf(env.Out, "\nProgress: %d/%d doses (%d%%)\n",
		view.Daily.Completed, view.Daily.Total, view.Daily.Percentage)
	return nil
}

func HandleNextCommand(ctx context.Context, env *Env) error {
	view, err := env.Tracker.Today(ctx, env.UserID)
	if err != nil {
		return err
	}
	if view.Next == nil {
		fmt.Fprintln(env.Out, "No more doses today.")
		return nil
	}

	p := env.preferences()
	pal := newPalette(env.Out, env.Decorate)
	next := view.Next

	label := "Next dose"
	if next.Status == dose.StatusMissed {
		label = pal.paint(pal.missed, "Overdue")
	}
	fmt.Fprintf(env.Out, "%s: %s (%s)\n", label, formatClock(next.Time, p.Use24Hour), next.Relative)
	for _, d := range next.Doses {
		fmt.Fprintf(env.Out, "  - %s %s", d.Medication.Name, d.Medication.Dosage)
		if d.Medication.Instructions != "" {
			fmt.Fprintf(env.Out, "  %s", pal.paint(pal.dim, d.Medication.Instructions))
		}
		fmt.Fprintln(env.Out)
	}
	return nil
}

func HandleTakeCommand(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(env.Out, "Usage: dosewise take <HH:MM> [notes...]")
		return errors.New("missing dose time")
	}
	notes := strings.Join(args[1:], " ")

	result, err := env.Tracker.MarkTaken(ctx, env.UserID, args[0], notes)
	if err != nil {
		return err
	}

	pal := newPalette(env.Out, env.Decorate)
	if len(result.Logged) > 0 {
		fmt.Fprintf(env.Out, "%s Logged %d dose(s) at %s\n",
			pal.marker(dose.StatusCompleted), len(result.Logged), result.Time)
	}
	if len(result.Logged) == 0 && len(result.Already) > 0 {
		fmt.Fprintf(env.Out, "Already taken at %s\n", result.Time)
	}
	return nil
}

func HandleStatsCommand(ctx context.Context, env *Env, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(env.Out)
	month := fs.String("month", "", "Month to report (YYYY-MM)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	now := env.Tracker.Now()
	year, mon := now.Year(), now.Month()
	if *month != "" {
		m, err := time.Parse("2006-01", *month)
		if err != nil {
			return fmt.Errorf("month must be YYYY-MM: %w", err)
		}
		year, mon = m.Year(), m.Month()
	}

	monthly, err := env.Tracker.Monthly(ctx, env.UserID, year, mon)
	if err != nil {
		return err
	}
	view, err := env.Tracker.Today(ctx, env.UserID)
	if err != nil {
		return err
	}
	p := env.preferences()
	streak, err := env.Tracker.StreakWithin(ctx, env.UserID, p.StreakLookbackDays)
	if err != nil {
		return err
	}

	pal := newPalette(env.Out, env.Decorate)
	fmt.Fprintf(env.Out, "%s\n\n", pal.paint(pal.title, "Adherence"))
	fmt.Fprintf(env.Out, "%04d-%02d:     %3d%% (%d/%d doses)\n",
		year, int(mon), monthly.Percentage, monthly.Taken, monthly.Expected)
	fmt.Fprintf(env.Out, "Last 7 days: %3d%% (%d/%d doses)\n",
		view.Week.Percentage, view.Week.Taken, view.Week.Expected)
	for _, d := range view.Week.Days {
		fmt.Fprintf(env.Out, "  %s %s %3d%%\n", d.Weekday, d.Date, d.Percentage)
	}
	fmt.Fprintln(env.Out)
	fmt.Fprintf(env.Out, "Today:   %d taken, %d remaining, %d missed\n",
		view.Dashboard.TakenDoses, view.Dashboard.RemainingDoses, view.Dashboard.MissedDoses)
	fmt.Fprintf(env.Out, "On time: %d%%\n", view.Dashboard.OnTimePercentage)
	fmt.Fprintf(env.Out, "Streak:  %s\n", streakText(streak))
	return nil
}

func HandleStreakCommand(ctx context.Context, env *Env) error {
	p := env.preferences()
	streak, err := env.Tracker.StreakWithin(ctx, env.UserID, p.StreakLookbackDays)
	if err != nil {
		return err
	}

	if env.Decorate && streak > 0 {
		pal := newPalette(env.Out, env.Decorate)
		fmt.Fprintf(env.Out, "🔥 %s\n", pal.paint(pal.done, streakText(streak)))
		return nil
	}
	fmt.Fprintf(env.Out, "Streak: %s\n", streakText(streak))
	return nil
}

func streakText(days int) string {
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func HandleExportCommand(ctx context.Context, env *Env, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(env.Out)
	format := fs.String("format", "csv", "Output format: csv, json or yaml")
	fromFlag := fs.String("from", "", "First day (YYYY-MM-DD), default 30 days before --to")
	toFlag := fs.String("to", "", "Last day (YYYY-MM-DD), default today")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := export.ParseFormat(*format)
	if err != nil {
		return err
	}
	from, to, err := dayRange(env.Tracker, *fromFlag, *toFlag)
	if err != nil {
		return err
	}

	entries, err := env.Tracker.History(ctx, env.UserID, from, to)
	if err != nil {
		return err
	}
	return export.Write(env.Out, f, export.Rows(entries, env.Tracker.Location()))
}

// dayRange turns inclusive YYYY-MM-DD bounds into a half-open instant range
// in the tracker's location.
func dayRange(t *tracker.Tracker, fromStr, toStr string) (time.Time, time.Time, error) {
	loc := t.Location()
	now := t.Now()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	if toStr != "" {
		d, err := time.ParseInLocation("2006-01-02", toStr, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--to must be YYYY-MM-DD: %w", err)
		}
		to = d.AddDate(0, 0, 1)
	}

	from := to.AddDate(0, 0, -30)
	if fromStr != "" {
		d, err := time.ParseInLocation("2006-01-02", fromStr, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--from must be YYYY-MM-DD: %w", err)
		}
		from = d
	}

	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("--from must not be after --to")
	}
	return from, to, nil
}

func HandleStatusCommand(ctx context.Context, env *Env) error {
	cfg := env.Config
	pal := newPalette(env.Out, env.Decorate)

	fmt.Fprintln(env.Out, pal.paint(pal.title, "Dosewise Status"))
	fmt.Fprintln(env.Out, "===============")
	fmt.Fprintln(env.Out)
	fmt.Fprintf(env.Out, "Version:  %s\n", Version)
	if cfg != nil {
		configFile := cfg.File
		if configFile == "" {
			configFile = "(none, using defaults)"
		}
		fmt.Fprintf(env.Out, "Config:   %s\n", configFile)
		fmt.Fprintf(env.Out, "Data:     %s\n", cfg.Storage.DataDir)
		fmt.Fprintf(env.Out, "Timezone: %s\n", env.Tracker.Location())
		fmt.Fprintln(env.Out)
		fmt.Fprintln(env.Out, "Server:")
		fmt.Fprintf(env.Out, "  Address: %s\n", cfg.Addr())
		fmt.Fprintln(env.Out)
		fmt.Fprintln(env.Out, "Reminders:")
		fmt.Fprintf(env.Out, "  Sweep:    %s (%s)\n", enabledStatus(cfg.Reminders.Enabled), cfg.Reminders.Spec)
		fmt.Fprintf(env.Out, "  Telegram: %s\n", enabledStatus(cfg.Reminders.Telegram.Enabled))
		if cfg.Reminders.Telegram.Enabled {
			fmt.Fprintf(env.Out, "  Token:    %s\n", maskToken(cfg.Reminders.Telegram.BotToken))
		}
	}

	if env.Catalog != nil {
		meds, err := env.Catalog.ListMedications(ctx, env.UserID)
		if err != nil {
			return err
		}
		schedules, err := env.Catalog.ListSchedules(ctx, env.UserID)
		if err != nil {
			return err
		}
		fmt.Fprintln(env.Out)
		fmt.Fprintf(env.Out, "User %q: %d medication(s), %d schedule(s)\n", env.UserID, len(meds), len(schedules))
	}
	return nil
}
