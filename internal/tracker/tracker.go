// Package tracker is the write path and read model around the dose engine.
// It loads records from the store, hands them to the engine with a single
// now, and keeps a per-user cache of today's taken logs that dose marking
// updates optimistically.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gmsas95/dosewise/internal/dose"
	apperrors "github.com/gmsas95/dosewise/internal/errors"
	"github.com/gmsas95/dosewise/internal/health"
	"github.com/gmsas95/dosewise/internal/metrics"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Repository is the persistence the tracker needs. health.Store implements it.
type Repository interface {
	ListMedications(ctx context.Context, userID string) ([]health.Medication, error)
	ListSchedules(ctx context.Context, userID string) ([]health.Schedule, error)
	GetSchedule(ctx context.Context, userID, id string) (*health.Schedule, error)
	ListLogs(ctx context.Context, userID string, from, to time.Time, statuses ...health.LogStatus) ([]health.MedicationLog, error)
	CreateLogs(ctx context.Context, logs []health.MedicationLog) ([]health.MedicationLog, error)
}

// Tracker serves today's view, dose marking and adherence queries.
type Tracker struct {
	repo     Repository
	clock    func() time.Time
	loc      *time.Location
	lookback int
	logger   *zap.Logger
	metrics  *metrics.Metrics
	breaker  *gobreaker.CircuitBreaker[[]health.MedicationLog]

	mu    sync.Mutex
	today map[string]*dayLogs
}

// dayLogs is one user's taken logs for a single local date.
type dayLogs struct {
	date string
	logs []health.MedicationLog
}

type Option func(*Tracker)

func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) { t.clock = clock }
}

// WithLocation sets the wall-clock zone all calendar math runs in.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) {
		if loc != nil {
			t.loc = loc
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

func WithStreakLookback(days int) Option {
	return func(t *Tracker) {
		if days > 0 {
			t.lookback = days
		}
	}
}

// WithBreakerSettings overrides the write circuit breaker.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(t *Tracker) { t.breaker = t.newBreaker(st) }
}

func New(repo Repository, opts ...Option) *Tracker {
	t := &Tracker{
		repo:     repo,
		clock:    time.Now,
		loc:      time.Local,
		lookback: dose.DefaultStreakLookback,
		logger:   zap.NewNop(),
		metrics:  metrics.Default(),
		today:    make(map[string]*dayLogs),
	}
	t.breaker = t.newBreaker(gobreaker.Settings{
		Name:        "log-store",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) newBreaker(st gobreaker.Settings) *gobreaker.CircuitBreaker[[]health.MedicationLog] {
	// validation and not-found errors are the caller's fault, not the store's
	st.IsSuccessful = func(err error) bool {
		return err == nil || apperrors.IsAppError(err)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		t.logger.Warn("Circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
		t.metrics.SetBreakerOpen(to == gobreaker.StateOpen)
	}
	return gobreaker.NewCircuitBreaker[[]health.MedicationLog](st)
}

// Now is the tracker's clock read in its location.
func (t *Tracker) Now() time.Time {
	return t.clock().In(t.loc)
}

// Location is the zone calendar math runs in.
func (t *Tracker) Location() *time.Location {
	return t.loc
}

func dayBounds(now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return start, time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

// todayLogs returns a copy of the cached taken logs for now's date, loading
// them on a miss or after midnight.
func (t *Tracker) todayLogs(ctx context.Context, userID string, now time.Time) ([]health.MedicationLog, error) {
	date := now.Format("2006-01-02")

	t.mu.Lock()
	if cached, ok := t.today[userID]; ok && cached.date == date {
		logs := append([]health.MedicationLog(nil), cached.logs...)
		t.mu.Unlock()
		return logs, nil
	}
	t.mu.Unlock()

	start, end := dayBounds(now)
	logs, err := t.repo.ListLogs(ctx, userID, start, end, health.StatusTaken)
	if err != nil {
		return nil, fmt.Errorf("load today's logs: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// a concurrent writer may have populated the entry meanwhile
	if cached, ok := t.today[userID]; ok && cached.date == date {
		return append([]health.MedicationLog(nil), cached.logs...), nil
	}
	t.today[userID] = &dayLogs{date: date, logs: logs}
	return append([]health.MedicationLog(nil), logs...), nil
}

// Invalidate drops the cached view for a user after out-of-band changes.
func (t *Tracker) Invalidate(userID string) {
	t.mu.Lock()
	delete(t.today, userID)
	t.mu.Unlock()
}

func (t *Tracker) load(ctx context.Context, userID string) ([]health.Medication, []health.Schedule, error) {
	meds, err := t.repo.ListMedications(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list medications: %w", err)
	}
	schedules, err := t.repo.ListSchedules(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list schedules: %w", err)
	}
	return meds, schedules, nil
}

// write sends logs through the circuit breaker and maps its errors.
func (t *Tracker) write(ctx context.Context, logs []health.MedicationLog) ([]health.MedicationLog, error) {
	created, err := t.breaker.Execute(func() ([]health.MedicationLog, error) {
		return t.repo.CreateLogs(ctx, logs)
	})
	switch {
	case err == nil:
		return created, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, apperrors.WithCause(apperrors.ErrStoreUnavailable, err)
	case apperrors.IsAppError(err):
		return nil, err
	default:
		return nil, apperrors.WithCause(apperrors.ErrDoseWriteFailed, err)
	}
}

func newLogID() string {
	return uuid.NewString()
}
