package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gmsas95/dosewise/internal/dose"
	"github.com/gmsas95/dosewise/internal/metrics"
	"github.com/gmsas95/dosewise/internal/tracker"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Config holds reminder runner configuration
type Config struct {
	Spec          string // cron spec, e.g. "@every 1m"
	MaxConcurrent int    // users swept in parallel
	Location      *time.Location
}

// Users lists the users to sweep.
type Users interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// Viewer builds a user's today view.
type Viewer interface {
	Today(ctx context.Context, userID string) (*tracker.TodayView, error)
}

// Marker remembers which reminders were already sent. store.Store implements it.
type Marker interface {
	SetIfAbsent(key string, value []byte, ttl time.Duration) (bool, error)
	Delete(key string) error
}

// LeadSource supplies how many minutes ahead a user wants the due reminder.
type LeadSource interface {
	ReminderLead(userID string) int
}

const markerTTL = 36 * time.Hour

// Runner manages the reminder sweep
type Runner struct {
	config   Config
	users    Users
	viewer   Viewer
	marker   Marker
	notifier Notifier
	leads    LeadSource
	logger   *zap.Logger
	metrics  *metrics.Metrics
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	running  bool
	mu       sync.RWMutex
}

// NewRunner creates a new reminder runner
func NewRunner(config Config, users Users, viewer Viewer, marker Marker, notifier Notifier, logger *zap.Logger, m *metrics.Metrics) *Runner {
	ctx, cancel := context.WithCancel(context.Background())

	// Set defaults
	if config.Spec == "" {
		config.Spec = "@every 1m"
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 3
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if marker == nil {
		marker = newMemoryMarker()
	}
	if m == nil {
		m = metrics.Default()
	}

	return &Runner{
		config:   config,
		users:    users,
		viewer:   viewer,
		marker:   marker,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
		cron: cron.New(
			cron.WithLocation(config.Location),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// WithLeads enables per-user early due reminders.
func (r *Runner) WithLeads(leads LeadSource) *Runner {
	r.leads = leads
	return r
}

// Start registers the sweep and starts the scheduler
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("reminder runner already running")
	}

	_, err := r.cron.AddFunc(r.config.Spec, func() {
		if _, err := r.Sweep(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("Reminder sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reminder spec %q: %w", r.config.Spec, err)
	}

	r.cron.Start()
	r.running = true
	r.logger.Info("Reminder runner started", zap.String("spec", r.config.Spec))
	return nil
}

// Stop stops the scheduler and waits for a running sweep
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	<-r.cron.Stop().Done()
	r.logger.Info("Reminder runner stopped")
}

// IsRunning returns whether the runner is active
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Sweep checks every user once and returns how many reminders were sent.
func (r *Runner) Sweep(ctx context.Context) (int, error) {
	users, err := r.users.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	var (
		sent int
		mu   sync.Mutex
		wg   sync.WaitGroup
	)
	sem := make(chan struct{}, r.config.MaxConcurrent)

	for _, userID := range users {
		select {
		case sem <- struct{}{}: // Acquire
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }() // Release

			n := r.sweepUser(ctx, id)
			mu.Lock()
			sent += n
			mu.Unlock()
		}(userID)
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return sent, fmt.Errorf("sweep interrupted: %w", err)
	}
	return sent, nil
}

func (r *Runner) sweepUser(ctx context.Context, userID string) int {
	view, err := r.viewer.Today(ctx, userID)
	if err != nil {
		r.logger.Error("Failed to build today view",
			zap.String("user_id", userID),
			zap.Error(err))
		return 0
	}

	due := view.Buckets.Now
	if r.leads != nil {
		if lead := r.leads.ReminderLead(userID); lead > 0 {
			due = append(append([]dose.DoseGroup{}, due...), withinLead(view.Buckets.Next, view.Now, lead)...)
		}
	}

	sent := 0
	for _, g := range due {
		if r.send(ctx, newReminder(userID, view.Date, KindDue, g, dose.RelativeTime(g.Time, view.Now))) {
			sent++
		}
	}
	for _, g := range view.Buckets.Overdue {
		if r.send(ctx, newReminder(userID, view.Date, KindOverdue, g, dose.RelativeTime(g.Time, view.Now))) {
			sent++
		}
	}
	return sent
}

// withinLead keeps the groups starting no more than lead minutes from now.
func withinLead(groups []dose.DoseGroup, now time.Time, lead int) []dose.DoseGroup {
	var out []dose.DoseGroup
	nowMinutes := now.Hour()*60 + now.Minute()
	for _, g := range groups {
		m, ok := dose.ClockMinutes(g.Time)
		if ok && m-nowMinutes <= lead {
			out = append(out, g)
		}
	}
	return out
}

// send delivers a reminder unless it went out before. A failed delivery
// clears the marker so the next sweep retries.
func (r *Runner) send(ctx context.Context, rem Reminder) bool {
	key := fmt.Sprintf("reminder:%s:%s:%s:%s", rem.UserID, rem.Date, rem.Time, rem.Kind)

	fresh, err := r.marker.SetIfAbsent(key, []byte("1"), markerTTL)
	if err != nil {
		r.logger.Error("Failed to mark reminder", zap.String("key", key), zap.Error(err))
		return false
	}
	if !fresh {
		return false
	}

	if err := r.notifier.Notify(ctx, rem); err != nil {
		r.metrics.RecordReminder(string(rem.Kind), false)
		r.logger.Warn("Reminder delivery failed",
			zap.String("user_id", rem.UserID),
			zap.String("time", rem.Time),
			zap.Error(err))
		if err := r.marker.Delete(key); err != nil {
			r.logger.Error("Failed to clear reminder marker", zap.String("key", key), zap.Error(err))
		}
		return false
	}

	r.metrics.RecordReminder(string(rem.Kind), true)
	return true
}

// memoryMarker is the fallback when no persistent store is configured.
type memoryMarker struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newMemoryMarker() *memoryMarker {
	return &memoryMarker{seen: make(map[string]time.Time)}
}

func (m *memoryMarker) SetIfAbsent(key string, _ []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if exp, ok := m.seen[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.seen[key] = now.Add(ttl)
	return true, nil
}

func (m *memoryMarker) Delete(key string) error {
	m.mu.Lock()
	delete(m.seen, key)
	m.mu.Unlock()
	return nil
}
