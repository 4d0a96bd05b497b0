package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmsas95/dosewise/internal/config"
	"github.com/gmsas95/dosewise/internal/dose"
	apperrors "github.com/gmsas95/dosewise/internal/errors"
	"github.com/gmsas95/dosewise/internal/health"
	"github.com/gmsas95/dosewise/internal/metrics"
	"github.com/gmsas95/dosewise/internal/prefs"
	"github.com/gmsas95/dosewise/internal/store"
	"github.com/gmsas95/dosewise/internal/tracker"
)

var est = time.FixedZone("EST", -5*3600)

type testServer struct {
	*Server
	health *health.Store
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Address: "127.0.0.1", Port: 8080, ReadTimeout: 5, WriteTimeout: 5},
		Security: config.SecurityConfig{
			JWTSecret:     "test-secret",
			AdminPassword: "hunter2",
			AllowOrigins:  []string{"*"},
			TokenTTL:      60,
		},
		RateLimit: config.RateLimitConfig{PerMinute: 60, Burst: 100},
	}
}

// setupServer wires real stores. The tracker clock is Monday 2024-03-11 08:02 EST.
func setupServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	db, err := health.OpenSQLite(":memory:")
	require.NoError(t, err)
	hs, err := health.NewStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { hs.Close() })

	kv, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	m := metrics.New()
	now := time.Date(2024, time.March, 11, 8, 2, 0, 0, est)
	tr := tracker.New(hs,
		tracker.WithClock(func() time.Time { return now }),
		tracker.WithLocation(est),
		tracker.WithMetrics(m),
	)

	s := New(Deps{
		Config:  cfg,
		Store:   hs,
		Tracker: tr,
		Prefs:   prefs.NewStore(kv),
		Metrics: m,
		Version: "test",
	})
	return &testServer{Server: s, health: hs}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (ts *testServer) login(t *testing.T, user string) string {
	t.Helper()
	status, body := ts.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Password: "hunter2", UserID: user})
	require.Equal(t, http.StatusOK, status, string(body))
	var resp loginResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(body, &resp), string(body))
	return resp.Code
}

func (ts *testServer) seedMedication(t *testing.T, token string, times ...string) health.Medication {
	t.Helper()
	status, body := ts.do(t, http.MethodPost, "/api/medications", token, medicationRequest{Name: "Metformin", Dosage: "500mg"})
	require.Equal(t, http.StatusCreated, status, string(body))
	var med health.Medication
	require.NoError(t, json.Unmarshal(body, &med))

	for _, tm := range times {
		status, body = ts.do(t, http.MethodPost, "/api/medications/"+med.ID+"/schedules", token, scheduleRequest{TimeToTake: tm})
		require.Equal(t, http.StatusCreated, status, string(body))
	}
	return med
}

func TestHealthIsPublic(t *testing.T) {
	ts := setupServer(t)

	status, body := ts.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"version":"test"`)
}

func TestAuth(t *testing.T) {
	ts := setupServer(t)

	t.Run("missing token", func(t *testing.T) {
		status, body := ts.do(t, http.MethodGet, "/api/today", "", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "AUTH_001", errorCode(t, body))
	})

	t.Run("garbage token", func(t *testing.T) {
		status, _ := ts.do(t, http.MethodGet, "/api/today", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("wrong password", func(t *testing.T) {
		status, body := ts.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Password: "nope"})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "AUTH_001", errorCode(t, body))
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		other := setupServer(t, func(c *config.Config) { c.Security.JWTSecret = "other" })
		token := other.login(t, "alice")
		status, _ := ts.do(t, http.MethodGet, "/api/today", token, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("valid token", func(t *testing.T) {
		token := ts.login(t, "alice")
		status, _ := ts.do(t, http.MethodGet, "/api/today", token, nil)
		assert.Equal(t, http.StatusOK, status)
	})
}

func TestStartRefusesOpenLoginOffLoopback(t *testing.T) {
	tests := []struct {
		name     string
		address  string
		password string
		wantErr  bool
	}{
		{name: "loopback without password", address: "127.0.0.1"},
		{name: "localhost without password", address: "localhost"},
		{name: "all interfaces with password", address: "0.0.0.0", password: "hunter2"},
		{name: "all interfaces without password", address: "0.0.0.0", wantErr: true},
		{name: "empty address without password", address: "", wantErr: true},
		{name: "lan address without password", address: "192.168.1.20", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupServer(t, func(c *config.Config) {
				c.Server.Address = tt.address
				c.Security.AdminPassword = tt.password
			})
			err := ts.checkExposure()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, "CONFIG_002", apperrors.GetCode(err))
			assert.Error(t, ts.Start(), "Start must fail before listening")
		})
	}
}

func TestMedicationCRUD(t *testing.T) {
	ts := setupServer(t)
	token := ts.login(t, "alice")

	med := ts.seedMedication(t, token)
	assert.Equal(t, "alice", med.UserID)

	status, body := ts.do(t, http.MethodPut, "/api/medications/"+med.ID, token, medicationRequest{Name: "Metformin XR", Dosage: "750mg"})
	require.Equal(t, http.StatusOK, status, string(body))
	var updated health.Medication
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "Metformin XR", updated.Name)

	status, body = ts.do(t, http.MethodGet, "/api/medications", token, nil)
	require.Equal(t, http.StatusOK, status)
	var meds []health.Medication
	require.NoError(t, json.Unmarshal(body, &meds))
	assert.Len(t, meds, 1)

	// another user cannot see it
	bob := ts.login(t, "bob")
	status, body = ts.do(t, http.MethodGet, "/api/medications/"+med.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "MED_001", errorCode(t, body))

	status, body = ts.do(t, http.MethodPost, "/api/medications", token, medicationRequest{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "MED_002", errorCode(t, body))

	status, _ = ts.do(t, http.MethodDelete, "/api/medications/"+med.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = ts.do(t, http.MethodGet, "/api/medications/"+med.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestFreeTextRejected(t *testing.T) {
	ts := setupServer(t)
	token := ts.login(t, "alice")
	ts.seedMedication(t, token, "08:00")

	status, body := ts.do(t, http.MethodPost, "/api/medications", token,
		medicationRequest{Name: "Aspirin\x1b[2J", Dosage: "81mg"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "GEN_002", errorCode(t, body))

	status, body = ts.do(t, http.MethodPost, "/api/doses/08:00/taken", token,
		markRequest{Notes: strings.Repeat("!", 3000)})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "GEN_002", errorCode(t, body))

	// nothing was logged by the rejected call
	status, _ = ts.do(t, http.MethodPost, "/api/doses/08:00/taken", token, markRequest{Notes: "ok"})
	assert.Equal(t, http.StatusCreated, status)
}

func TestScheduleRejections(t *testing.T) {
	ts := setupServer(t)
	token := ts.login(t, "alice")
	med := ts.seedMedication(t, token)

	tests := []struct {
		name   string
		medID  string
		req    scheduleRequest
		status int
		code   string
	}{
		{"malformed time", med.ID, scheduleRequest{TimeToTake: "8am"}, http.StatusBadRequest, "SCHED_001"},
		{"unknown weekday", med.ID, scheduleRequest{TimeToTake: "08:00", DaysOfWeek: []health.Weekday{"xyz"}}, http.StatusBadRequest, "SCHED_001"},
		{"unknown medication", "missing", scheduleRequest{TimeToTake: "08:00"}, http.StatusNotFound, "MED_001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ts.do(t, http.MethodPost, "/api/medications/"+tt.medID+"/schedules", token, tt.req)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, errorCode(t, body))
		})
	}
}

func TestTodayAndMarkTaken(t *testing.T) {
	ts := setupServer(t)
	token := ts.login(t, "alice")
	ts.seedMedication(t, token, "08:00", "20:00")

	status, body := ts.do(t, http.MethodGet, "/api/today", token, nil)
	require.Equal(t, http.StatusOK, status)
	var view tracker.TodayView
	require.NoError(t, json.Unmarshal(body, &view))
	require.Len(t, view.Groups, 2)
	assert.Equal(t, dose.StatusCurrent, view.Groups[0].Status)
	assert.Equal(t, dose.ContextNow, view.Groups[0].Context)
	require.Len(t, view.Buckets.Now, 1)

	status, body = ts.do(t, http.MethodPost, "/api/doses/08:00/taken", token, markRequest{Notes: "with food"})
	require.Equal(t, http.StatusCreated, status, string(body))
	var res tracker.MarkResult
	require.NoError(t, json.Unmarshal(body, &res))
	require.Len(t, res.Logged, 1)
	assert.Equal(t, "with food", res.Logged[0].Notes)

	// marking again is a no-op
	status, body = ts.do(t, http.MethodPost, "/api/doses/08:00/taken", token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	res = tracker.MarkResult{}
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Empty(t, res.Logged)
	assert.Len(t, res.Already, 1)

	status, body = ts.do(t, http.MethodPost, "/api/doses/09:00/taken", token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "DOSE_001", errorCode(t, body))

	status, body = ts.do(t, http.MethodPost, "/api/doses/9am/taken", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "GEN_002", errorCode(t, body))

	status, body = ts.do(t, http.MethodGet, "/api/today/next", token, nil)
	require.Equal(t, http.StatusOK, status)
	var next struct {
		Next *tracker.GroupView `json:"next"`
	}
	require.NoError(t, json.Unmarshal(body, &next))
	require.NotNil(t, next.Next)
	assert.Equal(t, "20:00", next.Next.Time)

	status, body = ts.do(t, http.MethodGet, "/api/adherence/streak", token, nil)
	require.Equal(t, http.StatusOK, status)
	var streak streakResponse
	require.NoError(t, json.Unmarshal(body, &streak))
	// today is not complete yet and nothing was logged before it
	assert.Equal(t, 0, streak.Streak)
	assert.Equal(t, 90, streak.LookbackDays)
}

func TestRecordLogAndHistory(t *testing.T) {
	ts := setupServer(t)
	token := ts.login(t, "alice")
	ts.seedMedication(t, token, "08:00")

	status, body := ts.do(t, http.MethodGet, "/api/schedules", token, nil)
	require.Equal(t, http.StatusOK, status)
	var schedules []health.Schedule
	require.NoError(t, json.Unmarshal(body, &schedules))
	require.Len(t, schedules, 1)

	yesterday := time.Date(2024, time.March, 10, 8, 15, 0, 0, est)
	status, body = ts.do(t, http.MethodPost, "/api/logs", token, logRequest{
		ScheduleID: schedules[0].ID, Status: health.StatusSkipped, TakenAt: &yesterday,
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = ts.do(t, http.MethodPost, "/api/logs", token, logRequest{ScheduleID: schedules[0].ID, Status: "eaten"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "LOG_001", errorCode(t, body))

	status, body = ts.do(t, http.MethodPost, "/api/logs", token, logRequest{ScheduleID: "nope", Status: health.StatusTaken})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "SCHED_002", errorCode(t, body))

	status, body = ts.do(t, http.MethodGet, "/api/logs?from=2024-03-10&to=2024-03-10", token, nil)
	require.Equal(t, http.StatusOK, status)
	var entries []tracker.HistoryEntry
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, health.StatusSkipped, entries[0].Log.Status)
	assert.Equal(t, "Metformin", entries[0].Medication.Name)

	status, body = ts.do(t, http.MethodGet, "/api/logs?from=2024-03-12&to=2024-03-10", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "GEN_002", errorCode(t, body))
}

func TestAdherenceEndpoints(t *testing.T) {
	ts := setupServer(t)
	token := ts.login(t, "alice")
	ts.seedMedication(t, token, "08:00")

	status, body := ts.do(t, http.MethodGet, "/api/adherence/monthly?month=2024-03", token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"month":"2024-03"`)

	status, body = ts.do(t, http.MethodGet, "/api/adherence/monthly?month=March", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "GEN_002", errorCode(t, body))

	status, body = ts.do(t, http.MethodGet, "/api/adherence/weekly?start=2024-03-11", token, nil)
	require.Equal(t, http.StatusOK, status)
	var week dose.WeeklyAdherence
	require.NoError(t, json.Unmarshal(body, &week))
	assert.Len(t, week.Days, 7)

	status, _ = ts.do(t, http.MethodGet, "/api/adherence/patterns?days=7", token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = ts.do(t, http.MethodGet, "/api/adherence/patterns?days=0", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPreferences(t *testing.T) {
	ts := setupServer(t)
	token := ts.login(t, "alice")

	status, body := ts.do(t, http.MethodGet, "/api/preferences", token, nil)
	require.Equal(t, http.StatusOK, status)
	var p prefs.Preferences
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, prefs.Defaults(), p)

	bad := prefs.Defaults()
	bad.StreakLookbackDays = 0
	status, body = ts.do(t, http.MethodPut, "/api/preferences", token, bad)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "PREF_001", errorCode(t, body))

	good := prefs.Defaults()
	good.StreakLookbackDays = 14
	good.Use24Hour = false
	status, _ = ts.do(t, http.MethodPut, "/api/preferences", token, good)
	require.Equal(t, http.StatusOK, status)

	status, body = ts.do(t, http.MethodGet, "/api/adherence/streak", token, nil)
	require.Equal(t, http.StatusOK, status)
	var streak streakResponse
	require.NoError(t, json.Unmarshal(body, &streak))
	assert.Equal(t, 14, streak.LookbackDays)
}

func TestExport(t *testing.T) {
	ts := setupServer(t)
	token := ts.login(t, "alice")
	ts.seedMedication(t, token, "08:00")

	status, _ := ts.do(t, http.MethodPost, "/api/doses/08:00/taken", token, nil)
	require.Equal(t, http.StatusCreated, status)

	req := httptest.NewRequest(http.MethodGet, "/api/export?format=csv", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "dosewise-history.csv")
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "date,time,medication"))
	assert.Contains(t, lines[1], "2024-03-11,08:00,Metformin,500mg,taken")

	status, body = ts.do(t, http.MethodGet, "/api/export?format=xml", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "GEN_002", errorCode(t, body))
}

func TestWriteRateLimit(t *testing.T) {
	ts := setupServer(t, func(c *config.Config) { c.RateLimit = config.RateLimitConfig{PerMinute: 1, Burst: 2} })
	token := ts.login(t, "alice")

	for i := 0; i < 2; i++ {
		status, _ := ts.do(t, http.MethodPost, "/api/medications", token, medicationRequest{Name: "A"})
		require.Equal(t, http.StatusCreated, status)
	}
	status, body := ts.do(t, http.MethodPost, "/api/medications", token, medicationRequest{Name: "A"})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "AUTH_003", errorCode(t, body))

	// reads are not throttled
	status, _ = ts.do(t, http.MethodGet, "/api/medications", token, nil)
	assert.Equal(t, http.StatusOK, status)

	// buckets are per user
	bob := ts.login(t, "bob")
	status, _ = ts.do(t, http.MethodPost, "/api/medications", bob, medicationRequest{Name: "B"})
	assert.Equal(t, http.StatusCreated, status)
}

func TestMetricsEndpoints(t *testing.T) {
	ts := setupServer(t)
	token := ts.login(t, "alice")
	ts.do(t, http.MethodGet, "/api/today", token, nil)

	status, body := ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "dosewise_http_requests_total")

	status, body = ts.do(t, http.MethodGet, "/api/metrics", "", nil)
	require.Equal(t, http.StatusOK, status)
	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.GreaterOrEqual(t, snap.RequestsTotal, int64(2))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"MED_001", http.StatusNotFound},
		{"SCHED_001", http.StatusBadRequest},
		{"DOSE_003", http.StatusServiceUnavailable},
		{"DOSE_002", http.StatusInternalServerError},
		{"AUTH_003", http.StatusTooManyRequests},
		{"DOSE_004", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(apperrors.New(tt.code, "x")))
		})
	}

	assert.Equal(t, http.StatusInternalServerError, statusFor(context.DeadlineExceeded))
}
