package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "dosewise"

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	startTime time.Time
	registry  *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	dosesLogged   *prometheus.CounterVec
	remindersSent *prometheus.CounterVec
	rollbacks     prometheus.Counter
	breakerOpen   prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

func New() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		dosesLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "doses_logged_total",
			Help:      "Medication logs written, by status",
		}, []string{"status"}),
		remindersSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Reminders delivered, by kind and result",
		}, []string{"kind", "result"}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimistic_rollbacks_total",
			Help:      "Optimistic dose updates rolled back after a failed write",
		}),
		breakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_breaker_open",
			Help:      "1 while the log store circuit breaker is open",
		}),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.dosesLogged,
		m.remindersSent,
		m.rollbacks,
		m.breakerOpen,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordRequest(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) RecordDosesLogged(status string, n int) {
	if n <= 0 {
		return
	}
	m.dosesLogged.WithLabelValues(status).Add(float64(n))
}

func (m *Metrics) RecordReminder(kind string, success bool) {
	result := "ok"
	if !success {
		result = "error"
	}
	m.remindersSent.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) RecordRollback() {
	m.rollbacks.Inc()
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if open {
		m.breakerOpen.Set(1)
		return
	}
	m.breakerOpen.Set(0)
}

type Snapshot struct {
	Uptime        time.Duration    `json:"uptime"`
	RequestsTotal int64            `json:"requests_total"`
	RequestErrors int64            `json:"request_errors"`
	DosesLogged   map[string]int64 `json:"doses_logged"`
	RemindersSent int64            `json:"reminders_sent"`
	Rollbacks     int64            `json:"rollbacks"`
	BreakerOpen   bool             `json:"breaker_open"`
}

// Snapshot summarises the registry for the status endpoint and CLI.
func (m *Metrics) Snapshot() *Snapshot {
	s := &Snapshot{
		Uptime:      time.Since(m.startTime),
		DosesLogged: make(map[string]int64),
	}

	families, err := m.registry.Gather()
	if err != nil {
		return s
	}

	for _, mf := range families {
		switch mf.GetName() {
		case namespace + "_http_requests_total":
			for _, metric := range mf.GetMetric() {
				n := int64(metric.GetCounter().GetValue())
				s.RequestsTotal += n
				if code := label(metric, "status"); len(code) > 0 && code[0] == '5' {
					s.RequestErrors += n
				}
			}
		case namespace + "_doses_logged_total":
			for _, metric := range mf.GetMetric() {
				s.DosesLogged[label(metric, "status")] += int64(metric.GetCounter().GetValue())
			}
		case namespace + "_reminders_sent_total":
			for _, metric := range mf.GetMetric() {
				if label(metric, "result") == "ok" {
					s.RemindersSent += int64(metric.GetCounter().GetValue())
				}
			}
		case namespace + "_optimistic_rollbacks_total":
			for _, metric := range mf.GetMetric() {
				s.Rollbacks += int64(metric.GetCounter().GetValue())
			}
		case namespace + "_store_breaker_open":
			for _, metric := range mf.GetMetric() {
				s.BreakerOpen = metric.GetGauge().GetValue() > 0
			}
		}
	}
	return s
}

func label(metric *dto.Metric, name string) string {
	for _, lp := range metric.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
