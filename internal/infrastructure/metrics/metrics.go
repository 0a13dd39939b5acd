package metrics

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/expense-router/internal/application/dispatcher"
	"github.com/garyjia/expense-router/internal/domain/event"
)

// Metrics holds the Prometheus collectors of the service
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	submitted     *prometheus.CounterVec
	submittedAmt  prometheus.Histogram
	flagged       prometheus.Counter
	decisions     *prometheus.CounterVec
	completed     *prometheus.CounterVec
	dbConnections *prometheus.GaugeVec
}

// New creates the collectors under namespace and registers them, together with the Go
// runtime and process collectors, on a dedicated registry.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expenses_submitted_total",
			Help:      "Total number of expenses submitted for approval",
		}, []string{"category"}),
		submittedAmt: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "expense_converted_amount",
			Help:      "Converted amount of submitted expenses in the reporting currency",
			Buckets:   []float64{50, 100, 250, 500, 800, 1000, 2000, 5000, 10000},
		}),
		flagged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expenses_flagged_total",
			Help:      "Total number of expenses above the flag threshold",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_decisions_total",
			Help:      "Total number of approval decisions by decision and level",
		}, []string{"decision", "level"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expenses_completed_total",
			Help:      "Total number of expenses reaching a terminal status",
		}, []string{"status"}),
		dbConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "database_connections",
			Help:      "Database connections by state",
		}, []string{"state"}),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.submitted,
		m.submittedAmt,
		m.flagged,
		m.decisions,
		m.completed,
		m.dbConnections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler returns the scrape endpoint for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records one served request. path should be the route template.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateDatabaseConnections publishes connection pool statistics
func (m *Metrics) UpdateDatabaseConnections(stats sql.DBStats) {
	m.dbConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
	m.dbConnections.WithLabelValues("idle").Set(float64(stats.Idle))
	m.dbConnections.WithLabelValues("max_open").Set(float64(stats.MaxOpenConnections))
}

// Subscribe feeds the domain counters from the event dispatcher
func (m *Metrics) Subscribe(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeExpenseSubmitted, "metrics", m.onSubmitted)
	d.SubscribeNamed(event.TypeExpenseFlagged, "metrics", m.onFlagged)
	d.SubscribeNamed(event.TypeApprovalRecorded, "metrics", m.onDecision)
	d.SubscribeNamed(event.TypeExpenseApproved, "metrics", m.onCompleted)
	d.SubscribeNamed(event.TypeExpenseRejected, "metrics", m.onCompleted)
}

func (m *Metrics) onSubmitted(_ context.Context, evt *event.Event) error {
	m.submitted.WithLabelValues(evt.GetPayloadString(event.KeyCategory)).Inc()
	m.submittedAmt.Observe(evt.GetPayloadFloat(event.KeyAmount))
	return nil
}

func (m *Metrics) onFlagged(_ context.Context, _ *event.Event) error {
	m.flagged.Inc()
	return nil
}

func (m *Metrics) onDecision(_ context.Context, evt *event.Event) error {
	level := strconv.FormatInt(evt.GetPayloadInt(event.KeyLevel), 10)
	m.decisions.WithLabelValues(evt.GetPayloadString(event.KeyDecision), level).Inc()
	return nil
}

func (m *Metrics) onCompleted(_ context.Context, evt *event.Event) error {
	status := "approved"
	if evt.Type == event.TypeExpenseRejected {
		status = "rejected"
	}
	m.completed.WithLabelValues(status).Inc()
	return nil
}
