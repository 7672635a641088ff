// ABOUTME: Prometheus collectors for turns, streamed events and background tasks
// ABOUTME: A nil *Metrics is valid and records nothing

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voyage"

// Event outcomes.
const (
	OutcomePublished  = "published"
	OutcomeSuppressed = "suppressed"
	OutcomePersisted  = "persisted"
)

// Task results.
const (
	ResultDone       = "done"
	ResultRetry      = "retry"
	ResultDeadLetter = "dead_letter"
	ResultDuplicate  = "duplicate"
)

// Metrics owns a private registry so tests and multiple servers in one
// process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	turns          *prometheus.CounterVec
	events         *prometheus.CounterVec
	tasksEnqueued  *prometheus.CounterVec
	tasksProcessed *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
}

// New creates and registers all collectors, including Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Turns handled, by terminal status.",
		}, []string{"status"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events by kind and what happened to them.",
		}, []string{"kind", "outcome"}),
		tasksEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_enqueued_total",
			Help:      "Tasks handed to the queue.",
		}, []string{"kind"}),
		tasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_processed_total",
			Help:      "Task deliveries by result.",
		}, []string{"kind", "result"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Handler run time per delivery.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.turns, m.events, m.tasksEnqueued, m.tasksProcessed, m.taskDuration,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TrackActiveTurns exports fn as the number of open streams.
func (m *Metrics) TrackActiveTurns(fn func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_turns",
		Help:      "Turns with an open stream.",
	}, func() float64 { return float64(fn()) }))
}

func (m *Metrics) TurnFinished(status string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(status).Inc()
}

func (m *Metrics) Event(kind, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) TaskEnqueued(kind string) {
	if m == nil {
		return
	}
	m.tasksEnqueued.WithLabelValues(kind).Inc()
}

// TaskProcessed records one delivery and how long its handler ran.
func (m *Metrics) TaskProcessed(kind, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.tasksProcessed.WithLabelValues(kind, result).Inc()
	m.taskDuration.WithLabelValues(kind).Observe(took.Seconds())
}
