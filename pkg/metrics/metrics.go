package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls metric naming.
type Config struct {
	Namespace string `env:"METRICS_NAMESPACE" envDefault:"flagship"`
	Enabled   bool   `env:"METRICS_ENABLED" envDefault:"true"`
}

// Collector owns the flagship Prometheus series. A nil *Collector is valid
// and records nothing, so components can take one unconditionally.
//
// Series:
//   - evaluations_total{kind,reason}: feature and limit decisions
//   - evaluation_duration_seconds: orchestrated evaluate calls
//   - usage_events_total{outcome}: accepted, rejected, duplicate, failed
//   - queue_tasks_total{queue,outcome}: completed, retried, dead_lettered
//   - queue_task_duration_seconds{queue}
//   - idempotency_failures_total{op}: backend errors that failed open
type Collector struct {
	registry *prometheus.Registry

	evaluations        *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	usageEvents        *prometheus.CounterVec
	queueTasks         *prometheus.CounterVec
	queueTaskDuration  *prometheus.HistogramVec
	idempotencyErrors  *prometheus.CounterVec
}

// New creates a collector backed by its own registry, which also carries
// the Go runtime and process collectors.
func New(cfg Config) *Collector {
	ns := cfg.Namespace
	c := &Collector{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "evaluations_total",
			Help:      "Feature and limit decisions by kind and reason.",
		}, []string{"kind", "reason"}),
		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "evaluation_duration_seconds",
			Help:      "Latency of evaluate calls.",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		usageEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "usage_events_total",
			Help:      "Ingested usage events by outcome.",
		}, []string{"outcome"}),
		queueTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "queue_tasks_total",
			Help:      "Processed queue tasks by outcome.",
		}, []string{"queue", "outcome"}),
		queueTaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "queue_task_duration_seconds",
			Help:      "Handler execution time of queue tasks.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"queue"}),
		idempotencyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "idempotency_failures_total",
			Help:      "Idempotency backend errors that were treated as first occurrences.",
		}, []string{"op"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.evaluations,
		c.evaluationDuration,
		c.usageEvents,
		c.queueTasks,
		c.queueTaskDuration,
		c.idempotencyErrors,
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) FeatureEvaluated(reason string) {
	if c == nil {
		return
	}
	c.evaluations.WithLabelValues("feature", reason).Inc()
}

func (c *Collector) LimitEvaluated(reason string) {
	if c == nil {
		return
	}
	c.evaluations.WithLabelValues("limit", reason).Inc()
}

func (c *Collector) EvaluationObserved(d time.Duration) {
	if c == nil {
		return
	}
	c.evaluationDuration.Observe(d.Seconds())
}

// Usage event outcomes.
const (
	OutcomeAccepted  = "accepted"
	OutcomeRejected  = "rejected"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

func (c *Collector) UsageEvents(outcome string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.usageEvents.WithLabelValues(outcome).Add(float64(n))
}

// Queue task outcomes.
const (
	TaskCompleted    = "completed"
	TaskRetried      = "retried"
	TaskDeadLettered = "dead_lettered"
)

func (c *Collector) TaskObserved(queue, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.queueTasks.WithLabelValues(queue, outcome).Inc()
	c.queueTaskDuration.WithLabelValues(queue).Observe(d.Seconds())
}

func (c *Collector) IdempotencyFailure(op string) {
	if c == nil {
		return
	}
	c.idempotencyErrors.WithLabelValues(op).Inc()
}
