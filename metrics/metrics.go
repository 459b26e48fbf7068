// Package metrics exposes the Prometheus counters for the engines and the
// HTTP layer.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"redgraph/service"
)

const namespace = "redgraph"

type Metrics struct {
	TogglesTotal     *prometheus.CounterVec
	ConflictsTotal   *prometheus.CounterVec
	CascadeTasks     *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RegisteredTotal  prometheus.Counter
	LoginFailedTotal prometheus.Counter
}

// New registers every metric with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TogglesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "toggles_total",
			Help:      "Relationship toggles by relation and applied direction.",
		}, []string{"relation", "applied"}),
		ConflictsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "version_conflicts_total",
			Help:      "Saves rejected by a version check and retried.",
		}, []string{"entity"}),
		CascadeTasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "tasks_total",
			Help:      "Cascade tasks by kind and outcome.",
		}, []string{"task", "outcome"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		RegisteredTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "register_success_total",
			Help:      "Total successful registrations.",
		}),
		LoginFailedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_failure_total",
			Help:      "Total failed login attempts.",
		}),
	}
}

func (m *Metrics) Toggle(relation string, applied service.Applied) {
	m.TogglesTotal.WithLabelValues(relation, string(applied)).Inc()
}

func (m *Metrics) Conflict(entity string) {
	m.ConflictsTotal.WithLabelValues(entity).Inc()
}

func (m *Metrics) CascadeTask(task, outcome string) {
	m.CascadeTasks.WithLabelValues(task, outcome).Inc()
}

// Instrument records request timing per route template.
func (m *Metrics) Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
