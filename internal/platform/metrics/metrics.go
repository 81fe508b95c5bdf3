package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	RequestDuration  *prometheus.HistogramVec
	EffectsEnqueued  prometheus.Counter
	EffectsFailed    prometheus.Counter
	EffectsDiscarded prometheus.Counter
	QueueDepth       prometheus.Gauge
	CasesDeleted     prometheus.Counter
	CasesRestored    prometheus.Counter
	UsersDeleted     prometheus.Counter
	UsersRestored    prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "caseflow_request_duration_seconds",
			Help:    "HTTP request duration by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		EffectsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caseflow_effects_enqueued_total",
			Help: "Total number of deferred effects accepted by the queue",
		}),
		EffectsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caseflow_effects_failed_total",
			Help: "Total number of deferred effects that exhausted their retry budget",
		}),
		EffectsDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caseflow_effects_discarded_total",
			Help: "Total number of buffered effects discarded after a rollback",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "caseflow_effect_queue_depth",
			Help: "Current number of effects waiting in the queue",
		}),
		CasesDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caseflow_cases_deleted_total",
			Help: "Total number of cases soft-deleted",
		}),
		CasesRestored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caseflow_cases_restored_total",
			Help: "Total number of cases restored from soft deletion",
		}),
		UsersDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caseflow_users_deleted_total",
			Help: "Total number of users soft-deleted",
		}),
		UsersRestored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "caseflow_users_restored_total",
			Help: "Total number of users restored from soft deletion",
		}),
	}
}

// ObserveRequest records a request latency sample for a route.
func (m *Metrics) ObserveRequest(route string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}
