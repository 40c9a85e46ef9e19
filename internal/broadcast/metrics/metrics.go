package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"brigade/internal/broadcast/models"
)

// Metrics provides observability for the broadcast engine.
// All methods are nil-safe so components can run without metrics in tests.
type Metrics struct {
	Dispatched          *prometheus.CounterVec
	DispatchFailures    *prometheus.CounterVec
	DispatchDuration    prometheus.Histogram
	NotificationsIssued *prometheus.CounterVec
	ConfigCacheLookups  *prometheus.CounterVec
	QueueDropped        prometheus.Counter
	QueueDepth          prometheus.Gauge
	ForwardBreakerState prometheus.Gauge
}

// New registers the broadcast metrics on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Dispatched: f.NewCounterVec(prometheus.CounterOpts{
			Name: "brigade_activity_dispatched_total",
			Help: "Total number of activity events recorded, by category and severity",
		}, []string{"category", "severity"}),
		DispatchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "brigade_activity_dispatch_failures_total",
			Help: "Total number of swallowed dispatch failures, by pipeline stage",
		}, []string{"stage"}),
		DispatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "brigade_activity_dispatch_duration_seconds",
			Help:    "Duration of a full dispatch pipeline",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		NotificationsIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "brigade_notifications_issued_total",
			Help: "Total number of notifications handed to channel adapters, by channel",
		}, []string{"channel"}),
		ConfigCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "brigade_broadcast_config_cache_lookups_total",
			Help: "Broadcast config lookups, by result (hit, miss, absent, error)",
		}, []string{"result"}),
		QueueDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "brigade_dispatch_queue_dropped_total",
			Help: "Total number of events dropped because the dispatch queue was full",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "brigade_dispatch_queue_depth",
			Help: "Current number of events waiting in the dispatch queue",
		}),
		ForwardBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "brigade_forward_circuit_breaker_state",
			Help: "Forward channel circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

// IncDispatched records a persisted activity.
func (m *Metrics) IncDispatched(category models.CategoryID, severity models.Severity) {
	if m == nil {
		return
	}
	m.Dispatched.WithLabelValues(string(category), string(severity)).Inc()
}

// IncFailure records a swallowed failure at the given pipeline stage.
func (m *Metrics) IncFailure(stage string) {
	if m == nil {
		return
	}
	m.DispatchFailures.WithLabelValues(stage).Inc()
}

// ObserveDispatch records the duration of a dispatch.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveDispatch(start time.Time) {
	if m == nil {
		return
	}
	m.DispatchDuration.Observe(time.Since(start).Seconds())
}

// IncNotification records a notification handed to a channel adapter.
func (m *Metrics) IncNotification(channel models.Channel) {
	if m == nil {
		return
	}
	m.NotificationsIssued.WithLabelValues(string(channel)).Inc()
}

// IncConfigLookup records a broadcast config cache lookup result.
func (m *Metrics) IncConfigLookup(result string) {
	if m == nil {
		return
	}
	m.ConfigCacheLookups.WithLabelValues(result).Inc()
}

// IncQueueDropped records an event dropped by a full queue.
func (m *Metrics) IncQueueDropped() {
	if m == nil {
		return
	}
	m.QueueDropped.Inc()
}

// SetQueueDepth sets the dispatch queue depth gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// SetForwardBreakerState sets the forward channel circuit breaker gauge.
func (m *Metrics) SetForwardBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.ForwardBreakerState.Set(1)
	} else {
		m.ForwardBreakerState.Set(0)
	}
}
