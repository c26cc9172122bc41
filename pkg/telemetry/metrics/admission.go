package metrics

import (
	"time"

	"mercator-hq/smartproxy/pkg/admission"
	"mercator-hq/smartproxy/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// AdmissionMetrics tracks the held-connection queue.
//
// Metrics:
//   - smartproxy_queue_depth: connections currently held (gauge func)
//   - smartproxy_queue_capacity: configured queue bound
//   - smartproxy_intents_admitted_total: connections enqueued
//   - smartproxy_intents_released_total: connections handed to the backend
//   - smartproxy_intents_failed_total: connections failed, by reason
//   - smartproxy_intent_wait_seconds: time from accept to release
type AdmissionMetrics struct {
	capacity prometheus.Gauge
	admitted prometheus.Counter
	released prometheus.Counter
	failed   *prometheus.CounterVec
	wait     prometheus.Histogram
}

// NewAdmissionMetrics creates and registers admission metrics.
func NewAdmissionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AdmissionMetrics {
	am := &AdmissionMetrics{
		capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "queue_capacity",
			Help:      "Configured bound of the admission queue",
		}),
		admitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "intents_admitted_total",
			Help:      "Total number of connections enqueued for a backend power cycle",
		}),
		released: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "intents_released_total",
			Help:      "Total number of held connections released to the backend",
		}),
		failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "intents_failed_total",
				Help:      "Total number of connections failed without reaching the backend",
			},
			[]string{"reason"},
		),
		wait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "intent_wait_seconds",
			Help:      "Time a connection spent held before release",
			Buckets:   []float64{0.001, 0.1, 1, 5, 15, 30, 60, 120, 300},
		}),
	}

	registry.MustRegister(am.capacity, am.admitted, am.released, am.failed, am.wait)
	return am
}

// SetCapacity publishes the configured queue bound.
func (am *AdmissionMetrics) SetCapacity(capacity int) {
	am.capacity.Set(float64(capacity))
}

// TrackDepth registers a gauge backed by the live queue length.
func (am *AdmissionMetrics) TrackDepth(cfg *config.MetricsConfig, registry *prometheus.Registry, fn func() int) {
	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "queue_depth",
			Help:      "Number of connections currently held while the backend starts",
		},
		func() float64 { return float64(fn()) },
	))
}

// RecordAdmitted counts an enqueued connection.
func (am *AdmissionMetrics) RecordAdmitted() {
	am.admitted.Inc()
}

// RecordReleased counts a released connection and observes its wait.
func (am *AdmissionMetrics) RecordReleased(intent *admission.Intent) {
	am.released.Inc()
	am.wait.Observe(time.Since(intent.EnqueuedAt).Seconds())
}

// RecordFailed counts a failed connection by reason.
func (am *AdmissionMetrics) RecordFailed(failure admission.Failure) {
	am.failed.WithLabelValues(failure.String()).Inc()
}
