package metrics

import (
	"mercator-hq/smartproxy/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// TrafficMetrics tracks forwarded connections and bytes.
//
// Metrics:
//   - smartproxy_forwarded_bytes_total: bytes by direction
//   - smartproxy_active_connections: live splices (gauge func)
type TrafficMetrics struct {
	bytes *prometheus.CounterVec
}

// NewTrafficMetrics creates and registers traffic metrics.
func NewTrafficMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *TrafficMetrics {
	tm := &TrafficMetrics{
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "forwarded_bytes_total",
				Help:      "Total bytes forwarded between clients and the backend",
			},
			[]string{"direction"},
		),
	}
	registry.MustRegister(tm.bytes)
	return tm
}

// TrackActive registers a gauge backed by the live splice count.
func (tm *TrafficMetrics) TrackActive(cfg *config.MetricsConfig, registry *prometheus.Registry, fn func() int) {
	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "active_connections",
			Help:      "Number of client connections currently spliced to the backend",
		},
		func() float64 { return float64(fn()) },
	))
}

// AddBytes records bytes moved through a finished copy direction.
func (tm *TrafficMetrics) AddBytes(direction string, n int64) {
	if n > 0 {
		tm.bytes.WithLabelValues(direction).Add(float64(n))
	}
}
