package metrics

import (
	"mercator-hq/smartproxy/pkg/config"
	"mercator-hq/smartproxy/pkg/lifecycle"

	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleMetrics tracks the backend state machine.
//
// Metrics:
//   - smartproxy_backend_state: 1 for the current state, 0 otherwise
//   - smartproxy_state_transitions_total: transition count by from/to
type LifecycleMetrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

var allStates = []lifecycle.State{
	lifecycle.StateOff,
	lifecycle.StateStarting,
	lifecycle.StateReady,
	lifecycle.StateStopping,
}

// NewLifecycleMetrics creates and registers lifecycle metrics.
func NewLifecycleMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *LifecycleMetrics {
	lm := &LifecycleMetrics{
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "backend_state",
				Help:      "Backend lifecycle state, 1 for the current state and 0 otherwise",
			},
			[]string{"state"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "state_transitions_total",
				Help:      "Total number of lifecycle state transitions",
			},
			[]string{"from", "to"},
		),
	}

	registry.MustRegister(lm.state, lm.transitions)

	// The process starts with the backend assumed off.
	for _, s := range allStates {
		lm.state.WithLabelValues(s.String()).Set(0)
	}
	lm.state.WithLabelValues(lifecycle.StateOff.String()).Set(1)
	return lm
}

// RecordTransition updates the state gauge and transition counter.
func (lm *LifecycleMetrics) RecordTransition(from, to lifecycle.State) {
	for _, s := range allStates {
		v := 0.0
		if s == to {
			v = 1.0
		}
		lm.state.WithLabelValues(s.String()).Set(v)
	}
	lm.transitions.WithLabelValues(from.String(), to.String()).Inc()
}
