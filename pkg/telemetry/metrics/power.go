package metrics

import (
	"mercator-hq/smartproxy/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// PowerMetrics tracks IPMI power commands.
//
// Metrics:
//   - smartproxy_power_commands_total: commands by verb and outcome
type PowerMetrics struct {
	commands *prometheus.CounterVec
}

// NewPowerMetrics creates and registers power command metrics.
func NewPowerMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PowerMetrics {
	pm := &PowerMetrics{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "power_commands_total",
				Help:      "Total number of IPMI power commands issued",
			},
			[]string{"verb", "outcome"},
		),
	}
	registry.MustRegister(pm.commands)
	return pm
}

// RecordCommand counts a completed power command.
func (pm *PowerMetrics) RecordCommand(verb string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	pm.commands.WithLabelValues(verb, outcome).Inc()
}
