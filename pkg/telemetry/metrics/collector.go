package metrics

import (
	"mercator-hq/smartproxy/pkg/admission"
	"mercator-hq/smartproxy/pkg/config"
	"mercator-hq/smartproxy/pkg/lifecycle"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector registers and records all proxy metrics. It implements
// lifecycle.Observer so the state machine feeds it directly.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	lifecycleMetrics *LifecycleMetrics
	admissionMetrics *AdmissionMetrics
	powerMetrics     *PowerMetrics
	trafficMetrics   *TrafficMetrics
}

var _ lifecycle.Observer = (*Collector)(nil)

// NewCollector creates a metrics collector with the given
// configuration and registry. A nil registry gets a fresh one with
// the standard Go and process collectors attached.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "smartproxy"
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
	}
	c.lifecycleMetrics = NewLifecycleMetrics(cfg, registry)
	c.admissionMetrics = NewAdmissionMetrics(cfg, registry)
	c.powerMetrics = NewPowerMetrics(cfg, registry)
	c.trafficMetrics = NewTrafficMetrics(cfg, registry)
	return c
}

// Registry returns the Prometheus registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// SetQueueCapacity publishes the configured admission queue bound.
func (c *Collector) SetQueueCapacity(capacity int) {
	c.admissionMetrics.SetCapacity(capacity)
}

// TrackQueueDepth registers a gauge backed by the live queue length.
func (c *Collector) TrackQueueDepth(fn func() int) {
	c.admissionMetrics.TrackDepth(c.config, c.registry, fn)
}

// TrackActiveConnections registers a gauge backed by the given
// function, typically the forwarder pool's active count.
func (c *Collector) TrackActiveConnections(fn func() int) {
	c.trafficMetrics.TrackActive(c.config, c.registry, fn)
}

// AddForwardedBytes records bytes moved through a finished copy
// direction. Direction is "in" (client to backend) or "out".
func (c *Collector) AddForwardedBytes(direction string, n int64) {
	c.trafficMetrics.AddBytes(direction, n)
}

// StateChanged implements lifecycle.Observer.
func (c *Collector) StateChanged(from, to lifecycle.State, reason string) {
	c.lifecycleMetrics.RecordTransition(from, to)
}

// IntentAdmitted implements lifecycle.Observer.
func (c *Collector) IntentAdmitted(intent *admission.Intent, queueLen int) {
	c.admissionMetrics.RecordAdmitted()
}

// IntentReleased implements lifecycle.Observer.
func (c *Collector) IntentReleased(intent *admission.Intent) {
	c.admissionMetrics.RecordReleased(intent)
}

// IntentFailed implements lifecycle.Observer.
func (c *Collector) IntentFailed(intent *admission.Intent, failure admission.Failure) {
	c.admissionMetrics.RecordFailed(failure)
}

// PowerCommand implements lifecycle.Observer.
func (c *Collector) PowerCommand(verb string, err error) {
	c.powerMetrics.RecordCommand(verb, err)
}
