package oracle

import (
	"context"
	"time"

	"mercator-hq/smartproxy/pkg/ipmi"
	"mercator-hq/smartproxy/pkg/probe"
	"mercator-hq/smartproxy/pkg/telemetry/logging"
)

// Signal is the derived backend observation posted to the lifecycle
// state machine.
type Signal int

const (
	// ObservedUnknown means the power query failed; no transition.
	ObservedUnknown Signal = iota
	// ObservedOff means chassis power is off.
	ObservedOff
	// ObservedStarting means power is on but no backend port accepts.
	ObservedStarting
	// ObservedReady means power is on and a backend port accepts.
	ObservedReady
)

// String returns a human-readable signal name.
func (s Signal) String() string {
	switch s {
	case ObservedOff:
		return "observed_off"
	case ObservedStarting:
		return "observed_starting"
	case ObservedReady:
		return "observed_ready"
	default:
		return "observed_unknown"
	}
}

// Sink receives derived signals. Implementations must not block for
// long; the lifecycle machine's event channel is buffered.
type Sink func(Signal)

// Oracle polls power and reachability on a fixed interval.
type Oracle struct {
	effector ipmi.Effector
	prober   *probe.Prober
	ports    []uint16
	interval time.Duration
	logger   *logging.Logger
}

// New creates an Oracle. The ports slice should list the backend
// ports with the primary first.
func New(effector ipmi.Effector, prober *probe.Prober, ports []uint16, interval time.Duration, logger *logging.Logger) *Oracle {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Oracle{
		effector: effector,
		prober:   prober,
		ports:    ports,
		interval: interval,
		logger:   logger,
	}
}

// Observe performs one poll and returns the derived signal.
func (o *Oracle) Observe(ctx context.Context) Signal {
	switch o.effector.QueryPower(ctx) {
	case ipmi.PoweredOff:
		return ObservedOff
	case ipmi.PoweredOn:
		if o.prober.ProbeAny(ctx, o.ports) == probe.Reachable {
			return ObservedReady
		}
		return ObservedStarting
	default:
		return ObservedUnknown
	}
}

// Run polls until the context is canceled, posting each observation to
// the sink. The first poll happens immediately so a restart converges
// without waiting a full interval.
func (o *Oracle) Run(ctx context.Context, sink Sink) {
	o.logger.Info("power state oracle started",
		"interval", o.interval.String(),
		"backend_ports", len(o.ports),
	)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		signal := o.Observe(ctx)
		if ctx.Err() != nil {
			o.logger.Info("power state oracle stopped")
			return
		}
		o.logger.Debug("poll complete", "signal", signal.String())
		sink(signal)

		select {
		case <-ctx.Done():
			o.logger.Info("power state oracle stopped")
			return
		case <-ticker.C:
		}
	}
}
