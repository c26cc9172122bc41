package ipmi

import (
	"context"
	"strings"
)

// ObservedState is the power state reported by the IPMI tool. It is an
// observation, not the authoritative lifecycle state.
type ObservedState int

const (
	// StateUnknown means the tool failed, timed out, or produced
	// unparseable output.
	StateUnknown ObservedState = iota
	// PoweredOff means the chassis reports power off.
	PoweredOff
	// PoweredOn means the chassis reports power on.
	PoweredOn
)

// String returns a human-readable state name.
func (s ObservedState) String() string {
	switch s {
	case PoweredOff:
		return "off"
	case PoweredOn:
		return "on"
	default:
		return "unknown"
	}
}

// Effector controls backend power. Implementations serialize their own
// invocations; callers may use an Effector from multiple goroutines.
type Effector interface {
	// QueryPower returns the observed chassis power state. Failures
	// are folded into StateUnknown rather than returned as errors.
	QueryPower(ctx context.Context) ObservedState

	// PowerOn requests chassis power up.
	PowerOn(ctx context.Context) error

	// PowerSoft requests a graceful shutdown via ACPI soft-off.
	PowerSoft(ctx context.Context) error

	// PowerOff forces chassis power down without involving the OS.
	PowerOff(ctx context.Context) error
}

// ParseChassisOutput maps ipmitool chassis output to an ObservedState.
// Any output that does not name the power state is StateUnknown.
func ParseChassisOutput(output string) ObservedState {
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "Chassis Power is on") {
			return PoweredOn
		}
		if strings.Contains(line, "Chassis Power is off") {
			return PoweredOff
		}
	}
	return StateUnknown
}
