package config

import "time"

// Config is the root configuration structure for smartproxy.
// It describes the managed backend, its IPMI interface, the proxy port
// mappings, and the power-management timing knobs.
type Config struct {
	// ProxyHost is the local address the proxy listeners bind to.
	// Default: "0.0.0.0"
	ProxyHost string `yaml:"proxy_host"`

	// PortMappings is the list of [listen_port, backend_port] pairs.
	// One TCP listener is created per entry. Listen ports must be unique.
	// Default: [[8080, 80]]
	PortMappings []PortMapping `yaml:"port_mappings"`

	// TargetHost is the hostname or IP of the managed backend server.
	// Required.
	TargetHost string `yaml:"target_host"`

	// IPMIHost is the hostname or IP of the backend's IPMI interface.
	// Required.
	IPMIHost string `yaml:"ipmi_host"`

	// IPMIUser is the IPMI username. Required. Never logged.
	IPMIUser string `yaml:"ipmi_user"`

	// IPMIPassword is the IPMI password. Required. Never logged.
	IPMIPassword string `yaml:"ipmi_password"`

	// IPMIPath is the path to the ipmitool executable. Required.
	// The IPMITOOL environment variable overrides this when set.
	IPMIPath string `yaml:"ipmi_path"`

	// InactivityTimeoutSec is the idle period, in seconds, after which the
	// backend is powered off.
	// Default: 3600
	InactivityTimeoutSec uint32 `yaml:"inactivity_timeout"`

	// StartupTimeoutSec is the maximum time, in seconds, to wait for the
	// backend to become reachable after a power-on command.
	// Default: 300
	StartupTimeoutSec uint32 `yaml:"startup_timeout"`

	// CheckIntervalSec is the interval, in seconds, between power-state
	// polls and queue expiry sweeps.
	// Default: 30
	CheckIntervalSec uint32 `yaml:"check_interval"`

	// MaxQueueSize bounds the number of connections held while the backend
	// starts. Connections beyond the bound are rejected.
	// Default: 1000
	MaxQueueSize uint32 `yaml:"max_queue_size"`

	// RequestTimeoutSec is the per-connection deadline, in seconds, for a
	// held connection to be released to the backend.
	// Default: 60
	RequestTimeoutSec uint32 `yaml:"request_timeout"`

	// WarmupSchedule is an optional cron expression. At each firing the
	// backend is powered on if it is off, so it is warm before expected
	// traffic (e.g. "0 8 * * 1-5"). Empty disables scheduled warmup.
	WarmupSchedule string `yaml:"warmup_schedule"`

	// Telemetry contains observability configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Journal contains configuration for the optional power/admission
	// event journal.
	Journal JournalConfig `yaml:"journal"`
}

// PortMapping is a single [listen_port, backend_port] pair.
// It unmarshals from the two-element array form used in the config file.
type PortMapping struct {
	ListenPort  uint16
	BackendPort uint16
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format ("json", "text").
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the admin endpoint is served.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the address the admin endpoint binds to.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// Path is the metrics endpoint path.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "smartproxy"
	Namespace string `yaml:"namespace"`
}

// JournalConfig contains configuration for the event journal.
type JournalConfig struct {
	// Enabled controls whether power transitions and admission outcomes
	// are recorded. Default: false
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file path.
	// Default: "data/journal.db"
	Path string `yaml:"path"`

	// RetentionDays is how long journal records are kept.
	// 0 (or an absent key) is replaced by the default; negative values
	// are rejected.
	// Default: 90
	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is a cron expression for scheduling retention pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// InactivityTimeout returns the idle shutdown threshold as a duration.
func (c *Config) InactivityTimeout() time.Duration {
	return time.Duration(c.InactivityTimeoutSec) * time.Second
}

// StartupTimeout returns the backend startup deadline as a duration.
func (c *Config) StartupTimeout() time.Duration {
	return time.Duration(c.StartupTimeoutSec) * time.Second
}

// CheckInterval returns the poll interval as a duration.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSec) * time.Second
}

// RequestTimeout returns the per-connection deadline as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// PrimaryBackendPort returns the backend port of the first mapping.
// Reachability probes try this port first.
func (c *Config) PrimaryBackendPort() uint16 {
	if len(c.PortMappings) == 0 {
		return 80
	}
	return c.PortMappings[0].BackendPort
}

// BackendPorts returns the backend ports of all mappings, primary first,
// without duplicates.
func (c *Config) BackendPorts() []uint16 {
	seen := make(map[uint16]bool, len(c.PortMappings))
	ports := make([]uint16, 0, len(c.PortMappings))
	for _, m := range c.PortMappings {
		if seen[m.BackendPort] {
			continue
		}
		seen[m.BackendPort] = true
		ports = append(ports, m.BackendPort)
	}
	return ports
}
