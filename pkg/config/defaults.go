package config

// Default values for configuration fields.
const (
	// Proxy defaults
	DefaultProxyHost = "0.0.0.0"

	// Power management defaults
	DefaultInactivityTimeoutSec uint32 = 3600
	DefaultStartupTimeoutSec    uint32 = 300
	DefaultCheckIntervalSec     uint32 = 30

	// Request handling defaults
	DefaultMaxQueueSize      uint32 = 1000
	DefaultRequestTimeoutSec uint32 = 60

	// Telemetry defaults
	DefaultLoggingLevel         = "info"
	DefaultLoggingFormat        = "json"
	DefaultMetricsListenAddress = "127.0.0.1:9090"
	DefaultMetricsPath          = "/metrics"
	DefaultMetricsNamespace     = "smartproxy"

	// Journal defaults
	DefaultJournalPath          = "data/journal.db"
	DefaultJournalRetentionDays = 90
	DefaultJournalPruneSchedule = "0 3 * * *"
)

// DefaultPortMappings returns the default [[8080, 80]] mapping set.
func DefaultPortMappings() []PortMapping {
	return []PortMapping{{ListenPort: 8080, BackendPort: 80}}
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	if cfg.ProxyHost == "" {
		cfg.ProxyHost = DefaultProxyHost
	}
	if len(cfg.PortMappings) == 0 {
		cfg.PortMappings = DefaultPortMappings()
	}
	if cfg.InactivityTimeoutSec == 0 {
		cfg.InactivityTimeoutSec = DefaultInactivityTimeoutSec
	}
	if cfg.StartupTimeoutSec == 0 {
		cfg.StartupTimeoutSec = DefaultStartupTimeoutSec
	}
	if cfg.CheckIntervalSec == 0 {
		cfg.CheckIntervalSec = DefaultCheckIntervalSec
	}
	if cfg.MaxQueueSize == 0 {
		cfg.MaxQueueSize = DefaultMaxQueueSize
	}
	if cfg.RequestTimeoutSec == 0 {
		cfg.RequestTimeoutSec = DefaultRequestTimeoutSec
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}

	// Journal defaults
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = DefaultJournalPath
	}
	if cfg.Journal.RetentionDays == 0 {
		cfg.Journal.RetentionDays = DefaultJournalRetentionDays
	}
	if cfg.Journal.PruneSchedule == "" {
		cfg.Journal.PruneSchedule = DefaultJournalPruneSchedule
	}
}
