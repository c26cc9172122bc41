package config

import (
	"errors"
	"fmt"
)

// ValidationError represents a configuration validation failure for a
// specific field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

// Validate checks that the configuration is complete and consistent.
// It returns the first error encountered, wrapped with field context.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}

	// Required identity fields
	if cfg.TargetHost == "" {
		return &ValidationError{Field: "target_host", Message: "required"}
	}
	if cfg.IPMIHost == "" {
		return &ValidationError{Field: "ipmi_host", Message: "required"}
	}
	if cfg.IPMIUser == "" {
		return &ValidationError{Field: "ipmi_user", Message: "required"}
	}
	if cfg.IPMIPassword == "" {
		return &ValidationError{Field: "ipmi_password", Message: "required"}
	}
	if cfg.IPMIPath == "" {
		return &ValidationError{Field: "ipmi_path", Message: "required"}
	}

	// Port mappings: non-empty, unique listen ports
	if len(cfg.PortMappings) == 0 {
		return &ValidationError{Field: "port_mappings", Message: "must contain at least one [listen_port, backend_port] pair"}
	}
	seen := make(map[uint16]bool, len(cfg.PortMappings))
	for i, m := range cfg.PortMappings {
		if m.ListenPort == 0 || m.BackendPort == 0 {
			return &ValidationError{
				Field:   "port_mappings",
				Message: fmt.Sprintf("entry %d: ports must be positive", i),
			}
		}
		if seen[m.ListenPort] {
			return &ValidationError{
				Field:   "port_mappings",
				Message: fmt.Sprintf("listen port %d appears more than once", m.ListenPort),
			}
		}
		seen[m.ListenPort] = true
	}

	// Timing knobs must be positive
	if cfg.InactivityTimeoutSec == 0 {
		return &ValidationError{Field: "inactivity_timeout", Message: "must be positive"}
	}
	if cfg.StartupTimeoutSec == 0 {
		return &ValidationError{Field: "startup_timeout", Message: "must be positive"}
	}
	if cfg.CheckIntervalSec == 0 {
		return &ValidationError{Field: "check_interval", Message: "must be positive"}
	}
	if cfg.MaxQueueSize == 0 {
		return &ValidationError{Field: "max_queue_size", Message: "must be positive"}
	}
	if cfg.RequestTimeoutSec == 0 {
		return &ValidationError{Field: "request_timeout", Message: "must be positive"}
	}

	// Logging level/format are parsed later by the logger; only catch
	// obviously wrong values here.
	switch cfg.Telemetry.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return &ValidationError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown level %q", cfg.Telemetry.Logging.Level),
		}
	}
	switch cfg.Telemetry.Logging.Format {
	case "", "json", "text":
	default:
		return &ValidationError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown format %q", cfg.Telemetry.Logging.Format),
		}
	}

	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		return &ValidationError{Field: "journal.path", Message: "required when journal is enabled"}
	}
	if cfg.Journal.RetentionDays < 0 {
		return &ValidationError{Field: "journal.retention_days", Message: "must not be negative"}
	}

	return nil
}
