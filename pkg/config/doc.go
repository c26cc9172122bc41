// Package config defines the smartproxy configuration schema and handles
// loading, defaulting, and validation.
//
// Configuration is read once at startup from a JSON or YAML file. The
// schema is flat: the backend identity (target_host, ipmi_*), the port
// mappings, and the power-management timing knobs sit at the top level,
// with optional telemetry and journal sections.
//
// Environment variables of the form SMARTPROXY_<FIELD> override file
// values. The IPMITOOL variable overrides ipmi_path and exists so a test
// harness can substitute a mock power tool without editing the file.
package config
