package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a file at the specified path.
// The file may be JSON or YAML; both parse through the same decoder.
// It applies default values, validates the configuration, and returns
// any errors. Environment overrides are not applied; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a file and applies
// environment variable overrides. Variables follow the naming convention
// SMARTPROXY_FIELD (e.g. SMARTPROXY_TARGET_HOST) and always take
// precedence over file-based configuration. IPMITOOL, when set, overrides
// ipmi_path; the test harness relies on this.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("SMARTPROXY_PROXY_HOST"); val != "" {
		cfg.ProxyHost = val
	}
	if val := os.Getenv("SMARTPROXY_TARGET_HOST"); val != "" {
		cfg.TargetHost = val
	}
	if val := os.Getenv("SMARTPROXY_IPMI_HOST"); val != "" {
		cfg.IPMIHost = val
	}
	if val := os.Getenv("SMARTPROXY_IPMI_USER"); val != "" {
		cfg.IPMIUser = val
	}
	if val := os.Getenv("SMARTPROXY_IPMI_PASSWORD"); val != "" {
		cfg.IPMIPassword = val
	}
	if val := os.Getenv("SMARTPROXY_IPMI_PATH"); val != "" {
		cfg.IPMIPath = val
	}
	if val := os.Getenv("SMARTPROXY_INACTIVITY_TIMEOUT"); val != "" {
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			cfg.InactivityTimeoutSec = uint32(n)
		}
	}
	if val := os.Getenv("SMARTPROXY_STARTUP_TIMEOUT"); val != "" {
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			cfg.StartupTimeoutSec = uint32(n)
		}
	}
	if val := os.Getenv("SMARTPROXY_CHECK_INTERVAL"); val != "" {
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			cfg.CheckIntervalSec = uint32(n)
		}
	}
	if val := os.Getenv("SMARTPROXY_MAX_QUEUE_SIZE"); val != "" {
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			cfg.MaxQueueSize = uint32(n)
		}
	}
	if val := os.Getenv("SMARTPROXY_REQUEST_TIMEOUT"); val != "" {
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			cfg.RequestTimeoutSec = uint32(n)
		}
	}

	// IPMITOOL is the historical override used by the test harness to
	// substitute a mock power tool.
	if val := os.Getenv("IPMITOOL"); val != "" {
		cfg.IPMIPath = val
	}
}

// UnmarshalYAML decodes a port mapping from its two-element array form.
func (m *PortMapping) UnmarshalYAML(value *yaml.Node) error {
	var pair []int
	if err := value.Decode(&pair); err != nil {
		return fmt.Errorf("port mapping must be a [listen_port, backend_port] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("port mapping must have exactly 2 elements, got %d", len(pair))
	}
	for _, p := range pair {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("port %d out of range 1-65535", p)
		}
	}
	m.ListenPort = uint16(pair[0])
	m.BackendPort = uint16(pair[1])
	return nil
}

// MarshalYAML encodes a port mapping back to its two-element array form.
func (m PortMapping) MarshalYAML() (interface{}, error) {
	return []int{int(m.ListenPort), int(m.BackendPort)}, nil
}
