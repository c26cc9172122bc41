package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

const minimalJSON = `{
  "target_host": "server.lan",
  "ipmi_host": "ipmi.lan",
  "ipmi_user": "admin",
  "ipmi_password": "hunter2",
  "ipmi_path": "/usr/bin/ipmitool"
}`

func TestLoadConfig_JSON(t *testing.T) {
	path := writeConfigFile(t, "config.json", minimalJSON)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.TargetHost != "server.lan" {
		t.Errorf("expected target host %q, got %q", "server.lan", cfg.TargetHost)
	}
	if cfg.ProxyHost != DefaultProxyHost {
		t.Errorf("expected default proxy host %q, got %q", DefaultProxyHost, cfg.ProxyHost)
	}
	if len(cfg.PortMappings) != 1 || cfg.PortMappings[0].ListenPort != 8080 || cfg.PortMappings[0].BackendPort != 80 {
		t.Errorf("expected default mapping [[8080 80]], got %v", cfg.PortMappings)
	}
	if cfg.InactivityTimeoutSec != DefaultInactivityTimeoutSec {
		t.Errorf("expected default inactivity timeout %d, got %d", DefaultInactivityTimeoutSec, cfg.InactivityTimeoutSec)
	}
	if cfg.MaxQueueSize != DefaultMaxQueueSize {
		t.Errorf("expected default max queue size %d, got %d", DefaultMaxQueueSize, cfg.MaxQueueSize)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", `
target_host: server.lan
ipmi_host: ipmi.lan
ipmi_user: admin
ipmi_password: hunter2
ipmi_path: /usr/bin/ipmitool
port_mappings:
  - [8080, 80]
  - [8443, 443]
inactivity_timeout: 120
request_timeout: 15
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if len(cfg.PortMappings) != 2 {
		t.Fatalf("expected 2 port mappings, got %d", len(cfg.PortMappings))
	}
	if cfg.PortMappings[1].ListenPort != 8443 || cfg.PortMappings[1].BackendPort != 443 {
		t.Errorf("expected mapping [8443 443], got %v", cfg.PortMappings[1])
	}
	if got := cfg.InactivityTimeout(); got != 2*time.Minute {
		t.Errorf("expected inactivity timeout 2m, got %v", got)
	}
	if got := cfg.RequestTimeout(); got != 15*time.Second {
		t.Errorf("expected request timeout 15s, got %v", got)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoadConfig_InvalidSyntax(t *testing.T) {
	path := writeConfigFile(t, "bad.json", `{"target_host": `)
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected parse error, got nil")
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		strip func(*Config)
		field string
	}{
		{"missing target_host", func(c *Config) { c.TargetHost = "" }, "target_host"},
		{"missing ipmi_host", func(c *Config) { c.IPMIHost = "" }, "ipmi_host"},
		{"missing ipmi_user", func(c *Config) { c.IPMIUser = "" }, "ipmi_user"},
		{"missing ipmi_password", func(c *Config) { c.IPMIPassword = "" }, "ipmi_password"},
		{"missing ipmi_path", func(c *Config) { c.IPMIPath = "" }, "ipmi_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.strip(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error to mention %q, got %q", tt.field, err.Error())
			}
		})
	}
}

func TestValidate_DuplicateListenPorts(t *testing.T) {
	cfg := validConfig()
	cfg.PortMappings = []PortMapping{
		{ListenPort: 8080, BackendPort: 80},
		{ListenPort: 8080, BackendPort: 443},
	}

	if err := Validate(cfg); err == nil {
		t.Fatal("expected duplicate listen port error, got nil")
	}
}

func TestValidate_ZeroTimings(t *testing.T) {
	cfg := validConfig()
	cfg.CheckIntervalSec = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for zero check_interval, got nil")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, "config.json", minimalJSON)

	t.Setenv("SMARTPROXY_TARGET_HOST", "other.lan")
	t.Setenv("SMARTPROXY_MAX_QUEUE_SIZE", "7")
	t.Setenv("IPMITOOL", "/opt/mock/ipmitool")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides failed: %v", err)
	}

	if cfg.TargetHost != "other.lan" {
		t.Errorf("expected env override target host %q, got %q", "other.lan", cfg.TargetHost)
	}
	if cfg.MaxQueueSize != 7 {
		t.Errorf("expected env override max queue size 7, got %d", cfg.MaxQueueSize)
	}
	if cfg.IPMIPath != "/opt/mock/ipmitool" {
		t.Errorf("expected IPMITOOL override %q, got %q", "/opt/mock/ipmitool", cfg.IPMIPath)
	}
}

func TestPortMapping_UnmarshalErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"wrong arity", `{"target_host":"t","ipmi_host":"i","ipmi_user":"u","ipmi_password":"p","ipmi_path":"x","port_mappings":[[8080]]}`},
		{"zero port", `{"target_host":"t","ipmi_host":"i","ipmi_user":"u","ipmi_password":"p","ipmi_path":"x","port_mappings":[[0,80]]}`},
		{"port overflow", `{"target_host":"t","ipmi_host":"i","ipmi_user":"u","ipmi_password":"p","ipmi_path":"x","port_mappings":[[70000,80]]}`},
		{"not a pair", `{"target_host":"t","ipmi_host":"i","ipmi_user":"u","ipmi_password":"p","ipmi_path":"x","port_mappings":["8080:80"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, "config.json", tt.content)
			if _, err := LoadConfig(path); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestBackendPorts(t *testing.T) {
	cfg := validConfig()
	cfg.PortMappings = []PortMapping{
		{ListenPort: 8080, BackendPort: 80},
		{ListenPort: 8443, BackendPort: 443},
		{ListenPort: 8081, BackendPort: 80},
	}

	ports := cfg.BackendPorts()
	if len(ports) != 2 {
		t.Fatalf("expected 2 distinct backend ports, got %v", ports)
	}
	if ports[0] != 80 || ports[1] != 443 {
		t.Errorf("expected ports [80 443] with primary first, got %v", ports)
	}
	if cfg.PrimaryBackendPort() != 80 {
		t.Errorf("expected primary backend port 80, got %d", cfg.PrimaryBackendPort())
	}
}

func validConfig() *Config {
	cfg := &Config{
		TargetHost:   "server.lan",
		IPMIHost:     "ipmi.lan",
		IPMIUser:     "admin",
		IPMIPassword: "hunter2",
		IPMIPath:     "/usr/bin/ipmitool",
	}
	ApplyDefaults(cfg)
	return cfg
}
