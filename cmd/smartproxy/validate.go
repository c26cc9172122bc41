package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/smartproxy/pkg/cli"
	"mercator-hq/smartproxy/pkg/config"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without starting the proxy.

The file is parsed, defaults are applied, environment overrides are
honored, and the result is checked for completeness and consistency.
On success a summary of the effective configuration is printed with
credentials elided.

Examples:
  # Validate the default config file
  smartproxy validate

  # Validate a specific file
  smartproxy validate -c /etc/smartproxy/config.yaml

  # Print the effective configuration as JSON
  smartproxy validate --format json`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

// configSummary is the printable view of a validated configuration.
// Credentials are excluded.
type configSummary struct {
	ProxyHost      string   `json:"proxy_host"`
	PortMappings   []string `json:"port_mappings"`
	TargetHost     string   `json:"target_host"`
	IPMIHost       string   `json:"ipmi_host"`
	IPMIPath       string   `json:"ipmi_path"`
	Inactivity     string   `json:"inactivity_timeout"`
	Startup        string   `json:"startup_timeout"`
	CheckInterval  string   `json:"check_interval"`
	MaxQueueSize   uint32   `json:"max_queue_size"`
	RequestTimeout string   `json:"request_timeout"`
	WarmupSchedule string   `json:"warmup_schedule,omitempty"`
	MetricsEnabled bool     `json:"metrics_enabled"`
	JournalEnabled bool     `json:"journal_enabled"`
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	mappings := make([]string, 0, len(cfg.PortMappings))
	for _, m := range cfg.PortMappings {
		mappings = append(mappings, fmt.Sprintf("%d->%d", m.ListenPort, m.BackendPort))
	}
	summary := configSummary{
		ProxyHost:      cfg.ProxyHost,
		PortMappings:   mappings,
		TargetHost:     cfg.TargetHost,
		IPMIHost:       cfg.IPMIHost,
		IPMIPath:       cfg.IPMIPath,
		Inactivity:     cfg.InactivityTimeout().String(),
		Startup:        cfg.StartupTimeout().String(),
		CheckInterval:  cfg.CheckInterval().String(),
		MaxQueueSize:   cfg.MaxQueueSize,
		RequestTimeout: cfg.RequestTimeout().String(),
		WarmupSchedule: cfg.WarmupSchedule,
		MetricsEnabled: cfg.Telemetry.Metrics.Enabled,
		JournalEnabled: cfg.Journal.Enabled,
	}

	if validateFlags.format == string(cli.FormatJSON) {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, summary)
	}

	fmt.Printf("configuration %s is valid\n", cfgFile)
	fmt.Printf("  proxy_host:         %s\n", summary.ProxyHost)
	fmt.Printf("  port_mappings:      %v\n", summary.PortMappings)
	fmt.Printf("  target_host:        %s\n", summary.TargetHost)
	fmt.Printf("  ipmi_host:          %s\n", summary.IPMIHost)
	fmt.Printf("  ipmi_path:          %s\n", summary.IPMIPath)
	fmt.Printf("  inactivity_timeout: %s\n", summary.Inactivity)
	fmt.Printf("  startup_timeout:    %s\n", summary.Startup)
	fmt.Printf("  check_interval:     %s\n", summary.CheckInterval)
	fmt.Printf("  max_queue_size:     %d\n", summary.MaxQueueSize)
	fmt.Printf("  request_timeout:    %s\n", summary.RequestTimeout)
	if summary.WarmupSchedule != "" {
		fmt.Printf("  warmup_schedule:    %s\n", summary.WarmupSchedule)
	}
	fmt.Printf("  metrics_enabled:    %t\n", summary.MetricsEnabled)
	fmt.Printf("  journal_enabled:    %t\n", summary.JournalEnabled)
	return nil
}
