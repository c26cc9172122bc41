package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/smartproxy/pkg/cli"
	"mercator-hq/smartproxy/pkg/config"
	"mercator-hq/smartproxy/pkg/ipmi"
	"mercator-hq/smartproxy/pkg/telemetry/logging"
)

var powerCmd = &cobra.Command{
	Use:   "power",
	Short: "Query or drive backend power directly",
	Long: `Query or drive the backend's power state through the configured IPMI
interface, bypassing the proxy's lifecycle machine.

This is a debugging aid. Forcing power off while the proxy is running
will strand held connections; prefer letting the proxy manage power.

Examples:
  # Report the chassis power state
  smartproxy power status

  # Power the backend on
  smartproxy power on

  # Request a graceful OS shutdown
  smartproxy power soft

  # Force chassis power off
  smartproxy power off`,
}

var powerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the chassis power state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEffector(func(ctx context.Context, tool *ipmi.Tool) error {
			fmt.Printf("chassis power is %s\n", tool.QueryPower(ctx))
			return nil
		})
	},
}

var powerOnCmd = &cobra.Command{
	Use:   "on",
	Short: "Power the backend on",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEffector(func(ctx context.Context, tool *ipmi.Tool) error {
			if err := tool.PowerOn(ctx); err != nil {
				return cli.NewCommandError("power on", err)
			}
			fmt.Println("power on requested")
			return nil
		})
	},
}

var powerSoftCmd = &cobra.Command{
	Use:   "soft",
	Short: "Request a graceful OS shutdown",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEffector(func(ctx context.Context, tool *ipmi.Tool) error {
			if err := tool.PowerSoft(ctx); err != nil {
				return cli.NewCommandError("power soft", err)
			}
			fmt.Println("soft shutdown requested")
			return nil
		})
	},
}

var powerOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Force chassis power off",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEffector(func(ctx context.Context, tool *ipmi.Tool) error {
			if err := tool.PowerOff(ctx); err != nil {
				return cli.NewCommandError("power off", err)
			}
			fmt.Println("chassis power off requested")
			return nil
		})
	},
}

func init() {
	powerCmd.AddCommand(powerStatusCmd, powerOnCmd, powerSoftCmd, powerOffCmd)
	rootCmd.AddCommand(powerCmd)
}

// withEffector loads the configuration, builds the IPMI tool, and runs
// fn with a bounded context.
func withEffector(fn func(ctx context.Context, tool *ipmi.Tool) error) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	logger := logging.Discard()
	if verbose {
		logger, err = logging.New(logging.Config{
			Level:   "debug",
			Format:  "text",
			Secrets: []string{cfg.IPMIPassword},
		})
		if err != nil {
			return cli.NewConfigError("telemetry.logging", err.Error())
		}
	}

	tool, err := ipmi.NewTool(ipmi.ToolConfig{
		Path:     cfg.IPMIPath,
		Host:     cfg.IPMIHost,
		User:     cfg.IPMIUser,
		Password: cfg.IPMIPassword,
	}, logger)
	if err != nil {
		return cli.NewConfigError("ipmi_path", err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return fn(ctx, tool)
}
