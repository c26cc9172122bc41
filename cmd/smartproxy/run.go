package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/smartproxy/pkg/cli"
	"mercator-hq/smartproxy/pkg/config"
	"mercator-hq/smartproxy/pkg/server"
	"mercator-hq/smartproxy/pkg/telemetry/logging"
)

var runFlags struct {
	logLevel string
	dryRun   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the proxy",
	Long: `Start the proxy with the specified configuration.

The proxy binds one TCP listener per configured port mapping, manages
backend power over IPMI, and runs until interrupted.

Examples:
  # Start with default config
  smartproxy run

  # Start with custom config
  smartproxy run -c /etc/smartproxy/config.yaml

  # Override log level
  smartproxy run --log-level debug

  # Validate config without starting
  smartproxy run --dry-run`,
	RunE: runProxy,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the proxy")
}

func runProxy(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	if runFlags.dryRun {
		fmt.Printf("configuration %s is valid\n", cfgFile)
		return nil
	}

	logger, err := logging.New(logging.Config{
		Level:   cfg.Telemetry.Logging.Level,
		Format:  cfg.Telemetry.Logging.Format,
		Secrets: []string{cfg.IPMIPassword},
		Writer:  os.Stdout,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	sup := server.New(cfg, logger, server.BuildInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
	})

	ctx := cli.SetupSignalHandler()
	if err := sup.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}
