package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/smartproxy/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "smartproxy",
	Short: "Demand-driven power management proxy for a backend server",
	Long: `Smartproxy is a transparent TCP proxy that powers a backend server on
and off based on demand.

Connections to the configured listen ports are held while the backend
boots (triggered over IPMI), forwarded once it is reachable, and the
backend is powered down again after a period of inactivity.

Running smartproxy with just a config file starts the proxy, so
"smartproxy -c config.yaml" is equivalent to "smartproxy run -c config.yaml".`,
	Version: Version,
	// Bare "smartproxy -c cfg" starts the proxy.
	RunE: runProxy,
}

// Execute runs the root command and exits with the mapped code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Errors are printed once, by Execute.
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}
