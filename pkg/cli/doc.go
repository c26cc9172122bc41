// Package cli provides shared helpers for the smartproxy command line:
// process exit codes, signal-driven shutdown contexts, typed command
// errors, and output formatting for the debug subcommands.
package cli
