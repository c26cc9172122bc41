package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for smartproxy.

To load completions:

Bash:
  $ source <(smartproxy completion bash)
  # To load permanently:
  $ smartproxy completion bash > /etc/bash_completion.d/smartproxy

Zsh:
  $ smartproxy completion zsh > "${fpath[1]}/_smartproxy"
  $ compinit

Fish:
  $ smartproxy completion fish | source
  # To load permanently:
  $ smartproxy completion fish > ~/.config/fish/completions/smartproxy.fish

PowerShell:
  PS> smartproxy completion powershell | Out-String | Invoke-Expression
  # To load permanently, add to your PowerShell profile
`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletion(os.Stdout)
		default:
			return fmt.Errorf("unsupported shell: %s", args[0])
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
