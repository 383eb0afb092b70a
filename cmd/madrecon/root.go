package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for madrecon.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "madrecon",
		Short: "Recon pipeline orchestrator for bug bounty targets",
		Long: `madrecon runs a fixed pipeline of external recon tools against one domain.

Stages run in order: enumerate subdomains, collect archived and crawled
URLs, probe live hosts, scan, extract candidate parameters and optionally
fuzz. Tools missing from PATH are recorded and skipped, never fatal.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewToolsCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
