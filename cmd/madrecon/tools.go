package main

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/nao1215/madrecon/internal/toolexec"
	"github.com/nao1215/madrecon/internal/tools"
)

// NewToolsCmd creates the tools command.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the supported tools and whether they are installed",
		Long: `Tools prints the tool registry in pipeline order: the stage that runs
each tool, whether it receives custom headers, and whether its executable
is found on PATH.

The identifiers printed here are the values accepted by --include and
--exclude.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			missingOnly, err := cmd.Flags().GetBool("missing")
			if err != nil {
				return err
			}
			printTools(cmd.OutOrStdout(), exec.LookPath, missingOnly)
			return nil
		},
	}

	cmd.Flags().Bool("missing", false, "Only list tools that are not installed")

	return cmd
}

// printTools writes the registry table. lookPath resolves executables.
func printTools(out io.Writer, lookPath toolexec.LookPathFunc, missingOnly bool) {
	fmt.Fprintf(out, "%-12s  %-10s  %-7s  %-9s  %s\n", "TOOL", "STAGE", "HEADERS", "INSTALLED", "DESCRIPTION")

	for _, spec := range tools.All() {
		installed := "yes"
		if _, err := lookPath(spec.Binary); err != nil {
			installed = "no"
		} else if missingOnly {
			continue
		}

		headers := "-"
		if spec.HeaderAware {
			headers = "yes"
		}
		fmt.Fprintf(out, "%-12s  %-10s  %-7s  %-9s  %s\n", spec.ID, spec.Category, headers, installed, spec.Description)
	}
}
