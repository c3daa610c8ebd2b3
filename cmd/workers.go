package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"trip-agent/internal/app"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Connect to the configured MCP servers and list workers with their tools",
	RunE: func(cmd *cobra.Command, _ []string) error {
		verbose, _ := cmd.Flags().GetBool("tools")
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "MCP servers: %v\n\n", a.MCP.Servers())
			if a.Registry.Len() == 0 {
				fmt.Fprintln(out, "No workers available.")
				return nil
			}
			for _, w := range a.Registry.List() {
				fmt.Fprintf(out, "%s (%d tools, max %d rounds): %s\n", w.Name, w.Capabilities.Len(), w.MaxRounds, w.Description)
				if verbose {
					for _, line := range w.Capabilities.Describe() {
						fmt.Fprintf(out, "  - %s\n", line)
					}
				}
			}
			return nil
		})
	},
}

func init() {
	workersCmd.Flags().Bool("tools", false, "list every tool of every worker")
}
