package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the configured agents",
	RunE:  runAgents,
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}

func runAgents(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Shutdown(context.Background())

	out := cmd.OutOrStdout()
	for _, def := range rt.Agents.List() {
		fmt.Fprintf(out, "%s  (%s)\n", def.ID, def.Model)
		fmt.Fprintf(out, "    name:     %s\n", def.Name)
		if len(def.Tools) > 0 {
			fmt.Fprintf(out, "    tools:    %s\n", strings.Join(def.Tools, ", "))
		}
		if len(def.Handoffs) > 0 {
			fmt.Fprintf(out, "    handoffs: %s\n", strings.Join(def.Handoffs, ", "))
		}
	}
	return nil
}
