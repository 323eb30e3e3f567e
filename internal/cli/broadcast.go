package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var broadcastAgents []string

var broadcastCmd = &cobra.Command{
	Use:   "broadcast <prompt>",
	Short: "Run one prompt across several fresh sessions in parallel",
	Long: `Create one session per --agent flag, send the same prompt to all
of them concurrently, and print each outcome. Useful for sweeping a
target list with independent agents.`,
	Args: cobra.ExactArgs(1),
	RunE: runBroadcast,
}

func init() {
	broadcastCmd.Flags().StringSliceVar(&broadcastAgents, "agent", nil, "agent id to run (repeatable)")
	rootCmd.AddCommand(broadcastCmd)
}

func runBroadcast(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Shutdown(context.Background())

	agents := broadcastAgents
	if len(agents) == 0 {
		return fmt.Errorf("at least one --agent flag is required")
	}

	cfg := rt.Config.RunConfig()
	sessionAgent := make(map[string]string, len(agents))
	ids := make([]string, 0, len(agents))
	for _, agentID := range agents {
		sess, err := rt.Manager.Create(agentID, cfg)
		if err != nil {
			return err
		}
		ids = append(ids, sess.ID)
		sessionAgent[sess.ID] = agentID
		defer rt.Manager.Close(sess.ID)
	}

	results := rt.Manager.Broadcast(cmd.Context(), args[0], ids)

	sort.Strings(ids)
	out := cmd.OutOrStdout()
	for _, id := range ids {
		outcome := results[id]
		fmt.Fprintf(out, "=== %s (%s): %s ===\n", sessionAgent[id], id[:8], outcome.State)
		if outcome.Err != nil {
			fmt.Fprintf(out, "error: %v\n", outcome.Err)
			continue
		}
		printOutcome(out, outcome)
	}

	var total float64
	for _, outcome := range results {
		total += outcome.CostDelta
	}
	if total > 0 {
		fmt.Fprintf(out, "total cost: $%.4f\n", total)
	}
	return nil
}
