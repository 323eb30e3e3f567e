package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stingersec/stinger/pkg/events"
	"github.com/stingersec/stinger/pkg/history"
	"github.com/stingersec/stinger/pkg/run"
	"github.com/stingersec/stinger/pkg/session"
)

var (
	runMaxInteractions int
	runPriceCeiling    float64
	runModel           string
)

var runCmd = &cobra.Command{
	Use:   "run [agent-id]",
	Short: "Start an interactive session with an agent",
	Long: `Start an interactive session. Each line you type runs one turn:
the agent reasons, executes tools, and may hand off to other agents
before replying. Press Ctrl+C twice within two seconds to interrupt a
running turn.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInteractive,
}

func init() {
	runCmd.Flags().IntVar(&runMaxInteractions, "max-interactions", 0, "override the per-turn interaction limit")
	runCmd.Flags().Float64Var(&runPriceCeiling, "price-ceiling", 0, "override the session budget in USD")
	runCmd.Flags().StringVar(&runModel, "model", "", "override the agent's model")
	rootCmd.AddCommand(runCmd)
}

func runInteractive(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Shutdown(context.Background())

	agentID := ""
	if len(args) > 0 {
		agentID = args[0]
	} else if defs := rt.Agents.List(); len(defs) > 0 {
		agentID = defs[0].ID
	}
	if agentID == "" {
		return fmt.Errorf("no agents available; add definitions under %s", rt.Config.AgentsDir)
	}

	cfg := rt.Config.RunConfig()
	if runMaxInteractions > 0 {
		cfg.MaxInteractions = runMaxInteractions
	}
	if runPriceCeiling > 0 {
		cfg.PriceCeiling = runPriceCeiling
	}
	if runModel != "" {
		cfg.Model = runModel
	}

	sess, err := rt.Manager.Create(agentID, cfg)
	if err != nil {
		return err
	}
	defer rt.Manager.Close(sess.ID)

	renderEvents(rt.Emitter, cmd)
	interrupter := session.NewInterrupter(session.DefaultInterruptWindow)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if interrupter.Signal(sess) {
				fmt.Fprintln(cmd.OutOrStdout(), "\ninterrupting turn...")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "\npress Ctrl+C again to interrupt")
			}
		}
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session %s with agent %s (type /help for commands)\n", sess.ID[:8], agentID)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprintf(out, "%s> ", sess.ActiveAgent())
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := handleCommand(out, rt, sess, line); quit {
				break
			}
			continue
		}

		outcome, err := rt.Manager.Submit(cmd.Context(), sess.ID, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		printOutcome(out, outcome)
	}
	return scanner.Err()
}

func handleCommand(out io.Writer, rt *Runtime, sess *run.Session, line string) bool {
	switch strings.Fields(line)[0] {
	case "/exit", "/quit":
		return true
	case "/cost":
		spend := rt.Ledger.SessionSpend(sess.ID)
		fmt.Fprintf(out, "spent $%.4f (%d in / %d out tokens)\n", spend.USD, spend.InputTokens, spend.OutputTokens)
	case "/history":
		for _, msg := range sess.History.Messages() {
			content := msg.Content
			if len(content) > 120 {
				content = content[:120] + "..."
			}
			fmt.Fprintf(out, "[%s] %s\n", msg.Role, content)
		}
	case "/agent":
		fmt.Fprintf(out, "active agent: %s\n", sess.ActiveAgent())
	case "/help":
		fmt.Fprintln(out, "/cost     show session spend")
		fmt.Fprintln(out, "/history  show the transcript")
		fmt.Fprintln(out, "/agent    show the active agent")
		fmt.Fprintln(out, "/exit     leave the session")
	default:
		fmt.Fprintf(out, "unknown command %s\n", line)
	}
	return false
}

func renderEvents(emitter *events.Emitter, cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	emitter.On(events.TypeToolCallRequested, func(ev events.Event) {
		fmt.Fprintf(out, "  [%s] running %v\n", ev.AgentID, ev.Payload["tool"])
	})
	emitter.On(events.TypeHandoffOccurred, func(ev events.Event) {
		fmt.Fprintf(out, "  handoff: %v -> %v\n", ev.Payload["from"], ev.Payload["to"])
	})
}

func printOutcome(out io.Writer, outcome run.TurnOutcome) {
	for _, msg := range outcome.Messages {
		if msg.Role == history.RoleAssistant && msg.Content != "" {
			fmt.Fprintf(out, "%s: %s\n", msg.Sender, msg.Content)
		}
	}

	switch outcome.State {
	case run.StateDone:
	case run.StateCancelled:
		fmt.Fprintln(out, "(turn interrupted)")
	case run.StateBudgetExceeded:
		fmt.Fprintln(out, "(session budget exhausted)")
	case run.StateMaxTurnsExceeded:
		fmt.Fprintln(out, "(interaction limit reached)")
	case run.StateError:
		fmt.Fprintf(out, "(turn failed: %v)\n", outcome.Err)
	}
	if outcome.CostDelta > 0 {
		fmt.Fprintf(out, "  cost: $%.4f\n", outcome.CostDelta)
	}
}
