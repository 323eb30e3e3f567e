package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stingersec/stinger/internal/config"
	"github.com/stingersec/stinger/pkg/history"
	"github.com/stingersec/stinger/pkg/inference"
)

var askModel string

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Stream a one-shot model reply",
	Long: `Ask the model a single question and stream the reply as it is
generated. No tools run and no session state is kept; use this for quick
lookups between engagements. Ctrl+C stops the stream.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askModel, "model", "", "model to query (defaults to session.model)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	model := askModel
	if model == "" {
		model = cfg.Session.Model
	}
	if model == "" {
		return fmt.Errorf("no model configured; pass --model or set session.model")
	}

	factory := inference.NewFactory(inference.Credentials{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
	})
	gateway, err := factory.ForModel(model)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream, err := gateway.InferStream(ctx, inference.Request{
		Model:    model,
		Messages: []history.Message{history.UserMessage(strings.Join(args, " "))},
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for chunk := range stream.C {
		if chunk.Done {
			break
		}
		fmt.Fprint(out, chunk.Text)
	}
	fmt.Fprintln(out)
	return stream.Err()
}
