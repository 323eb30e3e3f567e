package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/stingersec/stinger/internal/config"
	"github.com/stingersec/stinger/pkg/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List archived sessions",
	RunE:  runSessions,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print an archived session transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

func init() {
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func openArchive() (*session.Store, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return session.NewStore(filepath.Join(cfg.DataDir, "sessions"))
}

func runSessions(cmd *cobra.Command, args []string) error {
	store, err := openArchive()
	if err != nil {
		return err
	}
	ids, err := store.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(ids) == 0 {
		fmt.Fprintln(out, "no archived sessions")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	store, err := openArchive()
	if err != nil {
		return err
	}
	messages, err := store.Load(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, msg := range messages {
		who := string(msg.Role)
		if msg.Sender != "" {
			who = msg.Sender
		}
		fmt.Fprintf(out, "[%s] %s\n", who, msg.Content)
	}
	return nil
}
