// Package cli wires the runtime together behind the stinger command.
package cli

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "stinger",
	Short: "Stinger - multi-agent security testing runtime",
	Long: `Stinger runs cooperating AI agents against authorized targets.
Agents observe, decide, and act through tools, hand work off to each
other, and stay within per-session interaction and budget limits.`,
	Version: version,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.stinger/stinger.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// RootCmd exposes the root command for tests.
func RootCmd() *cobra.Command {
	return rootCmd
}
