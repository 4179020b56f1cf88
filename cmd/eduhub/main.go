// Command eduhub runs the real-time connection hub of the education
// marketplace and its maintenance tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"eduhub/internal/config"
	"eduhub/internal/logger"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "eduhub",
		Short:         "Real-time messaging, presence and support hub",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG_FILE"),
		"path to a JSON or YAML config file")

	load := func() (*config.Config, error) {
		cfg, err := config.LoadConfigWithPrecedence(configPath)
		if err != nil {
			return nil, err
		}
		logger.Init(cfg.Log.Level, cfg.Log.Format)
		return cfg, nil
	}

	root.AddCommand(
		newServeCommand(load),
		newMigrateCommand(load),
		newSeedCommand(load),
		newTokenCommand(load),
		newVersionCommand(),
	)
	return root
}

type configLoader func() (*config.Config, error)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "eduhub %s (%s)\n", version, commit)
		},
	}
}
