package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"eduhub/internal/app"
	"eduhub/internal/database"
)

func newSeedCommand(load configLoader) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load users, friendships, groups and support agents from a YAML fixture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			cfg, err := load()
			if err != nil {
				return err
			}

			seed, err := database.LoadSeedFile(file)
			if err != nil {
				return err
			}

			db, err := database.NewManager(app.DatabaseConfig(cfg))
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			if err := db.ApplySeed(cmd.Context(), seed); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d user(s), %d friendship(s), %d group(s), %d agent(s)\n",
				len(seed.Users), len(seed.Friendships), len(seed.Groups), len(seed.Agents))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML seed file")
	return cmd
}
