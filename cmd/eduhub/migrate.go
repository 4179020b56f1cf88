package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"eduhub/internal/app"
	dbconfig "eduhub/pkg/database"
)

func newMigrateCommand(load configLoader) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			dbCfg := app.DatabaseConfig(cfg)

			db, err := sql.Open("sqlite3", dbCfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()
			if err := dbconfig.ApplyPragmas(db); err != nil {
				return fmt.Errorf("failed to apply SQLite pragmas: %w", err)
			}

			migrations := dbconfig.NewEmbeddedMigrationManager(db)
			out := cmd.OutOrStdout()

			if dryRun {
				pending, err := migrations.Pending()
				if err != nil {
					return err
				}
				for _, version := range pending {
					fmt.Fprintf(out, "pending %s\n", version)
				}
				fmt.Fprintf(out, "%d pending migration(s)\n", len(pending))
				return nil
			}

			applied, err := migrations.ApplyMigrations()
			if err != nil {
				return err
			}
			for _, version := range applied {
				fmt.Fprintf(out, "applied %s\n", version)
			}
			if err := dbconfig.NewSchemaValidator(db).Validate(); err != nil {
				return fmt.Errorf("schema validation failed: %w", err)
			}
			fmt.Fprintf(out, "%d migration(s) applied, schema is valid\n", len(applied))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
	return cmd
}
