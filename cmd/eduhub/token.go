package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"eduhub/internal/identity"
)

func newTokenCommand(load configLoader) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <external-id>",
		Short: "Sign an auth token for an external identity with auth.jwt_secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not set")
			}
			if ttl <= 0 {
				return errors.New("--ttl must be positive")
			}

			verifier, err := identity.NewTokenVerifier(cfg.Auth.JWTSecret)
			if err != nil {
				return err
			}
			token, err := verifier.Issue(args[0], ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
