package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanehq/lanehq/internal/auth"
	"github.com/lanehq/lanehq/internal/crypto"
)

// tokenCmd mints a token signed with auth.jwt.secret. Production tokens come
// from the identity provider; this exists for local development and smoke tests.
func tokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		scopes  []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		Long: `Mint an HS256 bearer token signed with auth.jwt.secret.

Examples:
  # A planner token valid for a day
  lanehq token --subject alice --scope roadmap:write --scope feedback:write --ttl 24h

  # Everything
  lanehq token --subject root --scope admin
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			issuer, err := auth.NewHMACVerifier(cfg.Auth.JWT)
			if err != nil {
				return err
			}
			token, err := issuer.Issue(subject, scopes, ttl)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w (valid scopes: %s)", err, validScopes())
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "dev", "Token subject (user id)")
	cmd.Flags().StringArrayVar(&scopes, "scope", nil, "Scope to grant; repeatable")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}

func validScopes() string {
	all := auth.AllScopes()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// keygenCmd prints a fresh ENCRYPTION_KEY value.
func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ENCRYPTION_KEY for sealing notification URLs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}
