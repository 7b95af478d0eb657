package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tms/internal/domain"
	"tms/internal/middleware"
)

var (
	tokenOperator string
	tokenRole     string
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a bearer token signed with the configured auth secret",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is not configured")
		}
		if tokenOperator == "" {
			return errors.New("--operator is required")
		}

		token, err := middleware.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer,
			domain.Operator{ID: tokenOperator, Role: tokenRole}, tokenTTL)
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenOperator, "operator", "", "operator id (token subject)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "dispatcher", "operator role")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
