package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ParthasarathiMohanty986/healthcare-security/internal/api/rest"
)

var (
	tokenUsername string
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token SUBJECT",
	Short: "Sign a bearer token for a principal in the data file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		token, err := rest.SignToken(cfg.Server.JWTSecret, cfg.Server.JWTIssuer, args[0], tokenUsername, tokenTTL)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUsername, "username", "", "username claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 8*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
