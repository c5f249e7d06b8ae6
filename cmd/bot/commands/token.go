package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/classroll/classroll-bot/internal/interface/http/handlers"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the chat transport bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.HTTP.JWTSecret == "" {
			return errors.New("JWT_SECRET is not set")
		}
		token, err := handlers.IssueToken(tokenSubject, cfg.HTTP.JWTSecret, cfg.HTTP.JWTIssuer, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "bridge", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 365*24*time.Hour, "token lifetime")
}
