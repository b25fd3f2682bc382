package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/bcromer77/prooftimelines/internal/infra/auth"

	"github.com/spf13/cobra"
)

func newTokenCommand(state *cliState) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the jwt identity strategy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if state.cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is required to mint tokens")
			}
			if ttl <= 0 {
				ttl = state.cfg.JWTTTL()
			}
			token, err := auth.IssueToken([]byte(state.cfg.JWTSecret), state.cfg.JWTIssuer, userID, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to embed in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default JWT_TTL_SECONDS)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
