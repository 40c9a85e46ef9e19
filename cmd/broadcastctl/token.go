package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"brigade/internal/broadcast/models"
	jwttoken "brigade/internal/jwt_token"
	"brigade/internal/platform/config"
)

func newTokenCmd() *cobra.Command {
	var (
		userID string
		orgID  string
		level  int
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for local development",
		Long:  "Mint a bearer token signed with JWT_SIGNING_KEY for calling the /v1 API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if level < models.AudienceOwner || level > models.AudienceEveryone {
				return fmt.Errorf("security level must be between %d and %d", models.AudienceOwner, models.AudienceEveryone)
			}
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			svc := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
			token, err := svc.GenerateAccessToken(userID, orgID, level, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id (required)")
	cmd.Flags().StringVar(&orgID, "org", "", "Organization id (required)")
	cmd.Flags().IntVar(&level, "level", models.AudienceStaff, "Security level, 1 (owner) to 5")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}
