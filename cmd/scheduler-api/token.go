package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/internal/service"
)

var (
	tokenUserID    string
	tokenProfileID string
	tokenRole      string
)

// tokenCmd mints access tokens for local development; production tokens come from the identity provider.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed access token",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "user id (defaults to the profile id)")
	tokenCmd.Flags().StringVar(&tokenProfileID, "profile", "", "tutor or learner profile id")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(models.RoleTutor), "ADMIN, TUTOR, STUDENT or PARENT")
	_ = tokenCmd.MarkFlagRequired("profile")
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, logr, err := bootstrap()
	if err != nil {
		return err
	}
	defer logr.Sync() //nolint:errcheck

	role := models.UserRole(strings.ToUpper(tokenRole))
	switch role {
	case models.RoleAdmin, models.RoleTutor, models.RoleStudent, models.RoleParent:
	default:
		return fmt.Errorf("unknown role %q", tokenRole)
	}
	userID := tokenUserID
	if userID == "" {
		userID = tokenProfileID
	}

	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer, Expiry: cfg.JWT.Expiration})
	token, expires, err := tokens.IssueToken(userID, tokenProfileID, role)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
	return nil
}
