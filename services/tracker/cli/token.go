package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/krskas/slack-task-tracker/internal/httpapi"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the /api/v1 endpoints",
	RunE: func(cmd *cobra.Command, _ []string) error {
		secret := viper.GetString("jwt_secret")
		if secret == "" {
			return errors.New("jwt_secret is not configured")
		}
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		tok, err := httpapi.IssueToken(secret, subject, ttl, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("subject", "operator", "token subject, logged on admin actions")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
}
