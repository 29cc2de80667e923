package commands

import (
	"fmt"

	"docchat-go/pkg/token"

	"github.com/spf13/cobra"
)

var (
	tokenUser     string
	tokenUsername string
)

// NewTokenCmd creates the token command, which mints a bearer token for local testing.
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with jwt.secret",
		Args:  cobra.NoArgs,
		RunE:  runToken,
	}
	cmd.Flags().StringVar(&tokenUser, "user", "", "user id placed in the userId claim")
	cmd.Flags().StringVar(&tokenUsername, "username", "", "optional username claim")
	return cmd
}

func runToken(cmd *cobra.Command, args []string) error {
	if tokenUser == "" && tokenUsername == "" {
		return fmt.Errorf("--user or --username is required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is not configured")
	}

	tok, err := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours).GenerateToken(tokenUser, tokenUsername)
	if err != nil {
		return fmt.Errorf("signing token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
