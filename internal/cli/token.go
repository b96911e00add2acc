package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/workshop-scheduler/internal/models"
	"github.com/noah-isme/workshop-scheduler/internal/service"
)

type tokenOptions struct {
	Subject string
	Role    string
	Name    string
	TTL     time.Duration
}

var tokenOpts tokenOptions

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token signed with JWT_SECRET",
	Run: func(cmd *cobra.Command, args []string) {
		runWithEnv(cmd, func(e *env) int {
			return runToken(e, tokenOpts, cmd.OutOrStdout())
		})
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenOpts.Subject, "subject", "", "Token subject (user id)")
	tokenCmd.Flags().StringVar(&tokenOpts.Role, "role", string(models.RolePlanner), "ADMIN, PLANNER or VIEWER")
	tokenCmd.Flags().StringVar(&tokenOpts.Name, "name", "", "Display name")
	tokenCmd.Flags().DurationVar(&tokenOpts.TTL, "ttl", 0, "Token lifetime (default JWT_TOKEN_EXPIRY)")
	_ = tokenCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(e *env, opts tokenOptions, w io.Writer) int {
	if e.cfg.JWT.Secret == "" {
		return fail(w, "token", fmt.Errorf("JWT_SECRET is not set"))
	}
	expiry := opts.TTL
	if expiry <= 0 {
		expiry = e.cfg.JWT.TokenExpiry
	}
	auth := service.NewAuthService(service.AuthConfig{
		AccessTokenSecret: e.cfg.JWT.Secret,
		AccessTokenExpiry: expiry,
		Issuer:            e.cfg.JWT.Issuer,
	})
	token, expiresAt, err := auth.IssueToken(opts.Subject, models.UserRole(opts.Role), opts.Name)
	if err != nil {
		return fail(w, "token", err)
	}
	if jsonOutput {
		_ = writeJSON(w, map[string]interface{}{"token": token, "expiresAt": expiresAt.UTC().Format(time.RFC3339)})
		return ExitOK
	}
	fmt.Fprintln(w, token)
	return ExitOK
}
