package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/quocanhngo/quakealert/internal/config"
	"github.com/quocanhngo/quakealert/internal/middleware"
	"github.com/quocanhngo/quakealert/pkg/auth"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type tokenOutput struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		subject string
		expiry  time.Duration
	)

	cmd := &cobra.Command{
		Use:          "token",
		Short:        "Mint an admin JWT for the protected routes and the audit stream",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if expiry <= 0 {
				expiry = cfg.JWT.Expiry
			}
			return runToken(cmd.OutOrStdout(), rootOpts.Format, auth.NewJWTManager(cfg.JWT.Secret, expiry), subject)
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "operator", "token subject")
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "token lifetime (defaults to ADMIN_JWT_EXPIRY)")

	return cmd
}

func runToken(w io.Writer, format string, m *auth.JWTManager, subject string) error {
	token, err := m.GenerateToken(subject)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	claims, err := m.ValidateToken(token)
	if err != nil {
		return fmt.Errorf("validate generated token: %w", err)
	}

	out := tokenOutput{
		Token:     token,
		Subject:   claims.Subject,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	return write(w, format, out, func(w io.Writer) {
		fmt.Fprintln(w, out.Token)
	})
}

// NewRevokeCommand creates the revoke command.
func NewRevokeCommand(rootOpts *RootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:          "revoke <token-id>",
		Short:        "Revoke an admin token by id (requires Redis)",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if ttl <= 0 {
				ttl = cfg.JWT.Expiry
			}
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr(),
				Password: cfg.Redis.Password,
			})
			defer rdb.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := rdb.Set(ctx, middleware.RevokedKeyPrefix+args[0], "1", ttl).Err(); err != nil {
				return fmt.Errorf("revoke token: %w", err)
			}
			return write(cmd.OutOrStdout(), rootOpts.Format, map[string]string{"revoked": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "revoked %s for %s\n", args[0], ttl)
			})
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "how long the revocation is kept (defaults to ADMIN_JWT_EXPIRY)")

	return cmd
}
