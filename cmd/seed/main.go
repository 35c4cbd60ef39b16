// Package main is the operator CLI for seeding a tenantdesk database.
//
// Subcommands apply a YAML seed file, run schema migrations and issue API
// tokens for existing accounts. Every subcommand except validate reads the
// server configuration, so DATABASE_URL and SECURITY_JWT_SIGNING_KEY apply.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tenantdesk.io/console/internal/api/middleware"
	"tenantdesk.io/console/internal/config"
	"tenantdesk.io/console/internal/infrastructure"
	apperrors "tenantdesk.io/console/internal/pkg/errors"
	"tenantdesk.io/console/internal/pkg/logger"
	"tenantdesk.io/console/internal/repository"
	"tenantdesk.io/console/internal/seed"
	"tenantdesk.io/console/internal/settings/panels"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "seed",
		Short:         "Seed and maintain a tenantdesk database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newApplyCmd(), newValidateCmd(), newMigrateCmd(), newTokenCmd())
	return root
}

func newApplyCmd() *cobra.Command {
	var (
		file    string
		migrate bool
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create users and write preferences from a seed file",
		Long:  `Apply is idempotent: existing usernames are skipped and preferences are overwritten.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := seed.LoadFile(file)
			if err != nil {
				return err
			}
			return withDatabase(cmd.Context(), func(ctx context.Context, cfg *config.Config, db *infrastructure.DatabaseClients) error {
				if migrate {
					if err := db.Migrate(ctx); err != nil {
						return fmt.Errorf("migrate: %w", err)
					}
				}
				res, err := seed.Apply(ctx, seed.Target{
					Users:       repository.NewUserRepository(db.Pool, cfg.Security.BcryptCost),
					Preferences: repository.NewPreferenceRepository(db.Pool, panels.PreferenceKeys()),
					System:      repository.NewSystemConfigRepository(db.Pool),
				}, f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "users created: %d, skipped: %d\n", res.Created, res.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the seed YAML file")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply schema migrations first")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a seed file without touching the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := seed.LoadFile(file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d users, %d preferences, %d system keys\n",
				len(f.Users), len(f.Preferences), len(f.System))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the seed YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema and queue migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), func(ctx context.Context, _ *config.Config, db *infrastructure.DatabaseClients) error {
				return db.Migrate(ctx)
			})
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		username string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token for an existing user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), func(ctx context.Context, cfg *config.Config, db *infrastructure.DatabaseClients) error {
				users := repository.NewUserRepository(db.Pool, cfg.Security.BcryptCost)
				user, err := users.FetchByUsername(ctx, username)
				if errors.Is(err, apperrors.ErrNotFound) {
					return fmt.Errorf("user %q does not exist", username)
				}
				if err != nil {
					return err
				}

				jwtCfg := middleware.JWTConfig{
					SigningKey: []byte(cfg.Security.JWTSigningKey),
					Issuer:     cfg.Security.JWTIssuer,
					ExpiresIn:  cfg.Security.JWTExpiresIn,
				}
				if ttl > 0 {
					jwtCfg.ExpiresIn = ttl
				}
				token, expiresAt, err := middleware.GenerateToken(jwtCfg, user.ID, user.Username, user.Role)
				if err != nil {
					return fmt.Errorf("sign token: %w", err)
				}
				logger.Info("Issued token", zap.String("username", user.Username), zap.Time("expires_at", expiresAt))
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account to issue the token for")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to security.jwt_expires_in)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// withDatabase loads config, initializes logging and opens the pool for fn.
func withDatabase(ctx context.Context, fn func(context.Context, *config.Config, *infrastructure.DatabaseClients) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()
	return fn(ctx, cfg, db)
}
