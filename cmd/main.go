package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yungbote/kierachat-backend/internal/app"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
	"github.com/yungbote/kierachat-backend/internal/services"
)

type rootFlags struct {
	envFile string
	logMode string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "kierachat",
		Short:         "KieraChat backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load %s: %w", flags.envFile, err)
			}
			if flags.logMode == "" {
				flags.logMode = os.Getenv("LOG_MODE")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&flags.logMode, "log-mode", "", "development|production|test (defaults to LOG_MODE)")

	root.AddCommand(
		newServeCmd(flags),
		newMigrateCmd(flags),
		newSweepCmd(flags),
		newTokenCmd(flags),
	)
	return root
}

func bootstrap(flags *rootFlags) (*logger.Logger, app.Config, error) {
	return app.Bootstrap(flags.logMode)
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, job worker and sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, cfg, err := bootstrap(flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, log, cfg)
			if err != nil {
				log.Error("Failed to initialize app", "error", err)
				log.Sync()
				return err
			}
			defer a.Close()

			if err := a.Run(ctx); err != nil {
				log.Error("Server stopped", "error", err)
				return err
			}
			log.Info("Server shut down")
			return nil
		},
	}
}

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, _, err := bootstrap(flags)
			if err != nil {
				return err
			}
			defer log.Sync()
			store, err := app.OpenDatabase(log)
			if err != nil {
				return err
			}
			log.Info("Migrations applied", "driver", store.Driver())
			return store.Close()
		},
	}
}

func newSweepCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one pass over stuck generating messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, cfg, err := bootstrap(flags)
			if err != nil {
				return err
			}
			defer log.Sync()
			report, err := app.SweepOnce(cmd.Context(), log, cfg)
			if err != nil {
				return err
			}
			log.Info("Sweep finished",
				"scanned", report.Scanned,
				"requeued", report.Requeued,
				"failed", report.Failed,
				"skipped", report.Skipped,
			)
			return nil
		},
	}
}

// token mints access tokens for local development; the sign-in provider
// lives outside this service.
func newTokenCmd(flags *rootFlags) *cobra.Command {
	var userID string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed access token for a user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, cfg, err := bootstrap(flags)
			if err != nil {
				return err
			}
			defer log.Sync()
			id := uuid.New()
			if userID != "" {
				if id, err = uuid.Parse(userID); err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
			}
			if ttl <= 0 {
				ttl = cfg.AccessTokenTTL
			}
			auth := services.NewAuthService(log, cfg.JWTSecretKey, ttl, cfg.AnonymousTokenTTL)
			token, expiresAt, err := auth.IssueAccessToken(id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user_id=%s\nexpires_at=%s\ntoken=%s\n", id, expiresAt.Format(time.RFC3339), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user uuid (random when empty)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to ACCESS_TOKEN_TTL)")
	return cmd
}

