package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/safar/hardware-store/internal/auth"
	"github.com/safar/hardware-store/internal/config"
	"github.com/safar/hardware-store/internal/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hardware-store",
	Short: "Hardware store back office API",
	Long: `hardware-store serves the storefront and admin JSON API: catalog, cart,
checkout with discounts, Stripe and bank transfer payments, order lifecycle,
returns, memberships and accounting.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger, err = newLogger(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func newLogger(lc config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id> [user|admin]",
	Short: "Issue a bearer token for a user",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid user id %q", args[0])
		}

		role := models.RoleUser
		if len(args) == 2 {
			role = models.Role(args[1])
		}
		if role != models.RoleUser && role != models.RoleAdmin {
			return fmt.Errorf("role must be user or admin, got %q", role)
		}

		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required")
		}

		token, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL).IssueToken(id, role)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
