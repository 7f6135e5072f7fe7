package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"head-monitor/app/src/database"
	"head-monitor/app/src/infra"

	"github.com/spf13/cobra"
)

func main() {
	if err := newMigrateCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newMigrateCommand(out io.Writer) *cobra.Command {
	var (
		migrationsDir string
		envFile       string
	)

	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Applies the delay archive schema migrations",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := initEnvironment(out, envFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := checkDatabaseConnection(ctx, cfg, logger); err != nil {
				return err
			}
			return runMigrations(ctx, cfg, logger, database.NewSQLRunner(), migrationsDir)
		},
	}

	cmd.Flags().StringVar(&migrationsDir, "dir", database.ResolveMigrationsDir(), "directory with SQL migration files")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "optional env file with configuration")
	return cmd
}

// ----------------------------
// Вспомогательные функции
// ----------------------------

// initEnvironment загружает конфигурацию и логгер.
func initEnvironment(out io.Writer, envFile string) (infra.Config, *infra.Logger, error) {
	v, err := infra.NewConfigViper(envFile)
	if err != nil {
		return infra.Config{}, nil, err
	}
	cfg := infra.ConfigFromViper(v)

	logger := infra.NewLogger(out, "migrate")
	logger.SetLevel(cfg.LogLevel)
	return cfg, logger, nil
}

// checkDatabaseConnection выполняет проверку соединения с БД.
func checkDatabaseConnection(ctx context.Context, cfg infra.Config, logger *infra.Logger) error {
	if !database.ShouldCheckDatabase(cfg) {
		return errors.New("database is not configured: set DB_DSN or DB_HOST")
	}
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := database.WaitForDatabase(waitCtx, cfg, logger); err != nil {
		return fmt.Errorf("database connectivity check failed: %w", err)
	}
	return nil
}

// runMigrations строит DSN и применяет миграции через runner.
func runMigrations(ctx context.Context, cfg infra.Config, logger *infra.Logger, runner database.CommandRunner, migrationsDir string) error {
	defer runner.Close()

	dsn, err := database.BuildDatabaseDSN(cfg)
	if err != nil {
		return fmt.Errorf("failed to build database DSN: %w", err)
	}

	if _, err := database.ApplyMigrations(ctx, runner, dsn, migrationsDir, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
