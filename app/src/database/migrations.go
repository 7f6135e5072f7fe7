package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"head-monitor/app/src/infra"
)

const (
	defaultMigrationsDir = "app/resources/db/migrations"
	migrationsDirEnv     = "MIGRATIONS_DIR"
)

// ResolveMigrationsDir returns MIGRATIONS_DIR when set, otherwise the
// migrations bundled with the application.
func ResolveMigrationsDir() string {
	if dir := strings.TrimSpace(os.Getenv(migrationsDirEnv)); dir != "" {
		return dir
	}
	return defaultMigrationsDir
}

// ApplyMigrations runs every *.sql file in dir in lexical order and returns
// how many were executed. Migrations must be idempotent; there is no
// bookkeeping table.
func ApplyMigrations(ctx context.Context, runner CommandRunner, dsn, dir string, logger *infra.Logger) (int, error) {
	if strings.TrimSpace(dir) == "" {
		return 0, errors.New("migrations directory is not specified")
	}

	info, err := os.Stat(dir)
	if err != nil {
		return 0, fmt.Errorf("read migrations directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("migrations path %q is not a directory", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return 0, fmt.Errorf("list migrations in %q: %w", dir, err)
	}
	sort.Strings(files)

	if len(files) == 0 {
		logger.Printf(ctx, "no migrations found in %s", dir)
		return 0, nil
	}

	applied := 0
	for _, path := range files {
		name := filepath.Base(path)

		contents, readErr := os.ReadFile(path)
		if readErr != nil {
			return applied, fmt.Errorf("read migration %q: %w", name, readErr)
		}

		statements := strings.TrimSpace(string(contents))
		if statements == "" {
			logger.Printf(ctx, "skipping empty migration %s", name)
			continue
		}

		logger.Printf(ctx, "applying migration %s", name)
		if _, execErr := runner.Exec(ctx, dsn, "", statements); execErr != nil {
			return applied, fmt.Errorf("apply migration %q: %w", name, execErr)
		}
		applied++
	}

	logger.Printf(ctx, "%d migrations applied", applied)
	return applied, nil
}
