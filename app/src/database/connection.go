package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"head-monitor/app/src/infra"
)

// ShouldCheckDatabase reports whether the archive is configured and its host
// should be probed before use.
func ShouldCheckDatabase(cfg infra.Config) bool {
	return cfg.ArchiveEnabled()
}

// WaitForDatabase probes the configured host/port until it becomes reachable or context cancellation.
func WaitForDatabase(ctx context.Context, cfg infra.Config, logger *infra.Logger) error {
	host := cfg.DatabaseHost
	port := cfg.DatabasePort

	if (host == "" || port == "") && cfg.DatabaseDSN != "" {
		parsed, err := url.Parse(cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("invalid DB_DSN: %w", err)
		}
		if host == "" {
			host = parsed.Hostname()
		}
		if port == "" {
			port = parsed.Port()
		}
	}

	if host == "" {
		return nil
	}
	if port == "" {
		port = "5432"
	}

	address := net.JoinHostPort(host, port)
	dialer := &net.Dialer{Timeout: 3 * time.Second}

	const maxAttempts = 5
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		logger.Printf(ctx, "database check attempt %d/%d failed: %v", attempt, maxAttempts, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	return fmt.Errorf("database not reachable at %s", address)
}

// SetupRepository applies migrations and starts the batched delay archive.
// The returned cleanup flushes queued samples and closes the pool.
func SetupRepository(ctx context.Context, cfg infra.Config, logger *infra.Logger) (*Repository, func(), error) {
	return setupRepository(ctx, cfg, logger, NewSQLRunner(), ResolveMigrationsDir())
}

func setupRepository(ctx context.Context, cfg infra.Config, logger *infra.Logger, runner CommandRunner, migrationsDir string) (*Repository, func(), error) {
	dsn, err := BuildDatabaseDSN(cfg)
	if err != nil {
		_ = runner.Close()
		return nil, nil, err
	}

	if parsed, parseErr := url.Parse(dsn); parseErr == nil {
		logger.Printf(ctx, "delay archive DSN host=%s db=%s user=%s",
			parsed.Hostname(), strings.TrimPrefix(parsed.Path, "/"), parsed.User.Username())
	} else {
		logger.Printf(ctx, "failed to parse DSN for logging: %v", parseErr)
	}

	if _, err := ApplyMigrations(ctx, runner, dsn, migrationsDir, logger); err != nil {
		_ = runner.Close()
		return nil, nil, err
	}

	repo, err := New(ctx, Config{
		DSN:          dsn,
		Runner:       runner,
		Logger:       logger,
		BatchSize:    cfg.DatabaseBatchSize,
		BatchTimeout: time.Duration(cfg.DatabaseBatchTimeoutMS) * time.Millisecond,
		BufferSize:   cfg.DatabaseBatchBufferSize,
	})
	if err != nil {
		_ = runner.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := repo.Close(); err != nil {
			logger.Printf(ctx, "failed to close delay archive: %v", err)
		}
	}

	return repo, cleanup, nil
}

// BuildDatabaseDSN constructs a DSN from discrete configuration values when not provided explicitly.
func BuildDatabaseDSN(cfg infra.Config) (string, error) {
	if cfg.DatabaseDSN != "" {
		return cfg.DatabaseDSN, nil
	}

	if cfg.DatabaseHost == "" {
		return "", errors.New("database host is required when DSN is not provided")
	}
	if cfg.DatabaseUser == "" {
		return "", errors.New("database user is required when DSN is not provided")
	}
	if cfg.DatabaseName == "" {
		return "", errors.New("database name is required when DSN is not provided")
	}

	port := cfg.DatabasePort
	if port == "" {
		port = "5432"
	}

	connectionURL := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.DatabaseHost, port),
		Path:   "/" + cfg.DatabaseName,
		User:   url.UserPassword(cfg.DatabaseUser, cfg.DatabasePassword),
	}

	query := connectionURL.Query()
	if query.Get("sslmode") == "" {
		query.Set("sslmode", "disable")
	}
	connectionURL.RawQuery = query.Encode()

	return connectionURL.String(), nil
}
