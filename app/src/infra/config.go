package infra

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"head-monitor/app/src/infra/utils"

	"github.com/spf13/viper"
)

// Config keys. They double as environment variable names.
const (
	KeyConfigPath       = "CONFIG_PATH"
	KeyHTTPPort         = "HTTP_PORT"
	KeyGRPCPort         = "GRPC_PORT"
	KeyMetricsPort      = "METRICS_PORT"
	KeyLogLevel         = "LOG_LEVEL"
	KeyDBDSN            = "DB_DSN"
	KeyDBHost           = "DB_HOST"
	KeyDBPort           = "DB_PORT"
	KeyDBUser           = "DB_USER"
	KeyDBPassword       = "DB_PASSWORD"
	KeyDBName           = "DB_NAME"
	KeyDBBatchSize      = "DB_BATCH_SIZE"
	KeyDBBatchTimeoutMS = "DB_BATCH_TIMEOUT_MS"
	KeyDBBatchBuffer    = "DB_BATCH_BUFFER"
)

type Config struct {
	ConfigPath              string
	HTTPPort                string
	GRPCPort                string
	MetricsPort             string
	LogLevel                string
	DatabaseDSN             string
	DatabaseHost            string
	DatabasePort            string
	DatabaseUser            string
	DatabasePassword        string
	DatabaseName            string
	DatabaseBatchSize       int
	DatabaseBatchTimeoutMS  int
	DatabaseBatchBufferSize int
}

// ArchiveEnabled reports whether any database connection settings were provided.
func (c Config) ArchiveEnabled() bool {
	return c.DatabaseDSN != "" || c.DatabaseHost != ""
}

// NewConfigViper returns a viper instance with defaults, environment lookup and
// the optional env file merged in. A missing env file is not an error.
func NewConfigViper(envFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(KeyConfigPath, "config.yaml")
	v.SetDefault(KeyHTTPPort, "8080")
	v.SetDefault(KeyGRPCPort, "50051")
	v.SetDefault(KeyMetricsPort, "2112")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyDBBatchSize, 32)
	v.SetDefault(KeyDBBatchTimeoutMS, 250)
	v.SetDefault(KeyDBBatchBuffer, 128)
	v.AutomaticEnv()

	if envFile == "" {
		return v, nil
	}
	if _, err := os.Stat(envFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		return nil, fmt.Errorf("stat env file: %w", err)
	}

	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read env file %s: %w", envFile, err)
	}
	return v, nil
}

// LoadConfig reads the process configuration from the environment and ./.env.
func LoadConfig() (Config, error) {
	v, err := NewConfigViper(".env")
	if err != nil {
		return Config{}, err
	}
	return ConfigFromViper(v), nil
}

// ConfigFromViper maps viper keys onto Config. Malformed integers fall back to defaults.
func ConfigFromViper(v *viper.Viper) Config {
	return Config{
		ConfigPath:              stringValue(v, KeyConfigPath, "config.yaml"),
		HTTPPort:                stringValue(v, KeyHTTPPort, "8080"),
		GRPCPort:                stringValue(v, KeyGRPCPort, "50051"),
		MetricsPort:             stringValue(v, KeyMetricsPort, "2112"),
		LogLevel:                stringValue(v, KeyLogLevel, "info"),
		DatabaseDSN:             v.GetString(KeyDBDSN),
		DatabaseHost:            v.GetString(KeyDBHost),
		DatabasePort:            v.GetString(KeyDBPort),
		DatabaseUser:            v.GetString(KeyDBUser),
		DatabasePassword:        v.GetString(KeyDBPassword),
		DatabaseName:            v.GetString(KeyDBName),
		DatabaseBatchSize:       intValue(v, KeyDBBatchSize, 32),
		DatabaseBatchTimeoutMS:  intValue(v, KeyDBBatchTimeoutMS, 250),
		DatabaseBatchBufferSize: intValue(v, KeyDBBatchBuffer, 128),
	}
}

func LogConfig(ctx context.Context, logger *Logger, cfg Config) {
	logger.Printf(ctx, "CONFIG_PATH=%s", cfg.ConfigPath)
	logger.Printf(ctx, "HTTP_PORT=%s", cfg.HTTPPort)
	logger.Printf(ctx, "GRPC_PORT=%s", utils.EmptyFallback(cfg.GRPCPort, "(disabled)"))
	logger.Printf(ctx, "METRICS_PORT=%s", utils.EmptyFallback(cfg.MetricsPort, "(disabled)"))
	logger.Printf(ctx, "LOG_LEVEL=%s", cfg.LogLevel)
	if cfg.DatabaseDSN != "" {
		logger.Printf(ctx, "DB_DSN set (length %d)", len(cfg.DatabaseDSN))
	} else {
		logger.Println(ctx, "DB_DSN not provided")
	}
	logger.Printf(ctx, "DB_HOST=%s", utils.EmptyFallback(cfg.DatabaseHost, "(not set)"))
	logger.Printf(ctx, "DB_PORT=%s", utils.EmptyFallback(cfg.DatabasePort, "(not set)"))
	logger.Printf(ctx, "DB_USER=%s", utils.EmptyFallback(cfg.DatabaseUser, "(not set)"))
	if cfg.DatabasePassword != "" {
		logger.Println(ctx, "DB_PASSWORD set (redacted)")
	} else {
		logger.Println(ctx, "DB_PASSWORD not provided")
	}
	logger.Printf(ctx, "DB_NAME=%s", utils.EmptyFallback(cfg.DatabaseName, "(not set)"))
	logger.Printf(ctx, "DB_BATCH_SIZE=%d", cfg.DatabaseBatchSize)
	logger.Printf(ctx, "DB_BATCH_TIMEOUT_MS=%d", cfg.DatabaseBatchTimeoutMS)
	logger.Printf(ctx, "DB_BATCH_BUFFER=%d", cfg.DatabaseBatchBufferSize)
}

func stringValue(v *viper.Viper, key, fallback string) string {
	if value := strings.TrimSpace(v.GetString(key)); value != "" {
		return value
	}
	return fallback
}

func intValue(v *viper.Viper, key string, fallback int) int {
	if value := strings.TrimSpace(v.GetString(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
