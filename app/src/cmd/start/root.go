package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"head-monitor/app/src/infra"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// flagKeys maps command-line flags onto config keys. Flags win over the
// environment and the env file.
var flagKeys = map[string]string{
	"config":       infra.KeyConfigPath,
	"http-port":    infra.KeyHTTPPort,
	"grpc-port":    infra.KeyGRPCPort,
	"metrics-port": infra.KeyMetricsPort,
	"log-level":    infra.KeyLogLevel,
}

func newRootCommand(out io.Writer) *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:          "head-monitor",
		Short:        "Measures how far data portals lag behind the chain head",
		Long:         "Follows the head of every configured portal dataset and exports the delay against reference block-time services as Prometheus metrics.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags(), envFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, out)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&envFile, "env-file", ".env", "optional env file with configuration")
	flags.String("config", "config.yaml", "path to the measurement file")
	flags.String("http-port", "8080", "port of the status HTTP API")
	flags.String("grpc-port", "50051", "port of the gRPC health service")
	flags.String("metrics-port", "2112", "port of the Prometheus /metrics endpoint")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func loadConfig(flags *pflag.FlagSet, envFile string) (infra.Config, error) {
	v, err := infra.NewConfigViper(envFile)
	if err != nil {
		return infra.Config{}, err
	}

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return infra.Config{}, fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}

	return infra.ConfigFromViper(v), nil
}
