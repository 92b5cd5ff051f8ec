package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/castai/rds-iops-exporter/cmd/exporter/app"
	"github.com/castai/rds-iops-exporter/cmd/exporter/collector"
	"github.com/castai/rds-iops-exporter/config"
)

// These should be set via `go build` during a release.
var (
	GitCommit = "undefined"
	GitRef    = "no-ref"
	Version   = "local"
)

const envPrefix = "RDS_EXPORTER"

var envKeyReplacer = strings.NewReplacer("-", "_")

func main() {
	root := cobra.Command{
		Use:          "rds-iops-exporter",
		Short:        "Prometheus exporter for RDS storage IOPS limits and usage",
		SilenceUsage: true,
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	flags := root.PersistentFlags()
	registerFlags(flags)
	if err := v.BindPFlags(flags); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	root.AddCommand(
		newRunCommand(v),
		newCheckCommand(v),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func registerFlags(flags *pflag.FlagSet) {
	flags.Int("port", 9187, "Metrics http listen port")
	flags.String("config", "config.yaml", "Instances configuration file")
	flags.String("log-level", slog.LevelInfo.String(), "Log level")
	flags.Duration("log-rate-interval", 100*time.Millisecond, "Log rate limit interval")
	flags.Int("log-rate-burst", 100, "Log rate burst")
	flags.Duration("scrape-timeout", 30*time.Second, "Collection cycle timeout, 0 disables it")
	flags.Int("max-concurrency", 0, "Maximum instances collected at once, 0 means unbounded")
	flags.Uint32("client-cache-size", 128, "Number of cached AWS client sets")
}

func appConfig(v *viper.Viper) app.Config {
	version := config.ExporterVersion{GitCommit: GitCommit, GitRef: GitRef, Version: Version}
	return app.Config{
		LogLevel:        v.GetString("log-level"),
		LogRateInterval: v.GetDuration("log-rate-interval"),
		LogRateBurst:    v.GetInt("log-rate-burst"),
		Version:         version.String(),
		HTTPListenPort:  v.GetInt("port"),
		ConfigPath:      v.GetString("config"),
		ClientCacheSize: v.GetUint32("client-cache-size"),
		Fleet: collector.FleetConfig{
			Timeout:        v.GetDuration("scrape-timeout"),
			MaxConcurrency: v.GetInt("max-concurrency"),
		},
	}
}

func newRunCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Serve /metrics and collect on every scrape",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := app.New(appConfig(v))
			if err != nil {
				return err
			}
			if err := a.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("running exporter: %w", err)
			}
			return nil
		},
	}
}
