// cmd/gateway/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tamzrod/vsd-gateway/internal/config"
	"github.com/tamzrod/vsd-gateway/internal/poller"
	"github.com/tamzrod/vsd-gateway/internal/regmap"
)

const svcName = "vsd-gateway"

func main() {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:           svcName,
		Short:         "ACS580 drive gateway: RTU polling, Modbus TCP register map, MQTT and history",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print the resolved register layout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			return printPlan(cmd, cfg)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "gateway.yaml", "Path to the YAML configuration")
	rootCmd.AddCommand(checkCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// --------------------
// Load + validate config
// --------------------

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)
	return cfg, nil
}

func newLogger(c config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if c.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Str("service", svcName).Logger()
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func printPlan(cmd *cobra.Command, cfg *config.Config) error {
	plan, err := regmap.BuildPlan(cfg)
	if err != nil {
		return err
	}
	pc, err := poller.BuildConfig(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "register map: %d holding registers\n", plan.Size)
	for _, pt := range pc.Parameters {
		fmt.Fprintf(out, "parameter %-12s %s  register %d  address %d  words %d\n",
			pt.Name, pt.GroupIndex, pt.DeviceRegister, pt.TransportAddress, pt.WordCount)
	}
	for _, d := range cfg.Devices {
		dp := plan.Devices[d.Name]
		fmt.Fprintf(out, "device %s (slave %d): %d registers, %d flags", d.Name, d.ID, len(dp.Entries), len(dp.Flags))
		if dp.Status != nil {
			fmt.Fprintf(out, ", status at %d", dp.Status.Base)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Log)

	gw, err := build(cfg, prometheus.DefaultRegisterer, prometheus.DefaultGatherer, clock.New(), logger)
	if err != nil {
		return err
	}

	logger.Info().
		Int("devices", len(cfg.Devices)).
		Int("parameters", len(cfg.Parameters)).
		Str("serial", cfg.Serial.Port).
		Msg("gateway started")

	err = gw.run(ctx)
	logger.Info().Msg("gateway stopped")
	return err
}
