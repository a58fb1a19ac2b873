package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomx220052/cryptoprice/internal/collector"
	"github.com/tomx220052/cryptoprice/internal/config"
	"github.com/tomx220052/cryptoprice/internal/errors"
	"github.com/tomx220052/cryptoprice/internal/exchange"
	"github.com/tomx220052/cryptoprice/internal/logger"
	"github.com/tomx220052/cryptoprice/internal/metrics"
	"github.com/tomx220052/cryptoprice/internal/models"
)

// globalFlags are shared by every command
type globalFlags struct {
	configPath string
	profile    string
	apiKey     string
	logLevel   string
	logFormat  string
	telemetry  bool
}

// app holds the components built from the loaded configuration
type app struct {
	config    *config.AppConfig
	logs      *logger.LoggerManager
	logger    *slog.Logger
	adapter   *exchange.CoinGeckoAdapter
	collector collector.Collector
	registry  *models.Registry
	metrics   *metrics.InProcess
	interrupt *interruptContext

	stdout io.Writer
	stderr io.Writer
}

func newRootCommand(ic *interruptContext) (*cobra.Command, *app) {
	flags := &globalFlags{}
	a := &app{
		interrupt: ic,
		registry:  models.DefaultRegistry(),
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}

	root := &cobra.Command{
		Use:   AppName,
		Short: "Historical daily cryptocurrency settlement prices",
		Long: `A CLI application for retrieving historical daily USD prices of
cryptocurrencies from CoinGecko. Intraday samples are aligned to the 16:00 UTC
settlement of each day and exported to CSV, for one coin or sequentially for a
list of coins.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.stdout = cmd.OutOrStdout()
			a.stderr = cmd.ErrOrStderr()
			if debug := cmd.Flags().Lookup("debug"); debug != nil && debug.Value.String() == "true" {
				flags.logLevel = "debug"
			}
			return a.initialize(cmd.Context(), flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", ConfigFile, "configuration file (JSON)")
	pf.StringVar(&flags.profile, "profile", "", "retry profile: interactive or cli")
	pf.StringVar(&flags.apiKey, "api-key", "", "CoinGecko API key (enables the daily interval hint)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: text, json")
	pf.BoolVar(&flags.telemetry, "metrics", false, "print request and retry counters when the command ends")

	root.AddCommand(
		newFetchCommand(a),
		newBatchCommand(a),
		newHistoryCommand(a),
		newCoinsCommand(a),
		newPingCommand(a),
	)

	return root, a
}

// initialize loads configuration and wires the logger, telemetry, provider
// adapter and collector
func (a *app) initialize(ctx context.Context, flags *globalFlags) error {
	bootstrap := slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cm := config.NewConfigManager(flags.configPath, bootstrap, ".env")
	cfg, err := cm.LoadConfig(ctx)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}

	if flags.profile != "" {
		if err := cfg.ApplyProfile(config.Profile(flags.profile)); err != nil {
			return withExitCode(ExitConfigError, err)
		}
	}
	if flags.apiKey != "" {
		cfg.API.APIKey = flags.apiKey
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Logging.Format = flags.logFormat
	}
	if flags.telemetry {
		cfg.Telemetry.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return withExitCode(ExitConfigError, err)
	}
	a.config = cfg

	if cfg.Logging.Output == "stderr" {
		a.logs = logger.NewLoggerManagerWithWriter(cfg.Logging, a.stderr)
	} else {
		a.logs, err = logger.NewLoggerManager(cfg.Logging)
		if err != nil {
			return withExitCode(ExitConfigError, err)
		}
	}
	a.logger = a.logs.GetLogger()

	telemetry := metrics.Noop()
	if cfg.Telemetry.Enabled {
		a.metrics, err = metrics.NewInProcess()
		if err != nil {
			return withExitCode(ExitConfigError, err)
		}
		telemetry = a.metrics.Telemetry
	}

	a.adapter, err = exchange.NewCoinGeckoAdapterWithConfig(exchange.CoinGeckoConfig{
		BaseURL:           cfg.API.BaseURL,
		APIKey:            cfg.API.APIKey,
		Timeout:           cfg.HTTPTimeout(),
		RequestsPerMinute: cfg.API.RequestsPerMinute,
		Burst:             cfg.API.Burst,
		Retry: exchange.RetryPolicy{
			MaxAttempts:       cfg.Retry.MaxAttempts,
			RateLimitCooldown: cfg.RateLimitCooldown(),
			TransportDelay:    cfg.TransportDelay(),
			MaxTransportDelay: cfg.MaxTransportDelay(),
			Strategy:          cfg.Retry.BackoffStrategy,
			Jitter:            cfg.Retry.Jitter,
		},
	}, a.logger)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	a.adapter.SetTelemetry(telemetry)

	collectorConfig := collector.DefaultConfig()
	collectorConfig.MaxDays = cfg.Range.MaxDays
	collectorConfig.AllowFuture = cfg.Range.AllowFuture
	collectorConfig.ItemDelay = cfg.ItemDelay()

	a.collector, err = collector.NewBuilder().
		WithFetcher(a.adapter).
		WithHistoryProvider(a.adapter).
		WithTelemetry(telemetry).
		WithConfig(collectorConfig).
		WithLogger(a.logger).
		Build()
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}

	a.logger.Debug("CLI initialized",
		"profile", cfg.Profile,
		"max_attempts", cfg.Retry.MaxAttempts,
		"max_days", cfg.Range.MaxDays,
		"api_key_set", cfg.API.APIKey != "")

	return nil
}

// close reports telemetry and releases the log writer. It is safe to call
// when initialize never ran.
func (a *app) close(ctx context.Context) error {
	if a.metrics != nil {
		snapshot, err := a.metrics.Snapshot(ctx)
		if err == nil {
			fmt.Fprintf(a.stderr, "\nMetrics:\n%s", snapshot)
		}
		_ = a.metrics.Shutdown(ctx)
	}
	if a.logs != nil {
		return a.logs.Close()
	}
	return nil
}

// exitCodeFor maps a core error to the process exit code
func exitCodeFor(err error) int {
	switch errors.GetErrorType(err) {
	case errors.ErrorTypeFormat, errors.ErrorTypeRange:
		return ExitUsageError
	case errors.ErrorTypeCancelled:
		return ExitInterrupt
	case errors.ErrorTypeAuthentication, errors.ErrorTypeRateLimit, errors.ErrorTypeTransport:
		return ExitConnectionErr
	default:
		return ExitDataError
	}
}

// resolveCoin accepts a provider id, ticker symbol or "SYM - Name" label
func (a *app) resolveCoin(s string) models.Coin {
	coin, known := a.registry.Resolve(s)
	if !known {
		a.logger.Debug("coin not in registry, using input as provider id", "coin", coin.ID)
	}
	return coin
}
