// Package collector runs the daily price pipeline: range validation, window
// translation, retrieval, sample validation, settlement aggregation, range
// assembly, statistics and gap detection. Batch runs apply the same pipeline
// sequentially to a list of coins.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tomx220052/cryptoprice/internal/errors"
	"github.com/tomx220052/cryptoprice/internal/exchange"
	"github.com/tomx220052/cryptoprice/internal/gaps"
	"github.com/tomx220052/cryptoprice/internal/metrics"
	"github.com/tomx220052/cryptoprice/internal/models"
	"github.com/tomx220052/cryptoprice/internal/settlement"
	"github.com/tomx220052/cryptoprice/internal/validator"
)

const component = "collector"

const (
	// DefaultMaxDays caps the span of a single request
	DefaultMaxDays = 365

	// DefaultItemDelay is the pause between coins of a batch
	DefaultItemDelay = 2 * time.Second

	// DefaultBackfillLimit bounds history requests per backfill pass
	DefaultBackfillLimit = 31
)

// Collector is the entry point for price retrieval.
type Collector interface {
	// FetchDailyPrices runs the pipeline for a single coin. Terminal failures
	// and cancellation are returned as classified errors.
	FetchDailyPrices(ctx context.Context, req PriceRequest) (*PriceResult, error)

	// RunBatch runs the pipeline for every coin in order. It never fails as a
	// whole; per-coin failures are reported in the summary.
	RunBatch(ctx context.Context, req BatchRequest) *models.BatchSummary

	// Health verifies the price provider is reachable.
	Health(ctx context.Context) error
}

// Config configures the collector behavior
type Config struct {
	// MaxDays caps DaysUntil(from, to); zero disables the cap
	MaxDays int

	// AllowFuture disables the check rejecting dates after today
	AllowFuture bool

	// ValidationEnabled runs the sample validator before aggregation
	ValidationEnabled bool

	// GapDetectionEnabled reports runs of missing days in the result
	GapDetectionEnabled bool

	// BackfillLimit bounds history requests per backfill pass
	BackfillLimit int

	// ItemDelay is used when a BatchRequest leaves its delay unset
	ItemDelay time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxDays:             DefaultMaxDays,
		ValidationEnabled:   true,
		GapDetectionEnabled: true,
		BackfillLimit:       DefaultBackfillLimit,
		ItemDelay:           DefaultItemDelay,
		Logger:              slog.Default(),
	}
}

// ValidateConfig checks the configuration bounds.
func ValidateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if config.MaxDays < 0 {
		return fmt.Errorf("max days cannot be negative, got %d", config.MaxDays)
	}
	if config.BackfillLimit < 0 {
		return fmt.Errorf("backfill limit cannot be negative, got %d", config.BackfillLimit)
	}
	if config.ItemDelay < 0 {
		return fmt.Errorf("item delay cannot be negative, got %s", config.ItemDelay)
	}
	return nil
}

// PriceRequest describes a single-coin fetch.
type PriceRequest struct {
	CoinID string
	From   models.Date
	To     models.Date

	// Debug logs the per-day settlement selection
	Debug bool

	// Backfill fills missing days from the per-day history endpoint
	Backfill bool

	// Cancel is polled at every retry boundary
	Cancel exchange.Canceller

	// Listener receives per-day progress
	Listener ProgressListener
}

// PriceResult is the outcome of a successful fetch.
type PriceResult struct {
	CoinID  string                    `json:"coin_id"`
	From    models.Date               `json:"from"`
	To      models.Date               `json:"to"`
	Records []models.DailyPriceRecord `json:"records"`

	Statistics models.Statistics `json:"statistics"`
	Gaps       []models.Gap      `json:"gaps,omitempty"`

	// Validation is the sample validator report, nil when disabled
	Validation *validator.Report `json:"validation,omitempty"`

	// Backfill is set when a backfill pass ran
	Backfill *gaps.BackfillResult `json:"backfill,omitempty"`

	// Samples is the number of raw samples returned by the provider
	Samples  int           `json:"samples"`
	Duration time.Duration `json:"duration"`
}

// collectorImpl implements the Collector interface
type collectorImpl struct {
	config *Config

	fetcher    exchange.PriceFetcher
	validator  *validator.SampleValidator
	gaps       gaps.GapDetector
	backfiller gaps.Backfiller
	telemetry  *metrics.Telemetry

	now   func() time.Time
	sleep exchange.Sleeper

	logger *slog.Logger
}

// New creates a Collector reading prices from fetcher. A nil config uses
// DefaultConfig.
func New(fetcher exchange.PriceFetcher, config *Config) Collector {
	return newCollector(fetcher, config)
}

func newCollector(fetcher exchange.PriceFetcher, config *Config) *collectorImpl {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.With("component", component)

	return &collectorImpl{
		config:    config,
		fetcher:   fetcher,
		validator: validator.NewSampleValidator(config.Logger),
		gaps:      gaps.NewGapDetector(config.Logger),
		telemetry: metrics.Noop(),
		now:       time.Now,
		sleep:     exchange.Sleep,
		logger:    logger,
	}
}

// Health returns the provider health when the fetcher supports it.
func (c *collectorImpl) Health(ctx context.Context) error {
	checker, ok := c.fetcher.(exchange.HealthChecker)
	if !ok {
		return nil
	}
	if err := checker.HealthCheck(ctx); err != nil {
		return fmt.Errorf("exchange health check failed: %w", err)
	}
	return nil
}

// FetchDailyPrices implements Collector.
func (c *collectorImpl) FetchDailyPrices(ctx context.Context, req PriceRequest) (*PriceResult, error) {
	startTime := time.Now()

	if req.CoinID == "" {
		return nil, errors.Newf(errors.ErrorTypeFormat, component, "FetchDailyPrices", "coin id is required")
	}

	today := models.DateOf(c.now())
	if c.config.AllowFuture {
		today = models.Date{}
	}
	if err := settlement.ValidateRange(req.From, req.To, c.config.MaxDays, today); err != nil {
		return nil, err
	}

	window := settlement.NewQueryWindow(req.From, req.To)
	logger := c.logger.With("coin", req.CoinID)

	ctx, span := c.telemetry.StartSpan(ctx, "collector.FetchDailyPrices",
		attribute.String("coin", req.CoinID),
		attribute.String("from", req.From.String()),
		attribute.String("to", req.To.String()),
	)
	defer span.End()

	logger.Info("Fetching daily prices",
		"from", req.From.String(),
		"to", req.To.String(),
		"window", window.String(),
	)

	opts := exchange.FetchOptions{Cancel: req.Cancel}
	samples, err := c.fetcher.FetchRange(ctx, req.CoinID, window, opts)
	if err != nil {
		if errors.IsCancelled(err) {
			logger.Info("Fetch cancelled")
			span.SetAttributes(attribute.Bool("cancelled", true))
			return nil, err
		}
		c.telemetry.RecordFailure(ctx, req.CoinID, string(errors.GetErrorType(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("Fetch failed", "error", err, "duration", time.Since(startTime))
		return nil, err
	}

	result := &PriceResult{
		CoinID:  req.CoinID,
		From:    req.From,
		To:      req.To,
		Samples: len(samples),
	}

	accepted := samples
	if c.config.ValidationEnabled {
		report := c.validator.Validate(samples, window)
		result.Validation = &report
		accepted = report.Accepted
	}

	prices := settlement.Aggregate(accepted, req.From, req.To, settlement.AggregateOptions{
		Logger: logger,
		Debug:  req.Debug,
	})
	result.Records = Assemble(prices, req.From, req.To, req.Listener)

	if req.Backfill && c.backfiller != nil && len(gaps.DetectMissing(result.Records)) > 0 {
		filled, bf, err := c.backfiller.Backfill(ctx, req.CoinID, result.Records, opts)
		result.Records = filled
		result.Backfill = bf
		if err != nil && !errors.IsCancelled(err) {
			logger.Warn("Backfill failed", "error", err)
		}
	}

	result.Statistics = models.CalculateStatistics(result.Records)
	if c.config.GapDetectionEnabled {
		result.Gaps = c.gaps.DetectMissing(result.Records)
	}

	missing := result.Statistics.TotalCount - result.Statistics.ValidCount
	c.telemetry.RecordDays(ctx, req.CoinID, result.Statistics.ValidCount, missing)
	span.SetAttributes(
		attribute.Int("samples", len(samples)),
		attribute.Int("days.filled", result.Statistics.ValidCount),
		attribute.Int("days.missing", missing),
	)

	result.Duration = time.Since(startTime)
	logger.Info("Daily prices fetched",
		"samples", len(samples),
		"days", result.Statistics.TotalCount,
		"filled", result.Statistics.ValidCount,
		"missing", missing,
		"duration", result.Duration,
	)

	return result, nil
}
