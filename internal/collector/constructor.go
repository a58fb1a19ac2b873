package collector

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tomx220052/cryptoprice/internal/exchange"
	"github.com/tomx220052/cryptoprice/internal/gaps"
	"github.com/tomx220052/cryptoprice/internal/metrics"
	"github.com/tomx220052/cryptoprice/internal/validator"
)

// NewWithDefaults creates a new Collector with default configuration
func NewWithDefaults(fetcher exchange.PriceFetcher) Collector {
	return New(fetcher, nil)
}

// CollectorBuilder provides a builder pattern for creating collectors
type CollectorBuilder struct {
	fetcher    exchange.PriceFetcher
	history    exchange.HistoryProvider
	validator  *validator.SampleValidator
	detector   gaps.GapDetector
	backfiller gaps.Backfiller
	telemetry  *metrics.Telemetry
	sleep      exchange.Sleeper
	now        func() time.Time
	config     *Config
	logger     *slog.Logger
}

// NewBuilder creates a new collector builder
func NewBuilder() *CollectorBuilder {
	return &CollectorBuilder{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
}

// WithFetcher sets the price fetcher
func (b *CollectorBuilder) WithFetcher(fetcher exchange.PriceFetcher) *CollectorBuilder {
	b.fetcher = fetcher
	return b
}

// WithHistoryProvider enables backfilling from the per-day history endpoint
func (b *CollectorBuilder) WithHistoryProvider(history exchange.HistoryProvider) *CollectorBuilder {
	b.history = history
	return b
}

// WithBackfiller sets a custom backfiller, overriding WithHistoryProvider
func (b *CollectorBuilder) WithBackfiller(backfiller gaps.Backfiller) *CollectorBuilder {
	b.backfiller = backfiller
	return b
}

// WithValidator sets the sample validator
func (b *CollectorBuilder) WithValidator(v *validator.SampleValidator) *CollectorBuilder {
	b.validator = v
	return b
}

// WithGapDetector sets the gap detector
func (b *CollectorBuilder) WithGapDetector(detector gaps.GapDetector) *CollectorBuilder {
	b.detector = detector
	return b
}

// WithTelemetry sets the telemetry sink
func (b *CollectorBuilder) WithTelemetry(t *metrics.Telemetry) *CollectorBuilder {
	b.telemetry = t
	return b
}

// WithSleeper replaces the wait used between batch items
func (b *CollectorBuilder) WithSleeper(s exchange.Sleeper) *CollectorBuilder {
	b.sleep = s
	return b
}

// WithClock sets the source of "today" for range validation
func (b *CollectorBuilder) WithClock(now func() time.Time) *CollectorBuilder {
	b.now = now
	return b
}

// WithConfig sets the configuration
func (b *CollectorBuilder) WithConfig(config *Config) *CollectorBuilder {
	if config != nil {
		b.config = config
	}
	return b
}

// WithLogger sets the logger
func (b *CollectorBuilder) WithLogger(logger *slog.Logger) *CollectorBuilder {
	b.logger = logger
	return b
}

// WithMaxDays sets the range cap
func (b *CollectorBuilder) WithMaxDays(days int) *CollectorBuilder {
	b.config.MaxDays = days
	return b
}

// WithItemDelay sets the default pause between batch items
func (b *CollectorBuilder) WithItemDelay(d time.Duration) *CollectorBuilder {
	b.config.ItemDelay = d
	return b
}

// WithValidation enables or disables sample validation
func (b *CollectorBuilder) WithValidation(enabled bool) *CollectorBuilder {
	b.config.ValidationEnabled = enabled
	return b
}

// WithGapDetection enables or disables gap detection
func (b *CollectorBuilder) WithGapDetection(enabled bool) *CollectorBuilder {
	b.config.GapDetectionEnabled = enabled
	return b
}

// Build creates the collector with the configured options
func (b *CollectorBuilder) Build() (Collector, error) {
	if b.fetcher == nil {
		return nil, fmt.Errorf("price fetcher is required")
	}

	if b.logger != nil {
		b.config.Logger = b.logger
	}

	if err := ValidateConfig(b.config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c := newCollector(b.fetcher, b.config)

	if b.validator != nil {
		c.validator = b.validator
	}
	if b.detector != nil {
		c.gaps = b.detector
	}
	switch {
	case b.backfiller != nil:
		c.backfiller = b.backfiller
	case b.history != nil:
		c.backfiller = gaps.NewHistoryBackfiller(b.history, b.config.BackfillLimit, b.config.Logger)
	}
	if b.telemetry != nil {
		c.telemetry = b.telemetry
	}
	if b.sleep != nil {
		c.sleep = b.sleep
	}
	if b.now != nil {
		c.now = b.now
	}

	return c, nil
}
