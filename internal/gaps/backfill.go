package gaps

import (
	"context"
	"log/slog"

	"github.com/tomx220052/cryptoprice/internal/errors"
	"github.com/tomx220052/cryptoprice/internal/exchange"
	"github.com/tomx220052/cryptoprice/internal/models"
)

// HistoryBackfiller fills missing days from the provider's per-day history
// endpoint. That snapshot is taken at 00:00 UTC of the day rather than at
// settlement, so backfilled prices are an approximation.
type HistoryBackfiller struct {
	provider exchange.HistoryProvider
	logger   *slog.Logger
	maxDays  int
}

// NewHistoryBackfiller creates a backfiller. maxDays bounds the number of
// history requests per pass; zero means unlimited.
func NewHistoryBackfiller(provider exchange.HistoryProvider, maxDays int, logger *slog.Logger) *HistoryBackfiller {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryBackfiller{
		provider: provider,
		logger:   logger.With("component", "backfiller"),
		maxDays:  maxDays,
	}
}

// Backfill implements Backfiller. Terminal per-day failures are recorded and
// the pass continues; cancellation stops it and returns what was filled so far.
func (b *HistoryBackfiller) Backfill(ctx context.Context, coinID string, records []models.DailyPriceRecord, opts exchange.FetchOptions) ([]models.DailyPriceRecord, *BackfillResult, error) {
	out := make([]models.DailyPriceRecord, len(records))
	copy(out, records)

	result := &BackfillResult{Failed: make(map[models.Date]string)}

	for i, r := range out {
		if r.HasPrice() {
			continue
		}
		if b.maxDays > 0 && result.Attempted >= b.maxDays {
			result.Failed[r.Date] = "backfill limit reached"
			continue
		}

		result.Attempted++
		price, err := b.provider.FetchHistory(ctx, coinID, r.Date, opts)
		if err != nil {
			if errors.IsCancelled(err) {
				result.Cancelled = true
				b.logger.Info("backfill cancelled", "coin", coinID, "filled", len(result.Filled))
				return out, result, err
			}
			result.Failed[r.Date] = err.Error()
			b.logger.Warn("backfill failed for day",
				"coin", coinID,
				"date", r.Date.String(),
				"error", err)
			continue
		}

		out[i] = models.NewDailyPriceRecord(r.Date, price.Round(models.PricePrecision))
		result.Filled = append(result.Filled, r.Date)
	}

	if result.Attempted > 0 {
		b.logger.Info("backfill completed",
			"coin", coinID,
			"attempted", result.Attempted,
			"filled", len(result.Filled),
			"failed", len(result.Failed))
	}

	return out, result, nil
}
