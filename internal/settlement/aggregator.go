package settlement

import (
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tomx220052/cryptoprice/internal/models"
)

// DailyPrices maps each settlement day to its rounded price. A nil map
// signals a failed fetch; an empty map a successful fetch without samples.
type DailyPrices map[models.Date]decimal.Decimal

// Days returns the keys in ascending order.
func (p DailyPrices) Days() []models.Date {
	days := make([]models.Date, 0, len(p))
	for d := range p {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// AggregateOptions controls diagnostics of Aggregate.
type AggregateOptions struct {
	// Logger receives per-day selection details when Debug is set
	Logger *slog.Logger

	// Debug enables per-day selection logging
	Debug bool
}

type selection struct {
	sample   models.PriceSample
	distance int64
}

// Aggregate reduces samples to one price per settlement day in [from, to].
//
// Samples are bucketed by AttributedDay. Within a bucket the sample nearest
// to SettlementTimestamp wins. Every sample of a bucket lies at or after that
// instant, so ties only occur between identical timestamps and the first in
// input order is kept. Prices are rounded to models.PricePrecision places.
// Negative prices and days outside [from, to] are dropped.
func Aggregate(samples []models.PriceSample, from, to models.Date, opts AggregateOptions) DailyPrices {
	result := make(DailyPrices)
	if len(samples) == 0 {
		return result
	}

	best := make(map[models.Date]selection)
	for _, s := range samples {
		if s.Price.IsNegative() {
			continue
		}
		day := AttributedDay(s.TimestampMs)
		if day.Before(from) || day.After(to) {
			continue
		}

		dist := abs(s.TimestampMs - SettlementTimestamp(day))
		cur, ok := best[day]
		if !ok || dist < cur.distance {
			best[day] = selection{sample: s, distance: dist}
		}
	}

	for day, sel := range best {
		result[day] = sel.sample.Price.Round(models.PricePrecision)
	}

	if opts.Debug {
		logSelections(opts.Logger, best, result)
	}

	return result
}

func logSelections(logger *slog.Logger, best map[models.Date]selection, result DailyPrices) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, day := range result.Days() {
		sel := best[day]
		logger.Debug("settlement price selected",
			"date", day.String(),
			"target", time.UnixMilli(SettlementTimestamp(day)).UTC().Format(time.DateTime),
			"chosen", sel.sample.Time().Format(time.DateTime),
			"distance_minutes", float64(sel.distance)/float64(time.Minute/time.Millisecond),
			"raw_price", sel.sample.Price.String(),
			"rounded_price", result[day].StringFixed(models.PricePrecision))
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
