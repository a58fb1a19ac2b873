// Package gaps finds requested days that received no price and optionally
// backfills them from the provider's per-day history snapshot.
package gaps

import (
	"context"
	"log/slog"

	"github.com/tomx220052/cryptoprice/internal/exchange"
	"github.com/tomx220052/cryptoprice/internal/models"
)

// GapDetector identifies contiguous runs of missing days.
type GapDetector interface {
	// DetectMissing returns the runs of records without a price, in order.
	// Records are expected to be consecutive days, as produced by the assembler.
	DetectMissing(records []models.DailyPriceRecord) []models.Gap
}

// Backfiller fills missing records from another source.
type Backfiller interface {
	// Backfill returns a copy of records where missing days were filled when
	// possible, together with a summary of what happened.
	Backfill(ctx context.Context, coinID string, records []models.DailyPriceRecord, opts exchange.FetchOptions) ([]models.DailyPriceRecord, *BackfillResult, error)
}

// BackfillResult summarises a backfill pass.
type BackfillResult struct {
	// Attempted counts the missing days that were queried
	Attempted int `json:"attempted"`

	// Filled lists the days that received a price
	Filled []models.Date `json:"filled"`

	// Failed maps days that still have no price to the reason
	Failed map[models.Date]string `json:"failed"`

	// Cancelled is true when the pass stopped early
	Cancelled bool `json:"cancelled"`
}

// DetectorImpl is the default GapDetector.
type DetectorImpl struct {
	logger *slog.Logger
}

// NewGapDetector creates a detector.
func NewGapDetector(logger *slog.Logger) *DetectorImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetectorImpl{logger: logger.With("component", "gap_detector")}
}

// DetectMissing implements GapDetector.
func (d *DetectorImpl) DetectMissing(records []models.DailyPriceRecord) []models.Gap {
	gaps := DetectMissing(records)
	if len(gaps) > 0 {
		missing := 0
		for _, g := range gaps {
			missing += g.Days
		}
		d.logger.Info("missing days detected",
			"gaps", len(gaps),
			"missing_days", missing,
			"total_days", len(records))
	}
	return gaps
}

// DetectMissing returns the contiguous runs of records without a price.
// A run breaks on any record with a price or on a break in day continuity.
func DetectMissing(records []models.DailyPriceRecord) []models.Gap {
	var gaps []models.Gap

	open := false
	var start, end models.Date
	for _, r := range records {
		if r.HasPrice() {
			if open {
				gaps = append(gaps, models.NewGap(start, end))
				open = false
			}
			continue
		}
		if open && r.Date == end.AddDays(1) {
			end = r.Date
			continue
		}
		if open {
			gaps = append(gaps, models.NewGap(start, end))
		}
		start, end, open = r.Date, r.Date, true
	}
	if open {
		gaps = append(gaps, models.NewGap(start, end))
	}

	return gaps
}

// MissingDays flattens gaps into the individual days they cover.
func MissingDays(gaps []models.Gap) []models.Date {
	var days []models.Date
	for _, g := range gaps {
		days = append(days, models.DaysInRange(g.Start, g.End)...)
	}
	return days
}
