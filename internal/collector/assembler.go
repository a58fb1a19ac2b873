package collector

import (
	"github.com/shopspring/decimal"

	"github.com/tomx220052/cryptoprice/internal/models"
	"github.com/tomx220052/cryptoprice/internal/settlement"
)

// Progress is reported once per assembled day.
type Progress struct {
	// Current is the 1-based index of the day just resolved
	Current int `json:"current"`

	// Total is the number of requested days
	Total int `json:"total"`

	Date models.Date `json:"date"`

	// Price is invalid when the day has no data
	Price decimal.NullDecimal `json:"price"`

	// Success is true when the day received a price
	Success bool `json:"success"`
}

// Fraction returns the completed share between 0 and 1.
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total)
}

// ProgressListener receives per-day progress. OnProgress is called
// synchronously from the assembling goroutine and must return quickly.
type ProgressListener interface {
	OnProgress(p Progress)
}

// ProgressFunc adapts a function to ProgressListener.
type ProgressFunc func(p Progress)

// OnProgress implements ProgressListener.
func (f ProgressFunc) OnProgress(p Progress) {
	f(p)
}

// Assemble produces one record per calendar day from from through to
// inclusive, in order. Days absent from prices become records without a price.
// A nil prices map stands for a terminal fetch failure and yields an empty
// slice; an empty non-nil map yields a full sequence of missing days.
func Assemble(prices settlement.DailyPrices, from, to models.Date, listener ProgressListener) []models.DailyPriceRecord {
	if prices == nil {
		return []models.DailyPriceRecord{}
	}

	days := models.DaysInRange(from, to)
	records := make([]models.DailyPriceRecord, 0, len(days))

	for i, day := range days {
		record := models.MissingDailyPriceRecord(day)
		if price, ok := prices[day]; ok {
			record = models.NewDailyPriceRecord(day, price)
		}
		records = append(records, record)

		if listener != nil {
			listener.OnProgress(Progress{
				Current: i + 1,
				Total:   len(days),
				Date:    day,
				Price:   record.Price,
				Success: record.HasPrice(),
			})
		}
	}

	return records
}
