package models

import "github.com/shopspring/decimal"

// Statistics summarises the valid prices of a record sequence.
type Statistics struct {
	Average    decimal.NullDecimal `json:"average"`
	Max        decimal.NullDecimal `json:"max"`
	Min        decimal.NullDecimal `json:"min"`
	ValidCount int                 `json:"valid_count"`
	TotalCount int                 `json:"total_count"`
}

// CalculateStatistics computes avg/max/min over the records that carry a price.
// The average is rounded to PricePrecision places. All three are invalid when
// no record has a price.
func CalculateStatistics(records []DailyPriceRecord) Statistics {
	stats := Statistics{TotalCount: len(records)}

	var sum, max, min decimal.Decimal
	for _, r := range records {
		if !r.HasPrice() {
			continue
		}
		p := r.Price.Decimal
		if stats.ValidCount == 0 {
			max, min = p, p
		} else {
			max = decimal.Max(max, p)
			min = decimal.Min(min, p)
		}
		sum = sum.Add(p)
		stats.ValidCount++
	}

	if stats.ValidCount == 0 {
		return stats
	}

	avg := sum.Div(decimal.NewFromInt(int64(stats.ValidCount))).Round(PricePrecision)
	stats.Average = decimal.NewNullDecimal(avg)
	stats.Max = decimal.NewNullDecimal(max)
	stats.Min = decimal.NewNullDecimal(min)
	return stats
}

// Coverage returns the share of days that carry a price, between 0 and 1.
func (s Statistics) Coverage() float64 {
	if s.TotalCount == 0 {
		return 0
	}
	return float64(s.ValidCount) / float64(s.TotalCount)
}
