package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PricePrecision is the number of decimal places kept for daily prices.
const PricePrecision = 8

// PriceSample is a single raw (timestamp, price) pair as returned by the provider.
type PriceSample struct {
	TimestampMs int64           `json:"timestamp_ms"`
	Price       decimal.Decimal `json:"price"`
}

// NewPriceSample creates a sample from an epoch millisecond timestamp and price.
func NewPriceSample(timestampMs int64, price decimal.Decimal) PriceSample {
	return PriceSample{TimestampMs: timestampMs, Price: price}
}

// Time returns the sample instant in UTC.
func (s PriceSample) Time() time.Time {
	return time.UnixMilli(s.TimestampMs).UTC()
}

// String implements fmt.Stringer.
func (s PriceSample) String() string {
	return fmt.Sprintf("PriceSample{%s, %s}", s.Time().Format(time.RFC3339), s.Price.String())
}

// DailyPriceRecord holds the settlement price of one requested day.
// An invalid Price means no data was found for that day.
type DailyPriceRecord struct {
	Date  Date                `json:"date"`
	Price decimal.NullDecimal `json:"price"`
}

// NewDailyPriceRecord creates a record with a known price.
func NewDailyPriceRecord(date Date, price decimal.Decimal) DailyPriceRecord {
	return DailyPriceRecord{Date: date, Price: decimal.NewNullDecimal(price)}
}

// MissingDailyPriceRecord creates a record for a day without data.
func MissingDailyPriceRecord(date Date) DailyPriceRecord {
	return DailyPriceRecord{Date: date}
}

// HasPrice reports whether the record carries a price.
func (r DailyPriceRecord) HasPrice() bool {
	return r.Price.Valid
}

// PriceString returns the price formatted with its significant digits, or "N/A".
func (r DailyPriceRecord) PriceString() string {
	if !r.Price.Valid {
		return "N/A"
	}
	return r.Price.Decimal.String()
}
