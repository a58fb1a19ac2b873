// Package settlement translates calendar date ranges into provider query
// windows and reduces intraday price samples to one price per settlement day.
//
// A day D settles at 16:00 UTC on D-1: every sample at or after 16:00 UTC is
// attributed to the following calendar day, and the sample nearest to the
// settlement instant represents the day.
package settlement

import (
	"fmt"
	"time"

	"github.com/tomx220052/cryptoprice/internal/errors"
	"github.com/tomx220052/cryptoprice/internal/models"
)

// SettlementHour is the UTC hour at which a trading day settles.
const SettlementHour = 16

const component = "settlement"

// QueryWindow is a provider query range in UTC epoch seconds.
type QueryWindow struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// NewQueryWindow builds the window covering every sample needed for the
// inclusive day range: lower bound is midnight UTC of the day before from,
// upper bound is 23:59:59 UTC of to.
func NewQueryWindow(from, to models.Date) QueryWindow {
	return QueryWindow{
		From: from.AddDays(-1).Time().Unix(),
		To:   to.At(23, 59, 59).Unix(),
	}
}

// ParseQueryWindow parses YYYY-MM-DD bounds and builds their query window.
func ParseQueryWindow(fromStr, toStr string) (QueryWindow, error) {
	from, to, err := ParseRange(fromStr, toStr)
	if err != nil {
		return QueryWindow{}, err
	}
	return NewQueryWindow(from, to), nil
}

// ParseRange parses both date bounds, failing with a format error on the
// first malformed one.
func ParseRange(fromStr, toStr string) (models.Date, models.Date, error) {
	from, err := models.ParseDate(fromStr)
	if err != nil {
		return models.Date{}, models.Date{}, errors.New(errors.ErrorTypeFormat, component, "ParseRange",
			fmt.Errorf("from date: %w", err))
	}
	to, err := models.ParseDate(toStr)
	if err != nil {
		return models.Date{}, models.Date{}, errors.New(errors.ErrorTypeFormat, component, "ParseRange",
			fmt.Errorf("to date: %w", err))
	}
	return from, to, nil
}

// Contains reports whether the epoch millisecond timestamp lies inside the window.
func (w QueryWindow) Contains(tsMs int64) bool {
	return tsMs >= w.From*1000 && tsMs <= w.To*1000
}

// String implements fmt.Stringer.
func (w QueryWindow) String() string {
	return fmt.Sprintf("[%s, %s]",
		time.Unix(w.From, 0).UTC().Format(time.RFC3339),
		time.Unix(w.To, 0).UTC().Format(time.RFC3339))
}

// SettlementTimestamp returns the settlement instant of day d, 16:00 UTC of
// d-1, in epoch milliseconds.
func SettlementTimestamp(d models.Date) int64 {
	return d.AddDays(-1).At(SettlementHour, 0, 0).UnixMilli()
}

// AttributedDay returns the settlement day a sample belongs to.
func AttributedDay(tsMs int64) models.Date {
	t := time.UnixMilli(tsMs).UTC()
	d := models.DateOf(t)
	if t.Hour() >= SettlementHour {
		return d.AddDays(1)
	}
	return d
}

// ValidateRange checks that from is strictly before to, that the span is
// shorter than maxDays, and that neither bound lies after today.
// A non-positive maxDays disables the span check.
func ValidateRange(from, to models.Date, maxDays int, today models.Date) error {
	if !from.Before(to) {
		return errors.Newf(errors.ErrorTypeRange, component, "ValidateRange",
			"start date %s must be before end date %s", from, to)
	}
	if maxDays > 0 && from.DaysUntil(to) >= maxDays {
		return errors.Newf(errors.ErrorTypeRange, component, "ValidateRange",
			"date range of %d days exceeds the maximum of %d", from.DaysUntil(to), maxDays)
	}
	if !today.IsZero() && (from.After(today) || to.After(today)) {
		return errors.Newf(errors.ErrorTypeRange, component, "ValidateRange",
			"dates must not be in the future (today is %s)", today)
	}
	return nil
}
