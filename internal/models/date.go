// Package models provides the data structures shared by the price retrieval,
// aggregation and export components: calendar dates, raw price samples,
// per-day price records, the coin registry and batch outcomes.
package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the only accepted textual representation of a calendar day.
const DateLayout = "2006-01-02"

// Date is a calendar day without a time component or location.
// It is comparable and can be used as a map key.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateError reports a malformed date string.
type DateError struct {
	Field string
	Value string
	Err   error
}

// Error implements the error interface.
func (e *DateError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", e.Value)
	}
	return fmt.Sprintf("invalid %s %q, expected YYYY-MM-DD", e.Field, e.Value)
}

// Unwrap returns the underlying parse error.
func (e *DateError) Unwrap() error {
	return e.Err
}

// ParseDate parses a YYYY-MM-DD string into a Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, &DateError{Value: s, Err: err}
	}
	return DateOf(t), nil
}

// MustParseDate is like ParseDate but panics on malformed input.
// It is intended for constants and tests.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the UTC calendar day of t.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// At returns the given wall clock time of the day in UTC.
func (d Date) At(hour, min, sec int) time.Time {
	return time.Date(d.Year, d.Month, d.Day, hour, min, sec, 0, time.UTC)
}

// AddDays returns the day n days after d (n may be negative).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return d.Time().After(other.Time())
}

// Equal reports whether d and other are the same calendar day.
func (d Date) Equal(other Date) bool {
	return d == other
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// DaysUntil returns the number of whole days from d to other.
// The result is negative when other is before d.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time().Sub(d.Time()).Hours() / 24)
}

// String formats the day as YYYY-MM-DD.
func (d Date) String() string {
	return d.Time().Format(DateLayout)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysInRange returns every day from from to to inclusive, in order.
// It returns nil when to is before from.
func DaysInRange(from, to Date) []Date {
	n := from.DaysUntil(to) + 1
	if n <= 0 {
		return nil
	}
	days := make([]Date, 0, n)
	for i := 0; i < n; i++ {
		days = append(days, from.AddDays(i))
	}
	return days
}
