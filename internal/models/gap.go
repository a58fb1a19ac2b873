package models

import "fmt"

// Gap represents a contiguous run of requested days for which no price was found.
type Gap struct {
	// Start is the first missing day
	Start Date `json:"start"`

	// End is the last missing day (inclusive)
	End Date `json:"end"`

	// Days is the number of missing days in the run
	Days int `json:"days"`
}

// NewGap creates a gap covering start through end inclusive.
func NewGap(start, end Date) Gap {
	return Gap{Start: start, End: end, Days: start.DaysUntil(end) + 1}
}

// Contains reports whether d falls within the gap.
func (g Gap) Contains(d Date) bool {
	return !d.Before(g.Start) && !d.After(g.End)
}

// String implements fmt.Stringer.
func (g Gap) String() string {
	if g.Days == 1 {
		return g.Start.String()
	}
	return fmt.Sprintf("%s..%s (%d days)", g.Start, g.End, g.Days)
}
