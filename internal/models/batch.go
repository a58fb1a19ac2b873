package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BatchStatus represents the outcome of one coin within a batch run.
type BatchStatus string

const (
	// BatchStatusSuccess indicates at least one day carried a price
	BatchStatusSuccess BatchStatus = "success"
	// BatchStatusEmpty indicates the fetch succeeded but no day had a price
	BatchStatusEmpty BatchStatus = "empty"
	// BatchStatusError indicates the fetch failed terminally
	BatchStatusError BatchStatus = "error"
	// BatchStatusSkipped indicates the coin was not processed because the run was cancelled
	BatchStatusSkipped BatchStatus = "skipped"
)

// CoinOutcome is the result recorded for a single coin of a batch.
type CoinOutcome struct {
	// CoinID is the provider identifier of the coin
	CoinID string `json:"coin_id"`

	// Status is the outcome classification
	Status BatchStatus `json:"status"`

	// Average is the rounded mean of valid prices (success only)
	Average decimal.NullDecimal `json:"average"`

	// Records are the assembled daily records (success and empty only)
	Records []DailyPriceRecord `json:"records,omitempty"`

	// Err holds the failure message for error outcomes
	Err string `json:"error,omitempty"`

	// Duration is the wall time spent on this coin
	Duration time.Duration `json:"duration"`
}

// BatchSummary aggregates the outcomes of a batch run.
type BatchSummary struct {
	// RunID uniquely identifies the run in logs and reports
	RunID string `json:"run_id"`

	// From and To are the inclusive requested range
	From Date `json:"from"`
	To   Date `json:"to"`

	// Outcomes holds one entry per processed or skipped coin, in list order
	Outcomes []CoinOutcome `json:"outcomes"`

	// Succeeded counts success outcomes
	Succeeded int `json:"succeeded"`

	// Empty counts empty outcomes
	Empty int `json:"empty"`

	// Failed counts error outcomes
	Failed int `json:"failed"`

	// Skipped counts coins never processed due to cancellation
	Skipped int `json:"skipped"`

	// Completed lists coin IDs that finished with success or empty
	Completed []string `json:"completed"`

	// SkippedCoins lists coin IDs not processed
	SkippedCoins []string `json:"skipped_coins"`

	// Failures maps coin ID to failure reason
	Failures map[string]string `json:"failures"`

	// Cancelled is true when the run stopped on a cancellation request
	Cancelled bool `json:"cancelled"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewBatchSummary creates an empty summary for the given run.
func NewBatchSummary(runID string, from, to Date) *BatchSummary {
	return &BatchSummary{
		RunID:     runID,
		From:      from,
		To:        to,
		Failures:  make(map[string]string),
		StartedAt: time.Now().UTC(),
	}
}

// Record appends an outcome and updates the counters.
func (s *BatchSummary) Record(o CoinOutcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch o.Status {
	case BatchStatusSuccess:
		s.Succeeded++
		s.Completed = append(s.Completed, o.CoinID)
	case BatchStatusEmpty:
		s.Empty++
		s.Completed = append(s.Completed, o.CoinID)
	case BatchStatusError:
		s.Failed++
		s.Failures[o.CoinID] = o.Err
	case BatchStatusSkipped:
		s.Skipped++
		s.SkippedCoins = append(s.SkippedCoins, o.CoinID)
	}
}

// Finish stamps the completion time.
func (s *BatchSummary) Finish() {
	s.FinishedAt = time.Now().UTC()
}

// Total returns the number of recorded outcomes.
func (s *BatchSummary) Total() int {
	return len(s.Outcomes)
}

// Duration returns the elapsed run time, or zero if the run has not finished.
func (s *BatchSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// String returns a one-line human readable summary.
func (s *BatchSummary) String() string {
	state := "completed"
	if s.Cancelled {
		state = "cancelled"
	}
	return fmt.Sprintf("batch %s %s: %d succeeded, %d empty, %d failed, %d skipped",
		s.RunID, state, s.Succeeded, s.Empty, s.Failed, s.Skipped)
}
