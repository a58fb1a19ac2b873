// Package validator checks raw price samples before aggregation.
//
// Samples that cannot be attributed to a settlement day are dropped:
// non-positive timestamps, negative prices, timestamps outside the query
// window and repeated timestamps (the first occurrence is kept). Large moves
// between consecutive samples are reported as anomalies but kept.
package validator

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tomx220052/cryptoprice/internal/models"
	"github.com/tomx220052/cryptoprice/internal/settlement"
)

// IssueType classifies a validation finding.
type IssueType string

const (
	IssueNegativePrice    IssueType = "negative_price"
	IssueInvalidTimestamp IssueType = "invalid_timestamp"
	IssueOutsideWindow    IssueType = "outside_window"
	IssueDuplicate        IssueType = "duplicate_timestamp"
	IssuePriceSpike       IssueType = "price_spike"
)

// Issue describes a single finding for the sample at Index.
type Issue struct {
	Index   int                `json:"index"`
	Type    IssueType          `json:"type"`
	Sample  models.PriceSample `json:"sample"`
	Message string             `json:"message"`
	// Dropped is true when the sample was removed from the accepted set
	Dropped bool `json:"dropped"`
}

// Report is the outcome of validating a sample sequence.
type Report struct {
	Accepted []models.PriceSample `json:"accepted"`
	Issues   []Issue              `json:"issues"`
	Total    int                  `json:"total"`
	Dropped  int                  `json:"dropped"`
}

// Valid reports whether no sample was dropped.
func (r Report) Valid() bool {
	return r.Dropped == 0
}

// ValidationConfig holds the validator thresholds.
type ValidationConfig struct {
	// PriceSpikeThreshold is the ratio between consecutive sample prices
	// above which an anomaly is reported (5.0 means a 500% move)
	PriceSpikeThreshold float64

	// CheckWindow enables dropping samples outside the query window
	CheckWindow bool
}

// NewValidationConfig returns the default configuration.
func NewValidationConfig() *ValidationConfig {
	return &ValidationConfig{
		PriceSpikeThreshold: 5.0,
		CheckWindow:         true,
	}
}

// SampleValidator validates provider samples.
type SampleValidator struct {
	config *ValidationConfig
	logger *slog.Logger
}

// NewSampleValidator creates a validator with the default configuration.
func NewSampleValidator(logger *slog.Logger) *SampleValidator {
	return NewSampleValidatorWithConfig(nil, logger)
}

// NewSampleValidatorWithConfig creates a validator with a custom configuration.
func NewSampleValidatorWithConfig(config *ValidationConfig, logger *slog.Logger) *SampleValidator {
	if logger == nil {
		logger = slog.Default()
	}
	if config == nil {
		config = NewValidationConfig()
	}
	return &SampleValidator{
		config: config,
		logger: logger.With("component", "sample_validator"),
	}
}

// ValidateSamples validates samples with the default configuration and no logging.
func ValidateSamples(samples []models.PriceSample, window settlement.QueryWindow) Report {
	return NewSampleValidator(slog.New(slog.NewTextHandler(io.Discard, nil))).Validate(samples, window)
}

// Validate returns the accepted samples, in input order, and every finding.
func (v *SampleValidator) Validate(samples []models.PriceSample, window settlement.QueryWindow) Report {
	report := Report{
		Accepted: make([]models.PriceSample, 0, len(samples)),
		Total:    len(samples),
	}
	seen := make(map[int64]struct{}, len(samples))
	var inputIndex []int

	drop := func(i int, s models.PriceSample, t IssueType, msg string) {
		report.Issues = append(report.Issues, Issue{Index: i, Type: t, Sample: s, Message: msg, Dropped: true})
		report.Dropped++
	}

	for i, s := range samples {
		switch {
		case s.TimestampMs <= 0:
			drop(i, s, IssueInvalidTimestamp, fmt.Sprintf("timestamp %d is not positive", s.TimestampMs))
		case s.Price.IsNegative():
			drop(i, s, IssueNegativePrice, fmt.Sprintf("price %s is negative", s.Price))
		case v.config.CheckWindow && window != (settlement.QueryWindow{}) && !window.Contains(s.TimestampMs):
			drop(i, s, IssueOutsideWindow, fmt.Sprintf("timestamp %s is outside %s", s.Time().Format("2006-01-02T15:04:05Z"), window))
		default:
			if _, dup := seen[s.TimestampMs]; dup {
				drop(i, s, IssueDuplicate, fmt.Sprintf("timestamp %d repeated", s.TimestampMs))
				continue
			}
			seen[s.TimestampMs] = struct{}{}
			report.Accepted = append(report.Accepted, s)
			inputIndex = append(inputIndex, i)
		}
	}

	report.Issues = append(report.Issues, v.detectSpikes(report.Accepted, inputIndex)...)

	if len(report.Issues) > 0 {
		v.logger.Warn("sample validation findings",
			"total", report.Total,
			"dropped", report.Dropped,
			"issues", len(report.Issues))
		for _, issue := range report.Issues {
			v.logger.Debug("sample issue",
				"index", issue.Index,
				"type", issue.Type,
				"dropped", issue.Dropped,
				"message", issue.Message)
		}
	}

	return report
}

// detectSpikes compares consecutive samples in time order. index maps
// positions in samples back to the input sequence.
func (v *SampleValidator) detectSpikes(samples []models.PriceSample, index []int) []Issue {
	if v.config.PriceSpikeThreshold <= 0 || len(samples) < 2 {
		return nil
	}

	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return samples[order[a]].TimestampMs < samples[order[b]].TimestampMs
	})

	threshold := decimal.NewFromFloat(v.config.PriceSpikeThreshold)
	var issues []Issue
	for k := 1; k < len(order); k++ {
		prev, cur := samples[order[k-1]], samples[order[k]]
		if prev.Price.IsZero() || cur.Price.IsZero() {
			continue
		}
		ratio := cur.Price.Div(prev.Price)
		if ratio.LessThan(decimal.NewFromInt(1)) {
			ratio = decimal.NewFromInt(1).Div(ratio)
		}
		if ratio.GreaterThan(threshold) {
			issues = append(issues, Issue{
				Index:   index[order[k]],
				Type:    IssuePriceSpike,
				Sample:  cur,
				Message: fmt.Sprintf("price moved from %s to %s", prev.Price, cur.Price),
			})
		}
	}
	return issues
}
