package gaps

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomx220052/cryptoprice/internal/errors"
	"github.com/tomx220052/cryptoprice/internal/exchange"
	"github.com/tomx220052/cryptoprice/internal/models"
)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// series builds consecutive records starting at start; "-" marks a missing day.
func series(start string, prices ...string) []models.DailyPriceRecord {
	d := models.MustParseDate(start)
	records := make([]models.DailyPriceRecord, 0, len(prices))
	for i, p := range prices {
		day := d.AddDays(i)
		if p == "-" {
			records = append(records, models.MissingDailyPriceRecord(day))
			continue
		}
		records = append(records, models.NewDailyPriceRecord(day, decimal.RequireFromString(p)))
	}
	return records
}

func TestDetectMissing(t *testing.T) {
	tests := []struct {
		name     string
		records  []models.DailyPriceRecord
		expected []string
	}{
		{
			name:     "no records",
			records:  nil,
			expected: nil,
		},
		{
			name:     "complete series",
			records:  series("2024-01-01", "1", "2", "3"),
			expected: nil,
		},
		{
			name:     "single missing day",
			records:  series("2024-01-01", "1", "-", "3"),
			expected: []string{"2024-01-02"},
		},
		{
			name:     "leading and trailing runs",
			records:  series("2024-01-01", "-", "-", "3", "4", "-"),
			expected: []string{"2024-01-01..2024-01-02 (2 days)", "2024-01-05"},
		},
		{
			name:     "all missing",
			records:  series("2024-02-27", "-", "-", "-", "-"),
			expected: []string{"2024-02-27..2024-03-01 (4 days)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gaps := DetectMissing(tt.records)

			var got []string
			for _, g := range gaps {
				got = append(got, g.String())
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDetectMissing_NonContiguousDates(t *testing.T) {
	records := []models.DailyPriceRecord{
		models.MissingDailyPriceRecord(models.MustParseDate("2024-01-01")),
		models.MissingDailyPriceRecord(models.MustParseDate("2024-01-03")),
	}

	gaps := DetectMissing(records)

	require.Len(t, gaps, 2)
	assert.Equal(t, 1, gaps[0].Days)
	assert.Equal(t, 1, gaps[1].Days)
}

func TestMissingDays(t *testing.T) {
	gaps := DetectMissing(series("2024-01-01", "-", "-", "3", "-"))

	days := MissingDays(gaps)

	require.Len(t, days, 3)
	assert.Equal(t, "2024-01-01", days[0].String())
	assert.Equal(t, "2024-01-02", days[1].String())
	assert.Equal(t, "2024-01-04", days[2].String())
}

func TestGapDetector(t *testing.T) {
	detector := NewGapDetector(createTestLogger())

	gaps := detector.DetectMissing(series("2024-01-01", "1", "-", "-"))

	require.Len(t, gaps, 1)
	assert.Equal(t, 2, gaps[0].Days)
}

type mockHistoryProvider struct {
	prices map[string]string
	errs   map[string]error
	calls  atomic.Int32
}

func (m *mockHistoryProvider) FetchHistory(ctx context.Context, coinID string, date models.Date, opts exchange.FetchOptions) (decimal.Decimal, error) {
	m.calls.Add(1)
	key := date.String()
	if err, ok := m.errs[key]; ok {
		return decimal.Zero, err
	}
	if p, ok := m.prices[key]; ok {
		return decimal.RequireFromString(p), nil
	}
	return decimal.Zero, errors.Newf(errors.ErrorTypeNoData, "exchange", "FetchHistory", "no price for %s", key)
}

func TestHistoryBackfiller_FillsMissingDays(t *testing.T) {
	provider := &mockHistoryProvider{prices: map[string]string{
		"2024-01-02": "42000.123456789",
	}}
	backfiller := NewHistoryBackfiller(provider, 0, createTestLogger())

	records := series("2024-01-01", "1", "-", "-")
	out, result, err := backfiller.Backfill(context.Background(), "bitcoin", records, exchange.FetchOptions{})

	require.NoError(t, err)
	assert.Equal(t, int32(2), provider.calls.Load())
	assert.Equal(t, 2, result.Attempted)
	require.Len(t, result.Filled, 1)
	assert.Equal(t, "2024-01-02", result.Filled[0].String())
	assert.Contains(t, result.Failed, models.MustParseDate("2024-01-03"))

	assert.Equal(t, "42000.12345679", out[1].PriceString())
	assert.False(t, out[2].HasPrice())

	// input untouched
	assert.False(t, records[1].HasPrice())
}

func TestHistoryBackfiller_Limit(t *testing.T) {
	provider := &mockHistoryProvider{prices: map[string]string{
		"2024-01-01": "1",
		"2024-01-02": "2",
		"2024-01-03": "3",
	}}
	backfiller := NewHistoryBackfiller(provider, 2, createTestLogger())

	out, result, err := backfiller.Backfill(context.Background(), "bitcoin", series("2024-01-01", "-", "-", "-"), exchange.FetchOptions{})

	require.NoError(t, err)
	assert.Equal(t, int32(2), provider.calls.Load())
	assert.Len(t, result.Filled, 2)
	assert.Equal(t, "backfill limit reached", result.Failed[models.MustParseDate("2024-01-03")])
	assert.False(t, out[2].HasPrice())
}

func TestHistoryBackfiller_Cancelled(t *testing.T) {
	provider := &mockHistoryProvider{
		prices: map[string]string{"2024-01-01": "1"},
		errs: map[string]error{
			"2024-01-02": errors.Cancelled("exchange", "FetchHistory"),
		},
	}
	backfiller := NewHistoryBackfiller(provider, 0, createTestLogger())

	out, result, err := backfiller.Backfill(context.Background(), "bitcoin", series("2024-01-01", "-", "-", "-"), exchange.FetchOptions{})

	require.Error(t, err)
	assert.True(t, errors.IsCancelled(err))
	assert.True(t, result.Cancelled)
	assert.Equal(t, int32(2), provider.calls.Load())
	assert.True(t, out[0].HasPrice())
	assert.False(t, out[2].HasPrice())
}

func TestHistoryBackfiller_NothingMissing(t *testing.T) {
	provider := &mockHistoryProvider{}
	backfiller := NewHistoryBackfiller(provider, 0, createTestLogger())

	out, result, err := backfiller.Backfill(context.Background(), "bitcoin", series("2024-01-01", "1", "2"), exchange.FetchOptions{})

	require.NoError(t, err)
	assert.Zero(t, provider.calls.Load())
	assert.Zero(t, result.Attempted)
	assert.Len(t, out, 2)
}

func TestHistoryBackfiller_TerminalErrorContinues(t *testing.T) {
	provider := &mockHistoryProvider{
		prices: map[string]string{"2024-01-02": "2"},
		errs: map[string]error{
			"2024-01-01": fmt.Errorf("wrapped: %w", errors.New(errors.ErrorTypeNotFound, "exchange", "FetchHistory", fmt.Errorf("unknown coin"))),
		},
	}
	backfiller := NewHistoryBackfiller(provider, 0, createTestLogger())

	out, result, err := backfiller.Backfill(context.Background(), "bitcoin", series("2024-01-01", "-", "-"), exchange.FetchOptions{})

	require.NoError(t, err)
	assert.Len(t, result.Filled, 1)
	assert.Contains(t, result.Failed[models.MustParseDate("2024-01-01")], "unknown coin")
	assert.True(t, out[1].HasPrice())
}
