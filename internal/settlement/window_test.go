package settlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomx220052/cryptoprice/internal/errors"
	"github.com/tomx220052/cryptoprice/internal/models"
)

func TestNewQueryWindow(t *testing.T) {
	w := NewQueryWindow(models.MustParseDate("2024-01-01"), models.MustParseDate("2024-01-03"))

	assert.Equal(t, int64(1703980800), w.From) // 2023-12-31T00:00:00Z
	assert.Equal(t, int64(1704326399), w.To)   // 2024-01-03T23:59:59Z
	assert.Equal(t, "[2023-12-31T00:00:00Z, 2024-01-03T23:59:59Z]", w.String())
}

func TestQueryWindow_ContainsAllSettlementInstants(t *testing.T) {
	from, to := models.MustParseDate("2024-02-27"), models.MustParseDate("2024-03-02")
	w := NewQueryWindow(from, to)

	for _, d := range models.DaysInRange(from, to) {
		assert.True(t, w.Contains(SettlementTimestamp(d)), d.String())
	}
	assert.False(t, w.Contains(to.AddDays(1).Time().UnixMilli()))
}

func TestParseQueryWindow(t *testing.T) {
	w, err := ParseQueryWindow("2024-01-01", "2024-01-03")
	require.NoError(t, err)
	assert.Equal(t, NewQueryWindow(models.MustParseDate("2024-01-01"), models.MustParseDate("2024-01-03")), w)

	_, err = ParseQueryWindow("2024/01/01", "2024-01-03")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrFormat)
	assert.Contains(t, err.Error(), "from date")

	_, err = ParseQueryWindow("2024-01-01", "tomorrow")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrFormat)
	assert.Contains(t, err.Error(), "to date")
}

func TestSettlementTimestamp(t *testing.T) {
	ts := SettlementTimestamp(models.MustParseDate("2024-01-01"))

	assert.Equal(t, time.Date(2023, 12, 31, 16, 0, 0, 0, time.UTC).UnixMilli(), ts)
	assert.Equal(t, int64(1704038400000), ts)
}

func TestAttributedDay(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"midnight", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "2024-01-01"},
		{"just before settlement", time.Date(2024, 1, 1, 15, 59, 59, 999e6, time.UTC), "2024-01-01"},
		{"at settlement", time.Date(2024, 1, 1, 16, 0, 0, 0, time.UTC), "2024-01-02"},
		{"late evening", time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC), "2024-01-02"},
		{"year boundary", time.Date(2023, 12, 31, 16, 30, 0, 0, time.UTC), "2024-01-01"},
		{"leap day", time.Date(2024, 2, 28, 17, 0, 0, 0, time.UTC), "2024-02-29"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AttributedDay(tt.at.UnixMilli()).String())
		})
	}
}

func TestAttributedDay_SettlementInstantMapsBack(t *testing.T) {
	for _, d := range models.DaysInRange(models.MustParseDate("2023-12-25"), models.MustParseDate("2024-01-10")) {
		assert.Equal(t, d, AttributedDay(SettlementTimestamp(d)))
	}
}

func TestValidateRange(t *testing.T) {
	today := models.MustParseDate("2024-06-01")
	d := models.MustParseDate

	tests := []struct {
		name    string
		from    string
		to      string
		maxDays int
		wantErr bool
	}{
		{"valid", "2024-01-01", "2024-01-03", 365, false},
		{"equal bounds", "2024-01-01", "2024-01-01", 365, true},
		{"reversed", "2024-01-03", "2024-01-01", 365, true},
		{"span just under limit", "2024-01-01", "2024-03-30", 90, false},
		{"span at limit", "2024-01-01", "2024-03-31", 90, true},
		{"no span limit", "2020-01-01", "2024-01-01", 0, false},
		{"to in the future", "2024-05-01", "2024-06-02", 365, true},
		{"to is today", "2024-05-01", "2024-06-01", 365, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRange(d(tt.from), d(tt.to), tt.maxDays, today)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrRange)
				return
			}
			assert.NoError(t, err)
		})
	}
}
