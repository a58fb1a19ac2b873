package collector

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomx220052/cryptoprice/internal/models"
	"github.com/tomx220052/cryptoprice/internal/settlement"
)

func TestAssemble_LengthMatchesRequestedDays(t *testing.T) {
	tests := []struct {
		name   string
		from   string
		to     string
		prices settlement.DailyPrices
		want   int
	}{
		{"empty mapping", "2024-01-01", "2024-01-10", settlement.DailyPrices{}, 10},
		{"leap year february", "2024-02-01", "2024-03-01", settlement.DailyPrices{}, 30},
		{"year boundary", "2023-12-30", "2024-01-02", settlement.DailyPrices{
			models.MustParseDate("2023-12-31"): decimal.NewFromInt(1),
		}, 4},
		{"prices outside range are ignored", "2024-01-01", "2024-01-02", settlement.DailyPrices{
			models.MustParseDate("2023-06-01"): decimal.NewFromInt(1),
		}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from := models.MustParseDate(tt.from)
			to := models.MustParseDate(tt.to)

			records := Assemble(tt.prices, from, to, nil)

			require.Len(t, records, tt.want)
			assert.Equal(t, from, records[0].Date)
			assert.Equal(t, to, records[len(records)-1].Date)
			for i := 1; i < len(records); i++ {
				assert.Equal(t, records[i-1].Date.AddDays(1), records[i].Date)
			}
		})
	}
}

func TestAssemble_MissingDaysAreNull(t *testing.T) {
	from := models.MustParseDate("2024-01-01")
	to := models.MustParseDate("2024-01-03")
	prices := settlement.DailyPrices{
		from: decimal.RequireFromString("42000.5"),
		to:   decimal.RequireFromString("44000.125"),
	}

	records := Assemble(prices, from, to, nil)

	require.Len(t, records, 3)
	assert.Equal(t, "42000.5", records[0].PriceString())
	assert.False(t, records[1].HasPrice())
	assert.Equal(t, "N/A", records[1].PriceString())
	assert.Equal(t, "44000.125", records[2].PriceString())
}

func TestAssemble_NilMappingIsEmpty(t *testing.T) {
	records := Assemble(nil, models.MustParseDate("2024-01-01"), models.MustParseDate("2024-01-03"), nil)

	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestAssemble_ReportsProgress(t *testing.T) {
	from := models.MustParseDate("2024-01-01")
	to := models.MustParseDate("2024-01-03")
	prices := settlement.DailyPrices{
		models.MustParseDate("2024-01-02"): decimal.NewFromInt(7),
	}

	var events []Progress
	Assemble(prices, from, to, ProgressFunc(func(p Progress) {
		events = append(events, p)
	}))

	require.Len(t, events, 3)
	for i, p := range events {
		assert.Equal(t, i+1, p.Current)
		assert.Equal(t, 3, p.Total)
		assert.Equal(t, from.AddDays(i), p.Date)
	}
	assert.False(t, events[0].Success)
	assert.True(t, events[1].Success)
	assert.Equal(t, "7", events[1].Price.Decimal.String())
	assert.False(t, events[2].Success)
	assert.InDelta(t, 1.0, events[2].Fraction(), 1e-9)
}

func TestCancelFlag(t *testing.T) {
	var flag CancelFlag
	assert.False(t, flag.Cancelled())

	flag.Cancel()
	assert.True(t, flag.Cancelled())

	flag.Reset()
	assert.False(t, flag.Cancelled())
}

func TestCancelFunc(t *testing.T) {
	var nilFunc CancelFunc
	assert.False(t, nilFunc.Cancelled())

	stop := false
	fn := CancelFunc(func() bool { return stop })
	assert.False(t, fn.Cancelled())
	stop = true
	assert.True(t, fn.Cancelled())
}
