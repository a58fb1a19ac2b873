package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomx220052/cryptoprice/internal/models"
)

func records(start string, prices ...string) []models.DailyPriceRecord {
	day := models.MustParseDate(start)
	out := make([]models.DailyPriceRecord, 0, len(prices))
	for i, p := range prices {
		d := day.AddDays(i)
		if p == "" {
			out = append(out, models.MissingDailyPriceRecord(d))
			continue
		}
		out = append(out, models.NewDailyPriceRecord(d, decimal.RequireFromString(p)))
	}
	return out
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, records("2024-01-01", "42261.04123457", "", "43000.5"))
	require.NoError(t, err)

	expected := "Date,Price (USD)\n" +
		"2024-01-01,42261.04123457\n" +
		"2024-01-02,N/A\n" +
		"2024-01-03,43000.5\n" +
		"Average,42630.77061729\n"
	assert.Equal(t, expected, buf.String())
}

func TestWriteCSVAllMissing(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records("2024-01-01", "", "")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Average,N/A", lines[3])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, WriteCSV(&buf, nil), ErrNoRecords)
	assert.Empty(t, buf.String())
}

func TestCSVRoundTrip(t *testing.T) {
	original := records("2024-02-27", "0.00001234", "", "61234.5", "", "1")

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, original))

	parsed, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, parsed, len(original))

	for i := range original {
		assert.Equal(t, original[i].Date, parsed[i].Date)
		assert.Equal(t, original[i].HasPrice(), parsed[i].HasPrice())
		if original[i].HasPrice() {
			assert.True(t, original[i].Price.Decimal.Equal(parsed[i].Price.Decimal),
				"day %s: %s != %s", original[i].Date, original[i].Price.Decimal, parsed[i].Price.Decimal)
		}
	}
}

func TestReadCSVWithByteOrderMark(t *testing.T) {
	parsed, err := ReadCSV(strings.NewReader("\uFEFFDate,Price (USD)\n2024-01-01,1.5\nAverage,1.5\n"))
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, "1.5", parsed[0].PriceString())
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"wrong header", "Day,Price\n2024-01-01,1\n"},
		{"bad date", "Date,Price (USD)\n01/01/2024,1\n"},
		{"bad price", "Date,Price (USD)\n2024-01-01,abc\n"},
		{"extra column", "Date,Price (USD)\n2024-01-01,1,2\n"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestSaveAndLoadCSV(t *testing.T) {
	from := models.MustParseDate("2024-01-01")
	to := models.MustParseDate("2024-01-02")
	path := filepath.Join(t.TempDir(), "out", DefaultFilename("bitcoin", from, to))
	assert.True(t, strings.HasSuffix(path, "bitcoin_2024-01-01_2024-01-02_prices.csv"))

	require.NoError(t, SaveCSV(path, records("2024-01-01", "1.5", "")))

	loaded, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "1.5", loaded[0].PriceString())
	assert.False(t, loaded[1].HasPrice())

	assert.ErrorIs(t, SaveCSV(filepath.Join(t.TempDir(), "none.csv"), nil), ErrNoRecords)
	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func testSummary() *models.BatchSummary {
	from := models.MustParseDate("2024-01-01")
	to := models.MustParseDate("2024-01-02")
	summary := models.NewBatchSummary("run-1", from, to)
	summary.Record(models.CoinOutcome{
		CoinID:  "bitcoin",
		Status:  models.BatchStatusSuccess,
		Average: decimal.NewNullDecimal(decimal.RequireFromString("100.25")),
		Records: records("2024-01-01", "100", "100.5"),
	})
	summary.Record(models.CoinOutcome{
		CoinID:  "ethereum",
		Status:  models.BatchStatusEmpty,
		Records: records("2024-01-01", "", ""),
	})
	summary.Record(models.CoinOutcome{
		CoinID: "dogecoin",
		Status: models.BatchStatusError,
		Err:    "[exchange/not_found] FetchRange: HTTP 404: coin not found",
	})
	summary.Record(models.CoinOutcome{CoinID: "solana", Status: models.BatchStatusSkipped})
	summary.Cancelled = true
	summary.Finish()
	return summary
}

func TestWriteBatchSummaryCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBatchSummaryCSV(&buf, testSummary()))

	expected := "Coin,Status,Average,Error\n" +
		"bitcoin,success,100.25,\n" +
		"ethereum,empty,,\n" +
		"dogecoin,error,,[exchange/not_found] FetchRange: HTTP 404: coin not found\n" +
		"solana,skipped,,\n"
	assert.Equal(t, expected, buf.String())

	assert.Error(t, WriteBatchSummaryCSV(&buf, nil))
}

func TestSaveBatch(t *testing.T) {
	dir := t.TempDir()
	summary := testSummary()

	paths, err := SaveBatch(dir, summary)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "bitcoin_2024-01-01_2024-01-02_prices.csv"),
		filepath.Join(dir, "ethereum_2024-01-01_2024-01-02_prices.csv"),
	}, paths)

	summaryPath := filepath.Join(dir, "summary.csv")
	require.NoError(t, SaveBatchSummary(summaryPath, summary))
	data, err := os.ReadFile(summaryPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "solana,skipped")
}
