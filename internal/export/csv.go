// Package export writes daily price records to CSV files and reads them back.
//
// A price file has a "Date","Price (USD)" header, one row per day in order,
// and a trailing "Average" row holding the mean of the valid prices rounded to
// eight places. Days without a price are written as N/A.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tomx220052/cryptoprice/internal/models"
)

const (
	HeaderDate  = "Date"
	HeaderPrice = "Price (USD)"

	// AverageLabel marks the trailing summary row
	AverageLabel = "Average"

	// NotAvailable replaces prices of days without data
	NotAvailable = "N/A"
)

// ErrNoRecords is returned when there is nothing to export.
var ErrNoRecords = errors.New("no price data to export")

// DefaultFilename returns the conventional file name for a coin and range.
func DefaultFilename(coinID string, from, to models.Date) string {
	return fmt.Sprintf("%s_%s_%s_prices.csv", coinID, from, to)
}

// WriteCSV writes records followed by the average row.
func WriteCSV(w io.Writer, records []models.DailyPriceRecord) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	writer := csv.NewWriter(w)

	if err := writer.Write([]string{HeaderDate, HeaderPrice}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range records {
		if err := writer.Write([]string{r.Date.String(), r.PriceString()}); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", r.Date, err)
		}
	}

	stats := models.CalculateStatistics(records)
	average := NotAvailable
	if stats.Average.Valid {
		average = stats.Average.Decimal.String()
	}
	if err := writer.Write([]string{AverageLabel, average}); err != nil {
		return fmt.Errorf("failed to write average row: %w", err)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// SaveCSV writes records to path, creating parent directories as needed.
func SaveCSV(path string, records []models.DailyPriceRecord) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := WriteCSV(file, records); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// ReadCSV parses a file produced by WriteCSV. The average row is skipped.
func ReadCSV(r io.Reader) ([]models.DailyPriceRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if strings.TrimPrefix(header[0], "\uFEFF") != HeaderDate || header[1] != HeaderPrice {
		return nil, fmt.Errorf("unexpected header %q", header)
	}

	var records []models.DailyPriceRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if row[0] == AverageLabel {
			continue
		}

		date, err := models.ParseDate(row[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if row[1] == NotAvailable {
			records = append(records, models.MissingDailyPriceRecord(date))
			continue
		}

		price, err := decimal.NewFromString(row[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid price %q: %w", line, row[1], err)
		}
		records = append(records, models.NewDailyPriceRecord(date, price))
	}

	return records, nil
}

// LoadCSV reads records from path.
func LoadCSV(path string) ([]models.DailyPriceRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	return ReadCSV(file)
}
