package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tomx220052/cryptoprice/internal/models"
)

// WriteBatchSummaryCSV writes one row per coin outcome: Coin, Status, Average, Error.
func WriteBatchSummaryCSV(w io.Writer, summary *models.BatchSummary) error {
	if summary == nil {
		return fmt.Errorf("summary cannot be nil")
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Coin", "Status", "Average", "Error"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, o := range summary.Outcomes {
		average := ""
		if o.Average.Valid {
			average = o.Average.Decimal.String()
		}
		if err := writer.Write([]string{o.CoinID, string(o.Status), average, o.Err}); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", o.CoinID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// SaveBatch writes a price file for every outcome carrying records into dir
// and returns the written paths in outcome order.
func SaveBatch(dir string, summary *models.BatchSummary) ([]string, error) {
	if summary == nil {
		return nil, fmt.Errorf("summary cannot be nil")
	}

	var paths []string
	for _, o := range summary.Outcomes {
		if len(o.Records) == 0 {
			continue
		}
		path := filepath.Join(dir, DefaultFilename(o.CoinID, summary.From, summary.To))
		if err := SaveCSV(path, o.Records); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// SaveBatchSummary writes the batch summary to path.
func SaveBatchSummary(path string, summary *models.BatchSummary) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteBatchSummaryCSV(file, summary); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}
