package collector

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tomx220052/cryptoprice/internal/errors"
	"github.com/tomx220052/cryptoprice/internal/exchange"
	"github.com/tomx220052/cryptoprice/internal/models"
)

// BatchRequest describes a sequential multi-coin run.
type BatchRequest struct {
	// Coins are provider IDs, processed in order
	Coins []string
	From  models.Date
	To    models.Date

	// ItemDelay is the pause between consecutive coins. Zero uses the
	// collector default; a negative value disables the pause.
	ItemDelay time.Duration

	// Cancel is checked before each coin, after each fetch and during waits
	Cancel exchange.Canceller

	// Listener receives per-coin events
	Listener BatchListener

	// RunID overrides the generated run identifier
	RunID string
}

// BatchListener receives batch lifecycle events. Callbacks run on the batch
// goroutine.
type BatchListener interface {
	OnCoinStart(index, total int, coinID string)
	OnCoinDone(index, total int, outcome models.CoinOutcome)
}

// BatchListenerFuncs adapts optional functions to BatchListener.
type BatchListenerFuncs struct {
	Start func(index, total int, coinID string)
	Done  func(index, total int, outcome models.CoinOutcome)
}

// OnCoinStart implements BatchListener.
func (f BatchListenerFuncs) OnCoinStart(index, total int, coinID string) {
	if f.Start != nil {
		f.Start(index, total, coinID)
	}
}

// OnCoinDone implements BatchListener.
func (f BatchListenerFuncs) OnCoinDone(index, total int, outcome models.CoinOutcome) {
	if f.Done != nil {
		f.Done(index, total, outcome)
	}
}

// RunBatch implements Collector.
func (c *collectorImpl) RunBatch(ctx context.Context, req BatchRequest) *models.BatchSummary {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	summary := models.NewBatchSummary(runID, req.From, req.To)
	logger := c.logger.With("run_id", runID)

	ctx, span := c.telemetry.StartSpan(ctx, "collector.RunBatch",
		attribute.String("run_id", runID),
		attribute.Int("coins", len(req.Coins)),
	)
	defer span.End()

	delay := req.ItemDelay
	if delay == 0 {
		delay = c.config.ItemDelay
	}

	cancelled := func() bool {
		return ctx.Err() != nil || (req.Cancel != nil && req.Cancel.Cancelled())
	}
	skipFrom := func(i int) {
		summary.Cancelled = true
		for _, coinID := range req.Coins[i:] {
			summary.Record(models.CoinOutcome{CoinID: coinID, Status: models.BatchStatusSkipped})
		}
	}

	logger.Info("Starting batch",
		"coins", len(req.Coins),
		"from", req.From.String(),
		"to", req.To.String(),
		"item_delay", delay,
	)

	total := len(req.Coins)
	for i, coinID := range req.Coins {
		if cancelled() {
			skipFrom(i)
			break
		}

		if req.Listener != nil {
			req.Listener.OnCoinStart(i, total, coinID)
		}

		outcome := c.processCoin(ctx, coinID, req)
		summary.Record(outcome)

		if req.Listener != nil {
			req.Listener.OnCoinDone(i, total, outcome)
		}

		if outcome.Status == models.BatchStatusSkipped || cancelled() {
			skipFrom(i + 1)
			break
		}

		if i < total-1 && delay > 0 {
			if err := c.sleep(ctx, delay, req.Cancel); err != nil {
				skipFrom(i + 1)
				break
			}
		}
	}

	summary.Finish()
	span.SetAttributes(
		attribute.Int("succeeded", summary.Succeeded),
		attribute.Int("failed", summary.Failed),
		attribute.Bool("cancelled", summary.Cancelled),
	)

	logger.Info("Batch finished",
		"succeeded", summary.Succeeded,
		"empty", summary.Empty,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"cancelled", summary.Cancelled,
		"duration", summary.Duration(),
	)

	return summary
}

func (c *collectorImpl) processCoin(ctx context.Context, coinID string, req BatchRequest) models.CoinOutcome {
	startTime := time.Now()
	outcome := models.CoinOutcome{CoinID: coinID}

	result, err := c.FetchDailyPrices(ctx, PriceRequest{
		CoinID: coinID,
		From:   req.From,
		To:     req.To,
		Cancel: req.Cancel,
	})
	outcome.Duration = time.Since(startTime)

	switch {
	case err != nil && errors.IsCancelled(err):
		outcome.Status = models.BatchStatusSkipped
	case err != nil:
		outcome.Status = models.BatchStatusError
		outcome.Err = err.Error()
	case result.Statistics.ValidCount == 0:
		outcome.Status = models.BatchStatusEmpty
		outcome.Records = result.Records
	default:
		outcome.Status = models.BatchStatusSuccess
		outcome.Average = result.Statistics.Average
		outcome.Records = result.Records
	}

	return outcome
}
