package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/tomx220052/cryptoprice/internal/collector"
	"github.com/tomx220052/cryptoprice/internal/errors"
	"github.com/tomx220052/cryptoprice/internal/exchange"
	"github.com/tomx220052/cryptoprice/internal/export"
	"github.com/tomx220052/cryptoprice/internal/logger"
	"github.com/tomx220052/cryptoprice/internal/models"
	"github.com/tomx220052/cryptoprice/internal/settlement"
)

// FetchFlags holds flags for the fetch command
type FetchFlags struct {
	From     string
	To       string
	Output   string
	Debug    bool
	Backfill bool
	Quiet    bool
}

func newFetchCommand(a *app) *cobra.Command {
	flags := &FetchFlags{}

	cmd := &cobra.Command{
		Use:   "fetch <coin>",
		Short: "Fetch daily prices of one coin and export them to CSV",
		Long: `Fetch the daily settlement price of a coin for every day from --from to
--to inclusive and write them to a CSV file. The coin may be a CoinGecko id
(bitcoin), a ticker (BTC) or a registry label ("BTC - Bitcoin").`,
		Example: `  cryptoprice fetch bitcoin --from 2024-01-01 --to 2024-01-31
  cryptoprice fetch ETH --from 2024-01-01 --to 2024-03-31 -o eth.csv --profile cli`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleFetch(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.From, "from", "", "first day, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&flags.To, "to", "", "last day, YYYY-MM-DD (required)")
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "", "CSV file (default {coin}_{from}_{to}_prices.csv in the output directory)")
	cmd.Flags().BoolVar(&flags.Debug, "debug", false, "log the sample selected for every day")
	cmd.Flags().BoolVar(&flags.Backfill, "backfill", false, "fill missing days from the per-day history endpoint")
	cmd.Flags().BoolVarP(&flags.Quiet, "quiet", "q", false, "do not print per-day progress")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func (a *app) handleFetch(cmd *cobra.Command, coinArg string, flags *FetchFlags) error {
	from, to, err := settlement.ParseRange(flags.From, flags.To)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}
	coin := a.resolveCoin(coinArg)

	var listener collector.ProgressListener
	if !flags.Quiet {
		listener = collector.ProgressFunc(func(p collector.Progress) {
			fmt.Fprintf(a.stderr, "[%d/%d] %s %s\n", p.Current, p.Total, p.Date, formatPrice(p.Price))
		})
	}

	fmt.Fprintf(a.stderr, "Fetching %s prices from %s to %s\n", coin.Label(), from, to)

	log, ctx := logger.NewTraceLogger(cmd.Context(), a.logs, "cli")
	ctx = logger.WithCoin(ctx, coin.ID)

	var result *collector.PriceResult
	err = log.LogOperation(ctx, "fetch", func() error {
		var err error
		result, err = a.collector.FetchDailyPrices(ctx, collector.PriceRequest{
			CoinID:   coin.ID,
			From:     from,
			To:       to,
			Debug:    flags.Debug,
			Backfill: flags.Backfill,
			Cancel:   a.interrupt.flag,
			Listener: listener,
		})
		return err
	})
	if err != nil {
		if errors.IsCancelled(err) {
			fmt.Fprintln(a.stderr, "Cancelled")
		}
		return withExitCode(exitCodeFor(err), err)
	}

	path := flags.Output
	if path == "" {
		path = filepath.Join(a.config.Export.OutputDir, export.DefaultFilename(coin.ID, from, to))
	}
	if err := export.SaveCSV(path, result.Records); err != nil {
		log.ErrorWithContext(ctx, "CSV export failed", err, "path", path)
		return withExitCode(ExitDataError, err)
	}
	log.InfoWithContext(ctx, "CSV written", "path", path, "days", len(result.Records))

	printStatistics(a, result)
	fmt.Fprintf(a.stdout, "Saved %d days to %s\n", len(result.Records), path)

	if result.Statistics.ValidCount == 0 {
		return withExitCode(ExitDataError, fmt.Errorf("no price data found for %s between %s and %s", coin.ID, from, to))
	}
	return nil
}

func printStatistics(a *app, result *collector.PriceResult) {
	stats := result.Statistics

	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Coin:\t%s\n", result.CoinID)
	fmt.Fprintf(w, "Range:\t%s to %s\n", result.From, result.To)
	fmt.Fprintf(w, "Days with price:\t%d/%d\n", stats.ValidCount, stats.TotalCount)
	fmt.Fprintf(w, "Average:\t%s\n", formatPrice(stats.Average))
	fmt.Fprintf(w, "Max:\t%s\n", formatPrice(stats.Max))
	fmt.Fprintf(w, "Min:\t%s\n", formatPrice(stats.Min))
	for _, g := range result.Gaps {
		fmt.Fprintf(w, "Missing:\t%s\n", g)
	}
	w.Flush()
}

func formatPrice(p decimal.NullDecimal) string {
	return models.DailyPriceRecord{Price: p}.PriceString()
}

// BatchFlags holds flags for the batch command
type BatchFlags struct {
	Coins   []string
	All     bool
	From    string
	To      string
	Delay   time.Duration
	Output  string
	Summary string
}

func newBatchCommand(a *app) *cobra.Command {
	flags := &BatchFlags{}

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Fetch daily prices of many coins, one after another",
		Long: `Run the daily price pipeline for every coin in order, pausing between
coins to stay under the provider's rate limit. Each coin with data is written
to its own CSV file; a summary file lists the outcome of every coin.
Interrupting the run finishes the current coin and skips the rest.`,
		Example: `  cryptoprice batch --coins bitcoin,ethereum,solana --from 2024-01-01 --to 2024-01-31 -o out
  cryptoprice batch --all --from 2024-01-01 --to 2024-01-07 --delay 5s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleBatch(cmd, flags)
		},
	}

	cmd.Flags().StringSliceVar(&flags.Coins, "coins", nil, "comma separated coins (ids, tickers or labels)")
	cmd.Flags().BoolVar(&flags.All, "all", false, "query every coin of the registry")
	cmd.Flags().StringVar(&flags.From, "from", "", "first day, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&flags.To, "to", "", "last day, YYYY-MM-DD (required)")
	cmd.Flags().DurationVar(&flags.Delay, "delay", 0, "pause between coins (default from configuration)")
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "", "output directory (default from configuration)")
	cmd.Flags().StringVar(&flags.Summary, "summary", "", "batch summary CSV (default batch_{from}_{to}_summary.csv in the output directory)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	cmd.MarkFlagsMutuallyExclusive("coins", "all")

	return cmd
}

func (a *app) handleBatch(cmd *cobra.Command, flags *BatchFlags) error {
	from, to, err := settlement.ParseRange(flags.From, flags.To)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	var coins []string
	switch {
	case flags.All:
		coins = a.registry.IDs()
	case len(flags.Coins) > 0:
		for _, c := range flags.Coins {
			coins = append(coins, a.resolveCoin(c).ID)
		}
	case len(a.config.Batch.Coins) > 0:
		for _, c := range a.config.Batch.Coins {
			coins = append(coins, a.resolveCoin(c).ID)
		}
	default:
		return withExitCode(ExitUsageError, fmt.Errorf("no coins given, use --coins or --all"))
	}

	delay := flags.Delay
	if delay <= 0 {
		delay = a.config.ItemDelay()
	}
	outDir := flags.Output
	if outDir == "" {
		outDir = a.config.Export.OutputDir
	}

	listener := collector.BatchListenerFuncs{
		Start: func(index, total int, coinID string) {
			fmt.Fprintf(a.stderr, "[%d/%d] %s ... ", index+1, total, coinID)
		},
		Done: func(index, total int, outcome models.CoinOutcome) {
			switch outcome.Status {
			case models.BatchStatusSuccess:
				fmt.Fprintf(a.stderr, "ok, average %s\n", outcome.Average.Decimal)
			case models.BatchStatusEmpty:
				fmt.Fprintln(a.stderr, "no data")
			case models.BatchStatusError:
				fmt.Fprintf(a.stderr, "failed: %s\n", outcome.Err)
			case models.BatchStatusSkipped:
				fmt.Fprintln(a.stderr, "cancelled")
			}
		},
	}

	runID := logger.NewRunID()
	ctx := logger.WithRunID(cmd.Context(), runID)
	log := a.logs.GetComponentLogger("cli")

	summary := a.collector.RunBatch(ctx, collector.BatchRequest{
		Coins:     coins,
		From:      from,
		To:        to,
		ItemDelay: delay,
		Cancel:    a.interrupt.flag,
		Listener:  listener,
		RunID:     runID,
	})

	paths, err := export.SaveBatch(outDir, summary)
	if err != nil {
		log.ErrorWithContext(ctx, "batch export failed", err, "dir", outDir)
		return withExitCode(ExitDataError, err)
	}

	if a.config.Export.Summary || flags.Summary != "" {
		summaryPath := flags.Summary
		if summaryPath == "" {
			summaryPath = filepath.Join(outDir, fmt.Sprintf("batch_%s_%s_summary.csv", from, to))
		}
		if err := export.SaveBatchSummary(summaryPath, summary); err != nil {
			log.ErrorWithContext(ctx, "batch summary export failed", err, "path", summaryPath)
			return withExitCode(ExitDataError, err)
		}
		paths = append(paths, summaryPath)
	}

	log.InfoWithContext(ctx, "batch files written", "files", len(paths))
	printBatchSummary(a, summary, paths)

	switch {
	case summary.Cancelled:
		return &exitError{code: ExitInterrupt}
	case summary.Succeeded == 0 && summary.Total() > 0:
		return withExitCode(ExitDataError, fmt.Errorf("no coin returned price data"))
	}
	return nil
}

func printBatchSummary(a *app, summary *models.BatchSummary, paths []string) {
	fmt.Fprintln(a.stdout, summary.String())

	if len(summary.Failures) > 0 {
		w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "Failed coins:")
		for _, o := range summary.Outcomes {
			if o.Status == models.BatchStatusError {
				fmt.Fprintf(w, "  %s\t%s\n", o.CoinID, o.Err)
			}
		}
		w.Flush()
	}
	if summary.Cancelled && len(summary.SkippedCoins) > 0 {
		fmt.Fprintf(a.stdout, "Skipped: %s\n", strings.Join(summary.SkippedCoins, ", "))
	}
	for _, p := range paths {
		fmt.Fprintf(a.stdout, "Wrote %s\n", p)
	}
}

func newHistoryCommand(a *app) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "history <coin>",
		Short: "Show the provider's daily snapshot price for one day",
		Long: `Query the per-day history endpoint, which reports the price snapshot taken
at 00:00 UTC of the given day. This differs from the 16:00 UTC settlement price
returned by fetch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := models.ParseDate(date)
			if err != nil {
				return withExitCode(ExitUsageError, err)
			}
			coin := a.resolveCoin(args[0])

			price, err := a.adapter.FetchHistory(cmd.Context(), coin.ID, d, exchange.FetchOptions{Cancel: a.interrupt.flag})
			if err != nil {
				return withExitCode(exitCodeFor(err), err)
			}

			fmt.Fprintf(a.stdout, "%s %s %s USD\n", coin.ID, d, price.Round(models.PricePrecision))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day, YYYY-MM-DD (required)")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func newCoinsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "coins",
		Short: "List the built-in coin registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tNAME\tID")
			for _, c := range a.registry.All() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", c.Symbol, c.Name, c.ID)
			}
			return w.Flush()
		},
	}
}

func newPingCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the price provider is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			if err := a.collector.Health(cmd.Context()); err != nil {
				return withExitCode(ExitConnectionErr, err)
			}
			fmt.Fprintf(a.stdout, "CoinGecko reachable (%s)\n", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
