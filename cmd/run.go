package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/earnings-cli/internal/browser"
	"github.com/sells-group/earnings-cli/internal/cache"
	"github.com/sells-group/earnings-cli/internal/extract"
	"github.com/sells-group/earnings-cli/internal/fetch"
	"github.com/sells-group/earnings-cli/internal/model"
	"github.com/sells-group/earnings-cli/internal/pipeline"
	"github.com/sells-group/earnings-cli/internal/store"
)

var (
	runTickers      string
	runVariant      string
	runForceRefresh bool
	runSink         string
	runParseJSON    bool
	runXLSX         bool
	runNoCleanup    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, extract, and store earnings for one or more tickers",
	Example: `  earnings-cli run --ticker MSFT
  earnings-cli run --ticker AAPL,MSFT --sink both --parse-json
  earnings-cli run --ticker NVDA --variant overview --parse-json --force-refresh`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tickers := pipeline.ParseTickers(runTickers)
		if len(tickers) == 0 {
			return eris.New("at least one ticker is required (--ticker)")
		}
		variant, err := model.ParseVariant(runVariant)
		if err != nil {
			return err
		}
		sink, err := pipeline.ParseSink(runSink)
		if err != nil {
			return err
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		p, closeFn, err := initPipeline(ctx, variant == model.VariantFull && sink != pipeline.SinkCSV)
		if err != nil {
			return err
		}
		defer closeFn()

		opts := pipeline.Options{
			Variant:      variant,
			ForceRefresh: runForceRefresh,
			Sink:         sink,
			ParseJSON:    runParseJSON,
			XLSX:         runXLSX,
			Cleanup:      cfg.Cache.CleanupBeforeRun && !runNoCleanup,
			MaxAge:       cfg.Cache.MaxAge(),
		}

		_, err = pipeline.RunBatch(ctx, tickers, cfg.Batch.MaxConcurrentTickers,
			func(ctx context.Context, ticker string) (*pipeline.Result, error) {
				return p.RunForTicker(ctx, ticker, opts)
			}, cmd.OutOrStdout())
		return err
	},
}

// initPipeline builds the browser-backed pipeline. The store is opened only
// when the run writes to the database.
func initPipeline(ctx context.Context, needStore bool) (*pipeline.Pipeline, func(), error) {
	docs, err := cache.New(cfg.CacheDir())
	if err != nil {
		return nil, nil, err
	}

	sel, err := extract.LoadSelectors(cfg.Source.SelectorsPath)
	if err != nil {
		return nil, nil, err
	}

	var st store.Store
	closeFn := func() {}
	if needStore {
		st, err = initStore(ctx)
		if err != nil {
			return nil, nil, err
		}
		closeFn = func() { _ = st.Close() }
	}

	launcher := browser.NewPlaywrightLauncher(browser.Options{
		Engine:         cfg.Browser.Engine,
		ExecutablePath: cfg.Browser.ExecutablePath,
		Headless:       cfg.Browser.Headless,
		UserAgent:      cfg.Browser.UserAgent,
		Timeout:        cfg.Browser.Timeout(),
		Settle:         cfg.Browser.Settle(),
	})
	orch := fetch.New(launcher, docs, fetch.OptionsFromConfig(cfg))

	p := pipeline.New(orch, docs, extract.NewParser(sel), st, cfg.Source.QuoteURL, cfg.ExportDir()).
		WithBreaker(cfg.Batch.BreakerFailures, time.Duration(cfg.Batch.BreakerCooldownSecs)*time.Second)
	return p, closeFn, nil
}

func init() {
	runCmd.Flags().StringVar(&runTickers, "ticker", "", "ticker symbol or comma-separated list (required)")
	runCmd.Flags().StringVar(&runVariant, "variant", string(model.VariantFull), "documents to fetch: overview or full")
	runCmd.Flags().BoolVar(&runForceRefresh, "force-refresh", false, "discard cached documents before fetching")
	runCmd.Flags().StringVar(&runSink, "sink", string(pipeline.SinkDB), "history destination: db, csv or both")
	runCmd.Flags().BoolVar(&runParseJSON, "parse-json", false, "write the overview JSON export")
	runCmd.Flags().BoolVar(&runXLSX, "xlsx", false, "also write the history as an XLSX workbook")
	runCmd.Flags().BoolVar(&runNoCleanup, "no-cleanup", false, "skip purging stale cache and export files")
	_ = runCmd.MarkFlagRequired("ticker")
	rootCmd.AddCommand(runCmd)
}
