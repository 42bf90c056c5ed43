// Package pipeline runs the fetch, extract, and sink steps for one ticker
// and drives multi-ticker batches.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/earnings-cli/internal/cache"
	"github.com/sells-group/earnings-cli/internal/export"
	"github.com/sells-group/earnings-cli/internal/extract"
	"github.com/sells-group/earnings-cli/internal/model"
	"github.com/sells-group/earnings-cli/internal/store"
)

// Sink selects where history records go.
type Sink string

const (
	SinkDB   Sink = "db"
	SinkCSV  Sink = "csv"
	SinkBoth Sink = "both"
)

// ParseSink validates a sink name.
func ParseSink(s string) (Sink, error) {
	switch v := Sink(strings.ToLower(strings.TrimSpace(s))); v {
	case SinkDB, SinkCSV, SinkBoth:
		return v, nil
	default:
		return "", eris.Errorf("pipeline: unsupported sink %q (want db, csv or both)", s)
	}
}

func (s Sink) db() bool  { return s == SinkDB || s == SinkBoth }
func (s Sink) csv() bool { return s == SinkCSV || s == SinkBoth }

// Fetcher retrieves source documents into the cache.
type Fetcher interface {
	FetchVariants(ctx context.Context, url, subject string, variant model.Variant) (map[model.Variant]string, error)
}

// DocStore is the cache surface a run reads from and maintains.
type DocStore interface {
	Read(subject string, variant model.Variant) (string, error)
	Delete(subject string, variants ...model.Variant) error
	Purge(maxAge time.Duration) (int, error)
}

// Options controls a single ticker run.
type Options struct {
	Variant      model.Variant
	ForceRefresh bool
	Sink         Sink
	ParseJSON    bool
	XLSX         bool
	// Cleanup purges cached documents and export artifacts older than MaxAge
	// before fetching.
	Cleanup bool
	MaxAge  time.Duration
}

// Result reports what a ticker run produced.
type Result struct {
	Ticker    string
	Locations map[model.Variant]string
	Records   int
	Skipped   int
	Stats     model.UpsertStats
	JSONPath  string
	CSVPath   string
	XLSXPath  string
}

// Pipeline wires the fetch orchestrator, the parser, the cache, and the
// sinks. Store may be nil when no run writes to the database.
type Pipeline struct {
	fetcher   Fetcher
	docs      DocStore
	parser    *extract.Parser
	store     store.Store
	quoteURL  func(ticker string) string
	exportDir string
	guard     *fetchGuard
}

// New creates a Pipeline.
func New(fetcher Fetcher, docs DocStore, parser *extract.Parser, st store.Store, quoteURL func(string) string, exportDir string) *Pipeline {
	if parser == nil {
		parser = extract.NewParser(nil)
	}
	return &Pipeline{
		fetcher:   fetcher,
		docs:      docs,
		parser:    parser,
		store:     st,
		quoteURL:  quoteURL,
		exportDir: exportDir,
	}
}

// WithBreaker routes fetches through a circuit breaker shared by every
// ticker of a batch.
func (p *Pipeline) WithBreaker(failures int, cooldown time.Duration) *Pipeline {
	p.guard = newFetchGuard(failures, cooldown)
	return p
}

// RunForTicker fetches the documents the variant needs and feeds them to
// the enabled sinks. Sinks fail independently: every enabled sink runs and
// their errors are joined into the returned error alongside the result.
func (p *Pipeline) RunForTicker(ctx context.Context, ticker string, opts Options) (*Result, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, eris.New("pipeline: ticker is required")
	}
	if opts.Sink == "" {
		opts.Sink = SinkDB
	}
	log := zap.L().With(zap.String("ticker", ticker), zap.String("variant", string(opts.Variant)))

	if opts.Cleanup {
		p.cleanup(opts.MaxAge)
	}

	if opts.ForceRefresh {
		if err := p.docs.Delete(ticker, opts.Variant.Required()...); err != nil {
			return nil, eris.Wrap(err, "pipeline: force refresh")
		}
		log.Info("pipeline: cleared cached documents")
	}

	locs, err := p.fetch(ctx, ticker, opts.Variant)
	if err != nil {
		return nil, err
	}
	res := &Result{Ticker: ticker, Locations: locs}

	var errs []error
	if opts.ParseJSON {
		if err := p.writeOverview(ticker, locs, res); err != nil {
			log.Error("pipeline: overview sink failed", zap.Error(err))
			errs = append(errs, err)
		}
	}

	if opts.Variant == model.VariantFull {
		records, err := p.history(ticker, locs)
		if err != nil {
			return res, err
		}
		res.Records = len(records)
		errs = append(errs, p.writeHistory(ctx, ticker, records, opts, res)...)
	}

	log.Info("pipeline: ticker complete",
		zap.Int("records", res.Records),
		zap.Int("skipped", res.Skipped),
		zap.Int("inserted", res.Stats.Inserted),
		zap.Int("updated", res.Stats.Updated),
		zap.Int("unchanged", res.Stats.Unchanged),
	)
	return res, errors.Join(errs...)
}

func (p *Pipeline) cleanup(maxAge time.Duration) {
	n, err := p.docs.Purge(maxAge)
	if err != nil {
		zap.L().Warn("pipeline: cache purge failed", zap.Error(err))
	}
	m, err := cache.PurgeDir(p.exportDir, export.Patterns, maxAge)
	if err != nil {
		zap.L().Warn("pipeline: export purge failed", zap.Error(err))
	}
	if n+m > 0 {
		zap.L().Info("pipeline: purged stale files", zap.Int("documents", n), zap.Int("exports", m))
	}
}

func (p *Pipeline) fetch(ctx context.Context, ticker string, variant model.Variant) (map[model.Variant]string, error) {
	do := func() (map[model.Variant]string, error) {
		return p.fetcher.FetchVariants(ctx, p.quoteURL(ticker), ticker, variant)
	}
	var (
		locs map[model.Variant]string
		err  error
	)
	if p.guard != nil {
		locs, err = p.guard.execute(do)
	} else {
		locs, err = do()
	}
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: fetch %s", ticker)
	}
	return locs, nil
}

func (p *Pipeline) writeOverview(ticker string, locs map[model.Variant]string, res *Result) error {
	if _, ok := locs[model.VariantOverview]; !ok {
		zap.L().Warn("pipeline: no overview document, skipping JSON", zap.String("ticker", ticker))
		return nil
	}
	overviewHTML, err := p.docs.Read(ticker, model.VariantOverview)
	if err != nil {
		return eris.Wrap(err, "pipeline: read overview")
	}
	var analystHTML string
	if _, ok := locs[model.VariantAnalyst]; ok {
		if analystHTML, err = p.docs.Read(ticker, model.VariantAnalyst); err != nil {
			return eris.Wrap(err, "pipeline: read analyst")
		}
	}

	ov, err := p.parser.ParseOverview(overviewHTML, analystHTML, ticker)
	if err != nil {
		return err
	}
	res.JSONPath, err = export.WriteOverviewJSON(p.exportDir, ticker, ov)
	return err
}

func (p *Pipeline) history(ticker string, locs map[model.Variant]string) ([]model.EarningsRecord, error) {
	if _, ok := locs[model.VariantEarnings]; !ok {
		zap.L().Warn("pipeline: no earnings document", zap.String("ticker", ticker))
		return nil, nil
	}
	html, err := p.docs.Read(ticker, model.VariantEarnings)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read earnings")
	}
	return p.parser.ParseHistory(html, ticker)
}

func (p *Pipeline) writeHistory(ctx context.Context, ticker string, records []model.EarningsRecord, opts Options, res *Result) []error {
	var errs []error

	if opts.Sink.csv() {
		path, err := export.WriteEarningsCSV(p.exportDir, ticker, records)
		if err != nil {
			zap.L().Error("pipeline: csv sink failed", zap.String("ticker", ticker), zap.Error(err))
			errs = append(errs, err)
		}
		res.CSVPath = path
	}

	if opts.XLSX {
		path, err := export.WriteEarningsXLSX(p.exportDir, ticker, records)
		if err != nil {
			zap.L().Error("pipeline: xlsx sink failed", zap.String("ticker", ticker), zap.Error(err))
			errs = append(errs, err)
		}
		res.XLSXPath = path
	}

	if opts.Sink.db() {
		if p.store == nil {
			return append(errs, eris.New("pipeline: db sink requested without a store"))
		}
		rows, skipped := ToRows(records, ticker)
		res.Skipped = skipped
		stats, err := p.store.UpsertMany(ctx, rows)
		res.Stats = stats
		if err != nil {
			zap.L().Error("pipeline: db sink failed", zap.String("ticker", ticker), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errs
}

// ToRows converts records for the store. Records whose date cannot be
// parsed are skipped and counted.
func ToRows(records []model.EarningsRecord, ticker string) ([]model.EarningsRow, int) {
	rows := make([]model.EarningsRow, 0, len(records))
	skipped := 0
	for _, rec := range records {
		row, err := model.RecordToRow(rec, ticker)
		if err != nil {
			skipped++
			zap.L().Warn("pipeline: skipping record",
				zap.String("ticker", ticker),
				zap.String("date", rec.Date),
				zap.Error(err),
			)
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped
}
