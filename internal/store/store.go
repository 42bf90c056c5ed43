// Package store reconciles earnings rows into a relational table with a
// keyed upsert that reports whether each row was inserted, updated or left
// unchanged.
package store

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/earnings-cli/internal/config"
	"github.com/sells-group/earnings-cli/internal/db"
	"github.com/sells-group/earnings-cli/internal/model"
)

// DefaultCommitEvery is the batch size used when none is configured.
const DefaultCommitEvery = 500

// Store defines the persistence interface for earnings rows.
type Store interface {
	// UpsertOne writes a single row in its own transaction.
	UpsertOne(ctx context.Context, row model.EarningsRow) (model.UpsertResult, error)
	// UpsertMany writes rows in batches, committing every CommitEvery rows.
	// On failure the returned stats cover the batches already committed.
	UpsertMany(ctx context.Context, rows []model.EarningsRow) (model.UpsertStats, error)

	ListByTicker(ctx context.Context, ticker string, limit int) ([]model.EarningsRow, error)
	LatestReportDates(ctx context.Context, ticker string, limit int) ([]time.Time, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// columns is the insert order shared by both backends.
var columns = []string{
	"ticker", "quarter", "report_date",
	"rev_est", "rev_est_unit", "rev_act", "rev_act_unit", "rev_pct", "rev_status",
	"eps_est", "eps_act", "eps_pct", "eps_status",
}

const selectColumns = `id, ticker, quarter, report_date, rev_est, rev_est_unit, rev_act, rev_act_unit, rev_pct, rev_status, eps_est, eps_act, eps_pct, eps_status, created_at`

func upsertConfig(table string) db.UpsertConfig {
	return db.UpsertConfig{
		Table:        table,
		Columns:      columns,
		ConflictKeys: []string{"ticker", "report_date"},
	}
}

// rowArgs returns the row's values in columns order. SQLite keeps dates as
// ISO text.
func rowArgs(d db.Dialect, row model.EarningsRow) []any {
	var date any = row.ReportDate
	if d == db.SQLite {
		date = row.ReportDate.Format(dateLayout)
	}
	return []any{
		row.Ticker, row.Quarter, date,
		row.RevEst, row.RevEstUnit, row.RevAct, row.RevActUnit, row.RevPct, string(row.RevStatus),
		row.EPSEst, row.EPSAct, row.EPSPct, string(row.EPSStatus),
	}
}

const dateLayout = "2006-01-02"

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}

// New validates cfg and opens the configured backend.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg)
	case "sqlite":
		if cfg.DatabaseURL == "" && cfg.DataDir != "" {
			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return nil, eris.Wrap(err, "store: create data dir")
			}
		}
		return NewSQLite(cfg.ConnString(), cfg.Table, cfg.CommitEvery)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
}

// batchTx is one open transaction of a batched upsert.
type batchTx interface {
	upsert(ctx context.Context, row model.EarningsRow) (model.UpsertResult, error)
	commit(ctx context.Context) error
	rollback(ctx context.Context) error
}

// upsertBatched writes rows through transactions from begin, committing
// every commitEvery rows. The first failing batch is rolled back and stops
// the run; stats count only committed rows.
func upsertBatched(ctx context.Context, begin func(context.Context) (batchTx, error), rows []model.EarningsRow, commitEvery int) (model.UpsertStats, error) {
	if commitEvery <= 0 {
		commitEvery = DefaultCommitEvery
	}

	var stats model.UpsertStats
	for start := 0; start < len(rows); start += commitEvery {
		end := min(start+commitEvery, len(rows))

		tx, err := begin(ctx)
		if err != nil {
			return stats, eris.Wrapf(err, "store: begin batch %d-%d", start, end)
		}

		var batch model.UpsertStats
		for _, row := range rows[start:end] {
			res, err := tx.upsert(ctx, row)
			if err != nil {
				if rbErr := tx.rollback(ctx); rbErr != nil {
					zap.L().Warn("store: rollback failed", zap.Error(rbErr))
				}
				return stats, eris.Wrapf(err, "store: batch %d-%d", start, end)
			}
			batch.Add(res.Action)
		}

		if err := tx.commit(ctx); err != nil {
			return stats, eris.Wrapf(err, "store: commit batch %d-%d", start, end)
		}
		stats.Merge(batch)

		zap.L().Debug("store: batch committed",
			zap.Int("rows", end-start),
			zap.Int("inserted", batch.Inserted),
			zap.Int("updated", batch.Updated),
			zap.Int("unchanged", batch.Unchanged),
		)
	}
	return stats, nil
}
