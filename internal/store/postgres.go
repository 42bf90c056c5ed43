package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/earnings-cli/internal/config"
	"github.com/sells-group/earnings-cli/internal/db"
	"github.com/sells-group/earnings-cli/internal/model"
	"github.com/sells-group/earnings-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool        db.Pool
	table       string
	commitEvery int
	upsertSQL   string
	lookupSQL   string
}

// NewPostgres connects to Postgres, retrying transient connection failures.
func NewPostgres(ctx context.Context, cfg config.StoreConfig) (*PostgresStore, error) {
	retry := resilience.ConnectPolicy()
	retry.OnRetry = resilience.LogRetry("postgres", "connect")

	pool, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*pgxpool.Pool, error) {
		return db.Connect(ctx, cfg.ConnString(), db.PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	})
	if err != nil {
		zap.L().Error("postgres: connection failed", append(cfg.LogFields(), zap.Error(err))...)
		return nil, eris.Wrap(err, "postgres: connect")
	}
	zap.L().Info("postgres: connected", cfg.LogFields()...)

	return newPostgresWithPool(pool, cfg.Table, cfg.CommitEvery)
}

func newPostgresWithPool(pool db.Pool, table string, commitEvery int) (*PostgresStore, error) {
	uc := upsertConfig(table)
	upsertSQL, err := db.UpsertRowSQL(db.Postgres, uc)
	if err != nil {
		return nil, err
	}
	lookupSQL, err := db.LookupSQL(db.Postgres, uc)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{
		pool:        pool,
		table:       table,
		commitEvery: commitEvery,
		upsertSQL:   upsertSQL,
		lookupSQL:   lookupSQL,
	}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Migrate applies pending migrations under an advisory lock.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"), zap.String("table", s.table))

	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "postgres: acquire migration lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("postgres: release migration lock", zap.Error(err))
		}
	}()

	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return eris.Wrap(err, "postgres: ensure migration table")
	}

	migrations, err := loadMigrations(db.Postgres, s.table)
	if err != nil {
		return err
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.key] {
			continue
		}
		log.Info("applying migration", zap.String("file", m.key))
		if _, err := s.pool.Exec(ctx, m.sql); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", m.key)
		}
		if _, err := s.pool.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", m.key); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", m.key)
		}
	}
	return nil
}

func (s *PostgresStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan migration row")
		}
		applied[name] = true
	}
	return applied, eris.Wrap(rows.Err(), "postgres: iterate migrations")
}

// rowQuerier is satisfied by both the pool and an open transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) upsertRow(ctx context.Context, q rowQuerier, row model.EarningsRow) (model.UpsertResult, error) {
	var (
		id       int64
		inserted bool
	)
	err := q.QueryRow(ctx, s.upsertSQL, rowArgs(db.Postgres, row)...).Scan(&id, &inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		// The conflict matched an identical row, so nothing was written.
		if err := q.QueryRow(ctx, s.lookupSQL, row.Ticker, row.ReportDate).Scan(&id); err != nil {
			return model.UpsertResult{}, eris.Wrapf(err, "postgres: lookup %s %s", row.Ticker, row.ReportDate.Format(dateLayout))
		}
		return model.UpsertResult{ID: id, Action: model.ActionFromAffected(0)}, nil
	}
	if err != nil {
		return model.UpsertResult{}, eris.Wrapf(err, "postgres: upsert %s %s", row.Ticker, row.ReportDate.Format(dateLayout))
	}

	affected := int64(2)
	if inserted {
		affected = 1
	}
	return model.UpsertResult{ID: id, Action: model.ActionFromAffected(affected)}, nil
}

func (s *PostgresStore) UpsertOne(ctx context.Context, row model.EarningsRow) (model.UpsertResult, error) {
	return s.upsertRow(ctx, s.pool, row)
}

func (s *PostgresStore) UpsertMany(ctx context.Context, rows []model.EarningsRow) (model.UpsertStats, error) {
	return upsertBatched(ctx, s.begin, rows, s.commitEvery)
}

func (s *PostgresStore) begin(ctx context.Context) (batchTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgBatch{store: s, tx: tx}, nil
}

type pgBatch struct {
	store *PostgresStore
	tx    pgx.Tx
}

func (b *pgBatch) upsert(ctx context.Context, row model.EarningsRow) (model.UpsertResult, error) {
	return b.store.upsertRow(ctx, b.tx, row)
}

func (b *pgBatch) commit(ctx context.Context) error   { return b.tx.Commit(ctx) }
func (b *pgBatch) rollback(ctx context.Context) error { return b.tx.Rollback(ctx) }

// BulkUpsert loads rows through COPY and a single set-based upsert. It
// reports inserted plus changed rows without a per-row breakdown.
func (s *PostgresStore) BulkUpsert(ctx context.Context, rows []model.EarningsRow) (int64, error) {
	values := make([][]any, len(rows))
	for i, row := range rows {
		values[i] = rowArgs(db.Postgres, row)
	}
	n, err := db.BulkUpsert(ctx, s.pool, upsertConfig(s.table), values)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: bulk upsert")
	}
	return n, nil
}

func (s *PostgresStore) ListByTicker(ctx context.Context, ticker string, limit int) ([]model.EarningsRow, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE ticker = $1 ORDER BY report_date DESC LIMIT $2",
		selectColumns, db.QuoteTable(db.Postgres, s.table))
	rows, err := s.pool.Query(ctx, q, ticker, normalizeLimit(limit))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s", ticker)
	}
	defer rows.Close()

	var out []model.EarningsRow
	for rows.Next() {
		var (
			r                    model.EarningsRow
			revStatus, epsStatus string
		)
		if err := rows.Scan(&r.ID, &r.Ticker, &r.Quarter, &r.ReportDate,
			&r.RevEst, &r.RevEstUnit, &r.RevAct, &r.RevActUnit, &r.RevPct, &revStatus,
			&r.EPSEst, &r.EPSAct, &r.EPSPct, &epsStatus, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan earnings row")
		}
		r.RevStatus = model.Status(revStatus)
		r.EPSStatus = model.Status(epsStatus)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate earnings rows")
}

func (s *PostgresStore) LatestReportDates(ctx context.Context, ticker string, limit int) ([]time.Time, error) {
	q := fmt.Sprintf("SELECT report_date FROM %s WHERE ticker = $1 ORDER BY report_date DESC LIMIT $2",
		db.QuoteTable(db.Postgres, s.table))
	rows, err := s.pool.Query(ctx, q, ticker, normalizeLimit(limit))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: report dates %s", ticker)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report date")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate report dates")
}
