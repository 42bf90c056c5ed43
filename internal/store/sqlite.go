package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/earnings-cli/internal/db"
	"github.com/sells-group/earnings-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db          *sql.DB
	table       string
	commitEvery int
	upsertSQL   string
	lookupSQL   string
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn, table string, commitEvery int) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer keeps the lookup and the upsert on the same connection.
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return newSQLiteWithDB(conn, table, commitEvery)
}

func newSQLiteWithDB(conn *sql.DB, table string, commitEvery int) (*SQLiteStore, error) {
	uc := upsertConfig(table)
	upsertSQL, err := db.UpsertRowSQL(db.SQLite, uc)
	if err != nil {
		return nil, err
	}
	lookupSQL, err := db.LookupSQL(db.SQLite, uc)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{
		db:          conn,
		table:       table,
		commitEvery: commitEvery,
		upsertSQL:   upsertSQL,
		lookupSQL:   lookupSQL,
	}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	)`); err != nil {
		return eris.Wrap(err, "sqlite: ensure migration table")
	}

	migrations, err := loadMigrations(db.SQLite, s.table)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", m.key).Scan(&n); err != nil {
			return eris.Wrapf(err, "sqlite: check migration %s", m.key)
		}
		if n > 0 {
			continue
		}

		zap.L().Info("applying migration", zap.String("file", m.key))
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return eris.Wrap(err, "sqlite: begin migration")
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback() //nolint:errcheck
			return eris.Wrapf(err, "sqlite: apply migration %s", m.key)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", m.key); err != nil {
			tx.Rollback() //nolint:errcheck
			return eris.Wrapf(err, "sqlite: record migration %s", m.key)
		}
		if err := tx.Commit(); err != nil {
			return eris.Wrapf(err, "sqlite: commit migration %s", m.key)
		}
	}
	return nil
}

// sqlQuerier is satisfied by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// upsertRow looks up the key, then upserts. SQLite reports no affected
// row for a conflict that changed nothing, so the lookup tells an insert
// from an update.
func (s *SQLiteStore) upsertRow(ctx context.Context, q sqlQuerier, row model.EarningsRow) (model.UpsertResult, error) {
	date := row.ReportDate.Format(dateLayout)

	var existing int64
	exists := true
	err := q.QueryRowContext(ctx, s.lookupSQL, row.Ticker, date).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		exists = false
	case err != nil:
		return model.UpsertResult{}, eris.Wrapf(err, "sqlite: lookup %s %s", row.Ticker, date)
	}

	var id int64
	err = q.QueryRowContext(ctx, s.upsertSQL, rowArgs(db.SQLite, row)...).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if !exists {
			return model.UpsertResult{}, eris.Errorf("sqlite: upsert %s %s returned no row", row.Ticker, date)
		}
		return model.UpsertResult{ID: existing, Action: model.ActionFromAffected(0)}, nil
	case err != nil:
		return model.UpsertResult{}, eris.Wrapf(err, "sqlite: upsert %s %s", row.Ticker, date)
	}

	affected := int64(1)
	if exists {
		affected = 2
	}
	return model.UpsertResult{ID: id, Action: model.ActionFromAffected(affected)}, nil
}

func (s *SQLiteStore) UpsertOne(ctx context.Context, row model.EarningsRow) (model.UpsertResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.UpsertResult{}, eris.Wrap(err, "sqlite: begin")
	}
	res, err := s.upsertRow(ctx, tx, row)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return model.UpsertResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.UpsertResult{}, eris.Wrap(err, "sqlite: commit")
	}
	return res, nil
}

func (s *SQLiteStore) UpsertMany(ctx context.Context, rows []model.EarningsRow) (model.UpsertStats, error) {
	return upsertBatched(ctx, s.begin, rows, s.commitEvery)
}

func (s *SQLiteStore) begin(ctx context.Context) (batchTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteBatch{store: s, tx: tx}, nil
}

type sqliteBatch struct {
	store *SQLiteStore
	tx    *sql.Tx
}

func (b *sqliteBatch) upsert(ctx context.Context, row model.EarningsRow) (model.UpsertResult, error) {
	return b.store.upsertRow(ctx, b.tx, row)
}

func (b *sqliteBatch) commit(context.Context) error   { return b.tx.Commit() }
func (b *sqliteBatch) rollback(context.Context) error { return b.tx.Rollback() }

func (s *SQLiteStore) ListByTicker(ctx context.Context, ticker string, limit int) ([]model.EarningsRow, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE ticker = ? ORDER BY report_date DESC LIMIT ?",
		selectColumns, db.QuoteTable(db.SQLite, s.table))
	rows, err := s.db.QueryContext(ctx, q, ticker, normalizeLimit(limit))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list %s", ticker)
	}
	defer rows.Close()

	var out []model.EarningsRow
	for rows.Next() {
		r, err := scanSQLiteRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate earnings rows")
}

func scanSQLiteRow(rows *sql.Rows) (model.EarningsRow, error) {
	var (
		r                    model.EarningsRow
		date, created        string
		revStatus, epsStatus string
	)
	if err := rows.Scan(&r.ID, &r.Ticker, &r.Quarter, &date,
		&r.RevEst, &r.RevEstUnit, &r.RevAct, &r.RevActUnit, &r.RevPct, &revStatus,
		&r.EPSEst, &r.EPSAct, &r.EPSPct, &epsStatus, &created); err != nil {
		return r, eris.Wrap(err, "sqlite: scan earnings row")
	}

	var err error
	if r.ReportDate, err = time.Parse(dateLayout, date); err != nil {
		return r, eris.Wrapf(err, "sqlite: parse report date %q", date)
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return r, eris.Wrapf(err, "sqlite: parse created_at %q", created)
	}
	r.RevStatus = model.Status(revStatus)
	r.EPSStatus = model.Status(epsStatus)
	return r, nil
}

func (s *SQLiteStore) LatestReportDates(ctx context.Context, ticker string, limit int) ([]time.Time, error) {
	q := fmt.Sprintf("SELECT report_date FROM %s WHERE ticker = ? ORDER BY report_date DESC LIMIT ?",
		db.QuoteTable(db.SQLite, s.table))
	rows, err := s.db.QueryContext(ctx, q, ticker, normalizeLimit(limit))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: report dates %s", ticker)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report date")
		}
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse report date %q", raw)
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate report dates")
}
