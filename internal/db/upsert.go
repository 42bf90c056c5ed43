package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Dialect selects placeholder and conflict syntax for generated statements.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// UpsertConfig defines the parameters for a keyed upsert.
type UpsertConfig struct {
	Table        string   // target table (e.g., "public.earnings"); SQLite takes a bare name
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns to update on conflict; nil = all non-conflict columns
	Returning    string   // surrogate key returned by the row upsert; "" = "id"
}

func (c UpsertConfig) validate() error {
	if len(c.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(c.ConflictKeys) == 0 {
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

func (c UpsertConfig) updateCols() []string {
	if c.UpdateCols != nil {
		return c.UpdateCols
	}
	conflictSet := make(map[string]bool, len(c.ConflictKeys))
	for _, k := range c.ConflictKeys {
		conflictSet[k] = true
	}
	var cols []string
	for _, col := range c.Columns {
		if !conflictSet[col] {
			cols = append(cols, col)
		}
	}
	return cols
}

func (c UpsertConfig) returning() string {
	if c.Returning == "" {
		return "id"
	}
	return c.Returning
}

// UpsertRowSQL builds a single-row upsert that only rewrites the existing
// row when at least one update column differs. No row comes back when the
// conflict changed nothing.
//
// Postgres returns (id, inserted) where inserted is xmax = 0 on the written
// tuple. SQLite returns id only; callers look the key up beforehand.
func UpsertRowSQL(d Dialect, cfg UpsertConfig) (string, error) {
	if err := cfg.validate(); err != nil {
		return "", err
	}
	updateCols := cfg.updateCols()
	if len(updateCols) == 0 {
		return "", eris.New("db: upsert: no update columns")
	}

	placeholders := make([]string, len(cfg.Columns))
	for i := range cfg.Columns {
		placeholders[i] = d.placeholder(i + 1)
	}

	setClauses := make([]string, len(updateCols))
	for i, col := range updateCols {
		q := quoteIdent(col)
		setClauses[i] = fmt.Sprintf("%s = EXCLUDED.%s", q, q)
	}

	var b strings.Builder
	switch d {
	case Postgres:
		current := make([]string, len(updateCols))
		proposed := make([]string, len(updateCols))
		for i, col := range updateCols {
			current[i] = "t." + quoteIdent(col)
			proposed[i] = "EXCLUDED." + quoteIdent(col)
		}
		fmt.Fprintf(&b, "INSERT INTO %s AS t (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
			sanitizeTable(cfg.Table), quoteAndJoin(cfg.Columns), strings.Join(placeholders, ", "),
			quoteAndJoin(cfg.ConflictKeys), strings.Join(setClauses, ", "))
		fmt.Fprintf(&b, " WHERE (%s) IS DISTINCT FROM (%s)",
			strings.Join(current, ", "), strings.Join(proposed, ", "))
		fmt.Fprintf(&b, " RETURNING t.%s, (t.xmax = 0) AS inserted", quoteIdent(cfg.returning()))
	case SQLite:
		changed := make([]string, len(updateCols))
		for i, col := range updateCols {
			q := quoteIdent(col)
			changed[i] = fmt.Sprintf("%s IS NOT EXCLUDED.%s", q, q)
		}
		fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
			quoteIdent(cfg.Table), quoteAndJoin(cfg.Columns), strings.Join(placeholders, ", "),
			quoteAndJoin(cfg.ConflictKeys), strings.Join(setClauses, ", "))
		fmt.Fprintf(&b, " WHERE %s", strings.Join(changed, " OR "))
		fmt.Fprintf(&b, " RETURNING %s", quoteIdent(cfg.returning()))
	default:
		return "", eris.Errorf("db: upsert: unknown dialect %d", d)
	}
	return b.String(), nil
}

// LookupSQL builds a query returning the surrogate key of the row matching
// the conflict keys.
func LookupSQL(d Dialect, cfg UpsertConfig) (string, error) {
	if err := cfg.validate(); err != nil {
		return "", err
	}
	conds := make([]string, len(cfg.ConflictKeys))
	for i, k := range cfg.ConflictKeys {
		conds[i] = fmt.Sprintf("%s = %s", quoteIdent(k), d.placeholder(i+1))
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		quoteIdent(cfg.returning()), QuoteTable(d, cfg.Table), strings.Join(conds, " AND ")), nil
}

// BulkUpsert performs a Postgres bulk upsert via a temp table and
// INSERT ... ON CONFLICT. Rows identical to the stored ones are not
// rewritten, so the returned count is inserted plus changed rows.
//  1. Creates a temp table with the same columns
//  2. COPY rows into the temp table
//  3. INSERT INTO target SELECT ... FROM temp ON CONFLICT (keys) DO UPDATE SET ... WHERE changed
//  4. The temp table drops on commit
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}
	updateCols := cfg.updateCols()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tempTable := fmt.Sprintf("_tmp_upsert_%s", strings.ReplaceAll(cfg.Table, ".", "_"))

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{tempTable}.Sanitize(),
		sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}

	colList := quoteAndJoin(cfg.Columns)
	setClauses := make([]string, len(updateCols))
	current := make([]string, len(updateCols))
	proposed := make([]string, len(updateCols))
	for i, col := range updateCols {
		q := quoteIdent(col)
		setClauses[i] = fmt.Sprintf("%s = EXCLUDED.%s", q, q)
		current[i] = "t." + q
		proposed[i] = "EXCLUDED." + q
	}

	upsertSQL := fmt.Sprintf(
		"INSERT INTO %s AS t (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s WHERE (%s) IS DISTINCT FROM (%s)",
		sanitizeTable(cfg.Table),
		colList,
		colList,
		pgx.Identifier{tempTable}.Sanitize(),
		quoteAndJoin(cfg.ConflictKeys),
		strings.Join(setClauses, ", "),
		strings.Join(current, ", "),
		strings.Join(proposed, ", "),
	)

	tag, err := tx.Exec(ctx, upsertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}

	return tag.RowsAffected(), nil
}

func (d Dialect) placeholder(n int) string {
	if d == SQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// sanitizeTable handles schema-qualified table names like "public.earnings".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// QuoteTable returns the quoted table reference for d.
func QuoteTable(d Dialect, table string) string {
	if d == SQLite {
		return quoteIdent(table)
	}
	return sanitizeTable(table)
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}
