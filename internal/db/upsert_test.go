package db

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCfg = UpsertConfig{
	Table:        "earnings",
	Columns:      []string{"ticker", "report_date", "quarter", "eps_act"},
	ConflictKeys: []string{"ticker", "report_date"},
}

func TestUpsertRowSQL_Postgres(t *testing.T) {
	got, err := UpsertRowSQL(Postgres, testCfg)
	require.NoError(t, err)

	want := `INSERT INTO "earnings" AS t ("ticker", "report_date", "quarter", "eps_act") VALUES ($1, $2, $3, $4)` +
		` ON CONFLICT ("ticker", "report_date") DO UPDATE SET "quarter" = EXCLUDED."quarter", "eps_act" = EXCLUDED."eps_act"` +
		` WHERE (t."quarter", t."eps_act") IS DISTINCT FROM (EXCLUDED."quarter", EXCLUDED."eps_act")` +
		` RETURNING t."id", (t.xmax = 0) AS inserted`
	assert.Equal(t, want, got)
}

func TestUpsertRowSQL_SQLite(t *testing.T) {
	got, err := UpsertRowSQL(SQLite, testCfg)
	require.NoError(t, err)

	want := `INSERT INTO "earnings" ("ticker", "report_date", "quarter", "eps_act") VALUES (?, ?, ?, ?)` +
		` ON CONFLICT ("ticker", "report_date") DO UPDATE SET "quarter" = EXCLUDED."quarter", "eps_act" = EXCLUDED."eps_act"` +
		` WHERE "quarter" IS NOT EXCLUDED."quarter" OR "eps_act" IS NOT EXCLUDED."eps_act"` +
		` RETURNING "id"`
	assert.Equal(t, want, got)
}

func TestUpsertRowSQL_ExplicitUpdateCols(t *testing.T) {
	cfg := testCfg
	cfg.UpdateCols = []string{"eps_act"}
	cfg.Returning = "row_id"

	got, err := UpsertRowSQL(Postgres, cfg)
	require.NoError(t, err)
	assert.Contains(t, got, `DO UPDATE SET "eps_act" = EXCLUDED."eps_act" WHERE`)
	assert.NotContains(t, got, `"quarter" = EXCLUDED`)
	assert.Contains(t, got, `RETURNING t."row_id"`)
}

func TestUpsertRowSQL_Invalid(t *testing.T) {
	_, err := UpsertRowSQL(Postgres, UpsertConfig{Table: "earnings", ConflictKeys: []string{"id"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")

	_, err = UpsertRowSQL(SQLite, UpsertConfig{Table: "earnings", Columns: []string{"a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")

	_, err = UpsertRowSQL(Postgres, UpsertConfig{Table: "earnings", Columns: []string{"a"}, ConflictKeys: []string{"a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no update columns")
}

func TestLookupSQL(t *testing.T) {
	got, err := LookupSQL(Postgres, UpsertConfig{
		Table:        "public.earnings",
		Columns:      testCfg.Columns,
		ConflictKeys: testCfg.ConflictKeys,
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id" FROM "public"."earnings" WHERE "ticker" = $1 AND "report_date" = $2`, got)

	got, err = LookupSQL(SQLite, testCfg)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id" FROM "earnings" WHERE "ticker" = ? AND "report_date" = ?`, got)
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, testCfg, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "earnings",
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "earnings",
		Columns: []string{"id", "name"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{{"MSFT", "2024-01-30", "Q2 2024", "2.93"}, {"MSFT", "2024-04-25", "Q3 2024", "2.94"}}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TEMP TABLE "_tmp_upsert_earnings" (LIKE "earnings" INCLUDING DEFAULTS) ON COMMIT DROP`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_earnings"}, testCfg.Columns).WillReturnResult(2)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "earnings" AS t ("ticker", "report_date", "quarter", "eps_act") SELECT`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, testCfg, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyFailureRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_earnings"}, testCfg.Columns).WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, testCfg, [][]any{{"MSFT", "2024-01-30", "Q2 2024", "2.93"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"public.earnings", `"public"."earnings"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteTable(t *testing.T) {
	assert.Equal(t, `"public"."earnings"`, QuoteTable(Postgres, "public.earnings"))
	assert.Equal(t, `"earnings"`, QuoteTable(SQLite, "earnings"))
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"id", "name", "value"})
	assert.Equal(t, `"id", "name", "value"`, result)
}
